package session

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// diffStat computes a line-level summary of a before/after pair. Uses the
// line-mode diff so a one-line tweak in a large buffer counts as one line
// changed, not thousands of characters.
func diffStat(before, after string) (added, removed int) {
	dmp := diffmatchpatch.New()
	beforeRunes, afterRunes, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(beforeRunes, afterRunes, false), lines)

	for _, d := range diffs {
		n := strings.Count(d.Text, "\n")
		if n == 0 && d.Text != "" {
			n = 1 // trailing line without a newline
		} else if n > 0 && !strings.HasSuffix(d.Text, "\n") {
			n++
		}
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += n
		case diffmatchpatch.DiffDelete:
			removed += n
		}
	}
	return added, removed
}
