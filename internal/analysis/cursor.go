package analysis

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"

	"leviatan/internal/errors"
	"leviatan/internal/walker"
)

const cursorVersion = 1

// Cursor is the opaque continuation token handed back after a partial chunk.
// It pins the walk position plus the running totals so the next call can
// resume without re-reading anything, and it carries a fingerprint of the
// walk configuration so a token replayed against changed settings is
// rejected instead of silently producing a mixed result.
type Cursor struct {
	V           int    `json:"v"`
	LastPath    string `json:"p"`
	Visited     uint64 `json:"n"`
	Found       uint64 `json:"t"`
	Skipped     uint64 `json:"s"`
	Done        bool   `json:"d"`
	Fingerprint string `json:"h"`
}

// EncodeCursor serializes a cursor to a URL-safe token.
func EncodeCursor(c Cursor) string {
	c.V = cursorVersion
	data, err := json.Marshal(c)
	if err != nil {
		// Cursor contains only scalars; Marshal cannot fail on it.
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeCursor validates and decodes a continuation token. The fingerprint
// must match the one computed for the current walk configuration.
func DecodeCursor(token, fingerprint string) (*Cursor, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, errors.NewInvalidCursorError("invalid encoding")
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, errors.NewInvalidCursorError("invalid format")
	}
	if c.V != cursorVersion {
		return nil, errors.NewInvalidCursorError(fmt.Sprintf("unsupported version %d", c.V))
	}
	if c.Fingerprint != fingerprint {
		return nil, errors.NewInvalidCursorError("walk configuration changed since the cursor was issued")
	}
	return &c, nil
}

// walkFingerprint hashes the canonical root together with every setting
// that affects which files a walk emits and in what order.
func walkFingerprint(root string, opts walker.Options) string {
	var b strings.Builder
	b.WriteString(root)
	b.WriteByte(0)

	dirs := append([]string(nil), opts.ExcludeDirs...)
	sort.Strings(dirs)
	for _, d := range dirs {
		b.WriteString(d)
		b.WriteByte(0)
	}
	b.WriteByte(1)

	globs := append([]string(nil), opts.ExcludeGlobs...)
	sort.Strings(globs)
	for _, g := range globs {
		b.WriteString(g)
		b.WriteByte(0)
	}
	b.WriteByte(1)

	fmt.Fprintf(&b, "%t|%t|%d|%d|%d|%d",
		opts.SkipHiddenDirs, opts.UseGitignore,
		opts.MaxFileSizeBytes, opts.MaxFiles, opts.MaxDepth, opts.SampleSizeBytes)

	sum := blake2b.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:16])
}
