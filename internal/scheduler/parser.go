package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Expression forms.
const (
	ExprTypeInterval = "interval"
	ExprTypeDaily    = "daily"
)

// ParsedExpression is a schedule expression in evaluable form.
type ParsedExpression struct {
	Type     string
	Interval time.Duration // interval form
	Hour     int           // daily form, local time
	Minute   int
}

var (
	intervalRegex = regexp.MustCompile(`^every\s+(\d+)\s*(s|m|h|d|seconds?|minutes?|hours?|days?)$`)
	dailyRegex    = regexp.MustCompile(`^daily\s+at\s+(\d{1,2}):(\d{2})$`)
)

// ParseExpression parses a schedule expression. Two forms are
// understood: "every N <unit>" with a one minute floor, and
// "daily at HH:MM" in local time.
func ParseExpression(expr string) (*ParsedExpression, error) {
	expr = strings.TrimSpace(strings.ToLower(expr))

	if m := intervalRegex.FindStringSubmatch(expr); m != nil {
		value, _ := strconv.Atoi(m[1])

		var unit time.Duration
		switch {
		case strings.HasPrefix(m[2], "s"):
			unit = time.Second
		case strings.HasPrefix(m[2], "m"):
			unit = time.Minute
		case strings.HasPrefix(m[2], "h"):
			unit = time.Hour
		case strings.HasPrefix(m[2], "d"):
			unit = 24 * time.Hour
		}

		interval := time.Duration(value) * unit
		if interval < time.Minute {
			return nil, fmt.Errorf("minimum interval is 1 minute")
		}

		return &ParsedExpression{Type: ExprTypeInterval, Interval: interval}, nil
	}

	if m := dailyRegex.FindStringSubmatch(expr); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		if hour > 23 || minute > 59 {
			return nil, fmt.Errorf("invalid time of day: %s:%s", m[1], m[2])
		}

		return &ParsedExpression{Type: ExprTypeDaily, Hour: hour, Minute: minute}, nil
	}

	return nil, fmt.Errorf("unrecognized schedule expression %q (want \"every N <unit>\" or \"daily at HH:MM\")", expr)
}

// NextRun computes the next fire time after from.
func (p *ParsedExpression) NextRun(from time.Time) time.Time {
	switch p.Type {
	case ExprTypeDaily:
		next := time.Date(from.Year(), from.Month(), from.Day(), p.Hour, p.Minute, 0, 0, from.Location())
		if !next.After(from) {
			next = next.AddDate(0, 0, 1)
		}
		return next
	case ExprTypeInterval:
		return from.Add(p.Interval)
	default:
		return from.Add(time.Hour)
	}
}

// NextRunTime parses expr and computes its next fire time after from.
func NextRunTime(expr string, from time.Time) (time.Time, error) {
	parsed, err := ParseExpression(expr)
	if err != nil {
		return time.Time{}, err
	}
	return parsed.NextRun(from), nil
}
