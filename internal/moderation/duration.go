package moderation

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseError reports an unparseable duration string.
type ParseError struct {
	Input string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid duration %q", e.Input)
}

const (
	day   = 24 * time.Hour
	week  = 7 * day
	month = 30 * day
	year  = 365 * day
)

// ParseDuration parses a moderation duration such as "30m", "2d" or "1y".
// "perm" and "permanent" return a nil duration, meaning no natural expiry.
func ParseDuration(input string) (*time.Duration, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return nil, &ParseError{Input: input}
	}

	lower := strings.ToLower(s)
	if lower == "perm" || lower == "permanent" {
		return nil, nil
	}

	unit := s[len(s)-1]

	n, err := strconv.ParseInt(s[:len(s)-1], 10, 64)
	if err != nil || n <= 0 {
		return nil, &ParseError{Input: input}
	}

	var d time.Duration

	switch unit {
	case 's':
		d = time.Duration(n) * time.Second
	case 'm':
		d = time.Duration(n) * time.Minute
	case 'h':
		d = time.Duration(n) * time.Hour
	case 'd':
		d = time.Duration(n) * day
	case 'w':
		d = time.Duration(n) * week
	case 'M':
		d = time.Duration(n) * month
	case 'y':
		d = time.Duration(n) * year
	default:
		return nil, &ParseError{Input: input}
	}

	return &d, nil
}

// FormatDuration renders a duration the way ParseDuration accepts it, using
// the largest unit that divides it evenly. Nil means permanent.
func FormatDuration(d *time.Duration) string {
	if d == nil {
		return "permanent"
	}

	units := []struct {
		size   time.Duration
		suffix string
	}{
		{year, "y"},
		{month, "M"},
		{week, "w"},
		{day, "d"},
		{time.Hour, "h"},
		{time.Minute, "m"},
		{time.Second, "s"},
	}

	for _, u := range units {
		if *d >= u.size && *d%u.size == 0 {
			return fmt.Sprintf("%d%s", *d/u.size, u.suffix)
		}
	}

	return d.String()
}
