package export

import (
	"fmt"
	"strings"
	"time"
)

const (
	monthLayout = "2006-01"
	dayLayout   = "2006-01-02"
)

// Partition is one billing period or day of an export.
type Partition struct {
	ExportType  Type
	Value       string // canonical YYYY-MM or YYYY-MM-DD
	Granularity Granularity
}

// DirName returns the partition directory name as it appears in object keys,
// e.g. "BILLING_PERIOD=2025-07".
func (p Partition) DirName() string {
	l := layouts[p.ExportType]
	return l.Token + "=" + p.Value
}

// Before reports whether p sorts before other. Lexicographic comparison of
// canonical values coincides with chronological order.
func (p Partition) Before(other Partition) bool {
	return p.Value < other.Value
}

// ParseValue validates and canonicalizes a partition value for the layout's
// granularity. Monthly layouts reject daily values and vice versa.
func (l Layout) ParseValue(v string) (Partition, error) {
	layout, want := monthLayout, "YYYY-MM"
	if l.Granularity == Daily {
		layout, want = dayLayout, "YYYY-MM-DD"
	}
	t, err := time.Parse(layout, v)
	if err != nil {
		return Partition{}, fmt.Errorf("invalid %s partition value %q (want %s)", l.Granularity, v, want)
	}
	return Partition{ExportType: l.ExportType, Value: t.Format(layout), Granularity: l.Granularity}, nil
}

// FormatValue renders a partition back to its canonical string value.
func (l Layout) FormatValue(p Partition) string {
	return p.Value
}

// ParseDirName parses a "<token>=<value>" partition directory name. The token
// must match the layout's token exactly, including case.
func (l Layout) ParseDirName(name string) (Partition, error) {
	rest, ok := strings.CutPrefix(name, l.Token+"=")
	if !ok {
		return Partition{}, fmt.Errorf("partition directory %q does not start with %q", name, l.Token+"=")
	}
	return l.ParseValue(rest)
}

// Window returns the ordered, inclusive sequence of partition values between
// start and end. Either bound may be empty, in which case the window is open
// on that side and Window returns nil (callers fall back to listing). When
// start > end the sequence is empty, never an error.
func (l Layout) Window(start, end string) ([]Partition, error) {
	if start == "" || end == "" {
		return nil, nil
	}
	from, err := l.ParseValue(start)
	if err != nil {
		return nil, fmt.Errorf("invalid window start: %w", err)
	}
	to, err := l.ParseValue(end)
	if err != nil {
		return nil, fmt.Errorf("invalid window end: %w", err)
	}
	if from.Value > to.Value {
		return []Partition{}, nil
	}

	layout := monthLayout
	if l.Granularity == Daily {
		layout = dayLayout
	}
	cur, _ := time.Parse(layout, from.Value)
	last, _ := time.Parse(layout, to.Value)

	var out []Partition
	for !cur.After(last) {
		out = append(out, Partition{ExportType: l.ExportType, Value: cur.Format(layout), Granularity: l.Granularity})
		if l.Granularity == Daily {
			cur = cur.AddDate(0, 0, 1)
		} else {
			cur = cur.AddDate(0, 1, 0)
		}
	}
	return out, nil
}

// InWindow reports whether a canonical partition value falls inside the
// inclusive [start, end] window. Empty bounds are open.
func (l Layout) InWindow(value, start, end string) bool {
	if start != "" && value < start {
		return false
	}
	if end != "" && value > end {
		return false
	}
	return true
}

// ValidateWindow checks that both window bounds, when present, parse under
// the layout's granularity.
func (l Layout) ValidateWindow(start, end string) error {
	if start != "" {
		if _, err := l.ParseValue(start); err != nil {
			return fmt.Errorf("invalid date_start: %w", err)
		}
	}
	if end != "" {
		if _, err := l.ParseValue(end); err != nil {
			return fmt.Errorf("invalid date_end: %w", err)
		}
	}
	return nil
}
