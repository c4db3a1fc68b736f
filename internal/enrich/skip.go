package enrich

import (
	"fmt"
	"slices"
)

// SkipReason classifies a joined row that was dropped.
type SkipReason string

const (
	SkipMonth     SkipReason = "month"      // missing or not YYYY-MM
	SkipRating    SkipReason = "rating"     // not a finite number
	SkipLowRating SkipReason = "low_rating" // below model.MinRating
)

// SkipError is returned by the per-row parse step. It never leaves this
// package: Enrich counts it and moves on.
type SkipError struct {
	Reason SkipReason
	Value  string
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("skip row: %s %q", e.Reason, e.Value)
}

func skip(reason SkipReason, value string) error {
	return &SkipError{Reason: reason, Value: value}
}

// SkipStats counts dropped rows per reason.
type SkipStats struct {
	reasons map[SkipReason]int
}

// NewSkipStats returns empty stats.
func NewSkipStats() *SkipStats {
	return &SkipStats{reasons: make(map[SkipReason]int)}
}

// Add records one skipped row.
func (s *SkipStats) Add(reason SkipReason) {
	s.reasons[reason]++
}

// Count returns the skips recorded for reason.
func (s *SkipStats) Count(reason SkipReason) int {
	return s.reasons[reason]
}

// Total returns all recorded skips.
func (s *SkipStats) Total() int {
	n := 0
	for _, c := range s.reasons {
		n += c
	}
	return n
}

// Reasons lists the reasons seen, sorted by name.
func (s *SkipStats) Reasons() []SkipReason {
	out := make([]SkipReason, 0, len(s.reasons))
	for r := range s.reasons {
		out = append(out, r)
	}
	slices.Sort(out)
	return out
}
