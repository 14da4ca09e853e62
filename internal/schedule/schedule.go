// Package schedule turns a billing frequency and an installment count into the
// absolute execution times of a subscription.
//
// Fixed frequencies step by a constant duration. Calendar frequencies advance
// the month or year field of the start time in UTC, so a schedule starting on
// Jan 31 moves to "Feb 31", which normalizes to Mar 3 (Mar 2 in leap years).
// That drift is the intended policy and is not corrected.
package schedule

import (
	"math"
	"strings"
	"time"

	"github.com/0xPexy/sentra-checkout/internal/apperr"
)

type Frequency string

const (
	FiveMinutes Frequency = "5mins"
	Daily       Frequency = "daily"
	Weekly      Frequency = "week"
	Monthly     Frequency = "month"
	Quarterly   Frequency = "quarter"
	SemiAnnual  Frequency = "half year"
	Yearly      Frequency = "year"
)

var fixedIntervals = map[Frequency]time.Duration{
	FiveMinutes: 5 * time.Minute,
	Daily:       24 * time.Hour,
	Weekly:      7 * 24 * time.Hour,
}

// months per step; Yearly is handled on the year field.
var calendarSteps = map[Frequency]int{
	Monthly:    1,
	Quarterly:  3,
	SemiAnnual: 6,
}

func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.TrimSpace(s))
	if !f.Valid() {
		return "", apperr.Newf(apperr.InvalidFrequency, "schedule", "invalid frequency: %q", s)
	}
	return f, nil
}

func (f Frequency) Valid() bool {
	if _, ok := fixedIntervals[f]; ok {
		return true
	}
	if _, ok := calendarSteps[f]; ok {
		return true
	}
	return f == Yearly
}

// Interval returns the constant step for fixed frequencies.
func (f Frequency) Interval() (time.Duration, bool) {
	d, ok := fixedIntervals[f]
	return d, ok
}

// Generate returns count execution times in milliseconds since epoch, the
// first being startMs.
func Generate(startMs int64, freq Frequency, count int) ([]int64, error) {
	if count < 1 {
		return nil, apperr.Newf(apperr.InvalidInput, "schedule", "installment count must be positive, got %d", count)
	}
	if !freq.Valid() {
		return nil, apperr.Newf(apperr.InvalidFrequency, "schedule", "invalid frequency: %q", string(freq))
	}

	out := make([]int64, 0, count)
	out = append(out, startMs)
	if count == 1 {
		return out, nil
	}

	if interval, ok := fixedIntervals[freq]; ok {
		step := interval.Milliseconds()
		span := int64(count - 1)
		if span > math.MaxInt64/step || startMs > math.MaxInt64-span*step {
			return nil, outOfRange(startMs, freq, count)
		}
		for i := 1; i < count; i++ {
			out = append(out, startMs+int64(i)*step)
		}
		return out, nil
	}

	start := time.UnixMilli(startMs).UTC()
	for i := 1; i < count; i++ {
		var next time.Time
		if freq == Yearly {
			next = start.AddDate(i, 0, 0)
		} else {
			next = start.AddDate(0, i*calendarSteps[freq], 0)
		}
		at := next.UnixMilli()
		// UnixMilli wraps past the int64 range.
		if at <= out[i-1] || !time.UnixMilli(at).Equal(next) {
			return nil, outOfRange(startMs, freq, count)
		}
		out = append(out, at)
	}
	return out, nil
}

func outOfRange(startMs int64, freq Frequency, count int) error {
	return apperr.Newf(apperr.InvalidInput, "schedule", "%d %s installments from %d exceed the representable time range", count, freq, startMs)
}
