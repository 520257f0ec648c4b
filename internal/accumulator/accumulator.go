// Package accumulator implements the pure time/cost/token accumulation
// Every function here is total: given the same
// inputs it always returns the same outputs, and never panics or blocks.
package accumulator

import (
	"sort"
	"time"

	"github.com/overcode/overcode/internal/types"
)

// Tolerance is the 10% clock-jitter allowance of invariant 1.
const Tolerance = 1.1

// Buckets holds the three accumulator buckets tracked per session.
type Buckets struct {
	Green    float64
	NonGreen float64
	Sleep    float64
}

// UpdateResult is the outcome of one UpdateTimes call.
type UpdateResult struct {
	Buckets
	StateChanged bool
	WasCapped    bool
}

// bucketFor returns which bucket an elapsed duration under curr should be
// added to.
func bucketFor(curr types.AgentStatus) int {
	switch {
	case curr.IsGreen():
		return 0
	case curr == types.StatusAsleep:
		return 2
	case curr == types.StatusTerminated:
		return -1 // accumulates nowhere
	default:
		return 1
	}
}

// UpdateTimes adds elapsed seconds to the bucket dictated by currStatus,
// then enforces invariant 1 (sum within tolerance of now-start) via
// uniform scaling, followed by invariant 2's ordered clamp
// (green -> non_green -> sleep). If elapsed <= 0 the buckets are returned
// unchanged.
func UpdateTimes(
	currStatus, prevStatus types.AgentStatus,
	elapsed float64,
	curr Buckets,
	startTime, now time.Time,
) UpdateResult {
	if elapsed <= 0 {
		return UpdateResult{Buckets: curr}
	}

	next := curr
	switch bucketFor(currStatus) {
	case 0:
		next.Green += elapsed
	case 1:
		next.NonGreen += elapsed
	case 2:
		next.Sleep += elapsed
	default:
		// terminated: no bucket changes
		return UpdateResult{Buckets: curr}
	}

	budget := now.Sub(startTime).Seconds()
	if budget < 0 {
		budget = 0
	}

	sum := next.Green + next.NonGreen + next.Sleep
	wasCapped := false

	if sum > budget*Tolerance && sum > 0 {
		ratio := budget / sum
		next.Green *= ratio
		next.NonGreen *= ratio
		next.Sleep *= ratio
		wasCapped = true
	}

	// Invariant 2: ordered clamp green -> non_green -> sleep, each
	// individually capped at the remaining budget.
	remaining := budget
	if next.Green > remaining {
		next.Green = remaining
		wasCapped = true
	}
	remaining -= next.Green
	if remaining < 0 {
		remaining = 0
	}
	if next.NonGreen > remaining {
		next.NonGreen = remaining
		wasCapped = true
	}
	remaining -= next.NonGreen
	if remaining < 0 {
		remaining = 0
	}
	if next.Sleep > remaining {
		next.Sleep = remaining
		wasCapped = true
	}

	return UpdateResult{
		Buckets:      next,
		StateChanged: currStatus != prevStatus,
		WasCapped:    wasCapped,
	}
}

// CostEstimate is the dot product of token counts (in millions) with the
// four-component price vector. Linear in each count,
// monotonic non-decreasing.
func CostEstimate(inTok, outTok, cwTok, crTok int64, prices types.PricingConfig) float64 {
	const perMillion = 1_000_000.0
	return float64(inTok)/perMillion*prices.PriceInput +
		float64(outTok)/perMillion*prices.PriceOutput +
		float64(cwTok)/perMillion*prices.PriceCacheWrite +
		float64(crTok)/perMillion*prices.PriceCacheRead
}

// Median returns the ordered-statistic median; an empty list yields 0.
func Median(xs []float64) float64 {
	n := len(xs)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, xs)
	sort.Float64s(sorted)

	mid := n / 2
	if n%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// AggregateResult summarizes a session population.
type AggregateResult struct {
	GreenCount     int
	TotalGreen     float64
	TotalNonGreen  float64
	ActiveCount    int
}

// Aggregate sums stats across non-asleep sessions.
func Aggregate(sessions []*types.AgentSession) AggregateResult {
	var r AggregateResult
	for _, s := range sessions {
		if s.IsAsleep {
			continue
		}
		r.ActiveCount++
		r.TotalGreen += s.Stats.GreenSeconds
		r.TotalNonGreen += s.Stats.NonGreenSeconds
		if s.Status.IsGreen() {
			r.GreenCount++
		}
	}
	return r
}

// RunSeconds implements the remediation-agent run-seconds law:
// previousTotal if startedAt is nil, else previousTotal plus the
// non-negative elapsed time since startedAt.
func RunSeconds(startedAt *time.Time, now time.Time, previousTotal float64) float64 {
	if startedAt == nil {
		return previousTotal
	}
	elapsed := now.Sub(*startedAt).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	return previousTotal + elapsed
}

// PushWorkDuration appends a completed work-span duration to the bounded
// history list, evicting the oldest entry once MaxWorkDurations is
// exceeded, then recomputes the median.
func PushWorkDuration(history []float64, duration float64) (newHistory []float64, median float64) {
	history = append(history, duration)
	if len(history) > types.MaxWorkDurations {
		history = history[len(history)-types.MaxWorkDurations:]
	}
	return history, Median(history)
}
