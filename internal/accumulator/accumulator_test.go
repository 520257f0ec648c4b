package accumulator

import (
	"math"
	"testing"
	"time"

	"github.com/overcode/overcode/internal/types"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

// E3 — budget tolerance scenario.
func TestUpdateTimes_BudgetTolerance(t *testing.T) {
	start := time.Unix(0, 0)
	now := start.Add(100 * time.Second)

	buckets := Buckets{}
	var result UpdateResult

	for _, elapsed := range []float64{60, 50, 40} {
		result = UpdateTimes(types.StatusRunning, types.StatusRunning, elapsed, buckets, start, now)
		buckets = result.Buckets
	}

	if !almostEqual(buckets.Green, 100) {
		t.Fatalf("expected green=100, got %v", buckets.Green)
	}
	if buckets.NonGreen != 0 || buckets.Sleep != 0 {
		t.Fatalf("expected non_green=0 sleep=0, got %+v", buckets)
	}
	if !result.WasCapped {
		t.Fatalf("expected WasCapped=true on final call")
	}
}

func TestUpdateTimes_NonPositiveElapsedUnchanged(t *testing.T) {
	start := time.Unix(0, 0)
	now := start.Add(10 * time.Second)
	buckets := Buckets{Green: 3, NonGreen: 2, Sleep: 1}

	result := UpdateTimes(types.StatusRunning, types.StatusRunning, 0, buckets, start, now)
	if result.Buckets != buckets {
		t.Fatalf("expected unchanged buckets, got %+v", result.Buckets)
	}

	result = UpdateTimes(types.StatusRunning, types.StatusRunning, -5, buckets, start, now)
	if result.Buckets != buckets {
		t.Fatalf("expected unchanged buckets for negative elapsed, got %+v", result.Buckets)
	}
}

// Property 1: for any sequence of non-negative elapsed updates, the sum
// never exceeds (now-start)*1.1, and after clamping each component is
// individually <= now-start.
func TestUpdateTimes_PropertyInvariant(t *testing.T) {
	start := time.Unix(0, 0)
	statuses := []types.AgentStatus{
		types.StatusRunning, types.StatusWaitingUser, types.StatusAsleep, types.StatusError,
	}
	elapsedSeq := []float64{13, 7, 0, 21, 5, 100, 2, 45}

	buckets := Buckets{}
	var now time.Time
	var total float64

	for i, e := range elapsedSeq {
		total += e
		now = start.Add(time.Duration(total) * time.Second)
		status := statuses[i%len(statuses)]
		result := UpdateTimes(status, status, e, buckets, start, now)
		buckets = result.Buckets

		budget := now.Sub(start).Seconds()
		sum := buckets.Green + buckets.NonGreen + buckets.Sleep
		if sum > budget*Tolerance+1e-9 {
			t.Fatalf("invariant 1 violated at step %d: sum=%v budget*1.1=%v", i, sum, budget*Tolerance)
		}
		if buckets.Green > budget+1e-9 || buckets.NonGreen > budget+1e-9 || buckets.Sleep > budget+1e-9 {
			t.Fatalf("invariant 2 violated at step %d: buckets=%+v budget=%v", i, buckets, budget)
		}
	}
}

func TestCostEstimate_LinearAndMonotonic(t *testing.T) {
	prices := types.DefaultPricing()

	base := CostEstimate(1_000_000, 0, 0, 0, prices)
	if !almostEqual(base, prices.PriceInput) {
		t.Fatalf("expected cost=%v, got %v", prices.PriceInput, base)
	}

	doubled := CostEstimate(2_000_000, 0, 0, 0, prices)
	if !almostEqual(doubled, 2*base) {
		t.Fatalf("expected linear scaling: %v != %v", doubled, 2*base)
	}

	more := CostEstimate(2_000_000, 1_000_000, 0, 0, prices)
	if more < doubled {
		t.Fatalf("expected monotonic non-decreasing cost, got %v < %v", more, doubled)
	}
}

func TestMedian_ReverseInvariant(t *testing.T) {
	cases := [][]float64{
		{},
		{5},
		{1, 2, 3},
		{4, 1, 7, 2},
	}
	for _, xs := range cases {
		rev := make([]float64, len(xs))
		for i, v := range xs {
			rev[len(xs)-1-i] = v
		}
		if Median(xs) != Median(rev) {
			t.Fatalf("median(%v)=%v != median(reverse)=%v", xs, Median(xs), Median(rev))
		}
	}
}

func TestAggregate_IgnoresAsleep(t *testing.T) {
	sessions := []*types.AgentSession{
		{Status: types.StatusRunning, IsAsleep: false, Stats: types.SessionStats{GreenSeconds: 10}},
		{Status: types.StatusRunning, IsAsleep: true, Stats: types.SessionStats{GreenSeconds: 1000}},
		{Status: types.StatusError, IsAsleep: false, Stats: types.SessionStats{NonGreenSeconds: 5}},
	}

	result := Aggregate(sessions)
	if result.ActiveCount != 2 {
		t.Fatalf("expected ActiveCount=2, got %d", result.ActiveCount)
	}
	if result.GreenCount != 1 {
		t.Fatalf("expected GreenCount=1, got %d", result.GreenCount)
	}
	if !almostEqual(result.TotalGreen, 10) {
		t.Fatalf("expected TotalGreen=10 (asleep session excluded), got %v", result.TotalGreen)
	}
}

func TestRunSeconds(t *testing.T) {
	now := time.Unix(1000, 0)

	if got := RunSeconds(nil, now, 42); got != 42 {
		t.Fatalf("expected previousTotal when startedAt nil, got %v", got)
	}

	started := now.Add(-30 * time.Second)
	if got := RunSeconds(&started, now, 10); !almostEqual(got, 40) {
		t.Fatalf("expected 40, got %v", got)
	}

	future := now.Add(30 * time.Second)
	if got := RunSeconds(&future, now, 10); got != 10 {
		t.Fatalf("expected clamp to previousTotal for future startedAt, got %v", got)
	}
}

func TestPushWorkDuration_Bounded(t *testing.T) {
	var history []float64
	for i := 0; i < types.MaxWorkDurations+10; i++ {
		history, _ = PushWorkDuration(history, float64(i))
	}
	if len(history) != types.MaxWorkDurations {
		t.Fatalf("expected bounded history of %d, got %d", types.MaxWorkDurations, len(history))
	}
}
