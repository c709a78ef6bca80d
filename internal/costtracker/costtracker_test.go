package costtracker

import "testing"

func TestTracker_RecordAccumulatesCost(t *testing.T) {
	tr := New(0, 0)
	tr.Record("claude-sonnet-4-20250514", 1_000_000, 1_000_000)

	snap := tr.Snapshot()
	if snap.TotalRequests != 1 {
		t.Fatalf("TotalRequests = %d, want 1", snap.TotalRequests)
	}
	want := 3.0 + 15.0
	if snap.EstimatedCostUSD != want {
		t.Fatalf("EstimatedCostUSD = %f, want %f", snap.EstimatedCostUSD, want)
	}
}

func TestTracker_UnrecognizedModelUsesDefaultPricing(t *testing.T) {
	tr := New(0, 0)
	tr.Record("some-future-model", 1_000_000, 0)

	if got := tr.Snapshot().EstimatedCostUSD; got != defaultPricing[0] {
		t.Fatalf("EstimatedCostUSD = %f, want default input rate %f", got, defaultPricing[0])
	}
}

func TestTracker_OverBudget(t *testing.T) {
	tr := New(1.0, 0)
	if tr.OverBudget() {
		t.Fatalf("OverBudget before any usage, want false")
	}

	tr.Record("claude-opus-4-20250514", 100_000, 0) // $1.50
	if !tr.OverBudget() {
		t.Fatalf("OverBudget after exceeding budget, want true")
	}
}

func TestTracker_ZeroBudgetNeverTrips(t *testing.T) {
	tr := New(0, 0)
	tr.Record("claude-opus-4-20250514", 10_000_000, 10_000_000)
	if tr.OverBudget() {
		t.Fatalf("OverBudget with zero budget configured, want false always")
	}
}
