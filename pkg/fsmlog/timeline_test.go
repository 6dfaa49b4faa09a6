package fsmlog

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

// seedTimeline writes pending(2m) -> processing(3m) -> shipped, with a
// failure row in between that must be ignored.
func seedTimeline(t *testing.T) (*MemoryStore, time.Time) {
	t.Helper()

	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	pending := "pending"
	processing := "processing"
	boom := "guard denied"

	rows := []*Record{
		{ID: uuid.NewString(), ModelID: "42", ModelType: "Order", Column: "status",
			FromState: nil, ToState: "pending", HappenedAt: base},
		{ID: uuid.NewString(), ModelID: "42", ModelType: "Order", Column: "status",
			FromState: &pending, ToState: "cancelled", ExceptionDetails: &boom, HappenedAt: base.Add(time.Minute)},
		{ID: uuid.NewString(), ModelID: "42", ModelType: "Order", Column: "status",
			FromState: &pending, ToState: "processing", HappenedAt: base.Add(2 * time.Minute)},
		{ID: uuid.NewString(), ModelID: "42", ModelType: "Order", Column: "status",
			FromState: &processing, ToState: "shipped", HappenedAt: base.Add(5 * time.Minute)},
	}
	for _, rec := range rows {
		if err := store.Append(ctx, rec); err != nil {
			t.Fatalf("Failed to append: %v", err)
		}
	}
	return store, base
}

func TestGetStateTimeline(t *testing.T) {
	store, base := seedTimeline(t)
	ctx := context.Background()

	timeline, err := GetStateTimeline(ctx, store, "Order", "42", "status", nil, nil)
	if err != nil {
		t.Fatalf("Failed to build timeline: %v", err)
	}
	if len(timeline) != 3 {
		t.Fatalf("Expected 3 entries (failure row skipped), got %d", len(timeline))
	}
	if timeline[0].ToState != "pending" || timeline[2].ToState != "shipped" {
		t.Errorf("Unexpected timeline %+v", timeline)
	}

	// Bounded to the first two minutes.
	to := base.Add(2 * time.Minute)
	bounded, err := GetStateTimeline(ctx, store, "Order", "42", "status", &base, &to)
	if err != nil {
		t.Fatalf("Failed to build timeline: %v", err)
	}
	if len(bounded) != 2 {
		t.Fatalf("Expected 2 entries in range, got %d", len(bounded))
	}
}

func TestGetStateTimeAnalysis(t *testing.T) {
	store, _ := seedTimeline(t)

	analysis, err := GetStateTimeAnalysis(context.Background(), store, "Order", "42", "status")
	if err != nil {
		t.Fatalf("Failed to analyze: %v", err)
	}

	pending := analysis["pending"]
	if pending == nil {
		t.Fatal("Expected an entry for 'pending'")
	}
	if pending.TotalDurationMs != 120000 {
		t.Errorf("Expected 120000ms in pending, got %d", pending.TotalDurationMs)
	}
	if pending.Occurrences != 1 {
		t.Errorf("Expected 1 occurrence of pending, got %d", pending.Occurrences)
	}
	if pending.AverageDurationMs != 120000 {
		t.Errorf("Expected average 120000, got %f", pending.AverageDurationMs)
	}
	if pending.MinDurationMs == nil || *pending.MinDurationMs != 120000 {
		t.Errorf("Unexpected min %v", pending.MinDurationMs)
	}

	processing := analysis["processing"]
	if processing == nil || processing.TotalDurationMs != 180000 {
		t.Fatalf("Expected 180000ms in processing, got %+v", processing)
	}

	// The final state has an occurrence but no interval yet.
	shipped := analysis["shipped"]
	if shipped == nil {
		t.Fatal("Expected an entry for 'shipped'")
	}
	if shipped.Occurrences != 1 {
		t.Errorf("Expected 1 occurrence of shipped, got %d", shipped.Occurrences)
	}
	if shipped.MinDurationMs != nil || shipped.MaxDurationMs != nil {
		t.Error("Expected nil min/max for a state with no completed interval")
	}
	if shipped.AverageDurationMs != 0 {
		t.Errorf("Expected average 0.0, got %f", shipped.AverageDurationMs)
	}
}

func TestGetStateTimeAnalysis_Empty(t *testing.T) {
	analysis, err := GetStateTimeAnalysis(context.Background(), NewMemoryStore(), "Order", "nope", "status")
	if err != nil {
		t.Fatalf("Failed to analyze: %v", err)
	}
	if len(analysis) != 0 {
		t.Errorf("Expected empty analysis, got %v", analysis)
	}
}
