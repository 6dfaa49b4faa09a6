package fsmlog

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleRecord(from *string, to string, at time.Time) *Record {
	event := "advance"
	duration := uint64(25)
	return &Record{
		ID:              uuid.NewString(),
		ModelID:         "42",
		ModelType:       "Order",
		Column:          "status",
		FromState:       from,
		ToState:         to,
		TransitionEvent: &event,
		ContextSnapshot: map[string]interface{}{"keep": true},
		DurationMs:      &duration,
		HappenedAt:      at,
	}
}

func TestSQLStore_AppendAndQuery(t *testing.T) {
	db := setupTestDB(t)
	store := NewSQLStore(db, "")
	ctx := context.Background()

	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	pending := "pending"
	if err := store.Append(ctx, sampleRecord(nil, "pending", base)); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}
	if err := store.Append(ctx, sampleRecord(&pending, "processing", base.Add(time.Minute))); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}

	// A row for another column must not be returned.
	other := sampleRecord(nil, "new", base)
	other.Column = "phase"
	if err := store.Append(ctx, other); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}

	records, err := store.ForModel(ctx, "Order", "42", "status")
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}

	first := records[0]
	if first.FromState != nil {
		t.Errorf("Expected nil from_state, got %v", *first.FromState)
	}
	if first.ToState != "pending" {
		t.Errorf("Expected to_state 'pending', got '%s'", first.ToState)
	}
	if first.TransitionEvent == nil || *first.TransitionEvent != "advance" {
		t.Errorf("Unexpected event %v", first.TransitionEvent)
	}
	if first.DurationMs == nil || *first.DurationMs != 25 {
		t.Errorf("Unexpected duration %v", first.DurationMs)
	}
	if first.ContextSnapshot["keep"] != true {
		t.Errorf("Unexpected snapshot %v", first.ContextSnapshot)
	}
	if !first.HappenedAt.Equal(base) {
		t.Errorf("Expected %v, got %v", base, first.HappenedAt)
	}

	second := records[1]
	if second.FromState == nil || *second.FromState != "pending" {
		t.Errorf("Unexpected from_state %v", second.FromState)
	}
	if second.ToState != "processing" {
		t.Errorf("Expected to_state 'processing', got '%s'", second.ToState)
	}
}

func TestSQLStore_OrdersByHappenedAt(t *testing.T) {
	db := setupTestDB(t)
	store := NewSQLStore(db, "")
	ctx := context.Background()

	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	// Insert out of chronological order.
	for _, at := range []time.Time{base.Add(2 * time.Hour), base, base.Add(time.Hour)} {
		if err := store.Append(ctx, sampleRecord(nil, "s", at)); err != nil {
			t.Fatalf("Failed to append: %v", err)
		}
	}

	records, err := store.ForModel(ctx, "Order", "42", "status")
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	for i := 1; i < len(records); i++ {
		if records[i].HappenedAt.Before(records[i-1].HappenedAt) {
			t.Errorf("Records out of order at %d", i)
		}
	}
}

func TestSQLStore_NullableColumns(t *testing.T) {
	db := setupTestDB(t)
	store := NewSQLStore(db, "")
	ctx := context.Background()

	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	details := "boom"
	rec := &Record{
		ID:               uuid.NewString(),
		ModelID:          "7",
		ModelType:        "Order",
		Column:           "status",
		ToState:          "failed",
		ExceptionDetails: &details,
		HappenedAt:       time.Now().UTC(),
	}
	if err := store.Append(ctx, rec); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}

	records, err := store.ForModel(ctx, "Order", "7", "status")
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	got := records[0]
	if got.Succeeded() {
		t.Error("Expected a failure record")
	}
	if *got.ExceptionDetails != "boom" {
		t.Errorf("Unexpected details %q", *got.ExceptionDetails)
	}
	if got.TransitionEvent != nil || got.DurationMs != nil || got.ContextSnapshot != nil {
		t.Errorf("Expected nil optionals, got %+v", got)
	}
}
