package eventlog

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

func TestSQLStore_AppendAndQuery(t *testing.T) {
	db := setupTestDB(t)
	store := NewSQLStore(db, "")
	ctx := context.Background()

	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("Failed to ensure schema: %v", err)
	}

	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	from := "pending"
	name := "process"
	rec := &Record{
		ID:             uuid.NewString(),
		ModelID:        "42",
		ModelType:      "Order",
		Column:         "status",
		FromState:      &from,
		ToState:        "processing",
		TransitionName: &name,
		OccurredAt:     at,
		Context:        map[string]interface{}{"amount": 99.5, "keep": true},
		Metadata:       map[string]interface{}{"source": "api"},
		CreatedAt:      at,
	}
	if err := store.Append(ctx, rec); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}

	// A row for another column must not leak into the query.
	if err := store.Append(ctx, &Record{
		ID:         uuid.NewString(),
		ModelID:    "42",
		ModelType:  "Order",
		Column:     "payment_status",
		ToState:    "paid",
		OccurredAt: at,
		CreatedAt:  at,
	}); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}

	records, err := store.ForModel(ctx, "Order", "42", "status")
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}

	got := records[0]
	if got.FromState == nil || *got.FromState != "pending" {
		t.Errorf("Unexpected from state %v", got.FromState)
	}
	if got.ToState != "processing" {
		t.Errorf("Unexpected to state %q", got.ToState)
	}
	if got.TransitionName == nil || *got.TransitionName != "process" {
		t.Errorf("Unexpected transition name %v", got.TransitionName)
	}
	if !got.OccurredAt.Equal(at) {
		t.Errorf("Unexpected occurred_at %v", got.OccurredAt)
	}
	if got.Context["keep"] != true {
		t.Errorf("Context did not round-trip: %v", got.Context)
	}
	if got.Metadata["source"] != "api" {
		t.Errorf("Metadata did not round-trip: %v", got.Metadata)
	}
}

func TestSQLStore_OrdersByOccurredAt(t *testing.T) {
	db := setupTestDB(t)
	store := NewSQLStore(db, "")
	ctx := context.Background()

	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("Failed to ensure schema: %v", err)
	}

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	// Insert out of order.
	for _, rec := range []*Record{
		{ID: uuid.NewString(), ModelID: "7", ModelType: "Order", Column: "status", ToState: "second", OccurredAt: base.Add(time.Minute), CreatedAt: base.Add(time.Minute)},
		{ID: uuid.NewString(), ModelID: "7", ModelType: "Order", Column: "status", ToState: "first", OccurredAt: base, CreatedAt: base},
	} {
		if err := store.Append(ctx, rec); err != nil {
			t.Fatalf("Failed to append: %v", err)
		}
	}

	records, err := store.ForModel(ctx, "Order", "7", "status")
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if records[0].ToState != "first" || records[1].ToState != "second" {
		t.Errorf("Records not ordered by occurred_at: %q, %q", records[0].ToState, records[1].ToState)
	}
}

func TestSQLStore_NullableFields(t *testing.T) {
	db := setupTestDB(t)
	store := NewSQLStore(db, "")
	ctx := context.Background()

	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("Failed to ensure schema: %v", err)
	}

	at := time.Now().UTC().Truncate(time.Second)
	if err := store.Append(ctx, &Record{
		ID:         uuid.NewString(),
		ModelID:    "9",
		ModelType:  "Order",
		Column:     "status",
		ToState:    "pending",
		OccurredAt: at,
		CreatedAt:  at,
	}); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}

	records, err := store.ForModel(ctx, "Order", "9", "status")
	if err != nil {
		t.Fatalf("Failed to query: %v", err)
	}
	got := records[0]
	if got.FromState != nil || got.TransitionName != nil {
		t.Errorf("Expected nil optionals, got from=%v name=%v", got.FromState, got.TransitionName)
	}
	if got.Context != nil || got.Metadata != nil {
		t.Errorf("Expected nil JSON columns, got context=%v metadata=%v", got.Context, got.Metadata)
	}
	if got.FromString() != "null" {
		t.Errorf("Expected 'null' rendering for nil from state, got %q", got.FromString())
	}
}
