package fsmlog

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/statorio/stator/pkg/config"
	"github.com/statorio/stator/pkg/entity"
	"github.com/statorio/stator/pkg/fsm"
)

func testInput(t *testing.T) *fsm.TransitionInput {
	t.Helper()

	store := entity.NewMemoryStore()
	model, err := store.Create(context.Background(), "Order", "42", map[string]interface{}{"status": "pending"})
	if err != nil {
		t.Fatalf("Failed to create entity: %v", err)
	}

	input := &fsm.TransitionInput{
		Model:   model,
		From:    fsm.StateRef("pending"),
		To:      "processing",
		Event:   "process",
		Context: fsm.MapContext{"user": map[string]interface{}{"id": 1, "password": "s"}, "keep": true},
	}
	if err := input.Normalize(); err != nil {
		t.Fatalf("Failed to normalize input: %v", err)
	}
	return input
}

func TestLogger_LogSuccess(t *testing.T) {
	store := NewMemoryStore()
	cfg := config.DefaultConfig()
	cfg.Logging.ExcludedContextProperties = []string{"user.password"}

	logger := NewLogger(store, cfg, nil)

	if err := logger.LogSuccess(context.Background(), "status", testInput(t), 12); err != nil {
		t.Fatalf("Failed to log success: %v", err)
	}

	records := store.All()
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	rec := records[0]

	if rec.ID == "" {
		t.Error("Expected a generated id")
	}
	if rec.ModelType != "Order" || rec.ModelID != "42" || rec.Column != "status" {
		t.Errorf("Unexpected identity %s/%s/%s", rec.ModelType, rec.ModelID, rec.Column)
	}
	if rec.FromState == nil || *rec.FromState != "pending" || rec.ToState != "processing" {
		t.Errorf("Unexpected states %v -> %s", rec.FromState, rec.ToState)
	}
	if rec.TransitionEvent == nil || *rec.TransitionEvent != "process" {
		t.Errorf("Unexpected event %v", rec.TransitionEvent)
	}
	if rec.DurationMs == nil || *rec.DurationMs != 12 {
		t.Errorf("Unexpected duration %v", rec.DurationMs)
	}
	if !rec.Succeeded() {
		t.Error("Success records must have no exception details")
	}
	if rec.SubjectID != nil || rec.SubjectType != nil {
		t.Error("Expected no subject without a resolver")
	}

	user, ok := rec.ContextSnapshot["user"].(map[string]interface{})
	if !ok {
		t.Fatalf("Unexpected snapshot %v", rec.ContextSnapshot)
	}
	if _, ok := user["password"]; ok {
		t.Error("Expected the password stripped from the snapshot")
	}
}

func TestLogger_DisabledWritesNothing(t *testing.T) {
	store := NewMemoryStore()
	cfg := config.DefaultConfig()
	cfg.Logging.Enabled = false

	logger := NewLogger(store, cfg, nil)
	if err := logger.LogSuccess(context.Background(), "status", testInput(t), 1); err != nil {
		t.Fatalf("Failed to log: %v", err)
	}
	logger.LogFailure(context.Background(), "status", testInput(t), errors.New("x"), 1)

	if len(store.All()) != 0 {
		t.Errorf("Expected no records, got %d", len(store.All()))
	}
}

func TestLogger_LogFailure(t *testing.T) {
	store := NewMemoryStore()
	cfg := config.DefaultConfig()
	cfg.Logging.ExceptionCharacterLimit = 10

	logger := NewLogger(store, cfg, nil)
	logger.LogFailure(context.Background(), "status", testInput(t), errors.New("a very long failure description"), 3)

	records := store.All()
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	rec := records[0]
	if rec.Succeeded() {
		t.Fatal("Failure records must carry exception details")
	}
	if *rec.ExceptionDetails != "a very lon" {
		t.Errorf("Expected truncation to 10 characters, got %q", *rec.ExceptionDetails)
	}
}

func TestLogger_LogFailuresDisabled(t *testing.T) {
	store := NewMemoryStore()
	cfg := config.DefaultConfig()
	cfg.Logging.LogFailures = false

	logger := NewLogger(store, cfg, nil)
	logger.LogFailure(context.Background(), "status", testInput(t), errors.New("x"), 1)

	if len(store.All()) != 0 {
		t.Errorf("Expected no records, got %d", len(store.All()))
	}
}

func TestLogger_SubjectAttribution(t *testing.T) {
	store := NewMemoryStore()
	cfg := config.DefaultConfig()
	cfg.Verbs.LogUserSubject = true

	resolver := func(ctx context.Context) (string, string, bool) {
		return "u-7", "User", true
	}
	logger := NewLogger(store, cfg, nil, WithActorResolver(resolver))

	if err := logger.LogSuccess(context.Background(), "status", testInput(t), 1); err != nil {
		t.Fatalf("Failed to log success: %v", err)
	}

	rec := store.All()[0]
	if rec.SubjectID == nil || *rec.SubjectID != "u-7" {
		t.Errorf("Expected subject id 'u-7', got %v", rec.SubjectID)
	}
	if rec.SubjectType == nil || *rec.SubjectType != "User" {
		t.Errorf("Expected subject type 'User', got %v", rec.SubjectType)
	}
}

func TestLogger_SubjectGatedByConfig(t *testing.T) {
	store := NewMemoryStore()
	cfg := config.DefaultConfig() // log_user_subject defaults to false

	resolver := func(ctx context.Context) (string, string, bool) {
		return "u-7", "User", true
	}
	logger := NewLogger(store, cfg, nil, WithActorResolver(resolver))

	if err := logger.LogSuccess(context.Background(), "status", testInput(t), 1); err != nil {
		t.Fatalf("Failed to log success: %v", err)
	}
	if rec := store.All()[0]; rec.SubjectID != nil {
		t.Errorf("Expected no subject when log_user_subject is off, got %v", *rec.SubjectID)
	}
}

func TestLogger_ClockOverride(t *testing.T) {
	store := NewMemoryStore()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	logger := NewLogger(store, config.DefaultConfig(), nil, WithClock(func() time.Time { return at }))
	if err := logger.LogSuccess(context.Background(), "status", testInput(t), 1); err != nil {
		t.Fatalf("Failed to log success: %v", err)
	}
	if got := store.All()[0].HappenedAt; !got.Equal(at) {
		t.Errorf("Expected %v, got %v", at, got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("héllo wörld", 5); got != "héllo" {
		t.Errorf("Expected 'héllo', got %q", got)
	}
	if got := truncate("short", 100); got != "short" {
		t.Errorf("Expected 'short', got %q", got)
	}
	if got := truncate(strings.Repeat("x", 10), 0); len(got) != 10 {
		t.Errorf("A non-positive limit must not truncate, got %q", got)
	}
}
