package fsm

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestBuilder_Defaults(t *testing.T) {
	def, err := NewBuilder("Invoice", "stage").
		Initial("draft").
		State("draft").Done().
		State("sent").Done().
		Transition("draft", "sent").Event("send").Done().
		Build()
	if err != nil {
		t.Fatalf("Failed to build definition: %v", err)
	}

	draft := def.StateDef("draft")
	if draft.Type != StateTypeIntermediate {
		t.Errorf("Expected default type intermediate, got '%s'", draft.Type)
	}
	if draft.Behavior != StateBehaviorPersistent {
		t.Errorf("Expected default behavior persistent, got '%s'", draft.Behavior)
	}

	tr := def.Transitions[0]
	if tr.Type != TransitionTypeManual {
		t.Errorf("Expected default type manual, got '%s'", tr.Type)
	}
	if tr.Behavior != TransitionImmediate {
		t.Errorf("Expected default behavior immediate, got '%s'", tr.Behavior)
	}
	if tr.GuardMode != GuardAll {
		t.Errorf("Expected default guard mode all, got '%s'", tr.GuardMode)
	}
}

func TestBuilder_FullChain(t *testing.T) {
	entered := false
	def, err := NewBuilder("Shipment", "status").
		Description("shipment lifecycle").
		ContextType("map").
		Initial("created").
		State("created").Type(StateTypeInitial).Category("open").Done().
		State("in_transit").
		OnEntryFunc("mark-entered", func(ctx context.Context, input *TransitionInput) error {
			entered = true
			return nil
		}).
		Done().
		State("delivered").Type(StateTypeFinal).Terminal(true).Done().
		Transition("created", "in_transit").
		Event("dispatch").
		Name("dispatch").
		GuardMode(GuardAny).
		Guard(&Guard{Name: "has-address", Callable: CallableNamed("AddressCheck"), Priority: 10}).
		ActionFunc("notify", NoOpAction(), ActionAfter).
		Timeout(30 * time.Second).
		Done().
		Transition("in_transit", "delivered").Event("deliver").Done().
		Build()
	if err != nil {
		t.Fatalf("Failed to build definition: %v", err)
	}

	if def.Description != "shipment lifecycle" {
		t.Errorf("Unexpected description '%s'", def.Description)
	}
	if def.ContextType != "map" {
		t.Errorf("Unexpected context type '%s'", def.ContextType)
	}
	if def.Initial == nil || *def.Initial != "created" {
		t.Fatalf("Unexpected initial state %v", def.Initial)
	}

	tr := def.Find(StateRef("created"), "dispatch")
	if tr == nil {
		t.Fatal("Expected dispatch transition")
	}
	if tr.GuardMode != GuardAny {
		t.Errorf("Expected guard mode any, got '%s'", tr.GuardMode)
	}
	if len(tr.Guards) != 1 || tr.Guards[0].Priority != 10 {
		t.Fatalf("Unexpected guards %v", tr.Guards)
	}
	if len(tr.Actions) != 1 || !tr.Actions[0].RunAfter {
		t.Error("Expected one after-timing action")
	}
	if tr.Timeout != 30*time.Second {
		t.Errorf("Unexpected timeout %v", tr.Timeout)
	}

	onEntry := def.StateDef("in_transit").OnEntry
	if len(onEntry) != 1 || onEntry[0].Timing != CallbackOnEntry {
		t.Fatalf("Unexpected entry callbacks %v", onEntry)
	}
	_ = entered
}

func TestBuilder_StateEnum(t *testing.T) {
	type phase int
	const (
		phasePending phase = iota
		phaseActive
	)
	byName := map[string]phase{"pending": phasePending, "active": phaseActive}

	def, err := NewBuilder("Order", "status").
		Initial("pending").
		State("pending").Done().
		State("active").Done().
		Transition("pending", "active").Event("activate").Done().
		StateEnum(func(value string) (interface{}, bool) {
			p, ok := byName[value]
			return p, ok
		}).
		Build()
	if err != nil {
		t.Fatalf("Failed to build definition: %v", err)
	}

	v, ok := def.TypedState("active")
	if !ok {
		t.Fatal("Expected typed value for known state")
	}
	if v.(phase) != phaseActive {
		t.Errorf("Unexpected typed value %v", v)
	}
	if _, ok := def.TypedState("bogus"); ok {
		t.Error("Expected no typed value for unknown state")
	}

	bare, err := NewBuilder("Order", "status").
		Initial("pending").
		State("pending").Done().
		Build()
	if err != nil {
		t.Fatalf("Failed to build definition: %v", err)
	}
	if _, ok := bare.TypedState("pending"); ok {
		t.Error("Expected no typed value without a registered hook")
	}
}

func TestBuilder_DuplicateState(t *testing.T) {
	_, err := NewBuilder("Order", "status").
		Initial("pending").
		State("pending").Done().
		State("pending").Done().
		Build()
	if err == nil {
		t.Fatal("Expected duplicate state to fail the build")
	}
	if !strings.Contains(err.Error(), "defined twice") {
		t.Errorf("Unexpected error %v", err)
	}
}

func TestBuilder_UnknownTarget(t *testing.T) {
	_, err := NewBuilder("Order", "status").
		Initial("pending").
		State("pending").Done().
		Transition("pending", "shipped").Done().
		Build()
	if err == nil {
		t.Fatal("Expected unknown target to fail the build")
	}
	if !IsCode(err, ErrorCodeInvalidDefinition) {
		t.Errorf("Expected invalid_definition code, got %v", err)
	}
}

func TestMustBuild_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected MustBuild to panic on an invalid definition")
		}
	}()
	NewBuilder("", "").MustBuild()
}
