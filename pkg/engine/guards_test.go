package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/statorio/stator/pkg/fsm"
)

// guardFixture builds a two-state machine whose single transition
// carries the given guards under the given strategy, and returns the
// pieces evalGuards needs.
func guardFixture(t *testing.T, mode fsm.GuardMode, guards ...*fsm.Guard) (*Engine, *fsm.RuntimeDefinition, *fsm.TransitionDefinition, *fsm.TransitionInput) {
	t.Helper()

	b := fsm.NewBuilder("Order", "status")
	b.State("pending").Done().State("processing").Done().Initial("pending")
	b.Transition("pending", "processing").GuardMode(mode).Guard(guards...).Done()
	def, err := b.Build()
	if err != nil {
		t.Fatalf("Failed to build definition: %v", err)
	}

	registry := fsm.NewRegistry()
	registry.MustRegister(def)
	eng := New(registry)

	from := fsm.State("pending")
	input := &fsm.TransitionInput{From: &from, To: "processing"}
	if err := input.Normalize(); err != nil {
		t.Fatalf("Failed to normalize input: %v", err)
	}
	return eng, def, def.Transitions[0], input
}

func passGuard(name string, trace *[]string) *fsm.Guard {
	return fsm.GuardOf(name, func(ctx context.Context, input *fsm.TransitionInput) (bool, error) {
		if trace != nil {
			*trace = append(*trace, name)
		}
		return true, nil
	})
}

func denyGuard(name string, trace *[]string) *fsm.Guard {
	return fsm.GuardOf(name, func(ctx context.Context, input *fsm.TransitionInput) (bool, error) {
		if trace != nil {
			*trace = append(*trace, name)
		}
		return false, nil
	})
}

func errorGuard(name string, cause error) *fsm.Guard {
	return fsm.GuardOf(name, func(ctx context.Context, input *fsm.TransitionInput) (bool, error) {
		return false, cause
	})
}

func TestEvalGuards_AllPass(t *testing.T) {
	eng, def, tr, input := guardFixture(t, fsm.GuardAll,
		passGuard("a", nil), passGuard("b", nil))
	if err := eng.evalGuards(context.Background(), def, tr, input); err != nil {
		t.Fatalf("Expected pass, got %v", err)
	}
}

func TestEvalGuards_AllAggregatesDenials(t *testing.T) {
	eng, def, tr, input := guardFixture(t, fsm.GuardAll,
		denyGuard("quota", nil), passGuard("auth", nil), denyGuard("window", nil))

	err := eng.evalGuards(context.Background(), def, tr, input)
	if !fsm.IsCode(err, fsm.ErrorCodeGuardFailed) {
		t.Fatalf("Expected guard_failed, got %v", err)
	}
	var fe *fsm.Error
	if !errors.As(err, &fe) {
		t.Fatalf("Expected a structured error, got %T", err)
	}
	want := "guards denied the transition: quota; window"
	if fe.Message != want {
		t.Errorf("Expected message %q, got %q", want, fe.Message)
	}
	if fe.Phase != "guards" {
		t.Errorf("Expected phase guards, got %q", fe.Phase)
	}
}

func TestEvalGuards_AllAggregatesErrors(t *testing.T) {
	eng, def, tr, input := guardFixture(t, fsm.GuardAll,
		errorGuard("flaky", errors.New("backend down")), passGuard("auth", nil))

	err := eng.evalGuards(context.Background(), def, tr, input)
	var fe *fsm.Error
	if !errors.As(err, &fe) {
		t.Fatalf("Expected a structured error, got %v", err)
	}
	if fe.Message != "guards denied the transition: flaky: backend down" {
		t.Errorf("Unexpected message %q", fe.Message)
	}
}

func TestEvalGuards_PriorityOrder(t *testing.T) {
	var trace []string
	low := passGuard("low", &trace)
	low.Priority = 1
	high := passGuard("high", &trace)
	high.Priority = 10
	midA := passGuard("mid-a", &trace)
	midA.Priority = 5
	midB := passGuard("mid-b", &trace)
	midB.Priority = 5

	eng, def, tr, input := guardFixture(t, fsm.GuardAll, low, midA, high, midB)
	if err := eng.evalGuards(context.Background(), def, tr, input); err != nil {
		t.Fatalf("Expected pass, got %v", err)
	}

	want := []string{"high", "mid-a", "mid-b", "low"}
	if len(trace) != len(want) {
		t.Fatalf("Expected order %v, got %v", want, trace)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Fatalf("Expected order %v, got %v", want, trace)
		}
	}
}

func TestEvalGuards_StopOnFailureShortCircuits(t *testing.T) {
	var trace []string
	stopper := denyGuard("stopper", &trace)
	stopper.StopOnFailure = true
	stopper.Priority = 10
	later := passGuard("later", &trace)

	eng, def, tr, input := guardFixture(t, fsm.GuardAll, stopper, later)
	err := eng.evalGuards(context.Background(), def, tr, input)
	var fe *fsm.Error
	if !errors.As(err, &fe) {
		t.Fatalf("Expected a structured error, got %v", err)
	}
	if fe.Message != "guard stopper denied the transition" {
		t.Errorf("Unexpected message %q", fe.Message)
	}
	if len(trace) != 1 {
		t.Errorf("Expected evaluation to stop after the first guard, got %v", trace)
	}
}

func TestEvalGuards_StopOnFailureError(t *testing.T) {
	cause := errors.New("backend down")
	g := errorGuard("health", cause)
	g.StopOnFailure = true

	eng, def, tr, input := guardFixture(t, fsm.GuardAll, g)
	err := eng.evalGuards(context.Background(), def, tr, input)
	if !fsm.IsCode(err, fsm.ErrorCodeCallbackFailed) {
		t.Fatalf("Expected callback_failed, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Error("Expected the cause preserved in the chain")
	}
}

func TestEvalGuards_AnyPassesOnFirstTrue(t *testing.T) {
	eng, def, tr, input := guardFixture(t, fsm.GuardAny,
		denyGuard("a", nil), passGuard("b", nil), denyGuard("c", nil))
	if err := eng.evalGuards(context.Background(), def, tr, input); err != nil {
		t.Fatalf("Expected pass, got %v", err)
	}
}

func TestEvalGuards_AnyAllFail(t *testing.T) {
	eng, def, tr, input := guardFixture(t, fsm.GuardAny,
		denyGuard("a", nil), errorGuard("b", errors.New("boom")))
	err := eng.evalGuards(context.Background(), def, tr, input)
	var fe *fsm.Error
	if !errors.As(err, &fe) {
		t.Fatalf("Expected a structured error, got %v", err)
	}
	if fe.Message != "all guards failed" {
		t.Errorf("Unexpected message %q", fe.Message)
	}
}

func TestEvalGuards_FirstSkipsErrors(t *testing.T) {
	eng, def, tr, input := guardFixture(t, fsm.GuardFirst,
		errorGuard("flaky", errors.New("boom")), passGuard("decider", nil))
	if err := eng.evalGuards(context.Background(), def, tr, input); err != nil {
		t.Fatalf("Expected pass, got %v", err)
	}
}

func TestEvalGuards_FirstDenies(t *testing.T) {
	var trace []string
	eng, def, tr, input := guardFixture(t, fsm.GuardFirst,
		denyGuard("decider", &trace), passGuard("never-reached", &trace))
	err := eng.evalGuards(context.Background(), def, tr, input)
	var fe *fsm.Error
	if !errors.As(err, &fe) {
		t.Fatalf("Expected a structured error, got %v", err)
	}
	if fe.Message != "guard decider denied the transition" {
		t.Errorf("Unexpected message %q", fe.Message)
	}
	if len(trace) != 1 {
		t.Errorf("Expected only the deciding guard evaluated, got %v", trace)
	}
}

func TestEvalGuards_FirstExhausted(t *testing.T) {
	eng, def, tr, input := guardFixture(t, fsm.GuardFirst,
		errorGuard("a", errors.New("boom")), errorGuard("b", errors.New("boom")))
	err := eng.evalGuards(context.Background(), def, tr, input)
	var fe *fsm.Error
	if !errors.As(err, &fe) {
		t.Fatalf("Expected a structured error, got %v", err)
	}
	if fe.Message != "no guard produced a decision" {
		t.Errorf("Unexpected message %q", fe.Message)
	}
}

func TestCheckGuard_RequiresExactlyTrue(t *testing.T) {
	eng, _, _, input := guardFixture(t, fsm.GuardAll, passGuard("x", nil))

	cases := []struct {
		name   string
		result interface{}
		pass   bool
	}{
		{"boolean true", true, true},
		{"boolean false", false, false},
		{"truthy string", "yes", false},
		{"non-zero int", 1, false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := &fsm.Guard{
				Name: tc.name,
				Callable: fsm.CallableFunc(func(ctx context.Context, in *fsm.TransitionInput) (interface{}, error) {
					return tc.result, nil
				}),
			}
			pass, err := eng.checkGuard(context.Background(), g, input)
			if err != nil {
				t.Fatalf("Failed to check guard: %v", err)
			}
			if pass != tc.pass {
				t.Errorf("Expected pass=%v for %v, got %v", tc.pass, tc.result, pass)
			}
		})
	}
}

func TestCheckGuard_NoResultsDenies(t *testing.T) {
	eng, _, _, input := guardFixture(t, fsm.GuardAll, passGuard("x", nil))
	g := &fsm.Guard{
		Name:     "void",
		Callable: fsm.CallableFunc(func(ctx context.Context, in *fsm.TransitionInput) {}),
	}
	pass, err := eng.checkGuard(context.Background(), g, input)
	if err != nil {
		t.Fatalf("Failed to check guard: %v", err)
	}
	if pass {
		t.Error("Expected a guard without results to deny")
	}
}
