package runloop

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func mustAdd(t *testing.T, plan *ExecutionPlan, call ToolCall) {
	t.Helper()
	if err := plan.Add(call); err != nil {
		t.Fatalf("add %s: %v", call.ID, err)
	}
}

func planCall(id, name string, deps ...string) ToolCall {
	return ToolCall{ID: id, Name: name, DependsOn: deps, Status: ToolPending}
}

func TestPlanAddDuplicate(t *testing.T) {
	plan := NewExecutionPlan()
	mustAdd(t, plan, planCall("a", "lookup"))

	err := plan.Add(planCall("a", "lookup"))
	var dup *DuplicateCallError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateCallError, got %v", err)
	}
	if dup.CallID != "a" {
		t.Errorf("expected call id a, got %s", dup.CallID)
	}
}

func TestWavesLayering(t *testing.T) {
	plan := NewExecutionPlan()
	mustAdd(t, plan, planCall("a", "fetch"))
	mustAdd(t, plan, planCall("b", "fetch"))
	mustAdd(t, plan, planCall("c", "merge", "a", "b"))
	mustAdd(t, plan, planCall("d", "report", "c"))

	waves, err := plan.waves()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(waves) != 3 {
		t.Fatalf("expected 3 waves, got %d", len(waves))
	}
	if len(waves[0]) != 2 {
		t.Errorf("expected 2 calls in wave 0, got %d", len(waves[0]))
	}
	if len(waves[1]) != 1 || plan.calls[waves[1][0]].ID != "c" {
		t.Errorf("expected wave 1 to be exactly c")
	}
	if len(waves[2]) != 1 || plan.calls[waves[2][0]].ID != "d" {
		t.Errorf("expected wave 2 to be exactly d")
	}
}

func TestWavesCycle(t *testing.T) {
	plan := NewExecutionPlan()
	mustAdd(t, plan, planCall("a", "x", "b"))
	mustAdd(t, plan, planCall("b", "y", "a"))

	_, err := plan.waves()
	var cycle *CycleError
	if !errors.As(err, &cycle) {
		t.Fatalf("expected CycleError, got %v", err)
	}
	if len(cycle.Remaining) != 2 {
		t.Errorf("expected both calls in the cycle report, got %v", cycle.Remaining)
	}
	if !IsStructural(err) {
		t.Error("cycle must be a structural error")
	}
}

func TestWavesUnknownDependency(t *testing.T) {
	plan := NewExecutionPlan()
	mustAdd(t, plan, planCall("a", "x", "ghost"))

	_, err := plan.waves()
	var unknown *UnknownDependencyError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected UnknownDependencyError, got %v", err)
	}
	if unknown.Dependency != "ghost" {
		t.Errorf("expected dependency ghost, got %s", unknown.Dependency)
	}
	if !IsStructural(err) {
		t.Error("unknown dependency must be a structural error")
	}
}

func TestWavesEmptyPlan(t *testing.T) {
	plan := NewExecutionPlan()
	waves, err := plan.waves()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(waves) != 0 {
		t.Errorf("expected no waves for empty plan, got %d", len(waves))
	}
}

func TestToolRegistry(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register("echo", func(ctx context.Context, args json.RawMessage) (string, error) {
		return string(args), nil
	})

	if reg.Get("echo") == nil {
		t.Error("expected registered tool to be found")
	}
	if reg.Get("missing") != nil {
		t.Error("expected nil for unregistered tool")
	}
	if reg.Count() != 1 {
		t.Errorf("expected count 1, got %d", reg.Count())
	}

	reg.Unregister("echo")
	if reg.Get("echo") != nil {
		t.Error("expected tool gone after unregister")
	}
}
