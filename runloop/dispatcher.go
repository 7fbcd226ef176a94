package runloop

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ToolExecutionError reports the first tool failure when a plan is executed
// under the fail-fast policy. It is not structural: the caller still receives
// the partial result map.
type ToolExecutionError struct {
	CallID  string
	Name    string
	Message string
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s (call %s) failed: %s", e.Name, e.CallID, e.Message)
}

// Dispatcher executes a tool plan in topological waves. Ready calls within a
// wave run concurrently under a fixed worker limit; the whole wave completes
// before the next starts, so a call never runs before all its dependencies
// are done.
type Dispatcher struct {
	registry      *ToolRegistry
	maxConcurrent int
	grace         time.Duration
	emitter       *EventEmitter
	log           *zap.Logger
}

// NewDispatcher creates a Dispatcher. maxConcurrent bounds per-wave
// parallelism (default 5); grace is how long in-flight calls may finish
// after cancellation before their results are discarded.
func NewDispatcher(registry *ToolRegistry, maxConcurrent int, grace time.Duration, emitter *EventEmitter, log *zap.Logger) *Dispatcher {
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}
	if grace <= 0 {
		grace = 2 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		registry:      registry,
		maxConcurrent: maxConcurrent,
		grace:         grace,
		emitter:       emitter,
		log:           log,
	}
}

// Execute runs the plan and returns results keyed by call id. A cyclic or
// malformed plan returns a structural error with nothing executed and every
// call still pending. Under the default fail-fast policy, the first failure
// stops dispatching new waves (the current wave finishes) and is returned
// along with the partial map; with continue-on-error (per plan or per call),
// a failed call's dependents are marked failed without execution and
// unrelated branches proceed.
func (d *Dispatcher) Execute(ctx context.Context, plan *ExecutionPlan) (map[string]ToolResult, error) {
	waves, err := plan.waves()
	if err != nil {
		return nil, err
	}

	results := make(map[string]ToolResult, plan.Len())
	failed := make(map[string]bool)
	var firstErr error
	stop := false

	for _, wave := range waves {
		if stop {
			break
		}

		runnable := make([]*ToolCall, 0, len(wave))
		for _, idx := range wave {
			call := plan.calls[idx]
			if dep := failedDependency(call, failed); dep != "" {
				call.Status = ToolFailed
				call.Error = fmt.Sprintf("skipped: dependency %s failed", dep)
				failed[call.ID] = true
				results[call.ID] = ToolResult{
					CallID:  call.ID,
					Content: call.Error,
					IsError: true,
					Skipped: true,
				}
				continue
			}
			runnable = append(runnable, call)
		}
		if len(runnable) == 0 {
			continue
		}

		waveResults := make([]ToolResult, len(runnable))
		g := &errgroup.Group{}
		g.SetLimit(d.maxConcurrent)
		for slot, call := range runnable {
			slot, call := slot, call
			call.Status = ToolRunning
			g.Go(func() error {
				waveResults[slot] = d.runCall(ctx, call)
				return nil
			})
		}

		done := make(chan struct{})
		go func() {
			// Goroutines never return errors; Wait is only a barrier here.
			_ = g.Wait()
			close(done)
		}()

		finished := true
		select {
		case <-done:
		case <-ctx.Done():
			select {
			case <-done:
			case <-time.After(d.grace):
				finished = false
			}
		}
		if !finished {
			// Grace expired with calls still running; their results are
			// discarded along with the rest of the wave.
			d.log.Warn("tool wave abandoned after cancellation grace",
				zap.Duration("grace", d.grace))
			return results, ctx.Err()
		}

		for _, res := range waveResults {
			results[res.CallID] = res
			if !res.IsError {
				continue
			}
			call := plan.Get(res.CallID)
			failed[call.ID] = true
			if firstErr == nil {
				firstErr = &ToolExecutionError{CallID: call.ID, Name: call.Name, Message: res.Content}
			}
			if !call.ContinueOnError && !plan.ContinueOnError {
				stop = true
			}
		}

		if ctx.Err() != nil {
			return results, ctx.Err()
		}
	}

	if stop {
		return results, firstErr
	}
	return results, nil
}

// runCall executes a single tool call and records outcome on the call.
func (d *Dispatcher) runCall(ctx context.Context, call *ToolCall) ToolResult {
	if d.emitter != nil {
		d.emitter.Emit(EventToolCallStart, map[string]interface{}{
			"call_id": call.ID,
			"name":    call.Name,
		})
	}

	exec := d.registry.Get(call.Name)
	if exec == nil {
		call.Status = ToolFailed
		call.Error = fmt.Sprintf("unknown tool: %s", call.Name)
		d.emitEnd(call, "", call.Error)
		return ToolResult{CallID: call.ID, Content: call.Error, IsError: true}
	}

	output, err := exec(ctx, call.Arguments)
	if err != nil {
		call.Status = ToolFailed
		call.Error = err.Error()
		d.emitEnd(call, "", call.Error)
		return ToolResult{CallID: call.ID, Content: err.Error(), IsError: true}
	}

	call.Status = ToolDone
	call.Result = output
	d.emitEnd(call, output, "")
	return ToolResult{CallID: call.ID, Content: output}
}

func (d *Dispatcher) emitEnd(call *ToolCall, output, errMsg string) {
	if d.emitter == nil {
		return
	}
	data := map[string]interface{}{
		"call_id": call.ID,
		"name":    call.Name,
	}
	if errMsg != "" {
		data["error"] = errMsg
	} else {
		data["output"] = output
	}
	d.emitter.Emit(EventToolCallEnd, data)
}

// failedDependency returns the id of the first failed dependency of call, or
// "" when all dependencies are done.
func failedDependency(call *ToolCall, failed map[string]bool) string {
	for _, dep := range call.DependsOn {
		if failed[dep] {
			return dep
		}
	}
	return ""
}
