package runloop

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// ToolStatus is the lifecycle state of a tool call within a plan.
type ToolStatus string

const (
	ToolPending ToolStatus = "pending"
	ToolRunning ToolStatus = "running"
	ToolDone    ToolStatus = "done"
	ToolFailed  ToolStatus = "failed"
)

// ToolCall is one requested tool invocation. Created by the routing decision,
// mutated only by the Dispatcher, discarded when the loop iteration ends.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	DependsOn []string        `json:"depends_on,omitempty"`
	Status    ToolStatus      `json:"status"`

	// ContinueOnError requests that this call's failure not stop the run;
	// its dependents are skipped but unrelated branches proceed.
	ContinueOnError bool `json:"continue_on_error,omitempty"`

	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// NewToolCall creates a pending tool call with a fresh id.
func NewToolCall(name string, args json.RawMessage, dependsOn ...string) ToolCall {
	return ToolCall{
		ID:        uuid.New().String(),
		Name:      name,
		Arguments: args,
		DependsOn: dependsOn,
		Status:    ToolPending,
	}
}

// ToolResult is the dispatcher's output for one call, keyed by call id so
// result order never depends on scheduling.
type ToolResult struct {
	CallID  string `json:"call_id"`
	Content string `json:"content"`
	IsError bool   `json:"is_error"`
	Skipped bool   `json:"skipped,omitempty"` // dependency failed; never executed
}

// ExecutionPlan is a directed graph of tool calls keyed by id, built fresh
// per request. It must be acyclic to execute.
type ExecutionPlan struct {
	calls []*ToolCall
	index map[string]int

	// ContinueOnError switches the whole plan from the fail-fast default to
	// continue-on-error for this invocation.
	ContinueOnError bool
}

// NewExecutionPlan creates an empty plan.
func NewExecutionPlan() *ExecutionPlan {
	return &ExecutionPlan{index: make(map[string]int)}
}

// Add inserts a call into the plan. Ids must be unique; dependencies are
// validated when the plan is layered into waves, so calls may be added in any
// order.
func (p *ExecutionPlan) Add(call ToolCall) error {
	if _, ok := p.index[call.ID]; ok {
		return &DuplicateCallError{CallID: call.ID}
	}
	if call.Status == "" {
		call.Status = ToolPending
	}
	p.index[call.ID] = len(p.calls)
	p.calls = append(p.calls, &call)
	return nil
}

// Len returns the number of calls in the plan.
func (p *ExecutionPlan) Len() int { return len(p.calls) }

// Get returns the call with the given id, or nil.
func (p *ExecutionPlan) Get(id string) *ToolCall {
	i, ok := p.index[id]
	if !ok {
		return nil
	}
	return p.calls[i]
}

// Calls returns the plan's calls in insertion order.
func (p *ExecutionPlan) Calls() []*ToolCall { return p.calls }

// waves layers the plan into dependency waves via Kahn's algorithm over an
// integer-indexed adjacency list. Every call in wave i depends only on calls
// in waves < i. Returns a structural error if a dependency is unknown or a
// cycle leaves nodes unordered; in that case nothing may execute.
func (p *ExecutionPlan) waves() ([][]int, error) {
	n := len(p.calls)
	indegree := make([]int, n)
	dependents := make([][]int, n)

	for i, call := range p.calls {
		for _, dep := range call.DependsOn {
			j, ok := p.index[dep]
			if !ok {
				return nil, &UnknownDependencyError{CallID: call.ID, Dependency: dep}
			}
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	var result [][]int
	ready := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}

	ordered := 0
	for len(ready) > 0 {
		wave := ready
		result = append(result, wave)
		ordered += len(wave)

		ready = nil
		for _, i := range wave {
			for _, j := range dependents[i] {
				indegree[j]--
				if indegree[j] == 0 {
					ready = append(ready, j)
				}
			}
		}
	}

	if ordered < n {
		var remaining []string
		for i := 0; i < n; i++ {
			if indegree[i] > 0 {
				remaining = append(remaining, p.calls[i].ID)
			}
		}
		return nil, &CycleError{Remaining: remaining}
	}
	return result, nil
}

// ToolExecutor runs one tool invocation. Executors must honor ctx
// cancellation; after a request is cancelled they get a bounded grace period
// before their results are discarded.
type ToolExecutor func(ctx context.Context, args json.RawMessage) (string, error)

// ToolRegistry manages tool registration and lookup.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]ToolExecutor
}

// NewToolRegistry creates an empty ToolRegistry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]ToolExecutor)}
}

// Register adds or replaces a tool in the registry.
func (r *ToolRegistry) Register(name string, exec ToolExecutor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = exec
}

// Unregister removes a tool from the registry.
func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns the executor for name, or nil if not registered.
func (r *ToolRegistry) Get(name string) ToolExecutor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Names returns the names of all registered tools.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Count returns the number of registered tools.
func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
