package runloop

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Phase is the orchestrator's current position in the per-request state
// machine.
type Phase string

const (
	PhaseIdle             Phase = "idle"
	PhaseLoadContext      Phase = "load_context"
	PhaseGatherContext    Phase = "gather_context"
	PhaseTakeAction       Phase = "take_action"
	PhaseGenerateResponse Phase = "generate_response"
	PhaseVerify           Phase = "verify"
	PhaseRefine           Phase = "refine"
	PhaseDone             Phase = "done"
	PhaseFailed           Phase = "failed"
)

// Collaborators bundles the external services a Loop consumes. Generator is
// required; the rest are optional and their absence degrades the matching
// feature (no context loading without Embedder and Searcher, no verification
// without Judge, keyword-only notes without Extractor, direct responses
// without Router).
type Collaborators struct {
	Generator Generator
	Embedder  Embedder
	Searcher  Searcher
	Router    Router
	Judge     Judge
	Extractor StructuredExtractor

	// Loader optionally supplies a prebuilt context loader so several loops
	// share one retrieval cache. When nil, NewLoop builds a private loader
	// from Embedder and Searcher.
	Loader *ContextLoader
}

// Request is one user turn submitted to the loop.
type Request struct {
	ID      string `json:"id,omitempty"` // assigned when empty
	Message string `json:"message"`
}

// Result is the terminal output of a run. The caller always receives either
// a Result, possibly degraded, or a single structural error.
type Result struct {
	ResponseText string             `json:"response_text"`
	Notes        []ExtractedNote    `json:"notes,omitempty"`
	Verification VerificationResult `json:"verification"`
	AttemptsUsed int                `json:"attempts_used"`
	Degraded     bool               `json:"degraded"`
}

// Loop drives one conversation through the execution cycle: load context,
// compact history, route, dispatch tools, then generate, verify, and refine
// a response under the attempt cap. Conversation state persists across Run
// calls; at most one Run is in flight at a time.
type Loop struct {
	cfg     Config
	log     *zap.Logger
	collab  Collaborators
	counter *TokenCounter

	loader     *ContextLoader
	compactor  *Compactor
	dispatcher *Dispatcher
	notes      *NoteExtractor
	refiner    *RefinementController
	emitter    *EventEmitter

	runMu sync.Mutex // serializes Run

	mu     sync.Mutex
	phase  Phase
	state  *ConversationState
	cancel context.CancelFunc
	reqID  string
}

// NewLoop creates a Loop from collaborators, a tool registry, and optional
// configuration (nil means defaults).
func NewLoop(collab Collaborators, registry *ToolRegistry, cfg *Config) *Loop {
	config := DefaultConfig()
	if cfg != nil {
		config = *cfg
	}
	if registry == nil {
		registry = NewToolRegistry()
	}
	log := config.logger()
	counter := NewTokenCounter()
	emitter := NewEventEmitter(64)

	l := &Loop{
		cfg:     config,
		log:     log,
		collab:  collab,
		counter: counter,
		emitter: emitter,
		phase:   PhaseIdle,
		state: NewConversationState(
			config.CompactionThreshold,
			config.TargetAfterCompaction,
			config.RecentMessageCount,
		),
		compactor:  NewCompactor(collab.Generator, counter, log),
		dispatcher: NewDispatcher(registry, config.MaxConcurrentTools, config.CancelGrace, emitter, log),
		notes:      NewNoteExtractor(collab.Extractor, log),
	}
	switch {
	case collab.Loader != nil:
		l.loader = collab.Loader
	case collab.Embedder != nil && collab.Searcher != nil:
		l.loader = NewContextLoader(collab.Embedder, collab.Searcher, config.SearchTopK, config.CacheCapacity, log)
	}
	verifier := NewVerifier(collab.Judge, config.QualityThreshold, config.VerifyFailClosed, log)
	l.refiner = NewRefinementController(collab.Generator, verifier, config.MaxAttempts, emitter, log)
	l.refiner.transition = l.setPhase
	return l
}

// Run executes one request through the state machine and returns its
// terminal output. Only structural failures (a cyclic tool plan) and
// cancellation produce an error; collaborator outages degrade in place.
func (l *Loop) Run(ctx context.Context, req Request) (*Result, error) {
	if l.collab.Generator == nil {
		return nil, fmt.Errorf("run loop: no generator configured")
	}
	l.runMu.Lock()
	defer l.runMu.Unlock()

	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	l.mu.Lock()
	l.cancel = cancel
	l.reqID = req.ID
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.cancel = nil
		l.mu.Unlock()
	}()

	l.emitter.SetRequestID(req.ID)
	l.log.Info("run started",
		zap.String("request_id", req.ID))

	// LoadContext. A pass-through when loading is disabled or no search
	// collaborators were provided.
	l.setPhase(PhaseLoadContext)
	var chunks []ContextChunk
	if l.cfg.EnableContextLoading && l.loader != nil {
		chunks = l.loader.Load(ctx, req.Message, l.cfg.ContextTokenBudget)
		l.emitter.Emit(EventContextLoaded, map[string]interface{}{
			"chunks": len(chunks),
		})
	}
	if err := l.checkCancel(ctx); err != nil {
		return nil, err
	}

	// GatherContext: append the user turn and compact if over threshold.
	l.setPhase(PhaseGatherContext)
	turnStart := l.state.Len()
	l.appendMessage(NewMessage(RoleUser, req.Message, l.counter))
	lenBefore, tokensBefore := l.state.Len(), l.state.TotalTokens
	l.replaceState(l.compactor.Compact(ctx, l.state))
	if l.state.Len() != lenBefore {
		l.emitter.Emit(EventCompaction, map[string]interface{}{
			"tokens_before": tokensBefore,
			"tokens_after":  l.state.TotalTokens,
		})
		turnStart = l.state.Len() - 1
	}
	if err := l.checkCancel(ctx); err != nil {
		return nil, err
	}

	// TakeAction: route, then dispatch tools when asked for.
	l.setPhase(PhaseTakeAction)
	decision := l.route(ctx, req.Message, chunks)
	if decision.Action == ActionUseTools && decision.Plan != nil && decision.Plan.Len() > 0 {
		if err := l.runTools(ctx, decision.Plan); err != nil {
			l.fail(req.ID, err)
			return nil, err
		}
	}
	if err := l.checkCancel(ctx); err != nil {
		return nil, err
	}

	// GenerateResponse through Verify and Refine, driven by the controller.
	contextText := judgeContext(chunks, l.state)
	messages := l.state.Messages
	if decision.Action == ActionClarify {
		// Steer generation without persisting the directive in the history.
		messages = append(cloneMessages(messages), NewMessage(RoleSystem,
			"The request is ambiguous. Ask one concise clarifying question instead of answering.",
			l.counter))
	}
	text, verification, attempts, degraded, err := l.refiner.Produce(ctx, messages, contextText)
	if err != nil {
		l.fail(req.ID, err)
		return nil, err
	}
	l.appendMessage(NewMessage(RoleAssistant, text, l.counter))

	// Notes are extracted from this turn only, independent of verification.
	notes := l.notes.Extract(ctx, l.state.Messages[turnStart:])

	l.setPhase(PhaseDone)
	l.emitter.Emit(EventLoopDone, map[string]interface{}{
		"attempts": attempts,
		"degraded": degraded,
	})
	l.log.Info("run finished",
		zap.String("request_id", req.ID),
		zap.Int("attempts", attempts),
		zap.Bool("degraded", degraded))

	return &Result{
		ResponseText: text,
		Notes:        notes,
		Verification: verification,
		AttemptsUsed: attempts,
		Degraded:     degraded,
	}, nil
}

// route consults the routing collaborator. Any routing failure falls back to
// a direct response so a broken router never blocks the turn.
func (l *Loop) route(ctx context.Context, message string, chunks []ContextChunk) RouteDecision {
	if l.collab.Router == nil {
		return RouteDecision{Action: ActionRespond}
	}
	decision, err := l.collab.Router.Route(ctx, message, chunks)
	if err != nil {
		l.log.Warn("routing failed, responding directly",
			zap.String("phase", string(l.Phase())),
			zap.Error(err))
		return RouteDecision{Action: ActionRespond}
	}
	if decision.Action == "" {
		decision.Action = ActionRespond
	}
	return decision
}

// runTools executes the plan and appends each outcome to the conversation as
// a tool message. Structural plan errors and cancellation abort the run;
// individual tool failures are recorded in the transcript and the turn
// continues.
func (l *Loop) runTools(ctx context.Context, plan *ExecutionPlan) error {
	results, err := l.dispatcher.Execute(ctx, plan)
	if err != nil {
		if IsStructural(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.log.Warn("tool plan finished with failures",
			zap.String("phase", string(l.Phase())),
			zap.Error(err))
	}

	// Transcript order follows plan insertion order, not completion order.
	for _, call := range plan.Calls() {
		res, ok := results[call.ID]
		if !ok {
			continue
		}
		content := fmt.Sprintf("[%s] %s", call.Name, res.Content)
		if res.IsError {
			content = fmt.Sprintf("[%s] error: %s", call.Name, res.Content)
		}
		l.appendMessage(NewMessage(RoleTool, content, l.counter))
	}
	return nil
}

func (l *Loop) checkCancel(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		l.mu.Lock()
		id := l.reqID
		l.mu.Unlock()
		l.fail(id, err)
		return err
	}
	return nil
}

func (l *Loop) fail(requestID string, err error) {
	l.setPhase(PhaseFailed)
	l.emitter.Emit(EventLoopFailed, map[string]interface{}{
		"error": err.Error(),
	})
	l.log.Error("run failed",
		zap.String("request_id", requestID),
		zap.String("phase", string(PhaseFailed)),
		zap.Error(err))
}

// Cancel aborts the in-flight run, if any. In-flight tool calls get the
// configured grace period before their results are discarded.
func (l *Loop) Cancel() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
	}
}

// Phase returns the orchestrator's current phase.
func (l *Loop) Phase() Phase {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.phase
}

// State returns a copy of the conversation state.
func (l *Loop) State() *ConversationState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Clone()
}

// CacheStats reports context cache statistics, zero-valued when context
// loading is disabled.
func (l *Loop) CacheStats() CacheStats {
	if l.loader == nil {
		return CacheStats{}
	}
	return l.loader.CacheStats()
}

// Events exposes the loop's event stream.
func (l *Loop) Events() <-chan LoopEvent {
	return l.emitter.Events()
}

// Close releases the loop's event resources. The loop must not be used
// after Close.
func (l *Loop) Close() {
	l.emitter.Close()
}

// Run is the only writer of l.state, but State may clone it from another
// goroutine at any time, so every mutation goes through these two helpers
// and takes mu. Plain reads inside Run do not race with the read-only
// accessors and stay lock-free.

func (l *Loop) appendMessage(msg Message) {
	l.mu.Lock()
	l.state.Append(msg)
	l.mu.Unlock()
}

func (l *Loop) replaceState(s *ConversationState) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

func (l *Loop) setPhase(p Phase) {
	l.mu.Lock()
	l.phase = p
	l.mu.Unlock()
	l.emitter.Emit(EventPhaseChange, map[string]interface{}{
		"phase": string(p),
	})
}

// judgeContext assembles what the judge sees alongside each candidate: the
// loaded context chunks followed by the conversation transcript.
func judgeContext(chunks []ContextChunk, state *ConversationState) string {
	var b strings.Builder
	for _, chunk := range chunks {
		b.WriteString(chunk.Text)
		b.WriteString("\n")
	}
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	b.WriteString(state.Transcript())
	return b.String()
}
