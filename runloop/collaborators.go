package runloop

import "context"

// The loop consumes its external services through narrow single-method
// interfaces so hosts can inject any implementation. The llmcollab package
// provides gollm-backed ones.

// Generator produces a response for a message history. Instructions, when
// non-empty, steer the generation (refinement feedback, summarization).
type Generator interface {
	Generate(ctx context.Context, messages []Message, instructions string) (string, error)
}

// Embedder converts text into an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher returns the topK context chunks most similar to the query vector,
// ranked by relevance.
type Searcher interface {
	Search(ctx context.Context, vector []float32, topK int) ([]ContextChunk, error)
}

// RouteAction is the routing decision for a user message.
type RouteAction string

const (
	ActionUseTools RouteAction = "use_tools"
	ActionRespond  RouteAction = "respond"
	ActionClarify  RouteAction = "clarify"
)

// RouteDecision is the outcome of routing a message. When Action is
// ActionUseTools, Plan carries the tool calls to execute.
type RouteDecision struct {
	Action     RouteAction `json:"action"`
	Confidence float64     `json:"confidence"`
	ToolName   string      `json:"tool_name,omitempty"`

	Plan *ExecutionPlan `json:"-"`
}

// Router decides whether a message needs tool calls, a direct response, or a
// clarifying question.
type Router interface {
	Route(ctx context.Context, message string, chunks []ContextChunk) (RouteDecision, error)
}

// Judgment is the raw output of a judging collaborator.
type Judgment struct {
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
}

// Judge scores a candidate response against the context it was produced in.
type Judge interface {
	Judge(ctx context.Context, response, contextText string) (Judgment, error)
}

// StructuredExtractor derives categorized notes from turn text.
type StructuredExtractor interface {
	ExtractStructured(ctx context.Context, text string) ([]ExtractedNote, error)
}
