package llmcollab

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/martinemde/cascade/runloop"
)

const routerSystemPrompt = `You decide how an AI assistant should handle a user
message. Respond with a JSON object:
{"action": "use_tools" | "respond" | "clarify",
 "confidence": <0.0 to 1.0>,
 "tool_calls": [{"id": "<unique id>", "name": "<tool name>",
                 "arguments": {...}, "depends_on": ["<id>", ...]}]}
Use "use_tools" only when one of the available tools is needed, and only name
tools from the available list. Use "clarify" when the message is too ambiguous
to act on. Output only the JSON object.`

// Router implements runloop.Router on a Client. It grounds the routing prompt
// in the names of the registered tools so the model cannot invent tools.
type Router struct {
	client   *Client
	registry *runloop.ToolRegistry
}

// NewRouter creates a Router. registry may be nil when no tools exist, in
// which case routing always yields a direct response or clarification.
func NewRouter(client *Client, registry *runloop.ToolRegistry) *Router {
	return &Router{client: client, registry: registry}
}

// Route decides how to handle the message.
func (r *Router) Route(ctx context.Context, message string, chunks []runloop.ContextChunk) (runloop.RouteDecision, error) {
	var names []string
	if r.registry != nil {
		names = r.registry.Names()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Available tools: %s\n\n", strings.Join(names, ", "))
	if len(chunks) > 0 {
		b.WriteString("Relevant context:\n")
		for _, chunk := range chunks {
			b.WriteString(chunk.Text)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("User message:\n")
	b.WriteString(message)

	text, err := r.client.complete(ctx, routerSystemPrompt, b.String())
	if err != nil {
		return runloop.RouteDecision{}, err
	}
	return parseRoute(text)
}

// routePayload is the wire shape of the routing decision.
type routePayload struct {
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
	ToolCalls  []struct {
		ID        string          `json:"id"`
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
		DependsOn []string        `json:"depends_on"`
	} `json:"tool_calls"`
}

// parseRoute extracts a RouteDecision from model output. An unknown action
// downgrades to a direct response rather than erroring; a malformed payload
// errors so the caller can apply its own fallback.
func parseRoute(text string) (runloop.RouteDecision, error) {
	raw, ok := extractJSON(text)
	if !ok {
		return runloop.RouteDecision{}, &ParseError{CollabError: CollabError{
			Message: "no JSON object in router output",
		}}
	}
	var payload routePayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return runloop.RouteDecision{}, &ParseError{CollabError: CollabError{
			Message: "malformed router output", Cause: err,
		}}
	}

	decision := runloop.RouteDecision{
		Action:     runloop.RouteAction(payload.Action),
		Confidence: payload.Confidence,
	}
	switch decision.Action {
	case runloop.ActionUseTools, runloop.ActionRespond, runloop.ActionClarify:
	default:
		decision.Action = runloop.ActionRespond
		return decision, nil
	}

	if decision.Action != runloop.ActionUseTools {
		return decision, nil
	}
	if len(payload.ToolCalls) == 0 {
		decision.Action = runloop.ActionRespond
		return decision, nil
	}

	plan := runloop.NewExecutionPlan()
	for _, tc := range payload.ToolCalls {
		call := runloop.NewToolCall(tc.Name, tc.Arguments, tc.DependsOn...)
		if tc.ID != "" {
			call.ID = tc.ID
		}
		if err := plan.Add(call); err != nil {
			return runloop.RouteDecision{}, &ParseError{CollabError: CollabError{
				Message: "invalid tool plan in router output", Cause: err,
			}}
		}
	}
	decision.ToolName = payload.ToolCalls[0].Name
	decision.Plan = plan
	return decision, nil
}
