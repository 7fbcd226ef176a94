package llmcollab

import (
	"context"
	"strings"

	"github.com/martinemde/cascade/runloop"
)

// Generator implements runloop.Generator on a Client.
type Generator struct {
	client *Client
	system string
}

// NewGenerator creates a Generator. systemPrompt, when non-empty, is sent
// with every generation.
func NewGenerator(client *Client, systemPrompt string) *Generator {
	return &Generator{client: client, system: systemPrompt}
}

// Generate produces a response for the message history. instructions, when
// non-empty, are appended as steering text (refinement feedback,
// summarization directives).
func (g *Generator) Generate(ctx context.Context, messages []runloop.Message, instructions string) (string, error) {
	return g.client.complete(ctx, g.system, buildPrompt(messages, instructions))
}

// buildPrompt flattens a message history plus optional instructions into a
// single prompt. Tool outputs keep their role tag so the model can tell
// them apart from user text.
func buildPrompt(messages []runloop.Message, instructions string) string {
	var b strings.Builder
	for _, msg := range messages {
		switch msg.Role {
		case runloop.RoleUser:
			b.WriteString(msg.Content)
		case runloop.RoleAssistant:
			b.WriteString("[Assistant]: ")
			b.WriteString(msg.Content)
		case runloop.RoleTool:
			b.WriteString("[Tool Result]: ")
			b.WriteString(msg.Content)
		case runloop.RoleSummary:
			b.WriteString("[Conversation Summary]: ")
			b.WriteString(msg.Content)
		case runloop.RoleSystem:
			b.WriteString("[System]: ")
			b.WriteString(msg.Content)
		}
		b.WriteString("\n")
	}
	if instructions != "" {
		b.WriteString("\n")
		b.WriteString(instructions)
	}
	prompt := strings.TrimSpace(b.String())
	if prompt == "" {
		prompt = "Hello"
	}
	return prompt
}
