package llmcollab

import (
	"context"
	"encoding/json"

	"github.com/martinemde/cascade/runloop"
)

const extractorSystemPrompt = `Extract durable notes from the conversation turn
below. Respond with a JSON array of objects:
[{"category": "decision" | "requirement" | "fact" | "action_item" | "issue" | "preference",
  "content": "<one self-contained sentence>",
  "confidence": <0.0 to 1.0>}]
Return [] if nothing is worth keeping. Do not invent information that is not
in the text. Output only the JSON array.`

// Extractor implements runloop.StructuredExtractor on a Client.
type Extractor struct {
	client *Client
}

// NewExtractor creates an Extractor.
func NewExtractor(client *Client) *Extractor {
	return &Extractor{client: client}
}

// ExtractStructured derives categorized notes from turn text. Category and
// field validation happens in the caller, which also owns the fallback path.
func (e *Extractor) ExtractStructured(ctx context.Context, text string) ([]runloop.ExtractedNote, error) {
	out, err := e.client.complete(ctx, extractorSystemPrompt, text)
	if err != nil {
		return nil, err
	}
	return parseNotes(out)
}

// parseNotes extracts a note list from model output.
func parseNotes(text string) ([]runloop.ExtractedNote, error) {
	raw, ok := extractJSON(text)
	if !ok {
		return nil, &ParseError{CollabError: CollabError{
			Message: "no JSON array in extractor output",
		}}
	}
	var notes []runloop.ExtractedNote
	if err := json.Unmarshal([]byte(raw), &notes); err != nil {
		return nil, &ParseError{CollabError: CollabError{
			Message: "malformed extractor output", Cause: err,
		}}
	}
	return notes, nil
}
