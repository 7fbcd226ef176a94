package llmcollab

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/martinemde/cascade/runloop"
)

const judgeSystemPrompt = `You are a strict quality reviewer for an AI assistant.
Score the candidate response against the conversation context. Respond with a
JSON object: {"score": <0.0 to 1.0>, "feedback": "<one or two sentences on
what to improve, empty if nothing>"}. Output only the JSON object.`

// Judge implements runloop.Judge on a Client.
type Judge struct {
	client *Client
}

// NewJudge creates a Judge.
func NewJudge(client *Client) *Judge {
	return &Judge{client: client}
}

// Judge scores the response against its context.
func (j *Judge) Judge(ctx context.Context, response, contextText string) (runloop.Judgment, error) {
	prompt := fmt.Sprintf("Context:\n%s\n\nCandidate response:\n%s", contextText, response)
	text, err := j.client.complete(ctx, judgeSystemPrompt, prompt)
	if err != nil {
		return runloop.Judgment{}, err
	}
	return parseJudgment(text)
}

// parseJudgment extracts a Judgment from model output.
func parseJudgment(text string) (runloop.Judgment, error) {
	raw, ok := extractJSON(text)
	if !ok {
		return runloop.Judgment{}, &ParseError{CollabError: CollabError{
			Message: "no JSON object in judge output",
		}}
	}
	var j runloop.Judgment
	if err := json.Unmarshal([]byte(raw), &j); err != nil {
		return runloop.Judgment{}, &ParseError{CollabError: CollabError{
			Message: "malformed judge output", Cause: err,
		}}
	}
	if j.Score < 0 || j.Score > 1 {
		return runloop.Judgment{}, &ParseError{CollabError: CollabError{
			Message: fmt.Sprintf("judge score %v out of range", j.Score),
		}}
	}
	return j, nil
}
