package runloop

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// NoteCategory classifies an extracted note.
type NoteCategory string

const (
	NoteDecision    NoteCategory = "decision"
	NoteRequirement NoteCategory = "requirement"
	NoteFact        NoteCategory = "fact"
	NoteActionItem  NoteCategory = "action_item"
	NoteIssue       NoteCategory = "issue"
	NotePreference  NoteCategory = "preference"
)

// Valid reports whether c is one of the known categories.
func (c NoteCategory) Valid() bool {
	switch c {
	case NoteDecision, NoteRequirement, NoteFact, NoteActionItem, NoteIssue, NotePreference:
		return true
	}
	return false
}

// ExtractedNote is a durable piece of information pulled from a conversation
// turn, suitable for persistence outside the loop.
type ExtractedNote struct {
	Category        NoteCategory `json:"category"`
	Content         string       `json:"content"`
	SourceMessageID string       `json:"source_message_id,omitempty"`
	Confidence      float64      `json:"confidence"`
}

// fallbackRules drive the keyword extractor used when structured extraction
// is unavailable. First match wins per sentence.
var fallbackRules = []struct {
	category NoteCategory
	keywords []string
}{
	{NoteDecision, []string{"decided", "we will", "going with", "agreed to", "chose"}},
	{NoteRequirement, []string{"must support", "is required", "has to", "requirement"}},
	{NoteIssue, []string{"bug", "broken", "fails when", "doesn't work", "problem with"}},
	{NoteActionItem, []string{"todo", "need to", "remember to", "follow up", "next step"}},
	{NotePreference, []string{"prefer", "rather", "like it when", "always use", "never use"}},
	{NoteFact, []string{"is called", "is located", "consists of", "runs on", "depends on"}},
}

// fallbackConfidence marks notes produced by the keyword path so downstream
// consumers can weigh them accordingly.
const fallbackConfidence = 0.4

// NoteExtractor pulls durable notes from finished turns. Extraction is
// best-effort and never blocks turn completion: structured extraction
// failures degrade to keyword matching, and an empty result is a valid
// outcome.
type NoteExtractor struct {
	extractor StructuredExtractor
	log       *zap.Logger
}

// NewNoteExtractor creates a NoteExtractor. extractor may be nil, in which
// case only the keyword fallback runs.
func NewNoteExtractor(extractor StructuredExtractor, log *zap.Logger) *NoteExtractor {
	if log == nil {
		log = zap.NewNop()
	}
	return &NoteExtractor{extractor: extractor, log: log}
}

// Extract returns the notes found in the turn's messages. It never returns
// an error: a failed or malformed structured extraction falls back to
// keyword rules, and notes with unknown categories or empty content are
// dropped rather than repaired.
func (n *NoteExtractor) Extract(ctx context.Context, messages []Message) []ExtractedNote {
	if len(messages) == 0 {
		return nil
	}

	if n.extractor != nil {
		notes, err := n.extractor.ExtractStructured(ctx, turnTranscript(messages))
		if err == nil {
			return filterNotes(notes)
		}
		n.log.Warn("structured note extraction failed, using keyword fallback",
			zap.Error(err))
	}

	return keywordNotes(messages)
}

// turnTranscript renders messages into plain text for the extractor.
func turnTranscript(messages []Message) string {
	var b strings.Builder
	for _, msg := range messages {
		b.WriteString(string(msg.Role))
		b.WriteString(": ")
		b.WriteString(msg.Content)
		b.WriteString("\n")
	}
	return b.String()
}

// filterNotes drops invalid entries from a structured extraction result.
func filterNotes(notes []ExtractedNote) []ExtractedNote {
	valid := notes[:0:0]
	for _, note := range notes {
		if !note.Category.Valid() || strings.TrimSpace(note.Content) == "" {
			continue
		}
		if note.Confidence < 0 {
			note.Confidence = 0
		}
		if note.Confidence > 1 {
			note.Confidence = 1
		}
		valid = append(valid, note)
	}
	return valid
}

// keywordNotes is the deterministic fallback extractor. It scans sentences
// for category keywords and emits low-confidence notes.
func keywordNotes(messages []Message) []ExtractedNote {
	var notes []ExtractedNote
	for _, msg := range messages {
		if msg.Role != RoleUser && msg.Role != RoleAssistant {
			continue
		}
		for _, sentence := range splitSentences(msg.Content) {
			lower := strings.ToLower(sentence)
			for _, rule := range fallbackRules {
				if !containsAny(lower, rule.keywords) {
					continue
				}
				notes = append(notes, ExtractedNote{
					Category:        rule.category,
					Content:         sentence,
					SourceMessageID: msg.ID,
					Confidence:      fallbackConfidence,
				})
				break
			}
		}
	}
	return notes
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// splitSentences is a crude splitter; good enough for keyword scanning.
func splitSentences(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})
	out := parts[:0]
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
