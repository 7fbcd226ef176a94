package runloop

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestNoteCategoryValid(t *testing.T) {
	for _, c := range []NoteCategory{NoteDecision, NoteRequirement, NoteFact, NoteActionItem, NoteIssue, NotePreference} {
		if !c.Valid() {
			t.Errorf("category %s should be valid", c)
		}
	}
	if NoteCategory("opinion").Valid() {
		t.Error("unknown category should be invalid")
	}
}

func TestExtractStructuredPath(t *testing.T) {
	extractor := &fakeExtractor{
		extract: func(ctx context.Context, text string) ([]ExtractedNote, error) {
			return []ExtractedNote{
				{Category: NoteDecision, Content: "We will use Postgres.", Confidence: 0.9},
				{Category: NoteCategory("vibe"), Content: "dropped for bad category", Confidence: 0.9},
				{Category: NoteFact, Content: "   ", Confidence: 0.9},
				{Category: NoteActionItem, Content: "Ship by Friday.", Confidence: 1.4},
			}, nil
		},
	}
	n := NewNoteExtractor(extractor, nil)

	notes := n.Extract(context.Background(), []Message{{Role: RoleUser, Content: "anything"}})
	if len(notes) != 2 {
		t.Fatalf("expected 2 valid notes, got %d", len(notes))
	}
	if notes[0].Category != NoteDecision {
		t.Errorf("expected decision first, got %s", notes[0].Category)
	}
	if notes[1].Confidence != 1 {
		t.Errorf("expected confidence clamped to 1, got %f", notes[1].Confidence)
	}
}

func TestExtractFallbackOnError(t *testing.T) {
	extractor := &fakeExtractor{
		extract: func(ctx context.Context, text string) ([]ExtractedNote, error) {
			return nil, errors.New("extraction service down")
		},
	}
	n := NewNoteExtractor(extractor, nil)

	messages := []Message{
		{ID: "m1", Role: RoleUser, Content: "We decided to use the staging cluster. Remember to rotate the keys."},
	}
	notes := n.Extract(context.Background(), messages)
	if len(notes) != 2 {
		t.Fatalf("expected 2 fallback notes, got %d: %+v", len(notes), notes)
	}
	for _, note := range notes {
		if note.Confidence != fallbackConfidence {
			t.Errorf("fallback note confidence %f, expected %f", note.Confidence, fallbackConfidence)
		}
		if note.SourceMessageID != "m1" {
			t.Errorf("expected source message id m1, got %s", note.SourceMessageID)
		}
	}
	if notes[0].Category != NoteDecision {
		t.Errorf("expected decision, got %s", notes[0].Category)
	}
	if notes[1].Category != NoteActionItem {
		t.Errorf("expected action_item, got %s", notes[1].Category)
	}
}

func TestExtractNilExtractorUsesKeywords(t *testing.T) {
	n := NewNoteExtractor(nil, nil)
	notes := n.Extract(context.Background(), []Message{
		{Role: RoleAssistant, Content: "I prefer tabs over spaces here."},
	})
	if len(notes) != 1 || notes[0].Category != NotePreference {
		t.Fatalf("expected 1 preference note, got %+v", notes)
	}
}

func TestExtractIgnoresNonConversationRoles(t *testing.T) {
	n := NewNoteExtractor(nil, nil)
	notes := n.Extract(context.Background(), []Message{
		{Role: RoleTool, Content: "We decided nothing, this is tool output."},
		{Role: RoleSummary, Content: "We decided things previously."},
	})
	if len(notes) != 0 {
		t.Errorf("tool and summary messages must not produce fallback notes, got %+v", notes)
	}
}

func TestExtractEmptyTurn(t *testing.T) {
	n := NewNoteExtractor(nil, nil)
	if notes := n.Extract(context.Background(), nil); notes != nil {
		t.Errorf("expected nil for empty turn, got %+v", notes)
	}
}

func TestExtractedNoteRoundTrip(t *testing.T) {
	in := ExtractedNote{Category: NoteIssue, Content: "The importer fails when the file is empty.", SourceMessageID: "m7", Confidence: 0.8}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out ExtractedNote
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("round trip mismatch: %+v vs %+v", in, out)
	}
}

func TestSplitSentences(t *testing.T) {
	parts := splitSentences("First thing. Second thing! Third?\nFourth")
	if len(parts) != 4 {
		t.Fatalf("expected 4 sentences, got %d: %v", len(parts), parts)
	}
	if parts[0] != "First thing" {
		t.Errorf("unexpected first sentence: %q", parts[0])
	}
}
