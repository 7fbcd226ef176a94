package llmcollab

import "testing"

func TestExtractJSONBareObject(t *testing.T) {
	raw, ok := extractJSON(`{"score": 0.8, "feedback": "fine"}`)
	if !ok {
		t.Fatal("expected JSON found")
	}
	if raw != `{"score": 0.8, "feedback": "fine"}` {
		t.Errorf("unexpected extraction: %q", raw)
	}
}

func TestExtractJSONWithProse(t *testing.T) {
	text := `Sure, here is my assessment: {"score": 0.8, "feedback": "fine"} Hope that helps!`
	raw, ok := extractJSON(text)
	if !ok {
		t.Fatal("expected JSON found")
	}
	if raw != `{"score": 0.8, "feedback": "fine"}` {
		t.Errorf("unexpected extraction: %q", raw)
	}
}

func TestExtractJSONWithFences(t *testing.T) {
	text := "```json\n{\"action\": \"respond\"}\n```"
	raw, ok := extractJSON(text)
	if !ok {
		t.Fatal("expected JSON found")
	}
	if raw != `{"action": "respond"}` {
		t.Errorf("unexpected extraction: %q", raw)
	}
}

func TestExtractJSONNestedAndStrings(t *testing.T) {
	text := `{"a": {"b": "contains } brace and \" quote"}, "c": [1, 2]}`
	raw, ok := extractJSON(text)
	if !ok {
		t.Fatal("expected JSON found")
	}
	if raw != text {
		t.Errorf("nested object truncated: %q", raw)
	}
}

func TestExtractJSONArray(t *testing.T) {
	text := `Here are the notes: [{"category": "fact", "content": "x"}]`
	raw, ok := extractJSON(text)
	if !ok {
		t.Fatal("expected JSON found")
	}
	if raw != `[{"category": "fact", "content": "x"}]` {
		t.Errorf("unexpected extraction: %q", raw)
	}
}

func TestExtractJSONNone(t *testing.T) {
	if _, ok := extractJSON("no structured content here"); ok {
		t.Error("expected no JSON found")
	}
}

func TestExtractJSONUnterminated(t *testing.T) {
	if _, ok := extractJSON(`{"score": 0.8`); ok {
		t.Error("expected no JSON for unterminated object")
	}
}
