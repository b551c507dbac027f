package planner

import (
	"errors"
	"testing"

	"screenpilot/internal/domain"
)

func TestExtractObjectFromProse(t *testing.T) {
	text := "Sure, here is the plan:\n```json\n{\"reasoning\":\"open app\",\"steps\":[]}\n```\nLet me know."
	raw, err := ExtractObject(text)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if string(raw) != `{"reasoning":"open app","steps":[]}` {
		t.Fatalf("unexpected object: %s", raw)
	}
}

func TestExtractObjectHandlesBracesInStrings(t *testing.T) {
	text := `prefix {"description":"click the { button","n":1} suffix`
	raw, err := ExtractObject(text)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if string(raw) != `{"description":"click the { button","n":1}` {
		t.Fatalf("unexpected object: %s", raw)
	}
}

func TestExtractObjectHandlesEscapedQuotes(t *testing.T) {
	text := `{"description":"type \"hello\" into the box"}`
	raw, err := ExtractObject(text)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if string(raw) != text {
		t.Fatalf("unexpected object: %s", raw)
	}
}

func TestExtractObjectNoJSON(t *testing.T) {
	if _, err := ExtractObject("no structured content here"); !errors.Is(err, ErrNoJSON) {
		t.Fatalf("expected ErrNoJSON, got %v", err)
	}
}

func TestExtractObjectUnbalanced(t *testing.T) {
	if _, err := ExtractObject(`{"steps":[`); !errors.Is(err, ErrNoJSON) {
		t.Fatalf("expected ErrNoJSON for unbalanced object, got %v", err)
	}
}

func TestDecodePlanDraft(t *testing.T) {
	reply := `Plan below.
{"reasoning":"two steps","steps":[
  {"type":"click","description":"Click compose","requiresConfirmation":false,"isIrreversible":false},
  {"type":"type","description":"Type the subject","parameters":{"text":"hi"},"requiresConfirmation":false,"isIrreversible":false}
]}`
	var draft domain.PlanDraft
	if err := Decode(reply, &draft); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if draft.Reasoning != "two steps" || len(draft.Steps) != 2 {
		t.Fatalf("unexpected draft: %+v", draft)
	}
	if draft.Steps[1].Parameters["text"] != "hi" {
		t.Fatalf("parameters lost: %+v", draft.Steps[1])
	}
}
