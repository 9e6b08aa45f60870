package chat

import (
	"fmt"
	"strings"
	"testing"
)

func TestHistoryViewsStayLockstep(t *testing.T) {
	h := NewHistory(10)
	h.AddUserMessage("what is X?")
	h.AddAssistantMessage("X is a thing.", "note: this answer used 2 tool call(s)")
	h.AddUserMessage("and Y?")
	h.AddAssistantMessage("Y too.", "")

	model := h.ModelView()
	display := h.DisplayView()
	if len(model) != len(display) {
		t.Fatalf("views diverged: model %d, display %d", len(model), len(display))
	}
	for i := range model {
		if model[i].Role != display[i].Role {
			t.Errorf("role mismatch at %d: %s vs %s", i, model[i].Role, display[i].Role)
		}
	}
}

func TestHistoryToolNoteOnlyInModelView(t *testing.T) {
	h := NewHistory(10)
	h.AddUserMessage("question")
	h.AddAssistantMessage("answer", "note: used tools")

	model := h.ModelView()
	display := h.DisplayView()

	if !strings.Contains(model[1].Content, "[note: used tools]") {
		t.Errorf("model view missing annotation: %q", model[1].Content)
	}
	if display[1].Content != "answer" {
		t.Errorf("display view should be clean, got %q", display[1].Content)
	}
}

func TestHistoryEmptyNoteNotAnnotated(t *testing.T) {
	h := NewHistory(10)
	h.AddUserMessage("question")
	h.AddAssistantMessage("answer", "")

	if got := h.ModelView()[1].Content; got != "answer" {
		t.Fatalf("expected no annotation for empty note, got %q", got)
	}
}

func TestHistoryWindowTruncation(t *testing.T) {
	h := NewHistory(3)
	for i := 1; i <= 5; i++ {
		h.AddUserMessage(fmt.Sprintf("q%d", i))
		h.AddAssistantMessage(fmt.Sprintf("a%d", i), "")
	}

	if h.Len() != 6 {
		t.Fatalf("expected 3 exchanges (6 messages), got %d messages", h.Len())
	}

	model := h.ModelView()
	if model[0].Content != "q3" {
		t.Errorf("expected oldest surviving message q3, got %q", model[0].Content)
	}
	if model[len(model)-1].Content != "a5" {
		t.Errorf("expected newest message a5, got %q", model[len(model)-1].Content)
	}

	display := h.DisplayView()
	if len(display) != len(model) {
		t.Errorf("truncation broke lockstep: model %d, display %d", len(model), len(display))
	}
}

func TestHistoryViewsAreCopies(t *testing.T) {
	h := NewHistory(10)
	h.AddUserMessage("original")

	view := h.ModelView()
	view[0].Content = "mutated"

	if h.ModelView()[0].Content != "original" {
		t.Fatal("ModelView exposed internal slice")
	}
}

func TestHistoryDefaultWindow(t *testing.T) {
	h := NewHistory(0)
	for i := 0; i < DefaultWindow+5; i++ {
		h.AddUserMessage("q")
		h.AddAssistantMessage("a", "")
	}
	if h.Len() != DefaultWindow*2 {
		t.Fatalf("expected %d messages, got %d", DefaultWindow*2, h.Len())
	}
}

func TestHistoryClear(t *testing.T) {
	h := NewHistory(10)
	h.AddUserMessage("q")
	h.AddAssistantMessage("a", "n")
	h.Clear()
	if h.Len() != 0 {
		t.Fatalf("expected empty history, got %d", h.Len())
	}
}
