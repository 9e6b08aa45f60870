package chat

// History is the durable cross-turn conversation memory, bounded to the
// last N user/assistant exchanges. It maintains two lockstep views: the
// model view carries tool-memory annotations on assistant messages, the
// display view does not. Both views always have the same length and order.
type History struct {
	window  int
	model   []Message
	display []Message
}

// DefaultWindow is the number of exchanges kept when no window is configured.
const DefaultWindow = 20

// NewHistory creates a history bounded to the given number of exchanges.
// A window <= 0 falls back to DefaultWindow.
func NewHistory(window int) *History {
	if window <= 0 {
		window = DefaultWindow
	}
	return &History{window: window}
}

// AddUserMessage appends a user message to both views.
func (h *History) AddUserMessage(text string) {
	h.model = append(h.model, UserMessage(text))
	h.display = append(h.display, UserMessage(text))
}

// AddAssistantMessage appends an assistant message to both views. When
// toolNote is non-empty the model view is annotated with it, preserving
// awareness of prior retrieval without re-sending full retrieved text.
func (h *History) AddAssistantMessage(text, toolNote string) {
	modelText := text
	if toolNote != "" {
		modelText = text + "\n\n[" + toolNote + "]"
	}
	h.model = append(h.model, AssistantMessage(modelText, nil))
	h.display = append(h.display, AssistantMessage(text, nil))
	h.truncate()
}

// truncate drops the oldest exchange from both views once the window is
// exceeded. An exchange is counted per user message.
func (h *History) truncate() {
	for h.exchanges() > h.window {
		cut := 1
		if len(h.model) > 1 && h.model[0].Role == RoleUser && h.model[1].Role == RoleAssistant {
			cut = 2
		}
		h.model = h.model[cut:]
		h.display = h.display[cut:]
	}
}

func (h *History) exchanges() int {
	n := 0
	for _, m := range h.model {
		if m.Role == RoleUser {
			n++
		}
	}
	return n
}

// ModelView returns a copy of the annotated view sent to the model.
func (h *History) ModelView() []Message {
	out := make([]Message, len(h.model))
	copy(out, h.model)
	return out
}

// DisplayView returns a copy of the unannotated view rendered to the user.
func (h *History) DisplayView() []Message {
	out := make([]Message, len(h.display))
	copy(out, h.display)
	return out
}

// Len returns the number of messages in each view.
func (h *History) Len() int {
	return len(h.model)
}

// Clear empties both views.
func (h *History) Clear() {
	h.model = nil
	h.display = nil
}
