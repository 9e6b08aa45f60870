package chat

import "testing"

func TestCheckToolPairingValid(t *testing.T) {
	msgs := []Message{
		SystemMessage("sys"),
		UserMessage("question"),
		AssistantMessage("", []ToolCall{
			{ID: "c1", Name: "search_knowledge_base"},
			{ID: "c2", Name: "list_sources"},
		}),
		ToolResult("c1", "search_knowledge_base", "results"),
		ToolResult("c2", "list_sources", "sources"),
		AssistantMessage("final answer", nil),
	}
	if err := CheckToolPairing(msgs); err != nil {
		t.Fatalf("expected valid transcript, got %v", err)
	}
}

func TestCheckToolPairingNoTools(t *testing.T) {
	msgs := []Message{
		UserMessage("hi"),
		AssistantMessage("hello", nil),
	}
	if err := CheckToolPairing(msgs); err != nil {
		t.Fatalf("expected valid transcript, got %v", err)
	}
}

func TestCheckToolPairingUnansweredCall(t *testing.T) {
	msgs := []Message{
		AssistantMessage("", []ToolCall{{ID: "c1", Name: "search_knowledge_base"}}),
		AssistantMessage("answer without result", nil),
	}
	if err := CheckToolPairing(msgs); err == nil {
		t.Fatal("expected error for unanswered tool call before next assistant message")
	}
}

func TestCheckToolPairingDanglingAtEnd(t *testing.T) {
	msgs := []Message{
		AssistantMessage("", []ToolCall{{ID: "c1", Name: "search_knowledge_base"}}),
	}
	if err := CheckToolPairing(msgs); err == nil {
		t.Fatal("expected error for tool call never answered")
	}
}

func TestCheckToolPairingOrphanResult(t *testing.T) {
	msgs := []Message{
		UserMessage("hi"),
		ToolResult("c9", "search_knowledge_base", "results"),
	}
	if err := CheckToolPairing(msgs); err == nil {
		t.Fatal("expected error for tool result without preceding call")
	}
}

func TestCheckToolPairingOutOfOrder(t *testing.T) {
	msgs := []Message{
		AssistantMessage("", []ToolCall{
			{ID: "c1", Name: "search_knowledge_base"},
			{ID: "c2", Name: "list_sources"},
		}),
		ToolResult("c2", "list_sources", "sources"),
		ToolResult("c1", "search_knowledge_base", "results"),
	}
	if err := CheckToolPairing(msgs); err == nil {
		t.Fatal("expected error for out-of-order tool results")
	}
}

func TestCheckToolPairingEmptyCallID(t *testing.T) {
	msgs := []Message{
		AssistantMessage("", []ToolCall{{ID: "", Name: "search_knowledge_base"}}),
	}
	if err := CheckToolPairing(msgs); err == nil {
		t.Fatal("expected error for empty call id")
	}
}

func TestCheckToolPairingDuplicateCallID(t *testing.T) {
	msgs := []Message{
		AssistantMessage("", []ToolCall{
			{ID: "c1", Name: "search_knowledge_base"},
			{ID: "c1", Name: "list_sources"},
		}),
	}
	if err := CheckToolPairing(msgs); err == nil {
		t.Fatal("expected error for duplicate call id")
	}
}
