package schema

import "encoding/json"

// Conversation roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall represents one function call in an assistant message.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToWireMap serialises a ToolCall into the OpenAI wire-format map.
// Used by provider implementations when building the JSON request body.
func (tc ToolCall) ToWireMap() map[string]any {
	argsJSON, _ := json.Marshal(tc.Arguments)
	return map[string]any{
		"id":   tc.ID,
		"type": "function",
		"function": map[string]any{
			"name":      tc.Name,
			"arguments": string(argsJSON),
		},
	}
}

// ToolResult is the text outcome of one tool call within a round.
type ToolResult struct {
	CallID  string
	Name    string
	Text    string
	IsError bool
}

// Message is one entry in the conversation.
//
// Role is one of: "user", "assistant", "tool".
//
// Content holds the message text:
//   - user: plain string
//   - assistant: *string (nil when only tool calls are present)
//   - tool: the trailing instruction appended after all results
//
// ToolCalls is populated for assistant messages that invoke tools.
// ToolResults is populated for the single tool turn that answers them.
type Message struct {
	Role        string
	Content     any // string | *string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// Text returns the textual content of m regardless of its representation.
func (m Message) Text() string {
	switch c := m.Content.(type) {
	case string:
		return c
	case *string:
		if c != nil {
			return *c
		}
	}
	return ""
}

func NewUserMessage(content string) Message {
	return Message{
		Role:    RoleUser,
		Content: content,
	}
}

func NewAssistantMessage(content *string, toolCalls []ToolCall) Message {
	return Message{
		Role:      RoleAssistant,
		Content:   content,
		ToolCalls: toolCalls,
	}
}

func NewToolResultsMessage(results []ToolResult, note string) Message {
	return Message{
		Role:        RoleTool,
		Content:     note,
		ToolResults: results,
	}
}
