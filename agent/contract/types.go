package contract

// ChatMessage is the serializable transcript entry shared by the completion
// driver and the suspension store. It must round-trip through JSON unchanged
// so a suspended turn can resume on a different process instance.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is a capability invocation selected by the completion service.
// Arguments is the raw JSON object emitted by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition describes one entry of the capability manifest offered to
// the completion service. Parameters is a JSON-schema object.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type OutcomeType string

const (
	// OutcomeMessage is a completed turn carrying a final reply.
	OutcomeMessage OutcomeType = "message"
	// OutcomeToolCall is a suspended turn awaiting an external capability
	// result. It is a normal exit, not a failure.
	OutcomeToolCall OutcomeType = "tool_call"
)

// Outcome is the result of one turn (or one resumed half-turn).
type Outcome struct {
	Type             OutcomeType
	Response         string
	TokensUsed       int
	PromptTokens     int
	CompletionTokens int

	// Set only for OutcomeToolCall.
	ToolName   string
	ToolParams map[string]any
	ToolCallID string
	ContextID  string
	Messages   []ChatMessage

	// Fallback marks the generic apology reply produced after retries
	// were exhausted.
	Fallback bool
}

// CompletionRequest is one round trip to the completion service.
type CompletionRequest struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Messages    []ChatMessage
	Tools       []ToolDefinition
}

// CompletionResult is the normalized completion-service response.
type CompletionResult struct {
	Content          string
	ToolCalls        []ToolCall
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
