package models

import (
	"encoding/hex"
	"encoding/json"

	"github.com/google/uuid"
)

// Object types emitted on the wire.
const (
	ObjectChatCompletion      = "chat.completion"
	ObjectChatCompletionChunk = "chat.completion.chunk"
	ObjectModel               = "model"
	ObjectList                = "list"
)

// Finish reasons the gateway is allowed to emit.
const (
	FinishReasonStop          = "stop"
	FinishReasonLength        = "length"
	FinishReasonToolCalls     = "tool_calls"
	FinishReasonContentFilter = "content_filter"
)

// ChatMessage is a single message in OpenAI chat format. Content may be
// empty on tool-invocation turns, where ToolCalls carries the payload.
type ChatMessage struct {
	Role       string     `json:"role" binding:"required,oneof=system user assistant tool"`
	Content    string     `json:"content,omitempty"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall describes one tool invocation requested by the assistant.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function ToolFunction `json:"function"`
}

// ToolFunction is the function half of a tool call.
type ToolFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
}

// StopSequences accepts either a single string or a list of strings on the
// wire and always normalizes to a list internally.
type StopSequences []string

func (s *StopSequences) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*s = StopSequences{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*s = StopSequences(many)
	return nil
}

// ChatCompletionRequest is an incoming OpenAI-compatible completion request.
// Range constraints are enforced by gin binding before the request reaches
// the orchestrator.
type ChatCompletionRequest struct {
	Model    string        `json:"model" binding:"required"`
	Messages []ChatMessage `json:"messages" binding:"required,dive"`

	MaxTokens         int      `json:"max_tokens,omitempty" binding:"omitempty,gte=1,lte=131072"`
	Temperature       *float32 `json:"temperature,omitempty" binding:"omitempty,gte=0,lte=2"`
	TopP              *float32 `json:"top_p,omitempty" binding:"omitempty,gte=0,lte=1"`
	TopK              int      `json:"top_k,omitempty" binding:"omitempty,gte=1"`
	FrequencyPenalty  *float32 `json:"frequency_penalty,omitempty" binding:"omitempty,gte=-2,lte=2"`
	PresencePenalty   *float32 `json:"presence_penalty,omitempty" binding:"omitempty,gte=-2,lte=2"`
	RepetitionPenalty *float32 `json:"repetition_penalty,omitempty" binding:"omitempty,gte=0"`

	Stop   StopSequences `json:"stop,omitempty"`
	Stream bool          `json:"stream,omitempty"`
	User   string        `json:"user,omitempty"`
}

// Usage reports token accounting for one completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletionChoice is a single completion choice.
type ChatCompletionChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// ChatCompletionResponse is the non-streaming completion response.
type ChatCompletionResponse struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model"`
	Choices []ChatCompletionChoice `json:"choices"`
	Usage   Usage                  `json:"usage"`
}

// DeltaMessage is the incremental payload of one streamed chunk.
type DeltaMessage struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// StreamChoice is a single choice within a streamed chunk. FinishReason is
// nil on every frame except the terminal one.
type StreamChoice struct {
	Index        int          `json:"index"`
	Delta        DeltaMessage `json:"delta"`
	FinishReason *string      `json:"finish_reason"`
}

// ChatCompletionChunk is one frame of a streamed completion. Every chunk of
// one request shares the same ID and Created timestamp.
type ChatCompletionChunk struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []StreamChoice `json:"choices"`
}

// ModelPricing holds per-token prices as decimal strings.
type ModelPricing struct {
	Prompt     string `json:"prompt"`
	Completion string `json:"completion"`
}

// ModelInfo is the model-discovery record served by /api/v1/models.
type ModelInfo struct {
	ID                string       `json:"id"`
	Object            string       `json:"object"`
	Created           int64        `json:"created"`
	OwnedBy           string       `json:"owned_by"`
	Name              string       `json:"name"`
	ContextLength     int          `json:"context_length"`
	Pricing           ModelPricing `json:"pricing"`
	Quantization      string       `json:"quantization"`
	SupportedFeatures []string     `json:"supported_features"`
}

// ModelList wraps the model records for the discovery endpoint.
type ModelList struct {
	Object string      `json:"object"`
	Data   []ModelInfo `json:"data"`
}

// ErrorDetail is the inner error object of the uniform error envelope.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

// ErrorResponse is the envelope returned on every failure path.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// HealthStatus is the payload of GET /health.
type HealthStatus struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	TotalRequests int64   `json:"total_requests"`
	ErrorRate     float64 `json:"error_rate"`
	VLLMConnected bool    `json:"vllm_connected"`
}

// NewRequestID mints a fresh correlation id in the form
// "chatcmpl-" followed by 24 lowercase hex characters.
func NewRequestID() string {
	u := uuid.New()
	return "chatcmpl-" + hex.EncodeToString(u[:])[:24]
}

// LastUserMessage returns the content of the most recent user message, or
// the empty string if there is none.
func LastUserMessage(messages []ChatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}
