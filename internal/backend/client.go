package backend

import (
	"context"
	"time"

	"github.com/CyberBerto/inference-server-mvp/internal/models"
)

// Client is the contract shared by the real vLLM client and the simulated
// client. The orchestrator only ever holds this interface.
type Client interface {
	// IsHealthy probes backend liveness with a short timeout. It never
	// returns an error; any transport failure reads as false.
	IsHealthy(ctx context.Context) bool

	// Generate performs one blocking completion call.
	Generate(ctx context.Context, p Params) (*Reply, error)

	// GenerateStream starts a streaming completion. The returned channel
	// is finite and single-consumption: the first fragment announces the
	// assistant role, interior fragments carry text deltas, and the last
	// fragment carries a finish reason or an error. Cancelling ctx stops
	// production and releases the underlying connection.
	GenerateStream(ctx context.Context, p Params) (<-chan Fragment, error)

	// Close releases the client's resources. Safe to call multiple times.
	Close() error
}

// Config holds the connection settings for the real client.
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
	HealthTimeout  time.Duration
}

// Params are the generation parameters forwarded to the backend. Defaults
// have already been resolved by the orchestrator, so every field is
// meaningful as-is: a zero Temperature or TopP asks for greedy sampling,
// not for the backend's default.
type Params struct {
	Model            string
	Messages         []models.ChatMessage
	MaxTokens        int
	Temperature      float32
	TopP             float32
	FrequencyPenalty float32
	PresencePenalty  float32
	Stop             []string
}

// Reply is the backend's answer to a single-shot generation.
type Reply struct {
	Content          string
	FinishReason     string
	PromptTokens     int
	CompletionTokens int
}

// Fragment is one incremental unit of streamed output. Exactly one of the
// field groups is populated: Role on the opening fragment, Content on
// interior fragments, FinishReason on the terminal fragment, Err when the
// stream ended abnormally.
type Fragment struct {
	Role         string
	Content      string
	FinishReason string
	Err          error
}
