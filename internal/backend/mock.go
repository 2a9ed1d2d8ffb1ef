package backend

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/CyberBerto/inference-server-mvp/internal/models"
)

const mockPromptTokens = 10

// MockClient simulates the backend without any network calls. It echoes a
// bounded prefix of the last user message, which keeps test assertions
// deterministic while exercising the same translator and framer paths as
// the real client.
type MockClient struct {
	activeStreams atomic.Int32
	closed        atomic.Bool
}

// NewMockClient creates a simulated backend client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// IsHealthy always reports true.
func (c *MockClient) IsHealthy(ctx context.Context) bool {
	return true
}

// Generate echoes the last user message, truncated to 50 characters.
func (c *MockClient) Generate(ctx context.Context, p Params) (*Reply, error) {
	content := mockReplyContent(p.Messages)
	return &Reply{
		Content:          content,
		FinishReason:     models.FinishReasonStop,
		PromptTokens:     mockPromptTokens,
		CompletionTokens: len(strings.Fields(content)),
	}, nil
}

// GenerateStream yields the Generate content word by word, with the role
// announcement first and the finish marker last.
func (c *MockClient) GenerateStream(ctx context.Context, p Params) (<-chan Fragment, error) {
	reply, err := c.Generate(ctx, p)
	if err != nil {
		return nil, err
	}
	words := strings.Fields(reply.Content)

	out := make(chan Fragment)
	c.activeStreams.Add(1)
	go func() {
		defer close(out)
		defer c.activeStreams.Add(-1)

		if !emit(ctx, out, Fragment{Role: "assistant"}) {
			return
		}
		for _, word := range words {
			if !emit(ctx, out, Fragment{Content: word + " "}) {
				return
			}
		}
		emit(ctx, out, Fragment{FinishReason: models.FinishReasonStop})
	}()

	return out, nil
}

// Close marks the client closed. There is nothing to release.
func (c *MockClient) Close() error {
	c.closed.Store(true)
	return nil
}

// Closed reports whether Close has been called.
func (c *MockClient) Closed() bool {
	return c.closed.Load()
}

// ActiveStreams reports how many stream producers are still running. Tests
// use it to verify that consumer cancellation releases the stream.
func (c *MockClient) ActiveStreams() int {
	return int(c.activeStreams.Load())
}

func mockReplyContent(messages []models.ChatMessage) string {
	last := models.LastUserMessage(messages)
	if last == "" {
		last = "Hello!"
	}
	// Truncate on rune boundaries so multi-byte input never yields an
	// invalid UTF-8 echo.
	if runes := []rune(last); len(runes) > 50 {
		last = string(runes[:50])
	}
	return "Mock response to: " + last
}
