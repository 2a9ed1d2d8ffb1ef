package backend

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/CyberBerto/inference-server-mvp/internal/logger"
	"github.com/CyberBerto/inference-server-mvp/internal/metrics"
	"github.com/CyberBerto/inference-server-mvp/internal/models"
)

// VLLMClient talks to a vLLM server over its OpenAI-compatible API. The
// underlying HTTP client is created lazily on first use and recreated
// transparently after Close, so a long-idle gateway recovers on its own.
type VLLMClient struct {
	cfg    Config
	logger *logger.Logger

	// probe has its own short timeout so health reporting is never
	// starved by a slow generation backend.
	probe *http.Client

	mu     sync.Mutex
	api    *openai.Client
	httpc  *http.Client
	closed bool
}

// NewVLLMClient creates a client for the configured backend. No connection
// is established until the first request.
func NewVLLMClient(cfg Config) *VLLMClient {
	return &VLLMClient{
		cfg:    cfg,
		logger: logger.Default().WithComponent("vllm_client"),
		probe:  &http.Client{Timeout: cfg.HealthTimeout},
	}
}

// acquire returns the OpenAI-protocol client, creating it if none exists or
// the previous one was closed.
func (c *VLLMClient) acquire() *openai.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.api == nil || c.closed {
		c.httpc = &http.Client{Timeout: c.cfg.RequestTimeout}
		conf := openai.DefaultConfig("")
		conf.BaseURL = strings.TrimRight(c.cfg.BaseURL, "/") + "/v1"
		conf.HTTPClient = c.httpc
		c.api = openai.NewClientWithConfig(conf)
		c.closed = false
		c.logger.Debug("backend connection acquired: %s", conf.BaseURL)
	}
	return c.api
}

// Close releases pooled connections. Safe to call multiple times; the next
// request re-acquires a fresh client.
func (c *VLLMClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.httpc != nil {
		c.httpc.CloseIdleConnections()
	}
	c.api = nil
	c.closed = true
	return nil
}

// IsHealthy probes the backend's /health endpoint. Any failure reads as
// false; this method never propagates an error.
func (c *VLLMClient) IsHealthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.HealthTimeout)
	defer cancel()

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}

	resp, err := c.probe.Do(req)
	if err != nil {
		metrics.BackendHealthChecks.WithLabelValues("down").Inc()
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.BackendHealthChecks.WithLabelValues("down").Inc()
		return false
	}
	metrics.BackendHealthChecks.WithLabelValues("up").Inc()
	return true
}

// Generate performs one blocking completion call against the backend.
func (c *VLLMClient) Generate(ctx context.Context, p Params) (*Reply, error) {
	api := c.acquire()

	resp, err := api.CreateChatCompletion(ctx, buildRequest(p, false))
	if err != nil {
		return nil, translateError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &Error{Status: http.StatusBadGateway, Message: "backend returned no choices"}
	}

	choice := resp.Choices[0]
	finish := string(choice.FinishReason)
	if finish == "" {
		finish = models.FinishReasonStop
	}

	return &Reply{
		Content:          choice.Message.Content,
		FinishReason:     finish,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// GenerateStream starts a streaming completion. Fragments are produced on
// the returned channel until the backend finishes or fails; cancelling ctx
// stops production and closes the backend stream.
func (c *VLLMClient) GenerateStream(ctx context.Context, p Params) (<-chan Fragment, error) {
	api := c.acquire()

	stream, err := api.CreateChatCompletionStream(ctx, buildRequest(p, true))
	if err != nil {
		return nil, translateError(err)
	}

	out := make(chan Fragment)
	go func() {
		defer close(out)
		defer stream.Close()

		if !emit(ctx, out, Fragment{Role: "assistant"}) {
			return
		}

		finish := models.FinishReasonStop
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				emit(ctx, out, Fragment{FinishReason: finish})
				return
			}
			if err != nil {
				c.logger.Warn("stream receive failed: %v", err)
				emit(ctx, out, Fragment{Err: translateError(err)})
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}

			choice := resp.Choices[0]
			if choice.FinishReason != "" {
				finish = string(choice.FinishReason)
			}
			if choice.Delta.Content != "" {
				if !emit(ctx, out, Fragment{Content: choice.Delta.Content}) {
					return
				}
			}
		}
	}()

	return out, nil
}

// emit delivers a fragment unless the consumer has gone away.
func emit(ctx context.Context, out chan<- Fragment, f Fragment) bool {
	select {
	case out <- f:
		return true
	case <-ctx.Done():
		return false
	}
}

// buildRequest converts gateway params to the OpenAI wire request vLLM
// understands. go-openai marks Temperature and TopP omitempty, which would
// drop an explicit 0.0 from the payload and let the backend substitute its
// own default; the library's convention for requesting an exact zero is to
// send the smallest nonzero float instead.
func buildRequest(p Params, stream bool) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:            p.Model,
		Messages:         make([]openai.ChatCompletionMessage, len(p.Messages)),
		MaxTokens:        p.MaxTokens,
		Temperature:      nonZero(p.Temperature),
		TopP:             nonZero(p.TopP),
		FrequencyPenalty: p.FrequencyPenalty,
		PresencePenalty:  p.PresencePenalty,
		Stop:             p.Stop,
		Stream:           stream,
	}
	for i, msg := range p.Messages {
		req.Messages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
			Name:    msg.Name,
		}
	}
	return req
}

func nonZero(v float32) float32 {
	if v == 0 {
		return math.SmallestNonzeroFloat32
	}
	return v
}

// translateError maps transport and protocol failures to the gateway's
// error taxonomy.
func translateError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &Error{Status: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &Error{Status: reqErr.HTTPStatusCode, Message: reqErr.Error()}
	}
	return &UnavailableError{Err: err}
}
