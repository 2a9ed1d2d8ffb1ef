package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/CyberBerto/inference-server-mvp/internal/backend"
	"github.com/CyberBerto/inference-server-mvp/internal/logger"
	"github.com/CyberBerto/inference-server-mvp/internal/metrics"
	"github.com/CyberBerto/inference-server-mvp/internal/models"
	"github.com/CyberBerto/inference-server-mvp/internal/state"
)

// Generation defaults applied when the request leaves a parameter unset.
const (
	defaultMaxTokens   = 4096
	defaultTemperature = 0.7
	defaultTopP        = 1.0
)

// Orchestrator is the per-request entry point: it validates domain
// invariants, dispatches to the single-shot or streaming path, and keeps
// the shared counters consistent on every exit path. Invocations run
// concurrently and independently; the backend does its own admission
// control.
type Orchestrator struct {
	backend    backend.Client
	state      *state.State
	translator *Translator
	keepAlive  time.Duration
	logger     *logger.Logger
}

// Stream is a started streaming completion. RequestID is stable across all
// frames; Frames is finite and single-use.
type Stream struct {
	RequestID string
	Frames    <-chan []byte
}

// New creates an orchestrator around the given backend client.
func New(client backend.Client, st *state.State, keepAlive time.Duration) *Orchestrator {
	return &Orchestrator{
		backend:    client,
		state:      st,
		translator: NewTranslator(),
		keepAlive:  keepAlive,
		logger:     logger.Default().WithComponent("orchestrator"),
	}
}

// Complete handles a non-streaming completion request. On failure the
// typed error is returned unwrapped for the HTTP layer to envelope; there
// is no retry because the single backend offers no alternate route.
func (o *Orchestrator) Complete(ctx context.Context, req *models.ChatCompletionRequest) (*models.ChatCompletionResponse, error) {
	o.state.RecordRequest()
	start := time.Now()
	defer func() {
		metrics.RequestDuration.WithLabelValues("completion").Observe(time.Since(start).Seconds())
	}()

	if err := validateMessages(req); err != nil {
		o.fail("completion", err)
		return nil, err
	}

	reply, err := o.backend.Generate(ctx, buildParams(req))
	if err != nil {
		o.fail("completion", err)
		return nil, err
	}

	metrics.RequestsTotal.WithLabelValues("completion", "ok").Inc()
	return o.translator.Translate(req.Model, reply), nil
}

// CompleteStream handles a streaming completion request. The first backend
// fragment is pulled eagerly, so a stream that fails at start propagates as
// a typed error before any SSE frame is committed. Once framing has begun,
// an abnormal end is closed out with a synthetic finish chunk and counted
// as an error.
func (o *Orchestrator) CompleteStream(ctx context.Context, req *models.ChatCompletionRequest) (*Stream, error) {
	o.state.RecordRequest()

	if err := validateMessages(req); err != nil {
		o.fail("stream", err)
		return nil, err
	}

	fragments, err := o.backend.GenerateStream(ctx, buildParams(req))
	if err != nil {
		o.fail("stream", err)
		return nil, err
	}

	first, ok := <-fragments
	if !ok {
		err := &backend.UnavailableError{Err: errors.New("backend stream ended before producing output")}
		o.fail("stream", err)
		return nil, err
	}
	if first.Err != nil {
		o.fail("stream", first.Err)
		return nil, first.Err
	}

	requestID := models.NewRequestID()
	o.logger.Debug("stream %s started for model %s", requestID, req.Model)
	metrics.RequestsTotal.WithLabelValues("stream", "ok").Inc()

	framer := newFramer(requestID, req.Model, o.keepAlive, func() {
		o.state.RecordError()
		metrics.RequestsTotal.WithLabelValues("stream", "error").Inc()
	})

	return &Stream{
		RequestID: requestID,
		Frames:    framer.Run(ctx, first, fragments),
	}, nil
}

// HealthCheck probes the backend with its own short timeout.
func (o *Orchestrator) HealthCheck(ctx context.Context) bool {
	return o.backend.IsHealthy(ctx)
}

func (o *Orchestrator) fail(mode string, err error) {
	o.state.RecordError()
	metrics.RequestsTotal.WithLabelValues(mode, "error").Inc()
	o.logger.Error("%s request failed: %v", mode, err)
}

// validateMessages enforces the invariants schema validation cannot
// express: a non-empty message list with at least one user message after
// any system messages.
func validateMessages(req *models.ChatCompletionRequest) error {
	if len(req.Messages) == 0 {
		return &InvalidRequestError{Message: "messages must not be empty"}
	}

	lastSystem := -1
	for i, m := range req.Messages {
		if m.Role == "system" {
			lastSystem = i
		}
	}
	for i, m := range req.Messages {
		if m.Role == "user" && i > lastSystem {
			return nil
		}
	}
	return &InvalidRequestError{Message: "at least one user message must follow the system messages"}
}

// buildParams resolves generation defaults and forwards the normalized
// parameters. Stop is already a list; max_tokens passes through unmodified
// when set.
func buildParams(req *models.ChatCompletionRequest) backend.Params {
	p := backend.Params{
		Model:       req.Model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: defaultTemperature,
		TopP:        defaultTopP,
		Stop:        []string(req.Stop),
	}
	if p.MaxTokens == 0 {
		p.MaxTokens = defaultMaxTokens
	}
	if req.Temperature != nil {
		p.Temperature = *req.Temperature
	}
	if req.TopP != nil {
		p.TopP = *req.TopP
	}
	if req.FrequencyPenalty != nil {
		p.FrequencyPenalty = *req.FrequencyPenalty
	}
	if req.PresencePenalty != nil {
		p.PresencePenalty = *req.PresencePenalty
	}
	return p
}
