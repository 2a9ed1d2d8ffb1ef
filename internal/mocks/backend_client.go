package mocks

import (
	"context"

	"github.com/CyberBerto/inference-server-mvp/internal/backend"
)

// BackendClient implements backend.Client for testing. Each behavior can be
// overridden per test through the func fields; unset fields fall back to a
// benign default.
type BackendClient struct {
	IsHealthyFunc      func(ctx context.Context) bool
	GenerateFunc       func(ctx context.Context, p backend.Params) (*backend.Reply, error)
	GenerateStreamFunc func(ctx context.Context, p backend.Params) (<-chan backend.Fragment, error)
	CloseFunc          func() error
}

func (m *BackendClient) IsHealthy(ctx context.Context) bool {
	if m.IsHealthyFunc != nil {
		return m.IsHealthyFunc(ctx)
	}
	return true
}

func (m *BackendClient) Generate(ctx context.Context, p backend.Params) (*backend.Reply, error) {
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, p)
	}
	return &backend.Reply{FinishReason: "stop"}, nil
}

func (m *BackendClient) GenerateStream(ctx context.Context, p backend.Params) (<-chan backend.Fragment, error) {
	if m.GenerateStreamFunc != nil {
		return m.GenerateStreamFunc(ctx, p)
	}
	ch := make(chan backend.Fragment)
	close(ch)
	return ch, nil
}

func (m *BackendClient) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Fragments builds a closed channel pre-loaded with the given fragments, in
// order. Convenient for scripting stream scenarios.
func Fragments(frags ...backend.Fragment) <-chan backend.Fragment {
	ch := make(chan backend.Fragment, len(frags))
	for _, f := range frags {
		ch <- f
	}
	close(ch)
	return ch
}
