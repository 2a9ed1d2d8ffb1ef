package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/CyberBerto/inference-server-mvp/internal/backend"
	"github.com/CyberBerto/inference-server-mvp/internal/logger"
	"github.com/CyberBerto/inference-server-mvp/internal/metrics"
	"github.com/CyberBerto/inference-server-mvp/internal/models"
)

var (
	doneFrame      = []byte("data: [DONE]\n\n")
	keepAliveFrame = []byte(": keep-alive\n\n")
)

// Framer converts a fragment sequence into wire-ready SSE frames. Every
// frame of one request shares the same id and created timestamp; keep-alive
// comments are interleaved when the backend goes quiet but never reorder
// content frames.
type Framer struct {
	requestID string
	model     string
	created   int64
	keepAlive time.Duration
	logger    *logger.Logger

	// onError is invoked once if the fragment sequence ends abnormally
	// after framing has begun.
	onError func()
}

func newFramer(requestID, model string, keepAlive time.Duration, onError func()) *Framer {
	return &Framer{
		requestID: requestID,
		model:     model,
		created:   time.Now().Unix(),
		keepAlive: keepAlive,
		logger:    logger.Default().WithComponent("framer"),
		onError:   onError,
	}
}

// Run consumes first and then the rest of the fragment sequence, emitting
// SSE frames on the returned channel. The channel closes after the [DONE]
// sentinel or when ctx is cancelled.
func (f *Framer) Run(ctx context.Context, first backend.Fragment, fragments <-chan backend.Fragment) <-chan []byte {
	out := make(chan []byte)

	go func() {
		defer close(out)
		metrics.StreamingActive.Inc()
		defer metrics.StreamingActive.Dec()

		if f.process(ctx, out, first) {
			return
		}

		timer := time.NewTimer(f.keepAlive)
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case frag, ok := <-fragments:
				if !ok {
					// Producer stopped without a terminal fragment.
					f.terminate(ctx, out, true)
					return
				}
				if f.process(ctx, out, frag) {
					return
				}
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(f.keepAlive)
			case <-timer.C:
				if !f.send(ctx, out, keepAliveFrame) {
					return
				}
				timer.Reset(f.keepAlive)
			}
		}
	}()

	return out
}

// process frames one fragment. It returns true when the stream is over,
// either normally or abnormally.
func (f *Framer) process(ctx context.Context, out chan<- []byte, frag backend.Fragment) bool {
	switch {
	case frag.Err != nil:
		f.logger.Warn("stream %s interrupted: %v", f.requestID, frag.Err)
		f.terminate(ctx, out, true)
		return true
	case frag.FinishReason != "":
		reason := frag.FinishReason
		if f.send(ctx, out, f.chunk(models.DeltaMessage{}, &reason)) {
			f.send(ctx, out, doneFrame)
		}
		return true
	case frag.Role != "":
		return !f.send(ctx, out, f.chunk(models.DeltaMessage{Role: frag.Role}, nil))
	default:
		return !f.send(ctx, out, f.chunk(models.DeltaMessage{Content: frag.Content}, nil))
	}
}

// terminate closes out an interrupted stream deterministically: a synthetic
// finish chunk followed by the [DONE] sentinel, so the client connection is
// never left hanging.
func (f *Framer) terminate(ctx context.Context, out chan<- []byte, abnormal bool) {
	if abnormal && f.onError != nil {
		f.onError()
	}
	reason := models.FinishReasonStop
	if f.send(ctx, out, f.chunk(models.DeltaMessage{}, &reason)) {
		f.send(ctx, out, doneFrame)
	}
}

func (f *Framer) send(ctx context.Context, out chan<- []byte, frame []byte) bool {
	select {
	case out <- frame:
		return true
	case <-ctx.Done():
		return false
	}
}

func (f *Framer) chunk(delta models.DeltaMessage, finishReason *string) []byte {
	c := models.ChatCompletionChunk{
		ID:      f.requestID,
		Object:  models.ObjectChatCompletionChunk,
		Created: f.created,
		Model:   f.model,
		Choices: []models.StreamChoice{
			{Index: 0, Delta: delta, FinishReason: finishReason},
		},
	}
	data, err := json.Marshal(c)
	if err != nil {
		// The chunk types contain nothing unmarshalable; treat this as
		// a programming error rather than a stream failure.
		f.logger.Error("marshal chunk: %v", err)
		return nil
	}
	frame := make([]byte, 0, len(data)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, data...)
	frame = append(frame, '\n', '\n')
	return frame
}
