package orchestrator

import (
	"time"

	"github.com/CyberBerto/inference-server-mvp/internal/backend"
	"github.com/CyberBerto/inference-server-mvp/internal/models"
)

// Translator maps a backend reply into the externally visible completion
// object. It is a pure function of its input plus a clock read.
type Translator struct {
	now func() time.Time
}

// NewTranslator creates a translator using the wall clock.
func NewTranslator() *Translator {
	return &Translator{now: time.Now}
}

// Translate builds the completion response for one backend reply. The id is
// freshly minted per call and total_tokens is always the exact sum of the
// prompt and completion counts.
func (t *Translator) Translate(model string, reply *backend.Reply) *models.ChatCompletionResponse {
	return &models.ChatCompletionResponse{
		ID:      models.NewRequestID(),
		Object:  models.ObjectChatCompletion,
		Created: t.now().Unix(),
		Model:   model,
		Choices: []models.ChatCompletionChoice{
			{
				Index: 0,
				Message: models.ChatMessage{
					Role:    "assistant",
					Content: reply.Content,
				},
				FinishReason: reply.FinishReason,
			},
		},
		Usage: models.Usage{
			PromptTokens:     reply.PromptTokens,
			CompletionTokens: reply.CompletionTokens,
			TotalTokens:      reply.PromptTokens + reply.CompletionTokens,
		},
	}
}
