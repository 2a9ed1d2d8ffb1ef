// mockbackend is a vLLM lookalike for running the gateway without GPUs.
// It serves /health and an OpenAI-compatible /v1/chat/completions with both
// JSON and SSE responses.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/CyberBerto/inference-server-mvp/internal/logger"
	"github.com/CyberBerto/inference-server-mvp/internal/models"
)

func main() {
	port := flag.String("port", "8080", "Port to listen on")
	delay := flag.Duration("delay", 50*time.Millisecond, "Delay between streamed tokens")
	flag.Parse()

	logger.Init(logger.INFO, "mockbackend")
	log := logger.Default()

	r := gin.Default()

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/v1/chat/completions", func(c *gin.Context) {
		var req models.ChatCompletionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error(), "type": "invalid_request_error"}})
			return
		}

		content := "Echo from mock backend: " + models.LastUserMessage(req.Messages)
		if req.Stream {
			streamCompletion(c, req.Model, content, *delay)
			return
		}

		words := len(strings.Fields(content))
		c.JSON(http.StatusOK, models.ChatCompletionResponse{
			ID:      models.NewRequestID(),
			Object:  models.ObjectChatCompletion,
			Created: time.Now().Unix(),
			Model:   req.Model,
			Choices: []models.ChatCompletionChoice{
				{
					Index:        0,
					Message:      models.ChatMessage{Role: "assistant", Content: content},
					FinishReason: models.FinishReasonStop,
				},
			},
			Usage: models.Usage{PromptTokens: 10, CompletionTokens: words, TotalTokens: 10 + words},
		})
	})

	if err := r.Run(":" + *port); err != nil {
		log.Fatal("serve: %v", err)
	}
}

func streamCompletion(c *gin.Context, model, content string, delay time.Duration) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)

	id := models.NewRequestID()
	created := time.Now().Unix()

	writeChunk := func(delta models.DeltaMessage, finish *string) {
		chunk := models.ChatCompletionChunk{
			ID:      id,
			Object:  models.ObjectChatCompletionChunk,
			Created: created,
			Model:   model,
			Choices: []models.StreamChoice{{Index: 0, Delta: delta, FinishReason: finish}},
		}
		data, _ := json.Marshal(chunk)
		fmt.Fprintf(c.Writer, "data: %s\n\n", data)
		c.Writer.Flush()
	}

	writeChunk(models.DeltaMessage{Role: "assistant"}, nil)
	for _, word := range strings.Fields(content) {
		time.Sleep(delay)
		writeChunk(models.DeltaMessage{Content: word + " "}, nil)
	}
	finish := models.FinishReasonStop
	writeChunk(models.DeltaMessage{}, &finish)
	fmt.Fprint(c.Writer, "data: [DONE]\n\n")
	c.Writer.Flush()
}
