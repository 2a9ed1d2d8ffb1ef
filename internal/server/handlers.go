package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/CyberBerto/inference-server-mvp/internal/backend"
	"github.com/CyberBerto/inference-server-mvp/internal/models"
	"github.com/CyberBerto/inference-server-mvp/internal/orchestrator"
)

// handleHealth reports liveness. The endpoint itself never fails; backend
// reachability is surfaced through vllm_connected, not the status field.
func (s *Server) handleHealth(c *gin.Context) {
	snap := s.state.Snapshot()
	connected := s.orch.HealthCheck(c.Request.Context())

	c.JSON(http.StatusOK, models.HealthStatus{
		Status:        "healthy",
		UptimeSeconds: math.Round(snap.UptimeSeconds*100) / 100,
		TotalRequests: snap.TotalRequests,
		ErrorRate:     math.Round(snap.ErrorRate*10000) / 10000,
		VLLMConnected: connected,
	})
}

// handleListModels serves the discovery record for the one configured
// model. All values come straight from settings.
func (s *Server) handleListModels(c *gin.Context) {
	m := s.cfg.Model

	c.JSON(http.StatusOK, models.ModelList{
		Object: models.ObjectList,
		Data: []models.ModelInfo{
			{
				ID:            m.ID,
				Object:        models.ObjectModel,
				Created:       s.state.StartTime().Unix(),
				OwnedBy:       m.Organization,
				Name:          m.DisplayName,
				ContextLength: m.ContextLength,
				Pricing: models.ModelPricing{
					Prompt:     m.Pricing.Prompt,
					Completion: m.Pricing.Completion,
				},
				Quantization:      m.Quantization,
				SupportedFeatures: m.SupportedFeatures,
			},
		},
	})
}

// handleChatCompletions is the OpenAI-compatible completion endpoint,
// dispatching to the single-shot or SSE path on the stream flag.
func (s *Server) handleChatCompletions(c *gin.Context) {
	var req models.ChatCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorEnvelope(c, http.StatusUnprocessableEntity, bindingErrorMessage(err))
		return
	}

	if req.Stream {
		s.streamCompletion(c, &req)
		return
	}

	resp, err := s.orch.Complete(c.Request.Context(), &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) streamCompletion(c *gin.Context, req *models.ChatCompletionRequest) {
	stream, err := s.orch.CompleteStream(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Request-ID", stream.RequestID)
	c.Status(http.StatusOK)

	c.Stream(func(w io.Writer) bool {
		frame, ok := <-stream.Frames
		if !ok {
			return false
		}
		if _, err := w.Write(frame); err != nil {
			s.logger.Debug("stream %s client write failed: %v", stream.RequestID, err)
			return false
		}
		return true
	})
}

// writeError maps the error taxonomy to HTTP statuses. Backend messages are
// forwarded; transport detail is not echoed to the client.
func (s *Server) writeError(c *gin.Context, err error) {
	var invalid *orchestrator.InvalidRequestError
	var backendErr *backend.Error
	var unavailable *backend.UnavailableError

	switch {
	case errors.As(err, &invalid):
		writeErrorEnvelope(c, http.StatusUnprocessableEntity, invalid.Message)
	case errors.As(err, &backendErr):
		writeErrorEnvelope(c, http.StatusInternalServerError, backendErr.Message)
	case errors.As(err, &unavailable):
		writeErrorEnvelope(c, http.StatusInternalServerError, "inference backend unavailable")
	default:
		s.logger.Error("unclassified failure: %v", err)
		writeErrorEnvelope(c, http.StatusInternalServerError, "internal server error")
	}
}

// bindingErrorMessage renders a request-validation failure in wire terms.
// Validator errors stringify with Go struct paths, which must not leak into
// the envelope.
func bindingErrorMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		switch fe.Tag() {
		case "required":
			return fmt.Sprintf("%s is required", fe.Field())
		case "oneof":
			return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
		case "gte":
			return fmt.Sprintf("%s must be greater than or equal to %s", fe.Field(), fe.Param())
		case "lte":
			return fmt.Sprintf("%s must be less than or equal to %s", fe.Field(), fe.Param())
		default:
			return fmt.Sprintf("%s is invalid", fe.Field())
		}
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return fmt.Sprintf("%s has the wrong type", typeErr.Field)
	}
	return "request body is not valid JSON"
}

func writeErrorEnvelope(c *gin.Context, status int, message string) {
	c.JSON(status, models.ErrorResponse{
		Error: models.ErrorDetail{
			Message: message,
			Type:    "api_error",
			Code:    status,
		},
	})
}
