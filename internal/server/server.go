package server

import (
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/CyberBerto/inference-server-mvp/internal/backend"
	"github.com/CyberBerto/inference-server-mvp/internal/config"
	"github.com/CyberBerto/inference-server-mvp/internal/logger"
	"github.com/CyberBerto/inference-server-mvp/internal/metrics"
	"github.com/CyberBerto/inference-server-mvp/internal/orchestrator"
	"github.com/CyberBerto/inference-server-mvp/internal/state"
)

// Validation failures are reported back to clients, so field names in the
// messages must be the wire names, not the Go struct paths.
func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	}
}

// Server owns the HTTP surface of the gateway and wires it to the
// orchestrator.
type Server struct {
	cfg    *config.Settings
	state  *state.State
	orch   *orchestrator.Orchestrator
	logger *logger.Logger
}

// New assembles the server around a backend client.
func New(cfg *config.Settings, client backend.Client, st *state.State) *Server {
	return &Server{
		cfg:    cfg,
		state:  st,
		orch:   orchestrator.New(client, st, cfg.Backend.KeepAliveInterval),
		logger: logger.Default().WithComponent("server"),
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), corsMiddleware())

	r.GET("/health", s.handleHealth)

	api := r.Group("/api/v1")
	api.GET("/models", s.handleListModels)
	api.POST("/chat/completions", s.handleChatCompletions)

	if s.cfg.Metrics.Enabled {
		r.GET(s.cfg.Metrics.Path, gin.WrapH(metrics.Handler()))
	}

	return r
}

// corsMiddleware allows any origin, matching the deployment behind
// OpenRouter callbacks.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "*")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
