package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings is the full gateway configuration. Values come from defaults,
// then an optional YAML file, then environment variables, in that order.
type Settings struct {
	Host     string         `yaml:"host"`
	Port     int            `yaml:"port"`
	LogLevel string         `yaml:"log_level"`
	Backend  BackendConfig  `yaml:"backend"`
	Model    ModelMetadata  `yaml:"model"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// BackendConfig describes the single downstream vLLM endpoint.
type BackendConfig struct {
	BaseURL string `yaml:"base_url"`
	// RequestTimeout covers single-shot and streaming generation. It is
	// generous to accommodate long-context inference.
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// HealthTimeout is the separate, much shorter probe timeout so a
	// stalled backend cannot block health reporting.
	HealthTimeout     time.Duration `yaml:"health_timeout"`
	KeepAliveInterval time.Duration `yaml:"keep_alive_interval"`
	// UseMock swaps the real client for the simulated one. No network
	// calls are made in mock mode.
	UseMock bool `yaml:"use_mock"`
}

// ModelMetadata is served verbatim by the model-discovery endpoint.
type ModelMetadata struct {
	ID                string       `yaml:"id"`
	DisplayName       string       `yaml:"display_name"`
	Organization      string       `yaml:"organization"`
	ContextLength     int          `yaml:"context_length"`
	Quantization      string       `yaml:"quantization"`
	SupportedFeatures []string     `yaml:"supported_features"`
	Pricing           ModelPricing `yaml:"pricing"`
}

// ModelPricing holds per-token USD prices as decimal strings, the format
// OpenRouter expects.
type ModelPricing struct {
	Prompt     string `yaml:"prompt"`
	Completion string `yaml:"completion"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults returns the baseline configuration used when no file or
// environment overrides are present.
func Defaults() *Settings {
	return &Settings{
		Host:     "0.0.0.0",
		Port:     8000,
		LogLevel: "info",
		Backend: BackendConfig{
			BaseURL:           "http://localhost:8080",
			RequestTimeout:    300 * time.Second,
			HealthTimeout:     5 * time.Second,
			KeepAliveInterval: 15 * time.Second,
		},
		Model: ModelMetadata{
			ID:                "your-org/your-model",
			DisplayName:       "Your Model Display Name",
			Organization:      "your-org",
			ContextLength:     131072,
			Quantization:      "fp16",
			SupportedFeatures: []string{"tools", "json_mode", "streaming"},
			Pricing: ModelPricing{
				Prompt:     "0.000008",
				Completion: "0.000024",
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Load reads settings from a YAML file layered over Defaults, then applies
// environment overrides. An empty path skips the file step.
func Load(path string) (*Settings, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overrides settings from environment variables, mirroring the
// container deployment knobs.
func (s *Settings) applyEnv() {
	if v := os.Getenv("HOST"); v != "" {
		s.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			s.Port = port
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		s.LogLevel = v
	}
	if v := os.Getenv("VLLM_BASE_URL"); v != "" {
		s.Backend.BaseURL = v
	}
	if v := os.Getenv("REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			s.Backend.RequestTimeout = d
		}
	}
	if v := os.Getenv("MODEL_ID"); v != "" {
		s.Model.ID = v
	}
	if v := os.Getenv("ORGANIZATION_ID"); v != "" {
		s.Model.Organization = v
	}
}

// Addr returns the host:port the HTTP server binds to.
func (s *Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
