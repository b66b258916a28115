// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config is the process-wide configuration. Read-only after startup.
type Config struct {
	// OpenAI backend.
	OpenAIKey     string
	Model         string
	RealtimeModel string
	Voice         string
	Temperature   float64

	// Prompt context selected for new sessions.
	PromptContext string

	// Base URL the Tool Invoker addresses handlers under.
	ToolBaseURL string

	// Externally reachable domain name, used in generated TwiML.
	Domain string

	// Listening port; on a bind conflict the server falls back to the
	// next port.
	Port int

	// Twilio credentials, required only by the tool server.
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string

	// TaskRouter workflow receiving live-agent handoffs.
	WorkflowSID string
}

// Load reads configuration from a .env file (if present) and the
// environment. A missing OPENAI_API_KEY is a fatal startup failure.
func Load() (*Config, error) {
	// A missing .env file is fine; real deployments set the environment
	// directly.
	_ = godotenv.Load()

	cfg := &Config{
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		Model:            envOr("OPENAI_MODEL", "gpt-4o"),
		RealtimeModel:    envOr("OPENAI_REALTIME_MODEL", "gpt-4o-realtime-preview-2024-10-01"),
		Voice:            envOr("VOICE", "alloy"),
		Temperature:      0.8,
		PromptContext:    envOr("PROMPT_CONTEXT", "customerService"),
		Domain:           envOr("DOMAIN_NAME", "localhost"),
		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber: os.Getenv("TWILIO_FROM_NUMBER"),
		WorkflowSID:      os.Getenv("WORKFLOW_SID"),
	}

	if cfg.OpenAIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}

	port := envOr("PORT", "3000")
	p, err := strconv.Atoi(port)
	if err != nil || p <= 0 || p > 65535 {
		return nil, fmt.Errorf("invalid PORT %q", port)
	}
	cfg.Port = p

	cfg.ToolBaseURL = envOr("TOOL_BASE_URL", fmt.Sprintf("http://localhost:%d", cfg.Port))

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
