package gemini

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/traqcheck/bgv-agent/internal/agent"
)

// NewFactory returns an agent.Factory that builds a Gemini client per
// settings change. The toolbox and system instruction are shared by every
// Agent it creates.
func NewFactory(tools ToolExecutor, opts AgentOptions, logger *slog.Logger) agent.Factory {
	return func(ctx context.Context, s agent.Settings) (agent.Caller, error) {
		if s.APIKey == "" {
			return nil, ErrMissingAPIKey
		}

		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  s.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}

		return NewAgent(client.Models, s, tools, opts, logger)
	}
}
