package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/traqcheck/bgv-agent/internal/agent"
	"github.com/traqcheck/bgv-agent/internal/redact"
)

const (
	roleUser  = "user"
	roleModel = "model"

	// DefaultMaxTurns bounds the function-calling loop.
	DefaultMaxTurns = 8
)

// ContentGenerator is the part of the genai client the agent uses.
// *genai.Models satisfies it.
type ContentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// ToolExecutor declares and runs the agent's tools. *agent.Toolbox satisfies
// it.
type ToolExecutor interface {
	Specs() []agent.ToolSpec
	Execute(ctx context.Context, name string, args map[string]any) (map[string]any, error)
}

// Agent is an agent.Caller backed by Gemini function calling.
type Agent struct {
	models   ContentGenerator
	model    string
	config   *genai.GenerateContentConfig
	tools    ToolExecutor
	maxTurns int
	logger   *slog.Logger
}

// AgentOptions configures an Agent.
type AgentOptions struct {
	// SystemInstruction is sent with every request.
	SystemInstruction string

	// MaxTurns bounds the number of model calls per invocation.
	MaxTurns int
}

// NewAgent creates an Agent.
func NewAgent(
	models ContentGenerator,
	settings agent.Settings,
	tools ToolExecutor,
	opts AgentOptions,
	logger *slog.Logger,
) (*Agent, error) {
	if models == nil {
		return nil, errors.New("content generator cannot be nil")
	}
	if tools == nil {
		return nil, errors.New("tool executor cannot be nil")
	}
	if settings.Model == "" {
		return nil, errors.New("model name cannot be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = DefaultMaxTurns
	}

	temperature := settings.Temperature
	config := &genai.GenerateContentConfig{
		Temperature: &temperature,
		Tools:       []*genai.Tool{declarations(tools.Specs())},
	}
	if opts.SystemInstruction != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: opts.SystemInstruction}},
		}
	}

	return &Agent{
		models:   models,
		model:    settings.Model,
		config:   config,
		tools:    tools,
		maxTurns: opts.MaxTurns,
		logger:   logger.With("component", "gemini_agent", "model", settings.Model),
	}, nil
}

// Invoke runs the function-calling loop for one request.
func (a *Agent) Invoke(ctx context.Context, req agent.Request) (agent.Response, error) {
	logger := a.logger.With("kind", req.Kind, "bgv_request_id", req.BGVRequestID)

	contents := []*genai.Content{{
		Role:  roleUser,
		Parts: []*genai.Part{{Text: req.Prompt}},
	}}
	var resp agent.Response

	for turn := 1; turn <= a.maxTurns; turn++ {
		result, err := a.models.GenerateContent(ctx, a.model, contents, a.config)
		if err != nil {
			return resp, wrapError(err)
		}

		content, err := firstCandidate(result)
		if err != nil {
			return resp, err
		}

		calls := functionCalls(content)
		if len(calls) == 0 {
			resp.Output = text(content)
			logger.DebugContext(ctx, "agent finished",
				"turns", turn,
				"tool_calls", resp.ToolCalls,
				"emails_sent", resp.EmailsSent)
			return resp, nil
		}

		contents = append(contents, &genai.Content{Role: roleModel, Parts: content.Parts})

		parts := make([]*genai.Part, 0, len(calls))
		for _, call := range calls {
			out := a.execute(ctx, logger, call)
			resp.ToolCalls++
			if call.Name == agent.ToolSendEmail && out["success"] == true {
				resp.EmailsSent++
			}
			parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       call.ID,
				Name:     call.Name,
				Response: out,
			}})
		}
		contents = append(contents, &genai.Content{Role: roleUser, Parts: parts})
	}

	logger.WarnContext(ctx, "agent exceeded turn budget",
		"max_turns", a.maxTurns,
		"tool_calls", resp.ToolCalls)
	return resp, fmt.Errorf("%w: %d", ErrMaxTurns, a.maxTurns)
}

// execute runs one tool call. Argument and unknown-tool errors are returned
// to the model so it can correct the call.
func (a *Agent) execute(ctx context.Context, logger *slog.Logger, call *genai.FunctionCall) map[string]any {
	logger.DebugContext(ctx, "executing tool", "tool", call.Name)

	out, err := a.tools.Execute(ctx, call.Name, call.Args)
	if err != nil {
		logger.WarnContext(ctx, "tool call rejected",
			"tool", call.Name,
			"error", redact.Error(err))
		return map[string]any{"success": false, "error": err.Error()}
	}
	return out
}

func firstCandidate(resp *genai.GenerateContentResponse) (*genai.Content, error) {
	if resp == nil {
		return nil, ErrEmptyResponse
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("%w: %s", ErrContentBlocked, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return nil, ErrEmptyResponse
	}
	c := resp.Candidates[0]
	if c.FinishReason == genai.FinishReasonSafety {
		return nil, ErrContentBlocked
	}
	if c.Content == nil {
		return nil, ErrEmptyResponse
	}
	return c.Content, nil
}

func functionCalls(content *genai.Content) []*genai.FunctionCall {
	var calls []*genai.FunctionCall
	for _, p := range content.Parts {
		if p != nil && p.FunctionCall != nil {
			calls = append(calls, p.FunctionCall)
		}
	}
	return calls
}

func text(content *genai.Content) string {
	var b strings.Builder
	for _, p := range content.Parts {
		if p == nil || p.Thought || p.Text == "" {
			continue
		}
		b.WriteString(p.Text)
	}
	return b.String()
}

var _ agent.Caller = (*Agent)(nil)
