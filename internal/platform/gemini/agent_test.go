package gemini

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/traqcheck/bgv-agent/internal/agent"
	"github.com/traqcheck/bgv-agent/internal/retry"
)

type scriptedModels struct {
	responses []*genai.GenerateContentResponse
	err       error
	calls     [][]*genai.Content
	configs   []*genai.GenerateContentConfig
}

func (m *scriptedModels) GenerateContent(
	_ context.Context,
	_ string,
	contents []*genai.Content,
	config *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {
	m.calls = append(m.calls, append([]*genai.Content(nil), contents...))
	m.configs = append(m.configs, config)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.responses) == 0 {
		return nil, errors.New("no scripted response")
	}
	r := m.responses[0]
	if len(m.responses) > 1 {
		m.responses = m.responses[1:]
	}
	return r, nil
}

type fakeTools struct {
	executed []string
	results  map[string]map[string]any
	errs     map[string]error
}

func (f *fakeTools) Specs() []agent.ToolSpec {
	return []agent.ToolSpec{
		{
			Name:        agent.ToolSendEmail,
			Description: "send",
			Params: []agent.ToolParam{
				{Name: "to_email", Type: agent.ParamString, Required: true},
			},
		},
		{
			Name:        agent.ToolFetchBGVRequest,
			Description: "fetch",
			Params: []agent.ToolParam{
				{Name: "bgv_request_id", Type: agent.ParamInteger, Required: true},
			},
		},
	}
}

func (f *fakeTools) Execute(_ context.Context, name string, _ map[string]any) (map[string]any, error) {
	f.executed = append(f.executed, name)
	if err := f.errs[name]; err != nil {
		return nil, err
	}
	if r, ok := f.results[name]; ok {
		return r, nil
	}
	return map[string]any{"success": true}, nil
}

func textResponse(s string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Role: roleModel, Parts: []*genai.Part{{Text: s}}},
	}}}
}

func callResponse(names ...string) *genai.GenerateContentResponse {
	parts := make([]*genai.Part, 0, len(names))
	for i, n := range names {
		parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
			ID:   fmt.Sprintf("call-%d", i),
			Name: n,
			Args: map[string]any{"bgv_request_id": float64(42)},
		}})
	}
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Role: roleModel, Parts: parts},
	}}}
}

func newTestAgent(t *testing.T, models ContentGenerator, tools ToolExecutor, maxTurns int) *Agent {
	t.Helper()
	a, err := NewAgent(models, agent.Settings{Model: "gemini-2.0-flash", Temperature: 0.7}, tools,
		AgentOptions{SystemInstruction: "be helpful", MaxTurns: maxTurns},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return a
}

func TestAgentInvoke_TextOnly(t *testing.T) {
	t.Parallel()

	models := &scriptedModels{responses: []*genai.GenerateContentResponse{textResponse("done")}}
	a := newTestAgent(t, models, &fakeTools{}, 0)

	resp, err := a.Invoke(context.Background(), agent.Request{Kind: agent.KindReminder, BGVRequestID: 42, Prompt: "remind"})
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Output)
	assert.Zero(t, resp.ToolCalls)
	assert.Zero(t, resp.EmailsSent)

	require.Len(t, models.configs, 1)
	cfg := models.configs[0]
	require.NotNil(t, cfg.Temperature)
	assert.InDelta(t, 0.7, *cfg.Temperature, 0.0001)
	require.NotNil(t, cfg.SystemInstruction)
	assert.Equal(t, "be helpful", cfg.SystemInstruction.Parts[0].Text)
	require.Len(t, cfg.Tools, 1)
	assert.Len(t, cfg.Tools[0].FunctionDeclarations, 2)
}

func TestAgentInvoke_ExecutesToolsAndCountsEmails(t *testing.T) {
	t.Parallel()

	models := &scriptedModels{responses: []*genai.GenerateContentResponse{
		callResponse(agent.ToolFetchBGVRequest),
		callResponse(agent.ToolSendEmail),
		textResponse("email sent"),
	}}
	tools := &fakeTools{}
	a := newTestAgent(t, models, tools, 0)

	resp, err := a.Invoke(context.Background(), agent.Request{Kind: agent.KindOnboarding, BGVRequestID: 42, Prompt: "send"})
	require.NoError(t, err)
	assert.Equal(t, "email sent", resp.Output)
	assert.Equal(t, 2, resp.ToolCalls)
	assert.Equal(t, 1, resp.EmailsSent)
	assert.Equal(t, []string{agent.ToolFetchBGVRequest, agent.ToolSendEmail}, tools.executed)

	// prompt, model call, function response, model call, function response
	require.Len(t, models.calls, 3)
	last := models.calls[2]
	require.Len(t, last, 5)
	fr := last[4].Parts[0].FunctionResponse
	require.NotNil(t, fr)
	assert.Equal(t, agent.ToolSendEmail, fr.Name)
	assert.Equal(t, "call-0", fr.ID)
	assert.Equal(t, roleUser, last[4].Role)
}

func TestAgentInvoke_FailedSendIsNotCounted(t *testing.T) {
	t.Parallel()

	models := &scriptedModels{responses: []*genai.GenerateContentResponse{
		callResponse(agent.ToolSendEmail),
		textResponse("could not send"),
	}}
	tools := &fakeTools{results: map[string]map[string]any{
		agent.ToolSendEmail: {"success": false, "error": "smtp down"},
	}}
	a := newTestAgent(t, models, tools, 0)

	resp, err := a.Invoke(context.Background(), agent.Request{Prompt: "send"})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.ToolCalls)
	assert.Zero(t, resp.EmailsSent)
}

func TestAgentInvoke_RejectedToolIsReportedToModel(t *testing.T) {
	t.Parallel()

	models := &scriptedModels{responses: []*genai.GenerateContentResponse{
		callResponse("unknown_tool"),
		textResponse("ok"),
	}}
	tools := &fakeTools{errs: map[string]error{"unknown_tool": agent.ErrUnknownTool}}
	a := newTestAgent(t, models, tools, 0)

	_, err := a.Invoke(context.Background(), agent.Request{Prompt: "x"})
	require.NoError(t, err)

	fr := models.calls[1][2].Parts[0].FunctionResponse
	require.NotNil(t, fr)
	assert.Equal(t, false, fr.Response["success"])
	assert.Contains(t, fr.Response["error"], "unknown agent tool")
}

func TestAgentInvoke_MaxTurns(t *testing.T) {
	t.Parallel()

	models := &scriptedModels{responses: []*genai.GenerateContentResponse{callResponse(agent.ToolFetchBGVRequest)}}
	a := newTestAgent(t, models, &fakeTools{}, 3)

	resp, err := a.Invoke(context.Background(), agent.Request{Prompt: "loop"})
	assert.ErrorIs(t, err, ErrMaxTurns)
	assert.Equal(t, 3, resp.ToolCalls)
	assert.Len(t, models.calls, 3)
}

func TestAgentInvoke_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		models  *scriptedModels
		wantErr error
	}{
		{
			name:    "no candidates",
			models:  &scriptedModels{responses: []*genai.GenerateContentResponse{{}}},
			wantErr: ErrEmptyResponse,
		},
		{
			name: "blocked prompt",
			models: &scriptedModels{responses: []*genai.GenerateContentResponse{{
				PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonSafety},
			}}},
			wantErr: ErrContentBlocked,
		},
		{
			name: "safety finish",
			models: &scriptedModels{responses: []*genai.GenerateContentResponse{{
				Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}},
			}}},
			wantErr: ErrContentBlocked,
		},
		{
			name:    "context canceled",
			models:  &scriptedModels{err: fmt.Errorf("request failed: %w", context.Canceled)},
			wantErr: context.Canceled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := newTestAgent(t, tt.models, &fakeTools{}, 0)
			_, err := a.Invoke(context.Background(), agent.Request{Prompt: "x"})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestAgentInvoke_APIErrorIsClassifiable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code int
		want retry.ErrorClass
	}{
		{code: 429, want: retry.QuotaExceeded},
		{code: 503, want: retry.Transient},
		{code: 400, want: retry.Fatal},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.code), func(t *testing.T) {
			t.Parallel()
			models := &scriptedModels{err: genai.APIError{Code: tt.code, Status: "STATUS", Message: "boom"}}
			a := newTestAgent(t, models, &fakeTools{}, 0)

			_, err := a.Invoke(context.Background(), agent.Request{Prompt: "x"})
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.code, apiErr.StatusCode())
			assert.Equal(t, tt.want, retry.Classify(err))
		})
	}
}

func TestNewAgentValidation(t *testing.T) {
	t.Parallel()

	_, err := NewAgent(nil, agent.Settings{Model: "m"}, &fakeTools{}, AgentOptions{}, nil)
	assert.Error(t, err)

	_, err = NewAgent(&scriptedModels{}, agent.Settings{Model: "m"}, nil, AgentOptions{}, nil)
	assert.Error(t, err)

	_, err = NewAgent(&scriptedModels{}, agent.Settings{}, &fakeTools{}, AgentOptions{}, nil)
	assert.Error(t, err)
}

func TestFactoryRequiresAPIKey(t *testing.T) {
	t.Parallel()

	factory := NewFactory(&fakeTools{}, AgentOptions{}, nil)
	_, err := factory(context.Background(), agent.Settings{Model: "gemini-2.0-flash"})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestDeclarations(t *testing.T) {
	t.Parallel()

	tool := declarations((&fakeTools{}).Specs())
	require.Len(t, tool.FunctionDeclarations, 2)

	send := tool.FunctionDeclarations[0]
	assert.Equal(t, agent.ToolSendEmail, send.Name)
	assert.Equal(t, genai.TypeObject, send.Parameters.Type)
	assert.Equal(t, []string{"to_email"}, send.Parameters.Required)
	assert.Equal(t, genai.TypeString, send.Parameters.Properties["to_email"].Type)

	fetch := tool.FunctionDeclarations[1]
	assert.Equal(t, genai.TypeInteger, fetch.Parameters.Properties["bgv_request_id"].Type)
}
