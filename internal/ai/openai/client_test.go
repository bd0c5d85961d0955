package openai

import (
	"context"
	"errors"
	"net/http"
	"testing"

	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/talentroute/assessd/internal/ai"
	"github.com/talentroute/assessd/internal/scoring"
)

type stubCompleter struct {
	resp goopenai.ChatCompletionResponse
	err  error

	requests []goopenai.ChatCompletionRequest
}

func (s *stubCompleter) CreateChatCompletion(_ context.Context, req goopenai.ChatCompletionRequest) (goopenai.ChatCompletionResponse, error) {
	s.requests = append(s.requests, req)
	return s.resp, s.err
}

func completionWith(content string) goopenai.ChatCompletionResponse {
	return goopenai.ChatCompletionResponse{
		Choices: []goopenai.ChatCompletionChoice{
			{Message: goopenai.ChatCompletionMessage{Content: content}},
		},
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New("  ", "", "", zap.NewNop()); err == nil {
		t.Fatal("expected error for a blank api key")
	}
}

func TestNewDefaultsModel(t *testing.T) {
	interpreter, err := New("key", "", "", zap.NewNop())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if interpreter.Model() != defaultModel {
		t.Fatalf("unexpected model: %q", interpreter.Model())
	}
}

func TestInterpretSendsSystemAndUserMessages(t *testing.T) {
	completer := &stubCompleter{resp: completionWith(`{"summary": "creative profile"}`)}
	interpreter := &Interpreter{client: completer, model: "deepseek-chat", logger: zap.NewNop()}

	profile := &scoring.Profile{
		InstrumentID: "holland",
		Dimensions:   map[string]float64{"artistic": 21},
	}

	got, err := interpreter.Interpret(context.Background(), profile)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if got.Summary != "creative profile" {
		t.Fatalf("unexpected summary: %q", got.Summary)
	}
	if got.Provider != "openai/deepseek-chat" {
		t.Fatalf("unexpected provider: %q", got.Provider)
	}

	if len(completer.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(completer.requests))
	}
	req := completer.requests[0]
	if req.Model != "deepseek-chat" {
		t.Fatalf("unexpected model: %q", req.Model)
	}
	if len(req.Messages) != 2 ||
		req.Messages[0].Role != goopenai.ChatMessageRoleSystem ||
		req.Messages[1].Role != goopenai.ChatMessageRoleUser {
		t.Fatalf("unexpected messages: %+v", req.Messages)
	}
}

func TestInterpretClassifiesFailures(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		transient bool
	}{
		{
			name:      "rate limited",
			err:       &goopenai.APIError{HTTPStatusCode: http.StatusTooManyRequests},
			transient: true,
		},
		{
			name:      "server error",
			err:       &goopenai.APIError{HTTPStatusCode: http.StatusBadGateway},
			transient: true,
		},
		{
			name:      "bad request",
			err:       &goopenai.APIError{HTTPStatusCode: http.StatusBadRequest},
			transient: false,
		},
		{
			name:      "opaque",
			err:       errors.New("connection reset"),
			transient: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			completer := &stubCompleter{err: tc.err}
			interpreter := &Interpreter{client: completer, model: defaultModel, logger: zap.NewNop()}

			_, err := interpreter.Interpret(context.Background(), &scoring.Profile{InstrumentID: "pvq"})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := ai.IsTransient(err); got != tc.transient {
				t.Fatalf("transient = %v, want %v", got, tc.transient)
			}
		})
	}
}

func TestInterpretRejectsEmptyChoices(t *testing.T) {
	completer := &stubCompleter{}
	interpreter := &Interpreter{client: completer, model: defaultModel, logger: zap.NewNop()}

	if _, err := interpreter.Interpret(context.Background(), &scoring.Profile{InstrumentID: "pvq"}); err == nil {
		t.Fatal("expected error for empty choices")
	}
}
