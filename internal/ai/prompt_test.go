package ai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/talentroute/assessd/internal/scoring"
)

type stubInterpreter struct {
	name string
}

func (s stubInterpreter) Interpret(context.Context, *scoring.Profile) (*Interpretation, error) {
	return &Interpretation{Provider: s.name}, nil
}

func TestBuildPromptEmbedsProfile(t *testing.T) {
	profile := &scoring.Profile{
		InstrumentID: "disc",
		Dimensions:   map[string]float64{"D": 4, "I": -2, "S": 1, "C": -3},
	}

	system, message, err := BuildPrompt(profile)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if system == "" {
		t.Fatal("expected a non-empty system instruction")
	}
	if strings.Contains(message, "{{PROFILE_JSON}}") {
		t.Fatal("profile placeholder was not substituted")
	}
	if !strings.Contains(message, `"instrumentId": "disc"`) {
		t.Fatalf("message does not carry the profile: %s", message)
	}
}

func TestParseInterpretationStructured(t *testing.T) {
	raw := "```json\n" + `{
		"summary": "a decisive profile",
		"strengths": ["direct communication", " resilience "],
		"suggestions": ["leadership roles", ""]
	}` + "\n```"

	got := ParseInterpretation(raw)

	if got.Summary != "a decisive profile" {
		t.Fatalf("unexpected summary: %q", got.Summary)
	}
	if len(got.Strengths) != 2 || got.Strengths[1] != "resilience" {
		t.Fatalf("unexpected strengths: %v", got.Strengths)
	}
	if len(got.Suggestions) != 1 || got.Suggestions[0] != "leadership roles" {
		t.Fatalf("unexpected suggestions: %v", got.Suggestions)
	}
	if got.Raw != raw {
		t.Fatal("raw response must be preserved")
	}
}

func TestParseInterpretationPlainText(t *testing.T) {
	got := ParseInterpretation("The subject shows strong dominance traits.")

	if got.Summary != "The subject shows strong dominance traits." {
		t.Fatalf("unexpected summary: %q", got.Summary)
	}
	if len(got.Strengths) != 0 || len(got.Suggestions) != 0 {
		t.Fatalf("plain text must not produce lists: %+v", got)
	}
}

func TestParseInterpretationEmptySummaryFallsBackToRaw(t *testing.T) {
	raw := `{"strengths": ["persistence"]}`
	got := ParseInterpretation(raw)

	if got.Summary != raw {
		t.Fatalf("unexpected summary: %q", got.Summary)
	}
	if len(got.Strengths) != 1 {
		t.Fatalf("unexpected strengths: %v", got.Strengths)
	}
}

func TestProvidersResolve(t *testing.T) {
	a := stubInterpreter{"a"}
	b := stubInterpreter{"b"}

	providers := NewProviders("")
	providers.Register("gemini", "gemini-2.5-flash", a)
	providers.Register("openai", "gpt-4o-mini", b)

	if got := providers.DefaultKey(); got != "gemini/gemini-2.5-flash" {
		t.Fatalf("unexpected default key: %q", got)
	}

	cases := map[string]stubInterpreter{
		"":                        a,
		"gemini":                  a,
		"gemini/gemini-2.5-flash": a,
		"gemini/gemini-exp":       a,
		"openai/gpt-4o-mini":      b,
	}
	for key, want := range cases {
		got, err := providers.Resolve(key)
		if err != nil {
			t.Fatalf("resolving %q: %v", key, err)
		}
		if got != want {
			t.Fatalf("key %q resolved to the wrong interpreter", key)
		}
	}

	if _, err := providers.Resolve("deepseek/deepseek-chat"); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}
