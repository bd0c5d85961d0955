package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	_ "embed"

	"github.com/tidwall/gjson"

	"github.com/talentroute/assessd/internal/scoring"
)

//go:embed prompt.md
var promptTemplate string

// BuildPrompt renders the shared interpretation prompt, split into the system
// instruction and the user message.
func BuildPrompt(profile *scoring.Profile) (system, message string, err error) {
	profileJSON, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("marshal profile: %w", err)
	}

	system, template, found := strings.Cut(promptTemplate, "# Template")
	if !found {
		template = promptTemplate
	}
	system = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(system), "# System"))
	message = strings.ReplaceAll(strings.TrimSpace(template), "{{PROFILE_JSON}}", string(profileJSON))
	return system, message, nil
}

// ParseInterpretation extracts the structured fields from the provider's
// response. A response that is not valid JSON is kept whole as the summary
// rather than rejected; the raw text is always preserved.
func ParseInterpretation(raw string) *Interpretation {
	cleaned := extractJSON(raw)

	result := &Interpretation{Raw: raw}
	if !gjson.Valid(cleaned) {
		result.Summary = strings.TrimSpace(raw)
		return result
	}

	result.Summary = strings.TrimSpace(gjson.Get(cleaned, "summary").String())
	for _, entry := range gjson.Get(cleaned, "strengths").Array() {
		if s := strings.TrimSpace(entry.String()); s != "" {
			result.Strengths = append(result.Strengths, s)
		}
	}
	for _, entry := range gjson.Get(cleaned, "suggestions").Array() {
		if s := strings.TrimSpace(entry.String()); s != "" {
			result.Suggestions = append(result.Suggestions, s)
		}
	}
	if result.Summary == "" {
		result.Summary = strings.TrimSpace(raw)
	}
	return result
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	return strings.TrimSpace(strings.Trim(raw, "`"))
}
