package gemini

import (
	"context"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/talentroute/assessd/internal/ai"
	"github.com/talentroute/assessd/internal/scoring"
	"github.com/talentroute/assessd/internal/utils"
)

const (
	providerName        = "gemini"
	defaultMaxLogLength = 200
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, system, message string) (string, error)
	Model() string
}

// Interpreter turns score profiles into interpretations via Gemini.
type Interpreter struct {
	generator contentGenerator
	logger    *zap.Logger
	maxLogLen int
}

// NewInterpreter wraps a generator as an ai.Interpreter.
func NewInterpreter(generator contentGenerator, maxLogLength int, logger *zap.Logger) *Interpreter {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	return &Interpreter{
		generator: generator,
		logger:    logger,
		maxLogLen: maxLogLength,
	}
}

func (i *Interpreter) Interpret(ctx context.Context, profile *scoring.Profile) (*ai.Interpretation, error) {
	system, message, err := ai.BuildPrompt(profile)
	if err != nil {
		return nil, &ai.ProviderError{Provider: providerName, Err: err}
	}

	i.logger.Debug("gemini interpretation request",
		zap.String("instrument_id", profile.InstrumentID),
		zap.Int("prompt_length", utf8.RuneCountInString(message)),
		zap.String("prompt_preview", utils.TruncateForLog(message, i.maxLogLen)),
	)

	raw, err := i.generator.GenerateContent(ctx, system, message)
	if err != nil {
		return nil, &ai.ProviderError{
			Provider:  providerName,
			Err:       err,
			Transient: IsTemporary(err),
		}
	}

	i.logger.Debug("gemini interpretation response",
		zap.String("instrument_id", profile.InstrumentID),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, i.maxLogLen)),
	)

	interpretation := ai.ParseInterpretation(raw)
	interpretation.Provider = providerName + "/" + i.generator.Model()
	interpretation.GeneratedAt = time.Now().UTC()
	return interpretation, nil
}
