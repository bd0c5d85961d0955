package recommend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/talentroute/assessd/internal/ai"
	"github.com/talentroute/assessd/internal/attempt"
	"github.com/talentroute/assessd/internal/queue"
	"github.com/talentroute/assessd/internal/utils"
)

// Ingester persists a finished interpretation exactly once per attempt.
// Duplicate deliveries must surface attempt.ErrAlreadyRecommended.
type Ingester interface {
	Ingest(ctx context.Context, attemptID string, rec *attempt.Recommendation) error
}

const (
	defaultMaxRetries = 3
	defaultBackoff    = 5 * time.Second
)

// Worker consumes recommendation tasks, calls the AI provider with bounded
// retries on transient failures, and records the task outcome. Provider
// exhaustion leaves the attempt in recommendation_pending for a manual
// redispatch; only infrastructure errors request queue redelivery.
type Worker struct {
	store      attempt.Store
	queue      queue.Queue
	providers  *ai.Providers
	ingester   Ingester
	maxRetries int
	backoff    time.Duration
	logger     *zap.Logger
}

// NewWorker builds a worker. maxRetries and backoff fall back to defaults
// when non-positive.
func NewWorker(store attempt.Store, q queue.Queue, providers *ai.Providers, ingester Ingester, maxRetries int, backoff time.Duration, logger *zap.Logger) *Worker {
	if maxRetries < 1 {
		maxRetries = defaultMaxRetries
	}
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	return &Worker{
		store:      store,
		queue:      q,
		providers:  providers,
		ingester:   ingester,
		maxRetries: maxRetries,
		backoff:    backoff,
		logger:     logger,
	}
}

// Start subscribes the worker to the task queue.
func (w *Worker) Start(ctx context.Context) error {
	return w.queue.Subscribe(ctx, w.handle)
}

func (w *Worker) handle(ctx context.Context, payload []byte) error {
	var task attempt.Task
	if err := json.Unmarshal(payload, &task); err != nil {
		w.logger.Error("discarding undecodable task payload", zap.Error(err))
		return nil
	}

	log := w.logger.With(
		zap.String("attempt_id", task.AttemptID),
		zap.String("task_id", task.ID),
		zap.String("provider", task.Provider),
	)

	// a crashed-and-redelivered task may already be done
	if persisted, err := w.store.GetTask(ctx, task.AttemptID); err == nil && persisted.Outcome == attempt.TaskDelivered {
		log.Debug("task already delivered, ignoring redelivery")
		return nil
	}

	interpretation, err := w.interpret(ctx, log, &task)
	task.Deliveries++

	if err != nil {
		task.Outcome = attempt.TaskFailed
		if saveErr := w.store.SaveTask(ctx, &task); saveErr != nil {
			return fmt.Errorf("recording failed task %s: %w", task.ID, saveErr)
		}
		log.Error("recommendation task failed, attempt left pending", zap.Error(err))
		return nil
	}

	rec := &attempt.Recommendation{
		AttemptID:   task.AttemptID,
		Provider:    interpretation.Provider,
		Summary:     interpretation.Summary,
		Strengths:   interpretation.Strengths,
		Suggestions: interpretation.Suggestions,
		Raw:         interpretation.Raw,
		GeneratedAt: interpretation.GeneratedAt,
	}
	if err := w.ingester.Ingest(ctx, task.AttemptID, rec); err != nil {
		if !errors.Is(err, attempt.ErrAlreadyRecommended) {
			return fmt.Errorf("ingesting recommendation for attempt %s: %w", task.AttemptID, err)
		}
		log.Debug("duplicate delivery resolved by ingester")
	}

	task.Outcome = attempt.TaskDelivered
	if err := w.store.SaveTask(ctx, &task); err != nil {
		return fmt.Errorf("recording delivered task %s: %w", task.ID, err)
	}

	log.Info("recommendation delivered")
	return nil
}

// interpret retries transient provider failures with linear backoff up to
// the configured attempt count.
func (w *Worker) interpret(ctx context.Context, log *zap.Logger, task *attempt.Task) (*ai.Interpretation, error) {
	interpreter, err := w.providers.Resolve(task.Provider)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for try := 1; try <= w.maxRetries; try++ {
		interpretation, err := interpreter.Interpret(ctx, task.Profile)
		if err == nil {
			return interpretation, nil
		}
		lastErr = err
		if !ai.IsTransient(err) {
			return nil, err
		}
		if try == w.maxRetries {
			break
		}

		wait := w.backoff * time.Duration(try)
		log.Warn("transient provider failure, backing off",
			zap.Int("try", try),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		if err := utils.WaitFor(ctx, wait); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("provider retries exhausted: %w", lastErr)
}
