// Package recommend runs the asynchronous recommendation pipeline: the
// dispatcher enqueues scored attempts, the worker pool interprets them and
// feeds the result back through the idempotent ingester.
package recommend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nuid"
	"go.uber.org/zap"

	"github.com/talentroute/assessd/internal/attempt"
	"github.com/talentroute/assessd/internal/queue"
	"github.com/talentroute/assessd/internal/scoring"
)

// Dispatcher persists recommendation tasks and publishes them to the queue.
// Dispatching an attempt that already carries a live task is a no-op, so the
// submit path may call it any number of times.
type Dispatcher struct {
	store           attempt.Store
	queue           queue.Queue
	defaultProvider string
	logger          *zap.Logger

	now func() time.Time
}

// NewDispatcher wires the dispatcher over the store and task queue.
func NewDispatcher(store attempt.Store, q queue.Queue, defaultProvider string, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		store:           store,
		queue:           q,
		defaultProvider: defaultProvider,
		logger:          logger,
		now:             time.Now,
	}
}

// Dispatch enqueues the profile for interpretation, once per attempt.
func (d *Dispatcher) Dispatch(ctx context.Context, attemptID string, profile *scoring.Profile) error {
	existing, err := d.store.GetTask(ctx, attemptID)
	if err != nil && !errors.Is(err, attempt.ErrTaskNotFound) {
		return fmt.Errorf("looking up task for attempt %s: %w", attemptID, err)
	}
	if existing != nil && existing.Outcome != attempt.TaskFailed {
		d.logger.Debug("task already enqueued, skipping dispatch",
			zap.String("attempt_id", attemptID),
			zap.String("task_id", existing.ID),
			zap.String("outcome", string(existing.Outcome)),
		)
		return nil
	}

	return d.publish(ctx, &attempt.Task{
		ID:          nuid.Next(),
		AttemptID:   attemptID,
		Profile:     profile,
		Provider:    d.defaultProvider,
		RequestedAt: d.now().UTC(),
		Outcome:     attempt.TaskPending,
	})
}

// Redispatch re-sends a stuck recommendation_pending attempt, optionally to a
// named provider/model key. Operator initiated; it replaces the previous
// task regardless of its outcome.
func (d *Dispatcher) Redispatch(ctx context.Context, attemptID, providerKey string) error {
	a, err := d.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return err
	}
	if a.Status != attempt.StatusRecommendationPending {
		return fmt.Errorf("%w: attempt is %s, not %s",
			attempt.ErrInvalidState, a.Status, attempt.StatusRecommendationPending)
	}

	if providerKey == "" {
		providerKey = d.defaultProvider
	}

	return d.publish(ctx, &attempt.Task{
		ID:          nuid.Next(),
		AttemptID:   attemptID,
		Profile:     a.Profile,
		Provider:    providerKey,
		RequestedAt: d.now().UTC(),
		Outcome:     attempt.TaskPending,
	})
}

func (d *Dispatcher) publish(ctx context.Context, task *attempt.Task) error {
	if err := d.store.SaveTask(ctx, task); err != nil {
		return fmt.Errorf("saving task %s: %w", task.ID, err)
	}

	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task %s: %w", task.ID, err)
	}
	if err := d.queue.Publish(ctx, payload); err != nil {
		return fmt.Errorf("publishing task %s: %w", task.ID, err)
	}

	d.logger.Info("recommendation task enqueued",
		zap.String("attempt_id", task.AttemptID),
		zap.String("task_id", task.ID),
		zap.String("provider", task.Provider),
	)
	return nil
}
