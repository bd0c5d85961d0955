package attempt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/talentroute/assessd/internal/entitlement"
	"github.com/talentroute/assessd/internal/instrument"
	"github.com/talentroute/assessd/internal/scoring"
)

// Dispatcher hands a scored attempt to the asynchronous recommendation
// pipeline. Implementations must be idempotent per attempt id.
type Dispatcher interface {
	Dispatch(ctx context.Context, attemptID string, profile *scoring.Profile) error
}

// Config carries the service's policy knobs.
type Config struct {
	// AllowConcurrent permits a subject to hold more than one open attempt
	// for the same instrument (retake while another run is unfinished).
	AllowConcurrent bool
}

// Service drives the attempt state machine. All mutations run inside the
// store's per-attempt critical section, so concurrent saves and submits for
// one attempt never interleave destructively.
type Service struct {
	store        Store
	registry     *instrument.Registry
	engine       *scoring.Engine
	entitlements entitlement.Checker
	dispatcher   Dispatcher
	cfg          Config
	logger       *zap.Logger

	now func() time.Time
}

// NewService wires the state machine over its collaborators.
func NewService(store Store, registry *instrument.Registry, engine *scoring.Engine, entitlements entitlement.Checker, dispatcher Dispatcher, cfg Config, logger *zap.Logger) *Service {
	return &Service{
		store:        store,
		registry:     registry,
		engine:       engine,
		entitlements: entitlements,
		dispatcher:   dispatcher,
		cfg:          cfg,
		logger:       logger,
		now:          time.Now,
	}
}

// Start creates a new attempt in state started with an empty response map.
func (s *Service) Start(ctx context.Context, subject entitlement.Subject, instrumentID string) (*Attempt, error) {
	ins, err := s.registry.Describe(instrumentID)
	if err != nil {
		return nil, err
	}

	allowed, err := s.entitlements.Check(ctx, subject, instrumentID)
	if err != nil {
		return nil, fmt.Errorf("checking entitlement: %w", err)
	}
	if !allowed {
		return nil, fmt.Errorf("%w: %s", ErrNotEntitled, instrumentID)
	}

	if !s.cfg.AllowConcurrent {
		existing, err := s.store.ListAttemptsBySubject(ctx, subject.ID)
		if err != nil {
			return nil, err
		}
		for _, a := range existing {
			if a.InstrumentID == instrumentID && a.open() {
				return nil, fmt.Errorf("%w: attempt %s", ErrAttemptInProgress, a.ID)
			}
		}
	}

	now := s.now().UTC()
	a := &Attempt{
		ID:           uuid.NewString(),
		SubjectID:    subject.ID,
		InstrumentID: ins.ID,
		Status:       StatusStarted,
		StartedAt:    now,
		UpdatedAt:    now,
		Responses:    make(map[string]instrument.Answer),
	}
	if err := s.store.CreateAttempt(ctx, a); err != nil {
		return nil, fmt.Errorf("creating attempt: %w", err)
	}

	s.logger.Info("attempt started",
		zap.String("attempt_id", a.ID),
		zap.String("subject_id", subject.ID),
		zap.String("instrument_id", ins.ID),
	)
	return a, nil
}

// SaveResponse validates the fragment and merges it into the attempt's
// response map, last write wins. The first save advances started to
// in_progress. A validation failure leaves the attempt untouched.
func (s *Service) SaveResponse(ctx context.Context, attemptID, subjectID, itemID string, fragment any) error {
	_, err := s.store.UpdateAttempt(ctx, attemptID, func(a *Attempt) error {
		if a.SubjectID != subjectID {
			return ErrNotOwner
		}
		if !a.open() {
			return fmt.Errorf("%w: status is %s", ErrInvalidState, a.Status)
		}

		ins, err := s.registry.Describe(a.InstrumentID)
		if err != nil {
			return err
		}
		answer, err := instrument.Validate(ins, itemID, fragment)
		if err != nil {
			return err
		}

		a.Responses[itemID] = answer
		a.Status = StatusInProgress
		a.UpdatedAt = s.now().UTC()
		return nil
	})
	return err
}

// Submit freezes the response map, scores it synchronously, and hands the
// profile to the recommendation dispatcher. Scoring failures are terminal
// for the attempt; dispatch failures are too, since the task was never
// durably enqueued.
func (s *Service) Submit(ctx context.Context, attemptID, subjectID string) (*scoring.Profile, error) {
	updated, err := s.store.UpdateAttempt(ctx, attemptID, func(a *Attempt) error {
		if a.SubjectID != subjectID {
			return ErrNotOwner
		}
		if !a.open() {
			return fmt.Errorf("%w: status is %s", ErrInvalidState, a.Status)
		}

		ins, err := s.registry.Describe(a.InstrumentID)
		if err != nil {
			return err
		}
		if missing := missingItems(ins, a.Responses); len(missing) > 0 {
			return &IncompleteError{Missing: missing}
		}

		profile, err := s.score(ins, a.Responses)
		if err != nil {
			// configuration defect: freeze the attempt, surface the error
			now := s.now().UTC()
			a.Status = StatusFailed
			a.UpdatedAt = now
			return nil // persist the failed state, error reported below
		}

		now := s.now().UTC()
		a.Profile = profile
		a.Status = StatusScored
		a.SubmittedAt = &now
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	if updated.Status == StatusFailed {
		s.logger.Error("scoring failed, attempt marked terminal",
			zap.String("attempt_id", attemptID),
			zap.String("instrument_id", updated.InstrumentID),
		)
		return nil, fmt.Errorf("%w: instrument %s", ErrScoring, updated.InstrumentID)
	}

	if err := s.dispatcher.Dispatch(ctx, attemptID, updated.Profile); err != nil {
		s.transition(ctx, attemptID, StatusScored, StatusFailed)
		return nil, fmt.Errorf("dispatching recommendation for attempt %s: %w", attemptID, err)
	}
	s.transition(ctx, attemptID, StatusScored, StatusRecommendationPending)

	s.logger.Info("attempt submitted and scored",
		zap.String("attempt_id", attemptID),
		zap.String("instrument_id", updated.InstrumentID),
	)
	return updated.Profile, nil
}

// score isolates the engine call so a panicking scoring function cannot take
// the request down; any panic is a configuration defect reported as an error.
func (s *Service) score(ins *instrument.Instrument, responses map[string]instrument.Answer) (profile *scoring.Profile, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scoring panic for %s: %v", ins.ID, r)
		}
	}()
	return s.engine.Score(ins, responses)
}

// transition moves the attempt from exactly one expected state into the next.
// A mismatch means a concurrent actor already advanced it (for example a fast
// worker ingesting before submit returns), which is fine to leave alone.
func (s *Service) transition(ctx context.Context, attemptID string, from, to Status) {
	_, err := s.store.UpdateAttempt(ctx, attemptID, func(a *Attempt) error {
		if a.Status != from {
			return fmt.Errorf("%w: expected %s, found %s", ErrInvalidState, from, a.Status)
		}
		a.Status = to
		a.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil && !errors.Is(err, ErrInvalidState) {
		s.logger.Warn("state transition not persisted",
			zap.String("attempt_id", attemptID),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.Error(err),
		)
	}
}

// ListAttempts returns the subject's attempts, newest first.
func (s *Service) ListAttempts(ctx context.Context, subjectID string) ([]Summary, error) {
	attempts, err := s.store.ListAttemptsBySubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	summaries := make([]Summary, 0, len(attempts))
	for _, a := range attempts {
		required := 0
		if ins, err := s.registry.Describe(a.InstrumentID); err == nil {
			required = ins.Len()
		}
		summaries = append(summaries, Summary{
			ID:           a.ID,
			InstrumentID: a.InstrumentID,
			Status:       a.Status,
			StartedAt:    a.StartedAt,
			UpdatedAt:    a.UpdatedAt,
			SubmittedAt:  a.SubmittedAt,
			Answered:     len(a.Responses),
			Required:     required,
		})
	}
	return summaries, nil
}

// GetRecommendation returns the stored interpretation, or ErrNotReady while
// the asynchronous pipeline has not delivered one.
func (s *Service) GetRecommendation(ctx context.Context, attemptID, subjectID string) (*Recommendation, error) {
	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if a.SubjectID != subjectID {
		return nil, ErrNotOwner
	}
	if a.Recommendation == nil {
		return nil, ErrNotReady
	}
	return a.Recommendation, nil
}

// Ingest persists the AI interpretation exactly once per attempt. Duplicate
// and late deliveries return ErrAlreadyRecommended, which callers treat as
// success.
func (s *Service) Ingest(ctx context.Context, attemptID string, rec *Recommendation) error {
	_, err := s.store.UpdateAttempt(ctx, attemptID, func(a *Attempt) error {
		if a.Recommendation != nil {
			return ErrAlreadyRecommended
		}
		switch a.Status {
		case StatusScored, StatusRecommendationPending:
		default:
			return fmt.Errorf("%w: cannot ingest in status %s", ErrInvalidState, a.Status)
		}
		stored := *rec
		stored.AttemptID = attemptID
		if stored.GeneratedAt.IsZero() {
			stored.GeneratedAt = s.now().UTC()
		}
		a.Recommendation = &stored
		a.Status = StatusRecommendationReady
		a.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("recommendation ingested",
		zap.String("attempt_id", attemptID),
		zap.String("provider", rec.Provider),
	)
	return nil
}

// GetAttempt returns the full attempt after an ownership check.
func (s *Service) GetAttempt(ctx context.Context, attemptID, subjectID string) (*Attempt, error) {
	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if a.SubjectID != subjectID {
		return nil, ErrNotOwner
	}
	return a, nil
}

// ListPending returns attempts stuck waiting on a recommendation, for the
// operator surface.
func (s *Service) ListPending(ctx context.Context) ([]Summary, error) {
	attempts, err := s.store.ListAttemptsByStatus(ctx, StatusRecommendationPending)
	if err != nil {
		return nil, err
	}
	summaries := make([]Summary, 0, len(attempts))
	for _, a := range attempts {
		summaries = append(summaries, Summary{
			ID:           a.ID,
			InstrumentID: a.InstrumentID,
			Status:       a.Status,
			StartedAt:    a.StartedAt,
			UpdatedAt:    a.UpdatedAt,
			SubmittedAt:  a.SubmittedAt,
			Answered:     len(a.Responses),
		})
	}
	return summaries, nil
}

func missingItems(ins *instrument.Instrument, responses map[string]instrument.Answer) []string {
	var missing []string
	for _, id := range ins.ItemIDs() {
		if _, ok := responses[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
