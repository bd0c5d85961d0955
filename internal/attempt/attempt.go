// Package attempt owns the assessment attempt lifecycle: the durable record,
// the state machine over it, and the exactly-once ingestion of AI
// recommendations.
package attempt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/talentroute/assessd/internal/instrument"
	"github.com/talentroute/assessd/internal/scoring"
)

// Status is the lifecycle state of an attempt.
type Status string

const (
	StatusStarted               Status = "started"
	StatusInProgress            Status = "in_progress"
	StatusScored                Status = "scored"
	StatusRecommendationPending Status = "recommendation_pending"
	StatusRecommendationReady   Status = "recommendation_ready"
	StatusFailed                Status = "failed"
)

var (
	ErrAttemptNotFound    = errors.New("attempt not found")
	ErrNotOwner           = errors.New("attempt belongs to another subject")
	ErrInvalidState       = errors.New("operation not allowed in the attempt's current state")
	ErrNotEntitled        = errors.New("subject is not entitled to this instrument")
	ErrScoring            = errors.New("scoring failed")
	ErrAlreadyRecommended = errors.New("a recommendation is already stored for this attempt")
	ErrNotReady           = errors.New("recommendation is not ready yet")
	ErrAttemptInProgress  = errors.New("an open attempt already exists for this instrument")
	ErrTaskNotFound       = errors.New("recommendation task not found")
)

// IncompleteError names the item ids still missing from an attempt at
// submission time, in the instrument's publication order.
type IncompleteError struct {
	Missing []string
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("incomplete responses, missing items: %s", strings.Join(e.Missing, ", "))
}

// Attempt is one subject's run through an instrument.
type Attempt struct {
	ID           string                       `json:"id"`
	SubjectID    string                       `json:"subjectId"`
	InstrumentID string                       `json:"instrumentId"`
	Status       Status                       `json:"status"`
	StartedAt    time.Time                    `json:"startedAt"`
	UpdatedAt    time.Time                    `json:"updatedAt"`
	SubmittedAt  *time.Time                   `json:"submittedAt,omitempty"`
	Responses    map[string]instrument.Answer `json:"responses"`

	// Profile is set exactly once, at submission, and never recomputed.
	Profile *scoring.Profile `json:"profile,omitempty"`

	// Recommendation is set exactly once, by the ingester.
	Recommendation *Recommendation `json:"recommendation,omitempty"`
}

// Recommendation is the AI-generated interpretation of a score profile,
// at most one per attempt.
type Recommendation struct {
	AttemptID   string    `json:"attemptId"`
	Provider    string    `json:"provider"`
	Summary     string    `json:"summary"`
	Strengths   []string  `json:"strengths,omitempty"`
	Suggestions []string  `json:"suggestions,omitempty"`
	Raw         string    `json:"raw,omitempty"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// TaskOutcome is the delivery state of a recommendation task.
type TaskOutcome string

const (
	TaskPending   TaskOutcome = "pending"
	TaskDelivered TaskOutcome = "delivered"
	TaskFailed    TaskOutcome = "failed"
)

// Task is the unit of work handed to the recommendation queue. It snapshots
// the profile so workers never re-read mutable attempt state.
type Task struct {
	ID          string           `json:"id"`
	AttemptID   string           `json:"attemptId"`
	Profile     *scoring.Profile `json:"profile"`
	Provider    string           `json:"provider,omitempty"`
	RequestedAt time.Time        `json:"requestedAt"`
	Deliveries  int              `json:"deliveries"`
	Outcome     TaskOutcome      `json:"outcome"`
}

// Summary is the listing view of an attempt.
type Summary struct {
	ID           string     `json:"id"`
	InstrumentID string     `json:"instrumentId"`
	Status       Status     `json:"status"`
	StartedAt    time.Time  `json:"startedAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	SubmittedAt  *time.Time `json:"submittedAt,omitempty"`
	Answered     int        `json:"answered"`
	Required     int        `json:"required"`
}

// open reports whether the response map may still be mutated.
func (a *Attempt) open() bool {
	return a.Status == StatusStarted || a.Status == StatusInProgress
}

func (a *Attempt) clone() *Attempt {
	dup := *a
	dup.Responses = make(map[string]instrument.Answer, len(a.Responses))
	for k, v := range a.Responses {
		dup.Responses[k] = v
	}
	if a.SubmittedAt != nil {
		t := *a.SubmittedAt
		dup.SubmittedAt = &t
	}
	if a.Recommendation != nil {
		rec := *a.Recommendation
		dup.Recommendation = &rec
	}
	return &dup
}
