package recommend

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/talentroute/assessd/internal/ai"
	"github.com/talentroute/assessd/internal/attempt"
	"github.com/talentroute/assessd/internal/scoring"
)

type scriptedInterpreter struct {
	replies []scriptedReply
	calls   int
}

type scriptedReply struct {
	interpretation *ai.Interpretation
	err            error
}

func (s *scriptedInterpreter) Interpret(context.Context, *scoring.Profile) (*ai.Interpretation, error) {
	idx := s.calls
	if idx >= len(s.replies) {
		idx = len(s.replies) - 1
	}
	s.calls++
	reply := s.replies[idx]
	return reply.interpretation, reply.err
}

type recordingIngester struct {
	recs []*attempt.Recommendation
	err  error
}

func (r *recordingIngester) Ingest(_ context.Context, attemptID string, rec *attempt.Recommendation) error {
	if r.err != nil {
		return r.err
	}
	stored := *rec
	stored.AttemptID = attemptID
	r.recs = append(r.recs, &stored)
	return nil
}

func transientErr() error {
	return &ai.ProviderError{Provider: "gemini", Err: errors.New("quota"), Transient: true}
}

func permanentErr() error {
	return &ai.ProviderError{Provider: "gemini", Err: errors.New("model removed")}
}

func interpretation(summary string) *ai.Interpretation {
	return &ai.Interpretation{
		Summary:     summary,
		Provider:    "gemini/gemini-2.5-flash",
		GeneratedAt: time.Now().UTC(),
	}
}

func taskPayload(t *testing.T, task *attempt.Task) []byte {
	t.Helper()
	payload, err := json.Marshal(task)
	require.NoError(t, err)
	return payload
}

func newTestWorker(t *testing.T, store attempt.Store, interp ai.Interpreter, ingester Ingester, maxRetries int) *Worker {
	t.Helper()
	providers := ai.NewProviders("")
	providers.Register("gemini", "gemini-2.5-flash", interp)
	return NewWorker(store, &capturingQueue{}, providers, ingester, maxRetries, time.Millisecond, zap.NewNop())
}

func pendingTask(attemptID string) *attempt.Task {
	return &attempt.Task{
		ID:          "task-1",
		AttemptID:   attemptID,
		Profile:     &scoring.Profile{InstrumentID: "disc"},
		Provider:    "gemini",
		RequestedAt: time.Now().UTC(),
		Outcome:     attempt.TaskPending,
	}
}

func TestWorkerDeliversInterpretation(t *testing.T) {
	store := attempt.NewMemoryStore()
	interp := &scriptedInterpreter{replies: []scriptedReply{
		{interpretation: interpretation("steady profile")},
	}}
	ingester := &recordingIngester{}
	w := newTestWorker(t, store, interp, ingester, 3)

	task := pendingTask("a1")
	require.NoError(t, store.SaveTask(context.Background(), task))
	require.NoError(t, w.handle(context.Background(), taskPayload(t, task)))

	require.Len(t, ingester.recs, 1)
	assert.Equal(t, "a1", ingester.recs[0].AttemptID)
	assert.Equal(t, "steady profile", ingester.recs[0].Summary)
	assert.Equal(t, "gemini/gemini-2.5-flash", ingester.recs[0].Provider)

	stored, err := store.GetTask(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, attempt.TaskDelivered, stored.Outcome)
	assert.Equal(t, 1, stored.Deliveries)
}

func TestWorkerRetriesTransientFailures(t *testing.T) {
	store := attempt.NewMemoryStore()
	interp := &scriptedInterpreter{replies: []scriptedReply{
		{err: transientErr()},
		{err: transientErr()},
		{interpretation: interpretation("third time lucky")},
	}}
	ingester := &recordingIngester{}
	w := newTestWorker(t, store, interp, ingester, 3)

	require.NoError(t, w.handle(context.Background(), taskPayload(t, pendingTask("a1"))))

	require.Len(t, ingester.recs, 1)
	assert.Equal(t, "third time lucky", ingester.recs[0].Summary)
}

func TestWorkerDoesNotRetryPermanentFailures(t *testing.T) {
	store := attempt.NewMemoryStore()
	interp := &scriptedInterpreter{replies: []scriptedReply{
		{err: permanentErr()},
		{interpretation: interpretation("never reached")},
	}}
	ingester := &recordingIngester{}
	w := newTestWorker(t, store, interp, ingester, 3)

	require.NoError(t, w.handle(context.Background(), taskPayload(t, pendingTask("a1"))))

	assert.Empty(t, ingester.recs)
	assert.Equal(t, 1, interp.calls)

	stored, err := store.GetTask(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, attempt.TaskFailed, stored.Outcome)
}

func TestWorkerExhaustionMarksTaskFailed(t *testing.T) {
	store := attempt.NewMemoryStore()
	interp := &scriptedInterpreter{replies: []scriptedReply{
		{err: transientErr()},
		{err: transientErr()},
	}}
	ingester := &recordingIngester{}
	w := newTestWorker(t, store, interp, ingester, 2)

	// the handler absorbs the failure so the queue does not redeliver
	require.NoError(t, w.handle(context.Background(), taskPayload(t, pendingTask("a1"))))

	assert.Empty(t, ingester.recs)
	stored, err := store.GetTask(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, attempt.TaskFailed, stored.Outcome)
}

func TestWorkerSkipsDeliveredTask(t *testing.T) {
	store := attempt.NewMemoryStore()
	interp := &scriptedInterpreter{replies: []scriptedReply{
		{interpretation: interpretation("should not be called")},
	}}
	ingester := &recordingIngester{}
	w := newTestWorker(t, store, interp, ingester, 3)

	task := pendingTask("a1")
	delivered := *task
	delivered.Outcome = attempt.TaskDelivered
	require.NoError(t, store.SaveTask(context.Background(), &delivered))

	require.NoError(t, w.handle(context.Background(), taskPayload(t, task)))

	assert.Empty(t, ingester.recs)
	assert.Equal(t, 0, interp.calls)
}

func TestWorkerToleratesDuplicateIngestion(t *testing.T) {
	store := attempt.NewMemoryStore()
	interp := &scriptedInterpreter{replies: []scriptedReply{
		{interpretation: interpretation("already stored")},
	}}
	ingester := &recordingIngester{err: attempt.ErrAlreadyRecommended}
	w := newTestWorker(t, store, interp, ingester, 3)

	require.NoError(t, w.handle(context.Background(), taskPayload(t, pendingTask("a1"))))

	stored, err := store.GetTask(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, attempt.TaskDelivered, stored.Outcome)
}

func TestWorkerRequeuesOnIngesterFailure(t *testing.T) {
	store := attempt.NewMemoryStore()
	interp := &scriptedInterpreter{replies: []scriptedReply{
		{interpretation: interpretation("will not land")},
		{interpretation: interpretation("will not land")},
	}}
	ingester := &recordingIngester{err: errors.New("store unavailable")}
	w := newTestWorker(t, store, interp, ingester, 3)

	err := w.handle(context.Background(), taskPayload(t, pendingTask("a1")))
	assert.Error(t, err, "infrastructure failures must request redelivery")
}

func TestWorkerDiscardsUndecodablePayload(t *testing.T) {
	store := attempt.NewMemoryStore()
	interp := &scriptedInterpreter{replies: []scriptedReply{
		{interpretation: interpretation("unused")},
	}}
	w := newTestWorker(t, store, interp, &recordingIngester{}, 3)

	assert.NoError(t, w.handle(context.Background(), []byte("{not json")))
	assert.Equal(t, 0, interp.calls)
}

func TestWorkerFailsUnknownProvider(t *testing.T) {
	store := attempt.NewMemoryStore()
	w := newTestWorker(t, store, &scriptedInterpreter{replies: []scriptedReply{{}}}, &recordingIngester{}, 3)

	task := pendingTask("a1")
	task.Provider = "watson/quantum"
	require.NoError(t, w.handle(context.Background(), taskPayload(t, task)))

	stored, err := store.GetTask(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, attempt.TaskFailed, stored.Outcome)
}
