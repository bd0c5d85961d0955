package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/talentroute/assessd/internal/attempt"
	"github.com/talentroute/assessd/internal/entitlement"
	"github.com/talentroute/assessd/internal/instrument"
	"github.com/talentroute/assessd/internal/queue"
	"github.com/talentroute/assessd/internal/recommend"
	"github.com/talentroute/assessd/internal/scoring"
)

type testAPI struct {
	server *Server
	svc    *attempt.Service
	store  *attempt.MemoryStore
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store := attempt.NewMemoryStore()
	q := queue.NewMemory(1, zap.NewNop())
	t.Cleanup(func() { q.Close() })

	dispatcher := recommend.NewDispatcher(store, q, "gemini", zap.NewNop())
	svc := attempt.NewService(
		store,
		instrument.NewRegistry(),
		scoring.NewEngine(),
		entitlement.AllowAll{},
		dispatcher,
		attempt.Config{AllowConcurrent: true},
		zap.NewNop(),
	)
	return &testAPI{
		server: New(svc, dispatcher, zap.NewNop()),
		svc:    svc,
		store:  store,
	}
}

func (api *testAPI) do(method, path, subjectID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if subjectID != "" {
		req.Header.Set(HeaderSubjectID, subjectID)
	}
	rec := httptest.NewRecorder()
	api.server.e.ServeHTTP(rec, req)
	return rec
}

func (api *testAPI) startSwanson(t *testing.T, subjectID string) string {
	t.Helper()
	rec := api.do(http.MethodPost, "/attempts", subjectID, `{"instrumentId": "swanson"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return gjson.Get(rec.Body.String(), "attemptId").String()
}

func (api *testAPI) answerAll(t *testing.T, subjectID, attemptID string) {
	t.Helper()
	for i := 1; i <= 16; i++ {
		body := fmt.Sprintf(`{"itemId": "swanson-%d", "answer": 2}`, i)
		rec := api.do(http.MethodPost, "/attempts/"+attemptID+"/responses", subjectID, body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(http.MethodGet, "/", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMissingSubjectHeader(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(http.MethodPost, "/attempts", "", `{"instrumentId": "disc"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMalformedAgeHeader(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodPost, "/attempts", strings.NewReader(`{"instrumentId": "disc"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSubjectID, "subj")
	req.Header.Set(HeaderSubjectAge, "twelve")
	rec := httptest.NewRecorder()
	api.server.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartAttempt(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodPost, "/attempts", "subj", `{"instrumentId": "disc"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotEmpty(t, gjson.Get(rec.Body.String(), "attemptId").String())
	assert.Equal(t, "started", gjson.Get(rec.Body.String(), "status").String())
}

func TestStartAttemptUnknownInstrument(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(http.MethodPost, "/attempts", "subj", `{"instrumentId": "tarot"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartAttemptMissingInstrumentID(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(http.MethodPost, "/attempts", "subj", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSaveResponseValidation(t *testing.T) {
	api := newTestAPI(t)
	attemptID := api.startSwanson(t, "subj")

	rec := api.do(http.MethodPost, "/attempts/"+attemptID+"/responses", "subj",
		`{"itemId": "swanson-1", "answer": 9}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "swanson-1", gjson.Get(rec.Body.String(), "message.item").String())

	rec = api.do(http.MethodPost, "/attempts/"+attemptID+"/responses", "subj",
		`{"itemId": "swanson-99", "answer": 2}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSaveResponseForeignSubject(t *testing.T) {
	api := newTestAPI(t)
	attemptID := api.startSwanson(t, "subj")

	rec := api.do(http.MethodPost, "/attempts/"+attemptID+"/responses", "intruder",
		`{"itemId": "swanson-1", "answer": 2}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSubmitIncomplete(t *testing.T) {
	api := newTestAPI(t)
	attemptID := api.startSwanson(t, "subj")

	rec := api.do(http.MethodPost, "/attempts/"+attemptID+"/submit", "subj", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	missing := gjson.Get(rec.Body.String(), "message.missing").Array()
	assert.Len(t, missing, 16)
}

func TestSubmitFlow(t *testing.T) {
	api := newTestAPI(t)
	attemptID := api.startSwanson(t, "subj")
	api.answerAll(t, "subj", attemptID)

	rec := api.do(http.MethodPost, "/attempts/"+attemptID+"/submit", "subj", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var profile scoring.Profile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profile))
	assert.Equal(t, "swanson", profile.InstrumentID)
	assert.Equal(t, 12.0, profile.Dimensions["inattention"])

	// a second submit conflicts
	rec = api.do(http.MethodPost, "/attempts/"+attemptID+"/submit", "subj", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRecommendationLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	attemptID := api.startSwanson(t, "subj")
	api.answerAll(t, "subj", attemptID)

	rec := api.do(http.MethodPost, "/attempts/"+attemptID+"/submit", "subj", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(http.MethodGet, "/attempts/"+attemptID+"/recommendation", "subj", "")
	assert.Equal(t, http.StatusAccepted, rec.Code, "pending recommendations report not-ready")

	require.NoError(t, api.svc.Ingest(context.Background(), attemptID, &attempt.Recommendation{
		Provider: "gemini/gemini-2.5-flash",
		Summary:  "focused and persistent",
	}))

	rec = api.do(http.MethodGet, "/attempts/"+attemptID+"/recommendation", "subj", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "focused and persistent", gjson.Get(rec.Body.String(), "summary").String())

	rec = api.do(http.MethodGet, "/attempts/"+attemptID+"/recommendation", "someone-else", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListAttempts(t *testing.T) {
	api := newTestAPI(t)
	api.startSwanson(t, "subj")
	api.startSwanson(t, "subj")

	rec := api.do(http.MethodGet, "/attempts", "subj", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, gjson.Parse(rec.Body.String()).Array(), 2)

	rec = api.do(http.MethodGet, "/attempts", "stranger", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, gjson.Parse(rec.Body.String()).Array(), 0)
}

func TestGetAttemptNotFound(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(http.MethodGet, "/attempts/ghost", "subj", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOperatorPendingAndRedispatch(t *testing.T) {
	api := newTestAPI(t)
	attemptID := api.startSwanson(t, "subj")
	api.answerAll(t, "subj", attemptID)

	rec := api.do(http.MethodPost, "/attempts/"+attemptID+"/submit", "subj", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(http.MethodGet, "/operator/attempts/pending", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	pending := gjson.Parse(rec.Body.String()).Array()
	require.Len(t, pending, 1)
	assert.Equal(t, attemptID, pending[0].Get("id").String())

	rec = api.do(http.MethodPost, "/operator/attempts/"+attemptID+"/dispatch", "",
		`{"provider": "openai/gpt-4o-mini"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	// redispatching an attempt that is not pending conflicts
	otherID := api.startSwanson(t, "subj")
	rec = api.do(http.MethodPost, "/operator/attempts/"+otherID+"/dispatch", "", `{}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}
