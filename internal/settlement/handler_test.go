package settlement

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (chi.Router, *stubLedger) {
	t.Helper()
	svc, _, led, _ := testFixture()
	r := chi.NewRouter()
	NewHandler(nil, svc).MountRoutes(r)
	return r, led
}

func TestHandlerListObligations(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/customers/42/obligations", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body []obligationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 3)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/customers/abc/obligations", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerPreviewOldestFirst(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/settlements/preview", strings.NewReader(`{"customerId": 42, "totalAmount": 120}`))
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body allocationResultResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 120.0, body.TotalApplied)
	require.Equal(t, 0.0, body.Unallocated)
	require.Len(t, body.Entries, 3)
	require.Equal(t, int64(1), body.Entries[0].ObligationID)
	require.Equal(t, 60.0, body.Entries[2].Remaining)
}

func TestHandlerPreviewValidation(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/settlements/preview", strings.NewReader(`{"totalAmount": 120}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/settlements/preview", strings.NewReader(`not json`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerPreviewSelectionRuleViolation(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/settlements/preview-selection",
		strings.NewReader(`{"customerId": 42, "targets": [{"obligationId": 1, "amount": 105}]}`))
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var problem ruleProblem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, RuleAmountExceedsOutstanding, problem.Rule)
	require.Equal(t, int64(1), problem.ObligationID)
}

func TestHandlerConfirmSettlement(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/settlements",
		strings.NewReader(`{"customerId": 42, "method": "TRANSFER", "totalAmount": 80}`))
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created proposalResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, string(ProposalPending), string(created.Status))
	require.Len(t, created.Allocations, 2)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/settlements/"+created.ID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandlerGetProposalNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/settlements/"+uuid.NewString(), nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/settlements/not-a-uuid", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
