package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/printhub/printhub/internal/ledger"
	"github.com/printhub/printhub/internal/platform/httpx"
	"github.com/printhub/printhub/internal/shared"
)

func newTestRouter(f *fixture) http.Handler {
	h := NewHandler(nil, f.engine, shared.NewMemoryIdempotency())
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if branch := req.Header.Get("X-Test-Branch"); branch != "" {
				req = req.WithContext(shared.ContextWithBranch(req.Context(), branch))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Route("/api/tasks", h.MountRoutes)
	return r
}

func postPayment(t *testing.T, router http.Handler, taskID, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/tasks/"+taskID+"/payments", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) httpx.ProblemDetail {
	t.Helper()
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	return problem
}

func TestHandlerRecordsPayment(t *testing.T) {
	f := newFixture()
	task := f.seed(t, taskSetup{})
	router := newTestRouter(f)

	rec := postPayment(t, router, task.ID, `{"amount":"1000","method":"cheque","cheque_number":"55","bank_name":"NSB"}`,
		map[string]string{"X-Test-Branch": "colombo"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Message              string `json:"message"`
		IsTemporaryCompleted bool   `json:"is_temporary_completed"`
		Task                 struct {
			Status       ledger.TaskStatus      `json:"status"`
			ChequeStatus ledger.ClearanceStatus `json:"cheque_status"`
		} `json:"task"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, MessagePendingCheque, body.Message)
	require.True(t, body.IsTemporaryCompleted)
	require.Equal(t, ledger.TaskTemporaryCompleted, body.Task.Status)
	require.Equal(t, ledger.ClearancePending, body.Task.ChequeStatus)
}

func TestHandlerRejectsInvalidBodies(t *testing.T) {
	f := newFixture()
	task := f.seed(t, taskSetup{})
	router := newTestRouter(f)

	cases := map[string]string{
		"unknown method": `{"amount":"10","method":"barter"}`,
		"zero amount":    `{"amount":"0","method":"cash"}`,
		"unknown field":  `{"amount":"10","method":"cash","tip":"5"}`,
		"malformed":      `{"amount":`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := postPayment(t, router, task.ID, body, nil)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			problem := decodeProblem(t, rec)
			require.Equal(t, shared.KindInvalidArgument, problem.Type)
			require.Equal(t, http.StatusBadRequest, problem.Status)
		})
	}
}

func TestHandlerMapsDomainErrors(t *testing.T) {
	f := newFixture()
	task := f.seed(t, taskSetup{phone: "cust-9"})
	router := newTestRouter(f)

	rec := postPayment(t, router, task.ID, `{"amount":"10","method":"cash"}`, map[string]string{"X-Test-Branch": "kandy"})
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, shared.KindNotFound, decodeProblem(t, rec).Type)

	rec = postPayment(t, router, task.ID, `{"amount":"10","method":"credits"}`, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, shared.KindInsufficientBalance, decodeProblem(t, rec).Type)
}

func TestHandlerIdempotencyKey(t *testing.T) {
	f := newFixture()
	task := f.seed(t, taskSetup{})
	router := newTestRouter(f)
	headers := map[string]string{"Idempotency-Key": "till-7-0001"}

	rec := postPayment(t, router, task.ID, `{"amount":"400","method":"cash"}`, headers)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postPayment(t, router, task.ID, `{"amount":"400","method":"cash"}`, headers)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, shared.KindConflict, decodeProblem(t, rec).Type)

	reloaded, err := f.store.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	require.Len(t, reloaded.PaymentHistory, 1)
}

func TestHandlerReleasesIdempotencyKeyOnFailure(t *testing.T) {
	f := newFixture()
	task := f.seed(t, taskSetup{})
	router := newTestRouter(f)
	headers := map[string]string{"Idempotency-Key": "till-7-0002"}

	rec := postPayment(t, router, task.ID, `{"amount":"10","method":"credits"}`, headers)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postPayment(t, router, task.ID, `{"amount":"10","method":"cash"}`, headers)
	require.Equal(t, http.StatusOK, rec.Code)
}
