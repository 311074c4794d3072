package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/printhub/printhub/internal/ledger"
	"github.com/printhub/printhub/internal/observability"
	_ "github.com/printhub/printhub/testing"
)

const testCredential = "colombo.s3cret"

func newTestContainer(t *testing.T) (*Container, http.Handler) {
	t.Helper()
	cfg := &Config{
		StoreDriver:        DriverMemory,
		LockBackend:        LockLocal,
		BranchTokens:       "colombo:s3cret,kandy:k4ndy",
		PhoneRegion:        "LK",
		RateLimitPerMinute: 1000,
		AppRequestTimeout:  5 * time.Second,
	}
	require.NoError(t, cfg.Validate())
	c, err := Build(context.Background(), cfg, nil, observability.NewMetrics())
	require.NoError(t, err)
	t.Cleanup(c.Close)

	store, ok := c.Store.(*ledger.MemoryStore)
	require.True(t, ok)
	store.PutInventoryItem(ledger.InventoryItem{
		ID:        ledger.NewID(),
		Branch:    "colombo",
		ProductID: "PID-100",
		Name:      "A3 poster",
		Quantity:  decimal.NewFromInt(12),
		Status:    ledger.StockIn,
	})
	return c, c.Router()
}

func call(t *testing.T, router http.Handler, method, path, credential, body string, out any) int {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if out != nil && rec.Code < 300 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func TestOpsEndpoints(t *testing.T) {
	_, router := newTestContainer(t)

	require.Equal(t, http.StatusOK, call(t, router, http.MethodGet, "/healthz", "", "", nil))

	var health map[string]any
	require.Equal(t, http.StatusOK, call(t, router, http.MethodGet, "/jobs/health", "", "", &health))
	require.Equal(t, false, health["enabled"])

	require.Equal(t, http.StatusNotFound, call(t, router, http.MethodGet, "/nope", "", "", nil))
}

func TestAPIRequiresBranchCredential(t *testing.T) {
	_, router := newTestContainer(t)

	require.Equal(t, http.StatusUnauthorized, call(t, router, http.MethodGet, "/api/deferred-payments", "", "", nil))
	require.Equal(t, http.StatusUnauthorized, call(t, router, http.MethodGet, "/api/deferred-payments", "colombo.wrong", "", nil))
	require.Equal(t, http.StatusOK, call(t, router, http.MethodGet, "/api/deferred-payments", testCredential, "", nil))
}

func TestChequeLifecycleOverHTTP(t *testing.T) {
	c, router := newTestContainer(t)

	var created struct {
		Order ledger.Order `json:"order"`
		Task  ledger.Task  `json:"task"`
	}
	status := call(t, router, http.MethodPost, "/api/tasks", testCredential,
		`{"customer_name":"Nimal","customer_phone":"0771234567","products":[{"product_ref":"PID-100","unit_price":"500","quantity":"2"}]}`, &created)
	require.Equal(t, http.StatusCreated, status)
	taskPath := "/api/tasks/" + created.Task.ID

	require.Equal(t, http.StatusOK, call(t, router, http.MethodPost, taskPath+"/start", testCredential, "", nil))
	require.Equal(t, http.StatusNotFound, call(t, router, http.MethodGet, taskPath, "kandy.k4ndy", "", nil))

	var paid struct {
		Message string      `json:"message"`
		Task    ledger.Task `json:"task"`
	}
	status = call(t, router, http.MethodPost, taskPath+"/payments", testCredential,
		`{"amount":"1000","method":"cheque","cheque_number":"000451","bank_name":"BOC"}`, &paid)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, ledger.TaskTemporaryCompleted, paid.Task.Status)

	var deferred struct {
		Items []ledger.DeferredPayment `json:"items"`
	}
	require.Equal(t, http.StatusOK, call(t, router, http.MethodGet, "/api/deferred-payments?status=pending", testCredential, "", &deferred))
	require.Len(t, deferred.Items, 1)
	require.Equal(t, "000451", deferred.Items[0].ChequeNumber)

	var resolved ledger.Task
	status = call(t, router, http.MethodPost, taskPath+"/cheque", testCredential, `{"outcome":"cleared"}`, &resolved)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, ledger.TaskCompleted, resolved.Status)
	require.Equal(t, ledger.ClearanceCleared, resolved.ChequeStatus)

	store := c.Store.(*ledger.MemoryStore)
	items, err := store.ListDeferredPayments(context.Background(), ledger.DeferredFilter{Status: ledger.ClearancePending})
	require.NoError(t, err)
	require.Empty(t, items)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Contains(t, rec.Body.String(), `printhub_payments_recorded_total{method="cheque",outcome="temporary_completed"} 1`)
	require.Contains(t, rec.Body.String(), `printhub_deferred_resolutions_total{method="cheque",outcome="cleared"} 1`)
}

func TestCreditFlowOverHTTP(t *testing.T) {
	_, router := newTestContainer(t)

	var balance struct {
		CustomerKey string          `json:"customer_key"`
		Balance     decimal.Decimal `json:"balance"`
	}
	status := call(t, router, http.MethodPost, "/api/credits", testCredential,
		`{"customer_key":"077 123 4567","name":"Nimal","amount":"1500"}`, &balance)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "+94771234567", balance.CustomerKey)

	var created struct {
		Task ledger.Task `json:"task"`
	}
	status = call(t, router, http.MethodPost, "/api/tasks", testCredential,
		`{"customer_name":"Nimal","customer_phone":"0771234567","product_ref":"PID-100","price":"250","quantity":"4"}`, &created)
	require.Equal(t, http.StatusCreated, status)
	taskPath := "/api/tasks/" + created.Task.ID

	var paid struct {
		Message string `json:"message"`
	}
	require.Equal(t, http.StatusOK, call(t, router, http.MethodPost, taskPath+"/payments", testCredential, `{"amount":"1000","method":"credits"}`, &paid))
	require.Contains(t, paid.Message, "pending credit clearance")

	require.Equal(t, http.StatusOK, call(t, router, http.MethodGet, "/api/credits/+94771234567", testCredential, "", &balance))
	require.True(t, balance.Balance.Equal(decimal.NewFromInt(500)))

	var task ledger.Task
	require.Equal(t, http.StatusOK, call(t, router, http.MethodPost, taskPath+"/credit-settlement", testCredential, "", &task))
	require.Equal(t, ledger.TaskCompleted, task.Status)

	var movement struct {
		Quantity decimal.Decimal `json:"quantity"`
	}
	status = call(t, router, http.MethodPost, "/api/inventory/adjustments", testCredential, `{"product_ref":"PID-100","quantity":"5"}`, &movement)
	require.Equal(t, http.StatusOK, status)
	require.True(t, movement.Quantity.Equal(decimal.NewFromInt(13)))
}
