package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/printhub/printhub/internal/shared"
)

func TestRespondErrorMapsKinds(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		kind   string
		detail bool
	}{
		{"not found", fmt.Errorf("task t1: %w", shared.ErrNotFound), http.StatusNotFound, shared.KindNotFound, true},
		{"invalid", shared.Invalidf("amount must be positive"), http.StatusBadRequest, shared.KindInvalidArgument, true},
		{"conflict", shared.Conflictf("cheque already resolved"), http.StatusConflict, shared.KindConflict, true},
		{"balance", fmt.Errorf("debit 50: %w", shared.ErrInsufficientBalance), http.StatusConflict, shared.KindInsufficientBalance, true},
		{"internal", errors.New("connection reset"), http.StatusInternalServerError, shared.KindInternal, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			RespondError(rr, tc.err)
			require.Equal(t, tc.status, rr.Code)

			var body ProblemDetail
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			require.Equal(t, tc.kind, body.Type)
			require.Equal(t, tc.status, body.Status)
			if tc.detail {
				require.Equal(t, tc.err.Error(), body.Detail)
			} else {
				require.Empty(t, body.Detail)
			}
		})
	}
}

type bindTarget struct {
	Amount string `json:"amount" validate:"required"`
	Method string `json:"method" validate:"required,oneof=cash card"`
}

func TestBind(t *testing.T) {
	validate := validator.New()
	cases := map[string]struct {
		body string
		ok   bool
	}{
		"valid":          {body: `{"amount":"10","method":"cash"}`, ok: true},
		"unknown field":  {body: `{"amount":"10","method":"cash","tip":1}`},
		"trailing data":  {body: `{"amount":"10","method":"cash"}{}`},
		"failed tag":     {body: `{"amount":"10","method":"barter"}`},
		"missing amount": {body: `{"method":"card"}`},
		"malformed":      {body: `{"amount":`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			var target bindTarget
			err := Bind(req, validate, &target)
			if tc.ok {
				require.NoError(t, err)
				require.Equal(t, "cash", target.Method)
				return
			}
			require.ErrorIs(t, err, shared.ErrInvalidArgument)
		})
	}
}

func TestProblemUsesStatusText(t *testing.T) {
	rr := httptest.NewRecorder()
	Problem(rr, http.StatusServiceUnavailable, "queue unavailable")

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "Service Unavailable", body.Title)
	require.Equal(t, "queue unavailable", body.Detail)
}
