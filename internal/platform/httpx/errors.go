// Package httpx provides HTTP response utilities.
package httpx

import (
	"net/http"

	"github.com/printhub/printhub/internal/shared"
)

// StatusFor maps a domain error to its HTTP status code.
func StatusFor(err error) int {
	switch shared.KindOf(err) {
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindInvalidArgument:
		return http.StatusBadRequest
	case shared.KindConflict, shared.KindInsufficientBalance:
		return http.StatusConflict
	case shared.KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps domain errors to HTTP responses using RFC7807.
// Internal errors never leak their message.
func RespondError(w http.ResponseWriter, err error) {
	kind := shared.KindOf(err)
	status := StatusFor(err)
	detail := err.Error()
	if kind == shared.KindInternal {
		detail = ""
	}
	writeProblem(w, ProblemDetail{
		Type:   kind,
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
	})
}
