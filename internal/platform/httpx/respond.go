package httpx

import (
	"encoding/json"
	"net/http"
)

const (
	contentTypeJSON    = "application/json"
	contentTypeProblem = "application/problem+json"
)

// ProblemDetail is an RFC 7807 document. Type carries the stable error kind.
type ProblemDetail struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// JSON writes data with the given status.
func JSON(w http.ResponseWriter, status int, data any) {
	write(w, status, contentTypeJSON, data)
}

// Problem writes a problem document titled with the standard status text.
func Problem(w http.ResponseWriter, status int, detail string) {
	writeProblem(w, ProblemDetail{Title: http.StatusText(status), Status: status, Detail: detail})
}

func writeProblem(w http.ResponseWriter, problem ProblemDetail) {
	if problem.Title == "" {
		problem.Title = http.StatusText(problem.Status)
	}
	write(w, problem.Status, contentTypeProblem, problem)
}

func write(w http.ResponseWriter, status int, contentType string, body any) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
