package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/printhub/printhub/internal/shared"
)

// maxBodyBytes bounds request bodies accepted by Bind.
const maxBodyBytes = 1 << 20

// Bind decodes a JSON body into target and validates its struct tags. Every failure is
// reported as shared.ErrInvalidArgument.
func Bind(r *http.Request, validate *validator.Validate, target any) error {
	if err := decodeJSON(r, target); err != nil {
		return shared.Invalidf("decode request: %v", err)
	}
	if validate == nil {
		return nil
	}
	if err := validate.Struct(target); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			reasons := make([]string, 0, len(fieldErrs))
			for _, fieldErr := range fieldErrs {
				reasons = append(reasons, strings.ToLower(fieldErr.Field())+" failed "+fieldErr.Tag())
			}
			return shared.Invalidf("%s", strings.Join(reasons, "; "))
		}
		return shared.Invalidf("validate request: %v", err)
	}
	return nil
}

// decodeJSON reads exactly one JSON value, rejecting unknown fields and trailing data.
func decodeJSON(r *http.Request, target any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}
