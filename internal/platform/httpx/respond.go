// Package httpx provides HTTP response utilities following RFC7807 problem details.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/linfan/backend/internal/apperr"
)

// ProblemDetail represents RFC7807 problem details.
type ProblemDetail struct {
	Type   string            `json:"type,omitempty"`
	Title  string            `json:"title"`
	Status int               `json:"status"`
	Detail string            `json:"detail,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Problem sends an RFC7807 problem details response.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ProblemDetail{
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// DecodeJSON decodes the request body into target and validates it with v.
// A nil validator skips struct validation.
func DecodeJSON(r *http.Request, v *validator.Validate, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return decodeFailure(err)
	}
	return validate(v, target)
}

// DecodeOptionalJSON is DecodeJSON for endpoints whose body may be omitted.
func DecodeOptionalJSON(r *http.Request, v *validator.Validate, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil && !errors.Is(err, io.EOF) {
		return decodeFailure(err)
	}
	return validate(v, target)
}

// decodeFailure keeps validation errors raised by field decoders (such as an
// out-of-range amount) so they are reported like other validation failures.
func decodeFailure(err error) error {
	if errors.Is(err, apperr.ErrValidation) {
		return err
	}
	return &DecodeError{Err: err}
}

func validate(v *validator.Validate, target any) error {
	if v == nil {
		return nil
	}
	if err := v.Struct(target); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fmt.Sprintf("failed %q", fe.Tag())
			}
			return &InvalidBodyError{Fields: fields}
		}
		return err
	}
	return nil
}

// DecodeError reports a body that is not valid JSON for the target.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "invalid JSON: " + e.Err.Error() }

func (e *DecodeError) Unwrap() error { return e.Err }

// InvalidBodyError reports struct-tag validation failures per field.
type InvalidBodyError struct {
	Fields map[string]string
}

func (e *InvalidBodyError) Error() string { return "request body failed validation" }
