package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	falcomAuth "github.com/MrEthical07/falcomAuth"
)

const maxBodyBytes = 64 << 10

// decodeJSON reads exactly one JSON object into dst. Unknown fields,
// non-string values for string fields, trailing data and oversized bodies
// are rejected with a *falcomAuth.ValidationError.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		return &falcomAuth.ValidationError{Reason: "Content-Type must be application/json"}
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return decodeError(err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return &falcomAuth.ValidationError{Reason: "request body must contain a single JSON object"}
	}
	return nil
}

func decodeError(err error) error {
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
		maxErr    *http.MaxBytesError
	)
	switch {
	case errors.As(err, &maxErr):
		return &falcomAuth.ValidationError{Reason: fmt.Sprintf("request body must not exceed %d bytes", maxBodyBytes)}
	case errors.As(err, &typeErr):
		if typeErr.Field != "" {
			return &falcomAuth.ValidationError{Field: typeErr.Field, Reason: "must be a string"}
		}
		return &falcomAuth.ValidationError{Reason: "request body must be a JSON object"}
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return &falcomAuth.ValidationError{Reason: "request body is not valid JSON"}
	case errors.Is(err, io.EOF):
		return &falcomAuth.ValidationError{Reason: "request body is required"}
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		field := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
		return &falcomAuth.ValidationError{Field: field, Reason: "is not allowed"}
	default:
		return &falcomAuth.ValidationError{Reason: "request body is invalid"}
	}
}
