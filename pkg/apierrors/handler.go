// Package apierrors provides HTTP error handling utilities for the
// grid's intra-cluster API, grounded directly on the teacher's
// pkg/api/errors decorator.
package apierrors

import (
	"net/http"

	"github.com/stacklok/gridcore/pkg/errors"
	"github.com/stacklok/gridcore/pkg/logger"
)

// HandlerWithError is an HTTP handler that can return an error. This
// signature lets handlers return errors instead of writing error
// responses themselves, centralizing the status-code mapping.
type HandlerWithError func(http.ResponseWriter, *http.Request) error

// ErrorHandler wraps a HandlerWithError and converts a returned error
// into an HTTP response.
//
//   - Returns early if fn returns nil (the handler already wrote a response).
//   - Extracts the HTTP status code from the error using errors.Code.
//   - For 5xx errors: logs full detail, returns a generic message to the client.
//   - For 4xx errors: returns the error message to the client.
func ErrorHandler(fn HandlerWithError) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}

		code := errors.Code(err)
		if code >= http.StatusInternalServerError {
			logger.Errorf("internal server error: %v", err)
			http.Error(w, http.StatusText(code), code)
			return
		}
		http.Error(w, err.Error(), code)
	}
}
