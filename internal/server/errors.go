// Package server provides the HTTP API for submitting videos and streaming
// analysis progress.
package server

import (
	"net/http"

	"github.com/cliplens/cliplens/internal/pipeline"
)

// ErrInvalidCredentials indicates a failed login attempt.
type ErrInvalidCredentials struct{}

func (e *ErrInvalidCredentials) Error() string {
	return "invalid name or access password"
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	switch err.(type) {
	case *ErrInvalidCredentials:
		return http.StatusUnauthorized
	case *pipeline.ValidationError:
		return http.StatusBadRequest
	case *pipeline.NotFoundError:
		return http.StatusNotFound
	case *pipeline.PayloadTooLargeError:
		return http.StatusRequestEntityTooLarge
	case *pipeline.SchemaValidationError:
		return http.StatusUnprocessableEntity
	case *pipeline.UpstreamServiceError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
