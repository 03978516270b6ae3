package pipeline

import "fmt"

// ValidationError indicates malformed or missing input. No network call is
// made and the run stays in (or reverts to) its pre-stage state.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// NotFoundError indicates an upstream fetch yielded no data for a
// valid-looking input.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s", e.Resource)
}

// UpstreamServiceError indicates an external dependency failed or was
// unreachable. Service names the collaborator so the UI can say which step
// failed.
type UpstreamServiceError struct {
	Service string
	Cause   error
}

func (e *UpstreamServiceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s service error: %v", e.Service, e.Cause)
	}
	return fmt.Sprintf("%s service error", e.Service)
}

func (e *UpstreamServiceError) Unwrap() error {
	return e.Cause
}

// PayloadTooLargeError indicates the probed media size exceeds the configured
// limit. The expensive download is never attempted.
type PayloadTooLargeError struct {
	Size  int64
	Limit int64
}

func (e *PayloadTooLargeError) Error() string {
	return fmt.Sprintf("media is %d bytes, exceeds the %d byte limit", e.Size, e.Limit)
}

// SchemaValidationError indicates the final streamed analysis did not conform
// to the expected shape. The run is marked errored but the last good partial
// remains visible.
type SchemaValidationError struct {
	Cause error
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("analysis failed schema validation: %v", e.Cause)
}

func (e *SchemaValidationError) Unwrap() error {
	return e.Cause
}
