package provision

import "strings"

// ResponseStatus classifies a failed result.
type ResponseStatus int

const (
	// StatusOK indicates success.
	StatusOK ResponseStatus = iota
	// StatusErrorRetry indicates a transient failure the caller may retry.
	StatusErrorRetry
	// StatusFatalError indicates a terminal failure.
	StatusFatalError
)

// String returns a short label for the status.
func (s ResponseStatus) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusErrorRetry:
		return "error_retry"
	case StatusFatalError:
		return "fatal_error"
	default:
		return "unknown"
	}
}

// StatusResult is the uniform success/failure envelope returned by
// provisioning operations. Failures carry a classification and a
// human-readable message list; successes carry the content.
type StatusResult[T any] struct {
	Status   ResponseStatus `json:"status"`
	Content  T              `json:"content,omitempty"`
	Messages []string       `json:"messages,omitempty"`
}

// Success creates a successful result wrapping content.
func Success[T any](content T) StatusResult[T] {
	return StatusResult[T]{Status: StatusOK, Content: content}
}

// Failure creates a failed result with the given classification and messages.
func Failure[T any](status ResponseStatus, messages ...string) StatusResult[T] {
	return StatusResult[T]{Status: status, Messages: messages}
}

// Fatal creates a terminally failed result.
func Fatal[T any](messages ...string) StatusResult[T] {
	return Failure[T](StatusFatalError, messages...)
}

// Succeeded reports whether the result is a success.
func (r StatusResult[T]) Succeeded() bool {
	return r.Status == StatusOK
}

// FatalError reports whether the result is a terminal failure.
func (r StatusResult[T]) FatalError() bool {
	return r.Status == StatusFatalError
}

// FailureDetail joins the failure messages into a single string.
func (r StatusResult[T]) FailureDetail() string {
	return strings.Join(r.Messages, "; ")
}
