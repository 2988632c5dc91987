package triage

import "errors"

// Failure taxonomy of a triage cycle. Handlers wrap the underlying cause with %w so both the
// category and the cause stay visible to errors.Is.
var (
	ErrClassificationFailure = errors.New("classification failure")
	ErrNoResponderAvailable  = errors.New("no responder available")
	ErrPersistenceFailure    = errors.New("persistence failure")
	ErrCompletionFailure     = errors.New("completion failure")
	ErrDialFailure           = errors.New("dial failure")

	ErrEmptyMessage = errors.New("message text is required")
)

// Code maps an error to a stable identifier for API payloads. It returns "" for nil.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrClassificationFailure):
		return "classification_failure"
	case errors.Is(err, ErrNoResponderAvailable):
		return "no_responder_available"
	case errors.Is(err, ErrPersistenceFailure):
		return "persistence_failure"
	case errors.Is(err, ErrCompletionFailure):
		return "completion_failure"
	case errors.Is(err, ErrDialFailure):
		return "dial_failure"
	case errors.Is(err, ErrEmptyMessage):
		return "empty_message"
	default:
		return "internal"
	}
}
