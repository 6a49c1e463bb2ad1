package coordinator

import (
	"errors"
	"fmt"
)

var (
	// ErrCollaborationNotFound is returned for unknown collaboration ids.
	ErrCollaborationNotFound = errors.New("collaboration not found")

	// ErrDuplicateParticipant is returned when a party registers twice.
	ErrDuplicateParticipant = errors.New("party already registered")

	// ErrParticipantNotRegistered is returned when a party is not registered
	// for the collaboration.
	ErrParticipantNotRegistered = errors.New("party not registered")

	// ErrAlreadyUploaded is returned when a party confirms a second upload or
	// withdraws after uploading.
	ErrAlreadyUploaded = errors.New("upload already confirmed")

	// ErrInvalidUpload is returned for an upload without share ids.
	ErrInvalidUpload = errors.New("upload must reference at least one secret")

	// ErrInvalidCollaboration is returned when a collaboration cannot be created.
	ErrInvalidCollaboration = errors.New("invalid collaboration")

	// ErrProcessingNotFinished is returned while the result is not available.
	ErrProcessingNotFinished = errors.New("processing not finished")
)

// ExecutionFailedError carries the terminal failure message of an execution.
type ExecutionFailedError struct {
	Message string
}

func (e *ExecutionFailedError) Error() string {
	return fmt.Sprintf("MPC execution failed: %s", e.Message)
}

// Kind classifies errors for callers that translate them to status codes.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindUnprocessable
	KindExecutionFailed
	KindAlreadyReported
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindConflict:
		return "conflict"
	case KindUnprocessable:
		return "unprocessable"
	case KindExecutionFailed:
		return "execution failed"
	case KindAlreadyReported:
		return "already reported"
	default:
		return "internal"
	}
}

// KindOf classifies err. Unknown errors are internal.
func KindOf(err error) Kind {
	var execErr *ExecutionFailedError
	switch {
	case err == nil:
		return KindInternal
	case errors.As(err, &execErr):
		return KindExecutionFailed
	case errors.Is(err, ErrCollaborationNotFound),
		errors.Is(err, ErrParticipantNotRegistered),
		errors.Is(err, ErrRecordNotFound):
		return KindNotFound
	case errors.Is(err, ErrDuplicateParticipant):
		return KindAlreadyReported
	case errors.Is(err, ErrProcessingNotFinished),
		errors.Is(err, ErrAlreadyUploaded),
		errors.Is(err, ErrRecordExists),
		errors.Is(err, ErrRecordConflict):
		return KindConflict
	case errors.Is(err, ErrInvalidUpload),
		errors.Is(err, ErrInvalidCollaboration):
		return KindUnprocessable
	default:
		return KindInternal
	}
}
