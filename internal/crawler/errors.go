package crawler

import (
	"errors"

	"github.com/nao1215/sitemirror/internal/model"
)

// Page task errors. Each maps to one model.FailureKind.
var (
	// ErrFetch is a transport failure: the request never produced a response.
	ErrFetch = errors.New("fetch failed")

	// ErrTooLarge is a response body longer than the fetcher's size limit.
	ErrTooLarge = errors.New("response body too large")

	// ErrDecode is a body that could not be decoded to text.
	ErrDecode = errors.New("decode failed")

	// ErrPersist is a failure to write the resource to storage.
	ErrPersist = errors.New("persist failed")

	// ErrPanic is a panic recovered at the task boundary.
	ErrPanic = errors.New("page task panicked")
)

// Coordinator errors.
var (
	// ErrEmptySeed is returned when Run is called without a seed URL.
	ErrEmptySeed = errors.New("seed url is empty")

	// ErrAlreadyRun is returned when Run is called on a used Coordinator.
	ErrAlreadyRun = errors.New("coordinator has already run")
)

// failureKind maps a page task error to its failure kind.
func failureKind(err error) model.FailureKind {
	switch {
	case errors.Is(err, ErrTooLarge):
		return model.FailureTooLarge
	case errors.Is(err, ErrDecode):
		return model.FailureDecode
	case errors.Is(err, ErrPersist):
		return model.FailurePersist
	case errors.Is(err, ErrPanic):
		return model.FailurePanic
	default:
		return model.FailureFetch
	}
}
