package screening

import (
	"errors"

	"github.com/rotisserie/eris"
)

// ErrEmptyText guards the classify action: empty or whitespace-only
// document text is never sent to the backend as if it were evidence.
var ErrEmptyText = eris.New("screening: empty document text")

// BackendError marks a failed or malformed classification call. The
// gateway never converts a backend failure into a decision; callers
// choose to retry, skip, or abort.
type BackendError struct {
	Err error
}

func (e *BackendError) Error() string {
	return "screening: backend: " + e.Err.Error()
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// IsBackendError reports whether err chains to a BackendError.
func IsBackendError(err error) bool {
	var be *BackendError
	return errors.As(err, &be)
}
