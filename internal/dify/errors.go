package dify

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Operation names carried by StatusError
const (
	OpUpload = "upload file"
	OpRun    = "run workflow"
	OpFetch  = "fetch result"
)

var (
	// ErrTimeout is returned when an API call exceeds the client timeout
	ErrTimeout = errors.New("workflow API request timed out")
	// ErrNoOutput is returned when a succeeded run carries no output file URL
	ErrNoOutput = errors.New("workflow response contains no output URL")
)

// StatusError reports an unexpected HTTP status from the workflow API
type StatusError struct {
	Op       string
	Expected int
	Got      int
	Body     string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: expected status %d, got %d", e.Op, e.Expected, e.Got)
	}
	return fmt.Sprintf("%s: expected status %d, got %d: %s", e.Op, e.Expected, e.Got, e.Body)
}

// WorkflowError reports a run that finished with a status other than succeeded
type WorkflowError struct {
	RunID   string
	Status  string
	Message string
}

func (e *WorkflowError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("workflow run %s finished with status %q", e.RunID, e.Status)
	}
	return fmt.Sprintf("workflow run %s finished with status %q: %s", e.RunID, e.Status, e.Message)
}

// IsTimeout reports whether err comes from a request that ran out of time,
// whichever client made it.
func IsTimeout(err error) bool {
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// wrapTransportError maps deadline errors onto ErrTimeout
func wrapTransportError(op string, err error) error {
	if IsTimeout(err) {
		return fmt.Errorf("%s: %w", op, ErrTimeout)
	}
	return fmt.Errorf("%s: %w", op, err)
}
