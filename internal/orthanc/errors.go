package orthanc

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTransport is matched by every non-success outcome of an archive call.
	ErrTransport = errors.New("orthanc transport failure")
	// ErrNotFound is matched when the archive answered 404.
	ErrNotFound = errors.New("orthanc resource not found")
)

// TransportError describes a failed request against the archive. StatusCode is
// zero when no response was received at all.
type TransportError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("orthanc %s %s failed: %v", e.Method, e.Path, e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("orthanc %s %s returned status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("orthanc %s %s returned status %d", e.Method, e.Path, e.StatusCode)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool {
	switch target {
	case ErrTransport:
		return true
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}
