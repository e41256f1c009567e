package costapi

import (
	"errors"
	"fmt"
)

var (
	// ErrNoOrganizationFound is returned when the credential sees no organizations.
	ErrNoOrganizationFound = errors.New("no organization found for credential")

	// ErrUpstreamRequestFailed matches every *UpstreamError.
	ErrUpstreamRequestFailed = errors.New("upstream request failed")

	// ErrTimeout is returned when a request exceeds the client timeout.
	ErrTimeout = errors.New("upstream request timed out")
)

// UpstreamError carries the status of a non-successful provider response.
type UpstreamError struct {
	Op         string
	StatusCode int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: upstream returned status %d", e.Op, e.StatusCode)
}

// Is lets errors.Is match ErrUpstreamRequestFailed.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstreamRequestFailed
}

// StatusCode extracts the upstream status from err, or 0.
func StatusCode(err error) int {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.StatusCode
	}
	return 0
}
