package longhorn

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors returned by the orchestrator. Callers match them with
// errors.Is.
var (
	ErrInvalidVersionFormat = errors.New("invalid version format (expected vMAJOR.MINOR.PATCH)")
	ErrManifestFetchFailed  = errors.New("manifest fetch failed")
	ErrApplyFailed          = errors.New("apply failed")
	ErrTimeout              = errors.New("timed out waiting for longhorn to become ready")
	ErrBundleIncomplete     = errors.New("backup bundle is incomplete")
	ErrNoVersionsDetermined = errors.New("no longhorn version could be determined from deployed images")
	ErrUserCancelled        = errors.New("cancelled by user")
	ErrArtifactExportFailed = errors.New("artifact export failed")
)

// TimeoutError reports a readiness wait that ran out of time, together with
// the last state that was observed.
type TimeoutError struct {
	Timeout time.Duration
	Last    ReadinessState
	LastErr error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("timed out after %s waiting for longhorn: %s", e.Timeout, e.Last)
	if e.LastErr != nil {
		msg += fmt.Sprintf(" (last error: %v)", e.LastErr)
	}
	return msg
}

// Is makes errors.Is(err, ErrTimeout) match.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// ArtifactError reports a single bundle artifact that could not be exported.
type ArtifactError struct {
	Artifact string
	Err      error
}

func (e *ArtifactError) Error() string {
	return fmt.Sprintf("failed to export %s: %v", e.Artifact, e.Err)
}

// Unwrap exposes both ErrArtifactExportFailed and the underlying cause.
func (e *ArtifactError) Unwrap() []error {
	return []error{ErrArtifactExportFailed, e.Err}
}
