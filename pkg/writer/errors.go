package writer

import (
	"errors"
	"fmt"

	"github.com/Mindburn-Labs/cockpit/pkg/oracle"
)

// ErrorKind classifies pipeline failures by how the caller should
// react to them.
type ErrorKind string

const (
	// KindFatalLiveness: kill switch tripped. Never retried.
	KindFatalLiveness ErrorKind = "fatal_liveness"
	// KindValidation: bad path or malformed explanation. Correct the
	// input and resubmit.
	KindValidation ErrorKind = "validation"
	// KindPolicyBlocked: oracle or policy gate refused. Resubmission
	// needs a materially different change or explanation.
	KindPolicyBlocked ErrorKind = "policy_blocked"
	// KindIntegrityFailure: a hash, signature or encryption operation
	// failed. Fatal for the attempt; may indicate tampering.
	KindIntegrityFailure ErrorKind = "integrity_failure"
	// KindIOFailure: temp write, rename or fsync failed. Safe to retry;
	// the atomic-rename discipline leaves no partial state.
	KindIOFailure ErrorKind = "io_failure"
	// KindConcurrencyContention: the advisory lock is held elsewhere.
	// Retryable with backoff.
	KindConcurrencyContention ErrorKind = "concurrency_contention"
)

// PipelineError tags a failure with the step that raised it and its
// kind. Oracle and gate blocks carry the verdict for machine-readable
// scores.
type PipelineError struct {
	Step    string
	Kind    ErrorKind
	Verdict *oracle.Verdict
	Err     error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Step, e.Kind, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

func stepErr(step string, kind ErrorKind, err error) *PipelineError {
	return &PipelineError{Step: step, Kind: kind, Err: err}
}

// AsPipelineError unwraps err to a *PipelineError if there is one.
func AsPipelineError(err error) (*PipelineError, bool) {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
