package processor

import "errors"

// Status is a claimed job's position in the processing pipeline.
// States progress linearly; the only way out of a non-terminal state
// other than forward progress is a transition to Failed.
type Status string

// Pipeline states, per SPEC_FULL.md's per-job state machine.
const (
	StatusClaimed    Status = "CLAIMED"
	StatusResolving  Status = "RESOLVING"
	StatusChunking   Status = "CHUNKING"
	StatusSeparating Status = "SEPARATING"
	StatusMerging    Status = "MERGING"
	StatusEncoding   Status = "ENCODING"
	StatusPublished  Status = "PUBLISHED"
	StatusArchived   Status = "ARCHIVED"
	StatusFailed     Status = "FAILED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("processor: invalid state transition")

var validTransitions = map[Status][]Status{
	StatusClaimed:    {StatusResolving, StatusFailed},
	StatusResolving:  {StatusChunking, StatusFailed},
	StatusChunking:   {StatusSeparating, StatusFailed},
	StatusSeparating: {StatusMerging, StatusFailed},
	StatusMerging:    {StatusEncoding, StatusFailed},
	StatusEncoding:   {StatusPublished, StatusFailed},
	StatusPublished:  {StatusArchived, StatusFailed},
	StatusArchived:   {},
	StatusFailed:     {},
}

func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Run tracks one claimed job's progress through the pipeline.
// FailureReason is set only when Status is StatusFailed, and names the
// disposition subdirectory (e.g. "separation", "corrupt").
type Run struct {
	JobID         string
	Status        Status
	FailureReason string
}

// NewRun starts a Run in the Claimed state.
func NewRun(jobID string) *Run {
	return &Run{JobID: jobID, Status: StatusClaimed}
}

// Advance transitions the run to status, failing ErrInvalidTransition
// if the transition isn't allowed from the current state.
func (r *Run) Advance(status Status) error {
	if !canTransition(r.Status, status) {
		return ErrInvalidTransition
	}
	r.Status = status
	return nil
}

// Fail transitions the run to StatusFailed with reason, used as the
// archive disposition subdirectory.
func (r *Run) Fail(reason string) error {
	if !canTransition(r.Status, StatusFailed) {
		return ErrInvalidTransition
	}
	r.Status = StatusFailed
	r.FailureReason = reason
	return nil
}
