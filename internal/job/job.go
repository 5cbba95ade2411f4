// Package job models one simulated user and its lifecycle.
//
// A Job is created pending, moves forward through the phases its [Mode]
// prescribes, and ends either succeeded or failed. Transitions never go
// backwards and nothing runs after a terminal status.
package job

import (
	"io"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/torosent/ga4sim/internal/failure"
)

// Session is what the bootstrap phase yields, or what an mp job synthesizes.
type Session struct {
	ID           string // client identifier, "<digits>.<digits>"
	StartedAt    int64  // session-start unix timestamp reported with every event
	PageTitle    string
	PageLocation string
}

// ErrorInfo is the diagnostic snapshot of the last observed error.
type ErrorInfo struct {
	Phase   Phase         `json:"phase" yaml:"phase"`
	Class   failure.Class `json:"class" yaml:"class"`
	Kind    failure.Kind  `json:"kind" yaml:"kind"`
	Message string        `json:"message" yaml:"message"`
}

// Attempts counts attempts per phase.
type Attempts struct {
	Bootstrap int `json:"bootstrap" yaml:"bootstrap"`
	Emit      int `json:"emit" yaml:"emit"`
}

// Job is the unit of simulation. It is owned by a single goroutine for the
// duration of its execution.
type Job struct {
	ID        string
	Mode      Mode
	Params    SessionParams
	CreatedAt time.Time

	Session    *Session
	Status     Status
	Attempts   Attempts
	LastError  *ErrorInfo
	EventsSent int
	// Report holds remote validation output collected in debug mode.
	Report []string
}

// New creates a pending job. entropy feeds the ULID identifier; pass a
// monotonic reader for ordered, collision-free ids within one run.
func New(mode Mode, params SessionParams, created time.Time, entropy io.Reader) *Job {
	return &Job{
		ID:        ulid.MustNew(ulid.Timestamp(created), entropy).String(),
		Mode:      mode,
		Params:    params,
		CreatedAt: created,
		Status:    StatusPending,
	}
}

// Transition moves the job forward to next.
func (j *Job) Transition(next Status) error {
	if !j.Status.CanTransition(next) {
		return &TransitionError{From: j.Status, To: next}
	}
	j.Status = next
	return nil
}

// BeginPhase enters phase p and resets its attempt counter.
func (j *Job) BeginPhase(p Phase) error {
	if err := j.Transition(phaseStatus(p)); err != nil {
		return err
	}
	switch p {
	case PhaseBootstrap:
		j.Attempts.Bootstrap = 0
	case PhaseEmit:
		j.Attempts.Emit = 0
	}
	return nil
}

// RecordAttempt notes one attempt of phase p and, if it failed, its error.
// The last error is kept even when a later attempt succeeds.
func (j *Job) RecordAttempt(p Phase, err error) {
	switch p {
	case PhaseBootstrap:
		j.Attempts.Bootstrap++
	case PhaseEmit:
		j.Attempts.Emit++
	}
	if err != nil {
		j.RecordFailure(p, err)
	}
}

// RecordFailure stores err as the job's last error without changing status.
func (j *Job) RecordFailure(p Phase, err error) {
	j.LastError = &ErrorInfo{
		Phase:   p,
		Class:   failure.Classify(err),
		Kind:    failure.KindOf(err),
		Message: err.Error(),
	}
}

// Synthesize attaches a locally generated session to a job that skips bootstrap.
func (j *Job) Synthesize() *Session {
	j.Session = &Session{
		ID:        SynthesizeSessionID(j.CreatedAt, j.Params.IDSuffix),
		StartedAt: j.CreatedAt.Unix(),
	}
	return j.Session
}

// Succeed marks the job succeeded.
func (j *Job) Succeed() error {
	return j.Transition(StatusSucceeded)
}

// Fail marks the job failed in phase p with err.
func (j *Job) Fail(p Phase, err error) error {
	if err != nil {
		j.RecordFailure(p, err)
	}
	return j.Transition(StatusFailed)
}
