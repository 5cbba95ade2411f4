package job

import "fmt"

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending       Status = "pending"
	StatusBootstrapping Status = "bootstrapping"
	StatusEmitting      Status = "emitting"
	StatusSucceeded     Status = "succeeded"
	StatusFailed        Status = "failed"
)

var transitions = map[Status][]Status{
	StatusPending:       {StatusBootstrapping, StatusEmitting},
	StatusBootstrapping: {StatusEmitting, StatusSucceeded, StatusFailed},
	StatusEmitting:      {StatusSucceeded, StatusFailed},
}

// Terminal reports whether no further phase may run.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// CanTransition reports whether moving from s to next is a forward step.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TransitionError is returned for a backward or otherwise illegal move.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal job transition %s -> %s", e.From, e.To)
}

func phaseStatus(p Phase) Status {
	switch p {
	case PhaseBootstrap:
		return StatusBootstrapping
	case PhaseEmit:
		return StatusEmitting
	default:
		panic(fmt.Sprintf("job: unhandled phase %q", p))
	}
}
