package installer

import (
	"errors"
	"time"
)

type State string

const (
	StateNotStarted State = "not_started"
	StateRunning    State = "running"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
)

func (s State) Label() string {
	switch s {
	case StateRunning:
		return "Running"
	case StateSucceeded:
		return "Succeeded"
	case StateFailed:
		return "Failed"
	default:
		return "Not started"
	}
}

func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

func (s State) valid() bool {
	switch s {
	case StateNotStarted, StateRunning, StateSucceeded, StateFailed:
		return true
	}
	return false
}

var (
	ErrInstallRunning = errors.New("module install already in progress")
	ErrResetRequired  = errors.New("module install already finished; reset the install status first")
	ErrInvalidState   = errors.New("invalid install state transition")
)

// canTransition lists the only edges the controller may take.
func canTransition(from, to State) bool {
	switch from {
	case StateNotStarted:
		return to == StateRunning
	case StateRunning:
		return to == StateSucceeded || to == StateFailed
	case StateSucceeded, StateFailed:
		return to == StateNotStarted
	}
	return false
}

// Status is the installer record shared by every session.
type Status struct {
	State      State     `json:"state"`
	JobID      string    `json:"job_id,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	// JobDone is set once the install script has exited, before the result
	// has been confirmed by a probe.
	JobDone       bool   `json:"-"`
	ExitCode      int    `json:"exit_code"`
	Stdout        string `json:"stdout,omitempty"`
	Stderr        string `json:"stderr,omitempty"`
	Message       string `json:"message,omitempty"`
	ModuleVersion string `json:"module_version,omitempty"`
}
