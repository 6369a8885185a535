package setup

import (
	"errors"
	"fmt"
)

// Kind classifies a failed run for the process exit code.
type Kind int

const (
	KindInternal Kind = iota + 1
	KindCredential
	KindDNS
	KindRuntime
	KindContainer
)

func (k Kind) String() string {
	switch k {
	case KindCredential:
		return "credential"
	case KindDNS:
		return "dns"
	case KindRuntime:
		return "runtime"
	case KindContainer:
		return "container"
	default:
		return "internal"
	}
}

// ExitCode is the process exit status for a failure of this kind.
func (k Kind) ExitCode() int {
	switch k {
	case KindCredential:
		return 2
	case KindDNS:
		return 3
	case KindRuntime:
		return 4
	case KindContainer:
		return 5
	default:
		return 1
	}
}

// StepError is a fatal failure of one step.
type StepError struct {
	Step StepID
	Kind Kind
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step.Label(), e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func stepErr(step StepID, kind Kind, err error) error {
	return &StepError{Step: step, Kind: kind, Err: err}
}

// ExitCode maps a run error to the process exit status: 0 for nil, the
// kind's code for a StepError and 1 for anything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var se *StepError
	if errors.As(err, &se) {
		return se.Kind.ExitCode()
	}
	return 1
}
