package domain

import (
	"errors"
	"fmt"

	"github.com/berfenger/echarge2mqtt/pkg/echarge"
)

var (
	ErrAuthDenied   = errors.New("authentication denied")
	ErrConnectivity = errors.New("connectivity error")
	// ErrInvalidCommand is returned for commands rejected before reaching the station.
	ErrInvalidCommand = errors.New("invalid command")
)

// Classify maps any device failure onto ErrAuthDenied or ErrConnectivity, keeping the cause.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrAuthDenied) || errors.Is(err, ErrConnectivity) {
		return err
	}
	return &classifiedError{kind: kindOf(err), err: err}
}

func kindOf(err error) error {
	if errors.Is(err, ErrAuthDenied) || errors.Is(err, echarge.ErrAuthDenied) {
		return ErrAuthDenied
	}
	return ErrConnectivity
}

type classifiedError struct {
	kind error
	err  error
}

func (e *classifiedError) Error() string {
	return fmt.Sprintf("%s: %s", e.kind, e.err)
}

func (e *classifiedError) Unwrap() []error {
	return []error{e.kind, e.err}
}

// PartialRefreshError means one of the reads of a refresh cycle failed and the cycle was discarded.
type PartialRefreshError struct {
	Read string
	Err  error
}

func (e *PartialRefreshError) Error() string {
	return fmt.Sprintf("refresh discarded, %s failed: %s", e.Read, e.Err)
}

func (e *PartialRefreshError) Unwrap() []error {
	return []error{kindOf(e.Err), e.Err}
}

// CommandError reports the stage at which a command failed.
type CommandError struct {
	Command string
	Stage   string
	Err     error
}

const (
	COMMAND_STAGE_CHECK        = "check"
	COMMAND_STAGE_AUTHENTICATE = "authenticate"
	COMMAND_STAGE_WRITE        = "write"
	COMMAND_STAGE_REFRESH      = "refresh"
)

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed at %s: %s", e.Command, e.Stage, e.Err)
}

func (e *CommandError) Unwrap() []error {
	if errors.Is(e.Err, ErrInvalidCommand) {
		return []error{e.Err}
	}
	return []error{kindOf(e.Err), e.Err}
}
