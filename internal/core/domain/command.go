package domain

import (
	"fmt"
	"math"
	"slices"
)

const (
	COMMAND_SET_CHARGING_CURRENT = "setChargingCurrent"
	COMMAND_SET_LOCK_STATE       = "setLockState"
	COMMAND_SET_CHARGING_MODE    = "setChargingMode"
	COMMAND_SET_AUTO_MODE        = "setAutoMode"

	// station limits for the manual charging current, in amps
	CHARGING_CURRENT_MIN = 6
	CHARGING_CURRENT_MAX = 32
)

// CommandRequest is a station write followed by a confirming refresh.
type CommandRequest interface {
	ActorRequest
	CommandName() string
	// Check rejects the command against the latest snapshot before any device call.
	Check(latest *Snapshot) error
}

type CommandResponse struct {
	ActorResponseMixIn
	CommandId string
	Snapshot  *Snapshot
}

// Commands

type SetChargingCurrentRequest struct {
	ActorRequestMixIn
	Value float64
}

func (r SetChargingCurrentRequest) CommandName() string {
	return COMMAND_SET_CHARGING_CURRENT
}

func (r SetChargingCurrentRequest) Check(latest *Snapshot) error {
	if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		return fmt.Errorf("%w: charging current must be a finite number, got %v", ErrInvalidCommand, r.Value)
	}
	if r.Value < CHARGING_CURRENT_MIN {
		return fmt.Errorf("%w: charging current must be at least %d A, got %v", ErrInvalidCommand, CHARGING_CURRENT_MIN, r.Value)
	}
	if limit, ok := latest.Float(FIELD_MAX_AVAILABLE_CURRENT); ok && limit > 0 && r.Value > limit {
		return fmt.Errorf("%w: charging current %v exceeds available %v", ErrInvalidCommand, r.Value, limit)
	}
	return nil
}

type SetLockStateRequest struct {
	ActorRequestMixIn
	Locked bool
}

func (r SetLockStateRequest) CommandName() string {
	return COMMAND_SET_LOCK_STATE
}

func (r SetLockStateRequest) Check(*Snapshot) error {
	return nil
}

type SetChargingModeRequest struct {
	ActorRequestMixIn
	Mode string
}

func (r SetChargingModeRequest) CommandName() string {
	return COMMAND_SET_CHARGING_MODE
}

func (r SetChargingModeRequest) Check(latest *Snapshot) error {
	if r.Mode == "" {
		return fmt.Errorf("%w: empty charging mode", ErrInvalidCommand)
	}
	if modes, ok := latest.Strings(FIELD_CHARGING_MODES); ok && len(modes) > 0 && !slices.Contains(modes, r.Mode) {
		return fmt.Errorf("%w: unknown charging mode %q", ErrInvalidCommand, r.Mode)
	}
	return nil
}

type SetAutoModeRequest struct {
	ActorRequestMixIn
	On bool
}

func (r SetAutoModeRequest) CommandName() string {
	return COMMAND_SET_AUTO_MODE
}

func (r SetAutoModeRequest) Check(*Snapshot) error {
	return nil
}

// ensure interface compliance
var (
	_ CommandRequest = (*SetChargingCurrentRequest)(nil)
	_ CommandRequest = (*SetLockStateRequest)(nil)
	_ CommandRequest = (*SetChargingModeRequest)(nil)
	_ CommandRequest = (*SetAutoModeRequest)(nil)
)
