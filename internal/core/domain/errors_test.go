package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/berfenger/echarge2mqtt/pkg/echarge"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	assert.Nil(t, Classify(nil))

	denied := Classify(&echarge.StatusError{Call: echarge.CALL_AUTHENTICATE, StatusCode: 403})
	assert.ErrorIs(t, denied, ErrAuthDenied)
	assert.NotErrorIs(t, denied, ErrConnectivity)
	assert.ErrorIs(t, denied, echarge.ErrAuthDenied)

	conn := Classify(fmt.Errorf("%w: dial tcp: refused", echarge.ErrConnectivity))
	assert.ErrorIs(t, conn, ErrConnectivity)
	assert.NotErrorIs(t, conn, ErrAuthDenied)

	// unknown failures count as connectivity
	assert.ErrorIs(t, Classify(errors.New("boom")), ErrConnectivity)

	// already classified errors are returned as is
	assert.Same(t, denied, Classify(denied))
}

func TestPartialRefreshError(t *testing.T) {
	err := error(&PartialRefreshError{Read: echarge.CALL_READ_METERS, Err: errors.New("timeout")})
	assert.ErrorIs(t, err, ErrConnectivity)
	assert.Contains(t, err.Error(), echarge.CALL_READ_METERS)

	var partial *PartialRefreshError
	assert.True(t, errors.As(err, &partial))

	denied := &PartialRefreshError{Read: echarge.CALL_READ_STATUS, Err: &echarge.StatusError{StatusCode: 401}}
	assert.ErrorIs(t, denied, ErrAuthDenied)
	assert.NotErrorIs(t, denied, ErrConnectivity)
}

func TestCommandError(t *testing.T) {
	err := &CommandError{Command: COMMAND_SET_LOCK_STATE, Stage: COMMAND_STAGE_WRITE, Err: echarge.ErrConnectivity}
	assert.ErrorIs(t, err, ErrConnectivity)
	assert.Contains(t, err.Error(), COMMAND_SET_LOCK_STATE)

	invalid := &CommandError{Command: COMMAND_SET_CHARGING_MODE, Stage: COMMAND_STAGE_WRITE, Err: ErrInvalidCommand}
	assert.ErrorIs(t, invalid, ErrInvalidCommand)
	assert.NotErrorIs(t, invalid, ErrConnectivity)
}
