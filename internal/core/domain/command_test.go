package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCommandChecks(t *testing.T) {
	b := NewSnapshotBuilder()
	b.Set(FIELD_MAX_AVAILABLE_CURRENT, 16.0)
	b.Set(FIELD_CHARGING_MODES, []string{"eco", "quick"})
	latest := b.Build(1, time.Now())

	assert.NoError(t, SetChargingCurrentRequest{Value: 10}.Check(latest))
	assert.ErrorIs(t, SetChargingCurrentRequest{Value: 0}.Check(latest), ErrInvalidCommand)
	assert.ErrorIs(t, SetChargingCurrentRequest{Value: 20}.Check(latest), ErrInvalidCommand)
	assert.NoError(t, SetChargingCurrentRequest{Value: CHARGING_CURRENT_MIN}.Check(latest))
	assert.ErrorIs(t, SetChargingCurrentRequest{Value: 5.9}.Check(latest), ErrInvalidCommand)
	assert.ErrorIs(t, SetChargingCurrentRequest{Value: math.NaN()}.Check(latest), ErrInvalidCommand)
	assert.ErrorIs(t, SetChargingCurrentRequest{Value: math.Inf(1)}.Check(nil), ErrInvalidCommand)
	assert.ErrorIs(t, SetChargingCurrentRequest{Value: math.Inf(-1)}.Check(nil), ErrInvalidCommand)
	// no snapshot yet: only the station minimum is checked
	assert.NoError(t, SetChargingCurrentRequest{Value: 20}.Check(nil))
	assert.ErrorIs(t, SetChargingCurrentRequest{Value: 1}.Check(nil), ErrInvalidCommand)

	assert.NoError(t, SetChargingModeRequest{Mode: "quick"}.Check(latest))
	assert.ErrorIs(t, SetChargingModeRequest{Mode: "turbo"}.Check(latest), ErrInvalidCommand)
	assert.ErrorIs(t, SetChargingModeRequest{}.Check(nil), ErrInvalidCommand)
	assert.NoError(t, SetChargingModeRequest{Mode: "turbo"}.Check(nil))

	assert.NoError(t, SetLockStateRequest{Locked: true}.Check(latest))
	assert.NoError(t, SetAutoModeRequest{On: true}.Check(latest))
}
