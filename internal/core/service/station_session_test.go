package service

import (
	"errors"
	"testing"
	"time"

	"github.com/berfenger/echarge2mqtt/internal/core/domain"
	"github.com/berfenger/echarge2mqtt/pkg/echarge"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSession(client echarge.Client) StationSession {
	return StationSession{
		Client:         client,
		Station:        1,
		BaseURL:        "http://station/",
		RequestTimeout: time.Second,
		Config:         domain.DefaultMergeConfig(),
	}
}

func TestStationSessionReadAllOrder(t *testing.T) {
	client := echarge.NewTestClient()
	reads, err := testSession(client).ReadAll()
	require.NoError(t, err)
	assert.NotNil(t, reads.Status)
	assert.NotNil(t, reads.Meters)
	assert.Equal(t, []string{
		echarge.CALL_READ_STATUS,
		echarge.CALL_READ_SYSTEM_INFO,
		echarge.CALL_READ_CHARGING_MODES,
		echarge.CALL_READ_AUTO_MODE,
		echarge.CALL_READ_METERS,
	}, client.Calls())
}

func TestStationSessionReadAllStopsAtFirstFailure(t *testing.T) {
	client := echarge.NewTestClient()
	client.SetFailure(echarge.CALL_READ_CHARGING_MODES, errors.New("reset by peer"))

	reads, err := testSession(client).ReadAll()
	assert.Nil(t, reads)

	var partial *domain.PartialRefreshError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, echarge.CALL_READ_CHARGING_MODES, partial.Read)
	assert.ErrorIs(t, err, domain.ErrConnectivity)
	assert.Equal(t, 0, client.CallCount(echarge.CALL_READ_AUTO_MODE))
	assert.Equal(t, 0, client.CallCount(echarge.CALL_READ_METERS))
}

func TestStationSessionAuthenticateDenied(t *testing.T) {
	client := echarge.NewTestClient()
	client.ValidPassword = "secret"
	client.SetCredentials("admin", "wrong")

	err := testSession(client).Authenticate()
	assert.ErrorIs(t, err, domain.ErrAuthDenied)
	assert.NotErrorIs(t, err, domain.ErrConnectivity)
}

func TestStationSessionTimeout(t *testing.T) {
	client := echarge.NewTestClient()
	client.SetDelay(50 * time.Millisecond)
	session := testSession(client)
	session.RequestTimeout = 10 * time.Millisecond

	_, err := session.ReadAll()
	assert.ErrorIs(t, err, domain.ErrConnectivity)
}

func TestStationSessionWrite(t *testing.T) {
	client := echarge.NewTestClient()
	session := testSession(client)

	require.NoError(t, session.Write(domain.SetLockStateRequest{Locked: true}))
	require.NoError(t, session.Write(domain.SetChargingModeRequest{Mode: "quick"}))
	assert.Equal(t, []string{echarge.CALL_WRITE_LOCK, echarge.CALL_WRITE_MODE}, client.Calls())

	client.SetFailure(echarge.CALL_WRITE_AUTO_MODE, &echarge.StatusError{Call: echarge.CALL_WRITE_AUTO_MODE, StatusCode: 403})
	assert.ErrorIs(t, session.Write(domain.SetAutoModeRequest{On: true}), domain.ErrAuthDenied)
}

func TestStationSessionTitle(t *testing.T) {
	client := echarge.NewTestClient()
	title, err := testSession(client).Title()
	require.NoError(t, err)
	assert.Equal(t, "eCB1 Garage", title.Title)
	assert.Equal(t, "http://station/1", title.UniqueId)
}

func TestStationSessionTitleWithoutMeterName(t *testing.T) {
	client := echarge.NewTestClient()
	client.Meters = echarge.DocumentOf("meter", echarge.DocumentOf("data", echarge.NewDocument()))

	title, err := testSession(client).Title()
	require.NoError(t, err)
	assert.Equal(t, DefaultStationTitle("http://station/", 1), title)
	assert.Equal(t, "eCB1 station 1", title.Title)
}

func TestSnapshotStore(t *testing.T) {
	store := NewSnapshotStore()
	assert.Nil(t, store.Snapshot())
	assert.Equal(t, domain.SessionUnauthenticated, store.SessionState())

	snapshot := snapshotV(3)
	store.Install(snapshot)
	store.SetSessionState(domain.SessionAuthFailed)
	assert.Same(t, snapshot, store.Snapshot())
	assert.Equal(t, domain.SessionAuthFailed, store.SessionState())
}
