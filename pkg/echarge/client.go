package echarge

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAuthDenied is returned when the station rejects the credentials or the session.
	ErrAuthDenied = errors.New("echarge: authentication denied")
	// ErrConnectivity covers transport failures, timeouts, unexpected status codes and malformed payloads.
	ErrConnectivity = errors.New("echarge: connectivity error")
)

const (
	CALL_AUTHENTICATE        = "authenticate"
	CALL_READ_STATUS         = "readStatus"
	CALL_READ_SYSTEM_INFO    = "readSystemInfo"
	CALL_READ_CHARGING_MODES = "readChargingModes"
	CALL_READ_AUTO_MODE      = "readAutoMode"
	CALL_READ_METERS         = "readMeters"
	CALL_WRITE_MAX_CURRENT   = "writeMaxCurrent"
	CALL_WRITE_LOCK          = "writeLock"
	CALL_WRITE_MODE          = "writeMode"
	CALL_WRITE_AUTO_MODE     = "writeAutoMode"
)

// Client is the request/response boundary to one eCB1 controller.
// Implementations must be safe for use from one goroutine at a time; callers serialize access.
type Client interface {
	Authenticate(ctx context.Context) error
	ReadStatus(ctx context.Context, station int) (*Document, error)
	ReadSystemInfo(ctx context.Context) (*Document, error)
	ReadChargingModes(ctx context.Context) (*Document, error)
	ReadAutoMode(ctx context.Context, station int) (*Document, error)
	ReadMeters(ctx context.Context, station int) (*Document, error)
	WriteMaxCurrent(ctx context.Context, station int, value float64) error
	WriteLock(ctx context.Context, station int, locked bool) error
	WriteMode(ctx context.Context, station int, mode string) error
	WriteAutoMode(ctx context.Context, station int, on bool) error
	// SetCredentials replaces the credentials used by the next Authenticate call.
	SetCredentials(username, password string)
}

// StatusError carries the HTTP status of a rejected request.
type StatusError struct {
	Call       string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("echarge: %s: unexpected status %d", e.Call, e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	if e.StatusCode == 401 || e.StatusCode == 403 {
		return ErrAuthDenied
	}
	return ErrConnectivity
}

type Instrument struct {
	RecordCall func(call string, duration time.Duration, err error)
}

// RecordTimer starts timing a device call; the returned func reports the outcome.
func RecordTimer(name string, instrument []Instrument) func(err error) {
	if len(instrument) == 0 {
		return func(error) {}
	}

	start := time.Now()
	return func(err error) {
		duration := time.Since(start)
		for i := range instrument {
			if instrument[i].RecordCall != nil {
				instrument[i].RecordCall(name, duration, err)
			}
		}
	}
}
