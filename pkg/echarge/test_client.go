package echarge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrTestClientFailure = errors.New("test client failure")

// TestClient is an in-memory station. Writes change the state returned by later reads.
type TestClient struct {
	mu sync.Mutex

	Status        *Document
	SystemInfo    *Document
	ChargingModes *Document
	AutoMode      *Document
	Meters        *Document

	// Failures maps a CALL_* name to the error that call returns.
	Failures map[string]error
	// Delay is applied to every call before it completes.
	Delay time.Duration
	// StampCycle writes the authenticate counter into status and meter data as "cycle".
	StampCycle bool

	username string
	password string
	// ValidPassword, when set, makes Authenticate deny any other password.
	ValidPassword string

	calls       []string
	cycle       int
	inFlight    int
	maxInFlight int
}

func NewTestClient() *TestClient {
	return &TestClient{
		Status: DocumentOf(
			"id", float64(1),
			"name", "Wallbox",
			"state", "Charging",
			"stateid", float64(194),
			"data", DocumentOf(
				"connected", true,
				"lockState", false,
				"mode", "eco",
				"maxAvailableCurrent", float64(16),
				"manualModeAmp", float64(10),
				"actualCurrent", 9.73,
				"partnumber", "cPH2",
			),
		),
		SystemInfo: DocumentOf(
			"serial", "ECB1-0042",
			"company", "Hardy Barth",
			"os_version", "1.4.2",
			"partnumber", "cPH2",
		),
		ChargingModes: DocumentOf(
			"1", "eco",
			"2", "quick",
			"3", "manual",
		),
		AutoMode: DocumentOf("autostartstop", false),
		Meters: DocumentOf(
			"meter", DocumentOf(
				"name", "Garage",
				"data", DocumentOf(
					"1-0:1.4.0", 2260.4,
					"1-0:1.8.0", 1534.127,
					"1-0:13.4.0", 0.98,
					"1-0:14.4.0", 50.01,
					"1-0:31.4.0", 9.73,
					"1-0:32.4.0", 231.2,
				),
			),
		),
		Failures: map[string]error{},
	}
}

func (c *TestClient) enter(call string) (func(), error) {
	c.mu.Lock()
	c.calls = append(c.calls, call)
	c.inFlight++
	if c.inFlight > c.maxInFlight {
		c.maxInFlight = c.inFlight
	}
	err := c.Failures[call]
	delay := c.Delay
	c.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	return func() {
		c.mu.Lock()
		c.inFlight--
		c.mu.Unlock()
	}, err
}

func (c *TestClient) SetFailure(call string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.Failures, call)
		return
	}
	c.Failures[call] = err
}

func (c *TestClient) SetDelay(delay time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Delay = delay
}

// Calls returns the names of all calls so far, in order.
func (c *TestClient) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *TestClient) CallCount(call string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, name := range c.calls {
		if name == call {
			n++
		}
	}
	return n
}

// MaxInFlight is the highest number of calls observed running at once.
func (c *TestClient) MaxInFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxInFlight
}

func (c *TestClient) SetCredentials(username, password string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.username = username
	c.password = password
}

func (c *TestClient) Authenticate(ctx context.Context) error {
	exit, err := c.enter(CALL_AUTHENTICATE)
	defer exit()
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ErrConnectivity, ctx.Err())
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ValidPassword != "" && c.password != c.ValidPassword {
		return &StatusError{Call: CALL_AUTHENTICATE, StatusCode: 403}
	}
	c.cycle++
	if c.StampCycle {
		if data, ok := c.Status.Doc("data"); ok {
			data.Put("cycle", float64(c.cycle))
		}
		if meter, ok := c.Meters.Doc("meter"); ok {
			if data, ok := meter.Doc("data"); ok {
				data.Put("cycle", float64(c.cycle))
			}
		}
	}
	return nil
}

func (c *TestClient) read(ctx context.Context, call string, doc func() *Document) (*Document, error) {
	exit, err := c.enter(call)
	defer exit()
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectivity, ctx.Err())
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := doc().Clone()
	out.NormalizeBools(BoolFields)
	return out, nil
}

func (c *TestClient) write(ctx context.Context, call string, apply func()) error {
	exit, err := c.enter(call)
	defer exit()
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ErrConnectivity, ctx.Err())
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	apply()
	return nil
}

func (c *TestClient) statusData() *Document {
	data, ok := c.Status.Doc("data")
	if !ok {
		data = NewDocument()
		c.Status.Put("data", data)
	}
	return data
}

func (c *TestClient) ReadStatus(ctx context.Context, station int) (*Document, error) {
	return c.read(ctx, CALL_READ_STATUS, func() *Document { return c.Status })
}

func (c *TestClient) ReadSystemInfo(ctx context.Context) (*Document, error) {
	return c.read(ctx, CALL_READ_SYSTEM_INFO, func() *Document { return c.SystemInfo })
}

func (c *TestClient) ReadChargingModes(ctx context.Context) (*Document, error) {
	return c.read(ctx, CALL_READ_CHARGING_MODES, func() *Document { return c.ChargingModes })
}

func (c *TestClient) ReadAutoMode(ctx context.Context, station int) (*Document, error) {
	return c.read(ctx, CALL_READ_AUTO_MODE, func() *Document { return c.AutoMode })
}

func (c *TestClient) ReadMeters(ctx context.Context, station int) (*Document, error) {
	return c.read(ctx, CALL_READ_METERS, func() *Document { return c.Meters })
}

func (c *TestClient) WriteMaxCurrent(ctx context.Context, station int, value float64) error {
	return c.write(ctx, CALL_WRITE_MAX_CURRENT, func() {
		c.statusData().Put("manualModeAmp", value)
	})
}

func (c *TestClient) WriteLock(ctx context.Context, station int, locked bool) error {
	return c.write(ctx, CALL_WRITE_LOCK, func() {
		c.statusData().Put("lockState", locked)
	})
}

func (c *TestClient) WriteMode(ctx context.Context, station int, mode string) error {
	return c.write(ctx, CALL_WRITE_MODE, func() {
		c.statusData().Put("mode", mode)
	})
}

func (c *TestClient) WriteAutoMode(ctx context.Context, station int, on bool) error {
	return c.write(ctx, CALL_WRITE_AUTO_MODE, func() {
		c.AutoMode.Put("autostartstop", on)
	})
}
