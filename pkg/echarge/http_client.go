package echarge

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	apiPathLogin         = "api/v1/login"
	apiPathChargeControl = "api/v1/chargecontrols/%d"
	apiPathSystem        = "api/v1/system"
	apiPathModes         = "api/v1/chargecontrols/modes"
	apiPathAutoStartStop = "api/v1/chargecontrols/%d/autostartstop"
	apiPathMeter         = "api/v1/meters/%d"
	apiPathManualAmpere  = "api/v1/chargecontrols/%d/mode/manual/ampere"
	apiPathLock          = "api/v1/chargecontrols/%d/lock"
	apiPathUnlock        = "api/v1/chargecontrols/%d/unlock"
	apiPathMode          = "api/v1/chargecontrols/%d/mode"

	maxBodyBytes = 1 << 20
)

// BoolFields lists keys the station reports as "true"/"false" strings.
var BoolFields = map[string]struct{}{
	"connected":     {},
	"lockState":     {},
	"autostartstop": {},
}

type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	instrument []Instrument
	boolFields map[string]struct{}

	credMu   sync.Mutex
	username string
	password string
}

func CreateHTTPClient(baseURL string, username string, password string, timeout time.Duration,
	logger *zap.Logger, instrumentation *Instrument) (*HTTPClient, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("echarge: invalid base url %q: %w", baseURL, err)
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	// instrumentation
	var inst []Instrument
	if logger != nil {
		inst = append(inst, debugLoggerInstrumentation(logger.With(zap.String("target", baseURL))))
	}
	if instrumentation != nil {
		inst = append(inst, *instrumentation)
	}
	return &HTTPClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: timeout,
		},
		instrument: inst,
		boolFields: BoolFields,
		username:   username,
		password:   password,
	}, nil
}

func debugLoggerInstrumentation(logger *zap.Logger) Instrument {
	return Instrument{
		RecordCall: func(call string, duration time.Duration, err error) {
			if err != nil {
				logger.Debug(fmt.Sprintf("echarge [%s]: failed after %d millis", call, duration.Milliseconds()), zap.Error(err))
				return
			}
			logger.Debug(fmt.Sprintf("echarge [%s]: %d millis", call, duration.Milliseconds()))
		},
	}
}

func (c *HTTPClient) SetCredentials(username, password string) {
	c.credMu.Lock()
	defer c.credMu.Unlock()
	c.username = username
	c.password = password
}

func (c *HTTPClient) credentials() (string, string) {
	c.credMu.Lock()
	defer c.credMu.Unlock()
	return c.username, c.password
}

func (c *HTTPClient) Authenticate(ctx context.Context) error {
	username, password := c.credentials()
	form := url.Values{}
	form.Set("user", username)
	form.Set("password", password)
	_, err := c.do(ctx, CALL_AUTHENTICATE, http.MethodPost, apiPathLogin, form)
	return err
}

func (c *HTTPClient) ReadStatus(ctx context.Context, station int) (*Document, error) {
	return c.do(ctx, CALL_READ_STATUS, http.MethodGet, fmt.Sprintf(apiPathChargeControl, station), nil)
}

func (c *HTTPClient) ReadSystemInfo(ctx context.Context) (*Document, error) {
	return c.do(ctx, CALL_READ_SYSTEM_INFO, http.MethodGet, apiPathSystem, nil)
}

func (c *HTTPClient) ReadChargingModes(ctx context.Context) (*Document, error) {
	return c.do(ctx, CALL_READ_CHARGING_MODES, http.MethodGet, apiPathModes, nil)
}

func (c *HTTPClient) ReadAutoMode(ctx context.Context, station int) (*Document, error) {
	return c.do(ctx, CALL_READ_AUTO_MODE, http.MethodGet, fmt.Sprintf(apiPathAutoStartStop, station), nil)
}

func (c *HTTPClient) ReadMeters(ctx context.Context, station int) (*Document, error) {
	return c.do(ctx, CALL_READ_METERS, http.MethodGet, fmt.Sprintf(apiPathMeter, station), nil)
}

func (c *HTTPClient) WriteMaxCurrent(ctx context.Context, station int, value float64) error {
	form := url.Values{}
	form.Set("manualmodeamp", strconv.FormatFloat(value, 'f', -1, 64))
	_, err := c.do(ctx, CALL_WRITE_MAX_CURRENT, http.MethodPost, fmt.Sprintf(apiPathManualAmpere, station), form)
	return err
}

func (c *HTTPClient) WriteLock(ctx context.Context, station int, locked bool) error {
	path := apiPathUnlock
	if locked {
		path = apiPathLock
	}
	_, err := c.do(ctx, CALL_WRITE_LOCK, http.MethodPost, fmt.Sprintf(path, station), url.Values{})
	return err
}

func (c *HTTPClient) WriteMode(ctx context.Context, station int, mode string) error {
	form := url.Values{}
	form.Set("pvmode", mode)
	_, err := c.do(ctx, CALL_WRITE_MODE, http.MethodPost, fmt.Sprintf(apiPathMode, station), form)
	return err
}

func (c *HTTPClient) WriteAutoMode(ctx context.Context, station int, on bool) error {
	form := url.Values{}
	form.Set("autostartstop", strconv.FormatBool(on))
	_, err := c.do(ctx, CALL_WRITE_AUTO_MODE, http.MethodPost, fmt.Sprintf(apiPathAutoStartStop, station), form)
	return err
}

func (c *HTTPClient) do(ctx context.Context, call string, method string, path string, form url.Values) (doc *Document, err error) {
	done := RecordTimer(call, c.instrument)
	defer func() { done(err) }()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectivity, call, err)
	}
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectivity, call, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, &StatusError{Call: call, StatusCode: resp.StatusCode}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: reading body: %w", ErrConnectivity, call, err)
	}
	doc, err = DecodeDocument(raw)
	if err != nil && method != http.MethodGet {
		// write and login replies are not always JSON
		return NewDocument(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: malformed payload: %w", ErrConnectivity, call, err)
	}
	doc.NormalizeBools(c.boolFields)
	return doc, nil
}
