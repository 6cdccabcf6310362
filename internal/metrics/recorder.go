package metrics

import (
	"errors"
	"time"

	"github.com/berfenger/echarge2mqtt/internal/core/domain"
	"github.com/berfenger/echarge2mqtt/internal/core/port"
	"github.com/berfenger/echarge2mqtt/pkg/echarge"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	NAMESPACE = "echarge"

	RESULT_OK           = "ok"
	RESULT_AUTH_DENIED  = "auth_denied"
	RESULT_CONNECTIVITY = "connectivity"
	RESULT_INVALID      = "invalid"
)

var sessionStates = []domain.SessionState{
	domain.SessionUnauthenticated,
	domain.SessionAuthenticated,
	domain.SessionAuthFailed,
}

// Recorder counts coordinator operations and device calls.
type Recorder struct {
	refreshes       *prometheus.CounterVec
	refreshDuration *prometheus.HistogramVec
	commands        *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	deviceCalls     *prometheus.HistogramVec
	session         *prometheus.GaugeVec
}

var _ port.CoordinatorMetrics = (*Recorder)(nil)

func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: NAMESPACE,
			Name:      "refresh_total",
			Help:      "Refresh cycles by trigger and result",
		}, []string{"trigger", "result"}),
		refreshDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: NAMESPACE,
			Name:      "refresh_duration_seconds",
			Help:      "Duration of refresh cycles, login included",
			Buckets:   prometheus.DefBuckets,
		}, []string{"trigger"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: NAMESPACE,
			Name:      "command_total",
			Help:      "Commands by name and result",
		}, []string{"command", "result"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: NAMESPACE,
			Name:      "command_duration_seconds",
			Help:      "Duration of commands including the confirming refresh",
			Buckets:   prometheus.DefBuckets,
		}, []string{"command"}),
		deviceCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: NAMESPACE,
			Name:      "device_call_duration_seconds",
			Help:      "Duration of single station API calls",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"call", "result"}),
		session: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: NAMESPACE,
			Name:      "session_state",
			Help:      "1 for the current station session state",
		}, []string{"state"}),
	}
	for _, c := range []prometheus.Collector{r.refreshes, r.refreshDuration, r.commands, r.commandDuration, r.deviceCalls, r.session} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	r.SessionChanged(domain.SessionUnauthenticated)
	return r, nil
}

func (r *Recorder) RefreshCompleted(trigger string, duration time.Duration, err error) {
	r.refreshes.WithLabelValues(trigger, Result(err)).Inc()
	r.refreshDuration.WithLabelValues(trigger).Observe(duration.Seconds())
}

func (r *Recorder) CommandCompleted(command string, duration time.Duration, err error) {
	r.commands.WithLabelValues(command, Result(err)).Inc()
	if duration > 0 {
		r.commandDuration.WithLabelValues(command).Observe(duration.Seconds())
	}
}

func (r *Recorder) SessionChanged(state domain.SessionState) {
	for _, s := range sessionStates {
		value := 0.0
		if s == state {
			value = 1
		}
		r.session.WithLabelValues(s.String()).Set(value)
	}
}

// Instrument observes every device call made by the HTTP client.
func (r *Recorder) Instrument() *echarge.Instrument {
	return &echarge.Instrument{
		RecordCall: func(call string, duration time.Duration, err error) {
			r.deviceCalls.WithLabelValues(call, Result(err)).Observe(duration.Seconds())
		},
	}
}

// Result is the metric label for an operation outcome.
func Result(err error) string {
	switch {
	case err == nil:
		return RESULT_OK
	case errors.Is(err, domain.ErrInvalidCommand):
		return RESULT_INVALID
	case errors.Is(err, domain.ErrAuthDenied), errors.Is(err, echarge.ErrAuthDenied):
		return RESULT_AUTH_DENIED
	default:
		return RESULT_CONNECTIVITY
	}
}
