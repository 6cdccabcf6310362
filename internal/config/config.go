package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

const (
	MIN_POLL_INTERVAL_MILLIS     = 5000
	MIN_REQUEST_TIMEOUT_MILLIS   = 1000
	DEFAULT_POLL_INTERVAL_MILLIS = 30000
)

type Config struct {
	LogLevel zapcore.Level
	Device   DeviceConfig  `mapstructure:"device"`
	MQTT     MQTTConfig    `mapstructure:"mqtt"`
	Metrics  MetricsConfig `mapstructure:"metrics"`
	Port     uint          `mapstructure:"port"`
	HttpLog  bool          `mapstructure:"http_log"`
}

type DeviceConfig struct {
	BaseURL              string `mapstructure:"base_url"`
	Station              int
	Username             string
	Password             string
	PollIntervalMillis   uint32 `mapstructure:"poll_interval_millis"`
	RequestTimeoutMillis uint32 `mapstructure:"request_timeout_millis"`
}

func (c DeviceConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMillis) * time.Millisecond
}

func (c DeviceConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMillis) * time.Millisecond
}

type MQTTConfig struct {
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

type MetricsConfig struct {
	Enable bool
}

// Check validates bounds and normalizes topics and the station URL in place.
func (cfg *Config) Check() error {
	baseURL, err := NormalizeBaseURL(cfg.Device.BaseURL)
	if err != nil {
		return err
	}
	cfg.Device.BaseURL = baseURL

	if cfg.Device.Station <= 0 {
		return errors.New("config param device.station should be > 0")
	}
	if cfg.Device.PollIntervalMillis < MIN_POLL_INTERVAL_MILLIS {
		return fmt.Errorf("config param device.poll_interval_millis should be >= %d", MIN_POLL_INTERVAL_MILLIS)
	}
	if cfg.Device.RequestTimeoutMillis < MIN_REQUEST_TIMEOUT_MILLIS {
		return fmt.Errorf("config param device.request_timeout_millis should be >= %d", MIN_REQUEST_TIMEOUT_MILLIS)
	}

	// check and fix base topic
	baseTopic, err := CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic
	return nil
}

// Redacted returns a copy safe to log.
func (cfg Config) Redacted() Config {
	cfg.Device.Password = "*redacted*"
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	return cfg
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}

// NormalizeBaseURL accepts a bare host or a URL and returns an http(s) URL ending in "/".
func NormalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("config param device.base_url is required")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid device.base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid device.base_url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("invalid device.base_url: missing host")
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u.String(), nil
}
