package util

import (
	"github.com/berfenger/echarge2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Device: config.DeviceConfig{
			BaseURL:              "http://station/",
			Station:              1,
			Username:             "admin",
			Password:             "secret",
			PollIntervalMillis:   config.DEFAULT_POLL_INTERVAL_MILLIS,
			RequestTimeoutMillis: 2000,
		},
		MQTT: config.MQTTConfig{
			Host:              "localhost",
			Port:              1883,
			BaseTopic:         "echarge",
			HADiscoveryEnable: true,
			HADiscoveryTopic:  "homeassistant",
		},
		Port: 8080,
	}
}
