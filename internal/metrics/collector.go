package metrics

import (
	"time"

	"github.com/berfenger/echarge2mqtt/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// SnapshotCollector exposes the latest snapshot at scrape time. Numeric and boolean
// fields become one labelled gauge each; text fields go to the info metric.
type SnapshotCollector struct {
	latest func() *domain.Snapshot
	config domain.MergeConfig

	value   *prometheus.Desc
	version *prometheus.Desc
	age     *prometheus.Desc
	info    *prometheus.Desc
	up      *prometheus.Desc
}

func NewSnapshotCollector(latest func() *domain.Snapshot, config domain.MergeConfig) *SnapshotCollector {
	return &SnapshotCollector{
		latest: latest,
		config: config,
		value: prometheus.NewDesc(
			prometheus.BuildFQName(NAMESPACE, "snapshot", "value"),
			"Numeric snapshot field, booleans as 0/1",
			[]string{"field"},
			nil,
		),
		version: prometheus.NewDesc(
			prometheus.BuildFQName(NAMESPACE, "snapshot", "version"),
			"Version of the installed snapshot",
			nil,
			nil,
		),
		age: prometheus.NewDesc(
			prometheus.BuildFQName(NAMESPACE, "snapshot", "age_seconds"),
			"Seconds since the installed snapshot was built",
			nil,
			nil,
		),
		info: prometheus.NewDesc(
			prometheus.BuildFQName(NAMESPACE, "", "info"),
			"Station information",
			[]string{"serial", "company", "os_version", "partnumber", "mode", "state"},
			nil,
		),
		up: prometheus.NewDesc(
			prometheus.BuildFQName(NAMESPACE, "snapshot", "available"),
			"Whether a snapshot has been installed",
			nil,
			nil,
		),
	}
}

func (c *SnapshotCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.value
	ch <- c.version
	ch <- c.age
	ch <- c.info
	ch <- c.up
}

func (c *SnapshotCollector) Collect(ch chan<- prometheus.Metric) {
	snapshot := c.latest()
	if snapshot == nil {
		ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 0)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 1)
	ch <- prometheus.MustNewConstMetric(c.version, prometheus.GaugeValue, float64(snapshot.Version()))
	ch <- prometheus.MustNewConstMetric(c.age, prometheus.GaugeValue, time.Since(snapshot.UpdatedAt()).Seconds())

	snapshot.Each(func(field string, value any) {
		switch v := value.(type) {
		case float64:
			ch <- prometheus.MustNewConstMetric(c.value, prometheus.GaugeValue, v, field)
		case bool:
			ch <- prometheus.MustNewConstMetric(c.value, prometheus.GaugeValue, boolToFloat(v), field)
		}
	})

	text := func(field string) string {
		s, _ := snapshot.String(field)
		return s
	}
	ch <- prometheus.MustNewConstMetric(c.info, prometheus.GaugeValue, 1,
		text(domain.FIELD_SERIAL),
		text(c.config.SystemField(domain.KEY_SYSTEM_COMPANY)),
		text(c.config.SystemField(domain.KEY_SYSTEM_VERSION)),
		text(c.config.SystemField(domain.KEY_SYSTEM_PART_NUM)),
		text(domain.FIELD_MODE),
		text(domain.FIELD_STATE),
	)
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
