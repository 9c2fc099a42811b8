package httpserver

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/openmon/procmon/internal/engine"
	"github.com/openmon/procmon/internal/metrics"
)

// engineCollector exposes the engine's latest snapshots as Prometheus
// metrics. Each scrape walks the same acquire/release handle protocol as any
// other consumer.
type engineCollector struct {
	engine      *engine.Engine
	cpuMetrics  []cpuMetric
	procCount   *prometheus.Desc
	refreshes   *prometheus.Desc
	refreshErrs *prometheus.Desc
}

type cpuMetric struct {
	desc    *prometheus.Desc
	extract func(snapshot metrics.CPUSnapshot) float64
}

func newEngineCollector(eng *engine.Engine) prometheus.Collector {
	if eng == nil {
		return nil
	}

	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName("procmon", "cpu", name),
			help,
			nil,
			nil,
		)
	}

	return &engineCollector{
		engine: eng,
		cpuMetrics: []cpuMetric{
			{
				desc: desc("total_usage_percent", "Aggregate CPU busy percentage as of the last refresh."),
				extract: func(s metrics.CPUSnapshot) float64 {
					return s.TotalUsage
				},
			},
			{
				desc: desc("core_count", "Number of logical cores."),
				extract: func(s metrics.CPUSnapshot) float64 {
					return float64(s.CoreCount)
				},
			},
			{
				desc: desc("load_avg_1", "One-minute load average."),
				extract: func(s metrics.CPUSnapshot) float64 {
					return s.LoadAvg1
				},
			},
			{
				desc: desc("load_avg_5", "Five-minute load average."),
				extract: func(s metrics.CPUSnapshot) float64 {
					return s.LoadAvg5
				},
			},
			{
				desc: desc("load_avg_15", "Fifteen-minute load average."),
				extract: func(s metrics.CPUSnapshot) float64 {
					return s.LoadAvg15
				},
			},
			{
				desc: desc("frequency_mhz", "CPU clock frequency in MHz."),
				extract: func(s metrics.CPUSnapshot) float64 {
					return float64(s.FrequencyMHz)
				},
			},
		},
		procCount: prometheus.NewDesc(
			prometheus.BuildFQName("procmon", "processes", "count"),
			"Number of processes in the last snapshot.",
			nil,
			nil,
		),
		refreshes: prometheus.NewDesc(
			prometheus.BuildFQName("procmon", "engine", "refresh_total"),
			"Successful refreshes since initialization.",
			nil,
			nil,
		),
		refreshErrs: prometheus.NewDesc(
			prometheus.BuildFQName("procmon", "engine", "refresh_errors_total"),
			"Failed refreshes since initialization.",
			nil,
			nil,
		),
	}
}

func (c *engineCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, metric := range c.cpuMetrics {
		ch <- metric.desc
	}
	ch <- c.procCount
	ch <- c.refreshes
	ch <- c.refreshErrs
}

func (c *engineCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.engine.Stats()
	ch <- prometheus.MustNewConstMetric(c.refreshes, prometheus.CounterValue, float64(stats.Refreshes))
	ch <- prometheus.MustNewConstMetric(c.refreshErrs, prometheus.CounterValue, float64(stats.RefreshErrors))

	if cpuHandle, err := c.engine.CPUMetrics(); err == nil {
		if snapshot, err := cpuHandle.Snapshot(); err == nil {
			for _, metric := range c.cpuMetrics {
				ch <- prometheus.MustNewConstMetric(metric.desc, prometheus.GaugeValue, metric.extract(snapshot))
			}
		}
		_ = cpuHandle.Release()
	}

	if procHandle, err := c.engine.Processes(); err == nil {
		if snapshot, err := procHandle.Snapshot(); err == nil {
			ch <- prometheus.MustNewConstMetric(c.procCount, prometheus.GaugeValue, float64(snapshot.Count()))
		}
		_ = procHandle.Release()
	}
}
