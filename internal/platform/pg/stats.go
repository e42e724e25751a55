package pg

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// DBStats - снимок pgxpool.Stat.
type DBStats struct {
	MaxConns     int32
	OpenConns    int32
	InUse        int32
	Idle         int32
	WaitCount    int64         // Acquire, которым пришлось ждать
	WaitDuration time.Duration // суммарно
}

func GetPoolStats(pool *pgxpool.Pool) DBStats {
	if pool == nil {
		return DBStats{}
	}
	s := pool.Stat()
	return DBStats{
		MaxConns:     s.MaxConns(),
		OpenConns:    s.TotalConns(),
		InUse:        s.AcquiredConns(),
		Idle:         s.IdleConns(),
		WaitCount:    s.EmptyAcquireCount(),
		WaitDuration: s.AcquireDuration(),
	}
}

// IsHealthy: пул открыт и занято не больше 90% соединений.
func IsHealthy(s DBStats) bool {
	if s.MaxConns == 0 || s.OpenConns == 0 {
		return false
	}
	return s.InUse*10 <= s.MaxConns*9
}

// StatsCollector отдаёт DBStats в Prometheus при каждом scrape.
type StatsCollector struct {
	stats func() DBStats

	maxConns, openConns, inUse, idle, waitCount, waitSeconds *prometheus.Desc
}

var _ prometheus.Collector = (*StatsCollector)(nil)

func NewStatsCollector(pool *pgxpool.Pool) *StatsCollector {
	return newStatsCollector(func() DBStats { return GetPoolStats(pool) })
}

func newStatsCollector(stats func() DBStats) *StatsCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("authflow_pg_pool_"+name, help, nil, nil)
	}
	return &StatsCollector{
		stats:       stats,
		maxConns:    desc("max_connections", "Configured pool size"),
		openConns:   desc("open_connections", "Connections currently open"),
		inUse:       desc("in_use_connections", "Connections acquired by callers"),
		idle:        desc("idle_connections", "Open connections waiting in the pool"),
		waitCount:   desc("wait_total", "Acquires that had to wait for a connection"),
		waitSeconds: desc("wait_seconds_total", "Time spent waiting to acquire"),
	}
}

func (c *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{c.maxConns, c.openConns, c.inUse, c.idle, c.waitCount, c.waitSeconds} {
		ch <- d
	}
}

func (c *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.stats()
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}
	counter := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v)
	}
	gauge(c.maxConns, float64(s.MaxConns))
	gauge(c.openConns, float64(s.OpenConns))
	gauge(c.inUse, float64(s.InUse))
	gauge(c.idle, float64(s.Idle))
	counter(c.waitCount, float64(s.WaitCount))
	counter(c.waitSeconds, s.WaitDuration.Seconds())
}
