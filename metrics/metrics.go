// Package metrics exposes refresh, freshness and query metrics for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/theoremus-urban-solutions/transitcore/gtfs"
)

// Collector owns a private registry. A nil *Collector is valid and records nothing.
type Collector struct {
	reg *prometheus.Registry

	StaticRefreshes   *prometheus.CounterVec // result label: ok|fetch_failed|parse_failed|...
	StaticLastSuccess prometheus.Gauge       // unix seconds
	StaticTables      *prometheus.GaugeVec   // table label: routes|stops|trips|stop_times|services
	StaticDuration    prometheus.Histogram

	FeedFetches     *prometheus.CounterVec // feed, result labels
	FeedLastSuccess *prometheus.GaugeVec   // feed label, unix seconds
	FeedEntities    *prometheus.GaugeVec   // feed label
	PollDuration    prometheus.Histogram
	PollsCoalesced  prometheus.Counter
	PollsThrottled  prometheus.Counter

	QueryDuration *prometheus.HistogramVec // op label
	QueryErrors   *prometheus.CounterVec   // op, kind labels
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		StaticRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transitcore_static_refreshes_total",
			Help: "Static schedule refresh attempts by result.",
		}, []string{"result"}),
		StaticLastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "transitcore_static_last_success_timestamp_seconds",
			Help: "Unix time of the last published static snapshot.",
		}),
		StaticTables: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "transitcore_static_table_rows",
			Help: "Row counts of the published static snapshot.",
		}, []string{"table"}),
		StaticDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "transitcore_static_refresh_duration_seconds",
			Help:    "Duration of static refreshes including download and parse.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		FeedFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transitcore_realtime_fetches_total",
			Help: "Realtime feed fetch attempts by feed and result.",
		}, []string{"feed", "result"}),
		FeedLastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "transitcore_realtime_last_success_timestamp_seconds",
			Help: "Unix time of the last successful fetch per feed.",
		}, []string{"feed"}),
		FeedEntities: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "transitcore_realtime_entities",
			Help: "Entities in the latest successful fetch per feed.",
		}, []string{"feed"}),
		PollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "transitcore_realtime_poll_duration_seconds",
			Help:    "Duration of a full realtime poll.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		PollsCoalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transitcore_realtime_polls_coalesced_total",
			Help: "Poll calls that joined an in-flight fetch.",
		}),
		PollsThrottled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transitcore_realtime_polls_throttled_total",
			Help: "Poll calls answered from the current snapshot because of the minimum interval.",
		}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "transitcore_query_duration_seconds",
			Help:    "Query engine latency by operation.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
		}, []string{"op"}),
		QueryErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transitcore_query_errors_total",
			Help: "Query failures by operation and error kind.",
		}, []string{"op", "kind"}),
	}

	reg.MustRegister(
		c.StaticRefreshes, c.StaticLastSuccess, c.StaticTables, c.StaticDuration,
		c.FeedFetches, c.FeedLastSuccess, c.FeedEntities, c.PollDuration, c.PollsCoalesced, c.PollsThrottled,
		c.QueryDuration, c.QueryErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry exposes the private registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// ObserveQuery records one query; kind is empty on success.
func (c *Collector) ObserveQuery(op string, d time.Duration, kind string) {
	if c == nil {
		return
	}
	c.QueryDuration.WithLabelValues(op).Observe(d.Seconds())
	if kind != "" {
		c.QueryErrors.WithLabelValues(op, kind).Inc()
	}
}

// ObserveStatic records one static refresh. counts is ignored unless result is "ok".
func (c *Collector) ObserveStatic(result string, d time.Duration, counts gtfs.Counts, at time.Time) {
	if c == nil {
		return
	}
	c.StaticRefreshes.WithLabelValues(result).Inc()
	c.StaticDuration.Observe(d.Seconds())
	if result != "ok" {
		return
	}
	c.StaticLastSuccess.Set(float64(at.Unix()))
	c.StaticTables.WithLabelValues("routes").Set(float64(counts.Routes))
	c.StaticTables.WithLabelValues("stops").Set(float64(counts.Stops))
	c.StaticTables.WithLabelValues("trips").Set(float64(counts.Trips))
	c.StaticTables.WithLabelValues("stop_times").Set(float64(counts.StopTimes))
	c.StaticTables.WithLabelValues("services").Set(float64(counts.Services))
}

// ObserveFeed records one realtime fetch.
func (c *Collector) ObserveFeed(feed string, err error, entities int, at time.Time) {
	if c == nil {
		return
	}
	if err != nil {
		c.FeedFetches.WithLabelValues(feed, "error").Inc()
		return
	}
	c.FeedFetches.WithLabelValues(feed, "ok").Inc()
	c.FeedLastSuccess.WithLabelValues(feed).Set(float64(at.Unix()))
	c.FeedEntities.WithLabelValues(feed).Set(float64(entities))
}

func (c *Collector) ObservePoll(d time.Duration) {
	if c == nil {
		return
	}
	c.PollDuration.Observe(d.Seconds())
}

func (c *Collector) PollCoalesced() {
	if c == nil {
		return
	}
	c.PollsCoalesced.Inc()
}

func (c *Collector) PollThrottled() {
	if c == nil {
		return
	}
	c.PollsThrottled.Inc()
}
