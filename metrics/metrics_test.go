package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theoremus-urban-solutions/transitcore/gtfs"
)

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.ObserveQuery("list_routes", time.Millisecond, "")
		c.ObserveStatic("ok", time.Second, gtfs.Counts{Routes: 1}, time.Now())
		c.ObserveFeed("TripUpdate", nil, 3, time.Now())
		c.ObservePoll(time.Second)
		c.PollCoalesced()
		c.PollThrottled()
	})
}

func TestCollector_Records(t *testing.T) {
	c := NewCollector()
	at := time.Unix(1709574300, 0)

	c.ObserveStatic("ok", 2*time.Second, gtfs.Counts{Routes: 2, Stops: 3, Trips: 3, StopTimes: 8, Services: 2}, at)
	c.ObserveStatic("fetch_failed", time.Second, gtfs.Counts{}, at.Add(time.Hour))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.StaticRefreshes.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.StaticRefreshes.WithLabelValues("fetch_failed")))
	assert.Equal(t, float64(at.Unix()), testutil.ToFloat64(c.StaticLastSuccess))
	assert.Equal(t, 8.0, testutil.ToFloat64(c.StaticTables.WithLabelValues("stop_times")))

	c.ObserveFeed("Alert", errors.New("boom"), 0, at)
	c.ObserveFeed("TripUpdate", nil, 12, at)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.FeedFetches.WithLabelValues("Alert", "error")))
	assert.Equal(t, 12.0, testutil.ToFloat64(c.FeedEntities.WithLabelValues("TripUpdate")))

	c.PollCoalesced()
	c.PollCoalesced()
	c.PollThrottled()
	assert.Equal(t, 2.0, testutil.ToFloat64(c.PollsCoalesced))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.PollsThrottled))

	c.ObserveQuery("next_arrivals", time.Millisecond, "not_found")
	c.ObserveQuery("next_arrivals", time.Millisecond, "")
	assert.Equal(t, 1.0, testutil.ToFloat64(c.QueryErrors.WithLabelValues("next_arrivals", "not_found")))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector()
	c.PollThrottled()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "transitcore_realtime_polls_throttled_total 1"))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}
