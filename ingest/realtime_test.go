package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theoremus-urban-solutions/transitcore/gtfsrt"
	"github.com/theoremus-urban-solutions/transitcore/internal/testfeed"
	"github.com/theoremus-urban-solutions/transitcore/store"
)

var t0 = time.Date(2024, time.March, 4, 17, 45, 0, 0, time.UTC)

// rtServer serves the three feeds on one URL, selected by the Type parameter.
type rtServer struct {
	*httptest.Server
	hits    sync.Map // FeedKind -> *atomic.Int32
	fail    sync.Map // FeedKind -> bool
	release chan struct{}
}

func newRTServer(t *testing.T) *rtServer {
	s := &rtServer{}
	bodies := map[gtfsrt.FeedKind][]byte{
		gtfsrt.FeedVehiclePositions: testfeed.Feed(t, t0,
			testfeed.VehicleEntity(testfeed.Vehicle{ID: "4101", TripID: "T1", RouteID: "R1", Lat: 45.5, Lon: -122.6, Timestamp: t0})),
		gtfsrt.FeedTripUpdates: testfeed.Feed(t, t0,
			testfeed.TripUpdateEntity(testfeed.TripUpdate{TripID: "T1", Timestamp: t0, StopUpdates: []testfeed.StopUpdate{
				{StopID: "PSU_HUB", StopSequence: 2, ArrivalDelay: testfeed.Delay(2 * time.Minute)},
			}})),
		gtfsrt.FeedAlerts: testfeed.Feed(t, t0,
			testfeed.AlertEntity(testfeed.Alert{ID: "A1", Header: "Detour", RouteIDs: []string{"R1"}})),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		kind := gtfsrt.FeedKind(r.URL.Query().Get("Type"))
		n, _ := s.hits.LoadOrStore(kind, new(atomic.Int32))
		n.(*atomic.Int32).Add(1)
		if s.release != nil {
			<-s.release
		}
		if f, ok := s.fail.Load(kind); ok && f.(bool) {
			http.Error(w, "upstream down", http.StatusServiceUnavailable)
			return
		}
		body, ok := bodies[kind]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *rtServer) hitCount(kind gtfsrt.FeedKind) int {
	n, ok := s.hits.Load(kind)
	if !ok {
		return 0
	}
	return int(n.(*atomic.Int32).Load())
}

func newPoller(t *testing.T, srv *rtServer, now func() time.Time) (*RealtimePoller, *store.Store) {
	t.Helper()
	urls, err := FeedURLs(srv.URL, "", "", "")
	require.NoError(t, err)
	st := store.New()
	p := NewRealtimePoller(RealtimeConfig{URLs: urls, Interval: time.Second},
		gtfsrt.NewClientWith(srv.Client(), 5*time.Second), st, nil, nil)
	p.now = now
	return p, st
}

func TestFeedURLs(t *testing.T) {
	urls, err := FeedURLs("https://api.example.com/rt?key=k", "", "https://other.example.com/tu.pb", "")
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/rt?Type=VehiclePosition&key=k", urls[gtfsrt.FeedVehiclePositions])
	assert.Equal(t, "https://other.example.com/tu.pb", urls[gtfsrt.FeedTripUpdates])
	assert.Equal(t, "https://api.example.com/rt?Type=Alert&key=k", urls[gtfsrt.FeedAlerts])

	urls, err = FeedURLs("", "https://a/vp", "", "")
	require.NoError(t, err)
	assert.Equal(t, map[gtfsrt.FeedKind]string{gtfsrt.FeedVehiclePositions: "https://a/vp"}, urls)
}

func TestNewRealtimePoller_IntervalFloor(t *testing.T) {
	p := NewRealtimePoller(RealtimeConfig{Interval: time.Second}, nil, store.New(), nil, nil)
	assert.Equal(t, MinPollInterval, p.Interval())
}

func TestRealtimePoller_PollOncePublishes(t *testing.T) {
	srv := newRTServer(t)
	p, st := newPoller(t, srv, func() time.Time { return t0 })

	snap, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Same(t, snap, st.CurrentRealtime())
	assert.NotEmpty(t, snap.ID)

	require.Len(t, snap.Vehicles, 1)
	assert.Equal(t, "4101", snap.Vehicles[0].VehicleID)
	require.Contains(t, snap.TripUpdates, "T1")
	require.Len(t, snap.Alerts, 1)

	for _, kind := range gtfsrt.FeedKinds {
		fs, ok := snap.Feed(kind)
		require.True(t, ok, kind)
		assert.True(t, fs.Fresh, kind)
		assert.Equal(t, 1, fs.Count, kind)
		assert.True(t, fs.HeaderTime.Equal(t0), kind)
		assert.True(t, fs.LastSuccess.Equal(t0), kind)
	}
}

func TestRealtimePoller_ConcurrentCallsShareOneFetch(t *testing.T) {
	srv := newRTServer(t)
	srv.release = make(chan struct{})
	p, _ := newPoller(t, srv, func() time.Time { return t0 })

	const callers = 8
	var wg sync.WaitGroup
	snaps := make([]*store.Realtime, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snap, err := p.PollOnce(context.Background())
			assert.NoError(t, err)
			snaps[i] = snap
		}(i)
	}

	require.Eventually(t, func() bool {
		return srv.hitCount(gtfsrt.FeedTripUpdates) == 1
	}, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(srv.release)
	wg.Wait()

	for _, kind := range gtfsrt.FeedKinds {
		assert.Equal(t, 1, srv.hitCount(kind), kind)
	}
	for _, s := range snaps {
		require.NotNil(t, s)
		assert.Equal(t, snaps[0].ID, s.ID)
	}
}

func TestRealtimePoller_MinimumInterval(t *testing.T) {
	srv := newRTServer(t)
	now := t0
	p, _ := newPoller(t, srv, func() time.Time { return now })

	first, err := p.PollOnce(context.Background())
	require.NoError(t, err)

	now = t0.Add(5 * time.Second)
	again, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 1, srv.hitCount(gtfsrt.FeedVehiclePositions))

	now = t0.Add(MinPollInterval)
	next, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, next.ID)
	assert.Equal(t, 2, srv.hitCount(gtfsrt.FeedVehiclePositions))
}

func TestRealtimePoller_PartialFailureKeepsPreviousFeed(t *testing.T) {
	srv := newRTServer(t)
	now := t0
	p, st := newPoller(t, srv, func() time.Time { return now })

	first, err := p.PollOnce(context.Background())
	require.NoError(t, err)

	srv.fail.Store(gtfsrt.FeedAlerts, true)
	now = t0.Add(time.Minute)
	snap, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Same(t, snap, st.CurrentRealtime())

	assert.Equal(t, first.Alerts, snap.Alerts)
	alerts, _ := snap.Feed(gtfsrt.FeedAlerts)
	assert.False(t, alerts.Fresh)
	assert.NotEmpty(t, alerts.Error)
	assert.True(t, alerts.LastSuccess.Equal(t0))
	assert.True(t, alerts.LastAttempt.Equal(now))

	vp, _ := snap.Feed(gtfsrt.FeedVehiclePositions)
	assert.True(t, vp.Fresh)
	assert.True(t, vp.LastSuccess.Equal(now))
}

func TestRealtimePoller_AllFeedsFailing(t *testing.T) {
	srv := newRTServer(t)
	for _, kind := range gtfsrt.FeedKinds {
		srv.fail.Store(kind, true)
	}
	p, st := newPoller(t, srv, func() time.Time { return t0 })

	snap, err := p.PollOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all realtime feeds failed")
	require.NotNil(t, snap)
	assert.Same(t, snap, st.CurrentRealtime())
	assert.Empty(t, snap.Vehicles)
	for _, kind := range gtfsrt.FeedKinds {
		fs, _ := snap.Feed(kind)
		assert.False(t, fs.Fresh, kind)
		assert.True(t, fs.LastSuccess.IsZero(), kind)
	}
}

func TestRealtimePoller_CallerContextDoesNotAbortSharedFetch(t *testing.T) {
	srv := newRTServer(t)
	srv.release = make(chan struct{})
	p, st := newPoller(t, srv, func() time.Time { return t0 })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := p.PollOnce(ctx)
		done <- err
	}()
	require.Eventually(t, func() bool {
		return srv.hitCount(gtfsrt.FeedTripUpdates) == 1
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(srv.release)
	require.Eventually(t, func() bool { return st.CurrentRealtime() != nil }, 2*time.Second, 5*time.Millisecond)
	fs, _ := st.CurrentRealtime().Feed(gtfsrt.FeedTripUpdates)
	assert.True(t, fs.Fresh)
}
