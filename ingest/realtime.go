package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/theoremus-urban-solutions/transitcore/gtfsrt"
	"github.com/theoremus-urban-solutions/transitcore/metrics"
	"github.com/theoremus-urban-solutions/transitcore/store"
)

// MinPollInterval is the upstream's documented minimum spacing between fetches.
const MinPollInterval = 10 * time.Second

type RealtimeConfig struct {
	URLs     map[gtfsrt.FeedKind]string // feeds without a URL are not polled
	Interval time.Duration
	Timeout  time.Duration // bounds the shared fetch; zero means 30s
}

// FeedURLs resolves per-feed URLs. Explicit URLs win; the rest are derived
// from base by adding the Type query parameter.
func FeedURLs(base, vehiclePositions, tripUpdates, alerts string) (map[gtfsrt.FeedKind]string, error) {
	explicit := map[gtfsrt.FeedKind]string{
		gtfsrt.FeedVehiclePositions: vehiclePositions,
		gtfsrt.FeedTripUpdates:      tripUpdates,
		gtfsrt.FeedAlerts:           alerts,
	}
	out := make(map[gtfsrt.FeedKind]string, len(explicit))
	for _, kind := range gtfsrt.FeedKinds {
		if u := explicit[kind]; u != "" {
			out[kind] = u
			continue
		}
		if base == "" {
			continue
		}
		u, err := gtfsrt.FeedURL(base, kind)
		if err != nil {
			return nil, err
		}
		out[kind] = u
	}
	return out, nil
}

// RealtimePoller fetches the realtime feeds and publishes merged snapshots.
type RealtimePoller struct {
	cfg     RealtimeConfig
	fetcher Fetcher
	store   *store.Store
	metrics *metrics.Collector
	log     *slog.Logger
	now     func() time.Time

	group     singleflight.Group
	mu        sync.Mutex // guards lastFetch
	lastFetch time.Time
}

func NewRealtimePoller(cfg RealtimeConfig, fetcher Fetcher, st *store.Store, m *metrics.Collector, logger *slog.Logger) *RealtimePoller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval < MinPollInterval {
		cfg.Interval = MinPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &RealtimePoller{
		cfg:     cfg,
		fetcher: fetcher,
		store:   st,
		metrics: m,
		log:     logger.With("component", "realtime_poller"),
		now:     time.Now,
	}
}

// Interval is the effective polling period.
func (p *RealtimePoller) Interval() time.Duration { return p.cfg.Interval }

// PollOnce fetches all feeds and publishes a new snapshot. Concurrent callers
// share one in-flight fetch, and calls within MinPollInterval of the previous
// fetch return the current snapshot without contacting the upstream. The
// error is non-nil only when every feed failed or ctx ended while waiting.
func (p *RealtimePoller) PollOnce(ctx context.Context) (*store.Realtime, error) {
	if cur, ok := p.throttled(); ok {
		p.metrics.PollThrottled()
		return cur, nil
	}
	ch := p.group.DoChan("poll", func() (any, error) {
		// Another flight may have finished between the check above and now.
		if cur, ok := p.throttled(); ok {
			return cur, nil
		}
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.Timeout)
		defer cancel()
		return p.poll(fetchCtx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Shared {
			p.metrics.PollCoalesced()
		}
		snap, _ := res.Val.(*store.Realtime)
		return snap, res.Err
	}
}

func (p *RealtimePoller) throttled() (*store.Realtime, bool) {
	p.mu.Lock()
	last := p.lastFetch
	p.mu.Unlock()
	if last.IsZero() || p.now().Sub(last) >= MinPollInterval {
		return nil, false
	}
	cur := p.store.CurrentRealtime()
	return cur, cur != nil
}

type feedResult struct {
	kind     gtfsrt.FeedKind
	err      error
	header   gtfsrt.Header
	count    int
	vehicles []gtfsrt.VehiclePosition
	updates  map[string]*gtfsrt.TripUpdate
	alerts   []gtfsrt.Alert
}

func (p *RealtimePoller) poll(ctx context.Context) (*store.Realtime, error) {
	start := p.now()
	p.mu.Lock()
	p.lastFetch = start
	p.mu.Unlock()

	results := make([]feedResult, 0, len(gtfsrt.FeedKinds))
	var (
		wg  sync.WaitGroup
		rmu sync.Mutex
	)
	for _, kind := range gtfsrt.FeedKinds {
		url := p.cfg.URLs[kind]
		if url == "" {
			continue
		}
		wg.Add(1)
		go func(kind gtfsrt.FeedKind, url string) {
			defer wg.Done()
			r := p.fetchFeed(ctx, kind, url)
			rmu.Lock()
			results = append(results, r)
			rmu.Unlock()
		}(kind, url)
	}
	wg.Wait()

	snap := p.assemble(start, results)
	if err := p.store.PublishRealtime(snap); err != nil {
		return nil, err
	}
	p.metrics.ObservePoll(p.now().Sub(start))

	var failures []error
	for _, r := range results {
		p.metrics.ObserveFeed(string(r.kind), r.err, r.count, start)
		if r.err != nil {
			failures = append(failures, fmt.Errorf("%s: %w", r.kind, r.err))
			p.log.Warn("realtime feed failed", "feed", r.kind, "error", r.err)
		}
	}
	p.log.Debug("realtime snapshot published",
		"snapshot", snap.ID, "vehicles", len(snap.Vehicles), "trip_updates", len(snap.TripUpdates),
		"alerts", len(snap.Alerts), "failed_feeds", len(failures))
	if len(results) > 0 && len(failures) == len(results) {
		return snap, fmt.Errorf("all realtime feeds failed: %w", errors.Join(failures...))
	}
	return snap, nil
}

func (p *RealtimePoller) fetchFeed(ctx context.Context, kind gtfsrt.FeedKind, url string) feedResult {
	r := feedResult{kind: kind}
	data, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		r.err = err
		return r
	}
	switch kind {
	case gtfsrt.FeedVehiclePositions:
		r.vehicles, r.header, r.err = gtfsrt.DecodeVehiclePositions(data)
		r.count = len(r.vehicles)
	case gtfsrt.FeedTripUpdates:
		r.updates, r.header, r.err = gtfsrt.DecodeTripUpdates(data)
		r.count = len(r.updates)
	case gtfsrt.FeedAlerts:
		r.alerts, r.header, r.err = gtfsrt.DecodeAlerts(data)
		r.count = len(r.alerts)
	}
	return r
}

// assemble builds the next snapshot. A failed feed keeps the previous
// snapshot's data and success times, marked not fresh.
func (p *RealtimePoller) assemble(start time.Time, results []feedResult) *store.Realtime {
	prev := p.store.CurrentRealtime()
	snap := &store.Realtime{
		ID:          uuid.NewString(),
		FetchedAt:   start,
		TripUpdates: map[string]*gtfsrt.TripUpdate{},
		Feeds:       make(map[gtfsrt.FeedKind]store.FeedStatus, len(results)),
	}
	if prev != nil {
		snap.Vehicles = prev.Vehicles
		snap.TripUpdates = prev.TripUpdates
		snap.Alerts = prev.Alerts
	}
	for _, r := range results {
		st, _ := prev.Feed(r.kind)
		st.LastAttempt = start
		if r.err != nil {
			st.Fresh = false
			st.Error = r.err.Error()
			snap.Feeds[r.kind] = st
			continue
		}
		st.Fresh = true
		st.Error = ""
		st.LastSuccess = start
		st.HeaderTime = r.header.Timestamp
		st.Count = r.count
		snap.Feeds[r.kind] = st
		switch r.kind {
		case gtfsrt.FeedVehiclePositions:
			snap.Vehicles = r.vehicles
		case gtfsrt.FeedTripUpdates:
			snap.TripUpdates = r.updates
		case gtfsrt.FeedAlerts:
			snap.Alerts = r.alerts
		}
	}
	return snap
}

// Run polls immediately and then every Interval until ctx is done. Failures
// are logged and retried on the next tick.
func (p *RealtimePoller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		if _, err := p.PollOnce(ctx); err != nil && ctx.Err() == nil {
			p.log.Error("realtime poll failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
