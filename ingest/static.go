package ingest

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/theoremus-urban-solutions/transitcore/bundlecache"
	"github.com/theoremus-urban-solutions/transitcore/errs"
	"github.com/theoremus-urban-solutions/transitcore/gtfs"
	"github.com/theoremus-urban-solutions/transitcore/metrics"
	"github.com/theoremus-urban-solutions/transitcore/store"
)

// Fetcher downloads a URL. *gtfsrt.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// BundleCache persists the last good static bundle. *bundlecache.Cache implements it.
type BundleCache interface {
	Load(ctx context.Context) ([]byte, bundlecache.Manifest, error)
	Store(ctx context.Context, data []byte, m bundlecache.Manifest) error
	Age(ctx context.Context, now time.Time) (time.Duration, bool)
	Path() string
}

type StaticConfig struct {
	URL             string // http(s) URL or local zip path
	CacheMaxAge     time.Duration
	RefreshInterval time.Duration
	RetryInterval   time.Duration
}

// LoaderStatus is the loader's health indicator.
type LoaderStatus struct {
	LastAttempt         time.Time `json:"last_attempt,omitempty"`
	LastSuccess         time.Time `json:"last_success,omitempty"`
	LastError           string    `json:"last_error,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	Source              string    `json:"source,omitempty"`
	SnapshotID          string    `json:"snapshot_id,omitempty"`
}

// StaticLoader refreshes the static schedule and publishes it to the store.
type StaticLoader struct {
	cfg     StaticConfig
	fetcher Fetcher
	cache   BundleCache // may be nil
	store   *store.Store
	metrics *metrics.Collector
	log     *slog.Logger
	now     func() time.Time

	mu      sync.Mutex // serialises refreshes
	status  atomic.Pointer[LoaderStatus]
	trigger chan struct{}
}

// NewStaticLoader wires a loader. cache and m may be nil.
func NewStaticLoader(cfg StaticConfig, fetcher Fetcher, cache BundleCache, st *store.Store, m *metrics.Collector, logger *slog.Logger) *StaticLoader {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 24 * time.Hour
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 5 * time.Minute
	}
	if cfg.CacheMaxAge <= 0 {
		cfg.CacheMaxAge = 24 * time.Hour
	}
	l := &StaticLoader{
		cfg:     cfg,
		fetcher: fetcher,
		cache:   cache,
		store:   st,
		metrics: m,
		log:     logger.With("component", "static_loader"),
		now:     time.Now,
		trigger: make(chan struct{}, 1),
	}
	l.status.Store(&LoaderStatus{})
	return l
}

// Status returns a copy of the latest refresh outcome.
func (l *StaticLoader) Status() LoaderStatus { return *l.status.Load() }

// Refresh loads a new schedule and publishes it. Unless force is set, a
// cached bundle younger than CacheMaxAge is used instead of downloading. On
// failure the previously published schedule stays in place.
func (l *StaticLoader) Refresh(ctx context.Context, force bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := l.now()
	sched, data, err := l.load(ctx, force)
	if err == nil {
		err = l.store.PublishStatic(sched)
	}

	st := l.Status()
	st.LastAttempt = start
	if err != nil {
		st.LastError = err.Error()
		st.ConsecutiveFailures++
		l.status.Store(&st)
		l.metrics.ObserveStatic(resultLabel(err), l.now().Sub(start), gtfs.Counts{}, start)
		l.log.Error("static refresh failed", "error", err, "consecutive_failures", st.ConsecutiveFailures, "force", force)
		return err
	}

	counts := sched.Counts()
	st.LastSuccess = start
	st.LastError = ""
	st.ConsecutiveFailures = 0
	st.Source = sched.Source
	st.SnapshotID = sched.ID
	l.status.Store(&st)
	l.metrics.ObserveStatic("ok", l.now().Sub(start), counts, start)
	l.log.Info("static schedule published",
		"snapshot", sched.ID, "source", sched.Source,
		"routes", counts.Routes, "stops", counts.Stops, "trips", counts.Trips, "stop_times", counts.StopTimes,
		"duration", l.now().Sub(start))

	if data != nil && l.cache != nil {
		m := bundlecache.Manifest{SHA256: sched.SHA256, URL: sched.Source, RetrievedAt: sched.FetchedAt, Counts: counts}
		if err := l.cache.Store(ctx, data, m); err != nil {
			l.log.Warn("caching static bundle failed", "error", err)
		}
	}
	return nil
}

// load returns the new schedule and, when it was downloaded, the raw bundle
// so it can be cached after publication.
func (l *StaticLoader) load(ctx context.Context, force bool) (*gtfs.Schedule, []byte, error) {
	now := l.now()
	if !force && l.cache != nil {
		if age, ok := l.cache.Age(ctx, now); ok && age < l.cfg.CacheMaxAge {
			sched, err := l.loadCache(ctx)
			if err == nil {
				l.log.Info("using cached static bundle", "age", age.Round(time.Second))
				return sched, nil, nil
			}
			l.log.Warn("cached static bundle unusable", "error", err)
		}
	}

	data, err := l.fetchBundle(ctx)
	if err != nil {
		// With nothing published yet, a stale cache beats an empty store.
		if l.store.CurrentStatic() == nil && l.cache != nil {
			if sched, cerr := l.loadCache(ctx); cerr == nil {
				l.log.Warn("download failed, serving stale cached bundle", "error", err, "cached_at", sched.FetchedAt)
				return sched, nil, nil
			}
		}
		return nil, nil, err
	}
	sched, err := parseAndValidate(data, l.cfg.URL, now)
	if err != nil {
		return nil, nil, err
	}
	return sched, data, nil
}

func (l *StaticLoader) loadCache(ctx context.Context) (*gtfs.Schedule, error) {
	data, m, err := l.cache.Load(ctx)
	if err != nil {
		return nil, err
	}
	return parseAndValidate(data, l.cache.Path(), m.RetrievedAt)
}

func (l *StaticLoader) fetchBundle(ctx context.Context) ([]byte, error) {
	const op = "ingest.StaticLoader.fetch"
	src := l.cfg.URL
	if src == "" {
		return nil, errs.Ef(errs.FetchFailed, op, "no static feed url configured")
	}
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		data, err := l.fetcher.Fetch(ctx, src)
		if err != nil {
			return nil, err
		}
		return data, nil
	}
	data, err := os.ReadFile(strings.TrimPrefix(src, "file://"))
	if err != nil {
		return nil, errs.E(errs.FetchFailed, op, err)
	}
	return data, nil
}

func parseAndValidate(data []byte, source string, fetchedAt time.Time) (*gtfs.Schedule, error) {
	sched, err := gtfs.Parse(data, source, fetchedAt)
	if err != nil {
		return nil, err
	}
	if err := gtfs.Validate(sched); err != nil {
		return nil, err
	}
	return sched, nil
}

// Trigger requests an immediate forced refresh from Run. It never blocks;
// requests made while one is pending are merged.
func (l *StaticLoader) Trigger() {
	select {
	case l.trigger <- struct{}{}:
	default:
	}
}

// Run refreshes at startup and then every RefreshInterval, retrying failed
// refreshes with backoff. It returns when ctx is done.
func (l *StaticLoader) Run(ctx context.Context) error {
	b := Backoff{Period: l.cfg.RefreshInterval, Retry: l.cfg.RetryInterval}
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		force := false
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		case <-l.trigger:
			force = true
		}
		err := l.Refresh(ctx, force)
		next := b.Next(err == nil)
		timer.Reset(next)
		l.log.Debug("next static refresh scheduled", "in", next)
	}
}

func resultLabel(err error) string {
	if k := errs.KindOf(err); k != "" {
		return string(k)
	}
	return "error"
}
