package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/theoremus-urban-solutions/transitcore/gtfs"
	"github.com/theoremus-urban-solutions/transitcore/gtfsrt"
	"github.com/theoremus-urban-solutions/transitcore/ingest"
	"github.com/theoremus-urban-solutions/transitcore/store"
)

const (
	statusOK          = "ok"
	statusDegraded    = "degraded"
	statusUnavailable = "unavailable"
)

type healthResponse struct {
	Status                  string         `json:"status"`
	Time                    time.Time      `json:"time"`
	LatestGTFSRealtimeEpoch int64          `json:"latest_gtfsrt_epoch"`
	Static                  staticHealth   `json:"static"`
	Realtime                realtimeHealth `json:"realtime"`
}

type staticHealth struct {
	Loaded     bool                 `json:"loaded"`
	SnapshotID string               `json:"snapshot_id,omitempty"`
	Source     string               `json:"source,omitempty"`
	FetchedAt  time.Time            `json:"fetched_at,omitempty"`
	AgeSeconds int64                `json:"age_seconds,omitempty"`
	Counts     *gtfs.Counts         `json:"counts,omitempty"`
	Loader     *ingest.LoaderStatus `json:"loader,omitempty"`
}

type realtimeHealth struct {
	SnapshotID string            `json:"snapshot_id,omitempty"`
	FetchedAt  time.Time         `json:"fetched_at,omitempty"`
	Feeds      []store.Freshness `json:"feeds"`
}

// GET /api/health. Serving stale data is "degraded", not a failure; only a
// missing static schedule answers 503.
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	v := h.Store.View()
	resp := healthResponse{Status: statusOK, Time: now.UTC(), Realtime: realtimeHealth{Feeds: []store.Freshness{}}}

	if h.Loader != nil {
		st := h.Loader.Status()
		resp.Static.Loader = &st
		if st.LastError != "" {
			resp.Status = statusDegraded
		}
	}
	if s := v.Static; s != nil {
		counts := s.Counts()
		resp.Static.Loaded = true
		resp.Static.SnapshotID = s.ID
		resp.Static.Source = s.Source
		resp.Static.FetchedAt = s.FetchedAt
		resp.Static.AgeSeconds = int64(now.Sub(s.FetchedAt) / time.Second)
		resp.Static.Counts = &counts
	}

	if rt := v.Realtime; rt != nil {
		resp.Realtime.SnapshotID = rt.ID
		resp.Realtime.FetchedAt = rt.FetchedAt
		kinds := make([]gtfsrt.FeedKind, 0, len(rt.Feeds))
		for k := range rt.Feeds {
			kinds = append(kinds, k)
		}
		sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
		for _, k := range kinds {
			f := v.Freshness(k, now, h.Staleness)
			resp.Realtime.Feeds = append(resp.Realtime.Feeds, f)
			if !f.Available || f.Stale {
				resp.Status = statusDegraded
			}
			if st := rt.Feeds[k]; st.HeaderTime.Unix() > resp.LatestGTFSRealtimeEpoch {
				resp.LatestGTFSRealtimeEpoch = st.HeaderTime.Unix()
			}
		}
	}

	code := http.StatusOK
	if v.Static == nil {
		resp.Status = statusUnavailable
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}
