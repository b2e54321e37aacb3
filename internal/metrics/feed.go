// Package metrics holds the Prometheus collectors of the feed engine. A nil *Feed is valid
// and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "signfeed"

// Fetch outcomes of one address during a refresh.
const (
	FetchOK             = "ok"
	FetchCached         = "cached"
	FetchNotFound       = "not_found"
	FetchUnavailable    = "unavailable"
	FetchDecodeError    = "decode_error"
	FetchAuthorMismatch = "author_mismatch"
	FetchBadSignature   = "bad_signature"
	FetchError          = "error"
)

// Refresh results.
const (
	RefreshOK         = "ok"
	RefreshSuperseded = "superseded"
	RefreshFailed     = "failed"
)

type Feed struct {
	fetches         *prometheus.CounterVec
	refreshes       *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	timelineSize    prometheus.Gauge
	published       prometheus.Counter
}

func NewFeed(reg prometheus.Registerer) *Feed {
	f := &Feed{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "fetches_total",
			Help:      "Post fetches during feed refresh by outcome.",
		}, []string{"outcome"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "refreshes_total",
			Help:      "Feed refresh calls by result.",
		}, []string{"result"}),
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "refresh_duration_seconds",
			Help:      "Wall time of feed refresh calls.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		timelineSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "timeline_entries",
			Help:      "Entries in the latest published timeline.",
		}),
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "posts",
			Name:      "published_total",
			Help:      "Posts signed and stored by the local identity.",
		}),
	}
	if reg != nil {
		reg.MustRegister(f.fetches, f.refreshes, f.refreshDuration, f.timelineSize, f.published)
	}
	return f
}

func (f *Feed) RecordFetch(outcome string) {
	if f == nil {
		return
	}
	f.fetches.WithLabelValues(outcome).Inc()
}

func (f *Feed) RecordRefresh(result string, elapsed time.Duration) {
	if f == nil {
		return
	}
	f.refreshes.WithLabelValues(result).Inc()
	f.refreshDuration.Observe(elapsed.Seconds())
}

func (f *Feed) SetTimelineSize(n int) {
	if f == nil {
		return
	}
	f.timelineSize.Set(float64(n))
}

func (f *Feed) RecordPublished() {
	if f == nil {
		return
	}
	f.published.Inc()
}

// FetchCount returns the counter for outcome, for tests and diagnostics.
func (f *Feed) FetchCount(outcome string) prometheus.Counter {
	return f.fetches.WithLabelValues(outcome)
}

func (f *Feed) RefreshCount(result string) prometheus.Counter {
	return f.refreshes.WithLabelValues(result)
}

func (f *Feed) PublishedCount() prometheus.Counter {
	return f.published
}
