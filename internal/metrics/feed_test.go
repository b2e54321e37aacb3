package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestFeedMetricsRecordAndRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := NewFeed(reg)
	f.RecordFetch(FetchOK)
	f.RecordFetch(FetchOK)
	f.RecordFetch(FetchNotFound)
	f.RecordRefresh(RefreshOK, 10*time.Millisecond)
	f.SetTimelineSize(3)
	f.RecordPublished()

	if got := testutil.ToFloat64(f.FetchCount(FetchOK)); got != 2 {
		t.Fatalf("expected 2 ok fetches, got %v", got)
	}
	if got := testutil.ToFloat64(f.FetchCount(FetchNotFound)); got != 1 {
		t.Fatalf("expected 1 not_found fetch, got %v", got)
	}
	if got := testutil.ToFloat64(f.RefreshCount(RefreshOK)); got != 1 {
		t.Fatalf("expected 1 refresh, got %v", got)
	}
	if got := testutil.ToFloat64(f.PublishedCount()); got != 1 {
		t.Fatalf("expected 1 published, got %v", got)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	if len(families) != 5 {
		t.Fatalf("expected 5 metric families, got %d", len(families))
	}
}

func TestNilFeedIsNoop(t *testing.T) {
	var f *Feed
	f.RecordFetch(FetchOK)
	f.RecordRefresh(RefreshFailed, time.Second)
	f.SetTimelineSize(1)
	f.RecordPublished()
}
