package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"ipfs-social/go-backend/internal/contentstore"
	"ipfs-social/go-backend/internal/metrics"
	"ipfs-social/go-backend/internal/postcodec"
	"ipfs-social/go-backend/internal/signing"
	"ipfs-social/go-backend/pkg/models"
)

const (
	DefaultConcurrency = 8
	DefaultCacheSize   = 1024
)

var ErrSuperseded = errors.New("feed refresh superseded by a newer call")

// AddressSource yields the known addresses of an author. *Registry implements it.
type AddressSource interface {
	AddressesFor(author string) []models.Address
}

type AggregatorOptions struct {
	Registry    AddressSource
	Gateway     contentstore.Gateway
	Concurrency int
	CacheSize   int
	Metrics     *metrics.Feed
	Logger      *slog.Logger
}

// Aggregator merges the posts of followed authors into one verified timeline.
type Aggregator struct {
	source      AddressSource
	gateway     contentstore.Gateway
	concurrency int
	cache       *lru.Cache[models.Address, models.SignedPost]
	metrics     *metrics.Feed
	logger      *slog.Logger

	mu         sync.Mutex
	started    uint64
	cancelPrev context.CancelFunc
	latest     []models.TimelineEntry
}

type fetchTask struct {
	author string
	addr   models.Address
}

type fetchResult struct {
	entry   models.TimelineEntry
	ok      bool
	outcome string
}

func NewAggregator(opts AggregatorOptions) (*Aggregator, error) {
	if opts.Registry == nil || opts.Gateway == nil {
		return nil, errors.New("feed aggregator needs a registry and a gateway")
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	cacheSize := opts.CacheSize
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[models.Address, models.SignedPost](cacheSize)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		source:      opts.Registry,
		gateway:     opts.Gateway,
		concurrency: concurrency,
		cache:       cache,
		metrics:     opts.Metrics,
		logger:      logger.With("component", "feed"),
	}, nil
}

// Refresh fetches, verifies and merges the posts of authors, newest first with ties broken
// by ascending address. Starting a call cancels the one before it; a call that is no longer
// the newest returns ErrSuperseded and its result is dropped. Per-post failures are skipped.
// When every attempted fetch fails because the store is unavailable the call fails instead
// of reporting an empty timeline.
func (a *Aggregator) Refresh(ctx context.Context, authors []string) ([]models.TimelineEntry, error) {
	started := time.Now()
	ctx, gen, done := a.begin(ctx)
	defer done()

	tasks := a.plan(authors)
	results := make([]fetchResult, len(tasks))
	if len(tasks) > 0 {
		var g errgroup.Group
		g.SetLimit(a.concurrency)
		for i, task := range tasks {
			g.Go(func() error {
				results[i] = a.fetch(ctx, task)
				return nil
			})
		}
		_ = g.Wait()
	}

	if !a.isCurrent(gen) {
		a.metrics.RecordRefresh(metrics.RefreshSuperseded, time.Since(started))
		return nil, ErrSuperseded
	}
	if err := ctx.Err(); err != nil {
		a.metrics.RecordRefresh(metrics.RefreshFailed, time.Since(started))
		return nil, err
	}

	entries := make([]models.TimelineEntry, 0, len(results))
	unavailable := 0
	for _, res := range results {
		a.metrics.RecordFetch(res.outcome)
		if res.outcome == metrics.FetchUnavailable {
			unavailable++
		}
		if res.ok {
			entries = append(entries, res.entry)
		}
	}
	if len(tasks) > 0 && unavailable == len(tasks) {
		a.metrics.RecordRefresh(metrics.RefreshFailed, time.Since(started))
		return nil, fmt.Errorf("%w: none of %d posts could be fetched", contentstore.ErrStoreUnavailable, len(tasks))
	}
	SortTimeline(entries)

	if !a.publish(gen, entries) {
		a.metrics.RecordRefresh(metrics.RefreshSuperseded, time.Since(started))
		return nil, ErrSuperseded
	}
	a.metrics.RecordRefresh(metrics.RefreshOK, time.Since(started))
	a.logger.Debug("feed refreshed",
		"operation", "feed.refresh",
		"authors", len(authors),
		"addresses", len(tasks),
		"entries", len(entries),
		"unavailable", unavailable,
	)
	return cloneTimeline(entries), nil
}

// Latest returns the timeline of the newest completed Refresh.
func (a *Aggregator) Latest() []models.TimelineEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return cloneTimeline(a.latest)
}

// Remember seeds the cache with a post the caller already holds, such as one it just
// published. Posts that do not verify are ignored.
func (a *Aggregator) Remember(addr models.Address, sp models.SignedPost) {
	if addr == "" || !signing.Verify(sp) {
		return
	}
	a.cache.Add(addr, models.CloneSignedPost(sp))
}

// SortTimeline orders entries by timestamp descending, then address ascending.
func SortTimeline(entries []models.TimelineEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Timestamp != entries[j].Timestamp {
			return entries[i].Timestamp > entries[j].Timestamp
		}
		return entries[i].Address < entries[j].Address
	})
}

func (a *Aggregator) begin(parent context.Context) (context.Context, uint64, func()) {
	ctx, cancel := context.WithCancel(parent)
	a.mu.Lock()
	a.started++
	gen := a.started
	if a.cancelPrev != nil {
		a.cancelPrev()
	}
	a.cancelPrev = cancel
	a.mu.Unlock()

	return ctx, gen, func() {
		cancel()
		a.mu.Lock()
		if a.started == gen {
			a.cancelPrev = nil
		}
		a.mu.Unlock()
	}
}

func (a *Aggregator) isCurrent(gen uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.started == gen
}

func (a *Aggregator) publish(gen uint64, entries []models.TimelineEntry) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started != gen {
		return false
	}
	a.latest = cloneTimeline(entries)
	a.metrics.SetTimelineSize(len(entries))
	return true
}

func (a *Aggregator) plan(authors []string) []fetchTask {
	seen := make(map[string]struct{}, len(authors))
	var tasks []fetchTask
	for _, author := range authors {
		author = strings.TrimSpace(author)
		if author == "" {
			continue
		}
		if _, dup := seen[author]; dup {
			continue
		}
		seen[author] = struct{}{}
		for _, addr := range a.source.AddressesFor(author) {
			tasks = append(tasks, fetchTask{author: author, addr: addr})
		}
	}
	return tasks
}

func (a *Aggregator) fetch(ctx context.Context, task fetchTask) fetchResult {
	log := a.logger.With("operation", "feed.fetch", "author", task.author, "address", string(task.addr))

	if sp, ok := a.cache.Get(task.addr); ok {
		if sp.Author != task.author {
			log.Warn("post rejected: author does not match registry entry", "claimed_author", sp.Author)
			return fetchResult{outcome: metrics.FetchAuthorMismatch}
		}
		return accepted(task, sp, metrics.FetchCached)
	}

	data, err := a.gateway.Get(ctx, task.addr)
	if err != nil {
		switch {
		case errors.Is(err, contentstore.ErrNotFound):
			log.Debug("post not found", "error", err.Error())
			return fetchResult{outcome: metrics.FetchNotFound}
		case errors.Is(err, contentstore.ErrStoreUnavailable):
			log.Warn("post fetch failed", "error", err.Error())
			return fetchResult{outcome: metrics.FetchUnavailable}
		default:
			log.Warn("post fetch failed", "error", err.Error())
			return fetchResult{outcome: metrics.FetchError}
		}
	}

	sp, err := postcodec.Unmarshal(data)
	if err != nil {
		log.Warn("post rejected: undecodable", "error", err.Error())
		return fetchResult{outcome: metrics.FetchDecodeError}
	}
	if sp.Author != task.author {
		log.Warn("post rejected: author does not match registry entry", "claimed_author", sp.Author)
		return fetchResult{outcome: metrics.FetchAuthorMismatch}
	}
	if !signing.Verify(sp) {
		log.Warn("post rejected: signature verification failed")
		return fetchResult{outcome: metrics.FetchBadSignature}
	}
	a.cache.Add(task.addr, sp)
	return accepted(task, sp, metrics.FetchOK)
}

func accepted(task fetchTask, sp models.SignedPost, outcome string) fetchResult {
	return fetchResult{
		entry: models.TimelineEntry{
			SignedPost: models.CloneSignedPost(sp),
			Address:    task.addr,
		},
		ok:      true,
		outcome: outcome,
	}
}

func cloneTimeline(in []models.TimelineEntry) []models.TimelineEntry {
	out := make([]models.TimelineEntry, 0, len(in))
	for _, e := range in {
		out = append(out, models.TimelineEntry{SignedPost: models.CloneSignedPost(e.SignedPost), Address: e.Address})
	}
	return out
}
