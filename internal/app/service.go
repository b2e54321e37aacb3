package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ipfs-social/go-backend/internal/contentstore"
	"ipfs-social/go-backend/internal/feed"
	"ipfs-social/go-backend/internal/identity"
	"ipfs-social/go-backend/internal/kvstore"
	"ipfs-social/go-backend/internal/metrics"
	"ipfs-social/go-backend/internal/postcodec"
	"ipfs-social/go-backend/internal/signing"
	"ipfs-social/go-backend/pkg/models"
)

var (
	ErrEmptyContent     = errors.New("post content is empty")
	ErrInvalidPublicKey = identity.ErrInvalidPublicKey
)

type Options struct {
	KV         kvstore.Store
	Gateway    contentstore.Gateway
	Registry   *feed.Registry
	Aggregator *feed.Aggregator
	Logger     *slog.Logger
	Metrics    *metrics.Feed
	Now        func() time.Time
}

type PublishResult struct {
	SignedPost models.SignedPost
	Address    models.Address
}

type Service struct {
	identity   *identity.Store
	gateway    contentstore.Gateway
	registry   *feed.Registry
	aggregator *feed.Aggregator
	logger     *slog.Logger
	metrics    *metrics.Feed
	now        func() time.Time
}

// New builds a Service. Registry and Aggregator are created over KV and Gateway when nil.
func New(opts Options) (*Service, error) {
	if opts.KV == nil || opts.Gateway == nil {
		return nil, errors.New("app service needs a key-value store and a gateway")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	registry := opts.Registry
	if registry == nil {
		var err error
		if registry, err = feed.NewRegistry(opts.KV); err != nil {
			return nil, err
		}
	}
	aggregator := opts.Aggregator
	if aggregator == nil {
		var err error
		aggregator, err = feed.NewAggregator(feed.AggregatorOptions{
			Registry: registry,
			Gateway:  opts.Gateway,
			Metrics:  opts.Metrics,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
	}
	return &Service{
		identity:   identity.NewStore(opts.KV),
		gateway:    opts.Gateway,
		registry:   registry,
		aggregator: aggregator,
		logger:     logger,
		metrics:    opts.Metrics,
		now:        now,
	}, nil
}

func (s *Service) LoadOrCreateIdentity() (identity.KeyPair, error) {
	kp, outcome, err := s.identity.LoadOrCreate()
	if err != nil {
		s.logError("identity.load", err)
		return identity.KeyPair{}, err
	}
	switch outcome {
	case identity.OutcomeRecovered:
		s.logWarn("identity.load", "identity recovered", "outcome", outcome.String(), "author", kp.Author())
	case identity.OutcomeCreated:
		s.logInfo("identity.load", "identity created", "author", kp.Author())
	}
	return kp, nil
}

// Publish signs content as kp, stores it and records the address under kp's author.
func (s *Service) Publish(ctx context.Context, content string, kp identity.KeyPair) (PublishResult, error) {
	if strings.TrimSpace(content) == "" {
		return PublishResult{}, ErrEmptyContent
	}
	sp, err := signing.NewSigner(kp, s.now).SignContent(content)
	if err != nil {
		return PublishResult{}, err
	}
	data, err := postcodec.Marshal(sp)
	if err != nil {
		return PublishResult{}, err
	}
	addr, err := s.gateway.Put(ctx, data)
	if err != nil {
		s.logError("post.publish", err, "author", sp.Author)
		return PublishResult{}, fmt.Errorf("store post: %w", err)
	}
	if err := s.registry.RecordAddress(sp.Author, addr); err != nil {
		s.logError("post.publish", err, "author", sp.Author, "address", addr.String())
		return PublishResult{}, fmt.Errorf("record post address: %w", err)
	}
	s.aggregator.Remember(addr, sp)
	s.metrics.RecordPublished()
	s.logInfo("post.publish", "post published", "author", sp.Author, "address", addr.String())
	return PublishResult{SignedPost: models.CloneSignedPost(sp), Address: addr}, nil
}

// Follow adds key to set after checking it is a canonical public key.
func (s *Service) Follow(set feed.FollowSet, key string) (feed.FollowSet, error) {
	key = strings.TrimSpace(key)
	if _, err := identity.ParsePublicKey(key); err != nil {
		return set, err
	}
	return set.Follow(key), nil
}

// Unfollow removes key from set and drops every address recorded for it, member or not.
func (s *Service) Unfollow(set feed.FollowSet, key string) (feed.FollowSet, error) {
	if err := s.registry.Forget(key); err != nil {
		s.logError("feed.unfollow", err, "followee", key)
		return set, err
	}
	return set.Unfollow(key), nil
}

// RecordAddress stores an address learned out of band, such as from a shared link.
func (s *Service) RecordAddress(author string, addr models.Address) error {
	author = strings.TrimSpace(author)
	if _, err := identity.ParsePublicKey(author); err != nil {
		return err
	}
	return s.registry.RecordAddress(author, addr)
}

func (s *Service) RefreshFeed(ctx context.Context, set feed.FollowSet) ([]models.TimelineEntry, error) {
	entries, err := s.aggregator.Refresh(ctx, set.Keys())
	if err != nil {
		if !errors.Is(err, feed.ErrSuperseded) && !errors.Is(err, context.Canceled) {
			s.logError("feed.refresh", err, "followed", set.Len())
		}
		return nil, err
	}
	s.logger.Debug("feed refreshed", s.base("feed.refresh", []any{"followed", set.Len(), "entries", len(entries)})...)
	return entries, nil
}

// KnownAuthors lists the authors with recorded addresses, including ones not followed.
func (s *Service) KnownAuthors() []string {
	return s.registry.Authors()
}

func (s *Service) BackupPhrase() (string, error) {
	return s.identity.Mnemonic()
}

func (s *Service) RestoreIdentity(mnemonic string) (identity.KeyPair, error) {
	kp, err := s.identity.Restore(mnemonic)
	if err != nil {
		return identity.KeyPair{}, err
	}
	s.logWarn("identity.restore", "identity restored from backup phrase", "author", kp.Author())
	return kp, nil
}
