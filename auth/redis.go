// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package auth

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VA7DBI/authAPI/config"
	"github.com/VA7DBI/authAPI/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisStore implements RevocationStore on Redis so that a revocation is
// seen by every instance. While Redis is unreachable it records and answers
// from an in-process fallback.
//
// The connection state has a single writer, the monitor goroutine; request
// paths only read it.
type RedisStore struct {
	client   *redis.Client
	fallback *MemoryStore
	prefix   string
	interval time.Duration
	timeout  time.Duration
	log      zerolog.Logger

	state atomic.Int32

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// RedisOptions builds client options from cfg. A URL wins over host/port.
func RedisOptions(cfg *config.Config) (*redis.Options, error) {
	timeout := time.Duration(cfg.Auth.Redis.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	var opts *redis.Options
	if cfg.Auth.Redis.URL != "" {
		parsed, err := redis.ParseURL(cfg.Auth.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Auth.Redis.Host, cfg.Auth.Redis.Port),
			Password: cfg.Auth.Redis.Password,
			DB:       cfg.Auth.Redis.DB,
		}
	}
	opts.DialTimeout = timeout
	opts.ReadTimeout = timeout
	opts.WriteTimeout = timeout
	// the monitor owns reconnection; keep request calls short
	opts.MaxRetries = -1
	return opts, nil
}

// NewRedisTokenStore starts in the Connecting state and returns immediately;
// the first probe runs in the background.
func NewRedisTokenStore(cfg *config.Config, fallback *MemoryStore, logger zerolog.Logger) (*RedisStore, error) {
	opts, err := RedisOptions(cfg)
	if err != nil {
		return nil, err
	}

	s := newRedisStore(redis.NewClient(opts), fallback, logger)
	if cfg.Auth.Redis.KeyPrefix != "" {
		s.prefix = cfg.Auth.Redis.KeyPrefix
	}
	if cfg.Auth.Redis.ProbeInterval > 0 {
		s.interval = time.Duration(cfg.Auth.Redis.ProbeInterval) * time.Second
	}
	if opts.DialTimeout > 0 {
		s.timeout = opts.DialTimeout
	}
	go s.monitor()
	return s, nil
}

func newRedisStore(client *redis.Client, fallback *MemoryStore, logger zerolog.Logger) *RedisStore {
	if fallback == nil {
		fallback = NewMemoryStore()
	}
	s := &RedisStore{
		client:   client,
		fallback: fallback,
		prefix:   "revoked:",
		interval: 5 * time.Second,
		timeout:  2 * time.Second,
		log:      logger.With().Str("component", "revocation_store").Logger(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.state.Store(int32(Connecting))
	metrics.RevocationBackendReady.Set(0)
	return s
}

func (s *RedisStore) State() State {
	return State(s.state.Load())
}

func (s *RedisStore) Available() bool {
	return s.State() == Ready
}

func (s *RedisStore) Add(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	if s.Available() {
		timer := prometheus.NewTimer(metrics.RevocationStoreLatency.WithLabelValues("add"))
		err := s.client.Set(ctx, s.prefix+tokenID, "1", ttl).Err()
		timer.ObserveDuration()
		if err == nil {
			metrics.Revocations.WithLabelValues("redis").Inc()
			return nil
		}
		metrics.RevocationStoreErrors.WithLabelValues("add").Inc()
		s.log.Warn().Err(err).Str("jti", tokenID).Msg("redis write failed, recording revocation locally")
	}

	metrics.Revocations.WithLabelValues("memory").Inc()
	return s.fallback.Add(ctx, tokenID, ttl)
}

// Exists checks the local fallback first, so revocations recorded during an
// outage keep working after Redis returns. A Redis error while the backend
// is Ready is returned rather than read as "not revoked".
func (s *RedisStore) Exists(ctx context.Context, tokenID string) (bool, error) {
	revoked, err := s.fallback.Exists(ctx, tokenID)
	if err != nil || revoked {
		return revoked, err
	}
	if !s.Available() {
		return false, nil
	}

	timer := prometheus.NewTimer(metrics.RevocationStoreLatency.WithLabelValues("exists"))
	n, err := s.client.Exists(ctx, s.prefix+tokenID).Result()
	timer.ObserveDuration()
	if err != nil {
		metrics.RevocationStoreErrors.WithLabelValues("exists").Inc()
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n == 1, nil
}

// Close stops the monitor and closes the client.
func (s *RedisStore) Close() error {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	<-s.done
	return s.client.Close()
}

func (s *RedisStore) monitor() {
	defer close(s.done)

	s.probe()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.probe()
		case <-s.stop:
			return
		}
	}
}

func (s *RedisStore) probe() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		if s.State() == Ready {
			s.setState(Disconnected)
			s.log.Warn().Err(err).Msg("redis unreachable, falling back to in-memory revocation list")
		}
		return
	}
	if s.State() != Ready {
		s.setState(Ready)
		s.log.Info().Msg("redis revocation backend ready")
	}
}

func (s *RedisStore) setState(state State) {
	s.state.Store(int32(state))
	if state == Ready {
		metrics.RevocationBackendReady.Set(1)
	} else {
		metrics.RevocationBackendReady.Set(0)
	}
}
