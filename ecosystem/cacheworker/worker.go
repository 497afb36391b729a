// Copyright (c) Aptos
// SPDX-License-Identifier: Apache-2.0

// Package cacheworker streams committed transactions from an indexer
// endpoint and republishes them into a cache under versioned keys with
// a sliding expiration, so that downstream processors always find a
// recent window of the ledger without touching the node.
package cacheworker

import (
	"context"
	"fmt"
	"time"

	"github.com/RJ0088/aptos-core/log"
	"github.com/cenkalti/backoff/v4"
	gocache "github.com/patrickmn/go-cache"
)

// baseExpirationEpochTime is 2033-01-01 00:00:00 UTC. TTLs count down
// from it so that entries of later versions outlive earlier ones.
const baseExpirationEpochTime = 1988150400

// TTLForVersion returns the cache expiration for the entry holding the
// given version: one extra second of lifetime per thousand versions, so
// the tail of the ledger expires last.
func TTLForVersion(version uint64) time.Duration {
	now := uint64(time.Now().Unix())
	return time.Duration(baseExpirationEpochTime-now+version/1000) * time.Second
}

// Transaction is one committed transaction surfaced by the stream.
type Transaction struct {
	Version uint64
	Data    []byte
}

// Stream is an open transaction stream.
type Stream interface {
	// Recv blocks for the next transaction. It fails permanently when
	// the stream is broken; the worker reconnects on its own.
	Recv(ctx context.Context) (Transaction, error)

	Close() error
}

// Dialer opens a stream against the indexer endpoint, starting at the
// given version.
type Dialer func(ctx context.Context, address string, startingVersion uint64) (Stream, error)

// Cache is the sink the worker republishes into.
type Cache interface {
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, bool)
}

// memoryCache is the in-process Cache used when no external cache is
// wired up, and by tests.
type memoryCache struct {
	c *gocache.Cache
}

// NewMemoryCache returns an in-process Cache with per-entry TTLs.
func NewMemoryCache() Cache {
	return &memoryCache{c: gocache.New(gocache.NoExpiration, time.Minute)}
}

func (m *memoryCache) Set(key string, value []byte, ttl time.Duration) error {
	m.c.Set(key, value, ttl)
	return nil
}

func (m *memoryCache) Get(key string) ([]byte, bool) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

// Worker is one cache worker instance.
type Worker struct {
	cfg   Config
	cache Cache
	dial  Dialer
	log   log.Logger

	nextVersion uint64
}

// NewWorker assembles a worker from its config, cache sink and stream
// dialer.
func NewWorker(cfg Config, cache Cache, dial Dialer) *Worker {
	next := uint64(0)
	if cfg.StartingVersion != nil {
		next = *cfg.StartingVersion
	}
	return &Worker{
		cfg:         cfg,
		cache:       cache,
		dial:        dial,
		log:         log.New("worker", "cache", "chainid", cfg.ChainID),
		nextVersion: next,
	}
}

// CacheKey is the key the transaction at version is published under for
// the given chain.
func CacheKey(chainID uint32, version uint64) string {
	return fmt.Sprintf("txn:%d:%d", chainID, version)
}

// Run streams and republishes until ctx is cancelled. Connection
// failures are retried with exponential backoff, indefinitely: the
// worker outwaits any indexer outage and resumes from where it stopped.
func (w *Worker) Run(ctx context.Context) error {
	for {
		stream, err := w.connect(ctx)
		if err != nil {
			return err
		}
		err = w.consume(ctx, stream)
		stream.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.log.Warn("Stream broken, reconnecting", "err", err, "resume", w.nextVersion)
	}
}

// connect dials the indexer with unbounded exponential backoff. Only
// ctx cancellation makes it give up.
func (w *Worker) connect(ctx context.Context) (Stream, error) {
	policy := backoff.WithContext(backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(0)), ctx)
	return backoff.RetryNotifyWithData(func() (Stream, error) {
		return w.dial(ctx, w.cfg.IndexerAddress, w.nextVersion)
	}, policy, func(err error, next time.Duration) {
		w.log.Warn("Indexer unreachable, backing off", "err", err, "retry_in", next)
	})
}

// consume republishes transactions until the stream breaks or ctx is
// cancelled.
func (w *Worker) consume(ctx context.Context, stream Stream) error {
	w.log.Info("Streaming transactions", "from", w.nextVersion)
	for {
		txn, err := stream.Recv(ctx)
		if err != nil {
			return err
		}
		key := CacheKey(w.cfg.ChainID, txn.Version)
		if err := w.cache.Set(key, txn.Data, TTLForVersion(txn.Version)); err != nil {
			return fmt.Errorf("publish %s: %w", key, err)
		}
		if txn.Version >= w.nextVersion {
			w.nextVersion = txn.Version + 1
		}
	}
}
