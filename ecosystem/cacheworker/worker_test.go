// Copyright (c) Aptos
// SPDX-License-Identifier: Apache-2.0

package cacheworker

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTTLGrowsWithVersion(t *testing.T) {
	versions := []uint64{0, 999, 1000, 50_000, 2_000_000}
	for i := 1; i < len(versions); i++ {
		lo := TTLForVersion(versions[i-1])
		hi := TTLForVersion(versions[i])
		require.GreaterOrEqual(t, hi, lo, "TTL(%d) < TTL(%d)", versions[i], versions[i-1])
	}

	// A thousand versions buy exactly one extra second.
	require.Equal(t, time.Second, TTLForVersion(1000)-TTLForVersion(0))
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "worker.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"indexer_address: 127.0.0.1:50051\ncache_address: 127.0.0.1:6379\nchain_id: 4\nstarting_version: 42\n"), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:50051", cfg.IndexerAddress)
	require.Equal(t, uint32(4), cfg.ChainID)
	require.NotNil(t, cfg.StartingVersion)
	require.Equal(t, uint64(42), *cfg.StartingVersion)

	// starting_version is optional.
	require.NoError(t, os.WriteFile(path, []byte(
		"indexer_address: 127.0.0.1:50051\ncache_address: 127.0.0.1:6379\nchain_id: 4\n"), 0644))
	cfg, err = LoadConfig(path)
	require.NoError(t, err)
	require.Nil(t, cfg.StartingVersion)

	// Unknown fields are rejected.
	require.NoError(t, os.WriteFile(path, []byte(
		"indexer_address: 127.0.0.1:50051\nchain_id: 4\nredis_adress: oops\n"), 0644))
	_, err = LoadConfig(path)
	require.Error(t, err)

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

// scriptedStream serves a fixed batch of transactions, then reports the
// stream broken.
type scriptedStream struct {
	txns []Transaction
}

func (s *scriptedStream) Recv(ctx context.Context) (Transaction, error) {
	if len(s.txns) == 0 {
		return Transaction{}, io.EOF
	}
	txn := s.txns[0]
	s.txns = s.txns[1:]
	return txn, nil
}

func (s *scriptedStream) Close() error { return nil }

func TestWorkerRepublishesAndResumes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cache := NewMemoryCache()

	var dialVersions []uint64
	dial := func(ctx context.Context, address string, startingVersion uint64) (Stream, error) {
		dialVersions = append(dialVersions, startingVersion)
		switch len(dialVersions) {
		case 1:
			// First attempt: the indexer is down, backoff kicks in.
			return nil, errors.New("connection refused")
		case 2:
			return &scriptedStream{txns: []Transaction{
				{Version: 10, Data: []byte("txn-10")},
				{Version: 11, Data: []byte("txn-11")},
			}}, nil
		default:
			// Reconnect after the break, then wind the test down.
			cancel()
			return &scriptedStream{}, nil
		}
	}

	start := uint64(10)
	worker := NewWorker(Config{
		IndexerAddress:  "127.0.0.1:50051",
		ChainID:         4,
		StartingVersion: &start,
	}, cache, dial)

	err := worker.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	// The failed dial was retried, and the reconnect resumed past the
	// last published version.
	require.GreaterOrEqual(t, len(dialVersions), 3)
	require.Equal(t, uint64(10), dialVersions[0])
	require.Equal(t, uint64(10), dialVersions[1])
	require.Equal(t, uint64(12), dialVersions[2])

	data, ok := cache.Get(CacheKey(4, 10))
	require.True(t, ok)
	require.Equal(t, []byte("txn-10"), data)
	data, ok = cache.Get(CacheKey(4, 11))
	require.True(t, ok)
	require.Equal(t, []byte("txn-11"), data)

	_, ok = cache.Get(CacheKey(5, 10))
	require.False(t, ok)
}
