// Copyright (c) Aptos
// SPDX-License-Identifier: Apache-2.0

package cacheworker

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config configures a cache worker instance.
type Config struct {
	// IndexerAddress is the transaction stream endpoint, host:port.
	IndexerAddress string `yaml:"indexer_address"`

	// CacheAddress is the cache endpoint the worker republishes into.
	CacheAddress string `yaml:"cache_address"`

	// ChainID of the chain being indexed, part of every cache key.
	ChainID uint32 `yaml:"chain_id"`

	// StartingVersion resumes the stream from a fixed version. When
	// nil, the worker resumes from the latest version in the cache.
	StartingVersion *uint64 `yaml:"starting_version,omitempty"`
}

// LoadConfig reads a worker config from a YAML file. Unknown fields are
// rejected so that typos do not silently disable options.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.IndexerAddress == "" {
		return Config{}, fmt.Errorf("config %s: indexer_address is required", path)
	}
	return cfg, nil
}
