// Copyright (c) Aptos
// SPDX-License-Identifier: Apache-2.0

// Package kvdb defines the interfaces for the physical key-value stores
// backing the node's databases. Two engines implement them: the pebble
// and leveldb subpackages. Everything above this layer is engine
// agnostic.
package kvdb

import (
	"errors"
	"io"
)

// ErrNotFound is returned by Get when the key is absent. Backends
// translate their engine-specific miss errors to it, so callers can match
// with errors.Is regardless of the engine in use.
var ErrNotFound = errors.New("kvdb: key not found")

// KeyValueReader wraps the Has and Get method of a backing data store.
type KeyValueReader interface {
	// Has retrieves if a key is present in the key-value data store.
	Has(key []byte) (bool, error)

	// Get retrieves the given key if it's present in the key-value data
	// store, or ErrNotFound if it is absent.
	Get(key []byte) ([]byte, error)
}

// KeyValueWriter wraps the Put method of a backing data store.
type KeyValueWriter interface {
	// Put inserts the given value into the key-value data store.
	Put(key []byte, value []byte) error

	// Delete removes the key from the key-value data store.
	Delete(key []byte) error
}

// Compacter wraps the Compact method of a backing data store.
type Compacter interface {
	// Compact flattens the underlying data store for the given key range.
	// In essence, deleted and overwritten versions are discarded, and the
	// data is rearranged to reduce the cost of operations needed to
	// access them.
	//
	// A nil start is treated as a key before all keys in the data store;
	// a nil limit is treated as a key after all keys in the data store.
	// If both is nil then it will compact the entire data store.
	Compact(start []byte, limit []byte) error
}

// Store contains all the methods required to allow handling different
// key-value data stores backing the high level schema database.
type Store interface {
	KeyValueReader
	KeyValueWriter
	Batcher
	Iteratee
	Compacter
	io.Closer

	// Path returns the directory the store was opened at.
	Path() string
}
