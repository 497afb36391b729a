// Copyright (c) Aptos
// SPDX-License-Identifier: Apache-2.0

package schemadb

import "github.com/RJ0088/aptos-core/storage/kvdb"

// SchemaBatch buffers writes across column families and commits them
// atomically to the host handle when Write is called. A batch cannot be
// used concurrently.
type SchemaBatch struct {
	db *DB
	b  kvdb.Batch
}

// Put inserts the given value under key in the named column family for
// later committing.
func (b *SchemaBatch) Put(cf string, key, value []byte) error {
	k, err := b.db.cfKey(cf, key)
	if err != nil {
		return err
	}
	return b.b.Put(k, value)
}

// Delete inserts the key removal into the batch for later committing.
func (b *SchemaBatch) Delete(cf string, key []byte) error {
	k, err := b.db.cfKey(cf, key)
	if err != nil {
		return err
	}
	return b.b.Delete(k)
}

// SetCommittedVersion records v as the latest committed version in the
// same atomic write as the batched data.
func (b *SchemaBatch) SetCommittedVersion(v uint64) error {
	return b.b.Put(committedVersionKey, encodeVersion(v))
}

// ValueSize retrieves the amount of data queued up for writing.
func (b *SchemaBatch) ValueSize() int {
	return b.b.ValueSize()
}

// Write flushes any accumulated data to disk. Fails with ErrReadOnly on
// a secondary handle.
func (b *SchemaBatch) Write() error {
	b.db.mu.RLock()
	defer b.db.mu.RUnlock()
	if err := b.db.writableLocked(); err != nil {
		return err
	}
	return b.b.Write()
}

// Reset resets the batch for reuse.
func (b *SchemaBatch) Reset() {
	b.b.Reset()
}

// closedBatch backs batches handed out by a closed handle. The store is
// already released, so every operation fails with ErrClosed.
type closedBatch struct{}

func (closedBatch) Put(key, value []byte) error { return ErrClosed }
func (closedBatch) Delete(key []byte) error     { return ErrClosed }
func (closedBatch) ValueSize() int              { return 0 }
func (closedBatch) Write() error                { return ErrClosed }
func (closedBatch) Reset()                      {}
