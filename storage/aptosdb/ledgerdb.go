// Copyright (c) Aptos
// SPDX-License-Identifier: Apache-2.0

// Package aptosdb lays out the node's persistent state as two schemadb
// stores under one data dir: the ledger store holds the sequential
// transaction history, the state merkle store holds the versioned state
// trie. Key codecs are fixed big-endian encodings so that iteration
// order on the physical store matches version order.
package aptosdb

import (
	"encoding/binary"
	"fmt"
	"path/filepath"

	"github.com/RJ0088/aptos-core/storage/kvdb"
	"github.com/RJ0088/aptos-core/storage/schemadb"
)

// LedgerDB is the sequential history store. Transactions, their infos
// and write sets are addressed by version; events by version plus the
// index within the transaction.
type LedgerDB struct {
	*schemadb.DB
}

// OpenLedgerDB opens, creating if necessary, the ledger store under
// dataDir as a read-write primary.
func OpenLedgerDB(dataDir string, opts schemadb.Options) (*LedgerDB, error) {
	db, err := schemadb.OpenPrimary(
		filepath.Join(dataDir, LedgerDBName), LedgerDBName, LedgerColumnFamilies(), opts)
	if err != nil {
		return nil, err
	}
	return &LedgerDB{DB: db}, nil
}

// OpenLedgerDBSecondary opens a read-only mirror of the ledger store
// under dataDir, materialized in scratchDir.
func OpenLedgerDBSecondary(dataDir, scratchDir string, opts schemadb.Options) (*LedgerDB, error) {
	db, err := schemadb.OpenSecondary(
		filepath.Join(dataDir, LedgerDBName), scratchDir, LedgerDBName, LedgerColumnFamilies(), opts)
	if err != nil {
		return nil, err
	}
	return &LedgerDB{DB: db}, nil
}

// VersionKey encodes a version as its fixed 8-byte big-endian key.
func VersionKey(version uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, version)
	return key
}

// DecodeVersionKey is the inverse of VersionKey.
func DecodeVersionKey(key []byte) (uint64, error) {
	if len(key) != 8 {
		return 0, fmt.Errorf("malformed version key of %d bytes", len(key))
	}
	return binary.BigEndian.Uint64(key), nil
}

// EventKey encodes the key of the index-th event emitted at version.
// Events of one version sort together, in emission order.
func EventKey(version uint64, index uint64) []byte {
	key := make([]byte, 16)
	binary.BigEndian.PutUint64(key, version)
	binary.BigEndian.PutUint64(key[8:], index)
	return key
}

// DecodeEventKey is the inverse of EventKey.
func DecodeEventKey(key []byte) (version uint64, index uint64, err error) {
	if len(key) != 16 {
		return 0, 0, fmt.Errorf("malformed event key of %d bytes", len(key))
	}
	return binary.BigEndian.Uint64(key), binary.BigEndian.Uint64(key[8:]), nil
}

// PutTransaction stores the serialized transaction at version.
func (db *LedgerDB) PutTransaction(version uint64, txn []byte) error {
	return db.Put(TransactionCFName, VersionKey(version), txn)
}

// Transaction retrieves the serialized transaction at version, or nil
// if the version was never written.
func (db *LedgerDB) Transaction(version uint64) ([]byte, error) {
	return db.Get(TransactionCFName, VersionKey(version))
}

// PutTransactionInfo stores the serialized transaction info at version.
func (db *LedgerDB) PutTransactionInfo(version uint64, info []byte) error {
	return db.Put(TransactionInfoCFName, VersionKey(version), info)
}

// TransactionInfo retrieves the serialized transaction info at version.
func (db *LedgerDB) TransactionInfo(version uint64) ([]byte, error) {
	return db.Get(TransactionInfoCFName, VersionKey(version))
}

// PutWriteSet stores the serialized write set of version.
func (db *LedgerDB) PutWriteSet(version uint64, ws []byte) error {
	return db.Put(WriteSetCFName, VersionKey(version), ws)
}

// WriteSet retrieves the serialized write set of version.
func (db *LedgerDB) WriteSet(version uint64) ([]byte, error) {
	return db.Get(WriteSetCFName, VersionKey(version))
}

// PutEvent stores the index-th event emitted at version.
func (db *LedgerDB) PutEvent(version uint64, index uint64, event []byte) error {
	return db.Put(EventCFName, EventKey(version, index), event)
}

// Event retrieves the index-th event emitted at version.
func (db *LedgerDB) Event(version uint64, index uint64) ([]byte, error) {
	return db.Get(EventCFName, EventKey(version, index))
}

// EventsAt returns an iterator over all events of one version, in
// emission order.
func (db *LedgerDB) EventsAt(version uint64) (kvdb.Iterator, error) {
	return db.NewIterator(EventCFName, VersionKey(version))
}

// TransactionByHash resolves a transaction hash to its version key, or
// nil when the hash is unknown.
func (db *LedgerDB) TransactionByHash(hash []byte) ([]byte, error) {
	return db.Get(TransactionByHashCFName, hash)
}

// IndexTransactionHash records hash as resolving to version.
func (db *LedgerDB) IndexTransactionHash(hash []byte, version uint64) error {
	return db.Put(TransactionByHashCFName, hash, VersionKey(version))
}
