// Copyright (c) Aptos
// SPDX-License-Identifier: Apache-2.0

package aptosdb

import (
	"encoding/binary"
	"fmt"
	"path/filepath"

	"github.com/RJ0088/aptos-core/storage/kvdb"
	"github.com/RJ0088/aptos-core/storage/schemadb"
	"github.com/RJ0088/aptos-core/types/nibble"
)

// StateMerkleDB is the versioned state trie store. Trie nodes are
// addressed by the version they were created at plus the nibble path
// from the root, so a physical scan walks versions in order and, within
// one version, the trie top-down.
type StateMerkleDB struct {
	*schemadb.DB
}

// OpenStateMerkleDB opens, creating if necessary, the state merkle
// store under dataDir as a read-write primary.
func OpenStateMerkleDB(dataDir string, opts schemadb.Options) (*StateMerkleDB, error) {
	db, err := schemadb.OpenPrimary(
		filepath.Join(dataDir, StateMerkleDBName), StateMerkleDBName, StateMerkleColumnFamilies(), opts)
	if err != nil {
		return nil, err
	}
	return &StateMerkleDB{DB: db}, nil
}

// OpenStateMerkleDBSecondary opens a read-only mirror of the state
// merkle store under dataDir, materialized in scratchDir.
func OpenStateMerkleDBSecondary(dataDir, scratchDir string, opts schemadb.Options) (*StateMerkleDB, error) {
	db, err := schemadb.OpenSecondary(
		filepath.Join(dataDir, StateMerkleDBName), scratchDir, StateMerkleDBName, StateMerkleColumnFamilies(), opts)
	if err != nil {
		return nil, err
	}
	return &StateMerkleDB{DB: db}, nil
}

// NodeKey encodes the storage key of the trie node created at version
// and reachable through path from the root:
//
//	version (8 bytes, big endian) || nibble count (1 byte) || packed nibbles
//
// The count byte disambiguates paths of even and odd length that pack
// to the same bytes.
func NodeKey(version uint64, path nibble.Path) ([]byte, error) {
	if path.Len() > 255 {
		return nil, fmt.Errorf("nibble path of %d nibbles exceeds the node key codec", path.Len())
	}
	packed := path.Bytes()
	key := make([]byte, 9, 9+len(packed))
	binary.BigEndian.PutUint64(key, version)
	key[8] = byte(path.Len())
	return append(key, packed...), nil
}

// DecodeNodeKey is the inverse of NodeKey.
func DecodeNodeKey(key []byte) (uint64, nibble.Path, error) {
	if len(key) < 9 {
		return 0, nibble.Path{}, fmt.Errorf("malformed node key of %d bytes", len(key))
	}
	version := binary.BigEndian.Uint64(key)
	count := int(key[8])
	packed := key[9:]
	path, err := nibble.FromPacked(packed, count)
	if err != nil {
		return 0, nibble.Path{}, fmt.Errorf("node key: %w", err)
	}
	return version, path, nil
}

// PutNode stores the serialized trie node under its node key.
func (db *StateMerkleDB) PutNode(version uint64, path nibble.Path, node []byte) error {
	key, err := NodeKey(version, path)
	if err != nil {
		return err
	}
	return db.Put(JellyfishMerkleNodeCFName, key, node)
}

// Node retrieves the serialized trie node created at version under
// path, or nil if no such node exists.
func (db *StateMerkleDB) Node(version uint64, path nibble.Path) ([]byte, error) {
	key, err := NodeKey(version, path)
	if err != nil {
		return nil, err
	}
	return db.Get(JellyfishMerkleNodeCFName, key)
}

// NodesAt returns an iterator over all trie nodes created at version,
// root first.
func (db *StateMerkleDB) NodesAt(version uint64) (kvdb.Iterator, error) {
	return db.NewIterator(JellyfishMerkleNodeCFName, VersionKey(version))
}

// PutStaleNodeIndex records that the node under key was superseded at
// staleSince. The pruner scans this family in version order.
func (db *StateMerkleDB) PutStaleNodeIndex(staleSince uint64, nodeKey []byte) error {
	idx := make([]byte, 8, 8+len(nodeKey))
	binary.BigEndian.PutUint64(idx, staleSince)
	return db.Put(StaleNodeIndexCFName, append(idx, nodeKey...), nil)
}

// StaleNodesBefore returns an iterator over the stale node indices with
// stale-since version strictly below the horizon.
func (db *StateMerkleDB) StaleNodesBefore(horizon uint64) (kvdb.Iterator, error) {
	inner, err := db.NewIterator(StaleNodeIndexCFName, nil)
	if err != nil {
		return nil, err
	}
	return &horizonIterator{Iterator: inner, horizon: horizon}, nil
}

// horizonIterator cuts off an index scan at the first key whose leading
// version reaches the horizon. Index keys sort by version, so nothing
// past the cutoff can qualify.
type horizonIterator struct {
	kvdb.Iterator
	horizon uint64
	done    bool
}

func (it *horizonIterator) Next() bool {
	if it.done || !it.Iterator.Next() {
		return false
	}
	key := it.Iterator.Key()
	if len(key) < 8 || binary.BigEndian.Uint64(key) >= it.horizon {
		it.done = true
		return false
	}
	return true
}
