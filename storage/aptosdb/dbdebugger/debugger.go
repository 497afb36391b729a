// Copyright (c) Aptos
// SPDX-License-Identifier: Apache-2.0

// Package dbdebugger provides read-only inspection of a node's live
// stores. It is the only place secondary handles are constructed: each
// inspection session mirrors the stores into a fresh private temp dir
// and never takes locks on them, so a running node is not disturbed.
package dbdebugger

import (
	"fmt"
	"os"
	"strings"

	"github.com/RJ0088/aptos-core/log"
	"github.com/RJ0088/aptos-core/storage/aptosdb"
	"github.com/RJ0088/aptos-core/storage/schemadb"
	"github.com/RJ0088/aptos-core/types/nibble"
)

// PageSize is the default number of entries a dump emits per page.
const PageSize = 10

// Tool is one inspection session over the stores under a node data dir.
type Tool struct {
	ledger *aptosdb.LedgerDB
	state  *aptosdb.StateMerkleDB
	log    log.Logger
}

// Open mirrors the ledger and state merkle stores under dataDir into
// fresh temp scratch dirs and opens them read-only. The scratch dirs
// are destroyed on Close.
func Open(dataDir string, opts schemadb.Options) (*Tool, error) {
	ledgerScratch, err := os.MkdirTemp("", "aptos-db-debugger-ledger-")
	if err != nil {
		return nil, err
	}
	ledger, err := aptosdb.OpenLedgerDBSecondary(dataDir, ledgerScratch, opts)
	if err != nil {
		os.RemoveAll(ledgerScratch)
		return nil, fmt.Errorf("mirror ledger store: %w", err)
	}
	stateScratch, err := os.MkdirTemp("", "aptos-db-debugger-state-")
	if err != nil {
		ledger.Close()
		return nil, err
	}
	state, err := aptosdb.OpenStateMerkleDBSecondary(dataDir, stateScratch, opts)
	if err != nil {
		ledger.Close()
		os.RemoveAll(stateScratch)
		return nil, fmt.Errorf("mirror state merkle store: %w", err)
	}
	return &Tool{
		ledger: ledger,
		state:  state,
		log:    log.New("tool", "db-debugger"),
	}, nil
}

// Close tears down both mirrors and their scratch dirs.
func (t *Tool) Close() error {
	lerr := t.ledger.Close()
	serr := t.state.Close()
	if lerr != nil {
		return lerr
	}
	return serr
}

// CatchUp refreshes both mirrors and returns the ledger store's
// committed version.
func (t *Tool) CatchUp() (uint64, error) {
	version, err := t.ledger.CatchUp()
	if err != nil {
		return 0, err
	}
	if _, err := t.state.CatchUp(); err != nil {
		return 0, err
	}
	return version, nil
}

// ColumnFamilies returns the family catalogs of both stores, keyed by
// store name.
func (t *Tool) ColumnFamilies() map[string][]string {
	return map[string][]string{
		aptosdb.LedgerDBName:      t.ledger.ColumnFamilies(),
		aptosdb.StateMerkleDBName: t.state.ColumnFamilies(),
	}
}

// CommittedVersion returns the ledger store's committed version as of
// the current view.
func (t *Tool) CommittedVersion() (uint64, error) {
	return t.ledger.CommittedVersion()
}

// NodeEntry is one trie node surfaced by a dump.
type NodeEntry struct {
	Version uint64
	Path    string
	Size    int
}

// DumpNodes lists the trie nodes created at version whose path starts
// with the given hex prefix, at most limit entries (PageSize when limit
// is not positive). A malformed prefix fails before anything is read.
func (t *Tool) DumpNodes(version uint64, prefixHex string, limit int) ([]NodeEntry, error) {
	prefix, err := nibble.Parse(prefixHex)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = PageSize
	}
	it, err := t.state.NodesAt(version)
	if err != nil {
		return nil, err
	}
	defer it.Release()

	want := prefix.String()
	var entries []NodeEntry
	for it.Next() && len(entries) < limit {
		v, path, err := aptosdb.DecodeNodeKey(it.Key())
		if err != nil {
			return nil, fmt.Errorf("corrupt node key %x: %w", it.Key(), err)
		}
		if !strings.HasPrefix(path.String(), want) {
			continue
		}
		entries = append(entries, NodeEntry{Version: v, Path: path.String(), Size: len(it.Value())})
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	return entries, nil
}

// RawGet looks up a raw key in a column family of the named store. An
// absent key yields (nil, nil).
func (t *Tool) RawGet(store, cf string, key []byte) ([]byte, error) {
	switch store {
	case aptosdb.LedgerDBName:
		return t.ledger.Get(cf, key)
	case aptosdb.StateMerkleDBName:
		return t.state.Get(cf, key)
	default:
		return nil, fmt.Errorf("unknown store %q", store)
	}
}

// Transaction returns the serialized transaction at version from the
// current view.
func (t *Tool) Transaction(version uint64) ([]byte, error) {
	return t.ledger.Transaction(version)
}

// Compact opens the named store under dataDir as a transient primary
// and flattens it. It fails if a node holds the store's lock; the store
// must be offline for maintenance.
func Compact(dataDir, store string, opts schemadb.Options) error {
	switch store {
	case aptosdb.LedgerDBName:
		db, err := aptosdb.OpenLedgerDB(dataDir, opts)
		if err != nil {
			return err
		}
		defer db.Close()
		return db.Compact("", nil, nil)
	case aptosdb.StateMerkleDBName:
		db, err := aptosdb.OpenStateMerkleDB(dataDir, opts)
		if err != nil {
			return err
		}
		defer db.Close()
		return db.Compact("", nil, nil)
	default:
		return fmt.Errorf("unknown store %q", store)
	}
}
