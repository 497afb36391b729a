// Copyright (c) Aptos
// SPDX-License-Identifier: Apache-2.0

package dbdebugger

import (
	"fmt"
	"testing"

	"github.com/RJ0088/aptos-core/storage/aptosdb"
	"github.com/RJ0088/aptos-core/storage/schemadb"
	"github.com/RJ0088/aptos-core/types/nibble"
	"github.com/stretchr/testify/require"
)

func openFixture(t *testing.T) (string, *aptosdb.LedgerDB, *aptosdb.StateMerkleDB) {
	t.Helper()
	dataDir := t.TempDir()

	ledger, err := aptosdb.OpenLedgerDB(dataDir, schemadb.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })

	state, err := aptosdb.OpenStateMerkleDB(dataDir, schemadb.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { state.Close() })

	return dataDir, ledger, state
}

func TestInspectLiveStores(t *testing.T) {
	dataDir, ledger, state := openFixture(t)

	require.NoError(t, ledger.PutTransaction(1, []byte("txn-1")))
	require.NoError(t, ledger.SetCommittedVersion(1))
	path, err := nibble.Parse("a1")
	require.NoError(t, err)
	require.NoError(t, state.PutNode(1, path, []byte("node")))

	tool, err := Open(dataDir, schemadb.Options{})
	require.NoError(t, err)
	defer tool.Close()

	version, err := tool.CommittedVersion()
	require.NoError(t, err)
	require.Equal(t, uint64(1), version)

	txn, err := tool.Transaction(1)
	require.NoError(t, err)
	require.Equal(t, []byte("txn-1"), txn)

	cfs := tool.ColumnFamilies()
	require.Equal(t, aptosdb.LedgerColumnFamilies(), cfs[aptosdb.LedgerDBName])
	require.Equal(t, aptosdb.StateMerkleColumnFamilies(), cfs[aptosdb.StateMerkleDBName])

	// The writer keeps going while the inspection session is open, and
	// CatchUp surfaces what it wrote.
	require.NoError(t, ledger.PutTransaction(2, []byte("txn-2")))
	require.NoError(t, ledger.SetCommittedVersion(2))

	version, err = tool.CatchUp()
	require.NoError(t, err)
	require.Equal(t, uint64(2), version)

	txn, err = tool.Transaction(2)
	require.NoError(t, err)
	require.Equal(t, []byte("txn-2"), txn)
}

func TestDumpNodes(t *testing.T) {
	dataDir, _, state := openFixture(t)

	for i := 0; i < 15; i++ {
		path, err := nibble.Parse(fmt.Sprintf("a%x", i))
		require.NoError(t, err)
		require.NoError(t, state.PutNode(1, path, []byte("node")))
	}
	other, err := nibble.Parse("b0")
	require.NoError(t, err)
	require.NoError(t, state.PutNode(1, other, []byte("node")))

	tool, err := Open(dataDir, schemadb.Options{})
	require.NoError(t, err)
	defer tool.Close()

	// Default page size caps the dump.
	entries, err := tool.DumpNodes(1, "a", 0)
	require.NoError(t, err)
	require.Len(t, entries, PageSize)
	for _, e := range entries {
		require.Equal(t, uint64(1), e.Version)
		require.Equal(t, byte('a'), e.Path[0])
	}

	entries, err = tool.DumpNodes(1, "b", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "b0", entries[0].Path)

	// A malformed prefix fails before any entry is produced.
	entries, err = tool.DumpNodes(1, "xyz", 0)
	require.ErrorIs(t, err, nibble.ErrInvalidEncoding)
	require.Nil(t, entries)
}

func TestRawGet(t *testing.T) {
	dataDir, ledger, _ := openFixture(t)
	require.NoError(t, ledger.PutTransaction(7, []byte("txn-7")))

	tool, err := Open(dataDir, schemadb.Options{})
	require.NoError(t, err)
	defer tool.Close()

	val, err := tool.RawGet(aptosdb.LedgerDBName, aptosdb.TransactionCFName, aptosdb.VersionKey(7))
	require.NoError(t, err)
	require.Equal(t, []byte("txn-7"), val)

	val, err = tool.RawGet(aptosdb.LedgerDBName, aptosdb.TransactionCFName, aptosdb.VersionKey(8))
	require.NoError(t, err)
	require.Nil(t, val)

	_, err = tool.RawGet("bogus", aptosdb.TransactionCFName, nil)
	require.Error(t, err)
}

func TestCompactRequiresOfflineStore(t *testing.T) {
	dataDir, _, _ := openFixture(t)

	// Both stores are held open by the fixture node.
	err := Compact(dataDir, aptosdb.LedgerDBName, schemadb.Options{})
	require.ErrorIs(t, err, schemadb.ErrLockHeld)
}

func TestCompactOfflineStore(t *testing.T) {
	dataDir := t.TempDir()
	ledger, err := aptosdb.OpenLedgerDB(dataDir, schemadb.Options{})
	require.NoError(t, err)
	require.NoError(t, ledger.PutTransaction(1, []byte("txn-1")))
	require.NoError(t, ledger.Close())

	require.NoError(t, Compact(dataDir, aptosdb.LedgerDBName, schemadb.Options{}))
}
