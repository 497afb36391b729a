// Copyright (c) Aptos
// SPDX-License-Identifier: Apache-2.0

package aptosdb

import (
	"bytes"
	"testing"

	"github.com/RJ0088/aptos-core/storage/schemadb"
	"github.com/RJ0088/aptos-core/types/nibble"
	"github.com/stretchr/testify/require"
)

func TestNodeKeyRoundTrip(t *testing.T) {
	for _, hex := range []string{"", "a", "a1f", "00ff", "deadbeef"} {
		path, err := nibble.Parse(hex)
		require.NoError(t, err)

		key, err := NodeKey(42, path)
		require.NoError(t, err)

		version, decoded, err := DecodeNodeKey(key)
		require.NoError(t, err)
		require.Equal(t, uint64(42), version)
		require.Equal(t, hex, decoded.String())
	}
}

func TestNodeKeyVersionOrdered(t *testing.T) {
	deep, err := nibble.Parse("ffffffff")
	require.NoError(t, err)
	shallow, err := nibble.Parse("0")
	require.NoError(t, err)

	// A deep node of an earlier version sorts before the root of a
	// later one, so physical scans walk version by version.
	earlier, err := NodeKey(7, deep)
	require.NoError(t, err)
	later, err := NodeKey(8, shallow)
	require.NoError(t, err)
	require.Negative(t, bytes.Compare(earlier, later))
}

func TestNodeKeyOddEvenDistinct(t *testing.T) {
	odd, err := nibble.Parse("a1f")
	require.NoError(t, err)
	even, err := nibble.Parse("a1f0")
	require.NoError(t, err)

	oddKey, err := NodeKey(1, odd)
	require.NoError(t, err)
	evenKey, err := NodeKey(1, even)
	require.NoError(t, err)
	require.NotEqual(t, oddKey, evenKey)
}

func TestDecodeNodeKeyRejectsMalformed(t *testing.T) {
	_, _, err := DecodeNodeKey([]byte("short"))
	require.Error(t, err)

	path, err := nibble.Parse("abc")
	require.NoError(t, err)
	key, err := NodeKey(1, path)
	require.NoError(t, err)

	// Truncating the packed tail contradicts the count byte.
	_, _, err = DecodeNodeKey(key[:len(key)-1])
	require.Error(t, err)
}

func TestEventKeyRoundTrip(t *testing.T) {
	key := EventKey(9, 3)
	version, index, err := DecodeEventKey(key)
	require.NoError(t, err)
	require.Equal(t, uint64(9), version)
	require.Equal(t, uint64(3), index)

	_, _, err = DecodeEventKey(key[:15])
	require.Error(t, err)
}

func TestLedgerDBAccessors(t *testing.T) {
	db, err := OpenLedgerDB(t.TempDir(), schemadb.Options{})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.PutTransaction(1, []byte("txn-1")))
	require.NoError(t, db.PutTransactionInfo(1, []byte("info-1")))
	require.NoError(t, db.PutWriteSet(1, []byte("ws-1")))
	require.NoError(t, db.IndexTransactionHash([]byte("hash-1"), 1))

	txn, err := db.Transaction(1)
	require.NoError(t, err)
	require.Equal(t, []byte("txn-1"), txn)

	info, err := db.TransactionInfo(1)
	require.NoError(t, err)
	require.Equal(t, []byte("info-1"), info)

	ws, err := db.WriteSet(1)
	require.NoError(t, err)
	require.Equal(t, []byte("ws-1"), ws)

	vkey, err := db.TransactionByHash([]byte("hash-1"))
	require.NoError(t, err)
	version, err := DecodeVersionKey(vkey)
	require.NoError(t, err)
	require.Equal(t, uint64(1), version)

	// Unwritten versions are absent, not errors.
	txn, err = db.Transaction(99)
	require.NoError(t, err)
	require.Nil(t, txn)
}

func TestLedgerDBEventsAt(t *testing.T) {
	db, err := OpenLedgerDB(t.TempDir(), schemadb.Options{})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.PutEvent(5, 1, []byte("second")))
	require.NoError(t, db.PutEvent(5, 0, []byte("first")))
	require.NoError(t, db.PutEvent(6, 0, []byte("other-version")))

	it, err := db.EventsAt(5)
	require.NoError(t, err)
	defer it.Release()

	var events []string
	for it.Next() {
		events = append(events, string(it.Value()))
	}
	require.NoError(t, it.Error())
	require.Equal(t, []string{"first", "second"}, events)
}

func TestStateMerkleDBNodes(t *testing.T) {
	db, err := OpenStateMerkleDB(t.TempDir(), schemadb.Options{})
	require.NoError(t, err)
	defer db.Close()

	root, err := nibble.Parse("")
	require.NoError(t, err)
	child, err := nibble.Parse("a")
	require.NoError(t, err)

	require.NoError(t, db.PutNode(3, child, []byte("child-node")))
	require.NoError(t, db.PutNode(3, root, []byte("root-node")))
	require.NoError(t, db.PutNode(4, root, []byte("later-root")))

	node, err := db.Node(3, child)
	require.NoError(t, err)
	require.Equal(t, []byte("child-node"), node)

	it, err := db.NodesAt(3)
	require.NoError(t, err)
	defer it.Release()

	var nodes []string
	for it.Next() {
		nodes = append(nodes, string(it.Value()))
	}
	require.NoError(t, it.Error())
	require.Equal(t, []string{"root-node", "child-node"}, nodes)
}

func TestStaleNodesBefore(t *testing.T) {
	db, err := OpenStateMerkleDB(t.TempDir(), schemadb.Options{})
	require.NoError(t, err)
	defer db.Close()

	for _, v := range []uint64{1, 2, 3} {
		root, _ := nibble.Parse("")
		key, err := NodeKey(v-1, root)
		require.NoError(t, err)
		require.NoError(t, db.PutStaleNodeIndex(v, key))
	}

	it, err := db.StaleNodesBefore(3)
	require.NoError(t, err)
	defer it.Release()

	var count int
	for it.Next() {
		count++
	}
	require.NoError(t, it.Error())
	require.Equal(t, 2, count)
}

func TestLedgerAndStateMerkleSideBySide(t *testing.T) {
	dataDir := t.TempDir()

	ledger, err := OpenLedgerDB(dataDir, schemadb.Options{})
	require.NoError(t, err)
	defer ledger.Close()

	state, err := OpenStateMerkleDB(dataDir, schemadb.Options{})
	require.NoError(t, err)
	defer state.Close()

	require.Equal(t, LedgerColumnFamilies(), ledger.ColumnFamilies())
	require.Equal(t, StateMerkleColumnFamilies(), state.ColumnFamilies())
}
