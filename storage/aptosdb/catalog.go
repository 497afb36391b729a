// Copyright (c) Aptos
// SPDX-License-Identifier: Apache-2.0

package aptosdb

// Column family names of the ledger store.
const (
	DefaultCFName                = "default"
	EventCFName                  = "event"
	EventAccumulatorCFName       = "event_accumulator"
	EventByKeyCFName             = "event_by_key"
	EventByVersionCFName         = "event_by_version"
	LedgerCountersCFName         = "ledger_counters"
	LedgerInfoCFName             = "ledger_info"
	TransactionCFName            = "transaction"
	TransactionAccumulatorCFName = "transaction_accumulator"
	TransactionByAccountCFName   = "transaction_by_account"
	TransactionByHashCFName      = "transaction_by_hash"
	TransactionInfoCFName        = "transaction_info"
	WriteSetCFName               = "write_set"
)

// Column family names of the state merkle store.
const (
	JellyfishMerkleNodeCFName = "jellyfish_merkle_node"
	StaleNodeIndexCFName      = "stale_node_index"
)

// Directory names under a node data dir.
const (
	LedgerDBName      = "ledger_db"
	StateMerkleDBName = "state_merkle_db"
)

// LedgerColumnFamilies returns the fixed family catalog of the ledger
// store. The set is part of the on-disk format; changing it makes
// existing stores unopenable.
func LedgerColumnFamilies() []string {
	return []string{
		DefaultCFName,
		EventCFName,
		EventAccumulatorCFName,
		EventByKeyCFName,
		EventByVersionCFName,
		LedgerCountersCFName,
		LedgerInfoCFName,
		TransactionCFName,
		TransactionAccumulatorCFName,
		TransactionByAccountCFName,
		TransactionByHashCFName,
		TransactionInfoCFName,
		WriteSetCFName,
	}
}

// StateMerkleColumnFamilies returns the fixed family catalog of the
// state merkle store.
func StateMerkleColumnFamilies() []string {
	return []string{
		DefaultCFName,
		JellyfishMerkleNodeCFName,
		StaleNodeIndexCFName,
	}
}
