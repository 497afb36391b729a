// Copyright (c) Aptos
// SPDX-License-Identifier: Apache-2.0

package schemadb

import "errors"

var (
	// ErrLockHeld is returned when opening a primary handle on a directory
	// whose exclusive lock is already held by another primary.
	ErrLockHeld = errors.New("exclusive lock held by another primary")

	// ErrSchemaMismatch is returned when the column families physically
	// present in a store differ from the catalog an open was given.
	ErrSchemaMismatch = errors.New("column families differ from catalog")

	// ErrPrimaryNotFound is returned when opening a secondary handle
	// against a directory no primary has initialized yet.
	ErrPrimaryNotFound = errors.New("no initialized store at primary path")

	// ErrReadOnly is returned by mutating operations on a secondary handle.
	ErrReadOnly = errors.New("handle is read-only")

	// ErrClosed is returned by operations on a closed handle.
	ErrClosed = errors.New("handle is closed")

	// ErrUnknownColumnFamily is returned when an operation names a column
	// family outside the handle's catalog.
	ErrUnknownColumnFamily = errors.New("unknown column family")
)
