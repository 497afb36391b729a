// Copyright (c) Aptos
// SPDX-License-Identifier: Apache-2.0

// Package schemadb multiplexes named column families onto one physical
// key-value store and wraps it in a storage handle opened in one of two
// access modes.
//
// A primary handle owns its directory: it is opened read-write under an
// exclusive cross-process file lock and observes its own writes
// immediately. A secondary handle is a read-only mirror of a live primary
// directory: it takes no lock on the primary, never writes into it, and
// materializes its view inside a private scratch directory instead.
// Secondaries go stale the moment they open; CatchUp refreshes the view
// to the primary's latest durable state, at a cadence the caller chooses.
//
// Column families are realized as key prefixes on the physical store
// (name plus a '/' separator), with the family set recorded durably at
// creation time and membership-checked on every subsequent open.
package schemadb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/RJ0088/aptos-core/log"
	"github.com/RJ0088/aptos-core/storage/kvdb"
	"github.com/RJ0088/aptos-core/storage/kvdb/leveldb"
	"github.com/RJ0088/aptos-core/storage/kvdb/pebble"
	"github.com/gofrs/flock"
)

// Supported physical storage engines.
const (
	EnginePebble  = "pebble"
	EngineLeveldb = "leveldb"
)

// Reserved meta keys, stored outside every column family namespace.
// Column family keys always contain the '/' separator, these never do.
var (
	columnFamiliesKey   = []byte("ColumnFamilies")
	committedVersionKey = []byte("CommittedVersion")
)

const cfSeparator = "/"

// Options configures the physical store backing a handle.
type Options struct {
	// Engine selects the storage engine, EnginePebble by default.
	Engine string

	// Cache is the read/write cache allowance in megabytes.
	Cache int

	// Handles is the number of file handles the engine may keep open.
	Handles int
}

func (o Options) sanitized() Options {
	if o.Engine == "" {
		o.Engine = EnginePebble
	}
	return o
}

// DB is a storage handle over one physical multi-table store. All methods
// are safe for concurrent use; see CatchUp for the one caveat around open
// iterators on secondary handles.
type DB struct {
	name       string
	primaryDir string
	scratchDir string // secondary only
	secondary  bool
	opts       Options
	cfs        map[string]struct{}
	cfList     []string // sorted
	fileLock   *flock.Flock
	log        log.Logger

	mu        sync.RWMutex
	store     kvdb.Store
	mirrorGen uint64
	closed    bool
}

// OpenPrimary opens, creating if necessary, the store at dir with exactly
// the column families of catalog, and holds an exclusive cross-process
// lock on dir for the lifetime of the handle.
//
// It fails with ErrLockHeld if another primary holds dir, and with
// ErrSchemaMismatch if a store already exists there with a different
// family set.
func OpenPrimary(dir, name string, catalog []string, opts Options) (*DB, error) {
	cfs, cfList, err := checkCatalog(catalog)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}
	// Leveldb uses LOCK as the filelock filename. To prevent the name
	// collision, we use FLOCK as the lock name.
	fileLock := flock.New(filepath.Join(dir, "FLOCK"))
	locked, err := fileLock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", dir, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLockHeld, dir)
	}
	opts = opts.sanitized()
	store, err := openStore(dir, opts, false)
	if err != nil {
		fileLock.Unlock()
		return nil, fmt.Errorf("open %s: %w", dir, err)
	}
	db := &DB{
		name:       name,
		primaryDir: dir,
		opts:       opts,
		cfs:        cfs,
		cfList:     cfList,
		fileLock:   fileLock,
		store:      store,
		log:        log.New("db", name),
	}
	if err := db.ensureSchema(); err != nil {
		store.Close()
		fileLock.Unlock()
		return nil, err
	}
	db.log.Info("Opened primary store", "dir", dir, "engine", opts.Engine)
	return db, nil
}

// OpenSecondary opens a read-only mirror of the live store at primaryDir.
// The mirror is materialized inside scratchDir, which becomes private to
// the handle and is destroyed on Close; it must not be shared between
// handles nor nested inside primaryDir. No lock is taken on primaryDir,
// so a secondary never blocks, and is never blocked by, a concurrent
// primary.
//
// The view is as of the open; call CatchUp to refresh it.
func OpenSecondary(primaryDir, scratchDir, name string, catalog []string, opts Options) (*DB, error) {
	cfs, cfList, err := checkCatalog(catalog)
	if err != nil {
		return nil, err
	}
	if err := checkNotNested(primaryDir, scratchDir); err != nil {
		return nil, err
	}
	if !storeInitialized(primaryDir) {
		return nil, fmt.Errorf("%w: %s", ErrPrimaryNotFound, primaryDir)
	}
	if err := os.MkdirAll(scratchDir, 0700); err != nil {
		return nil, fmt.Errorf("create %s: %w", scratchDir, err)
	}
	db := &DB{
		name:       name,
		primaryDir: primaryDir,
		scratchDir: scratchDir,
		secondary:  true,
		opts:       opts.sanitized(),
		cfs:        cfs,
		cfList:     cfList,
		log:        log.New("db", name, "mode", "secondary"),
	}
	db.mu.Lock()
	_, err = db.refreshMirror()
	db.mu.Unlock()
	if err != nil {
		os.RemoveAll(scratchDir)
		return nil, err
	}
	if err := db.verifySchema(); err != nil {
		db.Close()
		return nil, err
	}
	db.log.Info("Opened secondary store", "primary", primaryDir, "scratch", scratchDir, "engine", db.opts.Engine)
	return db, nil
}

// CatchUp refreshes a secondary's view to the primary's latest durable
// state as of the call and returns the committed version it observes
// (zero if the primary never recorded one). On a primary it is a no-op
// returning the current committed version.
//
// Successive calls on one handle observe non-decreasing versions. The
// refresh swaps the underlying mirror, so iterators created before
// CatchUp must be released before calling it.
func (db *DB) CatchUp() (uint64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return 0, ErrClosed
	}
	if !db.secondary {
		return db.committedVersionLocked()
	}
	version, err := db.refreshMirror()
	if err != nil {
		return 0, err
	}
	db.log.Debug("Caught up with primary", "version", version, "mirror", db.mirrorGen)
	return version, nil
}

// Get retrieves the value stored under key in the named column family.
// An absent key yields (nil, nil), not an error.
func (db *DB) Get(cf string, key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return nil, ErrClosed
	}
	k, err := db.cfKey(cf, key)
	if err != nil {
		return nil, err
	}
	val, err := db.store.Get(k)
	if errors.Is(err, kvdb.ErrNotFound) {
		return nil, nil
	}
	return val, err
}

// Has retrieves if a key is present in the named column family.
func (db *DB) Has(cf string, key []byte) (bool, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return false, ErrClosed
	}
	k, err := db.cfKey(cf, key)
	if err != nil {
		return false, err
	}
	return db.store.Has(k)
}

// Put inserts the given value under key in the named column family.
// Fails with ErrReadOnly on a secondary handle.
func (db *DB) Put(cf string, key, value []byte) error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if err := db.writableLocked(); err != nil {
		return err
	}
	k, err := db.cfKey(cf, key)
	if err != nil {
		return err
	}
	return db.store.Put(k, value)
}

// Delete removes key from the named column family.
// Fails with ErrReadOnly on a secondary handle.
func (db *DB) Delete(cf string, key []byte) error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if err := db.writableLocked(); err != nil {
		return err
	}
	k, err := db.cfKey(cf, key)
	if err != nil {
		return err
	}
	return db.store.Delete(k)
}

// NewIterator creates a binary-alphabetical iterator over the subset of
// the named column family whose keys carry the given prefix. Each call
// yields a fresh sequence reflecting the handle's current view; on a
// secondary that view changes across CatchUp calls.
func (db *DB) NewIterator(cf string, prefix []byte) (kvdb.Iterator, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return nil, ErrClosed
	}
	if _, ok := db.cfs[cf]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownColumnFamily, cf)
	}
	skip := len(cf) + len(cfSeparator)
	inner := db.store.NewIterator(append([]byte(cf+cfSeparator), prefix...), nil)
	return &cfIterator{iter: inner, skip: skip}, nil
}

// NewBatch creates a write batch spanning column families, committed
// atomically by Write. Writing a batch fails with ErrReadOnly on a
// secondary handle. A batch created on a closed handle fails every
// operation with ErrClosed.
func (db *DB) NewBatch() *SchemaBatch {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return &SchemaBatch{db: db, b: closedBatch{}}
	}
	return &SchemaBatch{db: db, b: db.store.NewBatch()}
}

// SetCommittedVersion durably records v as the latest committed version.
// Writers that need the marker committed atomically with data should use
// SchemaBatch.SetCommittedVersion instead.
func (db *DB) SetCommittedVersion(v uint64) error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if err := db.writableLocked(); err != nil {
		return err
	}
	return db.store.Put(committedVersionKey, encodeVersion(v))
}

// CommittedVersion returns the latest committed version recorded in the
// handle's current view, or zero if none was ever recorded.
func (db *DB) CommittedVersion() (uint64, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return 0, ErrClosed
	}
	return db.committedVersionLocked()
}

// ColumnFamilies returns the handle's catalog in sorted order.
func (db *DB) ColumnFamilies() []string {
	out := make([]string, len(db.cfList))
	copy(out, db.cfList)
	return out
}

// Secondary reports whether the handle is a read-only mirror.
func (db *DB) Secondary() bool {
	return db.secondary
}

// Compact flattens the named column family for the given key range, or
// the whole store when cf is empty. Primary handles only.
func (db *DB) Compact(cf string, start, limit []byte) error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if err := db.writableLocked(); err != nil {
		return err
	}
	if cf == "" {
		return db.store.Compact(nil, nil)
	}
	if _, ok := db.cfs[cf]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownColumnFamily, cf)
	}
	prefix := []byte(cf + cfSeparator)
	cstart := append(append([]byte{}, prefix...), start...)
	var climit []byte
	if limit != nil {
		climit = append(append([]byte{}, prefix...), limit...)
	} else {
		climit = prefixUpperBound(prefix)
	}
	return db.store.Compact(cstart, climit)
}

// Close releases the handle: the exclusive directory lock for a primary,
// the scratch directory for a secondary. It is idempotent.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true

	var errs []error
	if db.store != nil {
		if err := db.store.Close(); err != nil {
			errs = append(errs, err)
		}
		db.store = nil
	}
	if db.secondary {
		if err := os.RemoveAll(db.scratchDir); err != nil {
			errs = append(errs, err)
		}
	} else if db.fileLock != nil {
		if err := db.fileLock.Unlock(); err != nil {
			errs = append(errs, err)
		}
	}
	db.log.Info("Closed store", "dir", db.primaryDir)
	return errors.Join(errs...)
}

func (db *DB) writableLocked() error {
	if db.closed {
		return ErrClosed
	}
	if db.secondary {
		return fmt.Errorf("%w: %s", ErrReadOnly, db.primaryDir)
	}
	return nil
}

func (db *DB) cfKey(cf string, key []byte) ([]byte, error) {
	if _, ok := db.cfs[cf]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownColumnFamily, cf)
	}
	return append([]byte(cf+cfSeparator), key...), nil
}

func (db *DB) committedVersionLocked() (uint64, error) {
	raw, err := db.store.Get(committedVersionKey)
	if errors.Is(err, kvdb.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("malformed committed version marker of %d bytes", len(raw))
	}
	return binary.BigEndian.Uint64(raw), nil
}

// ensureSchema writes the column family record into a fresh store, or
// verifies it against the catalog of an existing one.
func (db *DB) ensureSchema() error {
	raw, err := db.store.Get(columnFamiliesKey)
	if errors.Is(err, kvdb.ErrNotFound) {
		return db.store.Put(columnFamiliesKey, []byte(strings.Join(db.cfList, "\n")))
	}
	if err != nil {
		return fmt.Errorf("read schema record at %s: %w", db.primaryDir, err)
	}
	return db.compareSchema(raw)
}

// verifySchema checks an existing store's column family record against
// the catalog. A store without a record was never initialized by a
// conformant primary.
func (db *DB) verifySchema() error {
	db.mu.RLock()
	raw, err := db.store.Get(columnFamiliesKey)
	db.mu.RUnlock()
	if errors.Is(err, kvdb.ErrNotFound) {
		return fmt.Errorf("%w: %s holds no schema record", ErrPrimaryNotFound, db.primaryDir)
	}
	if err != nil {
		return fmt.Errorf("read schema record at %s: %w", db.primaryDir, err)
	}
	return db.compareSchema(raw)
}

func (db *DB) compareSchema(record []byte) error {
	present := strings.Split(string(record), "\n")
	if len(present) == 1 && present[0] == "" {
		present = nil
	}
	if len(present) != len(db.cfList) {
		return schemaMismatch(db.primaryDir, present, db.cfList)
	}
	for i, name := range db.cfList {
		if present[i] != name {
			return schemaMismatch(db.primaryDir, present, db.cfList)
		}
	}
	return nil
}

func schemaMismatch(dir string, present, want []string) error {
	return fmt.Errorf("%w: store %s has [%s], catalog wants [%s]",
		ErrSchemaMismatch, dir, strings.Join(present, " "), strings.Join(want, " "))
}

// refreshMirror materializes a fresh mirror of the primary directory in
// the scratch dir, opens it read-only and swaps it in, discarding the
// previous one. Callers must hold db.mu.
func (db *DB) refreshMirror() (uint64, error) {
	gen := db.mirrorGen + 1
	dst := filepath.Join(db.scratchDir, fmt.Sprintf("mirror-%06d", gen))
	if err := cloneStoreDir(db.primaryDir, dst); err != nil {
		os.RemoveAll(dst)
		return 0, fmt.Errorf("mirror %s: %w", db.primaryDir, err)
	}
	store, err := openStore(dst, db.opts, true)
	if err != nil {
		os.RemoveAll(dst)
		return 0, fmt.Errorf("open mirror %s: %w", dst, err)
	}
	if db.store != nil {
		old := filepath.Join(db.scratchDir, fmt.Sprintf("mirror-%06d", db.mirrorGen))
		db.store.Close()
		os.RemoveAll(old)
	}
	db.store = store
	db.mirrorGen = gen
	return db.committedVersionLocked()
}

func openStore(dir string, opts Options, readonly bool) (kvdb.Store, error) {
	switch opts.Engine {
	case EnginePebble:
		return pebble.New(dir, opts.Cache, opts.Handles, readonly)
	case EngineLeveldb:
		return leveldb.New(dir, opts.Cache, opts.Handles, readonly)
	default:
		return nil, fmt.Errorf("unknown storage engine %q", opts.Engine)
	}
}

func checkCatalog(catalog []string) (map[string]struct{}, []string, error) {
	if len(catalog) == 0 {
		return nil, nil, errors.New("empty column family catalog")
	}
	cfs := make(map[string]struct{}, len(catalog))
	for _, name := range catalog {
		if name == "" || strings.Contains(name, cfSeparator) {
			return nil, nil, fmt.Errorf("invalid column family name %q", name)
		}
		if _, dup := cfs[name]; dup {
			return nil, nil, fmt.Errorf("duplicate column family %q", name)
		}
		cfs[name] = struct{}{}
	}
	cfList := make([]string, 0, len(catalog))
	for name := range cfs {
		cfList = append(cfList, name)
	}
	sort.Strings(cfList)
	return cfs, cfList, nil
}

func checkNotNested(primaryDir, scratchDir string) error {
	pabs, err := filepath.Abs(primaryDir)
	if err != nil {
		return err
	}
	sabs, err := filepath.Abs(scratchDir)
	if err != nil {
		return err
	}
	if sabs == pabs || strings.HasPrefix(sabs, pabs+string(filepath.Separator)) {
		return fmt.Errorf("scratch dir %s nested inside primary dir %s", scratchDir, primaryDir)
	}
	return nil
}

// prefixUpperBound returns the smallest key greater than every key
// starting with prefix, or nil if no such key exists.
func prefixUpperBound(prefix []byte) []byte {
	limit := append([]byte{}, prefix...)
	for i := len(limit) - 1; i >= 0; i-- {
		limit[i]++
		if limit[i] > 0 {
			return limit[:i+1]
		}
	}
	return nil
}

func encodeVersion(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

// cfIterator strips the column family prefix from the keys of an
// underlying store iterator.
type cfIterator struct {
	iter kvdb.Iterator
	skip int
}

func (it *cfIterator) Next() bool {
	return it.iter.Next()
}

func (it *cfIterator) Error() error {
	return it.iter.Error()
}

func (it *cfIterator) Key() []byte {
	key := it.iter.Key()
	if key == nil {
		return nil
	}
	return key[it.skip:]
}

func (it *cfIterator) Value() []byte {
	return it.iter.Value()
}

func (it *cfIterator) Release() {
	it.iter.Release()
}
