// Copyright (c) Aptos
// SPDX-License-Identifier: Apache-2.0

package schemadb

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// cloneStoreDir materializes a point-in-time copy of a live store
// directory into dst. Immutable table files are hardlinked where the
// filesystem allows, everything else (manifests, journals, markers) is
// copied byte for byte; engine lock files are skipped. The primary is
// only ever read, never locked, so the writer is not blocked.
//
// A concurrent compaction can delete a table file mid-clone; such a
// vanished-file race surfaces as ENOENT and the clone is retried from
// scratch a few times before giving up.
func cloneStoreDir(src, dst string) error {
	const attempts = 3
	var err error
	for i := 0; i < attempts; i++ {
		if err = tryCloneStoreDir(src, dst); err == nil {
			return nil
		}
		if !os.IsNotExist(err) {
			return err
		}
		os.RemoveAll(dst)
	}
	return fmt.Errorf("store files kept vanishing during %d clone attempts: %w", attempts, err)
}

func tryCloneStoreDir(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, 0700); err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if name == "LOCK" || name == "FLOCK" {
			continue
		}
		sp := filepath.Join(src, name)
		dp := filepath.Join(dst, name)
		if immutableStoreFile(name) {
			if err := os.Link(sp, dp); err == nil {
				continue
			}
			// Cross-device scratch dirs cannot hardlink; fall back to copying.
		}
		if err := copyFile(sp, dp); err != nil {
			return err
		}
	}
	return nil
}

// immutableStoreFile reports whether name is a table file the engine
// never rewrites in place, making it safe to hardlink.
func immutableStoreFile(name string) bool {
	switch filepath.Ext(name) {
	case ".sst", ".ldb":
		return true
	}
	return false
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// storeInitialized reports whether a primary has ever created a store at
// dir. Lock files alone do not count, only real store files do.
func storeInitialized(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch entry.Name() {
		case "LOCK", "FLOCK":
			continue
		}
		return true
	}
	return false
}
