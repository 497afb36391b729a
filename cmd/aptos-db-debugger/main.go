// Copyright (c) Aptos
// SPDX-License-Identifier: Apache-2.0

// aptos-db-debugger inspects the persistent stores of a node, live or
// offline, without disturbing them.
package main

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/RJ0088/aptos-core/log"
	"github.com/RJ0088/aptos-core/storage/aptosdb"
	"github.com/RJ0088/aptos-core/storage/aptosdb/dbdebugger"
	"github.com/RJ0088/aptos-core/storage/schemadb"
	"github.com/RJ0088/aptos-core/version"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"
)

var (
	dataDirFlag = &cli.StringFlag{
		Name:     "data-dir",
		Usage:    "Node data directory holding ledger_db and state_merkle_db",
		Required: true,
	}
	engineFlag = &cli.StringFlag{
		Name:  "engine",
		Usage: "Storage engine backing the stores (pebble or leveldb)",
		Value: schemadb.EnginePebble,
	}
	cacheFlag = &cli.IntFlag{
		Name:  "cache",
		Usage: "Engine cache allowance in megabytes",
	}
	verbosityFlag = &cli.IntFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity, 0=error up to 3=debug",
		Value: 1,
	}
	versionFlag = &cli.Uint64Flag{
		Name:  "version",
		Usage: "Ledger version to inspect",
	}
	prefixFlag = &cli.StringFlag{
		Name:  "prefix",
		Usage: "Nibble path prefix in hex",
	}
	limitFlag = &cli.IntFlag{
		Name:  "limit",
		Usage: "Maximum entries per page",
		Value: dbdebugger.PageSize,
	}
	storeFlag = &cli.StringFlag{
		Name:  "store",
		Usage: "Store to operate on (ledger_db or state_merkle_db)",
		Value: aptosdb.LedgerDBName,
	}
)

var app = &cli.App{
	Name:    "aptos-db-debugger",
	Usage:   "inspect the persistent stores of a node",
	Version: version.WithMeta,
	Flags:  []cli.Flag{dataDirFlag, engineFlag, cacheFlag, verbosityFlag},
	Before: setupLogging,
	Commands: []*cli.Command{
		{
			Name:   "list-column-families",
			Usage:  "print the column family catalog of each store",
			Action: listColumnFamilies,
		},
		{
			Name:   "committed-version",
			Usage:  "print the ledger store's committed version",
			Action: committedVersion,
		},
		{
			Name:   "dump-nodes",
			Usage:  "list state trie nodes of one version under a nibble path prefix",
			Flags:  []cli.Flag{versionFlag, prefixFlag, limitFlag},
			Action: dumpNodes,
		},
		{
			Name:      "get",
			Usage:     "look up a raw hex key in a column family",
			ArgsUsage: "<column-family> <hex-key>",
			Flags:     []cli.Flag{storeFlag},
			Action:    rawGet,
		},
		{
			Name:   "compact",
			Usage:  "flatten an offline store",
			Flags:  []cli.Flag{storeFlag},
			Action: compact,
		},
	},
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogging(ctx *cli.Context) error {
	level := slog.LevelError
	switch ctx.Int(verbosityFlag.Name) {
	case 1:
		level = slog.LevelWarn
	case 2:
		level = slog.LevelInfo
	case 3:
		level = slog.LevelDebug
	}
	output := os.Stderr
	if isatty.IsTerminal(output.Fd()) {
		log.SetDefault(log.NewLogger(log.TerminalHandler(output, level)))
	} else {
		log.SetDefault(log.NewLogger(log.JSONHandler(output, level)))
	}
	return nil
}

func storageOptions(ctx *cli.Context) schemadb.Options {
	return schemadb.Options{
		Engine: ctx.String(engineFlag.Name),
		Cache:  ctx.Int(cacheFlag.Name),
	}
}

func openTool(ctx *cli.Context) (*dbdebugger.Tool, error) {
	return dbdebugger.Open(ctx.String(dataDirFlag.Name), storageOptions(ctx))
}

func listColumnFamilies(ctx *cli.Context) error {
	tool, err := openTool(ctx)
	if err != nil {
		return err
	}
	defer tool.Close()

	for _, store := range []string{aptosdb.LedgerDBName, aptosdb.StateMerkleDBName} {
		fmt.Printf("%s:\n", store)
		for _, cf := range tool.ColumnFamilies()[store] {
			fmt.Printf("  %s\n", cf)
		}
	}
	return nil
}

func committedVersion(ctx *cli.Context) error {
	tool, err := openTool(ctx)
	if err != nil {
		return err
	}
	defer tool.Close()

	version, err := tool.CommittedVersion()
	if err != nil {
		return err
	}
	fmt.Println(version)
	return nil
}

func dumpNodes(ctx *cli.Context) error {
	tool, err := openTool(ctx)
	if err != nil {
		return err
	}
	defer tool.Close()

	// Entries are buffered so a bad prefix produces no partial output.
	entries, err := tool.DumpNodes(ctx.Uint64(versionFlag.Name), ctx.String(prefixFlag.Name), ctx.Int(limitFlag.Name))
	if err != nil {
		return fmt.Errorf("dump nodes: %w", err)
	}
	for _, e := range entries {
		path := e.Path
		if path == "" {
			path = "(root)"
		}
		fmt.Printf("version %d  path %-16s  %d bytes\n", e.Version, path, e.Size)
	}
	return nil
}

func rawGet(ctx *cli.Context) error {
	if ctx.NArg() != 2 {
		return fmt.Errorf("expected <column-family> <hex-key>, got %d arguments", ctx.NArg())
	}
	cf := ctx.Args().Get(0)
	key, err := hex.DecodeString(strings.TrimPrefix(ctx.Args().Get(1), "0x"))
	if err != nil {
		return fmt.Errorf("malformed hex key %q: %w", ctx.Args().Get(1), err)
	}
	tool, err := openTool(ctx)
	if err != nil {
		return err
	}
	defer tool.Close()

	val, err := tool.RawGet(ctx.String(storeFlag.Name), cf, key)
	if err != nil {
		return err
	}
	if val == nil {
		fmt.Println("(not found)")
		return nil
	}
	fmt.Printf("%x\n", val)
	return nil
}

func compact(ctx *cli.Context) error {
	return dbdebugger.Compact(ctx.String(dataDirFlag.Name), ctx.String(storeFlag.Name), storageOptions(ctx))
}
