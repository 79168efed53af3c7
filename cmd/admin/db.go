package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"trainsim.ai/internal/persistence/indexdb"
	"trainsim.ai/internal/sim/metrics"
)

// dbCmd queries a map's sqlite index: searches (default), snapshots or config.
func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	mapID := fs.String("map", "", "map id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	_ = fs.Parse(args)

	q := "searches"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*mapID) == "" {
			fmt.Fprintln(os.Stderr, "missing -map or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "maps", *mapID, "index", "map.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}

	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer idx.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := runQuery(ctx, idx, q, printJSON); err != nil {
		fmt.Fprintln(os.Stderr, q+":", err)
		os.Exit(1)
	}
}

func runQuery(ctx context.Context, idx *indexdb.SQLiteIndex, q string, out func(any)) error {
	switch q {
	case "searches":
		for _, kind := range []metrics.Kind{metrics.KindPathfinding, metrics.KindPlanning} {
			s, err := idx.SearchSummary(ctx, kind)
			if err != nil {
				return err
			}
			out(struct {
				Kind metrics.Kind `json:"kind"`
				indexdb.SearchSummary
			}{kind, s})
		}
	case "snapshots":
		paths, err := idx.SnapshotPaths(ctx)
		if err != nil {
			return err
		}
		for _, p := range paths {
			out(p)
		}
	case "config":
		for _, name := range []string{"tuning", "layout"} {
			digest, err := idx.ConfigDigest(ctx, name)
			if err != nil {
				digest = ""
			}
			out(map[string]string{"name": name, "digest": digest})
		}
	default:
		return fmt.Errorf("unknown query (want searches, snapshots or config)")
	}
	return nil
}
