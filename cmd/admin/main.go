package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"trainsim.ai/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "snapshots":
			snapshotsCmd(os.Args[2:])
			return
		case "state":
			httpCmd("state", "GET", "/admin/v1/state", os.Args[2:])
			return
		case "snapshot":
			httpCmd("snapshot", "POST", "/admin/v1/snapshot", os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

// listCmd prints the maps that have runtime data.
func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	entries, err := os.ReadDir(filepath.Join(*dataDir, "maps"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if e.IsDir() {
			fmt.Println(e.Name())
		}
	}
}

type snapshotInfo struct {
	Path string `json:"path"`
	snapshot.Header
	Err string `json:"error,omitempty"`
}

// snapshotsCmd prints the header of every snapshot written for a map.
func snapshotsCmd(args []string) {
	fs := flag.NewFlagSet("snapshots", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	mapID := fs.String("map", "", "map id")
	_ = fs.Parse(args)

	if strings.TrimSpace(*mapID) == "" {
		fmt.Fprintln(os.Stderr, "missing -map")
		os.Exit(2)
	}
	infos, err := listSnapshots(filepath.Join(*dataDir, "maps", *mapID, "snapshots"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, info := range infos {
		printJSON(info)
	}
}

// listSnapshots reads headers in directory order; unreadable files are
// reported in place rather than aborting the listing.
func listSnapshots(dir string) ([]snapshotInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []snapshotInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".snap.zst") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		info := snapshotInfo{Path: path}
		h, err := snapshot.ReadHeader(path)
		if err != nil {
			info.Err = err.Error()
		} else {
			info.Header = h
		}
		out = append(out, info)
	}
	return out, nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
