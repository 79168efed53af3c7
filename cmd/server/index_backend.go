package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"trainsim.ai/internal/persistence/indexdb"
	"trainsim.ai/internal/persistence/snapshot"
	"trainsim.ai/internal/sim/metrics"
	"trainsim.ai/internal/sim/tuning"
)

type runtimeIndex interface {
	metrics.Sink
	Close() error
	UpsertConfig(tune tuning.Tuning, layout []byte) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
}

// openRuntimeIndex picks the read-model backend. TRAINSIM_INDEX_BACKEND wins
// over the tuning file; a tuning d1_endpoint alone selects d1.
func openRuntimeIndex(mapDir, mapID string, cfg tuning.Metrics, disableDB bool, logger *log.Logger) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("TRAINSIM_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
		if cfg.D1Endpoint != "" {
			backend = "d1"
		}
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		dbPath := cfg.SQLitePath
		if dbPath == "" {
			dbPath = filepath.Join(mapDir, "index", "map.sqlite")
		}
		return indexdb.OpenSQLite(dbPath)
	case "d1":
		endpoint := strings.TrimSpace(os.Getenv("TRAINSIM_INDEX_D1_INGEST_URL"))
		if endpoint == "" {
			endpoint = cfg.D1Endpoint
		}
		if endpoint == "" {
			return nil, fmt.Errorf("TRAINSIM_INDEX_BACKEND=d1 but no ingest url is set")
		}
		return indexdb.OpenD1(indexdb.D1Config{
			Endpoint:      endpoint,
			Token:         strings.TrimSpace(os.Getenv("TRAINSIM_INDEX_D1_TOKEN")),
			MapID:         mapID,
			BatchSize:     envInt("TRAINSIM_INDEX_D1_BATCH_SIZE", 128),
			FlushInterval: time.Duration(envInt("TRAINSIM_INDEX_D1_FLUSH_MS", 500)) * time.Millisecond,
			Logger:        logger,
		})
	default:
		return nil, fmt.Errorf("unsupported TRAINSIM_INDEX_BACKEND: %s", backend)
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
