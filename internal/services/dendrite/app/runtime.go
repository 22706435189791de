package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	platformgrpc "github.com/louisbranch/dendrite/internal/platform/grpc"
	"github.com/louisbranch/dendrite/internal/platform/id"
	"github.com/louisbranch/dendrite/internal/platform/timeouts"
	"github.com/louisbranch/dendrite/internal/random"
	"github.com/louisbranch/dendrite/internal/services/dendrite/engine"
	"github.com/louisbranch/dendrite/internal/services/dendrite/storage"
	"github.com/louisbranch/dendrite/internal/services/dendrite/storage/firestore"
	"github.com/louisbranch/dendrite/internal/services/dendrite/storage/sqlite"
)

// Storage backends.
const (
	BackendSQLite    = "sqlite"
	BackendFirestore = "firestore"
)

const (
	defaultProcessorPort = 8095
	defaultDBPath        = "data/dendrite.db"

	// HealthService is the health check name reported by the processor.
	HealthService = "dendrite.processor"
)

// StoreConfig selects and locates the document store.
type StoreConfig struct {
	Backend          string
	DBPath           string
	FirestoreProject string
}

// Store is a document store that also records processing attempts.
type Store interface {
	storage.Store
	storage.AttemptStore
	io.Closer
}

// OpenStore opens the configured backend. SQLite directories are created on
// demand.
func OpenStore(ctx context.Context, cfg StoreConfig) (Store, error) {
	switch backend := strings.ToLower(strings.TrimSpace(cfg.Backend)); backend {
	case "", BackendSQLite:
		path := strings.TrimSpace(cfg.DBPath)
		if path == "" {
			path = defaultDBPath
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create storage dir: %w", err)
			}
		}
		store, err := sqlite.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return store, nil
	case BackendFirestore:
		openCtx, cancel := context.WithTimeout(ctx, timeouts.StoreOpen)
		defer cancel()
		store, err := firestore.Open(openCtx, cfg.FirestoreProject)
		if err != nil {
			return nil, fmt.Errorf("open firestore store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// EngineConfig tunes the graph engine.
type EngineConfig struct {
	MaxAllocationDepth int
}

// NewHandlers wires the engine components over store.
func NewHandlers(store storage.Store, cfg EngineConfig, draw func() float64, newID id.Generator) (Handlers, error) {
	allocator, err := engine.NewPageNumberAllocator(store, draw, cfg.MaxAllocationDepth)
	if err != nil {
		return Handlers{}, err
	}
	resolver, err := engine.NewSubmissionResolver(store, allocator, newID)
	if err != nil {
		return Handlers{}, err
	}
	writer, err := engine.NewGraphWriter(store, newID, draw)
	if err != nil {
		return Handlers{}, err
	}
	pages, err := engine.NewPageProcessor(store, resolver, writer)
	if err != nil {
		return Handlers{}, err
	}
	stories, err := engine.NewNewStoryMaterializer(store, allocator, newID, draw)
	if err != nil {
		return Handlers{}, err
	}
	visibility, err := engine.NewVisibilityUpdater(store)
	if err != nil {
		return Handlers{}, err
	}
	return Handlers{Pages: pages, Stories: stories, Visibility: visibility}, nil
}

// RuntimeConfig controls processor startup, dependencies, and loop behavior.
type RuntimeConfig struct {
	Port               int
	Store              StoreConfig
	Consumer           string
	PollInterval       time.Duration
	BatchSize          int
	RetryBackoff       time.Duration
	RetryMaxDelay      time.Duration
	MaxAllocationDepth int
}

// Run opens the store, serves gRPC health, and runs the processing loop
// until ctx ends.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultProcessorPort
	}

	store, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Printf("close store: %v", closeErr)
		}
	}()

	draw, err := random.NewFloat64Source()
	if err != nil {
		return fmt.Errorf("seed random source: %w", err)
	}
	handlers, err := NewHandlers(store, EngineConfig{MaxAllocationDepth: cfg.MaxAllocationDepth}, draw, id.NewUUID)
	if err != nil {
		return fmt.Errorf("wire engine: %w", err)
	}
	loop, err := New(store, store, handlers, Config{
		Consumer:      cfg.Consumer,
		PollInterval:  cfg.PollInterval,
		BatchSize:     cfg.BatchSize,
		RetryBackoff:  cfg.RetryBackoff,
		RetryMaxDelay: cfg.RetryMaxDelay,
	}, nil)
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on processor port %d: %w", cfg.Port, err)
	}
	health := platformgrpc.ServeHealth(listener, HealthService)
	defer health.Stop(timeouts.Shutdown)

	log.Printf("processor health listening at %v", listener.Addr())
	return loop.Run(ctx)
}
