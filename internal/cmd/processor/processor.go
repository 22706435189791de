// Package processor parses processor command flags and launches the graph
// processing runtime.
package processor

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"strconv"
	"time"

	entrypoint "github.com/louisbranch/dendrite/internal/platform/cmd"
	platformgrpc "github.com/louisbranch/dendrite/internal/platform/grpc"
	"github.com/louisbranch/dendrite/internal/services/dendrite/app"
)

// Config holds processor command configuration. Variables carry the
// DENDRITE_ prefix.
type Config struct {
	Port               int           `env:"PROCESSOR_PORT" envDefault:"8095"`
	Backend            string        `env:"BACKEND" envDefault:"sqlite"`
	DBPath             string        `env:"DB_PATH" envDefault:"data/dendrite.db"`
	FirestoreProject   string        `env:"FIRESTORE_PROJECT"`
	Consumer           string        `env:"PROCESSOR_CONSUMER" envDefault:"dendrite-processor"`
	PollInterval       time.Duration `env:"PROCESSOR_POLL_INTERVAL" envDefault:"2s"`
	BatchSize          int           `env:"PROCESSOR_BATCH_SIZE" envDefault:"25"`
	RetryBackoff       time.Duration `env:"PROCESSOR_RETRY_BACKOFF" envDefault:"5s"`
	RetryMaxDelay      time.Duration `env:"PROCESSOR_RETRY_MAX_DELAY" envDefault:"5m"`
	MaxAllocationDepth int           `env:"MAX_ALLOCATION_DEPTH" envDefault:"48"`
	// Probe checks a running processor's health instead of starting one.
	Probe        bool
	ProbeTimeout time.Duration `env:"PROCESSOR_PROBE_TIMEOUT" envDefault:"3s"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The processor health gRPC server port")
	fs.StringVar(&cfg.Backend, "backend", cfg.Backend, "Storage backend: sqlite or firestore")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The SQLite database path")
	fs.StringVar(&cfg.FirestoreProject, "firestore-project", cfg.FirestoreProject, "The Firestore project id")
	fs.StringVar(&cfg.Consumer, "consumer", cfg.Consumer, "Consumer name recorded with processing attempts")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Pending submission poll interval")
	fs.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Pending records read per kind and pass")
	fs.DurationVar(&cfg.RetryBackoff, "retry-backoff", cfg.RetryBackoff, "Base retry backoff delay")
	fs.DurationVar(&cfg.RetryMaxDelay, "retry-max-delay", cfg.RetryMaxDelay, "Maximum retry delay")
	fs.IntVar(&cfg.MaxAllocationDepth, "max-allocation-depth", cfg.MaxAllocationDepth, "Page number allocation depth cap")
	fs.BoolVar(&cfg.Probe, "probe", cfg.Probe, "Check the health of a processor on -port and exit")
	fs.DurationVar(&cfg.ProbeTimeout, "probe-timeout", cfg.ProbeTimeout, "How long -probe waits for SERVING")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if cfg.BatchSize < 0 {
		return Config{}, fmt.Errorf("batch size must not be negative")
	}
	if cfg.RetryBackoff < 0 || cfg.RetryMaxDelay < 0 {
		return Config{}, fmt.Errorf("retry delays must not be negative")
	}
	return cfg, nil
}

// Run starts the processor runtime, or probes a running one.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Probe {
		addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.Port))
		return platformgrpc.Probe(ctx, addr, app.HealthService, cfg.ProbeTimeout, log.Printf)
	}
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceProcessor, func(ctx context.Context) error {
		return app.Run(ctx, app.RuntimeConfig{
			Port: cfg.Port,
			Store: app.StoreConfig{
				Backend:          cfg.Backend,
				DBPath:           cfg.DBPath,
				FirestoreProject: cfg.FirestoreProject,
			},
			Consumer:           cfg.Consumer,
			PollInterval:       cfg.PollInterval,
			BatchSize:          cfg.BatchSize,
			RetryBackoff:       cfg.RetryBackoff,
			RetryMaxDelay:      cfg.RetryMaxDelay,
			MaxAllocationDepth: cfg.MaxAllocationDepth,
		})
	})
}
