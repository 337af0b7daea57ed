package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"carbon-scribe/credit-market/credit-market-backend/internal/config"
	"carbon-scribe/credit-market/credit-market-backend/internal/journal"
)

// JournalWorker tails the event journal and logs per-project totals
type JournalWorker struct {
	aggregator *journal.Aggregator
	logger     *zap.Logger
	config     JournalWorkerConfig
	done       chan struct{}
}

// JournalWorkerConfig configuration for the journal worker
type JournalWorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// DefaultJournalWorkerConfig returns default configuration
func DefaultJournalWorkerConfig() JournalWorkerConfig {
	return JournalWorkerConfig{
		PollInterval: 30 * time.Second,
		BatchSize:    500,
	}
}

// NewJournalWorker creates a new journal worker
func NewJournalWorker(repo journal.Repository, logger *zap.Logger, config JournalWorkerConfig) *JournalWorker {
	return &JournalWorker{
		aggregator: journal.NewAggregator(repo, config.BatchSize, logger),
		logger:     logger,
		config:     config,
		done:       make(chan struct{}),
	}
}

// Start polls until ctx is cancelled or Stop is called
func (w *JournalWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting journal worker",
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Int("batch_size", w.config.BatchSize))

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	w.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Journal worker shutting down")
			return nil
		case <-w.done:
			w.logger.Info("Journal worker stopped")
			return nil
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

// Stop stops the journal worker
func (w *JournalWorker) Stop() {
	close(w.done)
}

func (w *JournalWorker) poll(ctx context.Context) {
	n, err := w.aggregator.Poll(ctx)
	if err != nil {
		w.logger.Error("Failed to read journal", zap.Error(err))
		return
	}
	if n == 0 {
		return
	}

	w.logger.Info("Journal advanced", zap.Int("events", n), zap.Uint64("cursor", w.aggregator.Cursor()))
	for _, t := range w.aggregator.Totals() {
		w.logger.Info("Project totals",
			zap.Int64("project_id", t.ProjectID),
			zap.String("company_id", t.CompanyID),
			zap.Int64("listed", t.Listed),
			zap.Int64("sold", t.Sold),
			zap.Int("buyers", t.Buyers),
			zap.String("collateral", t.Collateral.String()),
			zap.String("payments", t.Payments.String()),
			zap.Bool("settled", t.Settled),
			zap.Bool("valid", t.Valid))
	}
}

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON config file")
	flag.Parse()

	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}
	if cfg.Database.Driver == "" {
		logger.Fatal("Journal database is not configured")
	}

	db, err := sqlx.Connect(cfg.Database.Driver, cfg.Database.GetDatabaseURL())
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	logger.Info("Connected to database", zap.String("driver", cfg.Database.Driver))

	repo := journal.NewRepository(db)
	if err := repo.EnsureSchema(context.Background()); err != nil {
		logger.Fatal("Failed to prepare journal", zap.Error(err))
	}

	worker := NewJournalWorker(repo, logger, DefaultJournalWorkerConfig())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := worker.Start(ctx); err != nil {
		logger.Error("Worker error", zap.Error(err))
	}

	logger.Info("Journal worker stopped")
}
