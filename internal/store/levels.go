package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dkoval/polymarket-data/internal/buffer"
	"github.com/dkoval/polymarket-data/internal/model"
)

// Config configures the level store's batching behavior.
type Config struct {
	BatchSize     int           // Rows per batch insert
	FlushInterval time.Duration // Max time a row waits before flushing
	BufferSize    int           // Snapshot buffer initial capacity
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: 2 * time.Second,
		BufferSize:    1024,
	}
}

// Metrics counts store activity.
type Metrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
}

// levelRow is one book_levels table row.
type levelRow struct {
	RunID     uuid.UUID
	Ts        int64 // Exchange timestamp (ms since epoch)
	AssetID   string
	Market    string
	BookSide  string // "primary" or "complement"
	Rank      int    // 1-based level position within its side
	Side      string // "BID" or "ASK"
	Price     string
	Size      string
}

// LevelStore consumes book snapshots and batch-inserts their levels into the
// book_levels table. Rows are tagged with the run id so rows from different
// recorder runs stay distinguishable.
type LevelStore struct {
	cfg    Config
	logger *slog.Logger
	runID  uuid.UUID

	// Input from the supervisor
	input *buffer.Growable[model.BookSnapshot]

	// Database
	db *pgxpool.Pool

	// Batching
	batch       []levelRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics Metrics
}

// NewLevelStore creates a new level store.
func NewLevelStore(cfg Config, db *pgxpool.Pool, runID uuid.UUID, logger *slog.Logger) *LevelStore {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = 1
	}
	return &LevelStore{
		cfg:    cfg,
		logger: logger,
		runID:  runID,
		input:  buffer.New[model.BookSnapshot](cfg.BufferSize),
		db:     db,
		batch:  make([]levelRow, 0, cfg.BatchSize),
	}
}

// Start begins consuming snapshots and writing to the database.
func (s *LevelStore) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.flushTicker = time.NewTicker(s.cfg.FlushInterval)

	s.wg.Add(1)
	go s.consumeLoop()

	s.wg.Add(1)
	go s.flushLoop()

	s.logger.Info("level store started",
		"batch_size", s.cfg.BatchSize,
		"flush_interval", s.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the store.
func (s *LevelStore) Stop(ctx context.Context) error {
	s.logger.Info("stopping level store")

	if s.cancel != nil {
		s.cancel()
	}

	if s.flushTicker != nil {
		s.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("level store stopped")
	case <-ctx.Done():
		s.logger.Warn("level store stop timed out")
	}

	// Drain remaining snapshots, then final flush
	for _, snap := range s.input.Drain(0) {
		s.handleSnapshot(snap)
	}
	s.input.Close()
	s.flush()

	return nil
}

// Append queues one snapshot for insertion. Fire-and-forget.
func (s *LevelStore) Append(snap model.BookSnapshot) {
	if !s.input.Push(snap) {
		s.logger.Warn("level store closed, dropping snapshot",
			"market", snap.Market,
			"side", snap.Side,
		)
	}
}

// Stats returns current metrics.
func (s *LevelStore) Stats() Metrics {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	return s.metrics
}

// consumeLoop reads from the input buffer and accumulates batches.
func (s *LevelStore) consumeLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
			snap, ok := s.input.TryPop()
			if !ok {
				select {
				case <-s.ctx.Done():
					return
				case <-time.After(10 * time.Millisecond):
					continue
				}
			}
			s.handleSnapshot(snap)
		}
	}
}

// flushLoop periodically flushes the batch.
func (s *LevelStore) flushLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.flushTicker.C:
			s.flush()
		}
	}
}

// handleSnapshot transforms a snapshot and adds its rows to the batch.
func (s *LevelStore) handleSnapshot(snap model.BookSnapshot) {
	rows := s.transform(snap)
	if len(rows) == 0 {
		return
	}

	s.batchMu.Lock()
	s.batch = append(s.batch, rows...)
	shouldFlush := len(s.batch) >= s.cfg.BatchSize
	s.batchMu.Unlock()

	if shouldFlush {
		s.flush()
	}
}

// transform converts a snapshot to one row per level, bids before asks,
// rank following position within each side.
func (s *LevelStore) transform(snap model.BookSnapshot) []levelRow {
	rows := make([]levelRow, 0, len(snap.Bids)+len(snap.Asks))
	for i, l := range snap.Bids {
		rows = append(rows, levelRow{
			RunID:    s.runID,
			Ts:       snap.Timestamp,
			AssetID:  snap.AssetID,
			Market:   snap.Market,
			BookSide: string(snap.Side),
			Rank:     i + 1,
			Side:     "BID",
			Price:    l.Price,
			Size:     l.Size,
		})
	}
	for i, l := range snap.Asks {
		rows = append(rows, levelRow{
			RunID:    s.runID,
			Ts:       snap.Timestamp,
			AssetID:  snap.AssetID,
			Market:   snap.Market,
			BookSide: string(snap.Side),
			Rank:     i + 1,
			Side:     "ASK",
			Price:    l.Price,
			Size:     l.Size,
		})
	}
	return rows
}

// flush writes the current batch to the database.
func (s *LevelStore) flush() {
	s.batchMu.Lock()
	if len(s.batch) == 0 {
		s.batchMu.Unlock()
		return
	}
	batch := s.batch
	s.batch = make([]levelRow, 0, s.cfg.BatchSize)
	s.batchMu.Unlock()

	start := time.Now()

	conflicts, err := s.batchInsert(batch)
	if err != nil {
		s.logger.Error("batch insert failed", "error", err, "count", len(batch))
		s.batchMu.Lock()
		s.metrics.Errors++
		s.batchMu.Unlock()
		return
	}

	s.batchMu.Lock()
	s.metrics.Inserts += int64(len(batch) - conflicts)
	s.metrics.Conflicts += int64(conflicts)
	s.metrics.Flushes++
	s.batchMu.Unlock()

	s.logger.Debug("flushed levels",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (s *LevelStore) batchInsert(rows []levelRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO book_levels (run_id, ts, asset_id, market, book_side, level, side, price, size)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT DO NOTHING
		`, r.RunID, r.Ts, r.AssetID, r.Market, r.BookSide, r.Rank, r.Side, r.Price, r.Size)
	}

	// Detached from the run context so the final flush during shutdown
	// still reaches the database.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), 10*time.Second)
	defer cancel()

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
