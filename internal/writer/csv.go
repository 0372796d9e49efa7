package writer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dkoval/polymarket-data/internal/buffer"
	"github.com/dkoval/polymarket-data/internal/model"
)

// header is the fixed first line of every level log.
const header = "timestamp,asset_id,level,side,price,size\n"

// Config configures the CSV level writer.
type Config struct {
	Directory  string // Output directory for log files
	BufferSize int    // Snapshot buffer initial capacity
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Directory:  "./data",
		BufferSize: 1024,
	}
}

// Metrics counts writer activity.
type Metrics struct {
	Appends     int64 // Snapshots accepted
	RowsWritten int64 // Individual level rows written
	Skipped     int64 // Empty snapshots (no write, no file creation)
	Errors      int64 // Failed writes or file creations
}

// CSVWriter is the durable level logger: one append-only CSV log per
// (market, side) pair.
type CSVWriter struct {
	cfg    Config
	logger *slog.Logger

	// Input from the supervisor
	input *buffer.Growable[model.BookSnapshot]

	// Open log files, keyed by market|side. Only the consumer goroutine
	// and the final drain in Stop touch this map.
	files map[string]*os.File

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metricsMu sync.Mutex
	metrics   Metrics
}

// NewCSVWriter creates a CSV level writer.
func NewCSVWriter(cfg Config, logger *slog.Logger) *CSVWriter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = 1
	}
	return &CSVWriter{
		cfg:    cfg,
		logger: logger,
		input:  buffer.New[model.BookSnapshot](cfg.BufferSize),
		files:  make(map[string]*os.File),
	}
}

// Start creates the output directory and begins consuming snapshots.
func (w *CSVWriter) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.cfg.Directory, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.consumeLoop()

	w.logger.Info("level writer started", "directory", w.cfg.Directory)
	return nil
}

// Stop drains pending snapshots and closes all log files.
func (w *CSVWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping level writer")

	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("level writer stop timed out")
	}

	// Final drain of anything still buffered
	for _, snap := range w.input.Drain(0) {
		w.write(snap)
	}
	w.input.Close()

	for _, f := range w.files {
		f.Close()
	}

	w.logger.Info("level writer stopped")
	return nil
}

// Append queues one snapshot for logging. Fire-and-forget: the caller is
// never blocked, and snapshots for the same log are written in queue order.
func (w *CSVWriter) Append(snap model.BookSnapshot) {
	if !w.input.Push(snap) {
		w.logger.Warn("level writer closed, dropping snapshot",
			"market", snap.Market,
			"side", snap.Side,
		)
	}
}

// Stats returns current metrics.
func (w *CSVWriter) Stats() Metrics {
	w.metricsMu.Lock()
	defer w.metricsMu.Unlock()
	return w.metrics
}

// EnsureLog creates the log for a (market, side) pair with its header if it
// does not exist yet. Idempotent.
func (w *CSVWriter) EnsureLog(market string, side model.BookSide) error {
	_, err := w.ensureLog(market, side)
	return err
}

// consumeLoop writes queued snapshots one at a time.
func (w *CSVWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			snap, ok := w.input.TryPop()
			if !ok {
				select {
				case <-w.ctx.Done():
					return
				case <-time.After(10 * time.Millisecond):
					continue
				}
			}
			w.write(snap)
		}
	}
}

// write appends one snapshot's levels to its log. A snapshot with no levels
// on either side writes nothing and must not create the file. The whole
// batch goes out in a single write, so a snapshot is never half-logged.
func (w *CSVWriter) write(snap model.BookSnapshot) {
	if snap.Empty() {
		w.count(func(m *Metrics) { m.Skipped++ })
		return
	}

	f, err := w.ensureLog(snap.Market, snap.Side)
	if err != nil {
		w.logger.Error("failed to open level log",
			"market", snap.Market,
			"side", snap.Side,
			"error", err,
		)
		w.count(func(m *Metrics) { m.Errors++ })
		return
	}

	var b strings.Builder
	for i, l := range snap.Bids {
		fmt.Fprintf(&b, "%d,%s,%d,BID,%s,%s\n", snap.Timestamp, snap.AssetID, i+1, l.Price, l.Size)
	}
	for i, l := range snap.Asks {
		fmt.Fprintf(&b, "%d,%s,%d,ASK,%s,%s\n", snap.Timestamp, snap.AssetID, i+1, l.Price, l.Size)
	}

	if _, err := f.WriteString(b.String()); err != nil {
		w.logger.Error("level log append failed",
			"market", snap.Market,
			"side", snap.Side,
			"error", err,
		)
		w.count(func(m *Metrics) { m.Errors++ })
		return
	}

	rows := int64(len(snap.Bids) + len(snap.Asks))
	w.count(func(m *Metrics) {
		m.Appends++
		m.RowsWritten += rows
	})
}

// ensureLog returns the open log file for a pair, creating it with the
// header on first use.
func (w *CSVWriter) ensureLog(market string, side model.BookSide) (*os.File, error) {
	key := market + "|" + string(side)
	if f, ok := w.files[key]; ok {
		return f, nil
	}

	path := filepath.Join(w.cfg.Directory, LogFileName(market, side))

	_, statErr := os.Stat(path)
	isNew := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	if isNew {
		if _, err := f.WriteString(header); err != nil {
			f.Close()
			return nil, err
		}
		w.logger.Info("created level log", "path", path)
	}

	w.files[key] = f
	return f, nil
}

func (w *CSVWriter) count(update func(*Metrics)) {
	w.metricsMu.Lock()
	update(&w.metrics)
	w.metricsMu.Unlock()
}

// LogFileName returns the deterministic file name for a (market, side)
// pair: the sanitized market name, the side, and a .csv extension.
func LogFileName(market string, side model.BookSide) string {
	return sanitizeMarket(market) + "_" + string(side) + ".csv"
}

// sanitizeMarket lowercases the market name and replaces anything outside
// [a-z0-9-] with underscores so names are safe as file names.
func sanitizeMarket(market string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(market) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
