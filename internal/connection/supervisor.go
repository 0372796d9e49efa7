package connection

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dkoval/polymarket-data/internal/book"
	"github.com/dkoval/polymarket-data/internal/model"
)

// Sink receives derived book snapshots. Appends are fire-and-forget from the
// supervisor's perspective; implementations must preserve the order in which
// snapshots for the same (market, side) arrive.
type Sink interface {
	Append(snap model.BookSnapshot)
}

// SupervisorStats is a point-in-time view of the supervisor.
type SupervisorStats struct {
	State          State
	Attempts       int
	Subscribed     bool
	Exhausted      bool
	LastPong       time.Time
	FramesReceived int64
	BooksProcessed int64
	ParseErrors    int64
	EventsDropped  int64 // events for unconfigured asset ids
}

// clientFactory builds a transport client; swapped out in tests.
type clientFactory func(cfg ClientConfig, logger *slog.Logger) Client

// Supervisor drives the feed connection lifecycle: connect, subscribe,
// heartbeat monitoring, reconnect with exponential backoff. A single
// goroutine owns all mutable connection state; transport callbacks and timer
// firings are serialized through its select loop.
type Supervisor struct {
	cfg         SupervisorConfig
	instruments map[string]model.Instrument // asset id → instrument
	sinks       []Sink
	newClient   clientFactory
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Loop-owned state. Touched only by run() and the handlers it calls.
	state      State
	client     Client
	subscribed bool
	lastPong   time.Time
	attempts   int
	exhausted  bool
	heartbeat  *time.Ticker
	reconnect  *time.Timer

	// Mirror for Stats(); the loop publishes, anyone may read.
	statsMu sync.RWMutex
	stats   SupervisorStats
}

// NewSupervisor creates a connection supervisor for the configured
// instrument set. Snapshots derived from inbound book events are appended to
// every sink in order.
func NewSupervisor(cfg SupervisorConfig, instruments []model.Instrument, sinks []Sink, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}

	byAsset := make(map[string]model.Instrument, len(instruments))
	for _, inst := range instruments {
		byAsset[inst.AssetID] = inst
	}

	return &Supervisor{
		cfg:         cfg,
		instruments: byAsset,
		sinks:       sinks,
		newClient:   NewClient,
		logger:      logger,
		state:       StateIdle,
		stats:       SupervisorStats{State: StateIdle},
	}
}

// Start launches the event loop and the first connect attempt.
func (s *Supervisor) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.run()

	s.logger.Info("supervisor started",
		"url", s.cfg.URL,
		"instruments", len(s.instruments),
	)

	return nil
}

// Stop requests explicit shutdown: pending timers are cancelled, the
// transport is closed gracefully, and no further reconnects are scheduled
// even if a stray closed-signal arrives afterwards.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.logger.Info("stopping supervisor")

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("supervisor stopped")
	case <-ctx.Done():
		s.logger.Warn("supervisor stop timed out")
	}

	return nil
}

// Stats returns a snapshot of supervisor state.
func (s *Supervisor) Stats() SupervisorStats {
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()
	return s.stats
}

// run is the event loop. Every handler below executes on this goroutine.
func (s *Supervisor) run() {
	defer s.wg.Done()

	s.connect()

	for {
		var msgC <-chan TimestampedMessage
		var errC <-chan error
		var pongC <-chan time.Time
		if s.client != nil {
			msgC = s.client.Messages()
			errC = s.client.Errors()
			pongC = s.client.Pongs()
		}

		var heartbeatC, reconnectC <-chan time.Time
		if s.heartbeat != nil {
			heartbeatC = s.heartbeat.C
		}
		if s.reconnect != nil {
			reconnectC = s.reconnect.C
		}

		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case <-reconnectC:
			s.reconnect = nil
			s.connect()

		case <-heartbeatC:
			s.heartbeatTick()

		case err := <-errC:
			s.handleClosed(err)

		case msg := <-msgC:
			s.handleFrame(msg)

		case t := <-pongC:
			s.lastPong = t
			s.publish(func(st *SupervisorStats) { st.LastPong = t })
		}
	}
}

// connect performs one connection attempt. At most one live transport exists
// at any time; a new attempt is never issued while one is Connecting or Open.
func (s *Supervisor) connect() {
	switch s.state {
	case StateConnecting, StateOpen, StateSubscribing, StateSubscribed:
		return
	case StateClosed:
		return
	}
	if s.exhausted {
		return
	}

	s.setState(StateConnecting)

	client := s.newClient(ClientConfig{
		URL:          s.cfg.URL,
		WriteTimeout: s.cfg.WriteTimeout,
		BufferSize:   s.cfg.BufferSize,
	}, s.logger)

	if err := client.Connect(s.ctx); err != nil {
		s.setState(StateIdle)
		if s.ctx.Err() != nil {
			// Explicit shutdown cancelled the in-flight attempt.
			return
		}
		s.logger.Warn("connect failed", "url", s.cfg.URL, "error", err)
		s.scheduleReconnect()
		return
	}

	s.client = client
	s.attempts = 0
	s.lastPong = time.Now()
	s.heartbeat = time.NewTicker(s.cfg.PingInterval)
	s.setState(StateOpen)
	s.publish(func(st *SupervisorStats) {
		st.Attempts = 0
		st.LastPong = s.lastPong
	})

	s.logger.Info("feed connected", "url", s.cfg.URL)

	s.subscribe()
}

// subscribe sends the subscription frame for every configured instrument.
// Idempotent: a no-op while already subscribed. A send failure clears the
// subscribed flag but does not force a reconnect; heartbeat failure or
// inbound close will drive the lifecycle.
func (s *Supervisor) subscribe() {
	if s.subscribed {
		return
	}

	s.setState(StateSubscribing)

	ids := make([]string, 0, len(s.instruments))
	for id := range s.instruments {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	frame, _ := json.Marshal(subscribeCommand{Type: "market", AssetsIDs: ids})
	if err := s.client.Send(frame); err != nil {
		s.logger.Warn("subscription send failed", "assets", len(ids), "error", err)
		s.setSubscribed(false)
		s.setState(StateOpen)
		return
	}

	// The feed sends no subscription ack; subscribed means "request sent".
	s.setSubscribed(true)
	s.setState(StateSubscribed)
	s.logger.Info("subscribed", "assets", len(ids))
}

// heartbeatTick runs once per ping interval while connected. The elapsed
// check only happens here, so dead-connection detection latency is bounded
// by the interval, not by the moment the threshold is crossed.
func (s *Supervisor) heartbeatTick() {
	switch s.state {
	case StateOpen, StateSubscribing, StateSubscribed:
	default:
		return
	}

	elapsed := time.Since(s.lastPong)
	if elapsed > 2*s.cfg.PingInterval {
		s.logger.Warn("heartbeat timeout, terminating connection",
			"elapsed", elapsed,
			"interval", s.cfg.PingInterval,
		)
		s.client.Terminate()
		return
	}

	if err := s.client.Ping(); err != nil {
		s.logger.Warn("heartbeat probe failed, terminating connection", "error", err)
		s.client.Terminate()
	}
}

// handleClosed processes a transport error or close signal: tear down the
// connection state and, unless shutdown is in progress, schedule a reconnect.
func (s *Supervisor) handleClosed(err error) {
	if s.state == StateIdle || s.state == StateClosed {
		// Stray signal from an already-discarded connection.
		return
	}

	s.logger.Warn("connection closed", "error", err)

	s.setState(StateClosing)
	s.stopHeartbeat()
	s.setSubscribed(false)

	if s.client != nil {
		s.client.Close()
		s.client = nil
	}

	s.setState(StateIdle)

	if s.ctx.Err() == nil {
		s.scheduleReconnect()
	}
}

// scheduleReconnect arms the backoff timer for the next attempt. The attempt
// counter increments before the delay is computed; once it exceeds the
// configured maximum no further attempt is ever scheduled.
func (s *Supervisor) scheduleReconnect() {
	if s.exhausted || s.reconnect != nil {
		return
	}

	s.attempts++
	s.publish(func(st *SupervisorStats) { st.Attempts = s.attempts })

	if s.attempts > s.cfg.MaxReconnectAttempts {
		s.exhausted = true
		s.publish(func(st *SupervisorStats) { st.Exhausted = true })
		s.logger.Error("reconnect attempts exhausted, giving up",
			"max_attempts", s.cfg.MaxReconnectAttempts,
		)
		return
	}

	delay := backoffDelay(s.cfg.ReconnectBaseDelay, s.cfg.ReconnectMaxDelay, s.attempts)
	s.logger.Info("scheduling reconnect", "attempt", s.attempts, "delay", delay)
	s.reconnect = time.NewTimer(delay)
}

// handleFrame parses one inbound frame and processes its book events.
// Parse failure discards the frame; the connection is untouched.
func (s *Supervisor) handleFrame(msg TimestampedMessage) {
	s.publish(func(st *SupervisorStats) { st.FramesReceived++ })

	events, err := parseFrame(msg.Data)
	if err != nil {
		s.logger.Warn("frame parse failed", "error", err, "bytes", len(msg.Data))
		s.publish(func(st *SupervisorStats) { st.ParseErrors++ })
		return
	}

	for _, ev := range events {
		if ev.EventType != "book" {
			continue
		}

		inst, ok := s.instruments[ev.AssetID]
		if !ok {
			// Feeds may include unconfigured identifiers; not an error.
			s.publish(func(st *SupervisorStats) { st.EventsDropped++ })
			continue
		}

		primary, complement := book.Derive(inst, ev.bookUpdate(msg.ReceivedAt))
		for _, sink := range s.sinks {
			sink.Append(primary)
			sink.Append(complement)
		}

		s.publish(func(st *SupervisorStats) { st.BooksProcessed++ })
	}
}

// shutdown is the explicit-shutdown path: cancel timers, close the transport
// gracefully, and park in the terminal Closed state.
func (s *Supervisor) shutdown() {
	s.setState(StateClosing)
	s.stopHeartbeat()
	s.stopReconnect()
	s.setSubscribed(false)

	if s.client != nil {
		s.client.Close()
		s.client = nil
	}

	s.setState(StateClosed)
}

func (s *Supervisor) stopHeartbeat() {
	if s.heartbeat != nil {
		s.heartbeat.Stop()
		s.heartbeat = nil
	}
}

func (s *Supervisor) stopReconnect() {
	if s.reconnect != nil {
		s.reconnect.Stop()
		s.reconnect = nil
	}
}

func (s *Supervisor) setState(state State) {
	s.state = state
	s.publish(func(st *SupervisorStats) { st.State = state })
}

func (s *Supervisor) setSubscribed(subscribed bool) {
	s.subscribed = subscribed
	s.publish(func(st *SupervisorStats) { st.Subscribed = subscribed })
}

func (s *Supervisor) publish(update func(*SupervisorStats)) {
	s.statsMu.Lock()
	update(&s.stats)
	s.statsMu.Unlock()
}

// backoffDelay computes the reconnect delay for a 1-indexed attempt:
// min(base * 2^(attempt-1), max).
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 32 {
		return max
	}
	delay := base << uint(attempt-1)
	if delay <= 0 || delay > max {
		return max
	}
	return delay
}
