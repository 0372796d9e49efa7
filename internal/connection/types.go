package connection

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/dkoval/polymarket-data/internal/model"
)

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrAlreadyClosed = errors.New("already closed")
	ErrTerminated    = errors.New("connection terminated")
)

// TimestampedMessage wraps raw frame data with its receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw frame bytes from the WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// subscribeCommand is the outbound subscription frame for the market channel.
type subscribeCommand struct {
	Type      string   `json:"type"`
	AssetsIDs []string `json:"assets_ids"`
}

// wireLevel is one price level as quoted on the wire.
type wireLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// feedEvent is a single inbound event. Frames carry an array of these; the
// event_type discriminator decides handling and only "book" is processed.
type feedEvent struct {
	EventType string      `json:"event_type"`
	AssetID   string      `json:"asset_id"`
	Market    string      `json:"market"`
	Timestamp string      `json:"timestamp"` // ms since epoch, as string
	Hash      string      `json:"hash"`
	Bids      []wireLevel `json:"bids"`
	Asks      []wireLevel `json:"asks"`
}

// parseFrame parses an inbound frame into its event sequence. The feed sends
// JSON arrays of events; a bare object is tolerated as a one-event sequence.
func parseFrame(data []byte) ([]feedEvent, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var events []feedEvent
		if err := json.Unmarshal(trimmed, &events); err != nil {
			return nil, err
		}
		return events, nil
	}

	var event feedEvent
	if err := json.Unmarshal(trimmed, &event); err != nil {
		return nil, err
	}
	return []feedEvent{event}, nil
}

// bookUpdate converts a "book" event to the domain type. An unparseable
// timestamp falls back to the local receive time.
func (e feedEvent) bookUpdate(receivedAt time.Time) model.BookUpdate {
	ts, err := strconv.ParseInt(e.Timestamp, 10, 64)
	if err != nil {
		ts = receivedAt.UnixMilli()
	}

	return model.BookUpdate{
		AssetID:   e.AssetID,
		Timestamp: ts,
		Bids:      toLevels(e.Bids),
		Asks:      toLevels(e.Asks),
	}
}

func toLevels(wire []wireLevel) []model.PriceLevel {
	if len(wire) == 0 {
		return nil
	}
	levels := make([]model.PriceLevel, len(wire))
	for i, w := range wire {
		levels[i] = model.PriceLevel{Price: w.Price, Size: w.Size}
	}
	return levels
}

// State is the connection lifecycle state. Exactly one instance exists,
// mutated only by the Supervisor's event loop.
type State string

const (
	StateIdle        State = "idle"
	StateConnecting  State = "connecting"
	StateOpen        State = "open"
	StateSubscribing State = "subscribing"
	StateSubscribed  State = "subscribed"
	StateClosing     State = "closing"
	StateClosed      State = "closed"
)

// ClientConfig configures a feed transport client.
type ClientConfig struct {
	URL          string        // WebSocket URL of the market channel
	WriteTimeout time.Duration // Write deadline for sends
	BufferSize   int           // Inbound message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		WriteTimeout: 5 * time.Second,
		BufferSize:   1000,
	}
}

// SupervisorConfig configures the connection supervisor.
type SupervisorConfig struct {
	URL                  string        // WebSocket URL of the market channel
	PingInterval         time.Duration // Heartbeat probe interval
	ReconnectBaseDelay   time.Duration // Base delay for exponential backoff
	ReconnectMaxDelay    time.Duration // Backoff cap
	MaxReconnectAttempts int           // Consecutive failures before giving up
	WriteTimeout         time.Duration // Write deadline for sends
	BufferSize           int           // Transport inbound buffer size
}

// DefaultSupervisorConfig returns sensible defaults.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		PingInterval:         10 * time.Second,
		ReconnectBaseDelay:   5 * time.Second,
		ReconnectMaxDelay:    60 * time.Second,
		MaxReconnectAttempts: 10,
		WriteTimeout:         5 * time.Second,
		BufferSize:           1000,
	}
}
