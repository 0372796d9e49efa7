package connection

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseFrame_EventArray(t *testing.T) {
	data := []byte(`[
		{"event_type":"book","asset_id":"123","market":"0xabc","timestamp":"1700000000123",
		 "bids":[{"price":"0.40","size":"100"}],
		 "asks":[{"price":"0.45","size":"50"}]},
		{"event_type":"price_change","asset_id":"123"}
	]`)

	events, err := parseFrame(data)
	if err != nil {
		t.Fatalf("parseFrame failed: %v", err)
	}

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}

	ev := events[0]
	if ev.EventType != "book" {
		t.Errorf("EventType = %q, want book", ev.EventType)
	}
	if ev.AssetID != "123" {
		t.Errorf("AssetID = %q, want 123", ev.AssetID)
	}
	if len(ev.Bids) != 1 || ev.Bids[0].Price != "0.40" || ev.Bids[0].Size != "100" {
		t.Errorf("Bids = %+v", ev.Bids)
	}
	if len(ev.Asks) != 1 || ev.Asks[0].Price != "0.45" {
		t.Errorf("Asks = %+v", ev.Asks)
	}

	if events[1].EventType != "price_change" {
		t.Errorf("second EventType = %q, want price_change", events[1].EventType)
	}
}

func TestParseFrame_BareObject(t *testing.T) {
	data := []byte(`{"event_type":"book","asset_id":"456","timestamp":"1700000000123"}`)

	events, err := parseFrame(data)
	if err != nil {
		t.Fatalf("parseFrame failed: %v", err)
	}

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].AssetID != "456" {
		t.Errorf("AssetID = %q, want 456", events[0].AssetID)
	}
}

func TestParseFrame_Invalid(t *testing.T) {
	cases := [][]byte{
		[]byte(`not json`),
		[]byte(`[{"event_type":`),
		[]byte(`"just a string"`),
	}

	for _, data := range cases {
		if _, err := parseFrame(data); err == nil {
			t.Errorf("parseFrame(%q) expected error, got nil", data)
		}
	}
}

func TestFeedEvent_BookUpdate(t *testing.T) {
	ev := feedEvent{
		EventType: "book",
		AssetID:   "123",
		Timestamp: "1700000000123",
		Bids:      []wireLevel{{Price: "0.40", Size: "100"}},
		Asks:      []wireLevel{{Price: "0.45", Size: "50"}},
	}

	u := ev.bookUpdate(time.Now())

	if u.AssetID != "123" {
		t.Errorf("AssetID = %q, want 123", u.AssetID)
	}
	if u.Timestamp != 1700000000123 {
		t.Errorf("Timestamp = %d, want 1700000000123", u.Timestamp)
	}
	if len(u.Bids) != 1 || u.Bids[0].Price != "0.40" {
		t.Errorf("Bids = %+v", u.Bids)
	}
	if len(u.Asks) != 1 || u.Asks[0].Size != "50" {
		t.Errorf("Asks = %+v", u.Asks)
	}
}

func TestFeedEvent_BookUpdateBadTimestamp(t *testing.T) {
	receivedAt := time.UnixMilli(1700000000999)

	ev := feedEvent{EventType: "book", AssetID: "123", Timestamp: "not-a-number"}
	u := ev.bookUpdate(receivedAt)

	if u.Timestamp != receivedAt.UnixMilli() {
		t.Errorf("Timestamp = %d, want fallback %d", u.Timestamp, receivedAt.UnixMilli())
	}
}

func TestSubscribeCommand_Marshal(t *testing.T) {
	cmd := subscribeCommand{Type: "market", AssetsIDs: []string{"111", "222"}}

	data, err := json.Marshal(cmd)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	want := `{"type":"market","assets_ids":["111","222"]}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}
