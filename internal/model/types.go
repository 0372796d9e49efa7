package model

// BookSide designates which logical side of a binary market a book belongs
// to: the side the feed quotes natively, or the derived opposite outcome.
type BookSide string

const (
	SidePrimary    BookSide = "primary"
	SideComplement BookSide = "complement"
)

// Instrument maps a feed asset identifier to a human-readable market name.
// The configured set is immutable for the process lifetime.
type Instrument struct {
	AssetID string   // Opaque feed identifier (CLOB token id)
	Market  string   // Human-readable market name (used for log file naming)
	Side    BookSide // Designation of the natively quoted side
}

// PriceLevel is one depth level on one side of a book at one instant.
// Price and size are decimal strings exactly as quoted by the feed (or, for
// derived levels, formatted to 4 fractional digits).
type PriceLevel struct {
	Price string
	Size  string
}

// BookUpdate is a parsed inbound book event for a primary instrument.
type BookUpdate struct {
	AssetID   string       // Feed asset identifier
	Timestamp int64        // Exchange timestamp (ms since epoch)
	Bids      []PriceLevel // As received, best first per feed convention
	Asks      []PriceLevel
}

// BookSnapshot is one side's complete book produced from a single update.
// Immutable once created; not retained after logging. Rank is positional:
// level i carries rank i+1 within its side's sequence.
type BookSnapshot struct {
	AssetID   string   // Always the primary instrument's id, on both sides
	Market    string   // Market name
	Side      BookSide // primary or complement
	Timestamp int64    // Exchange timestamp (ms since epoch)
	Bids      []PriceLevel
	Asks      []PriceLevel
}

// Empty reports whether the snapshot carries no levels on either side.
func (s BookSnapshot) Empty() bool {
	return len(s.Bids) == 0 && len(s.Asks) == 0
}
