package book

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/dkoval/polymarket-data/internal/model"
)

// complementScale is the number of fractional digits in derived prices.
const complementScale = 4

var one = decimal.NewFromInt(1)

// Derive produces both sides' snapshots for one primary book update.
//
// The primary snapshot passes bids and asks through unchanged, in received
// order. The complement snapshot swaps sides: every primary ask becomes a
// complement bid at 1 - price, every primary bid becomes a complement ask at
// 1 - price, sizes copied. Complement sides are sorted descending by price
// (best bid first) regardless of the primary input order.
func Derive(inst model.Instrument, u model.BookUpdate) (primary, complement model.BookSnapshot) {
	primary = model.BookSnapshot{
		AssetID:   u.AssetID,
		Market:    inst.Market,
		Side:      model.SidePrimary,
		Timestamp: u.Timestamp,
		Bids:      u.Bids,
		Asks:      u.Asks,
	}

	complement = model.BookSnapshot{
		AssetID:   u.AssetID,
		Market:    inst.Market,
		Side:      model.SideComplement,
		Timestamp: u.Timestamp,
		Bids:      complementLevels(u.Asks),
		Asks:      complementLevels(u.Bids),
	}

	return primary, complement
}

// complementLevels inverts one side's levels to the opposite outcome:
// price' = 1 - price, size unchanged, result sorted descending by price.
// Levels with unparseable prices are skipped.
func complementLevels(levels []model.PriceLevel) []model.PriceLevel {
	type priced struct {
		price decimal.Decimal
		level model.PriceLevel
	}

	inverted := make([]priced, 0, len(levels))
	for _, l := range levels {
		p, err := decimal.NewFromString(l.Price)
		if err != nil {
			continue
		}
		cp := one.Sub(p)
		inverted = append(inverted, priced{
			price: cp,
			level: model.PriceLevel{
				Price: cp.StringFixed(complementScale),
				Size:  l.Size,
			},
		})
	}

	sort.SliceStable(inverted, func(i, j int) bool {
		return inverted[i].price.GreaterThan(inverted[j].price)
	})

	out := make([]model.PriceLevel, len(inverted))
	for i, p := range inverted {
		out[i] = p.level
	}
	return out
}
