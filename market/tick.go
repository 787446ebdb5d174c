package market

import "time"

// Side identifies which feed last refreshed a record.
type Side int

const (
	SideNone Side = iota
	SideDomestic
	SideForeign
)

func (s Side) String() string {
	switch s {
	case SideDomestic:
		return "domestic"
	case SideForeign:
		return "foreign"
	default:
		return "none"
	}
}

// Tick is the merged, always-current per-symbol record combining both feeds'
// latest known values. A zero price means "unknown yet", never a real quote.
type Tick struct {
	Symbol         string    `json:"symbol"`
	DomesticPrice  float64   `json:"domesticPrice"`  // KRW
	DomesticVolume float64   `json:"domesticVolume"` // 24h accumulated
	ForeignPrice   float64   `json:"foreignPrice"`   // USDT
	ForeignVolume  float64   `json:"foreignVolume"`  // 24h base asset
	ChangePct24h   float64   `json:"changePct24h"`
	PremiumPct     float64   `json:"premiumPct"`
	LastSide       Side      `json:"-"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// PricesKnown reports whether both source prices have arrived. A PremiumPct
// of 0 is a no-data sentinel unless this returns true.
func (t Tick) PricesKnown() bool {
	return t.DomesticPrice > 0 && t.ForeignPrice > 0
}
