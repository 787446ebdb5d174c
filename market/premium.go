package market

// ComputePremium returns the percentage by which the domestic price exceeds
// the foreign price converted at rate.
//
// Any zero input yields 0: the value is an "unknown yet" sentinel, not a true
// zero premium. Callers that need to tell the two apart must also check
// Tick.PricesKnown.
func ComputePremium(domestic, foreign, rate float64) float64 {
	if foreign == 0 || rate == 0 || domestic == 0 {
		return 0
	}
	return ((domestic / (foreign * rate)) - 1) * 100
}
