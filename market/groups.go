package market

// Correlation group names. Instruments in the same group tend to move
// together, so weekend exposure is capped per group rather than per pair.
const (
	GroupUSDMajors    = "USD_MAJORS"
	GroupUSDInverse   = "USD_INVERSE"
	GroupEURCrosses   = "EUR_CROSSES"
	GroupGBPCrosses   = "GBP_CROSSES"
	GroupJPYCrosses   = "JPY_CROSSES"
	GroupCommodityFX  = "COMMODITY_FX"
	GroupMetals       = "METALS"
	GroupUSIndices    = "US_INDICES"
	GroupOtherIndices = "OTHER_INDICES"
	GroupCryptoMajor  = "CRYPTO_MAJOR"
	GroupOther        = "OTHER"
)

// CorrelationGroup returns the correlation group for an instrument.
// Unknown instruments fall into GroupOther so they are still capped.
func CorrelationGroup(instrument string) string {
	if s, ok := Instruments[instrument]; ok && s.Group != "" {
		return s.Group
	}
	return GroupOther
}
