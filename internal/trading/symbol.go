package trading

import "strings"

// BaseAsset returns the base currency of a BASE/QUOTE symbol, e.g. BTC for BTC/USDT.
func BaseAsset(symbol string) string {
	base, _, _ := strings.Cut(symbol, "/")
	return strings.ToUpper(strings.TrimSpace(base))
}

// VenueSymbol converts BASE/QUOTE into the exchange form BASEQUOTE.
func VenueSymbol(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(symbol), "/", ""))
}
