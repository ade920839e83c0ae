package model

import "strings"

// Known quote assets, longest first so BTCUSDT splits as BTC/USDT and
// not BTCUSD/T.
var quoteAssets = []string{"USDT", "USDC", "BUSD", "USD", "BTC", "ETH", "EUR"}

// SplitSymbol splits a normalized symbol like BTCUSDT into its base and
// quote assets. Unknown quotes fall back to USDT so vault bookkeeping
// always has an asset to settle against.
func SplitSymbol(symbol string) (base, quote string) {
	s := strings.ToUpper(symbol)
	for _, q := range quoteAssets {
		if strings.HasSuffix(s, q) && len(s) > len(q) {
			return strings.TrimSuffix(s, q), q
		}
	}
	return s, "USDT"
}

// QuoteAsset returns the settlement asset for a symbol.
func QuoteAsset(symbol string) string {
	_, quote := SplitSymbol(symbol)
	return quote
}
