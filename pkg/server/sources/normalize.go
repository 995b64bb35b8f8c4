package sources

import (
	"sort"
	"strings"
)

// Exchanges list a feed pair under wrapped or stablecoin variants. A quote
// for BTC/USDT or WBTC/USDC can back the BTC/USD feed.
var (
	quoteAliases = map[string][]string{
		"USD": {"USDT", "USDC", "BUSD", "DAI", "TUSD", "USDD", "USDP"},
	}
	baseAliases = map[string][]string{
		"BTC": {"WBTC"},
		"ETH": {"WETH", "STETH"},
		"OKB": {"WOKB"},
	}

	quoteCanonical = invert(quoteAliases)
	baseCanonical  = invert(baseAliases)
)

func invert(aliases map[string][]string) map[string]string {
	out := make(map[string]string)
	for canonical, list := range aliases {
		for _, a := range list {
			out[a] = canonical
		}
	}
	return out
}

func canonical(asset string, table map[string]string) string {
	asset = strings.ToUpper(asset)
	if c, ok := table[asset]; ok {
		return c
	}
	return asset
}

// NormalizeSymbol maps an exchange pair to its feed pair, e.g. WBTC/USDC to
// BTC/USD. Anything that is not BASE/QUOTE is returned unchanged.
func NormalizeSymbol(symbol string) string {
	base, quote, ok := strings.Cut(symbol, "/")
	if !ok || strings.Contains(quote, "/") {
		return symbol
	}
	return canonical(base, baseCanonical) + "/" + canonical(quote, quoteCanonical)
}

// SymbolAliases returns the feed pair followed by every wrapped/stablecoin
// variant of it, sorted.
func SymbolAliases(feedSymbol string) []string {
	base, quote, ok := strings.Cut(feedSymbol, "/")
	if !ok {
		return []string{feedSymbol}
	}

	bases := append([]string{base}, baseAliases[base]...)
	quotes := append([]string{quote}, quoteAliases[quote]...)

	variants := make([]string, 0, len(bases)*len(quotes)-1)
	for _, b := range bases {
		for _, q := range quotes {
			if b == base && q == quote {
				continue
			}
			variants = append(variants, b+"/"+q)
		}
	}
	sort.Strings(variants)
	return append([]string{feedSymbol}, variants...)
}

// IsEquivalentSymbol reports whether a and b normalize to the same feed pair.
func IsEquivalentSymbol(a, b string) bool {
	return NormalizeSymbol(a) == NormalizeSymbol(b)
}
