package models

import (
	"fmt"
	"strings"
)

// TrendingCoin is an entry from the market-data trending list.
type TrendingCoin struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	Rank   int    `json:"rank"`
}

// Label renders the coin the way it is shown to the generator, e.g. "DOGEPEPE (DPEP)".
func (c TrendingCoin) Label() string {
	return fmt.Sprintf("%s (%s)", c.Name, NormalizeSymbol(c.Symbol))
}

// MarketMove is a notable 24h price move, used as a recent market event.
type MarketMove struct {
	Name          string  `json:"name"`
	Symbol        string  `json:"symbol"`
	PriceUSD      float64 `json:"price_usd"`
	ChangePercent float64 `json:"change_percent_24h"`
}

// Summary renders the move as a one-line event description.
func (m MarketMove) Summary() string {
	return fmt.Sprintf("%s (%s) %+.1f%% in 24h at $%s", m.Name, NormalizeSymbol(m.Symbol), m.ChangePercent, formatPrice(m.PriceUSD))
}

// NormalizeSymbol is the canonical key for freshness tracking.
func NormalizeSymbol(symbol string) string {
	s := strings.TrimSpace(symbol)
	s = strings.TrimLeft(s, "$#")
	return strings.ToUpper(s)
}

func formatPrice(p float64) string {
	switch {
	case p >= 1:
		return fmt.Sprintf("%.2f", p)
	case p >= 0.0001:
		return fmt.Sprintf("%.4f", p)
	default:
		return fmt.Sprintf("%.8f", p)
	}
}
