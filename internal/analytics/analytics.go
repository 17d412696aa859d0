// Package analytics holds pure aggregations over ledger rows. Nothing here
// touches storage; callers load the rows and recompute on every request.
package analytics

import (
	"sort"

	"github.com/rongwang/exchange-desk-server/internal/models"
	"github.com/shopspring/decimal"
)

// PairStats summarizes the transactions of one unordered currency pair
type PairStats struct {
	Pair            string          `json:"pair"`
	BaseCurrency    string          `json:"baseCurrency"`
	QuoteCurrency   string          `json:"quoteCurrency"`
	Count           int             `json:"count"`
	BuyCount        int             `json:"buyCount"`
	SellCount       int             `json:"sellCount"`
	MedianRate      decimal.Decimal `json:"medianRate"`
	MinRate         decimal.Decimal `json:"minRate"`
	MaxRate         decimal.Decimal `json:"maxRate"`
	TotalFromAmount decimal.Decimal `json:"totalFromAmount"`
	TotalToAmount   decimal.Decimal `json:"totalToAmount"`
}

// PairKey returns the order-independent key for two currency codes
func PairKey(a, b string) (key, base, quote string) {
	if b < a {
		a, b = b, a
	}
	return a + "/" + b, a, b
}

// AnalyzeCurrencyPairs groups transactions by unordered (from, to) pair and
// computes rate statistics per group. Results are sorted by pair key.
func AnalyzeCurrencyPairs(txns []models.Transaction) []PairStats {
	groups := make(map[string]*PairStats)
	rates := make(map[string][]decimal.Decimal)

	for _, t := range txns {
		key, base, quote := PairKey(t.FromCurrency, t.ToCurrency)

		stats, ok := groups[key]
		if !ok {
			stats = &PairStats{
				Pair:            key,
				BaseCurrency:    base,
				QuoteCurrency:   quote,
				TotalFromAmount: decimal.Zero,
				TotalToAmount:   decimal.Zero,
			}
			groups[key] = stats
		}

		stats.Count++
		switch t.Type {
		case models.TransactionBuy:
			stats.BuyCount++
		case models.TransactionSell:
			stats.SellCount++
		}
		stats.TotalFromAmount = stats.TotalFromAmount.Add(t.FromAmount)
		stats.TotalToAmount = stats.TotalToAmount.Add(t.ToAmount)
		rates[key] = append(rates[key], t.Rate)
	}

	result := make([]PairStats, 0, len(groups))
	for key, stats := range groups {
		rs := rates[key]
		sortDecimals(rs)
		stats.MinRate = rs[0]
		stats.MaxRate = rs[len(rs)-1]
		stats.MedianRate = medianSorted(rs)
		result = append(result, *stats)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Pair < result[j].Pair })
	return result
}

// Median returns the middle order statistic of values: the middle element for
// an odd count, the mean of the two middle elements for an even count, and
// zero for an empty slice. values is not modified.
func Median(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	sorted := make([]decimal.Decimal, len(values))
	copy(sorted, values)
	sortDecimals(sorted)
	return medianSorted(sorted)
}

func medianSorted(sorted []decimal.Decimal) decimal.Decimal {
	n := len(sorted)
	if n == 0 {
		return decimal.Zero
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return sorted[n/2-1].Add(sorted[n/2]).Div(decimal.NewFromInt(2))
}

func sortDecimals(values []decimal.Decimal) {
	sort.Slice(values, func(i, j int) bool { return values[i].LessThan(values[j]) })
}
