package analytics

import (
	"testing"

	"github.com/rongwang/exchange-desk-server/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func txn(from, to string, typ models.TransactionType, amount, rate string) models.Transaction {
	fromAmount := dec(amount)
	r := dec(rate)
	return models.Transaction{
		Type:         typ,
		FromCurrency: from,
		ToCurrency:   to,
		FromAmount:   fromAmount,
		ToAmount:     fromAmount.Mul(r),
		Rate:         r,
	}
}

func TestAnalyzeCurrencyPairsEmpty(t *testing.T) {
	result := AnalyzeCurrencyPairs(nil)
	assert.NotNil(t, result)
	assert.Empty(t, result)
}

func TestAnalyzeCurrencyPairsGroupsUnordered(t *testing.T) {
	txns := []models.Transaction{
		txn("USD", "EUR", models.TransactionSell, "100", "0.9"),
		txn("EUR", "USD", models.TransactionBuy, "50", "1.1"),
		txn("USDT", "USD", models.TransactionBuy, "10", "1"),
	}

	result := AnalyzeCurrencyPairs(txns)
	require.Len(t, result, 2)

	eur := result[0]
	assert.Equal(t, "EUR/USD", eur.Pair)
	assert.Equal(t, "EUR", eur.BaseCurrency)
	assert.Equal(t, "USD", eur.QuoteCurrency)
	assert.Equal(t, 2, eur.Count)
	assert.Equal(t, 1, eur.BuyCount)
	assert.Equal(t, 1, eur.SellCount)
	assert.True(t, eur.MinRate.Equal(dec("0.9")))
	assert.True(t, eur.MaxRate.Equal(dec("1.1")))
	assert.True(t, eur.MedianRate.Equal(dec("1")), "got %s", eur.MedianRate)
	assert.True(t, eur.TotalFromAmount.Equal(dec("150")))
	assert.True(t, eur.TotalToAmount.Equal(dec("145")))

	assert.Equal(t, "USD/USDT", result[1].Pair)
	assert.Equal(t, 1, result[1].Count)
}

func TestAnalyzeCurrencyPairsSwappedInputIsEquivalent(t *testing.T) {
	a := AnalyzeCurrencyPairs([]models.Transaction{txn("USD", "EUR", models.TransactionBuy, "1", "2")})
	b := AnalyzeCurrencyPairs([]models.Transaction{txn("EUR", "USD", models.TransactionBuy, "1", "2")})

	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, a[0].Pair, b[0].Pair)
	assert.True(t, a[0].MedianRate.Equal(b[0].MedianRate))
}

func TestMedian(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   string
	}{
		{"empty", nil, "0"},
		{"single", []string{"3.5"}, "3.5"},
		{"odd", []string{"5", "1", "3"}, "3"},
		{"even", []string{"4", "1", "3", "2"}, "2.5"},
		{"duplicates", []string{"2", "2", "9"}, "2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := make([]decimal.Decimal, 0, len(tt.values))
			for _, v := range tt.values {
				values = append(values, dec(v))
			}
			got := Median(values)
			assert.True(t, got.Equal(dec(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestMedianDoesNotReorderInput(t *testing.T) {
	values := []decimal.Decimal{dec("3"), dec("1"), dec("2")}
	Median(values)
	assert.True(t, values[0].Equal(dec("3")))
	assert.True(t, values[1].Equal(dec("1")))
}

func custody(wallet, currency, amount string, status models.CustodyStatus, returned bool) models.CashCustody {
	return models.CashCustody{
		WalletID:     wallet,
		CurrencyCode: currency,
		Amount:       dec(amount),
		Status:       status,
		IsReturned:   returned,
	}
}

func TestCustodyTotalsActiveFilterIsEmpty(t *testing.T) {
	records := []models.CashCustody{custody("w1", "USDT", "15", models.CustodyApproved, false)}

	totals := CalculateCustodyTotalsByWallet(records, StatusActive)
	assert.Empty(t, totals)
	assert.True(t, totals.Get("w1", "USDT").IsZero())
}

func TestCustodyTotalsByWallet(t *testing.T) {
	records := []models.CashCustody{
		custody("w1", "USDT", "15", models.CustodyApproved, false),
		custody("w1", "USDT", "5", models.CustodyApproved, false),
		custody("w1", "USD", "7", models.CustodyApproved, false),
		custody("w2", "USD", "100", models.CustodyApproved, true),
		custody("w2", "USD", "3", models.CustodyPending, false),
	}

	totals := CalculateCustodyTotalsByWallet(records, models.CustodyApproved)
	assert.True(t, totals.Get("w1", "USDT").Equal(dec("20")))
	assert.True(t, totals.Get("w1", "USD").Equal(dec("7")))
	_, ok := totals["w2"]
	assert.False(t, ok)

	holdings := totals.Holdings()
	require.Len(t, holdings, 2)
	assert.Equal(t, "USD", holdings[0].CurrencyCode)
	assert.Equal(t, "USDT", holdings[1].CurrencyCode)
}

func TestReconcile(t *testing.T) {
	records := []models.CashCustody{
		custody("w1", "USD", "40", models.CustodyPending, false),
		custody("w1", "USD", "60", models.CustodyApproved, false),
		custody("w1", "USD", "25", models.CustodyRejected, false),
		custody("w1", "USD", "10", models.CustodyReturned, true),
		custody("w2", "EUR", "5", models.CustodyApproved, true),
	}

	lines := Reconcile(records)
	require.Len(t, lines, 2)

	usd := lines[0]
	assert.Equal(t, "w1", usd.WalletID)
	assert.True(t, usd.Outstanding.Equal(dec("100")))
	assert.True(t, usd.Disbursed.Equal(dec("100")))
	assert.True(t, usd.Balanced)

	// approved but flagged returned: cash counted back without a return transition
	eur := lines[1]
	assert.True(t, eur.Outstanding.IsZero())
	assert.True(t, eur.Difference.Equal(dec("5")))
	assert.False(t, eur.Balanced)
}

func TestReconcileSplitsByCashier(t *testing.T) {
	held := custody("w1", "USD", "30", models.CustodyApproved, false)
	held.CashierID = "k1"
	flagged := custody("w1", "USD", "30", models.CustodyApproved, true)
	flagged.CashierID = "k2"

	lines := Reconcile([]models.CashCustody{flagged, held})
	require.Len(t, lines, 2)

	assert.Equal(t, "k1", lines[0].CashierID)
	assert.True(t, lines[0].Balanced)
	assert.Equal(t, "k2", lines[1].CashierID)
	assert.False(t, lines[1].Balanced)
	assert.True(t, lines[1].Difference.Equal(dec("30")))
}
