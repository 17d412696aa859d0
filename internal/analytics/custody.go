package analytics

import (
	"sort"

	"github.com/rongwang/exchange-desk-server/internal/models"
	"github.com/shopspring/decimal"
)

// StatusActive is the filter value older dashboards passed when totalling
// custody. No record ever carries it, so totals computed with it are empty.
const StatusActive models.CustodyStatus = "active"

// CustodyTotals maps wallet id to currency code to summed amount
type CustodyTotals map[string]map[string]decimal.Decimal

// CalculateCustodyTotalsByWallet sums non-returned custody amounts per wallet
// and currency, counting only records whose status equals status exactly.
// Wallets without a matching record are absent.
func CalculateCustodyTotalsByWallet(records []models.CashCustody, status models.CustodyStatus) CustodyTotals {
	totals := make(CustodyTotals)

	for _, c := range records {
		if c.Status != status || c.IsReturned {
			continue
		}
		if totals[c.WalletID] == nil {
			totals[c.WalletID] = make(map[string]decimal.Decimal)
		}
		totals[c.WalletID][c.CurrencyCode] = totals[c.WalletID][c.CurrencyCode].Add(c.Amount)
	}

	return totals
}

// Holdings flattens totals into a list sorted by wallet then currency
func (t CustodyTotals) Holdings() []models.WalletHolding {
	holdings := []models.WalletHolding{}
	for walletID, byCurrency := range t {
		for code, amount := range byCurrency {
			holdings = append(holdings, models.WalletHolding{WalletID: walletID, CurrencyCode: code, Amount: amount})
		}
	}

	sort.Slice(holdings, func(i, j int) bool {
		if holdings[i].WalletID != holdings[j].WalletID {
			return holdings[i].WalletID < holdings[j].WalletID
		}
		return holdings[i].CurrencyCode < holdings[j].CurrencyCode
	})
	return holdings
}

// Get returns the total for one wallet and currency, zero when absent
func (t CustodyTotals) Get(walletID, currencyCode string) decimal.Decimal {
	return t[walletID][currencyCode]
}

// ReconciliationLine compares what left a treasury wallet with what custody still accounts for
type ReconciliationLine struct {
	CashierID    string          `json:"cashierId"`
	WalletID     string          `json:"walletId"`
	CurrencyCode string          `json:"currencyCode"`
	Outstanding  decimal.Decimal `json:"outstanding"`
	Disbursed    decimal.Decimal `json:"disbursed"`
	Difference   decimal.Decimal `json:"difference"`
	Balanced     bool            `json:"balanced"`
}

// Reconcile derives, per (cashier, wallet, currency), the cash currently outside the
// treasury from the custody history in two independent ways: the sum of
// outstanding records (pending or approved, not returned) and the net of
// every disbursement minus every reversal (rejected or returned). Any
// difference means a record was changed without its balance movement, and
// the cashier on the line is the one holding the discrepancy.
func Reconcile(records []models.CashCustody) []ReconciliationLine {
	type key struct{ cashier, wallet, currency string }
	lines := make(map[key]*ReconciliationLine)

	for _, c := range records {
		k := key{c.CashierID, c.WalletID, c.CurrencyCode}
		line, ok := lines[k]
		if !ok {
			line = &ReconciliationLine{CashierID: c.CashierID, WalletID: c.WalletID, CurrencyCode: c.CurrencyCode}
			lines[k] = line
		}

		line.Disbursed = line.Disbursed.Add(c.Amount)
		switch {
		case c.Outstanding():
			line.Outstanding = line.Outstanding.Add(c.Amount)
		case c.Status == models.CustodyRejected || c.Status == models.CustodyReturned:
			line.Disbursed = line.Disbursed.Sub(c.Amount)
		}
	}

	result := make([]ReconciliationLine, 0, len(lines))
	for _, line := range lines {
		line.Difference = line.Disbursed.Sub(line.Outstanding)
		line.Balanced = line.Difference.IsZero()
		result = append(result, *line)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CashierID != result[j].CashierID {
			return result[i].CashierID < result[j].CashierID
		}
		if result[i].WalletID != result[j].WalletID {
			return result[i].WalletID < result[j].WalletID
		}
		return result[i].CurrencyCode < result[j].CurrencyCode
	})
	return result
}
