package service

import (
	"context"
	"fmt"

	"github.com/rongwang/exchange-desk-server/internal/models"
	"github.com/rongwang/exchange-desk-server/internal/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DashboardService assembles the per-user summary screen
type DashboardService struct {
	repo    repository.Repository
	custody *CustodyService
	debts   *DebtService
	logger  *zap.Logger
}

func NewDashboardService(repo repository.Repository, custody *CustodyService, debts *DebtService, logger *zap.Logger) *DashboardService {
	return &DashboardService{repo: repo, custody: custody, debts: debts, logger: logger}
}

func (s *DashboardService) Summary(ctx context.Context, userID string) (*models.DashboardResponse, error) {
	wallets, err := s.repo.ListWallets(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing wallets: %w", err)
	}
	sums := make(map[string]decimal.Decimal)
	for _, w := range wallets {
		for code, balance := range w.Balances {
			sums[code] = sums[code].Add(balance)
		}
	}

	pending, err := s.repo.ListCustody(ctx, models.CustodyFilter{UserID: userID, Status: models.CustodyPending})
	if err != nil {
		return nil, fmt.Errorf("error listing custody: %w", err)
	}

	unread, err := s.repo.CountUnreadNotifications(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error counting notifications: %w", err)
	}

	debts, err := s.debts.OutstandingByCurrency(ctx)
	if err != nil {
		return nil, err
	}

	holdings, err := s.custody.Holdings(ctx, userID)
	if err != nil {
		return nil, err
	}

	txns, err := s.repo.ListTransactions(ctx, models.TransactionFilter{CashierID: userID})
	if err != nil {
		return nil, fmt.Errorf("error listing transactions: %w", err)
	}

	return &models.DashboardResponse{
		Status:               "success",
		WalletTotals:         totalsByCurrency(sums),
		PendingCustody:       len(pending),
		UnreadNotifications:  unread,
		OutstandingDebts:     debts,
		CustodyHoldings:      holdings,
		TransactionsRecorded: len(txns),
	}, nil
}
