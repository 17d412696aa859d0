package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rongwang/exchange-desk-server/internal/models"
	"github.com/rongwang/exchange-desk-server/internal/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DebtService tracks IOUs recorded against wallets
type DebtService struct {
	repo   repository.Repository
	logger *zap.Logger
}

func NewDebtService(repo repository.Repository, logger *zap.Logger) *DebtService {
	return &DebtService{repo: repo, logger: logger}
}

// Create records a debt. Any staff role may record one.
func (s *DebtService) Create(ctx context.Context, userID string, req models.CreateDebtRequest) (*models.Debt, error) {
	user, err := getActor(ctx, s.repo, userID)
	if err != nil {
		return nil, err
	}
	if err := requireRole(user, models.RoleCashier, models.RoleTreasurer, models.RoleManager, models.RoleAdmin); err != nil {
		s.logger.Warn("create debt denied", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}
	if err := requirePositive(req.Amount, "amount"); err != nil {
		return nil, err
	}

	wallet, err := s.repo.GetWallet(ctx, req.WalletID)
	if err != nil {
		return nil, fmt.Errorf("error getting wallet: %w", err)
	}
	if wallet == nil {
		return nil, fmt.Errorf("%w: wallet not found", models.ErrNotFound)
	}

	debt := &models.Debt{
		WalletID:     wallet.ID,
		CurrencyCode: normalizeCode(req.CurrencyCode),
		Amount:       req.Amount,
		DebtorName:   strings.TrimSpace(req.DebtorName),
		CreditorName: strings.TrimSpace(req.CreditorName),
		Notes:        req.Notes,
		CreatedBy:    user.ID,
	}
	if err := s.repo.CreateDebt(ctx, debt); err != nil {
		return nil, fmt.Errorf("error creating debt: %w", err)
	}

	s.logger.Info("debt recorded", zap.String("debt_id", debt.ID), zap.String("wallet_id", debt.WalletID))
	return debt, nil
}

// authorize loads debt id and checks that the caller created it or
// holds a treasurer, manager or admin role
func (s *DebtService) authorize(ctx context.Context, callerID, id string) (*models.Debt, error) {
	user, err := getActor(ctx, s.repo, callerID)
	if err != nil {
		return nil, err
	}

	debt, err := s.repo.GetDebt(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("error getting debt: %w", err)
	}
	if debt == nil {
		return nil, fmt.Errorf("%w: debt not found", models.ErrNotFound)
	}

	if debt.CreatedBy != user.ID && !user.HasRole(models.RoleTreasurer, models.RoleManager, models.RoleAdmin) {
		return nil, fmt.Errorf("%w: only the creator or a treasurer can change this debt", models.ErrForbidden)
	}
	return debt, nil
}

// MarkPaid settles a debt once; paying it again is a conflict
func (s *DebtService) MarkPaid(ctx context.Context, callerID, id string) (*models.Debt, error) {
	if _, err := s.authorize(ctx, callerID, id); err != nil {
		s.logger.Warn("pay debt failed", zap.String("debt_id", id), zap.String("user_id", callerID), zap.Error(err))
		return nil, err
	}
	if err := s.repo.MarkDebtPaid(ctx, id); err != nil {
		s.logger.Warn("pay debt failed", zap.String("debt_id", id), zap.String("user_id", callerID), zap.Error(err))
		return nil, fmt.Errorf("error marking debt paid: %w", err)
	}

	debt, err := s.repo.GetDebt(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("error getting debt: %w", err)
	}
	if debt == nil {
		return nil, fmt.Errorf("%w: debt not found", models.ErrNotFound)
	}
	s.logger.Info("debt paid", zap.String("debt_id", id), zap.String("user_id", callerID))
	return debt, nil
}

func (s *DebtService) Delete(ctx context.Context, callerID, id string) error {
	if _, err := s.authorize(ctx, callerID, id); err != nil {
		s.logger.Warn("delete debt failed", zap.String("debt_id", id), zap.String("user_id", callerID), zap.Error(err))
		return err
	}
	if err := s.repo.DeleteDebt(ctx, id); err != nil {
		s.logger.Warn("delete debt failed", zap.String("debt_id", id), zap.String("user_id", callerID), zap.Error(err))
		return fmt.Errorf("error deleting debt: %w", err)
	}
	s.logger.Info("debt deleted", zap.String("debt_id", id), zap.String("user_id", callerID))
	return nil
}

func (s *DebtService) List(ctx context.Context, filter models.DebtFilter) ([]models.Debt, error) {
	debts, err := s.repo.ListDebts(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("error listing debts: %w", err)
	}
	return debts, nil
}

// OutstandingByCurrency sums unpaid debts per currency
func (s *DebtService) OutstandingByCurrency(ctx context.Context) ([]models.CurrencyTotal, error) {
	unpaid := false
	debts, err := s.List(ctx, models.DebtFilter{Paid: &unpaid})
	if err != nil {
		return nil, err
	}

	sums := make(map[string]decimal.Decimal)
	for _, d := range debts {
		sums[d.CurrencyCode] = sums[d.CurrencyCode].Add(d.Amount)
	}
	return totalsByCurrency(sums), nil
}
