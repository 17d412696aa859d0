package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rongwang/exchange-desk-server/internal/models"
	"github.com/rongwang/exchange-desk-server/internal/repository"
	"go.uber.org/zap"
)

// WalletService manages currencies, wallets and their balances
type WalletService struct {
	repo   repository.Repository
	logger *zap.Logger
}

func NewWalletService(repo repository.Repository, logger *zap.Logger) *WalletService {
	return &WalletService{repo: repo, logger: logger}
}

// Currency operations
func (s *WalletService) CreateCurrency(ctx context.Context, callerID string, req models.CreateCurrencyRequest) (*models.CurrencyType, error) {
	caller, err := getActor(ctx, s.repo, callerID)
	if err != nil {
		return nil, err
	}
	if err := requireManager(caller); err != nil {
		return nil, err
	}

	currency := &models.CurrencyType{
		Code:     normalizeCode(req.Code),
		Name:     strings.TrimSpace(req.Name),
		Symbol:   req.Symbol,
		IsActive: true,
	}
	if err := s.repo.CreateCurrency(ctx, currency); err != nil {
		return nil, fmt.Errorf("error creating currency: %w", err)
	}
	return currency, nil
}

func (s *WalletService) ListCurrencies(ctx context.Context) ([]models.CurrencyType, error) {
	currencies, err := s.repo.ListCurrencies(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing currencies: %w", err)
	}
	return currencies, nil
}

// Wallet operations
func (s *WalletService) CreateWallet(ctx context.Context, callerID string, req models.CreateWalletRequest) (*models.Wallet, error) {
	caller, err := getActor(ctx, s.repo, callerID)
	if err != nil {
		return nil, err
	}
	if err := requireManager(caller); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: wallet name is required", models.ErrInvalidInput)
	}

	seen := make(map[string]bool, len(req.Currencies))
	codes := make([]string, 0, len(req.Currencies))
	for _, code := range req.Currencies {
		code = normalizeCode(code)
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		codes = append(codes, code)
	}

	wallet := &models.Wallet{
		Name:       name,
		IsTreasury: req.IsTreasury,
		CreatedBy:  callerID,
	}
	if err := s.repo.CreateWallet(ctx, wallet, codes); err != nil {
		s.logger.Error("create wallet failed", zap.String("name", name), zap.Error(err))
		return nil, fmt.Errorf("error creating wallet: %w", err)
	}

	s.logger.Info("wallet created",
		zap.String("wallet_id", wallet.ID),
		zap.Bool("is_treasury", wallet.IsTreasury),
		zap.Strings("currencies", codes))
	return wallet, nil
}

func (s *WalletService) GetWallet(ctx context.Context, id string) (*models.Wallet, error) {
	wallet, err := s.repo.GetWallet(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("error getting wallet: %w", err)
	}
	if wallet == nil {
		return nil, fmt.Errorf("%w: wallet not found", models.ErrNotFound)
	}
	return wallet, nil
}

func (s *WalletService) ListWallets(ctx context.Context) ([]models.Wallet, error) {
	wallets, err := s.repo.ListWallets(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing wallets: %w", err)
	}
	return wallets, nil
}

// canMoveFunds reports whether the caller may deposit, withdraw or transfer
func canMoveFunds(user *models.User) error {
	return requireRole(user, models.RoleTreasurer, models.RoleManager, models.RoleAdmin)
}

// Deposit credits a wallet and returns it with updated balances
func (s *WalletService) Deposit(ctx context.Context, callerID, walletID string, req models.WalletAmountRequest) (*models.Wallet, error) {
	caller, err := getActor(ctx, s.repo, callerID)
	if err != nil {
		return nil, err
	}
	if err := canMoveFunds(caller); err != nil {
		return nil, err
	}
	if err := requirePositive(req.Amount, "amount"); err != nil {
		return nil, err
	}
	if _, err := s.GetWallet(ctx, walletID); err != nil {
		return nil, err
	}

	code := normalizeCode(req.CurrencyCode)
	if _, err := s.repo.AdjustBalance(ctx, walletID, code, req.Amount); err != nil {
		s.logger.Error("deposit failed", zap.String("wallet_id", walletID), zap.String("currency", code), zap.Error(err))
		return nil, fmt.Errorf("error depositing: %w", err)
	}

	s.logger.Info("deposit",
		zap.String("wallet_id", walletID),
		zap.String("currency", code),
		zap.String("amount", req.Amount.String()),
		zap.String("user_id", callerID))
	return s.GetWallet(ctx, walletID)
}

// Withdraw debits a wallet. The balance check happens in the same statement as the debit.
func (s *WalletService) Withdraw(ctx context.Context, callerID, walletID string, req models.WalletAmountRequest) (*models.Wallet, error) {
	caller, err := getActor(ctx, s.repo, callerID)
	if err != nil {
		return nil, err
	}
	if err := canMoveFunds(caller); err != nil {
		return nil, err
	}
	if err := requirePositive(req.Amount, "amount"); err != nil {
		return nil, err
	}

	code := normalizeCode(req.CurrencyCode)
	if _, err := s.repo.AdjustBalance(ctx, walletID, code, req.Amount.Neg()); err != nil {
		s.logger.Warn("withdraw failed", zap.String("wallet_id", walletID), zap.String("currency", code), zap.Error(err))
		return nil, fmt.Errorf("error withdrawing: %w", err)
	}

	s.logger.Info("withdraw",
		zap.String("wallet_id", walletID),
		zap.String("currency", code),
		zap.String("amount", req.Amount.String()),
		zap.String("user_id", callerID))
	return s.GetWallet(ctx, walletID)
}

// Transfer moves an amount between two wallets in one transaction
func (s *WalletService) Transfer(ctx context.Context, callerID string, req models.TransferRequest) error {
	caller, err := getActor(ctx, s.repo, callerID)
	if err != nil {
		return err
	}
	if err := canMoveFunds(caller); err != nil {
		return err
	}
	if err := requirePositive(req.Amount, "amount"); err != nil {
		return err
	}
	if req.FromWalletID == req.ToWalletID {
		return fmt.Errorf("%w: source and destination wallets are the same", models.ErrInvalidInput)
	}

	code := normalizeCode(req.CurrencyCode)
	if err := s.repo.Transfer(ctx, req.FromWalletID, req.ToWalletID, code, req.Amount); err != nil {
		s.logger.Warn("transfer failed",
			zap.String("from_wallet_id", req.FromWalletID),
			zap.String("to_wallet_id", req.ToWalletID),
			zap.String("currency", code),
			zap.Error(err))
		return fmt.Errorf("error transferring: %w", err)
	}

	s.logger.Info("transfer",
		zap.String("from_wallet_id", req.FromWalletID),
		zap.String("to_wallet_id", req.ToWalletID),
		zap.String("currency", code),
		zap.String("amount", req.Amount.String()))
	return nil
}
