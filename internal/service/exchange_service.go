package service

import (
	"context"
	"fmt"

	"github.com/rongwang/exchange-desk-server/internal/analytics"
	"github.com/rongwang/exchange-desk-server/internal/cache"
	"github.com/rongwang/exchange-desk-server/internal/models"
	"github.com/rongwang/exchange-desk-server/internal/repository"
	"go.uber.org/zap"
)

// amountPlaces matches the NUMERIC(20,8) money columns
const amountPlaces = 8

// ExchangeService records cashier buy/sell transactions and posted manager prices
type ExchangeService struct {
	repo   repository.Repository
	prices cache.PriceCache
	logger *zap.Logger
}

func NewExchangeService(repo repository.Repository, prices cache.PriceCache, logger *zap.Logger) *ExchangeService {
	if prices == nil {
		prices = cache.NopPriceCache{}
	}
	return &ExchangeService{repo: repo, prices: prices, logger: logger}
}

// RecordTransaction takes fromAmount of fromCurrency into the wallet and pays
// out fromAmount*rate of toCurrency, rounded to 8 places.
func (s *ExchangeService) RecordTransaction(
	ctx context.Context,
	cashierID string,
	req models.RecordTransactionRequest,
) (*models.Transaction, error) {
	cashier, err := getActor(ctx, s.repo, cashierID)
	if err != nil {
		return nil, err
	}
	if err := requireRole(cashier, models.RoleCashier, models.RoleAdmin); err != nil {
		return nil, err
	}
	if req.Type != models.TransactionBuy && req.Type != models.TransactionSell {
		return nil, fmt.Errorf("%w: type must be buy or sell", models.ErrInvalidInput)
	}
	if err := requirePositive(req.FromAmount, "fromAmount"); err != nil {
		return nil, err
	}
	if err := requirePositive(req.Rate, "rate"); err != nil {
		return nil, err
	}

	from, to := normalizeCode(req.FromCurrency), normalizeCode(req.ToCurrency)
	if from == to {
		return nil, fmt.Errorf("%w: currencies must differ", models.ErrInvalidInput)
	}

	txn := &models.Transaction{
		CashierID:    cashier.ID,
		WalletID:     req.WalletID,
		Type:         req.Type,
		FromCurrency: from,
		ToCurrency:   to,
		FromAmount:   req.FromAmount,
		ToAmount:     req.FromAmount.Mul(req.Rate).Round(amountPlaces),
		Rate:         req.Rate,
		Notes:        req.Notes,
	}

	if err := s.repo.CreateTransaction(ctx, txn); err != nil {
		s.logger.Warn("record transaction failed",
			zap.String("cashier_id", cashier.ID),
			zap.String("wallet_id", req.WalletID),
			zap.String("pair", from+"/"+to),
			zap.Error(err))
		return nil, fmt.Errorf("error recording transaction: %w", err)
	}

	s.logger.Info("transaction recorded",
		zap.String("transaction_id", txn.ID),
		zap.String("type", string(txn.Type)),
		zap.String("from_amount", txn.FromAmount.String()),
		zap.String("to_amount", txn.ToAmount.String()))
	return txn, nil
}

// ListTransactions returns transactions newest first. Cashiers only see their own.
func (s *ExchangeService) ListTransactions(
	ctx context.Context,
	userID string,
	filter models.TransactionFilter,
) ([]models.Transaction, error) {
	user, err := getActor(ctx, s.repo, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsManager() && !user.HasRole(models.RoleTreasurer) {
		filter.CashierID = user.ID
	}

	txns, err := s.repo.ListTransactions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("error listing transactions: %w", err)
	}
	return txns, nil
}

// Analysis recomputes currency pair statistics over the filtered transactions
func (s *ExchangeService) Analysis(ctx context.Context, userID string, filter models.TransactionFilter) ([]analytics.PairStats, error) {
	txns, err := s.ListTransactions(ctx, userID, filter)
	if err != nil {
		return nil, err
	}
	return analytics.AnalyzeCurrencyPairs(txns), nil
}

// SetManagerPrice posts the buy/sell rate for a pair and drops the cached copy
func (s *ExchangeService) SetManagerPrice(
	ctx context.Context,
	managerID string,
	req models.SetManagerPriceRequest,
) (*models.ManagerPrice, error) {
	manager, err := getActor(ctx, s.repo, managerID)
	if err != nil {
		return nil, err
	}
	if err := requireManager(manager); err != nil {
		return nil, err
	}
	if err := requirePositive(req.BuyRate, "buyRate"); err != nil {
		return nil, err
	}
	if err := requirePositive(req.SellRate, "sellRate"); err != nil {
		return nil, err
	}

	price := &models.ManagerPrice{
		FromCurrency: normalizeCode(req.FromCurrency),
		ToCurrency:   normalizeCode(req.ToCurrency),
		BuyRate:      req.BuyRate,
		SellRate:     req.SellRate,
		UpdatedBy:    manager.ID,
	}
	if price.FromCurrency == price.ToCurrency {
		return nil, fmt.Errorf("%w: currencies must differ", models.ErrInvalidInput)
	}

	if err := s.repo.UpsertManagerPrice(ctx, price); err != nil {
		return nil, fmt.Errorf("error setting manager price: %w", err)
	}

	if err := s.prices.Delete(ctx, price.FromCurrency, price.ToCurrency); err != nil {
		s.logger.Warn("price cache invalidation failed",
			zap.String("pair", price.FromCurrency+"/"+price.ToCurrency),
			zap.Error(err))
	}

	s.logger.Info("manager price set",
		zap.String("pair", price.FromCurrency+"/"+price.ToCurrency),
		zap.String("buy_rate", price.BuyRate.String()),
		zap.String("sell_rate", price.SellRate.String()))
	return price, nil
}

// GetManagerPrice reads through the price cache. Cache failures fall back to the database.
func (s *ExchangeService) GetManagerPrice(ctx context.Context, fromCurrency, toCurrency string) (*models.ManagerPrice, error) {
	from, to := normalizeCode(fromCurrency), normalizeCode(toCurrency)

	cached, err := s.prices.Get(ctx, from, to)
	if err != nil {
		s.logger.Warn("price cache read failed", zap.String("pair", from+"/"+to), zap.Error(err))
	}
	if cached != nil {
		return cached, nil
	}

	price, err := s.repo.GetManagerPrice(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("error getting manager price: %w", err)
	}
	if price == nil {
		return nil, fmt.Errorf("%w: no price for %s/%s", models.ErrNotFound, from, to)
	}

	if err := s.prices.Set(ctx, price); err != nil {
		s.logger.Warn("price cache write failed", zap.String("pair", from+"/"+to), zap.Error(err))
	}
	return price, nil
}

func (s *ExchangeService) ListManagerPrices(ctx context.Context) ([]models.ManagerPrice, error) {
	prices, err := s.repo.ListManagerPrices(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing manager prices: %w", err)
	}
	return prices, nil
}
