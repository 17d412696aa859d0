package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rongwang/exchange-desk-server/internal/cache"
	"github.com/rongwang/exchange-desk-server/internal/models"
	"github.com/rongwang/exchange-desk-server/internal/realtime"
	"github.com/rongwang/exchange-desk-server/internal/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Publisher delivers realtime events to the open connections of one user
type Publisher interface {
	Publish(userID string, event realtime.Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, realtime.Event) {}

func orNop(p Publisher) Publisher {
	if p == nil {
		return nopPublisher{}
	}
	return p
}

// getActor loads the authenticated caller. A token for a deleted user is unauthorized.
func getActor(ctx context.Context, repo repository.Repository, userID string) (*models.User, error) {
	user, err := repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error getting user: %w", err)
	}
	if user == nil {
		return nil, models.ErrUnauthorized
	}
	return user, nil
}

func requireRole(user *models.User, roles ...string) error {
	if !user.HasRole(roles...) {
		return fmt.Errorf("%w: requires role %s", models.ErrForbidden, strings.Join(roles, " or "))
	}
	return nil
}

func requireManager(user *models.User) error {
	return requireRole(user, models.RoleManager, models.RoleAdmin)
}

func requirePositive(amount decimal.Decimal, field string) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s must be positive", models.ErrInvalidInput, field)
	}
	return nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// totalsByCurrency flattens a currency map into a list sorted by code
func totalsByCurrency(sums map[string]decimal.Decimal) []models.CurrencyTotal {
	totals := make([]models.CurrencyTotal, 0, len(sums))
	for code, amount := range sums {
		totals = append(totals, models.CurrencyTotal{CurrencyCode: code, Amount: amount})
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].CurrencyCode < totals[j].CurrencyCode })
	return totals
}

// Options configures New
type Options struct {
	JWTSecret     string
	TokenDuration time.Duration
	Publisher     Publisher
	Prices        cache.PriceCache
	Logger        *zap.Logger
}

// Services bundles every business service over one repository
type Services struct {
	Auth          *AuthService
	Users         *UserService
	Wallets       *WalletService
	Custody       *CustodyService
	Notifications *NotificationService
	Debts         *DebtService
	Exchange      *ExchangeService
	Dashboard     *DashboardService
}

// New constructs all services over repo
func New(repo repository.Repository, opts Options) *Services {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	custody := NewCustodyService(repo, opts.Publisher, logger.Named("custody"))
	debts := NewDebtService(repo, logger.Named("debts"))

	return &Services{
		Auth:          NewAuthService(repo, opts.JWTSecret, opts.TokenDuration, logger.Named("auth")),
		Users:         NewUserService(repo, logger.Named("users")),
		Wallets:       NewWalletService(repo, logger.Named("wallets")),
		Custody:       custody,
		Notifications: NewNotificationService(repo, custody, opts.Publisher, logger.Named("notifications")),
		Debts:         debts,
		Exchange:      NewExchangeService(repo, opts.Prices, logger.Named("exchange")),
		Dashboard:     NewDashboardService(repo, custody, debts, logger.Named("dashboard")),
	}
}
