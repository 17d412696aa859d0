package service

import (
	"context"
	"sync"
	"testing"

	"github.com/rongwang/exchange-desk-server/internal/models"
	"github.com/rongwang/exchange-desk-server/internal/realtime"
	"github.com/rongwang/exchange-desk-server/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events map[string][]realtime.Event
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{events: make(map[string][]realtime.Event)}
}

func (p *recordingPublisher) Publish(userID string, event realtime.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events[userID] = append(p.events[userID], event)
}

func (p *recordingPublisher) For(userID string) []realtime.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]realtime.Event(nil), p.events[userID]...)
}

type fixture struct {
	ctx       context.Context
	repo      *repository.MemoryRepository
	publisher *recordingPublisher
	svc       *Services
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := repository.NewMemoryRepository()
	pub := newRecordingPublisher()
	return &fixture{
		ctx:       context.Background(),
		repo:      repo,
		publisher: pub,
		svc:       New(repo, Options{JWTSecret: "test-secret-key", Publisher: pub}),
	}
}

// user creates a user holding role, or no role when role is empty
func (f *fixture) user(t *testing.T, name, role string) *models.User {
	t.Helper()
	u := &models.User{Email: name + "@example.com", Name: name, Password: "x"}
	require.NoError(t, f.repo.CreateUser(f.ctx, u))
	if role != "" {
		r, err := f.repo.GetRoleByName(f.ctx, role)
		require.NoError(t, err)
		require.NotNil(t, r)
		require.NoError(t, f.repo.SetUserRole(f.ctx, u.ID, r))
		u.RoleName = role
	}
	return u
}

// treasury creates a treasury wallet funded with amount of currency
func (f *fixture) treasury(t *testing.T, currency, amount string) *models.Wallet {
	t.Helper()
	w := &models.Wallet{Name: "Treasury", IsTreasury: true, CreatedBy: "system"}
	require.NoError(t, f.repo.CreateWallet(f.ctx, w, []string{currency}))
	_, err := f.repo.AdjustBalance(f.ctx, w.ID, currency, decimal.RequireFromString(amount))
	require.NoError(t, err)
	return w
}

func (f *fixture) balance(t *testing.T, walletID, currency string) decimal.Decimal {
	t.Helper()
	w, err := f.repo.GetWallet(f.ctx, walletID)
	require.NoError(t, err)
	require.NotNil(t, w)
	return w.Balances[currency]
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
