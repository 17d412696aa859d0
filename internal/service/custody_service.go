package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx/types"
	"github.com/rongwang/exchange-desk-server/internal/analytics"
	"github.com/rongwang/exchange-desk-server/internal/models"
	"github.com/rongwang/exchange-desk-server/internal/realtime"
	"github.com/rongwang/exchange-desk-server/internal/repository"
	"github.com/rongwang/exchange-desk-server/internal/utils"
	"go.uber.org/zap"
)

// CustodyService runs the treasurer to cashier cash hand-off workflow.
// Every state change is a guarded update written together with its balance
// movement and notification.
type CustodyService struct {
	repo      repository.Repository
	publisher Publisher
	logger    *zap.Logger
}

func NewCustodyService(repo repository.Repository, publisher Publisher, logger *zap.Logger) *CustodyService {
	return &CustodyService{repo: repo, publisher: orNop(publisher), logger: logger}
}

// custodyRequestData is the action payload attached to a custody request
type custodyRequestData struct {
	CustodyID    string `json:"custody_id"`
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currency_code"`
	WalletID     string `json:"wallet_id"`
}

// Give moves cash out of a treasury wallet into a pending custody for a
// cashier. Retrying with the same request id returns the original record;
// reusing it for a different custody fails with ErrConflict.
func (s *CustodyService) Give(ctx context.Context, treasurerID string, req models.GiveCustodyRequest) (*models.CashCustody, error) {
	treasurer, err := getActor(ctx, s.repo, treasurerID)
	if err != nil {
		return nil, err
	}
	if err := requireRole(treasurer, models.RoleTreasurer, models.RoleAdmin); err != nil {
		return nil, err
	}
	if err := requirePositive(req.Amount, "amount"); err != nil {
		return nil, err
	}

	requestID := req.RequestID
	if requestID != nil && strings.TrimSpace(*requestID) == "" {
		requestID = nil
	}
	if requestID != nil {
		existing, err := s.repo.GetCustodyByRequestID(ctx, *requestID)
		if err != nil {
			return nil, fmt.Errorf("error checking custody request: %w", err)
		}
		if existing != nil {
			return matchReplay(existing, treasurer.ID, req)
		}
	}

	wallet, err := s.repo.GetWallet(ctx, req.WalletID)
	if err != nil {
		return nil, fmt.Errorf("error getting wallet: %w", err)
	}
	if wallet == nil {
		return nil, fmt.Errorf("%w: wallet not found", models.ErrNotFound)
	}
	if !wallet.IsTreasury {
		return nil, fmt.Errorf("%w: custody can only be given from a treasury wallet", models.ErrInvalidInput)
	}

	cashier, err := s.repo.GetUserByID(ctx, req.CashierID)
	if err != nil {
		return nil, fmt.Errorf("error getting cashier: %w", err)
	}
	if cashier == nil {
		return nil, fmt.Errorf("%w: cashier not found", models.ErrNotFound)
	}
	if !cashier.HasRole(models.RoleCashier) {
		return nil, fmt.Errorf("%w: recipient is not a cashier", models.ErrInvalidInput)
	}

	custody := &models.CashCustody{
		ID:                utils.GenerateUUID(),
		TreasurerID:       treasurer.ID,
		CashierID:         cashier.ID,
		WalletID:          wallet.ID,
		CurrencyCode:      normalizeCode(req.CurrencyCode),
		Amount:            req.Amount,
		Notes:             req.Notes,
		PreviousCustodyID: req.PreviousCustodyID,
		RequestID:         requestID,
	}

	data, err := json.Marshal(custodyRequestData{
		CustodyID:    custody.ID,
		Amount:       custody.Amount.String(),
		CurrencyCode: custody.CurrencyCode,
		WalletID:     custody.WalletID,
	})
	if err != nil {
		return nil, fmt.Errorf("error encoding action data: %w", err)
	}

	notification := &models.Notification{
		UserID:         cashier.ID,
		Type:           models.NotificationCustodyRequest,
		Title:          "Cash custody request",
		Message:        fmt.Sprintf("%s sent you %s %s", treasurer.Name, custody.Amount.String(), custody.CurrencyCode),
		RequiresAction: true,
		ActionData:     types.JSONText(data),
	}

	if err := s.repo.CreateCustody(ctx, custody, notification); err != nil {
		// a concurrent retry with the same request id won the insert
		if requestID != nil && errors.Is(err, models.ErrAlreadyExists) {
			if existing, getErr := s.repo.GetCustodyByRequestID(ctx, *requestID); getErr == nil && existing != nil {
				return matchReplay(existing, treasurer.ID, req)
			}
		}
		s.logger.Error("give custody failed",
			zap.String("treasurer_id", treasurer.ID),
			zap.String("cashier_id", cashier.ID),
			zap.String("wallet_id", wallet.ID),
			zap.Error(err))
		return nil, fmt.Errorf("error giving custody: %w", err)
	}

	s.logger.Info("custody given",
		zap.String("custody_id", custody.ID),
		zap.String("treasurer_id", treasurer.ID),
		zap.String("cashier_id", cashier.ID),
		zap.String("amount", custody.Amount.String()),
		zap.String("currency", custody.CurrencyCode))

	s.publisher.Publish(cashier.ID, realtime.NotificationEvent(realtime.EventNotificationCreated, notification))
	return custody, nil
}

func (s *CustodyService) mustGet(ctx context.Context, custodyID string) (*models.CashCustody, error) {
	custody, err := s.repo.GetCustody(ctx, custodyID)
	if err != nil {
		return nil, fmt.Errorf("error getting custody: %w", err)
	}
	if custody == nil {
		return nil, fmt.Errorf("%w: custody not found", models.ErrNotFound)
	}
	return custody, nil
}

// matchReplay returns existing when a retried Give carries the same request.
// A request id reused by another treasurer or for other cash is a conflict.
func matchReplay(existing *models.CashCustody, treasurerID string, req models.GiveCustodyRequest) (*models.CashCustody, error) {
	if existing.TreasurerID != treasurerID ||
		existing.CashierID != req.CashierID ||
		existing.WalletID != req.WalletID ||
		existing.CurrencyCode != normalizeCode(req.CurrencyCode) ||
		!existing.Amount.Equal(req.Amount) {
		return nil, fmt.Errorf("%w: request id already used for a different custody", models.ErrConflict)
	}
	return existing, nil
}

// transition applies t and publishes its notification to the recipient
func (s *CustodyService) transition(ctx context.Context, label string, t repository.CustodyTransition) (*models.CashCustody, error) {
	custody, resolved, err := s.repo.TransitionCustody(ctx, t)
	if err != nil {
		s.logger.Warn(label+" failed",
			zap.String("custody_id", t.CustodyID),
			zap.String("from", string(t.From)),
			zap.String("to", string(t.To)),
			zap.Error(err))
		return nil, fmt.Errorf("error %s: %w", label, err)
	}

	s.logger.Info(label,
		zap.String("custody_id", custody.ID),
		zap.String("status", string(custody.Status)))
	for i := range resolved {
		n := resolved[i]
		s.publisher.Publish(n.UserID, realtime.NotificationEvent(realtime.EventNotificationUpdated, &n))
	}
	if t.Notification != nil {
		s.publisher.Publish(t.Notification.UserID, realtime.NotificationEvent(realtime.EventNotificationCreated, t.Notification))
	}
	return custody, nil
}

// Approve accepts a pending custody. Only its cashier may approve.
func (s *CustodyService) Approve(ctx context.Context, cashierID, custodyID string) (*models.CashCustody, error) {
	custody, err := s.mustGet(ctx, custodyID)
	if err != nil {
		return nil, err
	}
	if custody.CashierID != cashierID {
		return nil, fmt.Errorf("%w: only the receiving cashier can approve", models.ErrForbidden)
	}

	return s.transition(ctx, "approving custody", repository.CustodyTransition{
		CustodyID: custody.ID,
		From:           models.CustodyPending,
		To:             models.CustodyApproved,
		ResolveRequest: true,
		Notification: &models.Notification{
			UserID:  custody.TreasurerID,
			Type:    models.NotificationCustodyApproval,
			Title:   "Custody approved",
			Message: fmt.Sprintf("Cashier accepted %s %s", custody.Amount.String(), custody.CurrencyCode),
		},
	})
}

// Reject declines a pending custody and puts the cash back into the treasury wallet
func (s *CustodyService) Reject(ctx context.Context, cashierID, custodyID, reason string) (*models.CashCustody, error) {
	custody, err := s.mustGet(ctx, custodyID)
	if err != nil {
		return nil, err
	}
	if custody.CashierID != cashierID {
		return nil, fmt.Errorf("%w: only the receiving cashier can reject", models.ErrForbidden)
	}

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "no reason given"
	}

	return s.transition(ctx, "rejecting custody", repository.CustodyTransition{
		CustodyID:      custody.ID,
		From:           models.CustodyPending,
		To:             models.CustodyRejected,
		AppendNotes:    "Rejection: " + reason,
		CreditTreasury: true,
		ResolveRequest: true,
		Notification: &models.Notification{
			UserID:  custody.TreasurerID,
			Type:    models.NotificationCustodyRejection,
			Title:   "Custody rejected",
			Message: fmt.Sprintf("Cashier rejected %s %s: %s", custody.Amount.String(), custody.CurrencyCode, reason),
		},
	})
}

// MarkReturned closes an approved custody and credits the treasury wallet.
// Either party on the record may mark it; the other is notified.
func (s *CustodyService) MarkReturned(ctx context.Context, userID, custodyID string) (*models.CashCustody, error) {
	custody, err := s.mustGet(ctx, custodyID)
	if err != nil {
		return nil, err
	}

	var counterparty string
	switch userID {
	case custody.TreasurerID:
		counterparty = custody.CashierID
	case custody.CashierID:
		counterparty = custody.TreasurerID
	default:
		return nil, fmt.Errorf("%w: only the treasurer or cashier can return custody", models.ErrForbidden)
	}

	return s.transition(ctx, "returning custody", repository.CustodyTransition{
		CustodyID:      custody.ID,
		From:           models.CustodyApproved,
		To:             models.CustodyReturned,
		MarkReturned:   true,
		CreditTreasury: true,
		ResolveRequest: true,
		Notification: &models.Notification{
			UserID:  counterparty,
			Type:    models.NotificationCustodyReturn,
			Title:   "Custody returned",
			Message: fmt.Sprintf("%s %s returned to the treasury", custody.Amount.String(), custody.CurrencyCode),
		},
	})
}

// Get returns a custody visible to userID: a party on the record or a manager
func (s *CustodyService) Get(ctx context.Context, userID, custodyID string) (*models.CashCustody, error) {
	user, err := getActor(ctx, s.repo, userID)
	if err != nil {
		return nil, err
	}
	custody, err := s.mustGet(ctx, custodyID)
	if err != nil {
		return nil, err
	}
	if custody.TreasurerID != userID && custody.CashierID != userID && !user.IsManager() {
		return nil, fmt.Errorf("%w: custody not found", models.ErrNotFound)
	}
	return custody, nil
}

// List returns custody records. Managers see every record unless the filter
// names a user; everyone else only sees records they are a party to.
func (s *CustodyService) List(ctx context.Context, userID string, filter models.CustodyFilter) ([]models.CashCustody, error) {
	user, err := getActor(ctx, s.repo, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsManager() {
		filter.UserID = userID
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown custody status %q", models.ErrInvalidInput, filter.Status)
	}

	records, err := s.repo.ListCustody(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("error listing custody: %w", err)
	}
	return records, nil
}

// Holdings sums the approved, unreturned custody a cashier holds per wallet and currency
func (s *CustodyService) Holdings(ctx context.Context, cashierID string) ([]models.WalletHolding, error) {
	records, err := s.repo.ListCustody(ctx, models.CustodyFilter{UserID: cashierID, Status: models.CustodyApproved})
	if err != nil {
		return nil, fmt.Errorf("error listing custody: %w", err)
	}

	held := records[:0]
	for _, c := range records {
		if c.CashierID == cashierID {
			held = append(held, c)
		}
	}
	return analytics.CalculateCustodyTotalsByWallet(held, models.CustodyApproved).Holdings(), nil
}

// Totals sums custody per wallet and currency for records whose status
// equals status exactly. Any string is accepted as the filter.
func (s *CustodyService) Totals(ctx context.Context, callerID string, status models.CustodyStatus) ([]models.WalletHolding, error) {
	caller, err := getActor(ctx, s.repo, callerID)
	if err != nil {
		return nil, err
	}
	if err := requireRole(caller, models.RoleTreasurer, models.RoleManager, models.RoleAdmin); err != nil {
		return nil, err
	}

	records, err := s.repo.ListCustody(ctx, models.CustodyFilter{})
	if err != nil {
		return nil, fmt.Errorf("error listing custody: %w", err)
	}
	return analytics.CalculateCustodyTotalsByWallet(records, status).Holdings(), nil
}

// Reconciliation checks every (cashier, wallet, currency) for custody records whose
// state disagrees with the balance movements they should have caused
func (s *CustodyService) Reconciliation(ctx context.Context, callerID string) ([]analytics.ReconciliationLine, error) {
	caller, err := getActor(ctx, s.repo, callerID)
	if err != nil {
		return nil, err
	}
	if err := requireManager(caller); err != nil {
		return nil, err
	}

	records, err := s.repo.ListCustody(ctx, models.CustodyFilter{})
	if err != nil {
		return nil, fmt.Errorf("error listing custody: %w", err)
	}

	lines := analytics.Reconcile(records)
	for _, line := range lines {
		if !line.Balanced {
			s.logger.Warn("custody out of balance",
				zap.String("cashier_id", line.CashierID),
				zap.String("wallet_id", line.WalletID),
				zap.String("currency", line.CurrencyCode),
				zap.String("difference", line.Difference.String()))
		}
	}
	return lines, nil
}
