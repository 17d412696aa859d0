package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rongwang/exchange-desk-server/internal/models"
	"github.com/rongwang/exchange-desk-server/internal/realtime"
	"github.com/rongwang/exchange-desk-server/internal/repository"
	"go.uber.org/zap"
)

// ActionHandler performs an action on the record a notification refers to
type ActionHandler func(ctx context.Context, n *models.Notification, data json.RawMessage) error

type actionKey struct {
	notificationType string
	action           string
}

// NotificationService stores notifications and dispatches the actions they offer
type NotificationService struct {
	repo      repository.Repository
	publisher Publisher
	logger    *zap.Logger
	handlers  map[actionKey]ActionHandler
}

// NewNotificationService wires the custody request actions
func NewNotificationService(repo repository.Repository, custody *CustodyService, publisher Publisher, logger *zap.Logger) *NotificationService {
	s := &NotificationService{
		repo:      repo,
		publisher: orNop(publisher),
		logger:    logger,
		handlers:  make(map[actionKey]ActionHandler),
	}

	s.Register(models.NotificationCustodyRequest, models.ActionApprove,
		func(ctx context.Context, n *models.Notification, _ json.RawMessage) error {
			_, err := custody.Approve(ctx, n.UserID, *n.ReferenceID)
			return err
		})
	s.Register(models.NotificationCustodyRequest, models.ActionReject,
		func(ctx context.Context, n *models.Notification, data json.RawMessage) error {
			var payload struct {
				Reason string `json:"reason"`
			}
			if len(data) > 0 {
				if err := json.Unmarshal(data, &payload); err != nil {
					return fmt.Errorf("%w: invalid action data", models.ErrInvalidInput)
				}
			}
			_, err := custody.Reject(ctx, n.UserID, *n.ReferenceID, payload.Reason)
			return err
		})

	return s
}

// Register adds or replaces the handler for a notification type and action
func (s *NotificationService) Register(notificationType, action string, h ActionHandler) {
	s.handlers[actionKey{notificationType, action}] = h
}

func (s *NotificationService) Create(ctx context.Context, n *models.Notification) error {
	if n.UserID == "" || n.Type == "" {
		return fmt.Errorf("%w: notification needs a user and a type", models.ErrInvalidInput)
	}
	if err := s.repo.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("error creating notification: %w", err)
	}

	s.publisher.Publish(n.UserID, realtime.NotificationEvent(realtime.EventNotificationCreated, n))
	return nil
}

func (s *NotificationService) List(ctx context.Context, userID string, unreadOnly bool) ([]models.Notification, error) {
	notifications, err := s.repo.ListNotifications(ctx, userID, unreadOnly)
	if err != nil {
		return nil, fmt.Errorf("error listing notifications: %w", err)
	}
	return notifications, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int, error) {
	count, err := s.repo.CountUnreadNotifications(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("error counting notifications: %w", err)
	}
	return count, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) error {
	if err := s.repo.MarkNotificationRead(ctx, userID, notificationID); err != nil {
		return fmt.Errorf("error marking notification read: %w", err)
	}
	s.publishUpdated(ctx, notificationID)
	return nil
}

// MarkAllRead marks every unread notification of userID and returns how many changed
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int, error) {
	count, err := s.repo.MarkAllNotificationsRead(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("error marking notifications read: %w", err)
	}
	return count, nil
}

// TakeAction runs the handler registered for the notification's type and
// action, then marks the notification actioned. The handler's own guarded
// update keeps a concurrent second action from applying twice.
func (s *NotificationService) TakeAction(
	ctx context.Context,
	userID string,
	notificationID string,
	req models.NotificationActionRequest,
) (*models.Notification, error) {
	n, err := s.repo.GetNotification(ctx, notificationID)
	if err != nil {
		return nil, fmt.Errorf("error getting notification: %w", err)
	}
	if n == nil || n.UserID != userID {
		return nil, fmt.Errorf("%w: notification not found", models.ErrNotFound)
	}
	if !n.RequiresAction {
		return nil, fmt.Errorf("%w: notification does not require action", models.ErrInvalidInput)
	}
	if n.ActionTaken {
		return nil, fmt.Errorf("%w: action already taken", models.ErrConflict)
	}

	handler, ok := s.handlers[actionKey{n.Type, req.Action}]
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", models.ErrUnknownAction, req.Action, n.Type)
	}
	if n.ReferenceID == nil {
		return nil, fmt.Errorf("%w: notification has no reference", models.ErrInvalidInput)
	}

	if err := handler(ctx, n, req.Data); err != nil {
		s.logger.Warn("notification action failed",
			zap.String("notification_id", n.ID),
			zap.String("type", n.Type),
			zap.String("action", req.Action),
			zap.Error(err))
		return nil, err
	}

	// handlers that resolve their own request notification leave nothing to mark
	alreadyResolved := false
	if err := s.repo.MarkNotificationActioned(ctx, n.ID); err != nil {
		if !errors.Is(err, models.ErrConflict) {
			return nil, fmt.Errorf("error marking notification actioned: %w", err)
		}
		alreadyResolved = true
	}

	s.logger.Info("notification actioned",
		zap.String("notification_id", n.ID),
		zap.String("action", req.Action),
		zap.String("user_id", userID))

	updated, err := s.repo.GetNotification(ctx, n.ID)
	if err != nil {
		return nil, fmt.Errorf("error getting notification: %w", err)
	}
	if updated != nil && !alreadyResolved {
		s.publisher.Publish(userID, realtime.NotificationEvent(realtime.EventNotificationUpdated, updated))
	}
	return updated, nil
}

func (s *NotificationService) publishUpdated(ctx context.Context, notificationID string) {
	n, err := s.repo.GetNotification(ctx, notificationID)
	if err != nil || n == nil {
		return
	}
	s.publisher.Publish(n.UserID, realtime.NotificationEvent(realtime.EventNotificationUpdated, n))
}
