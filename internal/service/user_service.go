package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/rongwang/exchange-desk-server/internal/models"
	"github.com/rongwang/exchange-desk-server/internal/repository"
	"go.uber.org/zap"
)

// UserService manages users and their roles
type UserService struct {
	repo   repository.Repository
	logger *zap.Logger
}

func NewUserService(repo repository.Repository, logger *zap.Logger) *UserService {
	return &UserService{repo: repo, logger: logger}
}

// Me returns the authenticated user
func (s *UserService) Me(ctx context.Context, userID string) (*models.User, error) {
	return getActor(ctx, s.repo, userID)
}

func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("error getting user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user not found", models.ErrNotFound)
	}
	return user, nil
}

// ListUsers lists all users, or only those holding roleName when it is set
func (s *UserService) ListUsers(ctx context.Context, roleName string) ([]models.User, error) {
	users, err := s.repo.ListUsers(ctx, roleName)
	if err != nil {
		return nil, fmt.Errorf("error listing users: %w", err)
	}
	return users, nil
}

func (s *UserService) ListRoles(ctx context.Context) ([]models.Role, error) {
	roles, err := s.repo.ListRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing roles: %w", err)
	}
	return roles, nil
}

func (s *UserService) CreateRole(ctx context.Context, callerID string, req models.CreateRoleRequest) (*models.Role, error) {
	caller, err := getActor(ctx, s.repo, callerID)
	if err != nil {
		return nil, err
	}
	if err := requireManager(caller); err != nil {
		return nil, err
	}

	name := strings.ToLower(strings.TrimSpace(req.Name))
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", models.ErrInvalidInput)
	}

	permissions := pq.StringArray(req.Permissions)
	if permissions == nil {
		permissions = pq.StringArray{}
	}
	role := &models.Role{
		Name:        name,
		Description: req.Description,
		Permissions: permissions,
	}
	if err := s.repo.CreateRole(ctx, role); err != nil {
		return nil, fmt.Errorf("error creating role: %w", err)
	}

	s.logger.Info("role created", zap.String("role", role.Name), zap.String("user_id", callerID))
	return role, nil
}

// AssignRoleToUser sets a user's role. The caller must be a manager or admin,
// and only an admin may grant admin.
func (s *UserService) AssignRoleToUser(ctx context.Context, callerID, userID, roleName string) (*models.User, error) {
	caller, err := getActor(ctx, s.repo, callerID)
	if err != nil {
		return nil, err
	}
	if !caller.IsManager() {
		s.logger.Warn("role assignment denied",
			zap.String("caller_id", callerID),
			zap.String("user_id", userID),
			zap.String("role", roleName))
		return nil, fmt.Errorf("%w: only managers can assign roles", models.ErrForbidden)
	}

	role, err := s.repo.GetRoleByName(ctx, strings.ToLower(strings.TrimSpace(roleName)))
	if err != nil {
		return nil, fmt.Errorf("error getting role: %w", err)
	}
	if role == nil {
		return nil, fmt.Errorf("%w: role %q not found", models.ErrNotFound, roleName)
	}
	if role.Name == models.RoleAdmin && !caller.HasRole(models.RoleAdmin) {
		return nil, fmt.Errorf("%w: only admins can grant admin", models.ErrForbidden)
	}

	if err := s.repo.SetUserRole(ctx, userID, role); err != nil {
		s.logger.Error("assign role failed", zap.String("user_id", userID), zap.String("role", role.Name), zap.Error(err))
		return nil, fmt.Errorf("error assigning role: %w", err)
	}

	s.logger.Info("role assigned",
		zap.String("caller_id", callerID),
		zap.String("user_id", userID),
		zap.String("role", role.Name))
	return s.GetUser(ctx, userID)
}
