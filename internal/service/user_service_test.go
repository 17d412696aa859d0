package service

import (
	"testing"

	"github.com/rongwang/exchange-desk-server/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignRoleRequiresManager(t *testing.T) {
	f := newFixture(t)
	cashier := f.user(t, "cashier", models.RoleCashier)
	target := f.user(t, "target", "")

	_, err := f.svc.Users.AssignRoleToUser(f.ctx, cashier.ID, target.ID, models.RoleTreasurer)
	assert.ErrorIs(t, err, models.ErrForbidden)

	unchanged, err := f.svc.Users.GetUser(f.ctx, target.ID)
	require.NoError(t, err)
	assert.Empty(t, unchanged.RoleName)
	assert.Nil(t, unchanged.RoleID)
}

func TestAssignRoleWritesIDAndName(t *testing.T) {
	f := newFixture(t)
	manager := f.user(t, "manager", models.RoleManager)
	target := f.user(t, "target", "")

	updated, err := f.svc.Users.AssignRoleToUser(f.ctx, manager.ID, target.ID, "Treasurer")
	require.NoError(t, err)
	assert.Equal(t, models.RoleTreasurer, updated.RoleName)
	require.NotNil(t, updated.RoleID)

	role, err := f.repo.GetRoleByName(f.ctx, models.RoleTreasurer)
	require.NoError(t, err)
	assert.Equal(t, role.ID, *updated.RoleID)
}

func TestOnlyAdminGrantsAdmin(t *testing.T) {
	f := newFixture(t)
	manager := f.user(t, "manager", models.RoleManager)
	admin := f.user(t, "admin", models.RoleAdmin)
	target := f.user(t, "target", "")

	_, err := f.svc.Users.AssignRoleToUser(f.ctx, manager.ID, target.ID, models.RoleAdmin)
	assert.ErrorIs(t, err, models.ErrForbidden)

	updated, err := f.svc.Users.AssignRoleToUser(f.ctx, admin.ID, target.ID, models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, updated.RoleName)
}

func TestAssignUnknownRole(t *testing.T) {
	f := newFixture(t)
	admin := f.user(t, "admin", models.RoleAdmin)
	target := f.user(t, "target", "")

	_, err := f.svc.Users.AssignRoleToUser(f.ctx, admin.ID, target.ID, "janitor")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.svc.Users.AssignRoleToUser(f.ctx, admin.ID, "missing-user", models.RoleCashier)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCreateRole(t *testing.T) {
	f := newFixture(t)
	admin := f.user(t, "admin", models.RoleAdmin)
	cashier := f.user(t, "cashier", models.RoleCashier)

	_, err := f.svc.Users.CreateRole(f.ctx, cashier.ID, models.CreateRoleRequest{Name: "auditor"})
	assert.ErrorIs(t, err, models.ErrForbidden)

	role, err := f.svc.Users.CreateRole(f.ctx, admin.ID, models.CreateRoleRequest{Name: "Auditor", Permissions: []string{"read"}})
	require.NoError(t, err)
	assert.Equal(t, "auditor", role.Name)

	_, err = f.svc.Users.CreateRole(f.ctx, admin.ID, models.CreateRoleRequest{Name: "auditor"})
	assert.ErrorIs(t, err, models.ErrAlreadyExists)

	roles, err := f.svc.Users.ListRoles(f.ctx)
	require.NoError(t, err)
	assert.Len(t, roles, 5)
}

func TestListUsersByRole(t *testing.T) {
	f := newFixture(t)
	f.user(t, "c1", models.RoleCashier)
	f.user(t, "c2", models.RoleCashier)
	f.user(t, "t1", models.RoleTreasurer)

	cashiers, err := f.svc.Users.ListUsers(f.ctx, models.RoleCashier)
	require.NoError(t, err)
	assert.Len(t, cashiers, 2)

	all, err := f.svc.Users.ListUsers(f.ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
