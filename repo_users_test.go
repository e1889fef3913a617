package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/tellwise/go-auth"
	"github.com/goliatone/go-repository-bun"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsersRegisterGrantsDefaultRoles(t *testing.T) {
	repo, db := setupTestDB(t)
	ctx := context.Background()

	user := registerTestUser(t, repo, "signup@example.com")

	assert.NotEmpty(t, user.ID)
	assert.Equal(t, auth.UserStatusPending, user.Status)
	assert.NotEmpty(t, user.Username)

	count, err := db.NewSelect().
		Model((*auth.UserRole)(nil)).
		Where("user_id = ?", user.ID).
		Where("role_id = ?", auth.RoleUser).
		Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestUsersRegisterDuplicateEmail(t *testing.T) {
	repo, _ := setupTestDB(t)

	registerTestUser(t, repo, "taken@example.com")

	_, err := repo.Users().Register(context.Background(), &auth.User{
		FirstName:    "Second",
		Email:        "taken@example.com",
		PasswordHash: "x",
	})
	require.ErrorIs(t, err, auth.ErrDuplicateEmail)
}

func TestUsersRegisterRollsBackOnRoleGrantFailure(t *testing.T) {
	repo, db := setupTestDB(t)
	ctx := context.Background()

	// make the role grant fail after the user insert succeeds
	_, err := db.Exec(`DROP TABLE user_roles;`)
	require.NoError(t, err)

	hash, err := auth.HashPassword("password12345")
	require.NoError(t, err)

	_, err = repo.Users().Register(ctx, &auth.User{
		FirstName:    "Orphan",
		Email:        "orphan@example.com",
		PasswordHash: hash,
	})
	require.Error(t, err)

	count, err := db.NewSelect().Model((*auth.User)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestUsersGeneratedUsernamesDoNotCollide(t *testing.T) {
	repo, _ := setupTestDB(t)

	// same local part, different domains
	a := registerTestUser(t, repo, "pat@one.example.com")
	b := registerTestUser(t, repo, "pat@two.example.com")

	assert.NotEqual(t, a.Username, b.Username)
	assert.Contains(t, a.Username, "pat-")
}

func TestUsersGetByEmail(t *testing.T) {
	repo, _ := setupTestDB(t)
	ctx := context.Background()

	created := registerTestUser(t, repo, "lookup@example.com")

	found, err := repo.Users().GetByEmail(ctx, "lookup@example.com")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	// leading/trailing whitespace is tolerated
	found, err = repo.Users().GetByEmail(ctx, "  lookup@example.com ")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = repo.Users().GetByEmail(ctx, "missing@example.com")
	require.Error(t, err)
	assert.True(t, repository.IsRecordNotFound(err))
}

func TestUsersGetByEmailWithAccess(t *testing.T) {
	repo, db := setupTestDB(t)
	ctx := context.Background()

	user := registerTestUser(t, repo, "access@example.com")

	// elevate to business admin and add a granted override that
	// duplicates a role permission, plus a revoked override
	require.NoError(t, repo.Users().GrantRoleTx(ctx, db, user.ID, auth.RoleBusinessAdmin))

	business, err := repo.Businesses().Create(ctx, &auth.Business{
		Name:    "Tasting Room",
		Email:   "biz@example.com",
		OwnerID: user.ID,
	})
	require.NoError(t, err)

	var extra auth.Permission
	err = db.NewSelect().Model(&extra).Where("name = ?", "feedback.read").Scan(ctx)
	require.NoError(t, err)

	_, err = db.NewInsert().Model(&auth.UserPermission{
		UserID:       user.ID,
		PermissionID: extra.ID,
		Granted:      true,
	}).Exec(ctx)
	require.NoError(t, err)

	var manage auth.Permission
	err = db.NewSelect().Model(&manage).Where("name = ?", "business.members.invite").Scan(ctx)
	require.NoError(t, err)

	_, err = db.NewInsert().Model(&auth.UserPermission{
		UserID:       user.ID,
		PermissionID: manage.ID,
		Granted:      false,
	}).Exec(ctx)
	require.NoError(t, err)

	profile, err := repo.Users().GetByEmailWithAccess(ctx, "access@example.com")
	require.NoError(t, err)

	assert.Equal(t, user.ID, profile.User.ID)
	assert.True(t, profile.HasRole(auth.RoleUser))
	assert.True(t, profile.HasRole(auth.RoleBusinessAdmin))
	require.NotNil(t, profile.Business)
	assert.Equal(t, business.ID, profile.Business.ID)

	// permissions are deduplicated across roles and overrides
	names := map[string]int{}
	for _, perm := range profile.Permissions {
		names[perm.Name]++
	}
	assert.Equal(t, 1, names["feedback.read"])
	assert.Equal(t, 1, names["business.manage"])
	assert.Equal(t, 1, names["business.members.invite"])

	assert.True(t, profile.HasPermission("business.manage"))
}

func TestUsersGrantRoleIsIdempotent(t *testing.T) {
	repo, db := setupTestDB(t)
	ctx := context.Background()

	user := registerTestUser(t, repo, "grants@example.com")

	require.NoError(t, repo.Users().GrantRoleTx(ctx, db, user.ID, auth.RoleManager))
	require.NoError(t, repo.Users().GrantRoleTx(ctx, db, user.ID, auth.RoleManager))

	count, err := db.NewSelect().
		Model((*auth.UserRole)(nil)).
		Where("user_id = ?", user.ID).
		Where("role_id = ?", auth.RoleManager).
		Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestUsersGrantRoleRejectsUnknownRole(t *testing.T) {
	repo, db := setupTestDB(t)

	user := registerTestUser(t, repo, "badrole@example.com")

	err := repo.Users().GrantRoleTx(context.Background(), db, user.ID, 99)
	require.Error(t, err)
}

func TestUsersUpdateStatusTransitions(t *testing.T) {
	repo, _ := setupTestDB(t)
	ctx := context.Background()

	user := registerTestUser(t, repo, "status@example.com")
	require.Equal(t, auth.UserStatusPending, user.Status)

	now := time.Now()
	activated, err := repo.Users().UpdateStatus(ctx, user.ID, auth.UserStatusActive, auth.WithVerifiedAt(&now))
	require.NoError(t, err)
	assert.Equal(t, auth.UserStatusActive, activated.Status)
	require.NotNil(t, activated.VerifiedAt)

	// pending -> active is one way
	_, err = repo.Users().UpdateStatus(ctx, user.ID, auth.UserStatusPending)
	require.Error(t, err)

	deactivated, err := repo.Users().UpdateStatus(ctx, user.ID, auth.UserStatusInactive)
	require.NoError(t, err)
	assert.Equal(t, auth.UserStatusInactive, deactivated.Status)

	reinstated, err := repo.Users().UpdateStatus(ctx, user.ID, auth.UserStatusActive)
	require.NoError(t, err)
	assert.Equal(t, auth.UserStatusActive, reinstated.Status)
}

func TestUsersResetPassword(t *testing.T) {
	repo, _ := setupTestDB(t)
	ctx := context.Background()

	user := registerTestUser(t, repo, "rotate@example.com")

	newHash, err := auth.HashPassword("brand-new-password")
	require.NoError(t, err)

	require.NoError(t, repo.Users().ResetPassword(ctx, user.ID, newHash))

	stored, err := repo.Users().GetByEmail(ctx, "rotate@example.com")
	require.NoError(t, err)
	assert.NoError(t, auth.ComparePasswordAndHash("brand-new-password", stored.PasswordHash))
}
