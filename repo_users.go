package auth

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var ResetUserPasswordSQL = `UPDATE "users" AS "usr"
SET
	"password_hash" = ?
WHERE
	"usr"."deleted_at" IS NULL
AND (
	"usr"."id" = ?
) RETURNING *;`

// Users owns user records and their baseline role grants. A user must
// never exist without its default roles, so registration inserts both
// in one transaction.
type Users interface {
	repository.Repository[*User]

	Register(ctx context.Context, user *User) (*User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)
	Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	GetByEmailWithAccess(ctx context.Context, email string) (*AccessProfile, error)
	GrantRoleTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, roleID int) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status UserStatus, opts ...StatusUpdateOption) (*User, error)
	UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status UserStatus, opts ...StatusUpdateOption) (*User, error)
	ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) Register(ctx context.Context, user *User) (*User, error) {
	var registered *User
	err := a.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		registered, err = a.RegisterTx(ctx, tx, user)
		return err
	})
	return registered, err
}

// RegisterTx inserts the user row and its default role grants inside
// the caller's transaction. Failure of either insert aborts both.
func (a *users) RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	user, err := a.CreateTx(ctx, tx, user)
	if err != nil {
		if IsDuplicateKeyError(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}

	for _, roleID := range DefaultSignupRoles() {
		if err := a.GrantRoleTx(ctx, tx, user.ID, roleID); err != nil {
			return nil, err
		}
	}

	return user, nil
}

func (a *users) Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *users) CreateTx(ctx context.Context, tx bun.IDB, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	prepareUserDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *users) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	record := &User{}

	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", strings.TrimSpace(email)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"email": email,
				})
		}
		return nil, err
	}

	return record, nil
}

// GetByEmailWithAccess assembles the user row, every role held, the
// permission set those roles imply, granted direct overrides, and the
// owned business. Three batched reads total, no per-row round trips.
func (a *users) GetByEmailWithAccess(ctx context.Context, email string) (*AccessProfile, error) {
	user := &User{}

	err := a.db.NewSelect().
		Model(user).
		Relation("Roles").
		Relation("Business").
		Where("?TableAlias.email = ?", strings.TrimSpace(email)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"email": email,
				})
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load user access profile")
	}

	profile := &AccessProfile{
		User:     user,
		Roles:    user.Roles,
		Business: user.Business,
	}

	seen := map[int]bool{}

	if roleIDs := collectRoleIDs(user.Roles); len(roleIDs) > 0 {
		rolePerms := []*Permission{}
		err = a.db.NewSelect().
			Model(&rolePerms).
			Join(`JOIN "role_permissions" AS "rp" ON "rp"."permission_id" = "perm"."id"`).
			Where(`"rp"."role_id" IN (?)`, bun.In(roleIDs)).
			Scan(ctx)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load role permissions")
		}

		for _, perm := range rolePerms {
			if !seen[perm.ID] {
				seen[perm.ID] = true
				profile.Permissions = append(profile.Permissions, perm)
			}
		}
	}

	overrides := []*UserPermission{}
	err = a.db.NewSelect().
		Model(&overrides).
		Relation("Permission").
		Where("?TableAlias.user_id = ?", user.ID).
		Where("?TableAlias.granted = ?", true).
		Scan(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load permission overrides")
	}

	for _, override := range overrides {
		if override.Permission != nil && !seen[override.PermissionID] {
			seen[override.PermissionID] = true
			profile.Permissions = append(profile.Permissions, override.Permission)
		}
	}

	return profile, nil
}

// GrantRoleTx records a (user, role) pair. Re-granting a held role is
// a no-op, never a duplicate row.
func (a *users) GrantRoleTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, roleID int) error {
	if !IsValidRole(roleID) {
		return goerrors.New("unknown role id", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"role_id": roleID})
	}

	grant := &UserRole{
		UserID: userID,
		RoleID: roleID,
	}

	_, err := tx.NewInsert().
		Model(grant).
		On("CONFLICT DO NOTHING").
		Exec(ctx)

	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to grant role")
	}

	return nil
}

func (a *users) UpdateStatus(ctx context.Context, id uuid.UUID, status UserStatus, opts ...StatusUpdateOption) (*User, error) {
	return a.UpdateStatusTx(ctx, a.db, id, status, opts...)
}

// UpdateStatusTx flips the lifecycle status, enforcing legal
// transitions with a current-status predicate so a concurrent flip
// cannot apply twice.
func (a *users) UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status UserStatus, opts ...StatusUpdateOption) (*User, error) {
	current, err := a.Repository.GetByIDTx(ctx, tx, id.String())
	if err != nil {
		return nil, err
	}

	current.EnsureStatus()
	if !ValidStatusTransition(current.Status, status) {
		return nil, goerrors.New("illegal user status transition", goerrors.CategoryConflict).
			WithTextCode("INVALID_STATUS_TRANSITION").
			WithMetadata(map[string]any{
				"from": current.Status,
				"to":   status,
			})
	}

	record := &User{
		ID:     id,
		Status: status,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(record)
		}
	}

	q := tx.NewUpdate().
		Model(record).
		Column("status").
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.status = ?", current.Status)

	if record.VerifiedAt != nil {
		q = q.Column("verified_at")
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update user status")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read status update result")
	}

	if affected == 0 {
		return nil, goerrors.New("user status changed concurrently", goerrors.CategoryConflict).
			WithTextCode("STATUS_CONFLICT")
	}

	current.Status = status
	if record.VerifiedAt != nil {
		current.VerifiedAt = record.VerifiedAt
	}

	return current, nil
}

func (a *users) ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return a.ResetPasswordTx(ctx, a.db, id, passwordHash)
}

func (a *users) ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	res, err := a.Repository.RawTx(ctx, tx, ResetUserPasswordSQL, passwordHash, id.String())
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return nil
}

// StatusUpdateOption mutates the user record before a status change is persisted.
type StatusUpdateOption func(*User)

// WithVerifiedAt stamps the verification time during a status transition.
func WithVerifiedAt(at *time.Time) StatusUpdateOption {
	return func(u *User) {
		u.VerifiedAt = at
	}
}

// ValidStatusTransition encodes the lifecycle: pending accounts
// activate exactly once through email verification, active accounts
// can be deactivated and reinstated.
func ValidStatusTransition(from, to UserStatus) bool {
	switch from {
	case UserStatusPending:
		return to == UserStatusActive
	case UserStatusActive:
		return to == UserStatusInactive
	case UserStatusInactive:
		return to == UserStatusActive
	default:
		return false
	}
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	record.EnsureStatus()

	if record.Username == "" {
		record.Username = generateUsername(record.Email)
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}

// generateUsername derives a unique handle from the email local part
// plus a short random suffix, so two signups sharing a local part
// never collide.
func generateUsername(email string) string {
	local := email
	if at := strings.Index(email, "@"); at > 0 {
		local = email[:at]
	}
	suffix := strings.Split(uuid.NewString(), "-")[0]
	return local + "-" + suffix
}

func collectRoleIDs(roles []*Role) []int {
	ids := make([]int, 0, len(roles))
	for _, r := range roles {
		if r != nil {
			ids = append(ids, r.ID)
		}
	}
	return ids
}
