package auth

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Users() Users
	Businesses() Businesses
	VerificationTokens() VerificationTokens
	Roles() Roles
}

// Roles is the read side of the fixed role enumeration. Roles are
// seeded with the schema and keyed by small ints, so they sit outside
// the uuid-keyed generic repository.
type Roles interface {
	GetWithPermissions(ctx context.Context, id int) (*Role, error)
	GetWithPermissionsTx(ctx context.Context, tx bun.IDB, id int) (*Role, error)
}

type roles struct {
	db *bun.DB
}

func NewRolesRepository(db *bun.DB) Roles {
	return &roles{db: db}
}

func (r *roles) GetWithPermissions(ctx context.Context, id int) (*Role, error) {
	return r.GetWithPermissionsTx(ctx, r.db, id)
}

func (r *roles) GetWithPermissionsTx(ctx context.Context, tx bun.IDB, id int) (*Role, error) {
	record := &Role{}

	err := tx.NewSelect().
		Model(record).
		Relation("Permissions").
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"role_id": id,
				})
		}
		return nil, err
	}

	return record, nil
}

type mngr struct {
	db                 *bun.DB
	users              Users
	businesses         Businesses
	verificationTokens VerificationTokens
	roles              Roles
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	// join models must be known to bun before any m2m relation loads
	db.RegisterModel(
		(*UserRole)(nil),
		(*RolePermission)(nil),
		(*UserPermission)(nil),
	)

	return &mngr{
		db:                 db,
		users:              NewUsersRepository(db),
		businesses:         NewBusinessesRepository(db),
		verificationTokens: NewVerificationTokensRepository(db),
		roles:              NewRolesRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.businesses == nil {
		return errors.New("repository businesses should be initialized")
	}

	if m.verificationTokens == nil {
		return errors.New("repository verificationTokens should be initialized")
	}

	if m.roles == nil {
		return errors.New("repository roles should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) Businesses() Businesses {
	return m.businesses
}

func (m mngr) VerificationTokens() VerificationTokens {
	return m.verificationTokens
}

func (m mngr) Roles() Roles {
	return m.roles
}
