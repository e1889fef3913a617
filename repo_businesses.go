package auth

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Businesses exposes the business records the auth core touches:
// creation (inside the provisioning transaction) and ownership lookup.
type Businesses interface {
	repository.Repository[*Business]

	Create(ctx context.Context, record *Business, criteria ...repository.InsertCriteria) (*Business, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Business, criteria ...repository.InsertCriteria) (*Business, error)
	GetByOwner(ctx context.Context, ownerID uuid.UUID) (*Business, error)
	GetByOwnerTx(ctx context.Context, tx bun.IDB, ownerID uuid.UUID) (*Business, error)
}

type businesses struct {
	repository.Repository[*Business]
	db *bun.DB
}

var _ Businesses = (*businesses)(nil)

func NewBusinessesRepository(db *bun.DB) Businesses {
	repo := repository.NewRepository[*Business](db, repository.ModelHandlers[*Business]{
		NewRecord: func() *Business { return &Business{} },
		GetID: func(b *Business) uuid.UUID {
			if b == nil {
				return uuid.Nil
			}
			return b.ID
		},
		SetID: func(b *Business, id uuid.UUID) {
			if b != nil {
				b.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &businesses{
		Repository: repo,
		db:         db,
	}
}

func (r *businesses) Create(ctx context.Context, record *Business, criteria ...repository.InsertCriteria) (*Business, error) {
	return r.CreateTx(ctx, r.db, record, criteria...)
}

func (r *businesses) CreateTx(ctx context.Context, tx bun.IDB, record *Business, criteria ...repository.InsertCriteria) (*Business, error) {
	if record != nil && record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	record, err := r.Repository.CreateTx(ctx, tx, record, criteria...)
	if err != nil {
		if IsDuplicateKeyError(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}

	return record, nil
}

func (r *businesses) GetByOwner(ctx context.Context, ownerID uuid.UUID) (*Business, error) {
	return r.GetByOwnerTx(ctx, r.db, ownerID)
}

func (r *businesses) GetByOwnerTx(ctx context.Context, tx bun.IDB, ownerID uuid.UUID) (*Business, error) {
	record := &Business{}

	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.owner_id = ?", ownerID).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"owner_id": ownerID.String(),
				})
		}
		return nil, err
	}

	return record, nil
}
