package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	// DefaultVerificationTTL is the default token lifetime, used by
	// password reset flows.
	DefaultVerificationTTL = 30 * time.Minute
	// EmailVerificationTTL is the long lifetime used for initial
	// email verification links, 30 days.
	EmailVerificationTTL = 43200 * time.Minute

	// tokenEntropyBytes gives 256 bits of entropy per token
	tokenEntropyBytes = 32
)

// RedeemVerificationTokenSQL deletes an unexpired token and returns
// the bound user in one statement, so two concurrent redemptions of
// the same token can never both succeed.
var RedeemVerificationTokenSQL = `DELETE FROM "verification_tokens"
WHERE
	"token" = ?
AND "expires_at" > ?
RETURNING "user_id";`

// VerificationTokens persists opaque, single-use, expiring tokens
// bound to a user, used for email verification and password reset.
type VerificationTokens interface {
	repository.Repository[*VerificationToken]

	Generate(ctx context.Context, userID uuid.UUID, ttl time.Duration) (*VerificationToken, error)
	GenerateTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, ttl time.Duration) (*VerificationToken, error)
	Verify(ctx context.Context, token string, now time.Time) (uuid.UUID, error)
	Invalidate(ctx context.Context, token string) (bool, error)
	InvalidateTx(ctx context.Context, tx bun.IDB, token string) (bool, error)
	Redeem(ctx context.Context, token string, now time.Time) (uuid.UUID, error)
	RedeemTx(ctx context.Context, tx bun.IDB, token string, now time.Time) (uuid.UUID, error)
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

type verificationTokens struct {
	repository.Repository[*VerificationToken]
	db *bun.DB
}

var _ VerificationTokens = (*verificationTokens)(nil)

func NewVerificationTokensRepository(db *bun.DB) VerificationTokens {
	repo := repository.NewRepository[*VerificationToken](db, repository.ModelHandlers[*VerificationToken]{
		NewRecord: func() *VerificationToken { return &VerificationToken{} },
		GetID: func(t *VerificationToken) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *VerificationToken, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
		GetIdentifier: func() string {
			return "token"
		},
	})

	return &verificationTokens{
		Repository: repo,
		db:         db,
	}
}

func (r *verificationTokens) Generate(ctx context.Context, userID uuid.UUID, ttl time.Duration) (*VerificationToken, error) {
	return r.GenerateTx(ctx, r.db, userID, ttl)
}

func (r *verificationTokens) GenerateTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, ttl time.Duration) (*VerificationToken, error) {
	if ttl <= 0 {
		ttl = DefaultVerificationTTL
	}

	opaque, err := randomToken()
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to generate verification token")
	}

	record := &VerificationToken{
		ID:        uuid.New(),
		Token:     opaque,
		UserID:    userID,
		ExpiresAt: time.Now().Add(ttl),
	}

	record, err = r.Repository.CreateTx(ctx, tx, record)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to persist verification token")
	}

	return record, nil
}

// Verify looks up the token and returns the bound user id while it is
// still valid. It does not consume the token: verification and
// invalidation stay independently composable so a caller can verify,
// do dependent work, then invalidate.
func (r *verificationTokens) Verify(ctx context.Context, token string, now time.Time) (uuid.UUID, error) {
	record := &VerificationToken{}

	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.token = ?", token).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if err == sql.ErrNoRows || repository.IsRecordNotFound(err) {
			return uuid.Nil, ErrVerificationTokenNotFound
		}
		return uuid.Nil, errors.Wrap(err, errors.CategoryInternal, "failed to look up verification token")
	}

	if record.Expired(now) {
		return uuid.Nil, ErrVerificationTokenExpired
	}

	return record.UserID, nil
}

func (r *verificationTokens) Invalidate(ctx context.Context, token string) (bool, error) {
	return r.InvalidateTx(ctx, r.db, token)
}

func (r *verificationTokens) InvalidateTx(ctx context.Context, tx bun.IDB, token string) (bool, error) {
	res, err := tx.NewDelete().
		Model((*VerificationToken)(nil)).
		Where("?TableAlias.token = ?", token).
		Exec(ctx)

	if err != nil {
		return false, errors.Wrap(err, errors.CategoryInternal, "failed to invalidate verification token")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, errors.CategoryInternal, "failed to read invalidation result")
	}

	return affected > 0, nil
}

// Redeem consumes a still-valid token and returns the bound user id.
// Delete-and-return semantics close the window where two concurrent
// redemptions of the same token could both read success.
func (r *verificationTokens) Redeem(ctx context.Context, token string, now time.Time) (uuid.UUID, error) {
	return r.RedeemTx(ctx, r.db, token, now)
}

func (r *verificationTokens) RedeemTx(ctx context.Context, tx bun.IDB, token string, now time.Time) (uuid.UUID, error) {
	var userID uuid.UUID

	err := tx.NewRaw(RedeemVerificationTokenSQL, token, now).Scan(ctx, &userID)
	if err == nil {
		return userID, nil
	}

	if err != sql.ErrNoRows {
		return uuid.Nil, errors.Wrap(err, errors.CategoryInternal, "failed to redeem verification token")
	}

	// Nothing was deleted: either the token never existed (or was
	// already consumed), or it is still present but expired. The
	// follow-up read is diagnostic only, the redemption already
	// failed closed.
	exists, lookupErr := tx.NewSelect().
		Model((*VerificationToken)(nil)).
		Where("?TableAlias.token = ?", token).
		Exists(ctx)

	if lookupErr == nil && exists {
		return uuid.Nil, ErrVerificationTokenExpired
	}

	return uuid.Nil, ErrVerificationTokenNotFound
}

// SweepExpired bulk-deletes every token whose lifetime has passed.
// Safe to run concurrently with redemption: a token already consumed
// simply does not match the predicate.
func (r *verificationTokens) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*VerificationToken)(nil)).
		Where("?TableAlias.expires_at < ?", now).
		Exec(ctx)

	if err != nil {
		return 0, errors.Wrap(err, errors.CategoryInternal, "failed to sweep expired verification tokens")
	}

	return res.RowsAffected()
}

func randomToken() (string, error) {
	buf := make([]byte, tokenEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
