package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// DefaultCredentialTTLHours is the default session credential
// lifetime, 7 days.
const DefaultCredentialTTLHours = 168

// TokenService issues and verifies signed session credentials. It is
// purely computational and safe under unlimited concurrency. There is
// no revocation: a reissued credential simply outlives the old one
// until the old one expires.
type TokenService interface {
	Issue(userID, email string) (string, error)
	IssueWithTTL(userID, email string, ttl time.Duration) (string, error)
	Validate(credential string) (*SessionClaims, error)
	Refresh(credential string) (string, error)
}

// TokenServiceImpl implements the TokenService interface
type TokenServiceImpl struct {
	signingKey      []byte
	tokenExpiration int
	issuer          string
	audience        jwt.ClaimStrings
	logger          Logger
}

// NewTokenService creates a new TokenService instance
func NewTokenService(signingKey []byte, tokenExpiration int, issuer string, audience jwt.ClaimStrings, logger Logger) TokenService {
	if logger == nil {
		logger = defLogger{}
	}
	if tokenExpiration <= 0 {
		tokenExpiration = DefaultCredentialTTLHours
	}
	return &TokenServiceImpl{
		signingKey:      signingKey,
		tokenExpiration: tokenExpiration,
		issuer:          issuer,
		audience:        audience,
		logger:          logger,
	}
}

// Issue creates a signed credential carrying the identity claims with
// the default TTL.
func (ts *TokenServiceImpl) Issue(userID, email string) (string, error) {
	return ts.IssueWithTTL(userID, email, time.Duration(ts.tokenExpiration)*time.Hour)
}

// IssueWithTTL creates a signed credential with an explicit lifetime,
// used by one-off flows that want shorter-lived sessions. The ttl is
// applied as given, a non-positive value mints an already expired
// credential.
func (ts *TokenServiceImpl) IssueWithTTL(userID, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   userID,
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UID:   userID,
		Email: email,
	}

	ensureTokenID(&claims.RegisteredClaims)

	return ts.signClaims(claims)
}

func (ts *TokenServiceImpl) signClaims(claims *SessionClaims) (string, error) {
	if claims == nil {
		return "", errors.New("claims must not be nil", errors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign session credential")
	}

	return signedString, nil
}

// Validate parses and verifies a credential. Every failure mode folds
// into ErrCredentialInvalid: callers cannot distinguish an expired
// credential from a forged one, they simply re-authenticate.
func (ts *TokenServiceImpl) Validate(credential string) (*SessionClaims, error) {
	parserOptions := make([]jwt.ParserOption, 0, 2)
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience...))
	}

	token, err := jwt.ParseWithClaims(credential, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("TokenService validate encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, errors.New("unexpected signing method", errors.CategoryAuth)
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		ts.logger.Debug("TokenService validate rejected credential", "error", err)
		return nil, ErrCredentialInvalid
	}

	if claims, ok := token.Claims.(*SessionClaims); ok && token.Valid {
		return claims, nil
	}

	ts.logger.Error("TokenService validate could not decode claims")
	return nil, ErrCredentialInvalid
}

// Refresh validates the current credential and issues a new one with
// the same identity claims and a fresh default TTL. The old
// credential stays valid until it naturally expires.
func (ts *TokenServiceImpl) Refresh(credential string) (string, error) {
	claims, err := ts.Validate(credential)
	if err != nil {
		return "", err
	}
	return ts.Issue(claims.UserID(), claims.UserEmail())
}
