package auth

import (
	"context"
	"reflect"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

type Auther struct {
	provider     IdentityProvider
	repo         RepositoryManager
	signingKey   []byte
	issuer       string
	audience     []string
	logger       Logger
	tokenService TokenService
	activitySink ActivitySink
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(provider IdentityProvider, opts Config) *Auther {
	tokenService := NewTokenService(
		[]byte(opts.GetSigningKey()),
		opts.GetTokenExpiration(),
		opts.GetIssuer(),
		opts.GetAudience(),
		defLogger{},
	)

	return &Auther{
		provider:     provider,
		signingKey:   []byte(opts.GetSigningKey()),
		audience:     opts.GetAudience(),
		issuer:       opts.GetIssuer(),
		logger:       defLogger{},
		tokenService: tokenService,
		activitySink: noopActivitySink{},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithRepository wires the repository manager, required for
// external-provider login which may create the account on first use.
func (s *Auther) WithRepository(repo RepositoryManager) *Auther {
	s.repo = repo
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

// Login verifies the password, requires an active account, and issues
// a session credential.
func (s *Auther) Login(ctx context.Context, email, password string) (string, error) {
	identity, err := s.provider.VerifyIdentity(ctx, email, password)
	if err != nil {
		s.logger.Error("Login verify identity error", "error", err)
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"email": email,
			"error": err.Error(),
		})
		return "", err
	}

	if identity == nil || reflect.ValueOf(identity).IsZero() {
		s.logger.Error("Login identity is nil or zero value")
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"email": email,
			"error": ErrIdentityNotFound.Error(),
		})
		return "", ErrIdentityNotFound
	}

	credential, err := s.tokenService.Issue(identity.ID(), identity.Email())
	if err != nil {
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, s.actorFromIdentity(identity), identity.ID(), map[string]any{
			"email": email,
			"error": err.Error(),
		})
		return "", err
	}

	s.emitAuthEvent(ctx, ActivityEventLoginSuccess, s.actorFromIdentity(identity), identity.ID(), map[string]any{
		"email": email,
	})

	return credential, nil
}

// LoginExternal authenticates a user asserted by an external identity
// provider. Unknown emails are provisioned on the spot as active
// accounts carrying the provider marker and no password hash.
func (s *Auther) LoginExternal(ctx context.Context, provider, email, firstName, lastName string) (string, error) {
	if s.repo == nil {
		return "", errors.New("external login requires a repository", errors.CategoryInternal)
	}

	user, err := s.repo.Users().GetByEmail(ctx, email)
	if err != nil {
		if !repository.IsRecordNotFound(err) {
			return "", errors.Wrap(err, errors.CategoryInternal, "failed to look up external identity")
		}

		user, err = s.repo.Users().Register(ctx, &User{
			Email:     email,
			FirstName: firstName,
			LastName:  lastName,
			Provider:  provider,
			Status:    UserStatusActive,
		})
		if err != nil {
			return "", err
		}
	}

	if err := ensureAuthenticatableUser(user); err != nil {
		return "", err
	}

	credential, err := s.tokenService.Issue(user.ID.String(), user.Email)
	if err != nil {
		return "", err
	}

	s.emitAuthEvent(ctx, ActivityEventExternalLogin, ActorRef{ID: user.ID.String(), Type: "user"}, user.ID.String(), map[string]any{
		"provider": provider,
	})

	return credential, nil
}

// Refresh validates the current credential and issues a replacement
// with the same claims and a fresh lifetime.
func (s *Auther) Refresh(ctx context.Context, credential string) (string, error) {
	refreshed, err := s.tokenService.Refresh(credential)
	if err != nil {
		s.logger.Warn("Refresh rejected credential", "error", err)
		return "", err
	}
	return refreshed, nil
}

// IdentityFromCredential resolves the identity claims carried by a
// credential back to a live identity record.
func (s *Auther) IdentityFromCredential(ctx context.Context, credential string) (Identity, error) {
	claims, err := s.tokenService.Validate(credential)
	if err != nil {
		return nil, err
	}

	identity, err := s.provider.FindIdentityByEmail(ctx, claims.UserEmail())
	if err != nil {
		s.logger.Error("IdentityFromCredential find identity error", "error", err)
		return nil, err
	}

	return identity, nil
}

func (s *Auther) emitAuthEvent(ctx context.Context, eventType ActivityEventType, actor ActorRef, userID string, metadata map[string]any) {
	sink := normalizeActivitySink(s.activitySink)
	event := ActivityEvent{
		EventType: eventType,
		Actor:     actor,
		UserID:    userID,
		Metadata:  metadata,
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error: %v", err)
	}
}

func (s *Auther) actorFromIdentity(identity Identity) ActorRef {
	if identity == nil {
		return ActorRef{Type: "unknown"}
	}

	return ActorRef{
		ID:   identity.ID(),
		Type: "user",
	}
}

var _ Authenticator = (*Auther)(nil)
