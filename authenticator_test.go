package auth_test

import (
	"context"
	"testing"

	"github.com/tellwise/go-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutherLoginIssuesCredential(t *testing.T) {
	ctx := context.Background()
	provider := new(MockIdentityProvider)
	sink := &capturingSink{}

	identity := TestIdentity{
		id:       "user-123",
		username: "pat",
		email:    "pat@example.com",
		status:   auth.UserStatusActive,
	}

	provider.On("VerifyIdentity", ctx, "pat@example.com", "password12345").
		Return(identity, nil).Once()

	authenticator := auth.NewAuthenticator(provider, newTestConfig()).
		WithLogger(testLogger{}).
		WithActivitySink(sink)

	credential, err := authenticator.Login(ctx, "pat@example.com", "password12345")
	require.NoError(t, err)
	require.NotEmpty(t, credential)

	claims, err := authenticator.TokenService().Validate(credential)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.UserID())
	assert.Equal(t, "pat@example.com", claims.UserEmail())

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, auth.ActivityEventLoginSuccess, events[0].EventType)
	assert.Equal(t, "user-123", events[0].UserID)

	provider.AssertExpectations(t)
}

func TestAutherLoginFailureEmitsActivity(t *testing.T) {
	ctx := context.Background()
	provider := new(MockIdentityProvider)
	sink := &capturingSink{}

	provider.On("VerifyIdentity", ctx, "pat@example.com", "bad-password").
		Return(nil, auth.ErrMismatchedHashAndPassword).Once()

	authenticator := auth.NewAuthenticator(provider, newTestConfig()).
		WithLogger(testLogger{}).
		WithActivitySink(sink)

	_, err := authenticator.Login(ctx, "pat@example.com", "bad-password")
	require.ErrorIs(t, err, auth.ErrMismatchedHashAndPassword)

	events := sink.Events()
	require.Len(t, events, 1)
	assert.Equal(t, auth.ActivityEventLoginFailure, events[0].EventType)

	provider.AssertExpectations(t)
}

func TestAutherLoginNilIdentity(t *testing.T) {
	ctx := context.Background()
	provider := new(MockIdentityProvider)

	provider.On("VerifyIdentity", ctx, "pat@example.com", "password12345").
		Return(nil, nil).Once()

	authenticator := auth.NewAuthenticator(provider, newTestConfig()).
		WithLogger(testLogger{})

	_, err := authenticator.Login(ctx, "pat@example.com", "password12345")
	require.ErrorIs(t, err, auth.ErrIdentityNotFound)

	provider.AssertExpectations(t)
}

func TestAutherLoginExternalProvisionsOnFirstSight(t *testing.T) {
	repo, _ := setupTestDB(t)
	ctx := context.Background()
	sink := &capturingSink{}

	provider := auth.NewUserProvider(repo.Users()).WithLogger(testLogger{})

	authenticator := auth.NewAuthenticator(provider, newTestConfig()).
		WithLogger(testLogger{}).
		WithRepository(repo).
		WithActivitySink(sink)

	credential, err := authenticator.LoginExternal(ctx, "google", "new-external@example.com", "Pat", "Smith")
	require.NoError(t, err)
	require.NotEmpty(t, credential)

	user, err := repo.Users().GetByEmail(ctx, "new-external@example.com")
	require.NoError(t, err)
	assert.Equal(t, auth.UserStatusActive, user.Status)
	assert.Equal(t, "google", user.Provider)
	assert.Empty(t, user.PasswordHash)

	// second login reuses the provisioned account
	again, err := authenticator.LoginExternal(ctx, "google", "new-external@example.com", "Pat", "Smith")
	require.NoError(t, err)
	require.NotEmpty(t, again)

	profile, err := repo.Users().GetByEmailWithAccess(ctx, "new-external@example.com")
	require.NoError(t, err)
	assert.True(t, profile.HasRole(auth.RoleUser))

	events := sink.Events()
	require.Len(t, events, 2)
	assert.Equal(t, auth.ActivityEventExternalLogin, events[0].EventType)
}

func TestAutherLoginExternalBlocksInactive(t *testing.T) {
	repo, _ := setupTestDB(t)
	ctx := context.Background()

	provider := auth.NewUserProvider(repo.Users()).WithLogger(testLogger{})

	authenticator := auth.NewAuthenticator(provider, newTestConfig()).
		WithLogger(testLogger{}).
		WithRepository(repo)

	_, err := authenticator.LoginExternal(ctx, "google", "deactivated@example.com", "Pat", "Smith")
	require.NoError(t, err)

	user, err := repo.Users().GetByEmail(ctx, "deactivated@example.com")
	require.NoError(t, err)
	_, err = repo.Users().UpdateStatus(ctx, user.ID, auth.UserStatusInactive)
	require.NoError(t, err)

	_, err = authenticator.LoginExternal(ctx, "google", "deactivated@example.com", "Pat", "Smith")
	require.ErrorIs(t, err, auth.ErrUserInactive)
}

func TestAutherRefresh(t *testing.T) {
	ctx := context.Background()
	provider := new(MockIdentityProvider)

	authenticator := auth.NewAuthenticator(provider, newTestConfig()).
		WithLogger(testLogger{})

	identity := TestIdentity{id: "user-123", email: "pat@example.com", status: auth.UserStatusActive}
	provider.On("VerifyIdentity", ctx, "pat@example.com", "password12345").
		Return(identity, nil).Once()

	credential, err := authenticator.Login(ctx, "pat@example.com", "password12345")
	require.NoError(t, err)

	refreshed, err := authenticator.Refresh(ctx, credential)
	require.NoError(t, err)

	claims, err := authenticator.TokenService().Validate(refreshed)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.UserID())

	_, err = authenticator.Refresh(ctx, "garbage")
	require.ErrorIs(t, err, auth.ErrCredentialInvalid)
}

func TestAutherIdentityFromCredential(t *testing.T) {
	ctx := context.Background()
	provider := new(MockIdentityProvider)

	authenticator := auth.NewAuthenticator(provider, newTestConfig()).
		WithLogger(testLogger{})

	identity := TestIdentity{id: "user-123", email: "pat@example.com", status: auth.UserStatusActive}
	provider.On("VerifyIdentity", ctx, "pat@example.com", "password12345").
		Return(identity, nil).Once()
	provider.On("FindIdentityByEmail", ctx, "pat@example.com").
		Return(identity, nil).Once()

	credential, err := authenticator.Login(ctx, "pat@example.com", "password12345")
	require.NoError(t, err)

	resolved, err := authenticator.IdentityFromCredential(ctx, credential)
	require.NoError(t, err)
	assert.Equal(t, "user-123", resolved.ID())

	_, err = authenticator.IdentityFromCredential(ctx, "garbage")
	require.ErrorIs(t, err, auth.ErrCredentialInvalid)

	provider.AssertExpectations(t)
}
