package auth_test

import (
	"context"

	"github.com/tellwise/go-auth"
	"github.com/goliatone/go-featuregate/gate"
	"github.com/stretchr/testify/mock"
)

// MockAuthenticator implements auth.Authenticator
type MockAuthenticator struct {
	mock.Mock
}

func (m *MockAuthenticator) Login(ctx context.Context, email, password string) (string, error) {
	args := m.Called(ctx, email, password)
	return args.String(0), args.Error(1)
}

func (m *MockAuthenticator) LoginExternal(ctx context.Context, provider, email, firstName, lastName string) (string, error) {
	args := m.Called(ctx, provider, email, firstName, lastName)
	return args.String(0), args.Error(1)
}

func (m *MockAuthenticator) Refresh(ctx context.Context, credential string) (string, error) {
	args := m.Called(ctx, credential)
	return args.String(0), args.Error(1)
}

func (m *MockAuthenticator) IdentityFromCredential(ctx context.Context, credential string) (auth.Identity, error) {
	args := m.Called(ctx, credential)
	identity, _ := args.Get(0).(auth.Identity)
	return identity, args.Error(1)
}

// MockIdentityProvider implements auth.IdentityProvider
type MockIdentityProvider struct {
	mock.Mock
}

func (m *MockIdentityProvider) VerifyIdentity(ctx context.Context, email, password string) (auth.Identity, error) {
	args := m.Called(ctx, email, password)
	identity, _ := args.Get(0).(auth.Identity)
	return identity, args.Error(1)
}

func (m *MockIdentityProvider) FindIdentityByEmail(ctx context.Context, email string) (auth.Identity, error) {
	args := m.Called(ctx, email)
	identity, _ := args.Get(0).(auth.Identity)
	return identity, args.Error(1)
}

// TestIdentity implements auth.Identity
type TestIdentity struct {
	id       string
	username string
	email    string
	status   auth.UserStatus
}

func (i TestIdentity) ID() string { return i.id }

func (i TestIdentity) Username() string { return i.username }

func (i TestIdentity) Email() string { return i.email }

func (i TestIdentity) Status() auth.UserStatus {
	if i.status == "" {
		return auth.UserStatusActive
	}
	return i.status
}

// MockLoginPayload implements auth.LoginPayload
type MockLoginPayload struct {
	Email    string
	Password string
}

func (m MockLoginPayload) GetEmail() string {
	return m.Email
}

func (m MockLoginPayload) GetPassword() string {
	return m.Password
}

type stubFeatureGate struct {
	enabled map[string]bool
	calls   []string
	err     error
}

func (s *stubFeatureGate) Enabled(ctx context.Context, key string, opts ...gate.ResolveOption) (bool, error) {
	s.calls = append(s.calls, key)
	if s.err != nil {
		return false, s.err
	}
	if s.enabled == nil {
		return true, nil
	}
	enabled, ok := s.enabled[key]
	if !ok {
		return true, nil
	}
	return enabled, nil
}
