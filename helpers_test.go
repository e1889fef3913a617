package auth_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/tellwise/go-auth"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const (
	sqliteCreateUsers = `CREATE TABLE users (
    id TEXT NOT NULL PRIMARY KEY,
    first_name TEXT NOT NULL DEFAULT '',
    last_name TEXT NOT NULL DEFAULT '',
    username TEXT NOT NULL UNIQUE,
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT,
    provider TEXT,
    status TEXT NOT NULL,
    verified_at TIMESTAMP NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    deleted_at TIMESTAMP NULL
);`

	sqliteCreateRoles = `CREATE TABLE roles (
    id INTEGER NOT NULL PRIMARY KEY,
    name TEXT NOT NULL UNIQUE
);`

	sqliteCreatePermissions = `CREATE TABLE permissions (
    id INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    module TEXT NOT NULL,
    action TEXT NOT NULL
);`

	sqliteCreateRolePermissions = `CREATE TABLE role_permissions (
    role_id INTEGER NOT NULL,
    permission_id INTEGER NOT NULL,
    PRIMARY KEY (role_id, permission_id),
    FOREIGN KEY (role_id) REFERENCES roles (id),
    FOREIGN KEY (permission_id) REFERENCES permissions (id)
);`

	sqliteCreateUserRoles = `CREATE TABLE user_roles (
    user_id TEXT NOT NULL,
    role_id INTEGER NOT NULL,
    PRIMARY KEY (user_id, role_id),
    FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE,
    FOREIGN KEY (role_id) REFERENCES roles (id)
);`

	sqliteCreateUserPermissions = `CREATE TABLE user_permissions (
    user_id TEXT NOT NULL,
    permission_id INTEGER NOT NULL,
    granted BOOLEAN NOT NULL DEFAULT TRUE,
    PRIMARY KEY (user_id, permission_id),
    FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE,
    FOREIGN KEY (permission_id) REFERENCES permissions (id)
);`

	sqliteCreateBusinesses = `CREATE TABLE businesses (
    id TEXT NOT NULL PRIMARY KEY,
    name TEXT NOT NULL,
    email TEXT NOT NULL UNIQUE,
    owner_id TEXT NOT NULL UNIQUE,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    deleted_at TIMESTAMP NULL,
    FOREIGN KEY (owner_id) REFERENCES users (id)
);`

	sqliteCreateVerificationTokens = `CREATE TABLE verification_tokens (
    id TEXT NOT NULL PRIMARY KEY,
    token TEXT NOT NULL UNIQUE,
    user_id TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    expires_at TIMESTAMP NOT NULL
);`
)

func setupTestDB(t *testing.T) (auth.RepositoryManager, *bun.DB) {
	t.Helper()

	db, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())

	_, err = bunDB.Exec("PRAGMA foreign_keys = ON;")
	require.NoError(t, err)

	for _, ddl := range []string{
		sqliteCreateUsers,
		sqliteCreateRoles,
		sqliteCreatePermissions,
		sqliteCreateRolePermissions,
		sqliteCreateUserRoles,
		sqliteCreateUserPermissions,
		sqliteCreateBusinesses,
		sqliteCreateVerificationTokens,
	} {
		_, err = bunDB.Exec(ddl)
		require.NoError(t, err)
	}

	// registers the m2m join models before any relation query runs
	repo := auth.NewRepositoryManager(bunDB)

	seedAccessData(t, bunDB)

	t.Cleanup(func() {
		_ = bunDB.Close()
		_ = db.Close()
	})

	return repo, bunDB
}

// seedAccessData installs the fixed role enumeration plus a small
// permission matrix: business-admin gets the business permissions,
// every role gets feedback.read.
func seedAccessData(t *testing.T, db *bun.DB) {
	t.Helper()
	ctx := context.Background()

	for _, role := range auth.SeedRoles() {
		_, err := db.NewInsert().Model(role).Exec(ctx)
		require.NoError(t, err)
	}

	perms := []*auth.Permission{
		{Name: "feedback.read", Module: "feedback", Action: "read"},
		{Name: "business.manage", Module: "business", Action: "manage"},
		{Name: "business.members.invite", Module: "business", Action: "invite"},
	}
	for _, perm := range perms {
		_, err := db.NewInsert().Model(perm).Exec(ctx)
		require.NoError(t, err)
	}

	grants := []*auth.RolePermission{
		{RoleID: auth.RoleUser, PermissionID: perms[0].ID},
		{RoleID: auth.RoleBusinessAdmin, PermissionID: perms[0].ID},
		{RoleID: auth.RoleBusinessAdmin, PermissionID: perms[1].ID},
		{RoleID: auth.RoleBusinessAdmin, PermissionID: perms[2].ID},
	}
	for _, grant := range grants {
		_, err := db.NewInsert().Model(grant).Exec(ctx)
		require.NoError(t, err)
	}
}

type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

type testConfig struct {
	signingKey      string
	tokenExpiration int
	issuer          string
	audience        []string
	contextKey      string
	signInRoute     string
}

func newTestConfig() testConfig {
	return testConfig{
		signingKey:      "test-signing-key",
		tokenExpiration: 1,
		issuer:          "test-issuer",
		audience:        []string{"test-audience"},
		contextKey:      "session",
		signInRoute:     "/auth",
	}
}

func (c testConfig) GetSigningKey() string   { return c.signingKey }
func (c testConfig) GetTokenExpiration() int { return c.tokenExpiration }
func (c testConfig) GetIssuer() string       { return c.issuer }
func (c testConfig) GetAudience() []string   { return c.audience }
func (c testConfig) GetContextKey() string   { return c.contextKey }
func (c testConfig) GetSignInRoute() string  { return c.signInRoute }

type capturingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (c *capturingSink) Record(ctx context.Context, evt auth.ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *capturingSink) Events() []auth.ActivityEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]auth.ActivityEvent, len(c.events))
	copy(out, c.events)
	return out
}

type capturingMailer struct {
	verifications []string
	resets        []string
	lastEmail     string
	err           error
}

func (m *capturingMailer) SendVerification(ctx context.Context, email, token string, _ time.Time) error {
	m.lastEmail = email
	m.verifications = append(m.verifications, token)
	return m.err
}

func (m *capturingMailer) SendPasswordReset(ctx context.Context, email, token string, _ time.Time) error {
	m.lastEmail = email
	m.resets = append(m.resets, token)
	return m.err
}
