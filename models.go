package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserStatus is the lifecycle status of a user account
type UserStatus = string

const (
	// UserStatusPending is a password-based signup awaiting email verification
	UserStatusPending UserStatus = "pending"
	// UserStatusActive is a verified, usable account
	UserStatusActive UserStatus = "active"
	// UserStatusInactive is a deactivated account
	UserStatusInactive UserStatus = "inactive"
)

// User is the identity record owned by the Users repository
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	FirstName     string     `bun:"first_name,notnull" json:"first_name,omitempty"`
	LastName      string     `bun:"last_name,notnull" json:"last_name,omitempty"`
	Username      string     `bun:"username,notnull,unique" json:"username,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash  string     `bun:"password_hash" json:"password_hash,omitempty"`
	Provider      string     `bun:"provider" json:"provider,omitempty"`
	Status        UserStatus `bun:"status,notnull" json:"status,omitempty"`
	VerifiedAt    *time.Time `bun:"verified_at,nullzero" json:"verified_at,omitempty"`
	Roles         []*Role    `bun:"m2m:user_roles,join:User=Role" json:"roles,omitempty"`
	Business      *Business  `bun:"rel:has-one,join:id=owner_id" json:"business,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// EnsureStatus backfills the lifecycle status on records that never
// set one. Password signups start pending, external provider signups
// start active.
func (u *User) EnsureStatus() {
	if u.Status != "" {
		return
	}
	if u.Provider != "" {
		u.Status = UserStatusActive
		return
	}
	u.Status = UserStatusPending
}

// IsExternal reports whether the account was created through an
// external identity provider.
func (u *User) IsExternal() bool {
	return u.Provider != ""
}

// Role is a named permission bucket with a fixed small integer id
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:rol"`
	ID            int           `bun:"id,pk" json:"id,omitempty"`
	Name          string        `bun:"name,notnull,unique" json:"name,omitempty"`
	Permissions   []*Permission `bun:"m2m:role_permissions,join:Role=Permission" json:"permissions,omitempty"`
}

// Permission is a module+action capability
type Permission struct {
	bun.BaseModel `bun:"table:permissions,alias:perm"`
	ID            int    `bun:"id,pk,autoincrement" json:"id,omitempty"`
	Name          string `bun:"name,notnull,unique" json:"name,omitempty"`
	Module        string `bun:"module,notnull" json:"module,omitempty"`
	Action        string `bun:"action,notnull" json:"action,omitempty"`
}

// RolePermission joins roles to the permissions they grant
type RolePermission struct {
	bun.BaseModel `bun:"table:role_permissions,alias:rp"`
	RoleID        int         `bun:"role_id,pk" json:"role_id,omitempty"`
	Role          *Role       `bun:"rel:belongs-to,join:role_id=id" json:"role,omitempty"`
	PermissionID  int         `bun:"permission_id,pk" json:"permission_id,omitempty"`
	Permission    *Permission `bun:"rel:belongs-to,join:permission_id=id" json:"permission,omitempty"`
}

// UserRole is a (user, role) grant, unique per pair
type UserRole struct {
	bun.BaseModel `bun:"table:user_roles,alias:ur"`
	UserID        uuid.UUID `bun:"user_id,pk,type:uuid" json:"user_id,omitempty"`
	User          *User     `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	RoleID        int       `bun:"role_id,pk" json:"role_id,omitempty"`
	Role          *Role     `bun:"rel:belongs-to,join:role_id=id" json:"role,omitempty"`
}

// UserPermission is a direct per-user permission override
type UserPermission struct {
	bun.BaseModel `bun:"table:user_permissions,alias:up"`
	UserID        uuid.UUID   `bun:"user_id,pk,type:uuid" json:"user_id,omitempty"`
	PermissionID  int         `bun:"permission_id,pk" json:"permission_id,omitempty"`
	Permission    *Permission `bun:"rel:belongs-to,join:permission_id=id" json:"permission,omitempty"`
	Granted       bool        `bun:"granted,notnull" json:"granted"`
}

// Business is owned by exactly one user, its creator/admin
type Business struct {
	bun.BaseModel `bun:"table:businesses,alias:biz"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name          string     `bun:"name,notnull" json:"name,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	OwnerID       uuid.UUID  `bun:"owner_id,notnull,unique,type:uuid" json:"owner_id,omitempty"`
	Owner         *User      `bun:"rel:belongs-to,join:owner_id=id" json:"owner,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// VerificationToken is an opaque, single-use, expiring token bound to
// one user. Valid iff it exists and now < expires_at. Consumed by
// deletion; a second redemption finds no row and fails closed.
type VerificationToken struct {
	bun.BaseModel `bun:"table:verification_tokens,alias:vt"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Token         string     `bun:"token,notnull,unique" json:"token,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
}

// Expired reports whether the token is past its lifetime at the given
// instant. The exact expiry instant counts as expired.
func (t *VerificationToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// AccessProfile aggregates everything callers need to answer "who is
// this user and what can they do" in one read: the user row, every
// role held, the deduplicated permission set implied by those roles
// plus granted direct overrides, and the business the user
// administers, if any.
type AccessProfile struct {
	User        *User         `json:"user"`
	Roles       []*Role       `json:"roles"`
	Permissions []*Permission `json:"permissions"`
	Business    *Business     `json:"business,omitempty"`
}

// HasRole reports whether the profile includes the given role id
func (p *AccessProfile) HasRole(roleID int) bool {
	for _, r := range p.Roles {
		if r != nil && r.ID == roleID {
			return true
		}
	}
	return false
}

// HasPermission reports whether the profile includes the named permission
func (p *AccessProfile) HasPermission(name string) bool {
	for _, perm := range p.Permissions {
		if perm != nil && perm.Name == name {
			return true
		}
	}
	return false
}
