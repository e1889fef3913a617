package auth

import (
	"net/http"
	"strings"

	"github.com/goliatone/go-featuregate/gate"
	"github.com/goliatone/go-router"
)

// Locals keys under which the gate publishes the verified identity.
// Downstream handlers treat these as authoritative and never
// re-derive identity from client-supplied values.
const (
	LocalsSessionClaims = "session_claims"
	LocalsUserID        = "auth_user_id"
	LocalsUserEmail     = "auth_user_email"
)

// Identity headers the gate stamps on verified requests for upstream
// services sitting behind it. They overwrite whatever the client sent.
const (
	HeaderAuthUserID    = "X-Auth-User-Id"
	HeaderAuthUserEmail = "X-Auth-User-Email"
)

// GateStage is one check in the request gate. It returns handled=true
// when it wrote a terminal response (redirect or reject) and the
// chain must stop, handled=false to pass the request along.
type GateStage func(c router.Context) (bool, error)

// GateConfig configures the ordered request-gating pipeline.
type GateConfig struct {
	// Tokens verifies session credentials. Required.
	Tokens TokenService
	// Flags resolves the waitlist routing override. Optional; a nil
	// gate disables the override stage.
	Flags gate.FeatureGate
	// CookieName is the session credential cookie. Defaults to "session".
	CookieName string
	// SignInPath receives unauthenticated traffic. Defaults to "/auth".
	SignInPath string
	// WaitlistPath receives redirected traffic while the waitlist
	// flag is active. Defaults to "/waitlist".
	WaitlistPath string
	// WaitlistPrefixes is the path family the waitlist override
	// captures. Defaults to ["/auth"].
	WaitlistPrefixes []string
	// PublicPaths bypass credential enforcement on exact match.
	PublicPaths []string
	// PublicPrefixes bypass credential enforcement on prefix match.
	PublicPrefixes []string
	// Authorize is the reserved role/permission enforcement stage. It
	// runs after credential enforcement with the identity already
	// injected. Defaults to a pass-through.
	Authorize GateStage
	// SecureCookies marks cleared/re-set cookies Secure, on in production.
	SecureCookies bool
	Logger        Logger
}

// Gate applies an ordered, short-circuiting chain of checks to every
// inbound request: waitlist routing override, credential enforcement,
// then the authorization extension point. Ordering is fixed: the
// override can bypass auth entirely, and authorization cannot run
// before the request has an identity.
type Gate struct {
	cfg    GateConfig
	stages []GateStage
	logger Logger
}

func NewGate(cfg GateConfig) *Gate {
	if cfg.Tokens == nil {
		panic("AUTH: gate configuration: TokenService is required.")
	}

	if cfg.CookieName == "" {
		cfg.CookieName = "session"
	}
	if cfg.SignInPath == "" {
		cfg.SignInPath = "/auth"
	}
	if cfg.WaitlistPath == "" {
		cfg.WaitlistPath = "/waitlist"
	}
	if len(cfg.WaitlistPrefixes) == 0 {
		cfg.WaitlistPrefixes = []string{"/auth"}
	}
	if cfg.PublicPaths == nil {
		cfg.PublicPaths = []string{"/", "/health"}
	}
	if cfg.PublicPrefixes == nil {
		cfg.PublicPrefixes = []string{"/auth", "/password-reset", "/public"}
	}
	if cfg.Logger == nil {
		cfg.Logger = defLogger{}
	}

	g := &Gate{
		cfg:    cfg,
		logger: cfg.Logger,
	}

	authorize := cfg.Authorize
	if authorize == nil {
		authorize = passThroughStage
	}

	// statically composed, evaluated in order, short-circuit on the
	// first terminal response
	g.stages = []GateStage{
		g.waitlistStage,
		g.credentialStage,
		authorize,
	}

	return g
}

// Middleware mounts the gate on a router chain.
func (g *Gate) Middleware() router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			for _, stage := range g.stages {
				handled, err := stage(c)
				if handled || err != nil {
					return err
				}
			}
			return c.Next()
		}
	}
}

// waitlistStage redirects a whole path family while the waitlist flag
// is active, bypassing every further check. Lets operators hold a
// soft-launch without touching downstream logic.
func (g *Gate) waitlistStage(c router.Context) (bool, error) {
	if !featureEnabled(c.Context(), g.cfg.Flags, FeatureWaitlist) {
		return false, nil
	}

	if !matchesPrefix(c.Path(), g.cfg.WaitlistPrefixes) {
		return false, nil
	}

	g.logger.Info("waitlist override active, redirecting", "path", c.Path())
	return true, c.Redirect(g.cfg.WaitlistPath, http.StatusFound)
}

// credentialStage enforces the session credential. The allow-list is
// evaluated before token extraction so public routes never fail on a
// missing credential. An invalid or expired credential is stripped
// from the client before the redirect, so a stale cookie cannot loop.
func (g *Gate) credentialStage(c router.Context) (bool, error) {
	if g.isPublicPath(c.Path()) {
		return false, nil
	}

	raw := g.extractCredential(c)
	if raw == "" {
		return true, g.redirectToSignIn(c)
	}

	claims, err := g.cfg.Tokens.Validate(raw)
	if err != nil {
		g.logger.Info("gate rejected credential", "path", c.Path())
		g.clearCredentialCookie(c)
		return true, g.redirectToSignIn(c)
	}

	c.Locals(LocalsSessionClaims, claims)
	c.Locals(LocalsUserID, claims.UserID())
	c.Locals(LocalsUserEmail, claims.UserEmail())
	c.SetHeader(HeaderAuthUserID, claims.UserID())
	c.SetHeader(HeaderAuthUserEmail, claims.UserEmail())
	c.SetContext(WithSessionContext(c.Context(), claims))

	return false, nil
}

func passThroughStage(router.Context) (bool, error) {
	return false, nil
}

func (g *Gate) isPublicPath(path string) bool {
	for _, p := range g.cfg.PublicPaths {
		if path == p {
			return true
		}
	}
	return matchesPrefix(path, g.cfg.PublicPrefixes)
}

func (g *Gate) extractCredential(c router.Context) string {
	if raw := c.Cookies(g.cfg.CookieName); raw != "" {
		return raw
	}

	// fall back to a bearer header for non-browser clients
	header := c.GetString(router.HeaderAuthorization, "")
	const scheme = "Bearer"
	if len(header) > len(scheme)+1 && strings.EqualFold(header[:len(scheme)], scheme) {
		return strings.TrimSpace(header[len(scheme):])
	}

	return ""
}

// redirectToSignIn prioritizes graceful re-entry over informative
// failure: unauthenticated traffic always gets a redirect, never a
// raw error payload.
func (g *Gate) redirectToSignIn(c router.Context) error {
	statusCode := http.StatusSeeOther
	if c.Method() == string(router.GET) {
		statusCode = http.StatusFound
	}
	return c.Redirect(g.cfg.SignInPath, statusCode)
}

func (g *Gate) clearCredentialCookie(c router.Context) {
	clearCookie(c, g.cfg.CookieName, g.cfg.SecureCookies)
}

func matchesPrefix(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
