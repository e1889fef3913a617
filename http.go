package auth

import (
	"net/http"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// LoginPayload carries credentials submitted by a sign-in form.
type LoginPayload interface {
	GetEmail() string
	GetPassword() string
}

// RouteAuthenticator glues the Authenticator to router handlers:
// runs the credential exchange and manages the session cookie.
type RouteAuthenticator struct {
	auth           Authenticator
	cfg            Config
	cookieDuration time.Duration
	secureCookies  bool
	Logger         Logger
	ErrorHandler   func(c router.Context, err error) error
}

func NewHTTPAuthenticator(auther Authenticator, cfg Config) (*RouteAuthenticator, error) {
	cookieDuration := time.Duration(DefaultCredentialTTLHours) * time.Hour
	if cfg.GetTokenExpiration() > 0 {
		cookieDuration = time.Duration(cfg.GetTokenExpiration()) * time.Hour
	}

	a := &RouteAuthenticator{
		cfg:            cfg,
		auth:           auther,
		Logger:         defLogger{},
		secureCookies:  true,
		cookieDuration: cookieDuration,
	}

	a.ErrorHandler = a.defaultErrHandler

	return a, nil
}

func (a RouteAuthenticator) GetCookieDuration() time.Duration {
	return a.cookieDuration
}

// WithSecureCookies toggles the Secure cookie attribute, off only for
// local plain-HTTP development.
func (a *RouteAuthenticator) WithSecureCookies(secure bool) *RouteAuthenticator {
	a.secureCookies = secure
	return a
}

// Login exchanges credentials for a session credential and sets it as
// an HTTP-only cookie.
func (a *RouteAuthenticator) Login(ctx router.Context, payload LoginPayload) error {
	token, err := a.auth.Login(ctx.Context(), payload.GetEmail(), payload.GetPassword())
	if err != nil {
		a.Logger.Error("Login error: %s", err)
		return err
	}

	a.setCookieToken(ctx, token)
	return nil
}

// LoginExternal establishes a session for an identity asserted by an
// external provider, provisioning the account on first sight.
func (a *RouteAuthenticator) LoginExternal(ctx router.Context, provider, email, firstName, lastName string) error {
	token, err := a.auth.LoginExternal(ctx.Context(), provider, email, firstName, lastName)
	if err != nil {
		a.Logger.Error("External login error: %s", err)
		return err
	}

	a.setCookieToken(ctx, token)
	return nil
}

// Refresh re-issues the session cookie from the current credential.
func (a *RouteAuthenticator) Refresh(ctx router.Context) error {
	raw := ctx.Cookies(a.cfg.GetContextKey())
	if raw == "" {
		return ErrCredentialInvalid
	}

	token, err := a.auth.Refresh(ctx.Context(), raw)
	if err != nil {
		a.Logger.Error("Refresh error: %s", err)
		a.Logout(ctx)
		return err
	}

	a.setCookieToken(ctx, token)
	return nil
}

func (a *RouteAuthenticator) Logout(ctx router.Context) {
	clearCookie(ctx, a.cfg.GetContextKey(), a.secureCookies)
}

func (a *RouteAuthenticator) setCookieToken(c router.Context, val string) {
	c.Cookie(&router.Cookie{
		Name:     a.cfg.GetContextKey(),
		Value:    val,
		Path:     "/",
		Expires:  time.Now().Add(a.cookieDuration),
		HTTPOnly: true,
		Secure:   a.secureCookies,
		SameSite: "Strict",
	})
}

func (a *RouteAuthenticator) defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	a.Logger.Info(
		"Authentication error, redirecting to sign in",
		"error", richErr.Message,
		"text_code", richErr.TextCode,
		"path", c.OriginalURL(),
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	statusCode := http.StatusSeeOther
	if c.Method() == string(router.GET) {
		statusCode = http.StatusFound
	}
	return c.Redirect(a.cfg.GetSignInRoute(), statusCode)
}

func clearCookie(c router.Context, name string, secure bool) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   secure,
		SameSite: "Strict",
	})
}
