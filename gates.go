package clubauth

import (
	"context"
	"net/http"
	"time"

	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// DecisionKind is the outcome of a gate evaluation.
type DecisionKind string

const (
	// DecisionPending means the inputs are still loading; render a
	// placeholder, never flash a redirect.
	DecisionPending DecisionKind = "pending"
	// DecisionAllow renders the protected content.
	DecisionAllow DecisionKind = "allow"
	// DecisionRedirect sends the user to Target, carrying ReturnTo so the
	// destination can send them back.
	DecisionRedirect DecisionKind = "redirect"
	// DecisionDeny renders nothing.
	DecisionDeny DecisionKind = "deny"
)

// Decision is the result of evaluating a gate against session and role state.
// A gate re-enters pending only when the underlying identity or role changes.
type Decision struct {
	Kind     DecisionKind
	Target   string
	ReturnTo string
}

// EvaluateAuthenticated decides the "must be signed in" gate: pending while
// the initial identity determination is in flight, a redirect to the sign-in
// path carrying the original path once resolved anonymous, allow otherwise.
func EvaluateAuthenticated(snap Snapshot, originalPath, signInPath string) Decision {
	if snap.Resolving {
		return Decision{Kind: DecisionPending}
	}

	if snap.Identity == nil {
		return Decision{
			Kind:     DecisionRedirect,
			Target:   signInPath,
			ReturnTo: originalPath,
		}
	}

	return Decision{Kind: DecisionAllow}
}

// EvaluateRole decides the "must have role X" gate. It implies the
// authentication check so a role is never requested for a nil identity. Role
// fetch errors and mismatches both deny: an unknown role authorizes nothing,
// never everything. When notAuthorizedPath is empty the deny is silent;
// otherwise it redirects there so the user sees a consistent view.
func EvaluateRole(snap Snapshot, result RoleResult, required Role, originalPath, signInPath, notAuthorizedPath string) Decision {
	if authed := EvaluateAuthenticated(snap, originalPath, signInPath); authed.Kind != DecisionAllow {
		return authed
	}

	if result.Loading {
		return Decision{Kind: DecisionPending}
	}

	if result.Err != nil || result.Role != required {
		if notAuthorizedPath == "" {
			return Decision{Kind: DecisionDeny}
		}
		return Decision{
			Kind:   DecisionRedirect,
			Target: notAuthorizedPath,
		}
	}

	return Decision{Kind: DecisionAllow}
}

// RouteGates adapts gate evaluation to router middleware. Redirects stash the
// originally requested path in the rejected-route cookie so the sign-in
// handler can return the user there.
type RouteGates struct {
	cfg      Config
	sessions *SessionManager
	roles    *RoleResolver
	Logger   Logger
}

// NewRouteGates returns gates reading from the session manager and resolver.
func NewRouteGates(cfg Config, sessions *SessionManager, roles *RoleResolver) *RouteGates {
	return &RouteGates{
		cfg:      cfg,
		sessions: sessions,
		roles:    roles,
		Logger:   defLogger{},
	}
}

// RequireAuthenticated guards a route behind a signed-in session.
func (g *RouteGates) RequireAuthenticated() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			snap := g.sessions.Snapshot()

			decision := EvaluateAuthenticated(snap, c.OriginalURL(), g.cfg.GetSignInPath())
			switch decision.Kind {
			case DecisionPending:
				return g.pending(c)
			case DecisionRedirect:
				return g.redirect(c, decision)
			}

			c.SetContext(WithIdentity(c.Context(), snap.Identity))
			return next(c)
		}
	}
}

// RequireRole guards a route behind a signed-in session with the exact
// required role. The authentication check is implied.
func (g *RouteGates) RequireRole(required Role) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			snap := g.sessions.Snapshot()

			decision, role, err := g.decideRole(c.Context(), snap, c.OriginalURL(), required)
			switch decision.Kind {
			case DecisionPending:
				return g.pending(c)
			case DecisionRedirect:
				g.Logger.Info(
					"role gate redirecting",
					"required", required,
					"details", print.MaybePrettyJSON(map[string]any{
						"role":  role,
						"path":  c.OriginalURL(),
						"error": errString(err),
					}),
				)
				return g.redirect(c, decision)
			case DecisionDeny:
				return c.Status(http.StatusForbidden).SendString("forbidden")
			}

			ctx := WithIdentity(c.Context(), snap.Identity)
			c.SetContext(WithRole(ctx, role))
			return next(c)
		}
	}
}

// decideRole runs the full role-gate sequence for one request. The role is
// only consulted once the session is resolved and authenticated.
func (g *RouteGates) decideRole(ctx context.Context, snap Snapshot, originalPath string, required Role) (Decision, Role, error) {
	if authed := EvaluateAuthenticated(snap, originalPath, g.cfg.GetSignInPath()); authed.Kind != DecisionAllow {
		return authed, RoleUnknown, nil
	}

	role, err := g.roles.Role(ctx, snap.Identity)
	result := RoleResult{Role: role, Err: err}

	decision := EvaluateRole(snap, result, required, originalPath, g.cfg.GetSignInPath(), g.cfg.GetNotAuthorizedPath())
	return decision, role, err
}

// GetRedirect consumes the rejected-route cookie, falling back to def.
func (g *RouteGates) GetRedirect(c router.Context, def ...string) string {
	rejectedRoute := g.cfg.GetRejectedRouteKey()
	r := c.Cookies(rejectedRoute)
	if r == "" && len(def) > 0 {
		return def[0]
	}
	g.cookieDel(c, rejectedRoute)
	return r
}

func (g *RouteGates) pending(c router.Context) error {
	c.SetHeader("Retry-After", "1")
	return c.Status(http.StatusServiceUnavailable).SendString("session resolving")
}

func (g *RouteGates) redirect(c router.Context, decision Decision) error {
	if decision.ReturnTo != "" {
		g.setRedirectCookie(c, decision.ReturnTo)
	}

	statusCode := http.StatusSeeOther
	if c.Method() == string(router.GET) {
		statusCode = http.StatusFound
	}
	return c.Redirect(decision.Target, statusCode)
}

func (g *RouteGates) setRedirectCookie(c router.Context, returnTo string) {
	c.Cookie(&router.Cookie{
		Name:     g.cfg.GetRejectedRouteKey(),
		Value:    returnTo,
		Expires:  time.Now().Add(time.Minute * 5),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (g *RouteGates) cookieDel(c router.Context, name string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
