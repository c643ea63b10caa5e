// Package clubauth provides the session and authorization core for the
// club-membership application: identity session management, backend access
// token exchange, role resolution, and route gating.
//
// Session lifecycle:
//   - SessionManager is the single source of truth for the current identity.
//     It subscribes exactly once to an IdentityProvider change stream and
//     tracks two independent busy flags: Resolving (the one-shot cold-start
//     determination) and ActionBusy (explicit sign-in/up/out calls).
//   - Identity snapshots are replaced wholesale by provider events and never
//     mutated in place.
//
// Token exchange:
//   - TokenExchanger turns a resolved identity into a backend-recognized
//     bearer token, persists it in a TokenStore, and clears it on sign-out.
//     Exchange failures are non-fatal; authenticated backend calls degrade to
//     anonymous until a retry succeeds.
//
// Roles and gates:
//   - RoleResolver maps an identity's email to an authorization role with
//     per-key request dedup and a bounded freshness window.
//   - Route gates (RequireAuthenticated, RequireRole) decide allow, redirect,
//     or deny from the session snapshot and role state. Role gates never fail
//     open: an unknown role authorizes nothing.
package clubauth
