// Package auth provides the identity, credential, and access-gating
// primitives for a multi-tenant feedback platform: JWT session
// credentials, Bun-backed repositories, verification tokens, and a
// request gate for HTTP routers.
//
// Account lifecycle:
//   - Users carry a UserStatus persisted via Bun. Accounts start
//     pending, become active on email verification, and can be
//     deactivated and reactivated. UpdateStatusTx enforces the
//     transition graph with a compare-and-set write.
//   - Verification tokens cover both email verification and password
//     reset. Redemption is a single atomic consume: a token either
//     redeems exactly once or not at all.
//
// Tenancy:
//   - A Business is the tenant boundary. RegisterBusiness provisions
//     the business and elevates the owner to business admin in one
//     transaction, so a business never exists without an empowered
//     owner.
//
// Request gating:
//   - Gate composes an ordered chain of checks (waitlist override,
//     credential enforcement, authorization extension point) into a
//     single router middleware. Unauthenticated traffic is redirected,
//     never rejected with raw errors, and stale cookies are cleared
//     to prevent redirect loops.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by Auther and
//     the command handlers for login, verification, password reset,
//     and provisioning events. Sinks run best-effort (errors are
//     logged) so delivery never blocks authentication.
package auth
