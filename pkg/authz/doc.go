// Package authz implements the access-control core of the StagePass admin
// platform: the permission data model, the claims resolver, and the pure
// predicate library consulted by both server-side endpoint guards and
// client-side UI gating.
//
// # Roles
//
// Three mutually exclusive admin tiers, in descending privilege:
//
//	superadmin   - full access to every client and event; needs no stored
//	               permission record (token claims are sufficient)
//	clientAdmin  - full access within an explicit set of clients
//	eventAdmin   - content access within an explicit set of events inside
//	               an explicit set of clients
//
// # Permission records
//
// A PermissionRecord is the durable grant for one principal, keyed by the
// principal ID. ClientIDs and EventIDs are nilable on purpose: nil means
// "all" (superadmin scope), an empty list means "none". Conflating the two
// would silently widen or revoke access, so predicates treat them as
// distinct everywhere.
//
// # Claims resolution and self-healing
//
// Token claims are a fast-path cache of the record store and can go stale:
// after migrations, after manual store edits, or after the identity
// provider re-links an email to a new principal ID. Resolver repairs the
// mismatch instead of trusting either side blindly:
//
//	res, err := resolver.Resolve(ctx, claims)
//
// walks claims, then the record by principal ID, then the record by email.
// A record found by email is migrated to the canonical principal ID and the
// claims are written back through the identity provider so the next token
// is correct. The whole chain is idempotent; a second call takes the fast
// path and performs no writes.
//
// # Predicates
//
// The predicate functions (CanAccessClient, CanWriteEvent, ...) are total
// and side-effect-free: they return false rather than erroring on nil or
// malformed input. Structural event writes (create/delete the event) are
// reserved for clientAdmin and above; event content writes additionally
// admit eventAdmins scoped to the event. That asymmetry is intentional.
package authz
