// Package auth provides authentication and authorisation for the Vyon
// platform.
//
// It implements a five-tier role model (student → parent → teacher →
// school_admin → system_admin) with:
//   - Argon2id password hashing, with transparent upgrade of legacy bcrypt digests
//   - Session-bound HMAC JWTs: every access token's jti names a session row
//   - Refresh rotation on use, keeping the session's original refresh deadline
//   - Single-use password reset tokens backed by a redemption ledger
//   - Organization (tenant) scoping for every non-system_admin principal
//
// The session row, not the token, decides whether an access token is
// usable: logout, password change and password reset revoke sessions and
// the gate rejects their tokens immediately.
//
// Every mutating workflow runs in one Store.InTx transaction. The
// repositories handed to the callback are bound to that transaction.
package auth
