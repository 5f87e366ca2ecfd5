// Package token signs and verifies the engine's JWTs: short-lived access
// tokens carrying account, email, role, and session identity, and
// longer-lived refresh tokens carrying account and session only. Both are
// typed so one can never be presented where the other is expected.
package token
