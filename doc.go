// Package authsentry is an embeddable authentication and session security
// engine: rate-limited login with escalating lockout, Redis-backed sessions
// with a per-account concurrency cap, TOTP two-factor with single-use backup
// codes, one-time tokens for password reset and email verification, and an
// append-only security-event trail with coarse risk classification.
//
// The engine owns no user storage of its own; callers supply an
// [AccountStore] backed by their database and receive typed errors suitable
// for mapping onto transport responses.
package authsentry
