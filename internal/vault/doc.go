// Package vault issues and redeems opaque one-time tokens for password
// reset and email verification. Only the SHA-256 of a token is ever
// persisted, and redemption is a single atomic check-unused-and-mark-used
// step so a token can never be spent twice, even concurrently.
package vault
