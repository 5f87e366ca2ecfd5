// Package twofactor manages the TOTP second factor: secret provisioning,
// the pending-setup record held apart from the live account until the
// first code confirms it, code verification within a bounded skew, and
// single-use backup codes stored only as SHA-256 hashes.
package twofactor
