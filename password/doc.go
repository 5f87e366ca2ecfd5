// Package password provides the engine's adaptive password hasher:
// Argon2id with tunable work factors, encoded in the PHC string format so
// parameters travel with each hash and old hashes keep verifying after
// the configuration is strengthened.
package password
