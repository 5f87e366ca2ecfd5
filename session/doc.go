// Package session persists authenticated sessions in Redis: one record
// per session plus a per-account index ordered by last activity. The
// index is what makes the concurrent-session cap cheap to enforce — the
// stalest sessions are dropped server-side, never the one being created.
package session
