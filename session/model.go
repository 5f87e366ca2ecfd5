package session

import (
	"crypto/rand"
	"encoding/base64"
)

// Session is one authenticated device/login instance. Inactive sessions
// are terminal: they are kept until their TTL for diagnostics but are
// excluded from validation and refresh.
type Session struct {
	SessionID    string `json:"sid"`
	AccountID    string `json:"account_id"`
	DeviceInfo   string `json:"device_info,omitempty"`
	IP           string `json:"ip,omitempty"`
	UserAgent    string `json:"user_agent,omitempty"`
	CreatedAt    int64  `json:"created_at"`
	LastActivity int64  `json:"last_activity"`
	LoggedOutAt  int64  `json:"logged_out_at,omitempty"`
	Active       bool   `json:"active"`
}

const sessionIDBytes = 16

// NewSessionID returns an unguessable 128-bit session identifier,
// base64url without padding.
func NewSessionID() (string, error) {
	var raw [sessionIDBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}
