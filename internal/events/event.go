package events

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// RiskLevel is the coarse classification attached to security events.
// It prioritizes review and alerting; it is never a hard access gate.
type RiskLevel string

const (
	// RiskLow is an exported constant used by the authentication engine.
	RiskLow RiskLevel = "low"
	// RiskMedium is an exported constant used by the authentication engine.
	RiskMedium RiskLevel = "medium"
	// RiskHigh is an exported constant used by the authentication engine.
	RiskHigh RiskLevel = "high"
)

// Event type names recorded by the engine.
const (
	TypeLogin          = "login"
	TypeFailedLogin    = "failed_login"
	TypeLogout         = "logout"
	TypePasswordChange = "password_change"
	TypePasswordReset  = "password_reset"
	TypeTokenRefresh   = "token_refresh"
	TypeTwoFactorSetup = "2fa_setup"
	TypeTwoFactorOff   = "2fa_disable"
	TypeBackupCodeUsed = "backup_code_used"
	TypeEmailVerify    = "email_verification"
	TypeRegister       = "register"
)

// UnknownAccount is the AccountID recorded for pre-authentication failures
// that cannot be attributed to a specific account.
const UnknownAccount = "unknown"

// Event is a structured, immutable security-event record.
type Event struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	AccountID string            `json:"account_id"`
	Timestamp time.Time         `json:"timestamp"`
	IP        string            `json:"ip,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Success   bool              `json:"success"`
	RiskLevel RiskLevel         `json:"risk_level"`
	Details   map[string]string `json:"details,omitempty"`
}

// Sink receives [Event] values from the recorder's dispatcher.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink is a [Sink] that silently discards all events.
type NoOpSink struct{}

// Emit implements [Sink].
func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink is a buffered channel-based [Sink].
type ChannelSink struct {
	events chan Event
}

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

// Emit implements [Sink].
func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// Events exposes the receiving side of the sink.
func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink is a [Sink] that writes one JSON object per line to an
// [io.Writer].
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

// Emit implements [Sink].
func (s *JSONWriterSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
