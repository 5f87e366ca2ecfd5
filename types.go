package authsentry

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/MrEthical07/authsentry/internal/events"
	"github.com/MrEthical07/authsentry/session"
)

// AccountStatus represents the lifecycle state of an account.
type AccountStatus uint8

const (
	// AccountPendingVerification is an exported constant used by the authentication engine.
	AccountPendingVerification AccountStatus = iota
	// AccountActive is an exported constant used by the authentication engine.
	AccountActive
	// AccountSuspended is an exported constant used by the authentication engine.
	AccountSuspended
	// AccountLockedStatus marks an account administratively locked. Lockouts
	// driven by failed logins are expressed through LockedUntil instead.
	AccountLockedStatus
)

// Account is the full credential record returned by [AccountStore].
// TwoFactorSecret is opaque engine state and must never be serialized to
// clients by integrators.
type Account struct {
	ID                string
	Email             string
	PasswordHash      string
	Status            AccountStatus
	EmailVerified     bool
	TwoFactorEnabled  bool
	TwoFactorSecret   string
	Role              string
	FailedAttempts    int
	LockedUntil       time.Time
	PasswordChangedAt time.Time
	LastLoginAt       time.Time
	LoginCount        int64
	CreatedAt         time.Time
}

// LockedAt reports whether the account is under a failed-login lockout at
// the given instant. Status and LockedUntil are checked together so a
// lockout in the future always wins regardless of status.
func (a Account) LockedAt(now time.Time) bool {
	if a.Status == AccountLockedStatus {
		return true
	}
	return !a.LockedUntil.IsZero() && a.LockedUntil.After(now)
}

// BackupCodeRecord stores the SHA-256 hash of a single backup code.
// The plaintext is never persisted.
type BackupCodeRecord struct {
	Hash [32]byte
}

// CreateAccountInput is the input for [AccountStore.Create].
type CreateAccountInput struct {
	Email        string
	PasswordHash string
	Role         string
	Status       AccountStatus
}

var (
	// ErrAccountNotFound is returned by AccountStore implementations for
	// missing records. The engine maps it to enumeration-safe errors.
	ErrAccountNotFound = errors.New("account not found")
	// ErrDuplicateEmail is returned by AccountStore implementations when a
	// create collides with an existing email.
	ErrDuplicateEmail = errors.New("email already registered")
)

// AccountStore is the durable credential store collaborator. Implementations
// back it with their document database; [MemStore] is the in-memory reference
// used by tests and examples.
//
// Concurrency contract: RecordLoginFailure must be an atomic increment
// returning the post-increment count (lost updates may delay a lockout but
// the counter must never decrease), and ConsumeBackupCode must be an atomic
// check-and-remove so a backup code can never be spent twice.
type AccountStore interface {
	GetByID(ctx context.Context, id string) (Account, error)
	GetByEmail(ctx context.Context, email string) (Account, error)
	Create(ctx context.Context, input CreateAccountInput) (Account, error)
	UpdatePasswordHash(ctx context.Context, id, hash string, changedAt time.Time) error
	UpdateStatus(ctx context.Context, id string, status AccountStatus) error
	MarkEmailVerified(ctx context.Context, id string) error

	RecordLoginSuccess(ctx context.Context, id string, at time.Time) error
	RecordLoginFailure(ctx context.Context, id string) (int, error)
	SetLockout(ctx context.Context, id string, until time.Time) error
	ClearLockout(ctx context.Context, id string) error

	EnableTwoFactor(ctx context.Context, id, secret string, codes []BackupCodeRecord) error
	DisableTwoFactor(ctx context.Context, id string) error
	ReplaceBackupCodes(ctx context.Context, id string, codes []BackupCodeRecord) error
	ConsumeBackupCode(ctx context.Context, id string, hash [32]byte) (remaining int, ok bool, err error)
}

// MailKind selects the outbound template for [Mailer.Send].
type MailKind string

const (
	// MailPasswordReset is an exported constant used by the authentication engine.
	MailPasswordReset MailKind = "password_reset"
	// MailEmailVerification is an exported constant used by the authentication engine.
	MailEmailVerification MailKind = "email_verification"
)

// Mailer delivers notification email. Calls are fire-and-forget from the
// engine's perspective: failures are logged, never fatal to the originating
// flow, except that registration reports VerificationSent=false.
type Mailer interface {
	Send(ctx context.Context, address string, kind MailKind, data map[string]string) error
}

// Clock supplies the engine's notion of now. Injected for testability.
type Clock func() time.Time

// AlertHook receives high-risk security events, best-effort. Panics and
// slow hooks never affect the recording path.
type AlertHook func(event SecurityEvent)

// SecurityEvent is an append-only audit record emitted by the engine.
type SecurityEvent = events.Event

// RiskLevel is the coarse risk classification attached to security events.
type RiskLevel = events.RiskLevel

const (
	// RiskLow is an exported constant used by the authentication engine.
	RiskLow = events.RiskLow
	// RiskMedium is an exported constant used by the authentication engine.
	RiskMedium = events.RiskMedium
	// RiskHigh is an exported constant used by the authentication engine.
	RiskHigh = events.RiskHigh
)

// AuditSink receives [SecurityEvent] values from the engine's dispatcher.
type AuditSink = events.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = events.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = events.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = events.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return events.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return events.NewJSONWriterSink(w)
}

// Session is one authenticated device/login instance.
type Session = session.Session

// LoginRequest is the input for [Engine.Login]. Client IP and user agent
// travel on the context via [WithClientIP] and [WithUserAgent].
type LoginRequest struct {
	Email         string
	Password      string
	TwoFactorCode string
	DeviceInfo    string
}

// LoginResult is returned by [Engine.Login] on success.
type LoginResult struct {
	AccountID    string
	Email        string
	Role         string
	SessionID    string
	AccessToken  string
	RefreshToken string
	RiskLevel    RiskLevel
}

// TokenPair is returned by [Engine.RefreshToken].
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// RegisterRequest is the input for [Engine.Register].
type RegisterRequest struct {
	Email    string
	Password string
	Role     string
}

// RegisterResult is returned by [Engine.Register]. VerificationSent is
// false when the verification email could not be handed to the mailer;
// registration still succeeds in that case.
type RegisterResult struct {
	AccountID        string
	Email            string
	VerificationSent bool
}

// TwoFactorSetup holds the shared secret, otpauth:// provisioning URI, and
// single-use backup codes returned by [Engine.Setup2FA]. The backup code
// plaintexts appear here exactly once.
type TwoFactorSetup struct {
	Secret          string
	ProvisioningURI string
	BackupCodes     []string
}

// SecurityReport is a read-only snapshot of the engine's security posture.
type SecurityReport struct {
	SigningAlgorithm     string
	AccessTTL            time.Duration
	RefreshTTL           time.Duration
	Argon2               PasswordConfigReport
	MaxSessions          int
	SessionIdleTimeout   time.Duration
	LockoutThreshold     int
	PasswordMaxAge       time.Duration
	RequireVerifiedEmail bool
	TwoFactorIssuer      string
}

// PasswordConfigReport contains the Argon2 parameters active in the engine.
type PasswordConfigReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}
