package authsentry

import (
	"errors"
	"time"
)

// Config defines the engine's tuning parameters. Instances are configured
// during initialization and treated as immutable after [Builder.Build].
type Config struct {
	Token                TokenConfig
	Session              SessionConfig
	Password             PasswordConfig
	RateLimit            RateLimitConfig
	Lockout              LockoutConfig
	TwoFactor            TwoFactorConfig
	OneTimeToken         OneTimeTokenConfig
	Risk                 RiskConfig
	Audit                AuditConfig
	Metrics              MetricsConfig
	RequireVerifiedEmail bool
	RedisPrefix          string
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig configures signed access and refresh token issuance.
type TokenConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig bounds concurrent sessions and idle lifetime.
type SessionConfig struct {
	MaxSessions      int
	IdleTimeout      time.Duration
	AbsoluteLifetime time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig carries the Argon2id work factors and the password policy.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	// MinLength applies to new passwords (register, change, reset).
	// MinLoginLength is the laxer floor applied at login so accounts
	// created under an older policy can still authenticate.
	MinLength      int
	MinLoginLength int
	MaxAge         time.Duration
	UpgradeOnLogin bool
}

// RateLimitConfig bounds attempt volume per logical key within a sliding
// window. Keys: login_<ip>, reset_<email>, verify_<accountId>.
type RateLimitConfig struct {
	LoginAttempts    int
	LoginWindow      time.Duration
	ResetRequests    int
	ResetWindow      time.Duration
	VerifyRequests   int
	VerifyWindow     time.Duration
	RegisterAttempts int
	RegisterWindow   time.Duration
}

// LockoutConfig drives the escalating failed-login lockout:
// after Threshold cumulative failures the account locks for
// min(attempts*StepMinutes, MaxMinutes) minutes.
type LockoutConfig struct {
	Threshold   int
	StepMinutes int
	MaxMinutes  int
}

// Duration returns the lockout duration for the given cumulative attempt
// count.
func (c LockoutConfig) Duration(attempts int) time.Duration {
	minutes := attempts * c.StepMinutes
	if minutes > c.MaxMinutes {
		minutes = c.MaxMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// TwoFactorConfig configures TOTP and backup codes.
type TwoFactorConfig struct {
	Issuer          string
	Digits          int
	Period          int
	Skew            int
	BackupCodes     int
	PendingSetupTTL time.Duration
}

// OneTimeTokenConfig carries the TTLs for password-reset and
// email-verification tokens.
type OneTimeTokenConfig struct {
	ResetTTL  time.Duration
	VerifyTTL time.Duration
}

// RiskConfig carries the login risk-classification thresholds. These are
// heuristics, tunable per deployment, not calibrated constants.
type RiskConfig struct {
	Window         time.Duration
	WindowSize     int
	DistinctIPHigh int
	DistinctUAMed  int
	EventCountMed  int
}

// AuditConfig configures the security-event dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig configures the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig describes the defaultconfig operation and its observable behavior.
//
// DefaultConfig may return an error when input validation, dependency calls, or security checks fail.
// DefaultConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:     time.Hour,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "ed25519",
			Issuer:        "authsentry",
		},
		Session: SessionConfig{
			MaxSessions:      5,
			IdleTimeout:      30 * time.Minute,
			AbsoluteLifetime: 7 * 24 * time.Hour,
		},
		Password: PasswordConfig{
			Memory:         64 * 1024,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			MinLength:      12,
			MinLoginLength: 8,
			MaxAge:         90 * 24 * time.Hour,
			UpgradeOnLogin: true,
		},
		RateLimit: RateLimitConfig{
			LoginAttempts:    10,
			LoginWindow:      time.Minute,
			ResetRequests:    5,
			ResetWindow:      24 * time.Hour,
			VerifyRequests:   5,
			VerifyWindow:     time.Hour,
			RegisterAttempts: 10,
			RegisterWindow:   time.Hour,
		},
		Lockout: LockoutConfig{
			Threshold:   5,
			StepMinutes: 5,
			MaxMinutes:  60,
		},
		TwoFactor: TwoFactorConfig{
			Issuer:          "authsentry",
			Digits:          6,
			Period:          30,
			Skew:            2,
			BackupCodes:     8,
			PendingSetupTTL: time.Hour,
		},
		OneTimeToken: OneTimeTokenConfig{
			ResetTTL:  15 * time.Minute,
			VerifyTTL: 24 * time.Hour,
		},
		Risk: RiskConfig{
			Window:         24 * time.Hour,
			WindowSize:     20,
			DistinctIPHigh: 5,
			DistinctUAMed:  3,
			EventCountMed:  10,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		RequireVerifiedEmail: true,
		RedisPrefix:          "ase",
	}
}

// Validate rejects configurations the engine cannot run safely with.
func (c Config) Validate() error {
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.Token.AccessTTL > c.Token.RefreshTTL {
		return errors.New("access TTL must not exceed refresh TTL")
	}
	switch c.Token.SigningMethod {
	case "ed25519", "hs256":
	default:
		return errors.New("unsupported signing method")
	}
	if c.Session.MaxSessions <= 0 {
		return errors.New("session cap must be positive")
	}
	if c.Session.IdleTimeout <= 0 || c.Session.AbsoluteLifetime <= 0 {
		return errors.New("session lifetimes must be positive")
	}
	if c.Password.MinLength < 8 || c.Password.MinLoginLength < 1 {
		return errors.New("password minimum lengths out of range")
	}
	if c.RateLimit.LoginAttempts <= 0 || c.RateLimit.LoginWindow <= 0 {
		return errors.New("login rate limit must be positive")
	}
	if c.RateLimit.ResetRequests <= 0 || c.RateLimit.ResetWindow <= 0 {
		return errors.New("reset rate limit must be positive")
	}
	if c.RateLimit.VerifyRequests <= 0 || c.RateLimit.VerifyWindow <= 0 {
		return errors.New("verification rate limit must be positive")
	}
	if c.Lockout.Threshold <= 0 || c.Lockout.StepMinutes <= 0 || c.Lockout.MaxMinutes < c.Lockout.StepMinutes {
		return errors.New("lockout policy out of range")
	}
	if c.TwoFactor.Digits < 6 || c.TwoFactor.Digits > 8 {
		return errors.New("totp digits must be 6..8")
	}
	if c.TwoFactor.Period <= 0 || c.TwoFactor.Skew < 0 {
		return errors.New("totp period/skew out of range")
	}
	if c.TwoFactor.BackupCodes <= 0 || c.TwoFactor.PendingSetupTTL <= 0 {
		return errors.New("two-factor backup/pending settings out of range")
	}
	if c.OneTimeToken.ResetTTL <= 0 || c.OneTimeToken.VerifyTTL <= 0 {
		return errors.New("one-time token TTLs must be positive")
	}
	if c.Risk.Window <= 0 || c.Risk.WindowSize <= 0 {
		return errors.New("risk window out of range")
	}
	if c.RedisPrefix == "" {
		return errors.New("redis prefix required")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
