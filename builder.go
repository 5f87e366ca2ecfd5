package authsentry

import (
	"errors"
	"time"

	"github.com/MrEthical07/authsentry/internal/events"
	"github.com/MrEthical07/authsentry/internal/rate"
	"github.com/MrEthical07/authsentry/internal/twofactor"
	"github.com/MrEthical07/authsentry/internal/vault"
	"github.com/MrEthical07/authsentry/password"
	"github.com/MrEthical07/authsentry/session"
	"github.com/MrEthical07/authsentry/token"
	"github.com/redis/go-redis/v9"
)

// Builder defines a public type used by authsentry APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  *redis.Client

	roles map[string][]string

	accounts  AccountStore
	mailer    Mailer
	auditSink AuditSink
	alertHook AlertHook
	clock     Clock

	built bool
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or security checks fail.
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig may return an error when input validation, dependency calls, or security checks fail.
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis describes the withredis operation and its observable behavior.
//
// WithRedis may return an error when input validation, dependency calls, or security checks fail.
// WithRedis does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithAccountStore describes the withaccountstore operation and its observable behavior.
//
// WithAccountStore may return an error when input validation, dependency calls, or security checks fail.
// WithAccountStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.accounts = store
	return b
}

// WithMailer describes the withmailer operation and its observable behavior.
//
// WithMailer may return an error when input validation, dependency calls, or security checks fail.
// WithMailer does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink may return an error when input validation, dependency calls, or security checks fail.
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithAlertHook describes the withalerthook operation and its observable behavior.
//
// WithAlertHook may return an error when input validation, dependency calls, or security checks fail.
// WithAlertHook does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAlertHook(hook AlertHook) *Builder {
	b.alertHook = hook
	return b
}

// WithClock describes the withclock operation and its observable behavior.
//
// WithClock may return an error when input validation, dependency calls, or security checks fail.
// WithClock does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithClock(clock Clock) *Builder {
	b.clock = clock
	return b
}

// WithRoles describes the withroles operation and its observable behavior.
//
// WithRoles may return an error when input validation, dependency calls, or security checks fail.
// WithRoles does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRoles(r map[string][]string) *Builder {
	b.roles = r
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled may return an error when input validation, dependency calls, or security checks fail.
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.accounts == nil {
		return nil, errors.New("account store required")
	}

	now := b.clock
	if now == nil {
		now = time.Now
	}

	engine := &Engine{
		config:   cfg,
		accounts: b.accounts,
		mailer:   b.mailer,
		roles:    cloneRoles(b.roles),
		now:      now,
	}

	engine.sessions = session.NewStore(b.redis, cfg.RedisPrefix, now)
	engine.limiter = rate.New(b.redis, cfg.RedisPrefix, now)
	engine.tokens = vault.New(b.redis, cfg.RedisPrefix)
	engine.twofactor = twofactor.New(b.redis, cfg.RedisPrefix, twofactor.Config{
		Issuer:          cfg.TwoFactor.Issuer,
		Digits:          cfg.TwoFactor.Digits,
		Period:          cfg.TwoFactor.Period,
		Skew:            cfg.TwoFactor.Skew,
		BackupCodes:     cfg.TwoFactor.BackupCodes,
		PendingSetupTTL: cfg.TwoFactor.PendingSetupTTL,
	}, now)
	engine.events = events.NewRecorder(b.redis, cfg.RedisPrefix, events.Config{
		Enabled:          cfg.Audit.Enabled,
		BufferSize:       cfg.Audit.BufferSize,
		DropIfFull:       cfg.Audit.DropIfFull,
		Window:           cfg.Risk.Window,
		WindowSize:       cfg.Risk.WindowSize,
		DistinctIPHigh:   cfg.Risk.DistinctIPHigh,
		DistinctUAMedium: cfg.Risk.DistinctUAMed,
		EventCountMedium: cfg.Risk.EventCountMed,
	}, b.auditSink, b.alertHook, now)
	engine.metrics = NewMetrics(cfg.Metrics)

	ph, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	engine.hasher = ph

	signer, err := token.NewSigner(token.Config{
		AccessTTL:     cfg.Token.AccessTTL,
		RefreshTTL:    cfg.Token.RefreshTTL,
		SigningMethod: token.SigningMethod(cfg.Token.SigningMethod),
		PrivateKey:    cloneBytes(cfg.Token.PrivateKey),
		PublicKey:     cloneBytes(cfg.Token.PublicKey),
		Issuer:        cfg.Token.Issuer,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}
	engine.signer = signer

	b.built = true

	return engine, nil
}

func cloneRoles(src map[string][]string) map[string][]string {
	if src == nil {
		return nil
	}
	out := make(map[string][]string, len(src))
	for role, perms := range src {
		cp := make([]string, len(perms))
		copy(cp, perms)
		out[role] = cp
	}
	return out
}
