package authsentry

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"

	"github.com/MrEthical07/authsentry/internal/events"
	"github.com/MrEthical07/authsentry/internal/rate"
	"github.com/MrEthical07/authsentry/internal/twofactor"
	"github.com/MrEthical07/authsentry/internal/vault"
	"github.com/MrEthical07/authsentry/password"
	"github.com/MrEthical07/authsentry/session"
	"github.com/MrEthical07/authsentry/token"
)

// Engine defines a public type used by authsentry APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config    Config
	accounts  AccountStore
	sessions  *session.Store
	limiter   *rate.Limiter
	tokens    *vault.Vault
	twofactor *twofactor.Manager
	events    *events.Recorder
	signer    *token.Signer
	hasher    *password.Hasher
	mailer    Mailer
	metrics   *Metrics
	roles     map[string][]string
	now       Clock
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.events != nil {
		e.events.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped may return an error when input validation, dependency calls, or security checks fail.
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.events == nil {
		return 0
	}
	return e.events.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot may return an error when input validation, dependency calls, or security checks fail.
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters: map[MetricID]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) recordEvent(ctx context.Context, eventType, accountID string, success bool, risk RiskLevel, details map[string]string) {
	if e == nil || e.events == nil {
		return
	}
	e.events.Record(ctx, events.Event{
		Type:      eventType,
		AccountID: accountID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		RiskLevel: risk,
		Details:   details,
	})
}

// isDomainErr reports whether err carries a typed engine error kind, as
// opposed to an unclassified collaborator failure.
func isDomainErr(err error) bool {
	var typed *Error
	return errors.As(err, &typed)
}

// Login describes the login operation and its observable behavior.
//
// Login may return an error when input validation, dependency calls, or security checks fail.
// Login does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if e == nil || e.hasher == nil || e.accounts == nil {
		return nil, ErrEngineNotReady
	}

	result, err := e.loginInternal(ctx, req)
	if err != nil && !isDomainErr(err) {
		// Authentication failures must never leave the audit trail silently.
		e.recordEvent(ctx, events.TypeFailedLogin, events.UnknownAccount, false, RiskMedium, map[string]string{
			"reason": err.Error(),
		})
		return nil, wrapUnavailable("login", err)
	}
	return result, err
}

func (e *Engine) loginInternal(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	ip := clientIPFromContext(ctx)

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !validEmail(email) || len(req.Password) < e.config.Password.MinLoginLength {
		return nil, ErrValidation.WithDetails("reason", "request_shape")
	}

	allowed, err := e.limiter.Allow(ctx, "login_"+ip, e.config.RateLimit.LoginAttempts, e.config.RateLimit.LoginWindow)
	if err != nil {
		return nil, err
	}
	if !allowed {
		e.metricInc(MetricLoginRateLimited)
		e.recordEvent(ctx, events.TypeFailedLogin, events.UnknownAccount, false, RiskMedium, map[string]string{
			"reason": "rate_limit_exceeded",
		})
		return nil, ErrRateLimitExceeded
	}

	acct, err := e.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.metricInc(MetricLoginFailure)
			e.recordEvent(ctx, events.TypeFailedLogin, events.UnknownAccount, false, RiskLow, map[string]string{
				"reason": "account_not_found",
			})
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	// Status gates run before password verification so attempts against a
	// locked or suspended account cannot extend the lock. Precedence:
	// suspended, then unverified, then locked, then expired password.
	if acct.Status == AccountSuspended {
		e.metricInc(MetricLoginFailure)
		e.recordEvent(ctx, events.TypeFailedLogin, acct.ID, false, RiskMedium, map[string]string{
			"reason": "account_suspended",
		})
		return nil, ErrAccountSuspended
	}
	if acct.Status == AccountPendingVerification {
		e.metricInc(MetricLoginFailure)
		e.recordEvent(ctx, events.TypeFailedLogin, acct.ID, false, RiskLow, map[string]string{
			"reason": "email_not_verified",
		})
		return nil, ErrEmailNotVerified
	}
	if acct.LockedAt(e.now()) {
		e.metricInc(MetricLoginFailure)
		e.recordEvent(ctx, events.TypeFailedLogin, acct.ID, false, RiskMedium, map[string]string{
			"reason": "account_locked",
		})
		return nil, ErrAccountLocked.WithDetails("locked_until", acct.LockedUntil.UTC().Format("2006-01-02T15:04:05Z07:00"))
	}
	if e.config.Password.MaxAge > 0 && !acct.PasswordChangedAt.IsZero() &&
		e.now().Sub(acct.PasswordChangedAt) > e.config.Password.MaxAge {
		e.metricInc(MetricLoginFailure)
		e.recordEvent(ctx, events.TypeFailedLogin, acct.ID, false, RiskMedium, map[string]string{
			"reason": "password_expired",
		})
		return nil, ErrPasswordExpired
	}
	if e.config.RequireVerifiedEmail && !acct.EmailVerified {
		e.metricInc(MetricLoginFailure)
		e.recordEvent(ctx, events.TypeFailedLogin, acct.ID, false, RiskLow, map[string]string{
			"reason": "email_not_verified",
		})
		return nil, ErrEmailNotVerified
	}

	// Advisory only; attached to the audit trail, never a hard gate.
	risk, err := e.events.ClassifyLoginRisk(ctx, acct.ID, ip, userAgentFromContext(ctx))
	if err != nil {
		risk = RiskLow
	}

	if acct.TwoFactorEnabled {
		if req.TwoFactorCode == "" {
			e.metricInc(MetricTwoFactorRequired)
			e.recordEvent(ctx, events.TypeLogin, acct.ID, false, risk, map[string]string{
				"requires_2fa": "true",
			})
			return nil, ErrTwoFactorRequired
		}
		ok, err := e.verifyTwoFactorCode(ctx, &acct, req.TwoFactorCode)
		if err != nil {
			return nil, err
		}
		if !ok {
			e.metricInc(MetricTwoFactorFailure)
			e.handleFailedLogin(ctx, &acct, "invalid_2fa")
			return nil, ErrInvalidTwoFactorCode
		}
		e.metricInc(MetricTwoFactorSuccess)
	}

	passOK, err := e.hasher.Verify(req.Password, acct.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !passOK {
		e.handleFailedLogin(ctx, &acct, "invalid_password")
		return nil, ErrInvalidCredentials
	}

	if e.config.Password.UpgradeOnLogin {
		if stale, err := e.hasher.NeedsRehash(acct.PasswordHash); err == nil && stale {
			if upgraded, err := e.hasher.Hash(req.Password); err == nil {
				// Best-effort; must not block a successful login.
				if err := e.accounts.UpdatePasswordHash(ctx, acct.ID, upgraded, acct.PasswordChangedAt); err != nil {
					log.Print("authsentry: password hash upgrade update failed")
				}
			} else {
				log.Print("authsentry: password hash upgrade generation failed")
			}
		}
	}

	now := e.now()
	if err := e.accounts.RecordLoginSuccess(ctx, acct.ID, now); err != nil {
		return nil, err
	}

	sid, err := session.NewSessionID()
	if err != nil {
		return nil, err
	}
	sess := &session.Session{
		SessionID:    sid,
		AccountID:    acct.ID,
		DeviceInfo:   req.DeviceInfo,
		IP:           ip,
		UserAgent:    userAgentFromContext(ctx),
		CreatedAt:    now.Unix(),
		LastActivity: now.Unix(),
		Active:       true,
	}
	evicted, err := e.sessions.Create(ctx, sess, e.config.Session.MaxSessions, e.config.Session.AbsoluteLifetime)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricSessionCreated)
	for range evicted {
		e.metricInc(MetricSessionInvalidated)
	}

	access, err := e.signer.SignAccess(acct.ID, acct.Email, acct.Role, sid)
	if err != nil {
		return nil, err
	}
	refresh, err := e.signer.SignRefresh(acct.ID, sid)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.recordEvent(ctx, events.TypeLogin, acct.ID, true, risk, map[string]string{
		"device_info": req.DeviceInfo,
		"session_id":  sid,
	})

	return &LoginResult{
		AccountID:    acct.ID,
		Email:        acct.Email,
		Role:         acct.Role,
		SessionID:    sid,
		AccessToken:  access,
		RefreshToken: refresh,
		RiskLevel:    risk,
	}, nil
}

// handleFailedLogin is the shared failure path for wrong passwords and bad
// two-factor codes: it bumps the persistent failed-attempt counter, applies
// the escalating lockout once past the threshold, and writes the audit event.
func (e *Engine) handleFailedLogin(ctx context.Context, acct *Account, reason string) {
	e.metricInc(MetricLoginFailure)

	attempts, err := e.accounts.RecordLoginFailure(ctx, acct.ID)
	if err != nil {
		log.Print("authsentry: failed-attempt counter update failed")
		e.recordEvent(ctx, events.TypeFailedLogin, acct.ID, false, RiskMedium, map[string]string{
			"reason": reason,
		})
		return
	}

	locked := false
	if attempts >= e.config.Lockout.Threshold {
		until := e.now().Add(e.config.Lockout.Duration(attempts))
		if err := e.accounts.SetLockout(ctx, acct.ID, until); err != nil {
			log.Print("authsentry: lockout update failed")
		} else {
			locked = true
			e.metricInc(MetricAccountLocked)
		}
	}

	risk := RiskMedium
	if locked {
		risk = RiskHigh
	}
	e.recordEvent(ctx, events.TypeFailedLogin, acct.ID, false, risk, map[string]string{
		"reason":          reason,
		"failed_attempts": strconv.Itoa(attempts),
	})
}

// verifyTwoFactorCode accepts either a current TOTP code or one of the
// account's remaining backup codes. Backup-code consumption is single use
// and emits its own audit event with the remaining count.
func (e *Engine) verifyTwoFactorCode(ctx context.Context, acct *Account, code string) (bool, error) {
	if e.twofactor.VerifyTOTP(acct.TwoFactorSecret, code) {
		return true, nil
	}

	remaining, ok, err := e.accounts.ConsumeBackupCode(ctx, acct.ID, twofactor.HashBackupCode(code))
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	e.metricInc(MetricBackupCodeUsed)
	e.recordEvent(ctx, events.TypeBackupCodeUsed, acct.ID, true, RiskMedium, map[string]string{
		"codes_remaining": strconv.Itoa(remaining),
	})
	return true, nil
}
