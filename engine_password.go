package authsentry

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/MrEthical07/authsentry/internal/events"
	"github.com/MrEthical07/authsentry/internal/vault"
)

// ChangePassword describes the changepassword operation and its observable behavior.
//
// ChangePassword may return an error when input validation, dependency calls, or security checks fail.
// ChangePassword does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ChangePassword(ctx context.Context, accountID, oldPassword, newPassword string) error {
	if e == nil || e.hasher == nil || e.accounts == nil {
		return ErrEngineNotReady
	}
	if accountID == "" || oldPassword == "" || newPassword == "" {
		return ErrValidation.WithDetails("reason", "missing_field")
	}

	acct, err := e.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrUserNotFound
		}
		return wrapUnavailable("change_password", err)
	}

	oldOK, err := e.hasher.Verify(oldPassword, acct.PasswordHash)
	if err != nil {
		return wrapUnavailable("change_password", err)
	}
	if !oldOK {
		e.recordEvent(ctx, events.TypePasswordChange, accountID, false, RiskMedium, map[string]string{
			"reason": "invalid_current_password",
		})
		return ErrInvalidCredentials
	}

	if err := e.checkPasswordStrength(newPassword); err != nil {
		return err
	}
	same, err := e.hasher.Verify(newPassword, acct.PasswordHash)
	if err == nil && same {
		return ErrWeakPassword.WithDetails("reason", "reuse")
	}

	newHash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return wrapUnavailable("change_password", err)
	}
	if err := e.accounts.UpdatePasswordHash(ctx, accountID, newHash, e.now()); err != nil {
		return wrapUnavailable("change_password", err)
	}
	if err := e.accounts.ClearLockout(ctx, accountID); err != nil {
		log.Print("authsentry: lockout clear failed after password change")
	}

	invalidated, err := e.sessions.InvalidateAll(ctx, accountID)
	if err != nil {
		e.recordEvent(ctx, events.TypePasswordChange, accountID, false, RiskMedium, map[string]string{
			"reason": "session_invalidation_failed",
		})
		return wrapUnavailable("change_password", err)
	}
	for i := 0; i < invalidated; i++ {
		e.metricInc(MetricSessionInvalidated)
	}

	e.metricInc(MetricPasswordChange)
	e.recordEvent(ctx, events.TypePasswordChange, accountID, true, RiskLow, nil)
	return nil
}

// ForgotPassword describes the forgotpassword operation and its observable behavior.
//
// ForgotPassword may return an error when input validation, dependency calls, or security checks fail.
// ForgotPassword does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ForgotPassword(ctx context.Context, email string) error {
	if e == nil || e.accounts == nil {
		return ErrEngineNotReady
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if !validEmail(email) {
		return ErrValidation.WithDetails("reason", "invalid_email")
	}

	// Keyed per email regardless of whether an account exists, so the
	// limiter itself cannot be used as an enumeration oracle.
	allowed, err := e.limiter.Allow(ctx, "reset_"+email, e.config.RateLimit.ResetRequests, e.config.RateLimit.ResetWindow)
	if err != nil {
		return wrapUnavailable("forgot_password", err)
	}
	if !allowed {
		e.recordEvent(ctx, events.TypePasswordReset, events.UnknownAccount, false, RiskMedium, map[string]string{
			"reason": "rate_limit_exceeded",
		})
		return ErrRateLimitExceeded
	}

	acct, err := e.accounts.GetByEmail(ctx, email)
	if err != nil {
		// Unknown emails report success to the caller.
		if errors.Is(err, ErrAccountNotFound) {
			e.recordEvent(ctx, events.TypePasswordReset, events.UnknownAccount, false, RiskLow, map[string]string{
				"reason": "account_not_found",
			})
			return nil
		}
		return wrapUnavailable("forgot_password", err)
	}

	plaintext, err := e.tokens.Issue(ctx, acct.ID, vault.PurposeReset, e.config.OneTimeToken.ResetTTL)
	if err != nil {
		return wrapUnavailable("forgot_password", err)
	}
	if e.mailer != nil {
		if err := e.mailer.Send(ctx, acct.Email, MailPasswordReset, map[string]string{
			"token": plaintext,
		}); err != nil {
			log.Print("authsentry: reset mail delivery failed")
		}
	}

	e.metricInc(MetricPasswordResetRequest)
	e.recordEvent(ctx, events.TypePasswordReset, acct.ID, true, RiskLow, map[string]string{
		"stage": "requested",
	})
	return nil
}

// ResetPassword describes the resetpassword operation and its observable behavior.
//
// ResetPassword may return an error when input validation, dependency calls, or security checks fail.
// ResetPassword does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ResetPassword(ctx context.Context, plaintextToken, newPassword string) error {
	if e == nil || e.hasher == nil || e.accounts == nil {
		return ErrEngineNotReady
	}

	// Strength runs before redemption so a doomed request does not burn a
	// valid token.
	if err := e.checkPasswordStrength(newPassword); err != nil {
		return err
	}

	accountID, err := e.tokens.Redeem(ctx, plaintextToken, vault.PurposeReset)
	if err != nil {
		if errors.Is(err, vault.ErrTokenNotFound) || errors.Is(err, vault.ErrTokenUsed) {
			e.metricInc(MetricPasswordResetFailure)
			e.recordEvent(ctx, events.TypePasswordReset, events.UnknownAccount, false, RiskMedium, map[string]string{
				"reason": "invalid_token",
			})
			return ErrInvalidToken
		}
		return wrapUnavailable("reset_password", err)
	}

	newHash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return wrapUnavailable("reset_password", err)
	}
	if err := e.accounts.UpdatePasswordHash(ctx, accountID, newHash, e.now()); err != nil {
		return wrapUnavailable("reset_password", err)
	}
	if err := e.accounts.ClearLockout(ctx, accountID); err != nil {
		log.Print("authsentry: lockout clear failed after password reset")
	}

	invalidated, err := e.sessions.InvalidateAll(ctx, accountID)
	if err != nil {
		log.Print("authsentry: session invalidation failed after password reset")
	}
	for i := 0; i < invalidated; i++ {
		e.metricInc(MetricSessionInvalidated)
	}

	e.metricInc(MetricPasswordResetSuccess)
	e.recordEvent(ctx, events.TypePasswordReset, accountID, true, RiskLow, map[string]string{
		"stage": "completed",
	})
	return nil
}
