package authsentry

import (
	"context"
	"errors"
	"log"

	"github.com/MrEthical07/authsentry/internal/events"
	"github.com/MrEthical07/authsentry/internal/vault"
)

// SendEmailVerification describes the sendemailverification operation and its observable behavior.
//
// SendEmailVerification may return an error when input validation, dependency calls, or security checks fail.
// SendEmailVerification does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) SendEmailVerification(ctx context.Context, accountID string) error {
	if e == nil || e.accounts == nil {
		return ErrEngineNotReady
	}

	acct, err := e.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrUserNotFound
		}
		return wrapUnavailable("send_email_verification", err)
	}
	if acct.EmailVerified {
		return ErrValidation.WithDetails("reason", "already_verified")
	}

	allowed, err := e.limiter.Allow(ctx, "verify_"+acct.ID, e.config.RateLimit.VerifyRequests, e.config.RateLimit.VerifyWindow)
	if err != nil {
		return wrapUnavailable("send_email_verification", err)
	}
	if !allowed {
		e.recordEvent(ctx, events.TypeEmailVerify, acct.ID, false, RiskMedium, map[string]string{
			"reason": "rate_limit_exceeded",
		})
		return ErrRateLimitExceeded
	}

	plaintext, err := e.tokens.Issue(ctx, acct.ID, vault.PurposeVerify, e.config.OneTimeToken.VerifyTTL)
	if err != nil {
		return wrapUnavailable("send_email_verification", err)
	}
	if e.mailer != nil {
		if err := e.mailer.Send(ctx, acct.Email, MailEmailVerification, map[string]string{
			"token": plaintext,
		}); err != nil {
			log.Print("authsentry: verification mail delivery failed")
		}
	}

	e.metricInc(MetricEmailVerificationRequest)
	e.recordEvent(ctx, events.TypeEmailVerify, acct.ID, true, RiskLow, map[string]string{
		"stage": "requested",
	})
	return nil
}

// VerifyEmail describes the verifyemail operation and its observable behavior.
//
// VerifyEmail may return an error when input validation, dependency calls, or security checks fail.
// VerifyEmail does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) VerifyEmail(ctx context.Context, plaintextToken string) error {
	if e == nil || e.accounts == nil {
		return ErrEngineNotReady
	}

	accountID, err := e.tokens.Redeem(ctx, plaintextToken, vault.PurposeVerify)
	if err != nil {
		if errors.Is(err, vault.ErrTokenNotFound) || errors.Is(err, vault.ErrTokenUsed) {
			e.metricInc(MetricEmailVerificationFailure)
			e.recordEvent(ctx, events.TypeEmailVerify, events.UnknownAccount, false, RiskMedium, map[string]string{
				"reason": "invalid_token",
			})
			return ErrInvalidToken
		}
		return wrapUnavailable("verify_email", err)
	}

	if err := e.accounts.MarkEmailVerified(ctx, accountID); err != nil {
		return wrapUnavailable("verify_email", err)
	}
	acct, err := e.accounts.GetByID(ctx, accountID)
	if err == nil && acct.Status == AccountPendingVerification {
		if err := e.accounts.UpdateStatus(ctx, accountID, AccountActive); err != nil {
			return wrapUnavailable("verify_email", err)
		}
	}

	e.metricInc(MetricEmailVerificationSuccess)
	e.recordEvent(ctx, events.TypeEmailVerify, accountID, true, RiskLow, map[string]string{
		"stage": "completed",
	})
	return nil
}
