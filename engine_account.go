package authsentry

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/MrEthical07/authsentry/internal/events"
	"github.com/MrEthical07/authsentry/internal/vault"
)

// Register describes the register operation and its observable behavior.
//
// Register may return an error when input validation, dependency calls, or security checks fail.
// Register does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	if e == nil || e.hasher == nil || e.accounts == nil {
		return nil, ErrEngineNotReady
	}
	ip := clientIPFromContext(ctx)

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !validEmail(email) {
		return nil, ErrValidation.WithDetails("reason", "invalid_email")
	}
	if err := e.checkPasswordStrength(req.Password); err != nil {
		return nil, err
	}

	allowed, err := e.limiter.Allow(ctx, "register_"+ip, e.config.RateLimit.RegisterAttempts, e.config.RateLimit.RegisterWindow)
	if err != nil {
		return nil, wrapUnavailable("register", err)
	}
	if !allowed {
		e.recordEvent(ctx, events.TypeRegister, events.UnknownAccount, false, RiskMedium, map[string]string{
			"reason": "rate_limit_exceeded",
		})
		return nil, ErrRateLimitExceeded
	}

	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		return nil, wrapUnavailable("register", err)
	}

	role := req.Role
	if role == "" {
		role = "user"
	}

	acct, err := e.accounts.Create(ctx, CreateAccountInput{
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Status:       AccountPendingVerification,
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, ErrValidation.WithDetails("reason", "email_taken")
		}
		return nil, wrapUnavailable("register", err)
	}

	// Verification delivery is best-effort: a mail failure degrades the
	// result, it does not fail the registration.
	verificationSent := false
	if e.mailer != nil {
		plaintext, err := e.tokens.Issue(ctx, acct.ID, vault.PurposeVerify, e.config.OneTimeToken.VerifyTTL)
		if err != nil {
			log.Print("authsentry: verification token issue failed during registration")
		} else if err := e.mailer.Send(ctx, acct.Email, MailEmailVerification, map[string]string{
			"token": plaintext,
		}); err != nil {
			log.Print("authsentry: verification mail delivery failed during registration")
		} else {
			verificationSent = true
		}
	}

	e.metricInc(MetricRegisterSuccess)
	e.recordEvent(ctx, events.TypeRegister, acct.ID, true, RiskLow, map[string]string{
		"verification_sent": boolString(verificationSent),
	})

	return &RegisterResult{
		AccountID:        acct.ID,
		Email:            acct.Email,
		VerificationSent: verificationSent,
	}, nil
}

func boolString(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
