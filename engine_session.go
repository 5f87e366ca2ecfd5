package authsentry

import (
	"context"
	"errors"
	"strconv"

	"github.com/MrEthical07/authsentry/internal/events"
	"github.com/MrEthical07/authsentry/session"
)

func (e *Engine) mapSessionErr(op string, err error) error {
	switch {
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, session.ErrInactive),
		errors.Is(err, session.ErrWrongAccount),
		errors.Is(err, session.ErrIdleExpired):
		return ErrSessionExpired
	default:
		return wrapUnavailable(op, err)
	}
}

// Logout describes the logout operation and its observable behavior.
//
// Logout may return an error when input validation, dependency calls, or security checks fail.
// Logout does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}

	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return e.mapSessionErr("logout", err)
	}
	// Inactive records are terminal; a repeat logout reports expiry rather
	// than pretending to have logged anything out.
	if !sess.Active {
		return ErrSessionExpired
	}
	if err := e.sessions.Invalidate(ctx, sessionID); err != nil {
		return e.mapSessionErr("logout", err)
	}

	e.metricInc(MetricLogout)
	e.metricInc(MetricSessionInvalidated)
	e.recordEvent(ctx, events.TypeLogout, sess.AccountID, true, RiskLow, map[string]string{
		"session_id": sessionID,
	})
	return nil
}

// LogoutAll describes the logoutall operation and its observable behavior.
//
// LogoutAll may return an error when input validation, dependency calls, or security checks fail.
// LogoutAll does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) LogoutAll(ctx context.Context, accountID string) (int, error) {
	if e == nil || e.sessions == nil {
		return 0, ErrEngineNotReady
	}
	if accountID == "" {
		return 0, ErrValidation.WithDetails("reason", "missing_account_id")
	}

	count, err := e.sessions.InvalidateAll(ctx, accountID)
	if err != nil {
		return 0, wrapUnavailable("logout_all", err)
	}

	e.metricInc(MetricLogoutAll)
	for i := 0; i < count; i++ {
		e.metricInc(MetricSessionInvalidated)
	}
	e.recordEvent(ctx, events.TypeLogout, accountID, true, RiskLow, map[string]string{
		"scope":    "all",
		"sessions": strconv.Itoa(count),
	})
	return count, nil
}

// RefreshToken describes the refreshtoken operation and its observable behavior.
//
// RefreshToken may return an error when input validation, dependency calls, or security checks fail.
// RefreshToken does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if e == nil || e.signer == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.signer.ParseRefresh(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.recordEvent(ctx, events.TypeTokenRefresh, events.UnknownAccount, false, RiskMedium, map[string]string{
			"reason": "invalid_refresh_token",
		})
		return nil, ErrInvalidToken
	}

	sess, err := e.sessions.Validate(ctx, claims.SessionID, claims.AccountID, e.config.Session.IdleTimeout)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		if errors.Is(err, session.ErrIdleExpired) {
			e.metricInc(MetricSessionExpired)
		}
		e.recordEvent(ctx, events.TypeTokenRefresh, claims.AccountID, false, RiskMedium, map[string]string{
			"reason":     "session_validation_failed",
			"session_id": claims.SessionID,
		})
		return nil, e.mapSessionErr("refresh", err)
	}

	acct, err := e.accounts.GetByID(ctx, claims.AccountID)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, wrapUnavailable("refresh", err)
	}
	if acct.Status == AccountSuspended {
		_ = e.sessions.Invalidate(ctx, sess.SessionID)
		e.metricInc(MetricRefreshFailure)
		e.metricInc(MetricSessionInvalidated)
		e.recordEvent(ctx, events.TypeTokenRefresh, acct.ID, false, RiskMedium, map[string]string{
			"reason": "account_suspended",
		})
		return nil, ErrAccountSuspended
	}
	if acct.LockedAt(e.now()) {
		e.metricInc(MetricRefreshFailure)
		e.recordEvent(ctx, events.TypeTokenRefresh, acct.ID, false, RiskMedium, map[string]string{
			"reason": "account_locked",
		})
		return nil, ErrAccountLocked
	}

	if err := e.sessions.Touch(ctx, sess.SessionID); err != nil {
		return nil, wrapUnavailable("refresh", err)
	}

	access, err := e.signer.SignAccess(acct.ID, acct.Email, acct.Role, sess.SessionID)
	if err != nil {
		return nil, wrapUnavailable("refresh", err)
	}
	refresh, err := e.signer.SignRefresh(acct.ID, sess.SessionID)
	if err != nil {
		return nil, wrapUnavailable("refresh", err)
	}

	e.metricInc(MetricRefreshSuccess)
	e.recordEvent(ctx, events.TypeTokenRefresh, acct.ID, true, RiskLow, map[string]string{
		"session_id": sess.SessionID,
	})
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// ValidateSession describes the validatesession operation and its observable behavior.
//
// ValidateSession may return an error when input validation, dependency calls, or security checks fail.
// ValidateSession does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ValidateSession(ctx context.Context, sessionID, accountID string) (*Session, error) {
	if e == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}

	sess, err := e.sessions.Validate(ctx, sessionID, accountID, e.config.Session.IdleTimeout)
	if err != nil {
		if errors.Is(err, session.ErrIdleExpired) {
			e.metricInc(MetricSessionExpired)
		}
		return nil, e.mapSessionErr("validate_session", err)
	}
	if err := e.sessions.Touch(ctx, sessionID); err != nil {
		return nil, wrapUnavailable("validate_session", err)
	}
	return sess, nil
}

// ActiveSessions describes the activesessions operation and its observable behavior.
//
// ActiveSessions may return an error when input validation, dependency calls, or security checks fail.
// ActiveSessions does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) ActiveSessions(ctx context.Context, accountID string) ([]*Session, error) {
	if e == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}
	sessions, err := e.sessions.ActiveSessions(ctx, accountID)
	if err != nil {
		return nil, wrapUnavailable("active_sessions", err)
	}
	return sessions, nil
}
