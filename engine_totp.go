package authsentry

import (
	"context"
	"errors"

	"github.com/MrEthical07/authsentry/internal/events"
	"github.com/MrEthical07/authsentry/internal/twofactor"
)

func (e *Engine) accountForTwoFactor(ctx context.Context, accountID string) (Account, error) {
	acct, err := e.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return Account{}, ErrUserNotFound
		}
		return Account{}, wrapUnavailable("two_factor", err)
	}
	return acct, nil
}

// Setup2FA describes the setup2fa operation and its observable behavior.
//
// Setup2FA may return an error when input validation, dependency calls, or security checks fail.
// Setup2FA does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Setup2FA(ctx context.Context, accountID string) (*TwoFactorSetup, error) {
	if e == nil || e.twofactor == nil || e.accounts == nil {
		return nil, ErrEngineNotReady
	}

	acct, err := e.accountForTwoFactor(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct.TwoFactorEnabled {
		return nil, ErrValidation.WithDetails("reason", "already_enabled")
	}

	setup, err := e.twofactor.BeginSetup(ctx, acct.ID, acct.Email)
	if err != nil {
		return nil, wrapUnavailable("setup_2fa", err)
	}

	e.recordEvent(ctx, events.TypeTwoFactorSetup, acct.ID, true, RiskLow, map[string]string{
		"stage": "pending",
	})
	return &TwoFactorSetup{
		Secret:          setup.Secret,
		ProvisioningURI: setup.ProvisioningURI,
		BackupCodes:     setup.BackupCodes,
	}, nil
}

// Confirm2FA describes the confirm2fa operation and its observable behavior.
//
// Confirm2FA may return an error when input validation, dependency calls, or security checks fail.
// Confirm2FA does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Confirm2FA(ctx context.Context, accountID, code string) error {
	if e == nil || e.twofactor == nil || e.accounts == nil {
		return ErrEngineNotReady
	}

	secret, hashes, err := e.twofactor.ConfirmSetup(ctx, accountID, code)
	if err != nil {
		switch {
		case errors.Is(err, twofactor.ErrNoPendingSetup):
			return ErrValidation.WithDetails("reason", "no_pending_setup")
		case errors.Is(err, twofactor.ErrCodeInvalid):
			e.metricInc(MetricTwoFactorFailure)
			e.recordEvent(ctx, events.TypeTwoFactorSetup, accountID, false, RiskMedium, map[string]string{
				"reason": "invalid_code",
			})
			return ErrInvalidTwoFactorCode
		default:
			return wrapUnavailable("confirm_2fa", err)
		}
	}

	codes := make([]BackupCodeRecord, len(hashes))
	for i, h := range hashes {
		codes[i] = BackupCodeRecord{Hash: h}
	}
	if err := e.accounts.EnableTwoFactor(ctx, accountID, secret, codes); err != nil {
		return wrapUnavailable("confirm_2fa", err)
	}

	e.metricInc(MetricTwoFactorSuccess)
	e.recordEvent(ctx, events.TypeTwoFactorSetup, accountID, true, RiskLow, map[string]string{
		"stage": "enabled",
	})
	return nil
}

// Disable2FA describes the disable2fa operation and its observable behavior.
//
// Disable2FA may return an error when input validation, dependency calls, or security checks fail.
// Disable2FA does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Disable2FA(ctx context.Context, accountID, currentPassword string) error {
	if e == nil || e.twofactor == nil || e.accounts == nil || e.hasher == nil {
		return ErrEngineNotReady
	}

	acct, err := e.accountForTwoFactor(ctx, accountID)
	if err != nil {
		return err
	}
	if !acct.TwoFactorEnabled {
		return ErrValidation.WithDetails("reason", "not_enabled")
	}

	// Disabling a second factor is a security downgrade; the caller must
	// prove knowledge of the account password.
	ok, err := e.hasher.Verify(currentPassword, acct.PasswordHash)
	if err != nil {
		return wrapUnavailable("disable_2fa", err)
	}
	if !ok {
		e.recordEvent(ctx, events.TypeTwoFactorOff, acct.ID, false, RiskMedium, map[string]string{
			"reason": "invalid_password",
		})
		return ErrInvalidCredentials
	}

	if err := e.accounts.DisableTwoFactor(ctx, acct.ID); err != nil {
		return wrapUnavailable("disable_2fa", err)
	}

	e.recordEvent(ctx, events.TypeTwoFactorOff, acct.ID, true, RiskMedium, nil)
	return nil
}

// Verify2FACode describes the verify2facode operation and its observable behavior.
//
// Verify2FACode may return an error when input validation, dependency calls, or security checks fail.
// Verify2FACode does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Verify2FACode(ctx context.Context, accountID, code string) (bool, error) {
	if e == nil || e.twofactor == nil || e.accounts == nil {
		return false, ErrEngineNotReady
	}

	acct, err := e.accountForTwoFactor(ctx, accountID)
	if err != nil {
		return false, err
	}
	if !acct.TwoFactorEnabled {
		return false, ErrValidation.WithDetails("reason", "not_enabled")
	}

	ok, err := e.verifyTwoFactorCode(ctx, &acct, code)
	if err != nil {
		return false, wrapUnavailable("verify_2fa", err)
	}
	if ok {
		e.metricInc(MetricTwoFactorSuccess)
	} else {
		e.metricInc(MetricTwoFactorFailure)
	}
	return ok, nil
}

// RegenerateBackupCodes describes the regeneratebackupcodes operation and its observable behavior.
//
// RegenerateBackupCodes may return an error when input validation, dependency calls, or security checks fail.
// RegenerateBackupCodes does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, accountID, currentPassword string) ([]string, error) {
	if e == nil || e.accounts == nil || e.hasher == nil {
		return nil, ErrEngineNotReady
	}

	acct, err := e.accountForTwoFactor(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !acct.TwoFactorEnabled {
		return nil, ErrValidation.WithDetails("reason", "not_enabled")
	}

	ok, err := e.hasher.Verify(currentPassword, acct.PasswordHash)
	if err != nil {
		return nil, wrapUnavailable("regenerate_backup_codes", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	plaintext, hashes, err := twofactor.GenerateBackupCodes(e.config.TwoFactor.BackupCodes)
	if err != nil {
		return nil, wrapUnavailable("regenerate_backup_codes", err)
	}
	codes := make([]BackupCodeRecord, len(hashes))
	for i, h := range hashes {
		codes[i] = BackupCodeRecord{Hash: h}
	}
	if err := e.accounts.ReplaceBackupCodes(ctx, acct.ID, codes); err != nil {
		return nil, wrapUnavailable("regenerate_backup_codes", err)
	}

	e.recordEvent(ctx, events.TypeTwoFactorSetup, acct.ID, true, RiskLow, map[string]string{
		"stage": "backup_codes_regenerated",
	})
	return plaintext, nil
}
