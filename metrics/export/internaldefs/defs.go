package internaldefs

import (
	authsentry "github.com/MrEthical07/authsentry"
)

// CounterDef defines a public type used by authsentry exporter packages.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   authsentry.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the authentication engine.
var CounterDefs = []CounterDef{
	{ID: authsentry.MetricLoginSuccess, Name: "authsentry_login_success_total", Help: "Successful login attempts."},
	{ID: authsentry.MetricLoginFailure, Name: "authsentry_login_failure_total", Help: "Failed login attempts."},
	{ID: authsentry.MetricLoginRateLimited, Name: "authsentry_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: authsentry.MetricAccountLocked, Name: "authsentry_account_locked_total", Help: "Lockouts applied after repeated failures."},
	{ID: authsentry.MetricTwoFactorRequired, Name: "authsentry_2fa_required_total", Help: "Login flows challenged for a second factor."},
	{ID: authsentry.MetricTwoFactorSuccess, Name: "authsentry_2fa_success_total", Help: "Successful two-factor verifications."},
	{ID: authsentry.MetricTwoFactorFailure, Name: "authsentry_2fa_failure_total", Help: "Failed two-factor verifications."},
	{ID: authsentry.MetricBackupCodeUsed, Name: "authsentry_backup_code_used_total", Help: "Successful backup-code authentications."},
	{ID: authsentry.MetricSessionCreated, Name: "authsentry_session_created_total", Help: "Created sessions."},
	{ID: authsentry.MetricSessionInvalidated, Name: "authsentry_session_invalidated_total", Help: "Invalidated sessions."},
	{ID: authsentry.MetricSessionExpired, Name: "authsentry_session_expired_total", Help: "Sessions expired by idle timeout."},
	{ID: authsentry.MetricLogout, Name: "authsentry_logout_total", Help: "Single-session logout operations."},
	{ID: authsentry.MetricLogoutAll, Name: "authsentry_logout_all_total", Help: "Logout-all operations."},
	{ID: authsentry.MetricRefreshSuccess, Name: "authsentry_refresh_success_total", Help: "Successful token refresh operations."},
	{ID: authsentry.MetricRefreshFailure, Name: "authsentry_refresh_failure_total", Help: "Failed token refresh operations."},
	{ID: authsentry.MetricRegisterSuccess, Name: "authsentry_register_success_total", Help: "Successful account registrations."},
	{ID: authsentry.MetricPasswordChange, Name: "authsentry_password_change_total", Help: "Successful password changes."},
	{ID: authsentry.MetricPasswordResetRequest, Name: "authsentry_password_reset_request_total", Help: "Password reset requests."},
	{ID: authsentry.MetricPasswordResetSuccess, Name: "authsentry_password_reset_success_total", Help: "Successful password reset completions."},
	{ID: authsentry.MetricPasswordResetFailure, Name: "authsentry_password_reset_failure_total", Help: "Failed password reset attempts."},
	{ID: authsentry.MetricEmailVerificationRequest, Name: "authsentry_email_verification_request_total", Help: "Email verification requests."},
	{ID: authsentry.MetricEmailVerificationSuccess, Name: "authsentry_email_verification_success_total", Help: "Successful email verifications."},
	{ID: authsentry.MetricEmailVerificationFailure, Name: "authsentry_email_verification_failure_total", Help: "Failed email verifications."},
}
