package authsentry

// GetSecurityMetrics describes the getsecuritymetrics operation and its observable behavior.
//
// GetSecurityMetrics may return an error when input validation, dependency calls, or security checks fail.
// GetSecurityMetrics does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) GetSecurityMetrics() MetricsSnapshot {
	return e.MetricsSnapshot()
}

// HasPermission describes the haspermission operation and its observable behavior.
//
// HasPermission may return an error when input validation, dependency calls, or security checks fail.
// HasPermission does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) HasPermission(role, perm string) bool {
	if e == nil || e.roles == nil {
		return false
	}
	perms, ok := e.roles[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == perm || p == "*" {
			return true
		}
	}
	return false
}

// SecurityReport describes the securityreport operation and its observable behavior.
//
// SecurityReport may return an error when input validation, dependency calls, or security checks fail.
// SecurityReport does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	return SecurityReport{
		SigningAlgorithm: e.config.Token.SigningMethod,
		AccessTTL:        e.config.Token.AccessTTL,
		RefreshTTL:       e.config.Token.RefreshTTL,
		Argon2: PasswordConfigReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
		},
		MaxSessions:          e.config.Session.MaxSessions,
		SessionIdleTimeout:   e.config.Session.IdleTimeout,
		LockoutThreshold:     e.config.Lockout.Threshold,
		PasswordMaxAge:       e.config.Password.MaxAge,
		RequireVerifiedEmail: e.config.RequireVerifiedEmail,
		TwoFactorIssuer:      e.config.TwoFactor.Issuer,
	}
}
