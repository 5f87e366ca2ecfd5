package authsentry

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestLoginHappyPath(t *testing.T) {
	te := newTestEngine(t, nil)
	accountID := createActiveAccount(t, te, testEmail, testPassword)

	result := mustLogin(t, te, "192.0.2.10")

	if result.AccountID != accountID {
		t.Fatalf("expected account %s, got %s", accountID, result.AccountID)
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatal("expected access and refresh tokens")
	}
	if result.SessionID == "" {
		t.Fatal("expected session id")
	}
	if result.RiskLevel != RiskLow {
		t.Fatalf("expected low risk for first login, got %s", result.RiskLevel)
	}

	acct, err := te.store.GetByID(testCtx(""), accountID)
	if err != nil {
		t.Fatalf("get account failed: %v", err)
	}
	if acct.LoginCount != 1 {
		t.Fatalf("expected login count 1, got %d", acct.LoginCount)
	}
	if acct.FailedAttempts != 0 {
		t.Fatalf("expected zero failed attempts, got %d", acct.FailedAttempts)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	te := newTestEngine(t, nil)
	accountID := createActiveAccount(t, te, testEmail, testPassword)

	_, err := te.engine.Login(testCtx("192.0.2.10"), LoginRequest{
		Email:    testEmail,
		Password: "Wrong-Horse-42!",
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	acct, err := te.store.GetByID(testCtx(""), accountID)
	if err != nil {
		t.Fatalf("get account failed: %v", err)
	}
	if acct.FailedAttempts != 1 {
		t.Fatalf("expected failed attempts 1, got %d", acct.FailedAttempts)
	}
}

func TestLoginUnknownEmailSameError(t *testing.T) {
	te := newTestEngine(t, nil)
	createActiveAccount(t, te, testEmail, testPassword)

	_, wrongPass := te.engine.Login(testCtx("192.0.2.10"), LoginRequest{
		Email:    testEmail,
		Password: "Wrong-Horse-42!",
	})
	_, unknown := te.engine.Login(testCtx("192.0.2.10"), LoginRequest{
		Email:    "nobody@example.com",
		Password: "Wrong-Horse-42!",
	})

	// Wrong password and unknown account must be indistinguishable.
	if !errors.Is(wrongPass, ErrInvalidCredentials) || !errors.Is(unknown, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for both, got %v and %v", wrongPass, unknown)
	}
}

func TestLoginRequestShapeRejectedWithoutRateConsumption(t *testing.T) {
	te := newTestEngine(t, nil)
	createActiveAccount(t, te, testEmail, testPassword)

	_, err := te.engine.Login(testCtx("192.0.2.10"), LoginRequest{
		Email:    "not-an-email",
		Password: testPassword,
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	_, err = te.engine.Login(testCtx("192.0.2.10"), LoginRequest{
		Email:    testEmail,
		Password: "short",
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for short password, got %v", err)
	}

	// A full budget of real attempts must still be available.
	limit := te.engine.config.RateLimit.LoginAttempts
	for i := 0; i < limit; i++ {
		if _, err := te.engine.Login(testCtx("192.0.2.10"), LoginRequest{
			Email:    testEmail,
			Password: testPassword,
		}); err != nil {
			t.Fatalf("attempt %d failed: %v", i, err)
		}
	}
}

func TestLoginRateLimitPerIP(t *testing.T) {
	te := newTestEngine(t, func(cfg *Config) {
		cfg.RateLimit.LoginAttempts = 3
	})
	createActiveAccount(t, te, testEmail, testPassword)

	for i := 0; i < 3; i++ {
		mustLogin(t, te, "192.0.2.10")
	}

	_, err := te.engine.Login(testCtx("192.0.2.10"), LoginRequest{
		Email:    testEmail,
		Password: testPassword,
	})
	if !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("expected ErrRateLimitExceeded, got %v", err)
	}

	// A different source address is unaffected.
	mustLogin(t, te, "192.0.2.99")

	// The window slides: after it passes, the original address recovers.
	te.clock.Advance(te.engine.config.RateLimit.LoginWindow + time.Second)
	mustLogin(t, te, "192.0.2.10")
}

func TestLoginStatusGates(t *testing.T) {
	te := newTestEngine(t, nil)
	accountID := createActiveAccount(t, te, testEmail, testPassword)
	ctx := testCtx("192.0.2.10")

	if err := te.store.UpdateStatus(ctx, accountID, AccountSuspended); err != nil {
		t.Fatalf("suspend failed: %v", err)
	}
	_, err := te.engine.Login(ctx, LoginRequest{Email: testEmail, Password: testPassword})
	if !errors.Is(err, ErrAccountSuspended) {
		t.Fatalf("expected ErrAccountSuspended, got %v", err)
	}

	if err := te.store.UpdateStatus(ctx, accountID, AccountPendingVerification); err != nil {
		t.Fatalf("status update failed: %v", err)
	}
	_, err = te.engine.Login(ctx, LoginRequest{Email: testEmail, Password: testPassword})
	if !errors.Is(err, ErrEmailNotVerified) {
		t.Fatalf("expected ErrEmailNotVerified, got %v", err)
	}

	if err := te.store.UpdateStatus(ctx, accountID, AccountActive); err != nil {
		t.Fatalf("status update failed: %v", err)
	}
	if err := te.store.SetLockout(ctx, accountID, te.clock.Now().Add(10*time.Minute)); err != nil {
		t.Fatalf("lockout failed: %v", err)
	}
	_, err = te.engine.Login(ctx, LoginRequest{Email: testEmail, Password: testPassword})
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
}

func TestLoginGatePrecedence(t *testing.T) {
	te := newTestEngine(t, nil)
	accountID := createActiveAccount(t, te, testEmail, testPassword)
	ctx := testCtx("192.0.2.10")

	// An account that is both unverified and locked reports the
	// verification gate; the lockout gate sits behind it.
	if err := te.store.UpdateStatus(ctx, accountID, AccountPendingVerification); err != nil {
		t.Fatalf("status update failed: %v", err)
	}
	if err := te.store.SetLockout(ctx, accountID, te.clock.Now().Add(10*time.Minute)); err != nil {
		t.Fatalf("lockout failed: %v", err)
	}
	_, err := te.engine.Login(ctx, LoginRequest{Email: testEmail, Password: testPassword})
	if !errors.Is(err, ErrEmailNotVerified) {
		t.Fatalf("expected ErrEmailNotVerified, got %v", err)
	}

	// Suspension outranks both.
	if err := te.store.UpdateStatus(ctx, accountID, AccountSuspended); err != nil {
		t.Fatalf("suspend failed: %v", err)
	}
	_, err = te.engine.Login(ctx, LoginRequest{Email: testEmail, Password: testPassword})
	if !errors.Is(err, ErrAccountSuspended) {
		t.Fatalf("expected ErrAccountSuspended, got %v", err)
	}
}

func TestLoginPasswordExpired(t *testing.T) {
	te := newTestEngine(t, func(cfg *Config) {
		cfg.Password.MaxAge = 24 * time.Hour
	})
	createActiveAccount(t, te, testEmail, testPassword)

	te.clock.Advance(25 * time.Hour)

	_, err := te.engine.Login(testCtx("192.0.2.10"), LoginRequest{
		Email:    testEmail,
		Password: testPassword,
	})
	if !errors.Is(err, ErrPasswordExpired) {
		t.Fatalf("expected ErrPasswordExpired, got %v", err)
	}
}

func TestLockoutAfterThresholdFailures(t *testing.T) {
	te := newTestEngine(t, func(cfg *Config) {
		cfg.RateLimit.LoginAttempts = 100
	})
	accountID := createActiveAccount(t, te, testEmail, testPassword)
	ctx := testCtx("192.0.2.10")

	threshold := te.engine.config.Lockout.Threshold
	for i := 0; i < threshold; i++ {
		_, err := te.engine.Login(ctx, LoginRequest{Email: testEmail, Password: "Wrong-Horse-42!"})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}

	acct, err := te.store.GetByID(ctx, accountID)
	if err != nil {
		t.Fatalf("get account failed: %v", err)
	}
	if !acct.LockedAt(te.clock.Now()) {
		t.Fatal("expected account to be locked after threshold failures")
	}
	wantUntil := te.clock.Now().Add(time.Duration(threshold*5) * time.Minute)
	if !acct.LockedUntil.Equal(wantUntil) {
		t.Fatalf("expected lockout until %v, got %v", wantUntil, acct.LockedUntil)
	}

	// Even the correct password is rejected while locked.
	_, err = te.engine.Login(ctx, LoginRequest{Email: testEmail, Password: testPassword})
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}

	// Attempts against the locked account must not extend the lock.
	after, err := te.store.GetByID(ctx, accountID)
	if err != nil {
		t.Fatalf("get account failed: %v", err)
	}
	if !after.LockedUntil.Equal(acct.LockedUntil) {
		t.Fatalf("lockout extended by attempt against locked account: %v -> %v", acct.LockedUntil, after.LockedUntil)
	}

	// Once the lock passes, a correct password succeeds and resets state.
	te.clock.Advance(time.Duration(threshold*5)*time.Minute + time.Second)
	mustLogin(t, te, "192.0.2.10")
}

func TestLockoutDurationEscalatesAndCaps(t *testing.T) {
	cfg := defaultConfig()

	var prev time.Duration
	for attempts := cfg.Lockout.Threshold; attempts <= 20; attempts++ {
		d := cfg.Lockout.Duration(attempts)
		if d < prev {
			t.Fatalf("lockout duration decreased at %d attempts: %v < %v", attempts, d, prev)
		}
		if d > 60*time.Minute {
			t.Fatalf("lockout duration exceeds cap at %d attempts: %v", attempts, d)
		}
		prev = d
	}
	if got := cfg.Lockout.Duration(5); got != 25*time.Minute {
		t.Fatalf("expected 25m at 5 attempts, got %v", got)
	}
	if got := cfg.Lockout.Duration(12); got != 60*time.Minute {
		t.Fatalf("expected capped 60m at 12 attempts, got %v", got)
	}
}

func TestLoginMetrics(t *testing.T) {
	te := newTestEngine(t, nil)
	createActiveAccount(t, te, testEmail, testPassword)

	mustLogin(t, te, "192.0.2.10")
	_, _ = te.engine.Login(testCtx("192.0.2.10"), LoginRequest{Email: testEmail, Password: "Wrong-Horse-42!"})

	snap := te.engine.GetSecurityMetrics()
	if snap.Counters[MetricLoginSuccess] != 1 {
		t.Fatalf("expected 1 login success, got %d", snap.Counters[MetricLoginSuccess])
	}
	if snap.Counters[MetricLoginFailure] != 1 {
		t.Fatalf("expected 1 login failure, got %d", snap.Counters[MetricLoginFailure])
	}
	if snap.Counters[MetricSessionCreated] != 1 {
		t.Fatalf("expected 1 session created, got %d", snap.Counters[MetricSessionCreated])
	}
}

func TestLoginRiskEscalatesWithDistinctIPs(t *testing.T) {
	te := newTestEngine(t, func(cfg *Config) {
		cfg.RateLimit.LoginAttempts = 100
	})
	createActiveAccount(t, te, testEmail, testPassword)

	var last *LoginResult
	for i := 0; i < 7; i++ {
		last = mustLogin(t, te, fmt.Sprintf("203.0.113.%d", i+1))
	}

	if last.RiskLevel != RiskHigh {
		t.Fatalf("expected high risk after many distinct IPs, got %s", last.RiskLevel)
	}
}
