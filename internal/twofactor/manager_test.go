package twofactor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"
)

func testConfig() Config {
	return Config{
		Issuer:          "authsentry-test",
		Digits:          6,
		Period:          30,
		Skew:            1,
		BackupCodes:     8,
		PendingSetupTTL: 10 * time.Minute,
	}
}

func newTestManager(t *testing.T) (*Manager, *testClock, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	t.Cleanup(mr.Close)

	clock := &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(rdb, "t", testConfig(), clock.Now), clock, mr
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func codeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, at)
	if err != nil {
		t.Fatalf("generating totp code: %v", err)
	}
	return code
}

func TestBeginSetupProducesUsableSetup(t *testing.T) {
	m, _, _ := newTestManager(t)

	setup, err := m.BeginSetup(context.Background(), "acct-1", "alice@example.com")
	if err != nil {
		t.Fatalf("begin setup failed: %v", err)
	}

	if setup.Secret == "" {
		t.Fatal("expected a non-empty secret")
	}
	if !strings.HasPrefix(setup.ProvisioningURI, "otpauth://totp/") {
		t.Fatalf("unexpected provisioning URI %q", setup.ProvisioningURI)
	}
	if !strings.Contains(setup.ProvisioningURI, "authsentry-test") {
		t.Fatal("provisioning URI should carry the issuer")
	}
	if len(setup.BackupCodes) != 8 {
		t.Fatalf("expected 8 backup codes, got %d", len(setup.BackupCodes))
	}
	for _, code := range setup.BackupCodes {
		if len(code) != backupCodeBytes*2 {
			t.Fatalf("backup code %q has unexpected length", code)
		}
	}
}

func TestConfirmSetupRoundTrip(t *testing.T) {
	m, clock, _ := newTestManager(t)
	ctx := context.Background()

	setup, err := m.BeginSetup(ctx, "acct-1", "alice@example.com")
	if err != nil {
		t.Fatalf("begin setup failed: %v", err)
	}

	secret, hashes, err := m.ConfirmSetup(ctx, "acct-1", codeAt(t, setup.Secret, clock.Now()))
	if err != nil {
		t.Fatalf("confirm setup failed: %v", err)
	}
	if secret != setup.Secret {
		t.Fatal("confirmed secret does not match the pending one")
	}
	if len(hashes) != len(setup.BackupCodes) {
		t.Fatalf("expected %d hashes, got %d", len(setup.BackupCodes), len(hashes))
	}
	for i, code := range setup.BackupCodes {
		if HashBackupCode(code) != hashes[i] {
			t.Fatalf("hash %d does not match its plaintext", i)
		}
	}

	// The pending record is consumed; a second confirmation has nothing
	// to work with.
	_, _, err = m.ConfirmSetup(ctx, "acct-1", codeAt(t, setup.Secret, clock.Now()))
	if !errors.Is(err, ErrNoPendingSetup) {
		t.Fatalf("expected ErrNoPendingSetup after confirmation, got %v", err)
	}
}

func TestConfirmSetupWrongCodeLeavesPendingIntact(t *testing.T) {
	m, clock, _ := newTestManager(t)
	ctx := context.Background()

	setup, err := m.BeginSetup(ctx, "acct-1", "alice@example.com")
	if err != nil {
		t.Fatalf("begin setup failed: %v", err)
	}

	if _, _, err := m.ConfirmSetup(ctx, "acct-1", "000000"); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("expected ErrCodeInvalid, got %v", err)
	}

	// A correct code still confirms afterwards.
	if _, _, err := m.ConfirmSetup(ctx, "acct-1", codeAt(t, setup.Secret, clock.Now())); err != nil {
		t.Fatalf("confirm after failed attempt: %v", err)
	}
}

func TestConfirmSetupWithoutBegin(t *testing.T) {
	m, _, _ := newTestManager(t)

	_, _, err := m.ConfirmSetup(context.Background(), "acct-1", "123456")
	if !errors.Is(err, ErrNoPendingSetup) {
		t.Fatalf("expected ErrNoPendingSetup, got %v", err)
	}
}

func TestPendingSetupExpires(t *testing.T) {
	m, clock, mr := newTestManager(t)
	ctx := context.Background()

	setup, err := m.BeginSetup(ctx, "acct-1", "alice@example.com")
	if err != nil {
		t.Fatalf("begin setup failed: %v", err)
	}

	mr.FastForward(11 * time.Minute)
	clock.Advance(11 * time.Minute)

	_, _, err = m.ConfirmSetup(ctx, "acct-1", codeAt(t, setup.Secret, clock.Now()))
	if !errors.Is(err, ErrNoPendingSetup) {
		t.Fatalf("expected ErrNoPendingSetup after TTL, got %v", err)
	}
}

func TestBeginSetupReplacesEarlierPending(t *testing.T) {
	m, clock, _ := newTestManager(t)
	ctx := context.Background()

	first, err := m.BeginSetup(ctx, "acct-1", "alice@example.com")
	if err != nil {
		t.Fatalf("first begin failed: %v", err)
	}
	second, err := m.BeginSetup(ctx, "acct-1", "alice@example.com")
	if err != nil {
		t.Fatalf("second begin failed: %v", err)
	}

	// Codes from the superseded secret are rejected.
	if _, _, err := m.ConfirmSetup(ctx, "acct-1", codeAt(t, first.Secret, clock.Now())); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("expected stale secret to fail, got %v", err)
	}
	if _, _, err := m.ConfirmSetup(ctx, "acct-1", codeAt(t, second.Secret, clock.Now())); err != nil {
		t.Fatalf("confirm with current secret failed: %v", err)
	}
}

func TestVerifyTOTPSkewWindow(t *testing.T) {
	m, clock, _ := newTestManager(t)

	setup, err := m.BeginSetup(context.Background(), "acct-1", "alice@example.com")
	if err != nil {
		t.Fatalf("begin setup failed: %v", err)
	}

	now := clock.Now()
	if !m.VerifyTOTP(setup.Secret, codeAt(t, setup.Secret, now)) {
		t.Fatal("current-step code rejected")
	}
	if !m.VerifyTOTP(setup.Secret, codeAt(t, setup.Secret, now.Add(-30*time.Second))) {
		t.Fatal("previous-step code rejected within skew")
	}
	if !m.VerifyTOTP(setup.Secret, codeAt(t, setup.Secret, now.Add(30*time.Second))) {
		t.Fatal("next-step code rejected within skew")
	}
	if m.VerifyTOTP(setup.Secret, codeAt(t, setup.Secret, now.Add(-2*time.Minute))) {
		t.Fatal("code far outside the skew window accepted")
	}
	if m.VerifyTOTP(setup.Secret, "") {
		t.Fatal("empty code accepted")
	}
	if m.VerifyTOTP(setup.Secret, "abc123") {
		t.Fatal("malformed code accepted")
	}
}

func TestHashBackupCodeCanonicalizes(t *testing.T) {
	base := HashBackupCode("A1B2C3D4E5F60718")

	if HashBackupCode(" a1b2c3d4e5f60718 ") != base {
		t.Fatal("case and whitespace should not affect the hash")
	}
	if HashBackupCode("A1B2C3D4E5F60719") == base {
		t.Fatal("distinct codes should not collide")
	}
}

func TestGenerateBackupCodes(t *testing.T) {
	codes, hashes, err := GenerateBackupCodes(10)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if len(codes) != 10 || len(hashes) != 10 {
		t.Fatalf("expected 10 codes and hashes, got %d and %d", len(codes), len(hashes))
	}

	seen := make(map[string]bool, len(codes))
	for i, code := range codes {
		if seen[code] {
			t.Fatalf("duplicate backup code %q", code)
		}
		seen[code] = true
		if HashBackupCode(code) != hashes[i] {
			t.Fatalf("hash %d does not match its code", i)
		}
	}
}
