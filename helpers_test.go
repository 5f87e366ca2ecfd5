package authsentry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// testClock is a mutable fake clock shared by the engine and assertions.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
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

// captureMailer records every send so tests can pull delivered tokens.
type captureMailer struct {
	mu    sync.Mutex
	sends []capturedMail
}

type capturedMail struct {
	Address string
	Kind    MailKind
	Data    map[string]string
}

func (m *captureMailer) Send(_ context.Context, address string, kind MailKind, data map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sends = append(m.sends, capturedMail{Address: address, Kind: kind, Data: data})
	return nil
}

func (m *captureMailer) last(t *testing.T) capturedMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sends) == 0 {
		t.Fatal("expected at least one delivered mail")
	}
	return m.sends[len(m.sends)-1]
}

func (m *captureMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sends)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Token.SigningMethod = "hs256"
	cfg.Token.PrivateKey = []byte("test-hs256-secret-key-material")
	// Cheap Argon2 parameters keep the suite fast; production defaults are
	// exercised separately in the password package.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.SaltLength = 16
	cfg.Password.KeyLength = 16
	return cfg
}

type testEngine struct {
	engine *Engine
	store  *MemStore
	mailer *captureMailer
	clock  *testClock
	redis  *miniredis.Miniredis
}

func newTestEngine(t *testing.T, mutate func(*Config)) *testEngine {
	t.Helper()

	mr, rdb := newTestRedis(t)
	t.Cleanup(mr.Close)

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	clock := newTestClock()
	store := NewMemStore()
	store.SetClock(clock.Now)
	mailer := &captureMailer{}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(store).
		WithMailer(mailer).
		WithClock(clock.Now).
		WithRoles(map[string][]string{
			"user":  {"profile.read"},
			"admin": {"*"},
		}).
		Build()
	if err != nil {
		t.Fatalf("engine build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEngine{
		engine: engine,
		store:  store,
		mailer: mailer,
		clock:  clock,
		redis:  mr,
	}
}

const (
	testEmail    = "alice@example.com"
	testPassword = "Correct-Horse-42!"
)

func testCtx(ip string) context.Context {
	ctx := WithClientIP(context.Background(), ip)
	return WithUserAgent(ctx, "go-test-agent/1.0")
}

// createActiveAccount registers and activates an account ready to log in.
func createActiveAccount(t *testing.T, te *testEngine, email, pass string) string {
	t.Helper()

	ctx := testCtx("192.0.2.1")
	result, err := te.engine.Register(ctx, RegisterRequest{Email: email, Password: pass})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := te.store.MarkEmailVerified(ctx, result.AccountID); err != nil {
		t.Fatalf("mark verified failed: %v", err)
	}
	if err := te.store.UpdateStatus(ctx, result.AccountID, AccountActive); err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	return result.AccountID
}

func mustLogin(t *testing.T, te *testEngine, ip string) *LoginResult {
	t.Helper()

	result, err := te.engine.Login(testCtx(ip), LoginRequest{
		Email:    testEmail,
		Password: testPassword,
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	return result
}
