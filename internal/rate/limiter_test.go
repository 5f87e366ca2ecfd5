package rate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T) (*Limiter, *fakeClock) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	t.Cleanup(mr.Close)

	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(rdb, "t", clock.Now), clock
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestAllowUnderLimit(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "login_1.2.3.4", 3, time.Minute)
		if err != nil {
			t.Fatalf("allow %d failed: %v", i, err)
		}
		if !ok {
			t.Fatalf("attempt %d should be admitted", i)
		}
	}

	ok, err := l.Allow(ctx, "login_1.2.3.4", 3, time.Minute)
	if err != nil {
		t.Fatalf("allow failed: %v", err)
	}
	if ok {
		t.Fatal("attempt past the limit should be rejected")
	}
}

func TestRejectionHasNoSideEffect(t *testing.T) {
	l, clock := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if ok, err := l.Allow(ctx, "k", 2, time.Minute); err != nil || !ok {
			t.Fatalf("setup attempt %d: ok=%v err=%v", i, ok, err)
		}
	}
	// Hammer the closed gate; rejections must not extend the window.
	for i := 0; i < 10; i++ {
		if ok, err := l.Allow(ctx, "k", 2, time.Minute); err != nil || ok {
			t.Fatalf("rejection %d: ok=%v err=%v", i, ok, err)
		}
	}

	count, err := l.Count(ctx, "k", time.Minute)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected only admitted attempts counted, got %d", count)
	}

	// Once the admitted attempts age out, the key recovers fully.
	clock.Advance(time.Minute + time.Second)
	if ok, err := l.Allow(ctx, "k", 2, time.Minute); err != nil || !ok {
		t.Fatalf("expected recovery after window, ok=%v err=%v", ok, err)
	}
}

func TestSlidingWindow(t *testing.T) {
	l, clock := newTestLimiter(t)
	ctx := context.Background()

	if ok, _ := l.Allow(ctx, "k", 2, time.Minute); !ok {
		t.Fatal("first attempt should pass")
	}
	clock.Advance(40 * time.Second)
	if ok, _ := l.Allow(ctx, "k", 2, time.Minute); !ok {
		t.Fatal("second attempt should pass")
	}
	if ok, _ := l.Allow(ctx, "k", 2, time.Minute); ok {
		t.Fatal("third attempt should be rejected")
	}

	// 21s later the first attempt falls out of the trailing window while
	// the second is still inside it.
	clock.Advance(21 * time.Second)
	if ok, _ := l.Allow(ctx, "k", 2, time.Minute); !ok {
		t.Fatal("expected slot freed by sliding window")
	}
	if ok, _ := l.Allow(ctx, "k", 2, time.Minute); ok {
		t.Fatal("window should be full again")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()

	if ok, _ := l.Allow(ctx, "a", 1, time.Minute); !ok {
		t.Fatal("key a should pass")
	}
	if ok, _ := l.Allow(ctx, "a", 1, time.Minute); ok {
		t.Fatal("key a should be exhausted")
	}
	if ok, _ := l.Allow(ctx, "b", 1, time.Minute); !ok {
		t.Fatal("key b should be unaffected")
	}
}

func TestConcurrentCallersNeverExceedLimit(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()

	const callers = 32
	const limit = 5

	var wg sync.WaitGroup
	results := make(chan bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := l.Allow(ctx, "hot", limit, time.Minute)
			if err != nil {
				t.Errorf("allow failed: %v", err)
				return
			}
			results <- ok
		}()
	}
	wg.Wait()
	close(results)

	admitted := 0
	for ok := range results {
		if ok {
			admitted++
		}
	}
	if admitted != limit {
		t.Fatalf("expected exactly %d admitted, got %d", limit, admitted)
	}
}

func TestReset(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()

	if ok, _ := l.Allow(ctx, "k", 1, time.Minute); !ok {
		t.Fatal("first attempt should pass")
	}
	if err := l.Reset(ctx, "k"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if ok, _ := l.Allow(ctx, "k", 1, time.Minute); !ok {
		t.Fatal("attempt after reset should pass")
	}
}
