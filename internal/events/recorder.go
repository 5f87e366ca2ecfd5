package events

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Config holds recorder tuning parameters.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool

	// Risk-classification window. WindowSize bounds how many recent
	// login samples are retained per account; Window bounds their age.
	Window     time.Duration
	WindowSize int

	// Thresholds, in priority order: more than DistinctIPHigh source IPs
	// in the window is high risk; more than DistinctUAMedium user agents
	// or more than EventCountMedium events is medium.
	DistinctIPHigh   int
	DistinctUAMedium int
	EventCountMedium int
}

// Recorder appends security events, fans them out to the sink through a
// dedicated goroutine, keeps a per-account window of recent logins in
// Redis, and invokes the alert hook for high-risk events.
type Recorder struct {
	cfg   Config
	redis redis.UniversalClient
	sink  Sink
	alert func(Event)
	now   func() time.Time

	prefix string

	ch        chan Event
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// loginSample is the compact form persisted in the per-account window.
type loginSample struct {
	At int64  `json:"at"`
	IP string `json:"ip,omitempty"`
	UA string `json:"ua,omitempty"`
}

// NewRecorder creates a [Recorder]. When cfg.Enabled is false the recorder
// still classifies risk but emits nothing to the sink.
func NewRecorder(rdb redis.UniversalClient, prefix string, cfg Config, sink Sink, alert func(Event), now func() time.Time) *Recorder {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if now == nil {
		now = time.Now
	}

	r := &Recorder{
		cfg:    cfg,
		redis:  rdb,
		sink:   sink,
		alert:  alert,
		now:    now,
		prefix: prefix,
		ch:     make(chan Event, cfg.BufferSize),
		done:   make(chan struct{}),
	}

	if cfg.Enabled {
		r.wg.Add(1)
		go r.run()
	}

	return r
}

func (r *Recorder) run() {
	defer r.wg.Done()

	for {
		select {
		case event := <-r.ch:
			r.sink.Emit(context.Background(), event)
		case <-r.done:
			for {
				select {
				case event := <-r.ch:
					r.sink.Emit(context.Background(), event)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) windowKey(accountID string) string {
	return r.prefix + ":ev:" + accountID
}

// Record appends the event. Missing ID/timestamp fields are filled in.
// Successful login events extend the account's risk window. High-risk
// events additionally invoke the alert hook, best-effort: hook panics are
// swallowed and never fail the recording.
func (r *Recorder) Record(ctx context.Context, event Event) {
	if r == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = r.now()
	}
	if event.AccountID == "" {
		event.AccountID = UnknownAccount
	}
	if event.RiskLevel == "" {
		event.RiskLevel = RiskLow
	}

	// Only fully verified logins feed the window. Pending-2FA and failed
	// login attempts carry an unproven identity and must not shift the
	// account's baseline.
	if event.Type == TypeLogin && event.Success && event.AccountID != UnknownAccount {
		if err := r.appendLoginSample(ctx, event); err != nil {
			log.Print("authsentry: risk window append failed")
		}
	}

	if event.RiskLevel == RiskHigh && r.alert != nil {
		r.invokeAlert(event)
	}

	if !r.cfg.Enabled || r.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if r.cfg.DropIfFull {
		select {
		case r.ch <- event:
		case <-r.done:
		default:
			r.dropped.Add(1)
		}
		return
	}

	select {
	case r.ch <- event:
	case <-ctx.Done():
	case <-r.done:
	}
}

func (r *Recorder) invokeAlert(event Event) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Print("authsentry: alert hook panicked")
		}
	}()
	r.alert(event)
}

func (r *Recorder) appendLoginSample(ctx context.Context, event Event) error {
	sample, err := json.Marshal(loginSample{
		At: event.Timestamp.Unix(),
		IP: event.IP,
		UA: event.UserAgent,
	})
	if err != nil {
		return err
	}

	key := r.windowKey(event.AccountID)
	pipe := r.redis.TxPipeline()
	pipe.LPush(ctx, key, sample)
	pipe.LTrim(ctx, key, 0, int64(r.cfg.WindowSize-1))
	pipe.Expire(ctx, key, r.cfg.Window)
	_, err = pipe.Exec(ctx)
	return err
}

// ClassifyLoginRisk inspects the account's recent login window plus the
// candidate ip/userAgent and returns a coarse classification. Advisory
// only; callers attach it to the audit trail rather than gate on it.
func (r *Recorder) ClassifyLoginRisk(ctx context.Context, accountID, ip, userAgent string) (RiskLevel, error) {
	raw, err := r.redis.LRange(ctx, r.windowKey(accountID), 0, int64(r.cfg.WindowSize-1)).Result()
	if err != nil {
		return RiskLow, err
	}

	cutoff := r.now().Add(-r.cfg.Window).Unix()
	ips := map[string]struct{}{}
	agents := map[string]struct{}{}
	if ip != "" {
		ips[ip] = struct{}{}
	}
	if userAgent != "" {
		agents[userAgent] = struct{}{}
	}

	inWindow := 0
	for _, entry := range raw {
		var sample loginSample
		if err := json.Unmarshal([]byte(entry), &sample); err != nil {
			continue
		}
		if sample.At < cutoff {
			continue
		}
		inWindow++
		if sample.IP != "" {
			ips[sample.IP] = struct{}{}
		}
		if sample.UA != "" {
			agents[sample.UA] = struct{}{}
		}
	}

	switch {
	case len(ips) > r.cfg.DistinctIPHigh:
		return RiskHigh, nil
	case len(agents) > r.cfg.DistinctUAMedium:
		return RiskMedium, nil
	case inWindow > r.cfg.EventCountMedium:
		return RiskMedium, nil
	default:
		return RiskLow, nil
	}
}

// Dropped reports how many events were discarded because the buffer was
// full with DropIfFull set.
func (r *Recorder) Dropped() uint64 {
	if r == nil {
		return 0
	}
	return r.dropped.Load()
}

// Close drains buffered events into the sink and stops the dispatcher.
func (r *Recorder) Close() {
	if r == nil || !r.cfg.Enabled {
		return
	}
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		close(r.done)
		r.wg.Wait()
	})
}
