package twofactor

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrNoPendingSetup is returned when confirmation arrives without a
	// live pending-setup record (never begun, expired, or already confirmed).
	ErrNoPendingSetup = errors.New("no pending two-factor setup")
	// ErrCodeInvalid is an exported constant used by the authentication engine.
	ErrCodeInvalid = errors.New("two-factor code invalid")
	// ErrRedisUnavailable wraps transport failures from the backing store.
	ErrRedisUnavailable = errors.New("two-factor redis unavailable")
)

const backupCodeBytes = 8

// Config holds TOTP parameters. Skew is counted in 30-second steps; the
// default of 2 accepts codes roughly ±60s around now.
type Config struct {
	Issuer          string
	Digits          int
	Period          int
	Skew            int
	BackupCodes     int
	PendingSetupTTL time.Duration
}

// Setup is returned by [Manager.BeginSetup]. BackupCodes carries the only
// copy of the plaintexts; afterwards only hashes exist.
type Setup struct {
	Secret          string
	ProvisioningURI string
	BackupCodes     []string
}

type pendingRecord struct {
	Secret     string   `json:"secret"`
	CodeHashes []string `json:"code_hashes"`
}

// Manager implements the two-factor state machine
// (disabled → pending_setup → enabled) for the engine.
type Manager struct {
	redis  redis.UniversalClient
	cfg    Config
	prefix string
	now    func() time.Time
}

// New creates a [Manager]. now is injected for testability.
func New(redisClient redis.UniversalClient, prefix string, cfg Config, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{
		redis:  redisClient,
		cfg:    cfg,
		prefix: prefix,
		now:    now,
	}
}

func (m *Manager) pendingKey(accountID string) string {
	return m.prefix + ":2fa:pending:" + accountID
}

func (m *Manager) validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    uint(m.cfg.Period),
		Skew:      uint(m.cfg.Skew),
		Digits:    otp.Digits(m.cfg.Digits),
		Algorithm: otp.AlgorithmSHA1,
	}
}

// BeginSetup generates a fresh shared secret and backup codes and parks
// them in a pending record keyed by account, distinct from the account's
// live two-factor fields. Re-invocation replaces any earlier pending
// record; unconfirmed records expire with the configured TTL.
func (m *Manager) BeginSetup(ctx context.Context, accountID, email string) (*Setup, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.cfg.Issuer,
		AccountName: email,
		Period:      uint(m.cfg.Period),
		Digits:      otp.Digits(m.cfg.Digits),
	})
	if err != nil {
		return nil, err
	}

	codes, hashes, err := generateBackupCodes(m.cfg.BackupCodes)
	if err != nil {
		return nil, err
	}

	record, err := json.Marshal(pendingRecord{
		Secret:     key.Secret(),
		CodeHashes: hashes,
	})
	if err != nil {
		return nil, err
	}

	if err := m.redis.Set(ctx, m.pendingKey(accountID), record, m.cfg.PendingSetupTTL).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return &Setup{
		Secret:          key.Secret(),
		ProvisioningURI: key.String(),
		BackupCodes:     codes,
	}, nil
}

// ConfirmSetup verifies code against the pending secret and, on success,
// deletes the pending record and returns the secret plus backup-code
// hashes for the caller to persist onto the account.
func (m *Manager) ConfirmSetup(ctx context.Context, accountID, code string) (string, [][32]byte, error) {
	data, err := m.redis.Get(ctx, m.pendingKey(accountID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil, ErrNoPendingSetup
		}
		return "", nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var record pendingRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return "", nil, ErrNoPendingSetup
	}

	if !m.VerifyTOTP(record.Secret, code) {
		return "", nil, ErrCodeInvalid
	}

	hashes := make([][32]byte, 0, len(record.CodeHashes))
	for _, encoded := range record.CodeHashes {
		raw, err := hex.DecodeString(encoded)
		if err != nil || len(raw) != 32 {
			return "", nil, ErrNoPendingSetup
		}
		var h [32]byte
		copy(h[:], raw)
		hashes = append(hashes, h)
	}

	if err := m.redis.Del(ctx, m.pendingKey(accountID)).Err(); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return record.Secret, hashes, nil
}

// VerifyTOTP reports whether code matches the secret within the configured
// skew window at the injected clock's now.
func (m *Manager) VerifyTOTP(secret, code string) bool {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return false
	}

	ok, err := totp.ValidateCustom(trimmed, secret, m.now(), m.validateOpts())
	return err == nil && ok
}

// GenerateBackupCodes produces n fresh backup codes and their hashes,
// for setup and for regeneration after the originals run low.
func GenerateBackupCodes(n int) ([]string, [][32]byte, error) {
	codes, hexHashes, err := generateBackupCodes(n)
	if err != nil {
		return nil, nil, err
	}

	hashes := make([][32]byte, 0, len(hexHashes))
	for _, encoded := range hexHashes {
		raw, err := hex.DecodeString(encoded)
		if err != nil || len(raw) != 32 {
			return nil, nil, errors.New("backup code hash corrupt")
		}
		var h [32]byte
		copy(h[:], raw)
		hashes = append(hashes, h)
	}

	return codes, hashes, nil
}

// HashBackupCode canonicalizes (trim, uppercase) and hashes a presented
// backup code for store lookup.
func HashBackupCode(code string) [32]byte {
	return sha256.Sum256([]byte(strings.ToUpper(strings.TrimSpace(code))))
}

func generateBackupCodes(n int) ([]string, []string, error) {
	codes := make([]string, 0, n)
	hashes := make([]string, 0, n)

	for i := 0; i < n; i++ {
		raw := make([]byte, backupCodeBytes)
		if _, err := rand.Read(raw); err != nil {
			return nil, nil, err
		}
		code := strings.ToUpper(hex.EncodeToString(raw))
		sum := sha256.Sum256([]byte(code))
		codes = append(codes, code)
		hashes = append(hashes, hex.EncodeToString(sum[:]))
	}

	return codes, hashes, nil
}
