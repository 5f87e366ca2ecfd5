package vault

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Purpose scopes a token to the flow that may redeem it.
type Purpose string

const (
	// PurposeReset is an exported constant used by the authentication engine.
	PurposeReset Purpose = "reset"
	// PurposeVerify is an exported constant used by the authentication engine.
	PurposeVerify Purpose = "verify"
)

var (
	// ErrTokenNotFound covers unknown and expired tokens; expiry is
	// enforced by the record's TTL.
	ErrTokenNotFound = errors.New("one-time token not found")
	// ErrTokenUsed is returned for a second redemption attempt. Callers
	// surface it identically to ErrTokenNotFound; the distinction exists
	// for diagnostics only.
	ErrTokenUsed = errors.New("one-time token already used")
	// ErrRedisUnavailable wraps transport failures from the backing store.
	ErrRedisUnavailable = errors.New("token vault redis unavailable")
)

const tokenBytes = 32

// Records are "u:<accountID>" with u zero until redeemed. The script
// flips the flag and returns the account in one step, preserving the
// record (and its TTL) so a replayed token is distinguishable from an
// unknown one.
const redeemScript = `
local v = redis.call("GET", KEYS[1])
if not v then
  return {0, ""}
end
if string.sub(v, 1, 1) == "1" then
  return {2, string.sub(v, 3)}
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl <= 0 then
  return {0, ""}
end
local account = string.sub(v, 3)
redis.call("SET", KEYS[1], "1:" .. account, "PX", ttl)
return {1, account}
`

var redeemLua = redis.NewScript(redeemScript)

// Vault stores salted-hash records of outstanding one-time tokens.
type Vault struct {
	redis  redis.UniversalClient
	prefix string
}

// New creates a [Vault] backed by the given Redis client.
func New(redisClient redis.UniversalClient, prefix string) *Vault {
	return &Vault{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (v *Vault) key(purpose Purpose, tokenHash [32]byte) string {
	return v.prefix + ":ott:" + string(purpose) + ":" + hex.EncodeToString(tokenHash[:])
}

// Issue generates a 256-bit opaque token for the account, persists only
// its hash plus metadata, and returns the plaintext for out-of-band
// delivery. The vault does not enforce one-active-token semantics;
// earlier tokens stay redeemable until their TTL runs out.
func (v *Vault) Issue(ctx context.Context, accountID string, purpose Purpose, ttl time.Duration) (string, error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}

	plaintext := base64.RawURLEncoding.EncodeToString(raw)
	hash := sha256.Sum256([]byte(plaintext))

	if err := v.redis.Set(ctx, v.key(purpose, hash), "0:"+accountID, ttl).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return plaintext, nil
}

// Redeem hashes the presented token, looks it up under the given purpose,
// and atomically marks it used. Exactly one concurrent redemption of a
// token can succeed; the rest observe ErrTokenUsed.
func (v *Vault) Redeem(ctx context.Context, plaintext string, purpose Purpose) (string, error) {
	hash := sha256.Sum256([]byte(plaintext))

	res, err := redeemLua.Run(ctx, v.redis, []string{v.key(purpose, hash)}).Slice()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) != 2 {
		return "", fmt.Errorf("%w: malformed redeem reply", ErrRedisUnavailable)
	}

	status, _ := res[0].(int64)
	accountID, _ := res[1].(string)

	switch status {
	case 1:
		return accountID, nil
	case 2:
		return "", ErrTokenUsed
	default:
		return "", ErrTokenNotFound
	}
}
