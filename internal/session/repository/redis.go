package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"credential-lifecycle/internal/session/domain"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps every Redis transport or script failure.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrSessionCorrupt is returned when a stored session hash cannot be decoded.
var ErrSessionCorrupt = errors.New("session record corrupt")

// DefaultRetention keeps a session key around after its expiry so a late refresh
// still observes session_expired instead of invalid_session.
const DefaultRetention = 24 * time.Hour

const (
	fieldJTI         = "jti"
	fieldRefreshHash = "refresh_hash"
	fieldRevoked     = "revoked"
	fieldExpiresAt   = "expires_at"
	fieldLastUsedAt  = "last_used_at"
	fieldCreatedAt   = "created_at"
)

// KEYS[1] session key. ARGV: jti, hash, expires_ms, last_used_ms, created_ms, expire_at_ms.
const upsertScript = `
redis.call("HSET", KEYS[1], "jti", ARGV[1], "refresh_hash", ARGV[2], "revoked", "0",
  "expires_at", ARGV[3], "last_used_at", ARGV[4])
redis.call("HSETNX", KEYS[1], "created_at", ARGV[5])
redis.call("PEXPIREAT", KEYS[1], ARGV[6])
return 1
`

// KEYS[1] session key. ARGV: prev_hash, jti, hash, expires_ms, last_used_ms, expire_at_ms.
const rotateScript = `
local cur = redis.call("HMGET", KEYS[1], "refresh_hash", "revoked")
if not cur[1] then
  return 0
end
if cur[1] ~= ARGV[1] or cur[2] == "1" then
  return 0
end
redis.call("HSET", KEYS[1], "jti", ARGV[2], "refresh_hash", ARGV[3], "revoked", "0",
  "expires_at", ARGV[4], "last_used_at", ARGV[5])
redis.call("PEXPIREAT", KEYS[1], ARGV[6])
return 1
`

const revokeScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  redis.call("HSET", KEYS[1], "revoked", "1")
  return 1
end
return 0
`

var (
	upsertLua = redis.NewScript(upsertScript)
	rotateLua = redis.NewScript(rotateScript)
	revokeLua = redis.NewScript(revokeScript)
)

// RedisRepository stores each session as a hash under "<prefix><userID>:<deviceID>".
// Every write is a Lua script, so rotation is atomic per key.
type RedisRepository struct {
	rdb       redis.UniversalClient
	prefix    string
	retention time.Duration
}

// NewRedisRepository returns a session repository backed by rdb. retention <= 0 uses DefaultRetention.
func NewRedisRepository(rdb redis.UniversalClient, retention time.Duration) *RedisRepository {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &RedisRepository{rdb: rdb, prefix: "sess:", retention: retention}
}

func (r *RedisRepository) key(userID, deviceID string) string {
	return r.prefix + userID + ":" + deviceID
}

func (r *RedisRepository) GetByUserAndDevice(ctx context.Context, userID, deviceID string) (*domain.Session, error) {
	m, err := r.rdb.HGetAll(ctx, r.key(userID, deviceID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(m) == 0 {
		return nil, nil
	}
	s := &domain.Session{
		UserID:      userID,
		DeviceID:    deviceID,
		JTI:         m[fieldJTI],
		RefreshHash: m[fieldRefreshHash],
		Revoked:     m[fieldRevoked] == "1",
	}
	if s.ExpiresAt, err = parseMillis(m[fieldExpiresAt]); err != nil {
		return nil, err
	}
	if s.LastUsedAt, err = parseMillis(m[fieldLastUsedAt]); err != nil {
		return nil, err
	}
	if s.CreatedAt, err = parseMillis(m[fieldCreatedAt]); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *RedisRepository) Upsert(ctx context.Context, s *domain.Session) error {
	created := s.CreatedAt
	if created.IsZero() {
		created = s.LastUsedAt
	}
	err := upsertLua.Run(ctx, r.rdb, []string{r.key(s.UserID, s.DeviceID)},
		s.JTI, s.RefreshHash, s.ExpiresAt.UnixMilli(), s.LastUsedAt.UnixMilli(), created.UnixMilli(),
		s.ExpiresAt.Add(r.retention).UnixMilli(),
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (r *RedisRepository) Rotate(ctx context.Context, prevHash string, next *domain.Session) (bool, error) {
	n, err := rotateLua.Run(ctx, r.rdb, []string{r.key(next.UserID, next.DeviceID)},
		prevHash, next.JTI, next.RefreshHash, next.ExpiresAt.UnixMilli(), next.LastUsedAt.UnixMilli(),
		next.ExpiresAt.Add(r.retention).UnixMilli(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n == 1, nil
}

func (r *RedisRepository) Revoke(ctx context.Context, userID, deviceID string) error {
	if err := revokeLua.Run(ctx, r.rdb, []string{r.key(userID, deviceID)}).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func parseMillis(v string) (time.Time, error) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}
