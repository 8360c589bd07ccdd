package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRevocationUnavailable wraps Redis failures on the revocation path.
	ErrRevocationUnavailable = errors.New("revocation store unavailable")
)

const revokedMarker = "revoked"

// RevocationStore is a TTL-bound denylist of token ids (jti) plus a
// per-subject forward index used for mass revocation. Every entry's TTL
// equals the remaining lifetime of the token it blocks, so the denylist
// never outlives the tokens and needs no garbage collection of its own.
type RevocationStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRevocationStore creates a RevocationStore under the given key prefix.
func NewRevocationStore(redisClient redis.UniversalClient, prefix string) *RevocationStore {
	if prefix == "" {
		prefix = "ac"
	}
	return &RevocationStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *RevocationStore) jtiKey(jti string) string {
	return s.prefix + ":rvk:" + jti
}

func (s *RevocationStore) subjectKey(userID string) string {
	return s.prefix + ":rvk:sub:" + userID
}

// Revoke inserts jti into the denylist for ttl. Idempotent: revoking an
// already-revoked jti only refreshes the marker. Non-positive TTLs are
// ignored because the token is already expired.
func (s *RevocationStore) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" || ttl <= 0 {
		return nil
	}
	if err := s.redis.Set(ctx, s.jtiKey(jti), revokedMarker, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRevocationUnavailable, err)
	}
	return nil
}

// IsRevoked reports whether jti is in the denylist. On a Redis failure it
// fails closed: the jti is reported revoked alongside the error, so a
// broken cache can never let a revoked token through.
func (s *RevocationStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	n, err := s.redis.Exists(ctx, s.jtiKey(jti)).Result()
	if err != nil {
		return true, fmt.Errorf("%w: %v", ErrRevocationUnavailable, err)
	}
	return n > 0, nil
}

// Track records jti in the subject's forward index at issuance time.
// The index TTL is extended to cover the longest-lived tracked token.
func (s *RevocationStore) Track(ctx context.Context, userID, jti string, ttl time.Duration) error {
	if userID == "" || jti == "" || ttl <= 0 {
		return nil
	}
	key := s.subjectKey(userID)
	if err := s.redis.SAdd(ctx, key, jti).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRevocationUnavailable, err)
	}
	// GT keeps the longest remaining lifetime across mixed-TTL tokens.
	if err := s.redis.ExpireGT(ctx, key, ttl).Err(); err != nil {
		if err := s.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRevocationUnavailable, err)
		}
	}
	return nil
}

// Untrack prunes a jti from the subject index, typically after the single
// token was explicitly revoked.
func (s *RevocationStore) Untrack(ctx context.Context, userID, jti string) error {
	if userID == "" || jti == "" {
		return nil
	}
	if err := s.redis.SRem(ctx, s.subjectKey(userID), jti).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRevocationUnavailable, err)
	}
	return nil
}

// RevokeAllForSubject denylists every tracked jti for the user and clears
// the index. Each entry gets maxTTL; that may exceed a token's true
// remaining lifetime but never falls short of it.
func (s *RevocationStore) RevokeAllForSubject(ctx context.Context, userID string, maxTTL time.Duration) (int, error) {
	if userID == "" || maxTTL <= 0 {
		return 0, nil
	}

	key := s.subjectKey(userID)
	jtis, err := s.redis.SMembers(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRevocationUnavailable, err)
	}
	if len(jtis) == 0 {
		return 0, nil
	}

	pipe := s.redis.Pipeline()
	for _, jti := range jtis {
		pipe.Set(ctx, s.jtiKey(jti), revokedMarker, maxTTL)
	}
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRevocationUnavailable, err)
	}

	return len(jtis), nil
}

// TrackedCount reports how many live jtis are indexed for the user.
func (s *RevocationStore) TrackedCount(ctx context.Context, userID string) (int64, error) {
	n, err := s.redis.SCard(ctx, s.subjectKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRevocationUnavailable, err)
	}
	return n, nil
}
