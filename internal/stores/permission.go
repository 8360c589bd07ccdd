package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrPermissionUnavailable = errors.New("permission cache unavailable")
)

// emptySetMarker distinguishes a cached empty permission set from a cache
// miss. It is stripped on read and must never collide with a real
// permission name.
const emptySetMarker = "\x00none"

// PermissionStore caches per-subject permission sets as Redis sets with a
// TTL, and keeps a registry of cached subjects so a background sweep can
// find entries nearing expiry without scanning the keyspace.
type PermissionStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewPermissionStore(redisClient redis.UniversalClient, prefix string) *PermissionStore {
	if prefix == "" {
		prefix = "ac"
	}
	return &PermissionStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *PermissionStore) setKey(subjectKey string) string {
	return s.prefix + ":perm:" + subjectKey
}

func (s *PermissionStore) registryKey() string {
	return s.prefix + ":perm:subjects"
}

// Put caches the permission set for subjectKey with the given TTL,
// replacing any previous entry, and registers the subject for sweeping.
func (s *PermissionStore) Put(ctx context.Context, subjectKey string, permissions []string, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("permission ttl must be positive")
	}

	members := make([]interface{}, 0, len(permissions)+1)
	for _, p := range permissions {
		if p == "" {
			continue
		}
		members = append(members, p)
	}
	if len(members) == 0 {
		members = append(members, emptySetMarker)
	}

	key := s.setKey(subjectKey)
	pipe := s.redis.Pipeline()
	pipe.Del(ctx, key)
	pipe.SAdd(ctx, key, members...)
	pipe.Expire(ctx, key, ttl)
	pipe.SAdd(ctx, s.registryKey(), subjectKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrPermissionUnavailable, err)
	}

	return nil
}

// Get returns the cached set for subjectKey. hit is false on a miss; a
// cached empty set yields hit=true with an empty slice.
func (s *PermissionStore) Get(ctx context.Context, subjectKey string) (permissions []string, hit bool, err error) {
	members, err := s.redis.SMembers(ctx, s.setKey(subjectKey)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrPermissionUnavailable, err)
	}
	if len(members) == 0 {
		return nil, false, nil
	}

	permissions = make([]string, 0, len(members))
	for _, member := range members {
		if member == emptySetMarker {
			continue
		}
		permissions = append(permissions, member)
	}

	return permissions, true, nil
}

// Invalidate drops the cached entry and unregisters the subject.
func (s *PermissionStore) Invalidate(ctx context.Context, subjectKey string) error {
	pipe := s.redis.Pipeline()
	pipe.Del(ctx, s.setKey(subjectKey))
	pipe.SRem(ctx, s.registryKey(), subjectKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrPermissionUnavailable, err)
	}
	return nil
}

// Subjects lists every registered subject key.
func (s *PermissionStore) Subjects(ctx context.Context) ([]string, error) {
	subjects, err := s.redis.SMembers(ctx, s.registryKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPermissionUnavailable, err)
	}
	return subjects, nil
}

// RemainingTTL reports the time left on a cached entry. A missing entry
// reports ok=false; the sweep unregisters those subjects.
func (s *PermissionStore) RemainingTTL(ctx context.Context, subjectKey string) (ttl time.Duration, ok bool, err error) {
	ttl, err = s.redis.TTL(ctx, s.setKey(subjectKey)).Result()
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrPermissionUnavailable, err)
	}
	// -2 means the key is gone, -1 means no expiry was set.
	if ttl < 0 {
		return 0, false, nil
	}
	return ttl, true, nil
}

// Unregister removes a subject from the sweep registry without touching
// any cached set.
func (s *PermissionStore) Unregister(ctx context.Context, subjectKey string) error {
	if err := s.redis.SRem(ctx, s.registryKey(), subjectKey).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrPermissionUnavailable, err)
	}
	return nil
}
