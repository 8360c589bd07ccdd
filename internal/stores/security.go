package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	lockoutRecordVersionV1 = 1

	suspiciousLogCap = 100
	suspiciousLogTTL = 7 * 24 * time.Hour
)

var (
	ErrSecurityUnavailable = errors.New("security store unavailable")
	ErrLockoutCorrupt      = errors.New("lockout record corrupt")
)

// LockoutRecord describes an active account lockout. The Redis entry's
// TTL equals the lockout duration, so expiry doubles as auto-unlock.
type LockoutRecord struct {
	Reason   string
	ClientIP string
	LockedAt int64
	UnlockAt int64
}

// SuspiciousActivity is one entry in the per-subject append-only log.
// The log is evidence for operators, never a gate.
type SuspiciousActivity struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Activity  string    `json:"activity"`
	ClientIP  string    `json:"client_ip,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// SecurityStore holds login-failure counters, lockout records, the IP
// blacklist and the suspicious-activity log.
type SecurityStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewSecurityStore(redisClient redis.UniversalClient, prefix string) *SecurityStore {
	if prefix == "" {
		prefix = "ac"
	}
	return &SecurityStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *SecurityStore) accountFailKey(accountID string) string {
	return s.prefix + ":sec:fail:acct:" + accountID
}

func (s *SecurityStore) ipFailKey(ip string) string {
	return s.prefix + ":sec:fail:ip:" + ip
}

func (s *SecurityStore) lockKey(userID string) string {
	return s.prefix + ":sec:lock:" + userID
}

func (s *SecurityStore) blacklistKey(ip string) string {
	return s.prefix + ":sec:ipdeny:" + ip
}

func (s *SecurityStore) activityKey(subject string) string {
	return s.prefix + ":sec:activity:" + subject
}

// IncrAccountFailures bumps the account failure counter. The window TTL
// starts on the first failure, not on the latest one.
func (s *SecurityStore) IncrAccountFailures(ctx context.Context, accountID string, window time.Duration) (int64, error) {
	return s.incrWindowed(ctx, s.accountFailKey(accountID), window)
}

// IncrIPFailures bumps the client-IP failure counter.
func (s *SecurityStore) IncrIPFailures(ctx context.Context, ip string, window time.Duration) (int64, error) {
	return s.incrWindowed(ctx, s.ipFailKey(ip), window)
}

func (s *SecurityStore) incrWindowed(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrSecurityUnavailable, err)
	}
	if count == 1 {
		if err := s.redis.Expire(ctx, key, window).Err(); err != nil {
			return count, fmt.Errorf("%w: %v", ErrSecurityUnavailable, err)
		}
	}
	return count, nil
}

// AccountFailures reads the current counter without incrementing.
func (s *SecurityStore) AccountFailures(ctx context.Context, accountID string) (int64, error) {
	return s.readCounter(ctx, s.accountFailKey(accountID))
}

// IPFailures reads the current IP counter without incrementing.
func (s *SecurityStore) IPFailures(ctx context.Context, ip string) (int64, error) {
	return s.readCounter(ctx, s.ipFailKey(ip))
}

func (s *SecurityStore) readCounter(ctx context.Context, key string) (int64, error) {
	count, err := s.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrSecurityUnavailable, err)
	}
	return count, nil
}

// ClearAccountFailures resets the counter, typically after a successful
// login or an explicit unlock.
func (s *SecurityStore) ClearAccountFailures(ctx context.Context, accountID string) error {
	if err := s.redis.Del(ctx, s.accountFailKey(accountID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrSecurityUnavailable, err)
	}
	return nil
}

// ClearIPFailures resets the client-IP counter.
func (s *SecurityStore) ClearIPFailures(ctx context.Context, ip string) error {
	if err := s.redis.Del(ctx, s.ipFailKey(ip)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrSecurityUnavailable, err)
	}
	return nil
}

// Lock writes a lockout record for the user. ttl is the lockout duration
// and must be positive.
func (s *SecurityStore) Lock(ctx context.Context, userID string, record *LockoutRecord, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("lockout ttl must be positive")
	}

	encoded, err := encodeLockoutRecord(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.lockKey(userID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrSecurityUnavailable, err)
	}

	return nil
}

// Unlock removes the lockout record. The caller clears failure counters
// separately so that unlock semantics stay in one place, the engine.
func (s *SecurityStore) Unlock(ctx context.Context, userID string) error {
	if err := s.redis.Del(ctx, s.lockKey(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrSecurityUnavailable, err)
	}
	return nil
}

// Lockout returns the active lockout record for userID, or nil when the
// account is not locked.
func (s *SecurityStore) Lockout(ctx context.Context, userID string) (*LockoutRecord, error) {
	data, err := s.redis.Get(ctx, s.lockKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrSecurityUnavailable, err)
	}

	return decodeLockoutRecord(data)
}

// BlacklistIP adds ip to the deny list. A zero ttl makes the entry
// permanent until removed.
func (s *SecurityStore) BlacklistIP(ctx context.Context, ip, reason string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.redis.Set(ctx, s.blacklistKey(ip), reason, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrSecurityUnavailable, err)
	}
	return nil
}

// UnblacklistIP removes ip from the deny list.
func (s *SecurityStore) UnblacklistIP(ctx context.Context, ip string) error {
	if err := s.redis.Del(ctx, s.blacklistKey(ip)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrSecurityUnavailable, err)
	}
	return nil
}

// IsIPBlacklisted reports whether ip is denied.
func (s *SecurityStore) IsIPBlacklisted(ctx context.Context, ip string) (bool, error) {
	if ip == "" {
		return false, nil
	}
	n, err := s.redis.Exists(ctx, s.blacklistKey(ip)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrSecurityUnavailable, err)
	}
	return n > 0, nil
}

// RecordSuspiciousActivity appends an entry to the subject's capped log.
func (s *SecurityStore) RecordSuspiciousActivity(ctx context.Context, subject string, entry SuspiciousActivity) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	key := s.activityKey(subject)
	pipe := s.redis.Pipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, suspiciousLogCap-1)
	pipe.Expire(ctx, key, suspiciousLogTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrSecurityUnavailable, err)
	}

	return nil
}

// SuspiciousActivities returns up to limit entries, newest first.
func (s *SecurityStore) SuspiciousActivities(ctx context.Context, subject string, limit int) ([]SuspiciousActivity, error) {
	if limit <= 0 || limit > suspiciousLogCap {
		limit = suspiciousLogCap
	}

	raw, err := s.redis.LRange(ctx, s.activityKey(subject), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSecurityUnavailable, err)
	}

	entries := make([]SuspiciousActivity, 0, len(raw))
	for _, item := range raw {
		var entry SuspiciousActivity
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

func encodeLockoutRecord(record *LockoutRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(lockoutRecordVersionV1)
	if err := binary.Write(&buf, binary.BigEndian, record.LockedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.UnlockAt); err != nil {
		return nil, err
	}
	for _, field := range []string{record.Reason, record.ClientIP} {
		if len(field) > 65535 {
			return nil, errors.New("lockout field too long")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}

	return buf.Bytes(), nil
}

func decodeLockoutRecord(data []byte) (*LockoutRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLockoutCorrupt, err)
	}
	if version != lockoutRecordVersionV1 {
		return nil, fmt.Errorf("%w: unknown version %d", ErrLockoutCorrupt, version)
	}

	record := &LockoutRecord{}
	if err := binary.Read(reader, binary.BigEndian, &record.LockedAt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLockoutCorrupt, err)
	}
	if err := binary.Read(reader, binary.BigEndian, &record.UnlockAt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLockoutCorrupt, err)
	}

	for _, field := range []*string{&record.Reason, &record.ClientIP} {
		var length uint16
		if err := binary.Read(reader, binary.BigEndian, &length); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLockoutCorrupt, err)
		}
		raw := make([]byte, length)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLockoutCorrupt, err)
		}
		*field = string(raw)
	}

	return record, nil
}
