package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	credentialRecordVersionV1 = 1

	credentialStatusActive   = 1
	credentialStatusDisabled = 2

	dailyCounterTTL = 24 * time.Hour
)

var (
	ErrCredentialNotFound    = errors.New("api credential not found")
	ErrCredentialUnavailable = errors.New("credential store unavailable")
	ErrCredentialCorrupt     = errors.New("api credential record corrupt")
)

// CredentialRecord is the stored form of an API-key credential. Usage
// state (daily counter, total calls, last used) lives in separate atomic
// keys so the record itself is only rewritten by management operations.
type CredentialRecord struct {
	AppID                    string
	APIKey                   string
	SecretKey                string
	OwnerUserID              string
	Permissions              []string
	AllowedInterfacePatterns []string
	DailyLimit               int64
	ExpiresAt                int64 // unix seconds, 0 = never
	CreatedAt                int64
	Active                   bool
}

// ApiCredentialStore persists credential records and their usage
// counters. Credentials are soft-deleted only: Disable flips the status
// flag, the record is never removed.
type ApiCredentialStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewApiCredentialStore(redisClient redis.UniversalClient, prefix string) *ApiCredentialStore {
	if prefix == "" {
		prefix = "ac"
	}
	return &ApiCredentialStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *ApiCredentialStore) recordKey(appID string) string {
	return s.prefix + ":cred:" + appID
}

func (s *ApiCredentialStore) userIndexKey(userID string) string {
	return s.prefix + ":cred:user:" + userID
}

func (s *ApiCredentialStore) dailyKey(apiKey, date string) string {
	return s.prefix + ":cred:calls:" + apiKey + ":" + date
}

func (s *ApiCredentialStore) totalKey(appID string) string {
	return s.prefix + ":cred:total:" + appID
}

func (s *ApiCredentialStore) lastUsedKey(appID string) string {
	return s.prefix + ":cred:last:" + appID
}

// Save writes the credential record and indexes it under its owner.
func (s *ApiCredentialStore) Save(ctx context.Context, record *CredentialRecord) error {
	encoded, err := encodeCredentialRecord(record)
	if err != nil {
		return err
	}

	pipe := s.redis.Pipeline()
	pipe.Set(ctx, s.recordKey(record.AppID), encoded, 0)
	if record.OwnerUserID != "" {
		pipe.SAdd(ctx, s.userIndexKey(record.OwnerUserID), record.AppID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrCredentialUnavailable, err)
	}

	return nil
}

// Get loads the credential record for appID.
func (s *ApiCredentialStore) Get(ctx context.Context, appID string) (*CredentialRecord, error) {
	data, err := s.redis.Get(ctx, s.recordKey(appID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrCredentialUnavailable, err)
	}

	return decodeCredentialRecord(data)
}

// SetStatus flips the active flag without touching any other field.
func (s *ApiCredentialStore) SetStatus(ctx context.Context, appID string, active bool) error {
	record, err := s.Get(ctx, appID)
	if err != nil {
		return err
	}
	if record.Active == active {
		return nil
	}
	record.Active = active

	encoded, err := encodeCredentialRecord(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.recordKey(appID), encoded, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCredentialUnavailable, err)
	}

	return nil
}

// ListForUser returns every credential record owned by userID. App ids
// indexed but missing their record (should not happen) are skipped.
func (s *ApiCredentialStore) ListForUser(ctx context.Context, userID string) ([]*CredentialRecord, error) {
	appIDs, err := s.redis.SMembers(ctx, s.userIndexKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialUnavailable, err)
	}

	records := make([]*CredentialRecord, 0, len(appIDs))
	for _, appID := range appIDs {
		record, err := s.Get(ctx, appID)
		if err != nil {
			if errors.Is(err, ErrCredentialNotFound) {
				continue
			}
			return nil, err
		}
		records = append(records, record)
	}

	return records, nil
}

// IncrDailyUsage atomically bumps the day-scoped counter for apiKey and
// returns the post-increment count. The counter key embeds the calendar
// date, so quotas reset implicitly at the date boundary; the TTL only
// garbage-collects stale days.
func (s *ApiCredentialStore) IncrDailyUsage(ctx context.Context, apiKey string, day time.Time) (int64, error) {
	key := s.dailyKey(apiKey, day.Format("2006-01-02"))

	count, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCredentialUnavailable, err)
	}
	if count == 1 {
		if err := s.redis.Expire(ctx, key, dailyCounterTTL).Err(); err != nil {
			return count, fmt.Errorf("%w: %v", ErrCredentialUnavailable, err)
		}
	}

	return count, nil
}

// DailyUsage reads the current day-scoped count without incrementing.
func (s *ApiCredentialStore) DailyUsage(ctx context.Context, apiKey string, day time.Time) (int64, error) {
	count, err := s.redis.Get(ctx, s.dailyKey(apiKey, day.Format("2006-01-02"))).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrCredentialUnavailable, err)
	}
	return count, nil
}

// RecordUsage updates the total-call counter and last-used timestamp.
// Callers treat failure as non-fatal.
func (s *ApiCredentialStore) RecordUsage(ctx context.Context, appID string, at time.Time) error {
	pipe := s.redis.Pipeline()
	pipe.Incr(ctx, s.totalKey(appID))
	pipe.Set(ctx, s.lastUsedKey(appID), at.Unix(), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrCredentialUnavailable, err)
	}
	return nil
}

// Usage reads the total-call counter and last-used timestamp. Either may
// be zero when the credential has never been used.
func (s *ApiCredentialStore) Usage(ctx context.Context, appID string) (total int64, lastUsed time.Time, err error) {
	total, err = s.redis.Get(ctx, s.totalKey(appID)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, time.Time{}, fmt.Errorf("%w: %v", ErrCredentialUnavailable, err)
	}

	unix, err := s.redis.Get(ctx, s.lastUsedKey(appID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return total, time.Time{}, nil
		}
		return 0, time.Time{}, fmt.Errorf("%w: %v", ErrCredentialUnavailable, err)
	}

	return total, time.Unix(unix, 0), nil
}

func encodeCredentialRecord(record *CredentialRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(credentialRecordVersionV1)
	if record.Active {
		buf.WriteByte(credentialStatusActive)
	} else {
		buf.WriteByte(credentialStatusDisabled)
	}

	if err := binary.Write(&buf, binary.BigEndian, record.DailyLimit); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.CreatedAt); err != nil {
		return nil, err
	}

	for _, field := range []string{record.AppID, record.APIKey, record.SecretKey, record.OwnerUserID} {
		if err := writeLengthPrefixed(&buf, field); err != nil {
			return nil, err
		}
	}
	if err := writeStringList(&buf, record.Permissions); err != nil {
		return nil, err
	}
	if err := writeStringList(&buf, record.AllowedInterfacePatterns); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decodeCredentialRecord(data []byte) (*CredentialRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialCorrupt, err)
	}
	if version != credentialRecordVersionV1 {
		return nil, fmt.Errorf("%w: unknown version %d", ErrCredentialCorrupt, version)
	}

	status, err := reader.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialCorrupt, err)
	}

	record := &CredentialRecord{
		Active: status == credentialStatusActive,
	}

	if err := binary.Read(reader, binary.BigEndian, &record.DailyLimit); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialCorrupt, err)
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialCorrupt, err)
	}
	if err := binary.Read(reader, binary.BigEndian, &record.CreatedAt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialCorrupt, err)
	}

	for _, field := range []*string{&record.AppID, &record.APIKey, &record.SecretKey, &record.OwnerUserID} {
		value, err := readLengthPrefixed(reader)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCredentialCorrupt, err)
		}
		*field = value
	}

	record.Permissions, err = readStringList(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialCorrupt, err)
	}
	record.AllowedInterfacePatterns, err = readStringList(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentialCorrupt, err)
	}

	return record, nil
}

func writeLengthPrefixed(buf *bytes.Buffer, value string) error {
	if len(value) > 65535 {
		return errors.New("credential field too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(value))); err != nil {
		return err
	}
	buf.WriteString(value)
	return nil
}

func readLengthPrefixed(reader *bytes.Reader) (string, error) {
	var length uint16
	if err := binary.Read(reader, binary.BigEndian, &length); err != nil {
		return "", err
	}
	raw := make([]byte, length)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}

func writeStringList(buf *bytes.Buffer, values []string) error {
	if len(values) > 65535 {
		return errors.New("credential list too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(values))); err != nil {
		return err
	}
	for _, value := range values {
		if err := writeLengthPrefixed(buf, value); err != nil {
			return err
		}
	}
	return nil
}

func readStringList(reader *bytes.Reader) ([]string, error) {
	var count uint16
	if err := binary.Read(reader, binary.BigEndian, &count); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	values := make([]string, 0, count)
	for i := 0; i < int(count); i++ {
		value, err := readLengthPrefixed(reader)
		if err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, nil
}
