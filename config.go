package authcore

import (
	"errors"
	"time"
)

// Config is the complete engine configuration. Configure it before
// Build; the engine clones it and never reads the caller's copy again.
type Config struct {
	JWT        JWTConfig
	ApiKey     ApiKeyConfig
	Security   SecurityConfig
	Permission PermissionConfig
	Cache      CacheConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls token signing and verification.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	Secret        []byte // hs256
	PrivateKey    []byte // ed25519 (raw seed/private or PEM)
	PublicKey     []byte // ed25519 (raw or PEM)
	Issuer        string // enforced on parse when non-empty

	// Leeway is the clock-skew tolerance applied to expiry checks.
	// Zero means strict expiry, which is the default.
	Leeway time.Duration
}

/*
====================================
API KEY CONFIG
====================================
*/

// ApiKeyConfig controls API-key credential validation.
type ApiKeyConfig struct {
	// DefaultDailyLimit applies to credentials created without an
	// explicit limit. Zero disables quota enforcement for them.
	DefaultDailyLimit int64

	// DefaultCredentialTTL bounds new credentials' validity. Zero means
	// credentials never expire unless a CreateApiCredential call says so.
	DefaultCredentialTTL time.Duration

	// RequireSignature rejects validation requests that carry no
	// signature instead of skipping the signature check.
	RequireSignature bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig controls failure counting, lockout and the IP blacklist.
type SecurityConfig struct {
	MaxLoginFailures   int           // lockout threshold
	FailureWindow      time.Duration // counter window
	LockoutDuration    time.Duration
	TrackIPFailures    bool
	MaxIPFailures      int           // auto-blacklist threshold, 0 = never
	IPBlacklistTTL     time.Duration // 0 = permanent until removed
	RevokeTokensOnLock bool
}

// PermissionConfig controls the read-through permission cache.
type PermissionConfig struct {
	CacheTTL time.Duration

	// SweepInterval is how often the background sweep wakes up. Zero
	// disables the sweep entirely.
	SweepInterval time.Duration

	// RefreshThreshold is the remaining TTL below which the sweep
	// refreshes an entry from the permission source.
	RefreshThreshold time.Duration
}

// CacheConfig names the Redis key namespace and bounds hot-path calls.
type CacheConfig struct {
	RedisPrefix string
	OpTimeout   time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     30 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "hs256",
			Leeway:        0,
		},
		ApiKey: ApiKeyConfig{
			DefaultDailyLimit:    10000,
			DefaultCredentialTTL: 0,
			RequireSignature:     false,
		},
		Security: SecurityConfig{
			MaxLoginFailures:   5,
			FailureWindow:      15 * time.Minute,
			LockoutDuration:    30 * time.Minute,
			TrackIPFailures:    true,
			MaxIPFailures:      0,
			IPBlacklistTTL:     24 * time.Hour,
			RevokeTokensOnLock: true,
		},
		Permission: PermissionConfig{
			CacheTTL:         10 * time.Minute,
			SweepInterval:    0,
			RefreshThreshold: 2 * time.Minute,
		},
		Cache: CacheConfig{
			RedisPrefix: "ac",
			OpTimeout:   2 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks cross-field consistency. Build calls it; callers only
// need it when they want early feedback on a hand-built Config.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be >= AccessTTL")
	}
	switch c.JWT.SigningMethod {
	case "hs256":
		if len(c.JWT.Secret) < 32 {
			return errors.New("hs256 requires Secret of at least 32 bytes")
		}
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
		if len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PublicKey")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 {
		return errors.New("JWT Leeway must be >= 0")
	}
	if c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be <= 2m")
	}

	// API key
	if c.ApiKey.DefaultDailyLimit < 0 {
		return errors.New("ApiKey DefaultDailyLimit must be >= 0")
	}
	if c.ApiKey.DefaultCredentialTTL < 0 {
		return errors.New("ApiKey DefaultCredentialTTL must be >= 0")
	}

	// Security
	if c.Security.MaxLoginFailures <= 0 {
		return errors.New("Security MaxLoginFailures must be > 0")
	}
	if c.Security.FailureWindow <= 0 {
		return errors.New("Security FailureWindow must be > 0")
	}
	if c.Security.LockoutDuration <= 0 {
		return errors.New("Security LockoutDuration must be > 0")
	}
	if c.Security.MaxIPFailures < 0 {
		return errors.New("Security MaxIPFailures must be >= 0")
	}
	if c.Security.MaxIPFailures > 0 && !c.Security.TrackIPFailures {
		return errors.New("Security MaxIPFailures requires TrackIPFailures")
	}
	if c.Security.IPBlacklistTTL < 0 {
		return errors.New("Security IPBlacklistTTL must be >= 0")
	}

	// Permission
	if c.Permission.CacheTTL <= 0 {
		return errors.New("Permission CacheTTL must be > 0")
	}
	if c.Permission.SweepInterval < 0 {
		return errors.New("Permission SweepInterval must be >= 0")
	}
	if c.Permission.SweepInterval > 0 {
		if c.Permission.RefreshThreshold <= 0 {
			return errors.New("Permission RefreshThreshold must be > 0 when sweep is enabled")
		}
		if c.Permission.RefreshThreshold >= c.Permission.CacheTTL {
			return errors.New("Permission RefreshThreshold must be < CacheTTL")
		}
	}

	// Cache
	if c.Cache.RedisPrefix == "" {
		return errors.New("Cache RedisPrefix must not be empty")
	}
	if c.Cache.OpTimeout <= 0 {
		return errors.New("Cache OpTimeout must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
