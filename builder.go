package authcore

import (
	"errors"

	"github.com/powertrading/authcore/internal/stores"
	"github.com/powertrading/authcore/token"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Builder assembles an Engine. Configure it with the With* chain and
// call Build exactly once; the builder cannot be reused.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	permissionSource PermissionSource
	auditSink        AuditSink
	logger           *zerolog.Logger

	built bool
}

// New returns a Builder preloaded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the builder's configuration wholesale.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies the Redis client backing every store. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithPermissionSource supplies the collaborator that owns permission
// definitions. Required when CheckPermissions or the permission API is
// used; optional otherwise.
func (b *Builder) WithPermissionSource(source PermissionSource) *Builder {
	b.permissionSource = source
	return b
}

// WithAuditSink supplies the audit event receiver. Events are delivered
// asynchronously; a nil sink with audit enabled falls back to NoOp.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger supplies a zerolog logger for background and best-effort
// failure reporting. The engine never logs on the success hot path.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = &logger
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the authentication latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, wires the stores and returns a
// ready Engine. The caller owns the Engine and must Close it to stop
// the audit dispatcher and the permission sweep.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Permission.SweepInterval > 0 && b.permissionSource == nil {
		return nil, errors.New("permission sweep requires a permission source")
	}

	codec, err := token.NewCodec(token.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		SigningMethod: token.SigningMethod(cfg.JWT.SigningMethod),
		Secret:        cloneBytes(cfg.JWT.Secret),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Leeway:        cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	logger := zerolog.Nop()
	if b.logger != nil {
		logger = *b.logger
	}

	prefix := cfg.Cache.RedisPrefix

	engine := &Engine{
		config:      cfg,
		codec:       codec,
		revocations: stores.NewRevocationStore(b.redis, prefix),
		credentials: stores.NewApiCredentialStore(b.redis, prefix),
		security:    stores.NewSecurityStore(b.redis, prefix),
		permCache:   stores.NewPermissionStore(b.redis, prefix),
		permSource:  b.permissionSource,
		audit:       newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:     NewMetrics(cfg.Metrics),
		logger:      logger,
	}

	if cfg.Permission.SweepInterval > 0 {
		engine.startPermissionSweep()
	}

	b.built = true

	return engine, nil
}
