package authcore

import "time"

// SecurityReport summarizes the engine's active security posture for
// operator dashboards and startup logging.
type SecurityReport struct {
	SigningAlgorithm   string
	AccessTTL          time.Duration
	RefreshTTL         time.Duration
	StrictExpiry       bool
	Leeway             time.Duration
	LockoutThreshold   int
	LockoutDuration    time.Duration
	RevokeTokensOnLock bool
	IPFailureTracking  bool
	IPAutoBlacklist    bool
	SignatureRequired  bool
	PermissionSweep    bool
	PermissionCacheTTL time.Duration
	AuditEnabled       bool
	MetricsEnabled     bool
}

// SecurityReport reports the effective configuration of this engine.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	return SecurityReport{
		SigningAlgorithm:   e.config.JWT.SigningMethod,
		AccessTTL:          e.config.JWT.AccessTTL,
		RefreshTTL:         e.config.JWT.RefreshTTL,
		StrictExpiry:       e.config.JWT.Leeway == 0,
		Leeway:             e.config.JWT.Leeway,
		LockoutThreshold:   e.config.Security.MaxLoginFailures,
		LockoutDuration:    e.config.Security.LockoutDuration,
		RevokeTokensOnLock: e.config.Security.RevokeTokensOnLock,
		IPFailureTracking:  e.config.Security.TrackIPFailures,
		IPAutoBlacklist:    e.config.Security.MaxIPFailures > 0,
		SignatureRequired:  e.config.ApiKey.RequireSignature,
		PermissionSweep:    e.config.Permission.SweepInterval > 0,
		PermissionCacheTTL: e.config.Permission.CacheTTL,
		AuditEnabled:       e.config.Audit.Enabled,
		MetricsEnabled:     e.config.Metrics.Enabled,
	}
}
