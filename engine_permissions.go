package authcore

import (
	"context"
	"errors"
	"time"
)

// PermissionWildcard grants every permission when present in a set.
const PermissionWildcard = "*"

// permissionSet resolves the permission set for a subject through the
// cache. A miss, and any cache error, falls open to the permission
// source; the freshly loaded set is cached best-effort.
func (e *Engine) permissionSet(ctx context.Context, subjectKey string) ([]string, error) {
	cached, hit, err := e.permCache.Get(ctx, subjectKey)
	if err != nil {
		// Fail open: permission reads degrade to the source, unlike the
		// revocation check, which fails closed.
		e.logger.Warn().Err(err).Str("subject", subjectKey).Msg("permission cache read failed")
	} else if hit {
		e.metricInc(MetricPermissionCacheHit)
		return cached, nil
	}

	if e.permSource == nil {
		return nil, errors.New("permission source not configured")
	}

	e.metricInc(MetricPermissionCacheMiss)
	loaded, err := e.permSource.Load(ctx, subjectKey)
	if err != nil {
		return nil, err
	}

	if err := e.permCache.Put(ctx, subjectKey, loaded, e.config.Permission.CacheTTL); err != nil {
		e.logger.Warn().Err(err).Str("subject", subjectKey).Msg("permission cache write failed")
	}

	return loaded, nil
}

// principalHasPermission checks a required permission against the
// principal's own token permissions first, then the cached subject set.
func (e *Engine) principalHasPermission(ctx context.Context, userID string, tokenPermissions []string, required string) (bool, error) {
	if containsPermission(tokenPermissions, required) {
		return true, nil
	}
	if e.permSource == nil {
		return false, nil
	}
	return e.HasPermission(ctx, "user:"+userID, required)
}

// HasPermission reports whether the subject's set grants the permission.
func (e *Engine) HasPermission(ctx context.Context, subjectKey, permission string) (bool, error) {
	if e == nil {
		return false, ErrEngineNotReady
	}
	if subjectKey == "" || permission == "" {
		return false, errors.New("subject key and permission required")
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	set, err := e.permissionSet(opCtx, subjectKey)
	if err != nil {
		return false, err
	}

	return containsPermission(set, permission), nil
}

// HasAnyPermission reports whether at least one permission is granted.
func (e *Engine) HasAnyPermission(ctx context.Context, subjectKey string, permissions ...string) (bool, error) {
	if e == nil {
		return false, ErrEngineNotReady
	}
	if subjectKey == "" || len(permissions) == 0 {
		return false, errors.New("subject key and permissions required")
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	set, err := e.permissionSet(opCtx, subjectKey)
	if err != nil {
		return false, err
	}

	for _, p := range permissions {
		if containsPermission(set, p) {
			return true, nil
		}
	}
	return false, nil
}

// HasAllPermissions reports whether every permission is granted.
func (e *Engine) HasAllPermissions(ctx context.Context, subjectKey string, permissions ...string) (bool, error) {
	if e == nil {
		return false, ErrEngineNotReady
	}
	if subjectKey == "" || len(permissions) == 0 {
		return false, errors.New("subject key and permissions required")
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	set, err := e.permissionSet(opCtx, subjectKey)
	if err != nil {
		return false, err
	}

	for _, p := range permissions {
		if !containsPermission(set, p) {
			return false, nil
		}
	}
	return true, nil
}

// InvalidatePermissions drops the cached set for a subject so the next
// lookup reloads from the source.
func (e *Engine) InvalidatePermissions(ctx context.Context, subjectKey string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if subjectKey == "" {
		return errors.New("subject key required")
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	return e.permCache.Invalidate(opCtx, subjectKey)
}

func containsPermission(set []string, permission string) bool {
	for _, p := range set {
		if p == PermissionWildcard || p == permission {
			return true
		}
	}
	return false
}

/*
====================================
BACKGROUND SWEEP
====================================
*/

// startPermissionSweep launches the goroutine that refreshes cached
// permission sets nearing expiry, keeping reloads off the request path.
func (e *Engine) startPermissionSweep() {
	e.sweepStop = make(chan struct{})
	e.sweepWG.Add(1)

	go func() {
		defer e.sweepWG.Done()

		ticker := time.NewTicker(e.config.Permission.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				e.sweepPermissions()
			case <-e.sweepStop:
				return
			}
		}
	}()
}

func (e *Engine) sweepPermissions() {
	ctx, cancel := context.WithTimeout(context.Background(), e.config.Cache.OpTimeout)
	defer cancel()

	subjects, err := e.permCache.Subjects(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("permission sweep listing failed")
		return
	}

	for _, subject := range subjects {
		remaining, ok, err := e.permCache.RemainingTTL(ctx, subject)
		if err != nil {
			e.logger.Warn().Err(err).Str("subject", subject).Msg("permission sweep ttl read failed")
			continue
		}
		if !ok {
			// Entry expired between listing and now; drop the registration.
			if err := e.permCache.Unregister(ctx, subject); err != nil {
				e.logger.Warn().Err(err).Str("subject", subject).Msg("permission sweep unregister failed")
			}
			continue
		}
		if remaining >= e.config.Permission.RefreshThreshold {
			continue
		}

		loaded, err := e.permSource.Load(ctx, subject)
		if err != nil {
			e.logger.Warn().Err(err).Str("subject", subject).Msg("permission sweep reload failed")
			continue
		}
		if err := e.permCache.Put(ctx, subject, loaded, e.config.Permission.CacheTTL); err != nil {
			e.logger.Warn().Err(err).Str("subject", subject).Msg("permission sweep write failed")
			continue
		}
		e.metricInc(MetricPermissionSweepRefresh)
	}
}
