package authcore

import (
	"context"
	"sync"
	"time"

	"github.com/powertrading/authcore/internal/stores"
	"github.com/powertrading/authcore/token"
	"github.com/rs/zerolog"
)

// Engine is the authentication core. It is stateless per call: all
// shared state lives in Redis, so any number of Engine instances may
// serve the same deployment concurrently.
type Engine struct {
	config      Config
	codec       *token.Codec
	revocations *stores.RevocationStore
	credentials *stores.ApiCredentialStore
	security    *stores.SecurityStore
	permCache   *stores.PermissionStore
	permSource  PermissionSource
	audit       *auditDispatcher
	metrics     *Metrics
	logger      zerolog.Logger

	sweepStop chan struct{}
	sweepWG   sync.WaitGroup
	closeOnce sync.Once
}

// Close stops the permission sweep and drains the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		if e.sweepStop != nil {
			close(e.sweepStop)
			e.sweepWG.Wait()
		}
		if e.audit != nil {
			e.audit.Close()
		}
	})
}

// AuditDropped reports how many audit events were dropped because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// opContext bounds one hot-path call to the configured cache timeout.
func (e *Engine) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if e.config.Cache.OpTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.config.Cache.OpTimeout)
}

// Authenticate validates the request's credentials and returns a
// structured result. It never returns an error: every failure is mapped
// onto a stable ErrorCode, and the outcome is audited asynchronously.
func (e *Engine) Authenticate(ctx context.Context, req AuthenticateRequest) *AuthenticationResult {
	if e == nil {
		return failureResult("", ErrEngineNotReady)
	}

	started := time.Now()
	if req.ClientIP == "" {
		req.ClientIP = clientIPFromContext(ctx)
	}
	if req.UserAgent == "" {
		req.UserAgent = userAgentFromContext(ctx)
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	result := e.authenticate(opCtx, req)

	if result.Success {
		e.metricInc(MetricAuthSuccess)
	} else {
		e.metricInc(MetricAuthFailure)
	}
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricAuthLatency, time.Since(started))
	}
	e.emitAuthEvent(ctx, req, result)

	return result
}

func (e *Engine) authenticate(ctx context.Context, req AuthenticateRequest) *AuthenticationResult {
	blacklisted, err := e.security.IsIPBlacklisted(ctx, req.ClientIP)
	if err != nil {
		e.logger.Warn().Err(err).Str("client_ip", req.ClientIP).Msg("ip blacklist check failed")
	}
	if blacklisted {
		e.metricInc(MetricIPBlacklistedHit)
		return failureResult("", ErrIPBlacklisted)
	}

	hasJWT := req.JWTToken != ""
	hasApiKey := req.AppID != ""

	mode := req.AuthMode
	if mode == "" || mode == AuthModeAuto {
		switch {
		case hasJWT && hasApiKey:
			mode = AuthModeMixed
		case hasJWT:
			mode = AuthModeJWT
		case hasApiKey:
			mode = AuthModeApiKey
		default:
			return failureResult("", ErrMissingCredentials)
		}
	}

	switch mode {
	case AuthModeJWT:
		if !hasJWT {
			return failureResult(AuthTypeJWT, ErrMissingCredentials)
		}
		result, err := e.authenticateJWT(ctx, req)
		if err != nil {
			return failureResult(AuthTypeJWT, err)
		}
		return result

	case AuthModeApiKey:
		if !hasApiKey {
			return failureResult(AuthTypeApiKey, ErrMissingCredentials)
		}
		result, err := e.authenticateApiKey(ctx, req)
		if err != nil {
			return failureResult(AuthTypeApiKey, err)
		}
		return result

	case AuthModeMixed:
		return e.authenticateMixed(ctx, req)

	default:
		return failureResult("", ErrInvalidInput)
	}
}

// authenticateJWT runs the token path: parse, fail-closed revocation
// check, lockout check, optional required-permission check.
func (e *Engine) authenticateJWT(ctx context.Context, req AuthenticateRequest) (*AuthenticationResult, error) {
	claims, err := e.codec.ParseAccess(req.JWTToken)
	if err != nil {
		e.metricInc(MetricJWTRejected)
		return nil, err
	}

	revoked, err := e.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		// Fail closed: a broken cache never lets a token through.
		e.metricInc(MetricJWTRejected)
		return nil, err
	}
	if revoked {
		e.metricInc(MetricTokenRevokedHit)
		e.metricInc(MetricJWTRejected)
		return nil, ErrTokenRevoked
	}

	lock, err := e.security.Lockout(ctx, claims.Subject)
	if err != nil {
		e.logger.Warn().Err(err).Str("user_id", claims.Subject).Msg("lockout check failed")
	}
	if lock != nil {
		e.metricInc(MetricJWTRejected)
		return nil, ErrAccountLocked
	}

	if req.CheckPermissions && req.RequiredPermission != "" {
		granted, err := e.principalHasPermission(ctx, claims.Subject, claims.Permissions, req.RequiredPermission)
		if err != nil {
			return nil, err
		}
		if !granted {
			e.metricInc(MetricJWTRejected)
			return nil, ErrPermissionDenied
		}
	}

	e.metricInc(MetricJWTValidated)

	remaining := claims.Remaining(time.Now())
	return &AuthenticationResult{
		Success:          true,
		AuthType:         AuthTypeJWT,
		UserID:           claims.Subject,
		Username:         claims.Username,
		CompanyName:      claims.CompanyName,
		Roles:            claims.Roles,
		Permissions:      claims.Permissions,
		ExpireAt:         claims.ExpiresAt.Time,
		RemainingSeconds: int64(remaining.Seconds()),
	}, nil
}

// authenticateMixed runs JWT first, then the API key. The failure paths
// are asymmetric: a failed JWT falls back to the API key alone, and a
// good JWT with no API key present stands on its own, but a failed API
// key after a good JWT fails the whole request rather than silently
// downgrading it. StrictMode disables both single-credential outcomes
// and requires the pair.
func (e *Engine) authenticateMixed(ctx context.Context, req AuthenticateRequest) *AuthenticationResult {
	hasApiKey := req.AppID != ""

	jwtResult, jwtErr := e.authenticateJWT(ctx, req)
	if jwtErr != nil {
		if req.StrictMode || !hasApiKey {
			return failureResult(AuthTypeMixed, jwtErr)
		}
		apiResult, apiErr := e.authenticateApiKey(ctx, req)
		if apiErr != nil {
			return failureResult(AuthTypeMixed, apiErr)
		}
		e.metricInc(MetricMixedFallback)
		return apiResult
	}

	if !hasApiKey {
		if req.StrictMode {
			return failureResult(AuthTypeMixed, ErrMissingCredentials)
		}
		return jwtResult
	}

	apiResult, apiErr := e.authenticateApiKey(ctx, req)
	if apiErr != nil {
		e.metricInc(MetricMixedPartialFailure)
		return failureResult(AuthTypeMixed, ErrMixedAuthPartialFail)
	}

	e.metricInc(MetricMixedMerged)
	return mergeResults(jwtResult, apiResult)
}

// mergeResults combines a JWT and an API-key success: identity comes
// from the token, appId from the credential, permissions are the union,
// and the remaining lifetime is the shorter of the two.
func mergeResults(jwtResult, apiResult *AuthenticationResult) *AuthenticationResult {
	merged := &AuthenticationResult{
		Success:     true,
		AuthType:    AuthTypeMixed,
		UserID:      jwtResult.UserID,
		Username:    jwtResult.Username,
		CompanyName: jwtResult.CompanyName,
		Roles:       jwtResult.Roles,
		AppID:       apiResult.AppID,
		Permissions: unionStrings(jwtResult.Permissions, apiResult.Permissions),
	}

	// RemainingSeconds <= 0 on the API-key side means the credential
	// never expires, so the token bounds the session.
	merged.ExpireAt = jwtResult.ExpireAt
	merged.RemainingSeconds = jwtResult.RemainingSeconds
	if apiResult.RemainingSeconds > 0 && apiResult.RemainingSeconds < merged.RemainingSeconds {
		merged.ExpireAt = apiResult.ExpireAt
		merged.RemainingSeconds = apiResult.RemainingSeconds
	}

	return merged
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, values := range [][]string{a, b} {
		for _, v := range values {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

func failureResult(authType AuthType, err error) *AuthenticationResult {
	return &AuthenticationResult{
		Success:      false,
		AuthType:     authType,
		ErrorCode:    errorCode(err),
		ErrorMessage: err.Error(),
	}
}
