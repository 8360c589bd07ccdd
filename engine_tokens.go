package authcore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/powertrading/authcore/token"
)

// GenerateTokens mints an access/refresh pair for the identity and
// tracks both jtis in the subject's forward index so RevokeAllForUser
// can find them later.
func (e *Engine) GenerateTokens(ctx context.Context, req TokenGenerateRequest) (*TokenPair, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if req.UserID == "" {
		return nil, errors.New("user id required")
	}

	accessToken, accessClaims, err := e.codec.IssueAccess(token.Identity{
		UserID:      req.UserID,
		Username:    req.Username,
		CompanyName: req.CompanyName,
		Roles:       req.Roles,
		Permissions: req.Permissions,
	})
	if err != nil {
		return nil, err
	}

	refreshToken, refreshClaims, err := e.codec.IssueRefresh(req.UserID)
	if err != nil {
		return nil, err
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	if err := e.revocations.Track(opCtx, req.UserID, accessClaims.ID, e.codec.AccessTTL()); err != nil {
		return nil, err
	}
	if err := e.revocations.Track(opCtx, req.UserID, refreshClaims.ID, e.codec.RefreshTTL()); err != nil {
		return nil, err
	}

	e.metricInc(MetricTokensIssued)
	e.emitManagementEvent(ctx, "tokens_issued", req.UserID, "", nil)

	return &TokenPair{
		AccessToken:     accessToken,
		RefreshToken:    refreshToken,
		TokenType:       "Bearer",
		ExpiresIn:       int64(e.codec.AccessTTL().Seconds()),
		ExpireAt:        accessClaims.ExpiresAt.Time,
		RefreshExpireAt: refreshClaims.ExpiresAt.Time,
		Scope:           req.Permissions,
	}, nil
}

// ValidateToken verifies an access token standalone: signature, expiry,
// revocation (fail closed) and account lockout.
func (e *Engine) ValidateToken(ctx context.Context, tokenStr string) (*Principal, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if tokenStr == "" {
		return nil, ErrMissingCredentials
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	claims, err := e.codec.ParseAccess(tokenStr)
	if err != nil {
		e.metricInc(MetricJWTRejected)
		return nil, err
	}

	revoked, err := e.revocations.IsRevoked(opCtx, claims.ID)
	if err != nil {
		e.metricInc(MetricJWTRejected)
		return nil, err
	}
	if revoked {
		e.metricInc(MetricTokenRevokedHit)
		e.metricInc(MetricJWTRejected)
		return nil, ErrTokenRevoked
	}

	lock, err := e.security.Lockout(opCtx, claims.Subject)
	if err != nil {
		e.logger.Warn().Err(err).Str("user_id", claims.Subject).Msg("lockout check failed")
	}
	if lock != nil {
		e.metricInc(MetricJWTRejected)
		return nil, ErrAccountLocked
	}

	e.metricInc(MetricJWTValidated)

	return &Principal{
		UserID:      claims.Subject,
		Username:    claims.Username,
		CompanyName: claims.CompanyName,
		Roles:       claims.Roles,
		Permissions: claims.Permissions,
	}, nil
}

// RefreshTokens rotates a refresh token: the old refresh jti is revoked
// and a fresh pair is issued. When identity is non-nil it supplies the
// roles and permissions baked into the new access token and its UserID
// must match the refresh token's subject; a nil identity mints an
// access token carrying only the subject.
func (e *Engine) RefreshTokens(ctx context.Context, refreshToken string, identity *TokenGenerateRequest) (*TokenPair, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if refreshToken == "" {
		return nil, ErrMissingCredentials
	}

	claims, err := e.codec.ParseRefresh(refreshToken)
	if err != nil {
		return nil, err
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	revoked, err := e.revocations.IsRevoked(opCtx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		e.metricInc(MetricTokenRevokedHit)
		return nil, ErrTokenRevoked
	}

	lock, err := e.security.Lockout(opCtx, claims.Subject)
	if err != nil {
		e.logger.Warn().Err(err).Str("user_id", claims.Subject).Msg("lockout check failed")
	}
	if lock != nil {
		return nil, ErrAccountLocked
	}

	req := TokenGenerateRequest{UserID: claims.Subject}
	if identity != nil {
		if identity.UserID != claims.Subject {
			return nil, ErrInvalidInput
		}
		req = *identity
	}

	pair, err := e.GenerateTokens(ctx, req)
	if err != nil {
		return nil, err
	}

	// Rotation: the consumed refresh token must never work again.
	if err := e.revocations.Revoke(opCtx, claims.ID, claims.Remaining(time.Now())); err != nil {
		return nil, err
	}
	if err := e.revocations.Untrack(opCtx, claims.Subject, claims.ID); err != nil {
		e.logger.Warn().Err(err).Str("user_id", claims.Subject).Msg("refresh untrack failed")
	}

	e.metricInc(MetricTokensRefreshed)
	e.emitManagementEvent(ctx, "tokens_refreshed", claims.Subject, "", nil)

	return pair, nil
}

// RevokeToken denylists a single token for its remaining lifetime. The
// token must still parse; an already-expired token needs no revocation.
func (e *Engine) RevokeToken(ctx context.Context, tokenStr string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if tokenStr == "" {
		return ErrMissingCredentials
	}

	claims, err := e.codec.Parse(tokenStr)
	if err != nil {
		return err
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	if err := e.revocations.Revoke(opCtx, claims.ID, claims.Remaining(time.Now())); err != nil {
		return err
	}
	if err := e.revocations.Untrack(opCtx, claims.Subject, claims.ID); err != nil {
		e.logger.Warn().Err(err).Str("user_id", claims.Subject).Msg("revoke untrack failed")
	}

	e.metricInc(MetricTokensRevoked)
	e.emitManagementEvent(ctx, "token_revoked", claims.Subject, "", nil)

	return nil
}

// RevokeAllForUser denylists every live token tracked for the user and
// returns how many were revoked.
func (e *Engine) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	if userID == "" {
		return 0, errors.New("user id required")
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	// Each entry gets the refresh TTL, the longest lifetime any tracked
	// token can still have.
	n, err := e.revocations.RevokeAllForSubject(opCtx, userID, e.codec.RefreshTTL())
	if err != nil {
		return 0, err
	}

	if n > 0 {
		e.metricInc(MetricMassRevocation)
	}
	e.emitManagementEvent(ctx, "tokens_revoked_all", userID, "", map[string]string{
		"revoked": strconv.Itoa(n),
	})

	return n, nil
}
