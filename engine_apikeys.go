package authcore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/powertrading/authcore/internal"
	"github.com/powertrading/authcore/internal/stores"
)

// authenticateApiKey runs the API-key validation chain. The order is a
// compatibility contract: lookup, status, expiry, lockout, signature,
// quota, interface patterns, then best-effort usage accounting.
func (e *Engine) authenticateApiKey(ctx context.Context, req AuthenticateRequest) (*AuthenticationResult, error) {
	record, err := e.credentials.Get(ctx, req.AppID)
	if err != nil {
		if errors.Is(err, stores.ErrCredentialNotFound) {
			e.metricInc(MetricApiKeyRejected)
			return nil, ErrApiKeyNotFound
		}
		return nil, err
	}
	if req.APIKey != "" && req.APIKey != record.APIKey {
		e.metricInc(MetricApiKeyRejected)
		return nil, ErrApiKeyNotFound
	}

	if !record.Active {
		e.metricInc(MetricApiKeyRejected)
		return nil, ErrApiKeyDisabled
	}

	now := time.Now()
	if record.ExpiresAt > 0 && now.Unix() > record.ExpiresAt {
		e.metricInc(MetricApiKeyRejected)
		return nil, ErrApiKeyExpired
	}

	lock, err := e.security.Lockout(ctx, record.OwnerUserID)
	if err != nil {
		e.logger.Warn().Err(err).Str("user_id", record.OwnerUserID).Msg("lockout check failed")
	}
	if lock != nil {
		e.metricInc(MetricApiKeyRejected)
		return nil, ErrAccountLocked
	}

	if req.Signature != "" {
		ok := internal.VerifySignature(record.SecretKey, internal.SignatureFields{
			AppID:         req.AppID,
			APIKey:        req.APIKey,
			Timestamp:     req.Timestamp,
			Nonce:         req.Nonce,
			RequestMethod: req.RequestMethod,
			RequestPath:   req.RequestPath,
		}, req.Signature)
		if !ok {
			e.metricInc(MetricSignatureMismatch)
			e.metricInc(MetricApiKeyRejected)
			return nil, ErrInvalidSignature
		}
	} else if e.config.ApiKey.RequireSignature {
		e.metricInc(MetricSignatureMismatch)
		e.metricInc(MetricApiKeyRejected)
		return nil, ErrInvalidSignature
	}

	if record.DailyLimit > 0 {
		count, err := e.credentials.IncrDailyUsage(ctx, record.APIKey, now)
		if err != nil {
			return nil, err
		}
		if count > record.DailyLimit {
			e.metricInc(MetricQuotaExceeded)
			e.metricInc(MetricApiKeyRejected)
			return nil, ErrQuotaExceeded
		}
	}

	if len(record.AllowedInterfacePatterns) > 0 {
		if !matchesAnyPattern(req.RequestPath, record.AllowedInterfacePatterns) {
			e.metricInc(MetricApiKeyRejected)
			return nil, ErrInterfaceNotAllowed
		}
	}

	if err := e.credentials.RecordUsage(ctx, record.AppID, now); err != nil {
		e.logger.Warn().Err(err).Str("app_id", record.AppID).Msg("usage stat update failed")
	}

	e.metricInc(MetricApiKeyValidated)

	result := &AuthenticationResult{
		Success:     true,
		AuthType:    AuthTypeApiKey,
		UserID:      record.OwnerUserID,
		Permissions: record.Permissions,
		AppID:       record.AppID,
	}
	if record.ExpiresAt > 0 {
		result.ExpireAt = time.Unix(record.ExpiresAt, 0)
		result.RemainingSeconds = record.ExpiresAt - now.Unix()
	}

	return result, nil
}

// matchesAnyPattern reports whether path matches one of the allowed
// interface patterns. A pattern is an exact path, or a prefix followed
// by a single trailing "*".
func matchesAnyPattern(path string, patterns []string) bool {
	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		if strings.HasSuffix(pattern, "*") {
			if strings.HasPrefix(path, strings.TrimSuffix(pattern, "*")) {
				return true
			}
			continue
		}
		if path == pattern {
			return true
		}
	}
	return false
}

// CreateApiCredential provisions a new API-key credential. The returned
// value is the only place the secret key is ever exposed; subsequent
// reads return it masked or not at all.
func (e *Engine) CreateApiCredential(ctx context.Context, req CreateApiCredentialRequest) (*CreatedApiCredential, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if req.OwnerUserID == "" {
		return nil, errors.New("owner user id required")
	}

	appID, err := internal.NewAppID()
	if err != nil {
		return nil, err
	}
	apiKey, err := internal.NewAPIKey()
	if err != nil {
		return nil, err
	}
	secretKey, err := internal.NewSecretKey()
	if err != nil {
		return nil, err
	}

	dailyLimit := req.DailyLimit
	if dailyLimit <= 0 {
		dailyLimit = e.config.ApiKey.DefaultDailyLimit
	}
	ttl := req.TTL
	if ttl <= 0 {
		ttl = e.config.ApiKey.DefaultCredentialTTL
	}

	now := time.Now()
	var expiresAt int64
	if ttl > 0 {
		expiresAt = now.Add(ttl).Unix()
	}

	record := &stores.CredentialRecord{
		AppID:                    appID,
		APIKey:                   apiKey,
		SecretKey:                secretKey,
		OwnerUserID:              req.OwnerUserID,
		Permissions:              req.Permissions,
		AllowedInterfacePatterns: req.AllowedInterfacePatterns,
		DailyLimit:               dailyLimit,
		ExpiresAt:                expiresAt,
		CreatedAt:                now.Unix(),
		Active:                   true,
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	if err := e.credentials.Save(opCtx, record); err != nil {
		return nil, err
	}

	e.emitManagementEvent(ctx, "api_credential_created", req.OwnerUserID, appID, nil)

	created := &CreatedApiCredential{
		AppID:     appID,
		APIKey:    apiKey,
		SecretKey: secretKey,
	}
	if expiresAt > 0 {
		created.ExpiresAt = time.Unix(expiresAt, 0)
	}

	return created, nil
}

// EnableApiCredential re-activates a disabled credential.
func (e *Engine) EnableApiCredential(ctx context.Context, appID string) error {
	return e.setCredentialStatus(ctx, appID, true, "api_credential_enabled")
}

// DisableApiCredential deactivates a credential. Credentials are only
// ever soft-deleted; the record stays for listings and audits.
func (e *Engine) DisableApiCredential(ctx context.Context, appID string) error {
	return e.setCredentialStatus(ctx, appID, false, "api_credential_disabled")
}

func (e *Engine) setCredentialStatus(ctx context.Context, appID string, active bool, eventType string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if appID == "" {
		return errors.New("app id required")
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	if err := e.credentials.SetStatus(opCtx, appID, active); err != nil {
		if errors.Is(err, stores.ErrCredentialNotFound) {
			return ErrApiKeyNotFound
		}
		return err
	}

	e.emitManagementEvent(ctx, eventType, "", appID, nil)
	return nil
}

// ListApiCredentialsForUser returns the management view of every
// credential owned by userID. API keys are masked; secrets are absent.
func (e *Engine) ListApiCredentialsForUser(ctx context.Context, userID string) ([]ApiCredentialInfo, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if userID == "" {
		return nil, errors.New("user id required")
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	records, err := e.credentials.ListForUser(opCtx, userID)
	if err != nil {
		return nil, err
	}

	infos := make([]ApiCredentialInfo, 0, len(records))
	for _, record := range records {
		infos = append(infos, e.credentialInfo(opCtx, record))
	}

	return infos, nil
}

// GetApiCredential returns the masked management view of one credential.
func (e *Engine) GetApiCredential(ctx context.Context, appID string) (*ApiCredentialInfo, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if appID == "" {
		return nil, errors.New("app id required")
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	record, err := e.credentials.Get(opCtx, appID)
	if err != nil {
		if errors.Is(err, stores.ErrCredentialNotFound) {
			return nil, ErrApiKeyNotFound
		}
		return nil, err
	}

	info := e.credentialInfo(opCtx, record)
	return &info, nil
}

func (e *Engine) credentialInfo(ctx context.Context, record *stores.CredentialRecord) ApiCredentialInfo {
	info := ApiCredentialInfo{
		AppID:                    record.AppID,
		APIKey:                   internal.MaskKey(record.APIKey),
		OwnerUserID:              record.OwnerUserID,
		Permissions:              record.Permissions,
		AllowedInterfacePatterns: record.AllowedInterfacePatterns,
		DailyLimit:               record.DailyLimit,
		Active:                   record.Active,
		CreatedAt:                time.Unix(record.CreatedAt, 0),
	}
	if record.ExpiresAt > 0 {
		info.ExpiresAt = time.Unix(record.ExpiresAt, 0)
	}

	total, lastUsed, err := e.credentials.Usage(ctx, record.AppID)
	if err != nil {
		e.logger.Warn().Err(err).Str("app_id", record.AppID).Msg("usage stat read failed")
		return info
	}
	info.TotalCalls = total
	info.LastUsedAt = lastUsed

	return info
}
