package authcore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/powertrading/authcore/internal/stores"
)

// RecordLoginFailure counts one authentication failure for the account
// and, when configured, its client IP. Crossing the account threshold
// locks the account and revokes every live token for it; crossing the
// IP threshold blacklists the IP. It reports whether the account became
// locked by this call.
func (e *Engine) RecordLoginFailure(ctx context.Context, userID, clientIP, reason string) (locked bool, err error) {
	if e == nil {
		return false, ErrEngineNotReady
	}
	if userID == "" {
		return false, errors.New("user id required")
	}
	if clientIP == "" {
		clientIP = clientIPFromContext(ctx)
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	count, err := e.security.IncrAccountFailures(opCtx, userID, e.config.Security.FailureWindow)
	if err != nil {
		return false, err
	}

	if e.config.Security.TrackIPFailures && clientIP != "" {
		ipCount, ipErr := e.security.IncrIPFailures(opCtx, clientIP, e.config.Security.FailureWindow)
		if ipErr != nil {
			e.logger.Warn().Err(ipErr).Str("client_ip", clientIP).Msg("ip failure count failed")
		} else if e.config.Security.MaxIPFailures > 0 && ipCount >= int64(e.config.Security.MaxIPFailures) {
			if blErr := e.security.BlacklistIP(opCtx, clientIP, "repeated authentication failures", e.config.Security.IPBlacklistTTL); blErr != nil {
				e.logger.Warn().Err(blErr).Str("client_ip", clientIP).Msg("ip blacklist write failed")
			}
		}
	}

	if count < int64(e.config.Security.MaxLoginFailures) {
		return false, nil
	}

	if err := e.lockAccount(opCtx, userID, clientIP, reason); err != nil {
		return false, err
	}

	e.recordActivity(opCtx, userID, "account_locked", clientIP,
		"threshold of "+strconv.Itoa(e.config.Security.MaxLoginFailures)+" failures reached")
	e.emitManagementEvent(ctx, "account_locked", userID, "", map[string]string{
		"reason": reason,
	})

	return true, nil
}

// ClearLoginFailures resets the account failure counter, typically after
// a successful login.
func (e *Engine) ClearLoginFailures(ctx context.Context, userID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if userID == "" {
		return errors.New("user id required")
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	return e.security.ClearAccountFailures(opCtx, userID)
}

// IsAccountLocked reports whether the account has an active lockout.
func (e *Engine) IsAccountLocked(ctx context.Context, userID string) (bool, error) {
	info, err := e.AccountLockout(ctx, userID)
	if err != nil {
		return false, err
	}
	return info != nil, nil
}

// AccountLockout returns the active lockout, or nil when unlocked.
func (e *Engine) AccountLockout(ctx context.Context, userID string) (*LockoutInfo, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if userID == "" {
		return nil, errors.New("user id required")
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	record, err := e.security.Lockout(opCtx, userID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, nil
	}

	return &LockoutInfo{
		UserID:   userID,
		Reason:   record.Reason,
		ClientIP: record.ClientIP,
		LockedAt: time.Unix(record.LockedAt, 0),
		UnlockAt: time.Unix(record.UnlockAt, 0),
	}, nil
}

// LockAccount locks an account by operator action, revoking its live
// tokens when RevokeTokensOnLock is set.
func (e *Engine) LockAccount(ctx context.Context, userID, reason string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if userID == "" {
		return errors.New("user id required")
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	if err := e.lockAccount(opCtx, userID, clientIPFromContext(ctx), reason); err != nil {
		return err
	}

	e.emitManagementEvent(ctx, "account_locked", userID, "", map[string]string{
		"reason": reason,
	})
	return nil
}

func (e *Engine) lockAccount(ctx context.Context, userID, clientIP, reason string) error {
	now := time.Now()
	record := &stores.LockoutRecord{
		Reason:   reason,
		ClientIP: clientIP,
		LockedAt: now.Unix(),
		UnlockAt: now.Add(e.config.Security.LockoutDuration).Unix(),
	}

	if err := e.security.Lock(ctx, userID, record, e.config.Security.LockoutDuration); err != nil {
		return err
	}

	e.metricInc(MetricAccountLocked)

	if e.config.Security.RevokeTokensOnLock {
		if _, err := e.revocations.RevokeAllForSubject(ctx, userID, e.codec.RefreshTTL()); err != nil {
			e.logger.Warn().Err(err).Str("user_id", userID).Msg("token revocation on lock failed")
		} else {
			e.metricInc(MetricMassRevocation)
		}
	}

	return nil
}

// UnlockAccount removes the lockout and clears the failure counter.
func (e *Engine) UnlockAccount(ctx context.Context, userID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if userID == "" {
		return errors.New("user id required")
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	if err := e.security.Unlock(opCtx, userID); err != nil {
		return err
	}
	if err := e.security.ClearAccountFailures(opCtx, userID); err != nil {
		return err
	}

	e.emitManagementEvent(ctx, "account_unlocked", userID, "", nil)
	return nil
}

// BlacklistIP denies an IP. A zero ttl keeps the entry until removal.
func (e *Engine) BlacklistIP(ctx context.Context, ip, reason string, ttl time.Duration) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if ip == "" {
		return errors.New("ip required")
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	if err := e.security.BlacklistIP(opCtx, ip, reason, ttl); err != nil {
		return err
	}

	e.emitManagementEvent(ctx, "ip_blacklisted", "", "", map[string]string{
		"client_ip": ip,
		"reason":    reason,
	})
	return nil
}

// UnblacklistIP removes an IP from the deny list.
func (e *Engine) UnblacklistIP(ctx context.Context, ip string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if ip == "" {
		return errors.New("ip required")
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	if err := e.security.UnblacklistIP(opCtx, ip); err != nil {
		return err
	}

	e.emitManagementEvent(ctx, "ip_unblacklisted", "", "", map[string]string{
		"client_ip": ip,
	})
	return nil
}

// IsIPBlacklisted reports whether ip is currently denied.
func (e *Engine) IsIPBlacklisted(ctx context.Context, ip string) (bool, error) {
	if e == nil {
		return false, ErrEngineNotReady
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	return e.security.IsIPBlacklisted(opCtx, ip)
}

// RecordSuspiciousActivity appends an entry to the subject's capped
// activity log. The log is append-only evidence and never gates
// authentication.
func (e *Engine) RecordSuspiciousActivity(ctx context.Context, subject, activity, detail string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	if subject == "" || activity == "" {
		return errors.New("subject and activity required")
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	return e.recordActivity(opCtx, subject, activity, clientIPFromContext(ctx), detail)
}

func (e *Engine) recordActivity(ctx context.Context, subject, activity, clientIP, detail string) error {
	err := e.security.RecordSuspiciousActivity(ctx, subject, stores.SuspiciousActivity{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Activity:  activity,
		ClientIP:  clientIP,
		Detail:    detail,
	})
	if err != nil {
		e.logger.Warn().Err(err).Str("subject", subject).Msg("suspicious activity write failed")
	}
	return err
}

// SuspiciousActivities returns up to limit entries for the subject,
// newest first.
func (e *Engine) SuspiciousActivities(ctx context.Context, subject string, limit int) ([]SuspiciousActivity, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if subject == "" {
		return nil, errors.New("subject required")
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	entries, err := e.security.SuspiciousActivities(opCtx, subject, limit)
	if err != nil {
		return nil, err
	}

	out := make([]SuspiciousActivity, 0, len(entries))
	for _, entry := range entries {
		out = append(out, SuspiciousActivity{
			ID:        entry.ID,
			Timestamp: entry.Timestamp,
			Activity:  entry.Activity,
			ClientIP:  entry.ClientIP,
			Detail:    entry.Detail,
		})
	}

	return out, nil
}
