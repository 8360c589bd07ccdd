// Package internaldefs holds the shared metric name/help definitions
// used by the exporters.
package internaldefs

import (
	authcore "github.com/powertrading/authcore"
)

// CounterDef binds an engine counter to its exported name and help text.
type CounterDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine histogram to its exported name and help
// text.
type HistogramDef struct {
	ID   authcore.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: authcore.MetricAuthSuccess, Name: "authcore_auth_success_total", Help: "Successful authentication calls."},
	{ID: authcore.MetricAuthFailure, Name: "authcore_auth_failure_total", Help: "Failed authentication calls."},
	{ID: authcore.MetricJWTValidated, Name: "authcore_jwt_validated_total", Help: "Access tokens accepted."},
	{ID: authcore.MetricJWTRejected, Name: "authcore_jwt_rejected_total", Help: "Access tokens rejected."},
	{ID: authcore.MetricTokenRevokedHit, Name: "authcore_token_revoked_hit_total", Help: "Tokens rejected because their jti was denylisted."},
	{ID: authcore.MetricApiKeyValidated, Name: "authcore_api_key_validated_total", Help: "API-key validations accepted."},
	{ID: authcore.MetricApiKeyRejected, Name: "authcore_api_key_rejected_total", Help: "API-key validations rejected."},
	{ID: authcore.MetricSignatureMismatch, Name: "authcore_signature_mismatch_total", Help: "API-key requests with a bad or missing required signature."},
	{ID: authcore.MetricQuotaExceeded, Name: "authcore_quota_exceeded_total", Help: "API-key validations rejected by the daily quota."},
	{ID: authcore.MetricMixedMerged, Name: "authcore_mixed_merged_total", Help: "Mixed-mode authentications merged from both credentials."},
	{ID: authcore.MetricMixedFallback, Name: "authcore_mixed_fallback_total", Help: "Mixed-mode authentications served by the API key after a failed JWT."},
	{ID: authcore.MetricMixedPartialFailure, Name: "authcore_mixed_partial_failure_total", Help: "Mixed-mode authentications failed by the API key after a good JWT."},
	{ID: authcore.MetricTokensIssued, Name: "authcore_tokens_issued_total", Help: "Access/refresh pairs issued."},
	{ID: authcore.MetricTokensRefreshed, Name: "authcore_tokens_refreshed_total", Help: "Refresh rotations performed."},
	{ID: authcore.MetricTokensRevoked, Name: "authcore_tokens_revoked_total", Help: "Single-token revocations."},
	{ID: authcore.MetricMassRevocation, Name: "authcore_mass_revocation_total", Help: "Revoke-all operations that denylisted at least one token."},
	{ID: authcore.MetricAccountLocked, Name: "authcore_account_locked_total", Help: "Account lockouts written."},
	{ID: authcore.MetricIPBlacklistedHit, Name: "authcore_ip_blacklisted_hit_total", Help: "Requests rejected by the IP blacklist."},
	{ID: authcore.MetricPermissionCacheHit, Name: "authcore_permission_cache_hit_total", Help: "Permission lookups served from cache."},
	{ID: authcore.MetricPermissionCacheMiss, Name: "authcore_permission_cache_miss_total", Help: "Permission lookups loaded from the source."},
	{ID: authcore.MetricPermissionSweepRefresh, Name: "authcore_permission_sweep_refresh_total", Help: "Cache entries refreshed by the background sweep."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: authcore.MetricAuthLatency, Name: "authcore_auth_latency_seconds", Help: "Authenticate latency histogram."},
}

// HistogramBounds are the bucket upper bounds in seconds.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix mirrors HistogramBounds as metric-name-safe
// suffixes for backends without a bucket label.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw bucket slice to the fixed
// bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to the cumulative form
// Prometheus expects.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
