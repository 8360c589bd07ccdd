package authcore

import (
	"errors"

	"github.com/powertrading/authcore/internal/stores"
	"github.com/powertrading/authcore/token"
)

// Sentinel errors returned by engine operations. Authenticate never
// returns these directly: it maps them onto AuthenticationResult codes.
var (
	ErrEngineNotReady       = errors.New("engine not ready")
	ErrMissingCredentials   = errors.New("missing credentials")
	ErrTokenInvalid         = errors.New("token invalid")
	ErrTokenRevoked         = errors.New("token revoked")
	ErrApiKeyNotFound       = errors.New("api key not found")
	ErrApiKeyDisabled       = errors.New("api key disabled")
	ErrApiKeyExpired        = errors.New("api key expired")
	ErrInvalidSignature     = errors.New("invalid signature")
	ErrQuotaExceeded        = errors.New("quota exceeded")
	ErrInterfaceNotAllowed  = errors.New("interface not allowed")
	ErrAccountLocked        = errors.New("account locked")
	ErrIPBlacklisted        = errors.New("ip blacklisted")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrMixedAuthPartialFail = errors.New("mixed auth partial failure")
	ErrCacheUnavailable     = errors.New("cache unavailable")
	ErrInvalidInput         = errors.New("invalid input")
)

// Result codes carried in AuthenticationResult.ErrorCode. Stable wire
// values consumed by gateway callers.
const (
	CodeMissingCredentials      = "MISSING_CREDENTIALS"
	CodeTokenInvalid            = "TOKEN_INVALID"
	CodeTokenRevoked            = "TOKEN_REVOKED"
	CodeApiKeyNotFound          = "API_KEY_NOT_FOUND"
	CodeApiKeyDisabled          = "API_KEY_DISABLED"
	CodeApiKeyExpired           = "API_KEY_EXPIRED"
	CodeInvalidSignature        = "INVALID_SIGNATURE"
	CodeQuotaExceeded           = "QUOTA_EXCEEDED"
	CodeInterfaceNotAllowed     = "INTERFACE_NOT_ALLOWED"
	CodeAccountLocked           = "ACCOUNT_LOCKED"
	CodeIPBlacklisted           = "IP_BLACKLISTED"
	CodePermissionDenied        = "PERMISSION_DENIED"
	CodeMixedAuthPartialFailure = "MIXED_AUTH_PARTIAL_FAILURE"
	CodeCacheUnavailable        = "CACHE_UNAVAILABLE"
	CodeInternalError           = "INTERNAL_ERROR"
)

// errorCode maps an engine error onto its wire code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrMissingCredentials):
		return CodeMissingCredentials
	case errors.Is(err, ErrTokenRevoked):
		return CodeTokenRevoked
	case errors.Is(err, ErrTokenInvalid), errors.Is(err, token.ErrTokenInvalid), errors.Is(err, token.ErrWrongTokenType):
		return CodeTokenInvalid
	case errors.Is(err, ErrApiKeyNotFound), errors.Is(err, stores.ErrCredentialNotFound):
		return CodeApiKeyNotFound
	case errors.Is(err, ErrApiKeyDisabled):
		return CodeApiKeyDisabled
	case errors.Is(err, ErrApiKeyExpired):
		return CodeApiKeyExpired
	case errors.Is(err, ErrInvalidSignature):
		return CodeInvalidSignature
	case errors.Is(err, ErrQuotaExceeded):
		return CodeQuotaExceeded
	case errors.Is(err, ErrInterfaceNotAllowed):
		return CodeInterfaceNotAllowed
	case errors.Is(err, ErrAccountLocked):
		return CodeAccountLocked
	case errors.Is(err, ErrIPBlacklisted):
		return CodeIPBlacklisted
	case errors.Is(err, ErrPermissionDenied):
		return CodePermissionDenied
	case errors.Is(err, ErrMixedAuthPartialFail):
		return CodeMixedAuthPartialFailure
	case isCacheUnavailable(err):
		return CodeCacheUnavailable
	default:
		return CodeInternalError
	}
}

func isCacheUnavailable(err error) bool {
	return errors.Is(err, ErrCacheUnavailable) ||
		errors.Is(err, stores.ErrRevocationUnavailable) ||
		errors.Is(err, stores.ErrCredentialUnavailable) ||
		errors.Is(err, stores.ErrSecurityUnavailable) ||
		errors.Is(err, stores.ErrPermissionUnavailable)
}
