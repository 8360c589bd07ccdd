package authcore

import (
	"context"
	"time"

	"github.com/powertrading/authcore/internal/audit"
)

// AuthType labels which credential path produced a result.
type AuthType string

const (
	AuthTypeJWT    AuthType = "JWT_TOKEN"
	AuthTypeApiKey AuthType = "API_KEY"
	AuthTypeMixed  AuthType = "MIXED"
)

// AuthMode selects which credential path Authenticate runs. AuthModeAuto
// picks from the credentials present on the request.
type AuthMode string

const (
	AuthModeAuto   AuthMode = "auto"
	AuthModeJWT    AuthMode = "jwt"
	AuthModeApiKey AuthMode = "apikey"
	AuthModeMixed  AuthMode = "mixed"
)

// AuthenticateRequest carries every credential and request attribute the
// engine may consult. Unused fields stay zero.
type AuthenticateRequest struct {
	JWTToken string

	AppID     string
	APIKey    string
	Signature string
	Timestamp string
	Nonce     string

	RequestPath   string
	RequestMethod string
	ClientIP      string
	UserAgent     string

	AuthMode           AuthMode
	StrictMode         bool // mixed mode: both credentials must succeed
	CheckPermissions   bool
	RequiredPermission string
}

// Principal is the identity established by a successful authentication.
// It is produced per call and never persisted.
type Principal struct {
	UserID      string
	Username    string
	CompanyName string
	Roles       []string
	Permissions []string
	AppID       string
}

// AuthenticationResult is the structured outcome of Authenticate. It is
// always non-nil; Success=false carries an ErrorCode instead of an error.
type AuthenticationResult struct {
	Success          bool
	AuthType         AuthType
	UserID           string
	Username         string
	CompanyName      string
	Roles            []string
	Permissions      []string
	AppID            string
	ExpireAt         time.Time
	RemainingSeconds int64
	ErrorCode        string
	ErrorMessage     string
}

// Principal converts a successful result into its identity view.
func (r *AuthenticationResult) Principal() *Principal {
	if r == nil || !r.Success {
		return nil
	}
	return &Principal{
		UserID:      r.UserID,
		Username:    r.Username,
		CompanyName: r.CompanyName,
		Roles:       r.Roles,
		Permissions: r.Permissions,
		AppID:       r.AppID,
	}
}

// TokenGenerateRequest describes the identity to mint tokens for.
type TokenGenerateRequest struct {
	UserID      string
	Username    string
	CompanyName string
	Roles       []string
	Permissions []string
}

// TokenPair is the response of GenerateTokens and RefreshTokens.
type TokenPair struct {
	AccessToken     string
	RefreshToken    string
	TokenType       string // always "Bearer"
	ExpiresIn       int64  // access token lifetime in seconds
	ExpireAt        time.Time
	RefreshExpireAt time.Time
	Scope           []string
}

// ApiCredentialInfo is the management view of a credential. APIKey is
// masked and the secret is never present; the full secret appears only
// in the CreateApiCredential return value.
type ApiCredentialInfo struct {
	AppID                    string
	APIKey                   string // masked
	OwnerUserID              string
	Permissions              []string
	AllowedInterfacePatterns []string
	DailyLimit               int64
	Active                   bool
	ExpiresAt                time.Time // zero = never
	CreatedAt                time.Time
	LastUsedAt               time.Time // zero = never used
	TotalCalls               int64
}

// CreateApiCredentialRequest describes a credential to provision.
// Zero-value limit and TTL fall back to the ApiKeyConfig defaults.
type CreateApiCredentialRequest struct {
	OwnerUserID              string
	Permissions              []string
	AllowedInterfacePatterns []string
	DailyLimit               int64
	TTL                      time.Duration
}

// CreatedApiCredential is returned by CreateApiCredential. This is the
// only place the secret key is ever exposed.
type CreatedApiCredential struct {
	AppID     string
	APIKey    string
	SecretKey string
	ExpiresAt time.Time
}

// PermissionSource is the collaborator that owns permission definitions.
// Load returns the full permission set for a subject key; the engine
// caches what it returns. The sentinel "*" grants every permission.
type PermissionSource interface {
	Load(ctx context.Context, subjectKey string) ([]string, error)
}

// PermissionSourceFunc adapts a function to PermissionSource.
type PermissionSourceFunc func(ctx context.Context, subjectKey string) ([]string, error)

func (f PermissionSourceFunc) Load(ctx context.Context, subjectKey string) ([]string, error) {
	return f(ctx, subjectKey)
}

// AuditEvent is the record delivered to audit sinks.
type AuditEvent = audit.Event

// AuditSink receives audit events, at most once each.
type AuditSink = audit.Sink

// NoOpAuditSink discards audit events.
type NoOpAuditSink = audit.NoOpSink

// SuspiciousActivity is one entry of the per-subject activity log.
type SuspiciousActivity struct {
	ID        string
	Timestamp time.Time
	Activity  string
	ClientIP  string
	Detail    string
}

// LockoutInfo describes an active account lockout.
type LockoutInfo struct {
	UserID   string
	Reason   string
	ClientIP string
	LockedAt time.Time
	UnlockAt time.Time
}
