package authcore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func newTestConfig() Config {
	cfg := defaultConfig()
	cfg.JWT.AccessTTL = 24 * time.Hour
	cfg.JWT.RefreshTTL = 7 * 24 * time.Hour
	cfg.JWT.Secret = []byte("0123456789abcdef0123456789abcdef")
	return cfg
}

func newTestEngine(t *testing.T, rdb *redis.Client, opts ...func(*Builder)) *Engine {
	t.Helper()

	b := New().WithConfig(newTestConfig()).WithRedis(rdb)
	for _, opt := range opts {
		opt(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine
}

func issueTestPair(t *testing.T, engine *Engine, userID string) *TokenPair {
	t.Helper()

	pair, err := engine.GenerateTokens(context.Background(), TokenGenerateRequest{
		UserID:      userID,
		Username:    userID,
		CompanyName: "Acme Power",
		Roles:       []string{"user"},
		Permissions: []string{"trade:read"},
	})
	if err != nil {
		t.Fatalf("GenerateTokens failed: %v", err)
	}
	return pair
}

func TestAuthenticateIssueRevokeScenario(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	engine := newTestEngine(t, rdb)
	ctx := context.Background()

	pair := issueTestPair(t, engine, "u1")

	result := engine.Authenticate(ctx, AuthenticateRequest{JWTToken: pair.AccessToken})
	if !result.Success {
		t.Fatalf("authenticate failed: %s %s", result.ErrorCode, result.ErrorMessage)
	}
	if result.AuthType != AuthTypeJWT {
		t.Fatalf("auth type = %q, want %q", result.AuthType, AuthTypeJWT)
	}
	if result.UserID != "u1" {
		t.Fatalf("user id = %q, want u1", result.UserID)
	}
	if len(result.Roles) != 1 || result.Roles[0] != "user" {
		t.Fatalf("roles = %v, want [user]", result.Roles)
	}
	if result.RemainingSeconds < 86395 || result.RemainingSeconds > 86400 {
		t.Fatalf("remaining = %d, want ~86400", result.RemainingSeconds)
	}

	if err := engine.RevokeToken(ctx, pair.AccessToken); err != nil {
		t.Fatalf("RevokeToken failed: %v", err)
	}

	result = engine.Authenticate(ctx, AuthenticateRequest{JWTToken: pair.AccessToken})
	if result.Success {
		t.Fatal("revoked token accepted")
	}
	if result.ErrorCode != CodeTokenRevoked {
		t.Fatalf("error code = %q, want %q", result.ErrorCode, CodeTokenRevoked)
	}
}

func TestAuthenticateMissingCredentials(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	engine := newTestEngine(t, rdb)

	result := engine.Authenticate(context.Background(), AuthenticateRequest{})
	if result.Success {
		t.Fatal("empty request authenticated")
	}
	if result.ErrorCode != CodeMissingCredentials {
		t.Fatalf("error code = %q, want %q", result.ErrorCode, CodeMissingCredentials)
	}
}

func TestAuthenticateRejectsGarbageToken(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	engine := newTestEngine(t, rdb)

	result := engine.Authenticate(context.Background(), AuthenticateRequest{JWTToken: "not.a.token"})
	if result.Success {
		t.Fatal("garbage token authenticated")
	}
	if result.ErrorCode != CodeTokenInvalid {
		t.Fatalf("error code = %q, want %q", result.ErrorCode, CodeTokenInvalid)
	}
}

func TestRevocationFailsClosedOnCacheOutage(t *testing.T) {
	mr, rdb := newTestRedis(t)

	engine := newTestEngine(t, rdb)
	ctx := context.Background()

	pair := issueTestPair(t, engine, "u1")

	// Healthy cache accepts the token.
	if result := engine.Authenticate(ctx, AuthenticateRequest{JWTToken: pair.AccessToken}); !result.Success {
		t.Fatalf("authenticate failed: %s", result.ErrorCode)
	}

	mr.Close()

	result := engine.Authenticate(ctx, AuthenticateRequest{JWTToken: pair.AccessToken})
	if result.Success {
		t.Fatal("token accepted while revocation store was unreachable")
	}
	if result.ErrorCode != CodeCacheUnavailable {
		t.Fatalf("error code = %q, want %q", result.ErrorCode, CodeCacheUnavailable)
	}
}

func TestMassRevocation(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	engine := newTestEngine(t, rdb)
	ctx := context.Background()

	first := issueTestPair(t, engine, "u1")
	second := issueTestPair(t, engine, "u1")
	other := issueTestPair(t, engine, "u2")

	n, err := engine.RevokeAllForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("RevokeAllForUser failed: %v", err)
	}
	// Two pairs, four tracked jtis.
	if n != 4 {
		t.Fatalf("revoked %d tokens, want 4", n)
	}

	for _, tok := range []string{first.AccessToken, second.AccessToken} {
		result := engine.Authenticate(ctx, AuthenticateRequest{JWTToken: tok})
		if result.Success {
			t.Fatal("token for u1 survived mass revocation")
		}
		if result.ErrorCode != CodeTokenRevoked {
			t.Fatalf("error code = %q, want %q", result.ErrorCode, CodeTokenRevoked)
		}
	}

	if result := engine.Authenticate(ctx, AuthenticateRequest{JWTToken: other.AccessToken}); !result.Success {
		t.Fatalf("unrelated user's token rejected: %s", result.ErrorCode)
	}
}

func TestAuthenticateBlacklistedIP(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	engine := newTestEngine(t, rdb)
	ctx := context.Background()

	pair := issueTestPair(t, engine, "u1")

	if err := engine.BlacklistIP(ctx, "10.0.0.9", "abuse", time.Hour); err != nil {
		t.Fatalf("BlacklistIP failed: %v", err)
	}

	result := engine.Authenticate(ctx, AuthenticateRequest{
		JWTToken: pair.AccessToken,
		ClientIP: "10.0.0.9",
	})
	if result.Success {
		t.Fatal("blacklisted IP authenticated")
	}
	if result.ErrorCode != CodeIPBlacklisted {
		t.Fatalf("error code = %q, want %q", result.ErrorCode, CodeIPBlacklisted)
	}

	// Other IPs are unaffected.
	if result := engine.Authenticate(ctx, AuthenticateRequest{JWTToken: pair.AccessToken, ClientIP: "10.0.0.10"}); !result.Success {
		t.Fatalf("clean IP rejected: %s", result.ErrorCode)
	}
}

func TestClientIPFallsBackToContext(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	engine := newTestEngine(t, rdb)
	ctx := WithClientIP(context.Background(), "10.0.0.9")

	if err := engine.BlacklistIP(ctx, "10.0.0.9", "abuse", time.Hour); err != nil {
		t.Fatalf("BlacklistIP failed: %v", err)
	}

	pair := issueTestPair(t, engine, "u1")

	result := engine.Authenticate(ctx, AuthenticateRequest{JWTToken: pair.AccessToken})
	if result.Success {
		t.Fatal("context client IP ignored")
	}
	if result.ErrorCode != CodeIPBlacklisted {
		t.Fatalf("error code = %q, want %q", result.ErrorCode, CodeIPBlacklisted)
	}
}
