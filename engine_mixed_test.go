package authcore

import (
	"context"
	"testing"
)

func TestMixedBothValidMergesResults(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	engine := newTestEngine(t, rdb)
	ctx := context.Background()

	pair := issueTestPair(t, engine, "u1")
	created := createTestCredential(t, engine, CreateApiCredentialRequest{
		OwnerUserID: "u1",
		Permissions: []string{"quote:read", "trade:read"},
	})

	result := engine.Authenticate(ctx, AuthenticateRequest{
		JWTToken: pair.AccessToken,
		AppID:    created.AppID,
		APIKey:   created.APIKey,
	})
	if !result.Success {
		t.Fatalf("mixed authenticate failed: %s %s", result.ErrorCode, result.ErrorMessage)
	}
	if result.AuthType != AuthTypeMixed {
		t.Fatalf("auth type = %q, want %q", result.AuthType, AuthTypeMixed)
	}
	if result.UserID != "u1" || result.Username != "u1" {
		t.Fatalf("identity = %q/%q, want from token", result.UserID, result.Username)
	}
	if result.AppID != created.AppID {
		t.Fatalf("app id = %q, want %q", result.AppID, created.AppID)
	}

	// Union of token permissions (trade:read) and credential permissions.
	wantPerms := map[string]bool{"trade:read": false, "quote:read": false}
	for _, p := range result.Permissions {
		if _, ok := wantPerms[p]; ok {
			wantPerms[p] = true
		}
	}
	for p, seen := range wantPerms {
		if !seen {
			t.Fatalf("merged permissions missing %q: %v", p, result.Permissions)
		}
	}
	if len(result.Permissions) != 2 {
		t.Fatalf("merged permissions = %v, want deduplicated union of 2", result.Permissions)
	}

	// Credential never expires, so the token bounds the session.
	if result.RemainingSeconds < 86395 || result.RemainingSeconds > 86400 {
		t.Fatalf("remaining = %d, want token-bounded ~86400", result.RemainingSeconds)
	}
}

func TestMixedJWTFailureFallsBackToApiKey(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	engine := newTestEngine(t, rdb, func(b *Builder) {
		b.WithMetricsEnabled(true)
	})
	ctx := context.Background()

	created := createTestCredential(t, engine, CreateApiCredentialRequest{OwnerUserID: "u1"})

	result := engine.Authenticate(ctx, AuthenticateRequest{
		JWTToken: "not.a.token",
		AppID:    created.AppID,
		APIKey:   created.APIKey,
	})
	if !result.Success {
		t.Fatalf("fallback failed: %s %s", result.ErrorCode, result.ErrorMessage)
	}
	if result.AuthType != AuthTypeApiKey {
		t.Fatalf("auth type = %q, want %q after JWT failure", result.AuthType, AuthTypeApiKey)
	}

	snap := engine.MetricsSnapshot()
	if got := snap.Counters[MetricMixedFallback]; got != 1 {
		t.Fatalf("mixed fallback = %d, want 1", got)
	}
	if got := snap.Counters[MetricMixedPartialFailure]; got != 0 {
		t.Fatalf("mixed partial failure = %d, want 0", got)
	}
}

func TestMixedJWTOnlySucceedsWithoutApiKey(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	engine := newTestEngine(t, rdb)
	ctx := context.Background()

	pair := issueTestPair(t, engine, "u1")

	result := engine.Authenticate(ctx, AuthenticateRequest{
		JWTToken: pair.AccessToken,
		AuthMode: AuthModeMixed,
	})
	if !result.Success {
		t.Fatalf("jwt-only mixed authenticate failed: %s %s", result.ErrorCode, result.ErrorMessage)
	}
	if result.AuthType != AuthTypeJWT {
		t.Fatalf("auth type = %q, want %q", result.AuthType, AuthTypeJWT)
	}
	if result.UserID != "u1" {
		t.Fatalf("user id = %q, want u1", result.UserID)
	}
}

func TestMixedApiKeyFailureAfterJWTSuccessFailsOverall(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	engine := newTestEngine(t, rdb, func(b *Builder) {
		b.WithMetricsEnabled(true)
	})
	ctx := context.Background()

	pair := issueTestPair(t, engine, "u1")
	created := createTestCredential(t, engine, CreateApiCredentialRequest{OwnerUserID: "u1"})
	if err := engine.DisableApiCredential(ctx, created.AppID); err != nil {
		t.Fatalf("DisableApiCredential failed: %v", err)
	}

	result := engine.Authenticate(ctx, AuthenticateRequest{
		JWTToken: pair.AccessToken,
		AppID:    created.AppID,
		APIKey:   created.APIKey,
	})
	if result.Success {
		t.Fatal("valid JWT masked a failed API key")
	}
	if result.ErrorCode != CodeMixedAuthPartialFailure {
		t.Fatalf("error code = %q, want %q", result.ErrorCode, CodeMixedAuthPartialFailure)
	}
	if result.AuthType != AuthTypeMixed {
		t.Fatalf("auth type = %q, want %q", result.AuthType, AuthTypeMixed)
	}

	snap := engine.MetricsSnapshot()
	if got := snap.Counters[MetricMixedPartialFailure]; got != 1 {
		t.Fatalf("mixed partial failure = %d, want 1", got)
	}
	if got := snap.Counters[MetricMixedFallback]; got != 0 {
		t.Fatalf("mixed fallback = %d, want 0", got)
	}
}

func TestStrictModeRequiresBothCredentials(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	engine := newTestEngine(t, rdb)
	ctx := context.Background()

	pair := issueTestPair(t, engine, "u1")
	created := createTestCredential(t, engine, CreateApiCredentialRequest{OwnerUserID: "u1"})

	// Bad JWT plus a good API key must not fall back.
	result := engine.Authenticate(ctx, AuthenticateRequest{
		JWTToken:   "not.a.token",
		AppID:      created.AppID,
		APIKey:     created.APIKey,
		AuthMode:   AuthModeMixed,
		StrictMode: true,
	})
	if result.Success {
		t.Fatal("strict mode fell back to the API key")
	}
	if result.ErrorCode != CodeTokenInvalid {
		t.Fatalf("error code = %q, want %q", result.ErrorCode, CodeTokenInvalid)
	}

	// A good JWT alone is not enough either.
	result = engine.Authenticate(ctx, AuthenticateRequest{
		JWTToken:   pair.AccessToken,
		AuthMode:   AuthModeMixed,
		StrictMode: true,
	})
	if result.Success {
		t.Fatal("strict mode accepted a lone JWT")
	}
	if result.ErrorCode != CodeMissingCredentials {
		t.Fatalf("error code = %q, want %q", result.ErrorCode, CodeMissingCredentials)
	}

	// Both valid still merges.
	result = engine.Authenticate(ctx, AuthenticateRequest{
		JWTToken:   pair.AccessToken,
		AppID:      created.AppID,
		APIKey:     created.APIKey,
		StrictMode: true,
	})
	if !result.Success {
		t.Fatalf("strict mixed authenticate failed: %s %s", result.ErrorCode, result.ErrorMessage)
	}
	if result.AuthType != AuthTypeMixed {
		t.Fatalf("auth type = %q, want %q", result.AuthType, AuthTypeMixed)
	}
}

func TestMixedBothInvalidFails(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	engine := newTestEngine(t, rdb)

	result := engine.Authenticate(context.Background(), AuthenticateRequest{
		JWTToken: "not.a.token",
		AppID:    "app_missing",
	})
	if result.Success {
		t.Fatal("two bad credentials authenticated")
	}
	if result.ErrorCode != CodeApiKeyNotFound {
		t.Fatalf("error code = %q, want %q", result.ErrorCode, CodeApiKeyNotFound)
	}
}
