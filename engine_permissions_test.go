package authcore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingSource struct {
	mu    sync.Mutex
	sets  map[string][]string
	loads atomic.Int64
}

func newCountingSource(sets map[string][]string) *countingSource {
	return &countingSource{sets: sets}
}

func (s *countingSource) Load(_ context.Context, subjectKey string) ([]string, error) {
	s.loads.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets[subjectKey], nil
}

func (s *countingSource) set(subjectKey string, permissions []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets[subjectKey] = permissions
}

func TestPermissionReadThrough(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	source := newCountingSource(map[string][]string{
		"user:u1": {"trade:read", "trade:write"},
	})
	engine := newTestEngine(t, rdb, func(b *Builder) {
		b.WithPermissionSource(source)
	})
	ctx := context.Background()

	ok, err := engine.HasPermission(ctx, "user:u1", "trade:read")
	if err != nil {
		t.Fatalf("HasPermission failed: %v", err)
	}
	if !ok {
		t.Fatal("granted permission denied")
	}
	if source.loads.Load() != 1 {
		t.Fatalf("loads = %d, want 1", source.loads.Load())
	}

	// Second lookup is served from cache.
	if _, err := engine.HasPermission(ctx, "user:u1", "trade:write"); err != nil {
		t.Fatalf("HasPermission failed: %v", err)
	}
	if source.loads.Load() != 1 {
		t.Fatalf("loads after cached lookup = %d, want 1", source.loads.Load())
	}

	ok, err = engine.HasPermission(ctx, "user:u1", "admin:all")
	if err != nil {
		t.Fatalf("HasPermission failed: %v", err)
	}
	if ok {
		t.Fatal("ungranted permission allowed")
	}
}

func TestPermissionWildcard(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	source := newCountingSource(map[string][]string{
		"user:root": {PermissionWildcard},
	})
	engine := newTestEngine(t, rdb, func(b *Builder) {
		b.WithPermissionSource(source)
	})
	ctx := context.Background()

	for _, p := range []string{"trade:read", "admin:all", "anything"} {
		ok, err := engine.HasPermission(ctx, "user:root", p)
		if err != nil {
			t.Fatalf("HasPermission(%q) failed: %v", p, err)
		}
		if !ok {
			t.Fatalf("wildcard did not grant %q", p)
		}
	}
}

func TestHasAnyAndAllPermissions(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	source := newCountingSource(map[string][]string{
		"user:u1": {"a", "b"},
	})
	engine := newTestEngine(t, rdb, func(b *Builder) {
		b.WithPermissionSource(source)
	})
	ctx := context.Background()

	ok, err := engine.HasAnyPermission(ctx, "user:u1", "z", "b")
	if err != nil || !ok {
		t.Fatalf("HasAnyPermission = %v, %v; want true", ok, err)
	}

	ok, err = engine.HasAllPermissions(ctx, "user:u1", "a", "b")
	if err != nil || !ok {
		t.Fatalf("HasAllPermissions = %v, %v; want true", ok, err)
	}

	ok, err = engine.HasAllPermissions(ctx, "user:u1", "a", "z")
	if err != nil || ok {
		t.Fatalf("HasAllPermissions with missing perm = %v, %v; want false", ok, err)
	}
}

func TestInvalidatePermissionsForcesReload(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	source := newCountingSource(map[string][]string{
		"user:u1": {"trade:read"},
	})
	engine := newTestEngine(t, rdb, func(b *Builder) {
		b.WithPermissionSource(source)
	})
	ctx := context.Background()

	if ok, _ := engine.HasPermission(ctx, "user:u1", "trade:write"); ok {
		t.Fatal("unexpected grant")
	}

	source.set("user:u1", []string{"trade:read", "trade:write"})

	// Still cached.
	if ok, _ := engine.HasPermission(ctx, "user:u1", "trade:write"); ok {
		t.Fatal("cache returned fresh data without invalidation")
	}

	if err := engine.InvalidatePermissions(ctx, "user:u1"); err != nil {
		t.Fatalf("InvalidatePermissions failed: %v", err)
	}

	ok, err := engine.HasPermission(ctx, "user:u1", "trade:write")
	if err != nil {
		t.Fatalf("HasPermission failed: %v", err)
	}
	if !ok {
		t.Fatal("reload after invalidation missed new permission")
	}
}

func TestCachedEmptySetIsNotAMiss(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	source := newCountingSource(map[string][]string{
		"user:u1": nil,
	})
	engine := newTestEngine(t, rdb, func(b *Builder) {
		b.WithPermissionSource(source)
	})
	ctx := context.Background()

	if ok, _ := engine.HasPermission(ctx, "user:u1", "trade:read"); ok {
		t.Fatal("empty set granted a permission")
	}
	if ok, _ := engine.HasPermission(ctx, "user:u1", "trade:read"); ok {
		t.Fatal("empty set granted a permission")
	}
	if source.loads.Load() != 1 {
		t.Fatalf("loads = %d, want 1 (empty set should be cached)", source.loads.Load())
	}
}

func TestRequiredPermissionOnAuthenticate(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	engine := newTestEngine(t, rdb)
	ctx := context.Background()

	pair := issueTestPair(t, engine, "u1") // carries trade:read

	result := engine.Authenticate(ctx, AuthenticateRequest{
		JWTToken:           pair.AccessToken,
		CheckPermissions:   true,
		RequiredPermission: "trade:read",
	})
	if !result.Success {
		t.Fatalf("authenticate with granted permission failed: %s", result.ErrorCode)
	}

	result = engine.Authenticate(ctx, AuthenticateRequest{
		JWTToken:           pair.AccessToken,
		CheckPermissions:   true,
		RequiredPermission: "admin:all",
	})
	if result.Success {
		t.Fatal("missing required permission authenticated")
	}
	if result.ErrorCode != CodePermissionDenied {
		t.Fatalf("error code = %q, want %q", result.ErrorCode, CodePermissionDenied)
	}
}

func TestPermissionSweepRefreshesExpiringEntries(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	source := newCountingSource(map[string][]string{
		"user:u1": {"trade:read"},
	})
	engine := newTestEngine(t, rdb, func(b *Builder) {
		cfg := newTestConfig()
		cfg.Permission.CacheTTL = time.Hour
		cfg.Permission.SweepInterval = 20 * time.Millisecond
		cfg.Permission.RefreshThreshold = 30 * time.Minute
		b.WithConfig(cfg)
		b.WithPermissionSource(source)
	})
	ctx := context.Background()

	if _, err := engine.HasPermission(ctx, "user:u1", "trade:read"); err != nil {
		t.Fatalf("HasPermission failed: %v", err)
	}
	before := source.loads.Load()

	// Push the entry's remaining TTL below the refresh threshold.
	mr.FastForward(45 * time.Minute)

	deadline := time.Now().Add(2 * time.Second)
	for source.loads.Load() == before {
		if time.Now().After(deadline) {
			t.Fatal("sweep never refreshed the expiring entry")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// The refreshed entry carries a full TTL again.
	remaining, ok, err := engine.permCache.RemainingTTL(ctx, "user:u1")
	if err != nil || !ok {
		t.Fatalf("RemainingTTL = %v, %v, %v", remaining, ok, err)
	}
	if remaining < 30*time.Minute {
		t.Fatalf("remaining after refresh = %v, want close to 1h", remaining)
	}
}
