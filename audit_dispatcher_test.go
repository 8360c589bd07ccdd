package authcore

import (
	"context"
	"sync"
	"testing"
	"time"
)

type collectingSink struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (s *collectingSink) Emit(_ context.Context, event AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *collectingSink) snapshot() []AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AuditEvent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *collectingSink) waitFor(t *testing.T, n int) []AuditEvent {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for {
		events := s.snapshot()
		if len(events) >= n {
			return events
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d audit events, got %d", n, len(events))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestAuditEventPerOutcome(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	sink := &collectingSink{}
	engine := newTestEngine(t, rdb, func(b *Builder) {
		cfg := newTestConfig()
		cfg.Audit.Enabled = true
		b.WithConfig(cfg)
		b.WithAuditSink(sink)
	})
	ctx := context.Background()

	pair := issueTestPair(t, engine, "u1")

	engine.Authenticate(ctx, AuthenticateRequest{
		JWTToken:  pair.AccessToken,
		ClientIP:  "10.0.0.5",
		UserAgent: "trader-cli/1.0",
	})
	engine.Authenticate(ctx, AuthenticateRequest{JWTToken: "not.a.token"})

	// tokens_issued + two authenticate outcomes.
	events := sink.waitFor(t, 3)

	var success, failure *AuditEvent
	for i := range events {
		if events[i].EventType != "authenticate" {
			continue
		}
		if events[i].Success {
			success = &events[i]
		} else {
			failure = &events[i]
		}
	}

	if success == nil || failure == nil {
		t.Fatalf("missing authenticate events: %+v", events)
	}
	if success.UserID != "u1" || success.ClientIP != "10.0.0.5" || success.UserAgent != "trader-cli/1.0" {
		t.Fatalf("success event = %+v", success)
	}
	if failure.ErrorCode != CodeTokenInvalid {
		t.Fatalf("failure event code = %q, want %q", failure.ErrorCode, CodeTokenInvalid)
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	block := make(chan struct{})
	slow := &blockingSink{release: block}

	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, slow)

	ctx := context.Background()
	// First event occupies the worker, second fills the buffer, the rest drop.
	for i := 0; i < 10; i++ {
		d.Emit(ctx, AuditEvent{EventType: "authenticate"})
	}

	deadline := time.Now().Add(2 * time.Second)
	for d.Dropped() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no events dropped despite full buffer")
		}
		time.Sleep(5 * time.Millisecond)
	}

	close(block)
	d.Close()
}

type blockingSink struct {
	release chan struct{}
	once    sync.Once
}

func (s *blockingSink) Emit(context.Context, AuditEvent) {
	s.once.Do(func() { <-s.release })
}

func TestDispatcherDrainsOnClose(t *testing.T) {
	sink := &collectingSink{}
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 64, DropIfFull: true}, sink)

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		d.Emit(ctx, AuditEvent{EventType: "authenticate"})
	}

	d.Close()

	if got := len(sink.snapshot()); got != 20 {
		t.Fatalf("delivered %d events after close, want 20", got)
	}
}

func TestDisabledAuditIsNil(t *testing.T) {
	if d := newAuditDispatcher(AuditConfig{Enabled: false}, nil); d != nil {
		t.Fatal("disabled audit produced a dispatcher")
	}

	// Nil dispatcher methods are safe.
	var d *auditDispatcher
	d.Emit(context.Background(), AuditEvent{})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher reported drops")
	}
}
