package challengeAuth

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/challengeAuth/identity/memstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestAuditEventsFollowLogin(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := DefaultConfig()
	cfg.Token.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Audit.DropIfFull = false

	var buf bytes.Buffer
	store := memstore.New()
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithStore(store).
		WithAuditSink(NewAuditJSONSink(&buf)).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	ctx := WithClientIP(context.Background(), "10.0.0.7")
	ident, err := engine.Register(ctx, "alice", "a@x.com", "pw1")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := store.MarkEmailVerified(ctx, ident.ID, time.Now()); err != nil {
		t.Fatalf("MarkEmailVerified failed: %v", err)
	}

	for _, pw := range []string{"wrong", "pw1"} {
		challenge, err := engine.InitLogin(ctx, "alice")
		if err != nil {
			t.Fatalf("InitLogin failed: %v", err)
		}
		_, _ = engine.VerifyChallenge(ctx, challenge.SessionID, answer(t, challenge, pw), false)
	}
	engine.Close()

	var events []AuditEvent
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var ev AuditEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		events = append(events, ev)
	}

	want := []struct {
		typ     string
		success bool
	}{
		{EventRegistration, true},
		{EventLoginFailure, false},
		{EventLoginSuccess, true},
	}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %+v", len(want), events)
	}
	for i, w := range want {
		if events[i].Type != w.typ || events[i].Success != w.success {
			t.Fatalf("event %d: expected %s/%v, got %+v", i, w.typ, w.success, events[i])
		}
		if events[i].IdentityID != ident.ID || events[i].IP != "10.0.0.7" {
			t.Fatalf("event %d: missing identity or ip: %+v", i, events[i])
		}
	}
}
