package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	challengeAuth "github.com/MrEthical07/challengeAuth"
	"github.com/MrEthical07/challengeAuth/identity"
	"github.com/MrEthical07/challengeAuth/identity/memstore"
	"github.com/MrEthical07/challengeAuth/jwt"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newGuardEngine(t *testing.T) (*challengeAuth.Engine, *memstore.Store) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := challengeAuth.DefaultConfig()
	cfg.Token.PrivateKey = testSecret
	store := memstore.New()
	engine, err := challengeAuth.New().WithConfig(cfg).WithRedis(rdb).WithStore(store).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return engine, store
}

func tokenFor(t *testing.T, id int64) string {
	t.Helper()
	m, err := jwt.NewManager(jwt.Config{PrivateKey: testSecret})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	token, _, err := m.CreateAccess(id, time.Hour)
	if err != nil {
		t.Fatalf("CreateAccess failed: %v", err)
	}
	return token
}

func decodeCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body["code"]
}

func TestGuardRejectsMissingOrBadToken(t *testing.T) {
	engine, _ := newGuardEngine(t)
	h := Guard(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	for _, header := range []string{"", "Basic abc", "Bearer ", "Bearer garbage"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, rr.Code)
		}
		if code := decodeCode(t, rr); code != string(challengeAuth.CodeUnauthorized) {
			t.Fatalf("header %q: expected UNAUTHORIZED, got %q", header, code)
		}
	}
}

func TestGuardStoresPrincipal(t *testing.T) {
	engine, store := newGuardEngine(t)
	ident := &identity.Identity{Name: "alice", Email: "a@x.com"}
	if err := store.Create(context.Background(), ident); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	var got *challengeAuth.Principal
	h := Guard(engine)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = challengeAuth.PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, ident.ID))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if got == nil || got.IdentityID != ident.ID {
		t.Fatalf("expected principal %d, got %+v", ident.ID, got)
	}
}

func TestRequirePermissionAndRole(t *testing.T) {
	engine, store := newGuardEngine(t)
	ctx := context.Background()
	ident := &identity.Identity{Name: "alice", Email: "a@x.com"}
	if err := store.Create(ctx, ident); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := engine.CreatePermission(ctx, "manage-roles"); err != nil {
		t.Fatalf("CreatePermission failed: %v", err)
	}
	role, err := engine.CreateRole(ctx, "admin", []string{"manage-roles"})
	if err != nil {
		t.Fatalf("CreateRole failed: %v", err)
	}
	if err := engine.AddRoleToIdentity(ctx, ident.ID, role.ID); err != nil {
		t.Fatalf("AddRoleToIdentity failed: %v", err)
	}

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	cases := []struct {
		name  string
		guard func(http.Handler) http.Handler
		want  int
	}{
		{"any permission held", RequirePermission("manage-permissions, manage-roles"), http.StatusOK},
		{"permission missing", RequirePermission("manage-permissions"), http.StatusForbidden},
		{"role held", RequireRole("owner,admin"), http.StatusOK},
		{"role missing", RequireRole("owner"), http.StatusForbidden},
	}
	token := tokenFor(t, ident.ID)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			rr := httptest.NewRecorder()
			Guard(engine)(tc.guard(ok)).ServeHTTP(rr, req)
			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rr.Code)
			}
		})
	}
}

func TestRequirePermissionWithoutGuard(t *testing.T) {
	h := RequirePermission("x")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}
