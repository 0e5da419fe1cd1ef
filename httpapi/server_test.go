package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	challengeAuth "github.com/MrEthical07/challengeAuth"
	"github.com/MrEthical07/challengeAuth/identity/memstore"
	"github.com/MrEthical07/challengeAuth/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	srv   *httptest.Server
	store *memstore.Store
	eng   *challengeAuth.Engine
	reg   *prometheus.Registry
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := challengeAuth.DefaultConfig()
	cfg.Token.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	store := memstore.New()
	eng, err := challengeAuth.New().WithConfig(cfg).WithRedis(rdb).WithStore(store).Build()
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	opts.Registerer = reg
	srv := httptest.NewServer(New(eng, opts).Handler())
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, store: store, eng: eng, reg: reg}
}

func (s *testServer) post(t *testing.T, path, token string, body any) (int, map[string]any) {
	t.Helper()
	return s.do(t, http.MethodPost, path, token, body)
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (s *testServer) login(t *testing.T, username, pw string) (int, map[string]any) {
	t.Helper()
	status, ch := s.post(t, "/auth/initLogin", "", map[string]any{"username": username})
	require.Equal(t, http.StatusOK, status)

	kdf, err := password.New(password.Config{})
	require.NoError(t, err)
	hash, err := kdf.Derive(pw, ch["salt"].(string))
	require.NoError(t, err)
	processed, err := challengeAuth.EncryptChallenge(hash, ch["iv"].(string), ch["challenge"].(string))
	require.NoError(t, err)

	return s.post(t, "/auth/verifyChallenge", "", map[string]any{
		"sessionId":          ch["sessionId"],
		"processedChallenge": processed,
	})
}

func TestHandshakeOverHTTP(t *testing.T) {
	s := newTestServer(t, Options{})
	ctx := context.Background()

	status, body := s.post(t, "/auth/register", "", map[string]any{
		"name": "alice", "email": "a@x.com", "password": "pw1",
	})
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, "USER_CREATED", body["code"])

	status, body = s.post(t, "/auth/register", "", map[string]any{
		"name": "alice", "email": "b@x.com", "password": "pw1",
	})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "USERNAME_ALREADY_TAKEN", body["code"])

	status, body = s.login(t, "alice", "pw1")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "EMAIL_NOT_VERIFIED", body["code"])
	require.NotContains(t, body, "token")

	ident, err := s.store.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.NoError(t, s.store.MarkEmailVerified(ctx, ident.ID, time.Now()))

	status, body = s.login(t, "alice", "wrong")
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "WRONG_CHALLENGE-E", body["code"])

	status, body = s.login(t, "alice", "pw1")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "AUTHENTICATED", body["code"])
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	user, _ := body["user"].(map[string]any)
	require.Equal(t, "a@x.com", user["email"])
	require.NotContains(t, user, "PasswordHash")

	status, body = s.do(t, http.MethodGet, "/roles", token, nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "OK", body["code"])

	status, body = s.post(t, "/roles", token, map[string]any{"name": "admin"})
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "FORBIDDEN", body["code"])

	status, body = s.post(t, "/auth/removeMfa", token, nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "MFA_ALREADY_DEACTIVATED", body["code"])
}

func TestUnknownUserGetsFullChallenge(t *testing.T) {
	s := newTestServer(t, Options{})
	status, body := s.post(t, "/auth/initLogin", "", map[string]any{"username": "ghost"})
	require.Equal(t, http.StatusOK, status)
	for _, field := range []string{"sessionId", "iv", "challenge", "salt"} {
		require.NotEmpty(t, body[field], field)
	}
}

func TestValidationErrorsArePerField(t *testing.T) {
	s := newTestServer(t, Options{})
	status, body := s.post(t, "/auth/register", "", map[string]any{"name": "alice", "email": "nope"})
	require.Equal(t, http.StatusUnprocessableEntity, status)
	require.Equal(t, "VALIDATION_ERROR", body["code"])
	errs, _ := body["errors"].(map[string]any)
	require.Contains(t, errs, "email")
	require.Contains(t, errs, "password")
	require.NotContains(t, errs, "name")
}

func TestAdminEndpointsRequireToken(t *testing.T) {
	s := newTestServer(t, Options{})
	status, body := s.do(t, http.MethodGet, "/permissions", "", nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "UNAUTHORIZED", body["code"])
}

func TestRoleAdministration(t *testing.T) {
	s := newTestServer(t, Options{})
	ctx := context.Background()

	_, _ = s.post(t, "/auth/register", "", map[string]any{"name": "root", "email": "r@x.com", "password": "pw"})
	ident, err := s.store.FindByEmail(ctx, "r@x.com")
	require.NoError(t, err)
	require.NoError(t, s.store.MarkEmailVerified(ctx, ident.ID, time.Now()))
	for _, name := range []string{PermissionManageRoles, PermissionManagePermissions} {
		p, err := s.eng.CreatePermission(ctx, name)
		require.NoError(t, err)
		require.NoError(t, s.eng.AddPermissionToIdentity(ctx, ident.ID, p.ID))
	}

	_, body := s.login(t, "root", "pw")
	token := body["token"].(string)

	status, body := s.post(t, "/permissions", token, map[string]any{"name": "reports.read"})
	require.Equal(t, http.StatusCreated, status)
	perm := body["permission"].(map[string]any)

	status, body = s.post(t, "/roles", token, map[string]any{"name": "viewer", "permissions": []string{"reports.read"}})
	require.Equal(t, http.StatusCreated, status)
	role := body["role"].(map[string]any)
	roleID := int64(role["id"].(float64))

	status, _ = s.post(t, "/roles/addRoleToUser", token, map[string]any{"userId": ident.ID, "roleId": roleID})
	require.Equal(t, http.StatusOK, status)
	resolved, err := s.eng.Resolve(ctx, ident.ID)
	require.NoError(t, err)
	require.True(t, resolved.HasRole("viewer"))
	require.True(t, resolved.HasPermission("reports.read"))

	status, _ = s.post(t, "/roles/removePermissionFromRole", token, map[string]any{
		"roleId": roleID, "permissionId": int64(perm["id"].(float64)),
	})
	require.Equal(t, http.StatusOK, status)
	resolved, err = s.eng.Resolve(ctx, ident.ID)
	require.NoError(t, err)
	require.False(t, resolved.HasPermission("reports.read"))

	status, body = s.do(t, http.MethodPut, "/roles/abc", token, map[string]any{"name": "x"})
	require.Equal(t, http.StatusUnprocessableEntity, status)

	status, _ = s.do(t, http.MethodDelete, "/roles/"+strconv.FormatInt(roleID, 10), token, nil)
	require.Equal(t, http.StatusOK, status)
	status, body = s.do(t, http.MethodDelete, "/roles/"+strconv.FormatInt(roleID, 10), token, nil)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "NOT_FOUND", body["code"])
}

func TestRateLimitPerClient(t *testing.T) {
	s := newTestServer(t, Options{RateLimitRPS: 0.001, RateLimitBurst: 2})
	for i := 0; i < 2; i++ {
		status, _ := s.do(t, http.MethodGet, "/healthz", "", nil)
		require.Equal(t, http.StatusOK, status)
	}
	status, body := s.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusTooManyRequests, status)
	require.Equal(t, "TOO_MANY_ATTEMPTS", body["code"])
}

func TestRequestsAreCounted(t *testing.T) {
	s := newTestServer(t, Options{})
	_, _ = s.do(t, http.MethodGet, "/healthz", "", nil)

	families, err := s.reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range families {
		if mf.GetName() != "challengeauth_http_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "route" && l.GetValue() == "/healthz" {
					found = m.GetCounter().GetValue() == 1
				}
			}
		}
	}
	require.True(t, found, "expected /healthz request counted")
}
