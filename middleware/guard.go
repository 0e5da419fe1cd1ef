package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	challengeAuth "github.com/MrEthical07/challengeAuth"
	"github.com/MrEthical07/challengeAuth/permission"
)

// Guard rejects requests without a valid bearer token with 401 UNAUTHORIZED.
func Guard(engine *challengeAuth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				reject(w, challengeAuth.ErrUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				reject(w, challengeAuth.ErrUnauthorized)
				return
			}

			principal, err := engine.Authenticate(r.Context(), token)
			if err != nil {
				reject(w, err)
				return
			}

			ctx := challengeAuth.WithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission passes when the principal holds any permission in the
// comma-delimited list. Grants come from the principal resolved by Guard,
// which reads the permission cache.
func RequirePermission(permissions string) func(http.Handler) http.Handler {
	required := permission.ParseRequirement(permissions)
	return require(func(p *challengeAuth.Principal) bool {
		return len(required) == 0 || p.HasAnyPermission(required)
	})
}

// RequireRole passes when the principal holds any role in the
// comma-delimited list.
func RequireRole(roles string) func(http.Handler) http.Handler {
	required := permission.ParseRequirement(roles)
	return require(func(p *challengeAuth.Principal) bool {
		return len(required) == 0 || p.HasAnyRole(required)
	})
}

func require(allowed func(*challengeAuth.Principal) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := challengeAuth.PrincipalFromContext(r.Context())
			if !ok {
				reject(w, challengeAuth.ErrUnauthorized)
				return
			}
			if !allowed(principal) {
				reject(w, challengeAuth.ErrPermissionDenied)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

func reject(w http.ResponseWriter, err error) {
	code, status := challengeAuth.CodeFor(err)
	message := http.StatusText(status)
	if code == challengeAuth.CodeInternalServerError {
		message = "internal server error"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":    string(code),
		"message": message,
	})
}
