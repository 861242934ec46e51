package middleware

import (
	"net/http"
	"strings"
)

// Keys holds the configured API keys. Public keys may read; admin keys
// may also start and stop jobs. Empty sets disable the corresponding
// check, which keeps local use friction-free.
type Keys struct {
	Public []string
	Admin  []string
}

func presentedKey(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(h), "bearer ") {
		return strings.TrimSpace(h[len("bearer "):])
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

func contains(set []string, key string) bool {
	if key == "" {
		return false
	}
	for _, k := range set {
		if k == key {
			return true
		}
	}
	return false
}

// RequireAny admits requests presenting either a public or admin key.
func RequireAny(keys Keys) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(keys.Public) == 0 && len(keys.Admin) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := presentedKey(r)
			if contains(keys.Public, key) || contains(keys.Admin, key) {
				next.ServeHTTP(w, r)
				return
			}
			denyJSON(w, http.StatusUnauthorized, "unauthorized")
		})
	}
}

// RequireAdmin admits only requests presenting an admin key.
func RequireAdmin(keys Keys) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(keys.Admin) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if contains(keys.Admin, presentedKey(r)) {
				next.ServeHTTP(w, r)
				return
			}
			denyJSON(w, http.StatusForbidden, "forbidden")
		})
	}
}

func denyJSON(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
