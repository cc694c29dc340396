package admin

import (
	"crypto/subtle"
	"net/http"
)

// withBasicAuth puts HTTP basic auth in front of everything but health
// checks. It is a no-op unless both user and pass are set.
func withBasicAuth(user string, pass string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health", "/healthz":
			next.ServeHTTP(w, r)
			return
		default:
		}

		if user == "" || pass == "" {
			next.ServeHTTP(w, r)
			return
		}

		gotUser, gotPass, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(gotUser), []byte(user)) != 1 ||
			subtle.ConstantTimeCompare([]byte(gotPass), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="console"`)
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("unauthorized\n"))
			return
		}

		next.ServeHTTP(w, r)
	})
}
