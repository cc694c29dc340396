package admin

import (
	"context"
	"net/http"
	"strings"

	"github.com/jacksonlee411/mandi-console/internal/routing"
	"go.uber.org/zap"
)

type principalCtxKey struct{}

func principalFromContext(ctx context.Context) (principal, bool) {
	v, ok := ctx.Value(principalCtxKey{}).(principal)
	return v, ok
}

func isPublicPath(path string) bool {
	switch path {
	case "/health", "/healthz", "/admin/login", "/admin/logout":
		return true
	}
	return strings.HasPrefix(path, "/admin/static/")
}

func withSession(classifier *routing.Classifier, store sessionStore, principals principalStore, logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		rc := routing.RouteClassUI
		if classifier != nil {
			rc = classifier.Classify(r.URL.Path)
		}
		unauthenticated := func() {
			if rc == routing.RouteClassInternalAPI {
				routing.WriteError(w, r, rc, http.StatusUnauthorized, "unauthorized", "unauthorized")
				return
			}
			http.Redirect(w, r, "/admin/login", http.StatusFound)
		}

		sid, ok := readSID(r)
		if !ok {
			unauthenticated()
			return
		}

		sess, found, err := store.Lookup(r.Context(), sid)
		if err != nil {
			logger.Error("session lookup failed", zap.Error(err), zap.String("request_id", requestID(r)))
			routing.WriteError(w, r, rc, http.StatusInternalServerError, "session_error", "session error")
			return
		}
		if !found {
			clearSIDCookie(w)
			unauthenticated()
			return
		}

		p, ok, err := principals.GetByID(r.Context(), sess.UserID)
		if err != nil {
			logger.Error("principal lookup failed", zap.Error(err), zap.String("request_id", requestID(r)))
			routing.WriteError(w, r, rc, http.StatusInternalServerError, "principal_error", "principal error")
			return
		}
		if !ok {
			_ = store.Revoke(r.Context(), sid)
			clearSIDCookie(w)
			unauthenticated()
			return
		}

		r = r.WithContext(context.WithValue(r.Context(), principalCtxKey{}, p))
		next.ServeHTTP(w, r)
	})
}
