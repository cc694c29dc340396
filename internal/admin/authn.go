package admin

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jacksonlee411/mandi-console/internal/routing"
	"go.uber.org/zap"
)

const msgInvalidCredentials = "Invalid credentials. Please try again."

type loginBody struct {
	Phone string
	Error string
}

func (h *handler) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "login", "Login", loginBody{})
}

func (h *handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, r, http.StatusBadRequest, "login", "Login", loginBody{Error: "bad request"})
		return
	}
	phone := strings.TrimSpace(r.FormValue("phone"))
	pass := r.FormValue("password")
	if phone == "" || pass == "" {
		h.render(w, r, http.StatusUnprocessableEntity, "login", "Login", loginBody{Phone: phone, Error: "phone/password required"})
		return
	}

	ident, err := h.idp.AuthenticatePassword(r.Context(), phone, pass)
	if err != nil {
		if errors.Is(err, errInvalidCredentials) {
			h.logger.Info("login rejected", zap.String("request_id", requestID(r)))
			h.render(w, r, http.StatusUnprocessableEntity, "login", "Login", loginBody{Phone: phone, Error: msgInvalidCredentials})
			return
		}
		h.logger.Error("login failed", zap.Error(err), zap.String("request_id", requestID(r)))
		routing.WriteError(w, r, routing.RouteClassAuthn, http.StatusInternalServerError, "idp_error", "idp error")
		return
	}

	expiresAt := time.Now().Add(h.cfg.SessionTTL)
	sid, err := h.sessions.Create(r.Context(), ident.UserID, expiresAt, r.RemoteAddr, r.UserAgent())
	if err != nil {
		h.logger.Error("session create failed", zap.Error(err), zap.String("request_id", requestID(r)))
		routing.WriteError(w, r, routing.RouteClassAuthn, http.StatusInternalServerError, "session_error", "session error")
		return
	}
	setSIDCookie(w, sid)
	h.logger.Info("login", zap.String("user_id", ident.UserID), zap.String("request_id", requestID(r)))

	p := principal{ID: ident.UserID, Identifier: ident.Identifier, Roles: ident.Roles}
	http.Redirect(w, r, h.landingPath(p), http.StatusFound)
}

func (h *handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sid, ok := readSID(r); ok {
		if err := h.sessions.Revoke(r.Context(), sid); err != nil {
			h.logger.Warn("session revoke failed", zap.Error(err), zap.String("request_id", requestID(r)))
		}
	}
	clearSIDCookie(w)
	http.Redirect(w, r, "/admin/login", http.StatusFound)
}
