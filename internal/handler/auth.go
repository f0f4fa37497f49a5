package handler

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"log/slog"
	"net/http"
	"time"

	"github.com/kpcai/examfront/internal/api"
	"github.com/kpcai/examfront/internal/handler/views"
	"github.com/kpcai/examfront/internal/model"
)

const (
	accessCookieName  = "access_token"
	refreshCookieName = "refresh_token"
	csrfCookieName    = "csrf_token"

	accessTokenTTL  = 15 * time.Minute
	refreshTokenTTL = 7 * 24 * time.Hour
)

func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func (h *Handler) cookiePath() string {
	if h.config.BasePath != "" {
		return h.config.BasePath + "/"
	}
	return "/"
}

func (h *Handler) setCSRFCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     h.cookiePath(),
		HttpOnly: false,
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) csrfMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "GET" || r.Method == "HEAD" {
			token, err := generateCSRFToken()
			if err != nil {
				slog.Error("failed to generate CSRF token", "error", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			h.setCSRFCookie(w, token)
			ctx := model.ContextWithCSRFToken(r.Context(), token)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		cookie, err := r.Cookie(csrfCookieName)
		if err != nil || cookie.Value == "" {
			slog.Warn("CSRF cookie missing")
			http.Error(w, "csrf token missing", http.StatusForbidden)
			return
		}

		formToken := r.FormValue("csrf_token")
		if formToken == "" {
			slog.Warn("CSRF form token missing")
			http.Error(w, "csrf token missing", http.StatusForbidden)
			return
		}

		if len(formToken) != len(cookie.Value) || subtle.ConstantTimeCompare([]byte(formToken), []byte(cookie.Value)) != 1 {
			slog.Warn("CSRF token mismatch")
			http.Error(w, "invalid csrf token", http.StatusForbidden)
			return
		}

		token, err := generateCSRFToken()
		if err != nil {
			slog.Error("failed to generate CSRF token", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		h.setCSRFCookie(w, token)

		ctx := model.ContextWithCSRFToken(r.Context(), token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) setAuthCookies(w http.ResponseWriter, pair *api.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessCookieName,
		Value:    pair.AccessToken,
		Path:     h.cookiePath(),
		MaxAge:   int(accessTokenTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    pair.RefreshToken,
		Path:     h.cookiePath(),
		MaxAge:   int(refreshTokenTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearAuthCookies(w http.ResponseWriter) {
	for _, name := range []string{accessCookieName, refreshCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     h.cookiePath(),
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   h.config.SecureCookies,
		})
	}
}

func (h *Handler) token(r *http.Request) string {
	cookie, err := r.Cookie(accessCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// requireAuth resolves the access token against the backend on every request.
// Any authentication failure tears the local state down completely: both
// cookies cleared, the exam session dropped, and the user sent to the login
// page. There is no anonymous fallback.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := h.token(r)
		if token == "" {
			h.teardownAuth(w, r, "")
			return
		}

		ctx := api.ContextWithToken(r.Context(), token)
		user, err := h.client.Me(ctx)
		if err != nil {
			slog.Warn("auth check failed", "error", err)
			h.teardownAuth(w, r, token)
			return
		}

		ctx = model.ContextWithUser(ctx, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// unauthorized tears down auth state when err is a backend 401 and reports
// whether it did. Inline write paths call this so an expired access token
// sends the user to login instead of a retry-forever error message.
func (h *Handler) unauthorized(w http.ResponseWriter, r *http.Request, err error) bool {
	if !api.IsUnauthorized(err) {
		return false
	}
	slog.Warn("access token rejected mid-request")
	h.teardownAuth(w, r, h.token(r))
	return true
}

func (h *Handler) teardownAuth(w http.ResponseWriter, r *http.Request, token string) {
	if token != "" {
		h.sessions.Drop(token)
	}
	h.clearAuthCookies(w)
	loginPath := h.path("/login")
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", loginPath)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	http.Redirect(w, r, loginPath, http.StatusSeeOther)
}

// requireRole checks the authenticated user has one of the allowed roles.
// Others go back to the home page with a notice explaining the refusal.
func requireRole(allowed ...model.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := model.UserFromContext(r.Context())
			if user == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			for _, role := range allowed {
				if user.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			slog.Warn("role denied", "user_id", user.ID, "role", user.Role, "path", r.URL.Path)
			basePath := model.BasePathFromContext(r.Context())
			http.Redirect(w, r, basePath+"/?notice=forbidden", http.StatusSeeOther)
		})
	}
}

func (h *Handler) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, views.LoginPage(""))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	email := r.FormValue("email")
	password := r.FormValue("password")

	pair, err := h.client.Login(r.Context(), email, password)
	if err != nil {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusUnauthorized)
		msg := api.Detail(err, "이메일 또는 비밀번호가 올바르지 않습니다.")
		if renderErr := views.LoginPage(msg).Render(r.Context(), w); renderErr != nil {
			slog.Error("render error", "error", renderErr)
		}
		return
	}

	h.setAuthCookies(w, pair)
	http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
}

func (h *Handler) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, views.RegisterPage(""))
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	email := r.FormValue("email")
	password := r.FormValue("password")
	examNumber := r.FormValue("exam_number")

	if err := h.client.Register(r.Context(), email, password, examNumber); err != nil {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusBadRequest)
		msg := api.Detail(err, "회원가입에 실패했습니다.")
		if renderErr := views.RegisterPage(msg).Render(r.Context(), w); renderErr != nil {
			slog.Error("render error", "error", renderErr)
		}
		return
	}

	// Registration does not log the user in; the backend wants a fresh login.
	http.Redirect(w, r, h.path("/login"), http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := h.token(r); token != "" {
		h.sessions.Drop(token)
	}
	h.clearAuthCookies(w)
	http.Redirect(w, r, h.path("/login"), http.StatusSeeOther)
}
