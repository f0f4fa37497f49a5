package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kpcai/examfront/internal/model"
)

func TestRequireRoleAdmitsAdmin(t *testing.T) {
	called := false
	h := requireRole(model.UserRoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	r := httptest.NewRequest("GET", "/admin/", nil)
	ctx := model.ContextWithUser(r.Context(), &model.User{ID: 1, Role: model.UserRoleAdmin})
	h.ServeHTTP(httptest.NewRecorder(), r.WithContext(ctx))
	if !called {
		t.Error("admin request did not reach the handler")
	}
}

// Non-admins land on the home page with a notice code the home handler turns
// into a visible alert, not on a silent redirect.
func TestRequireRoleBouncesWithNotice(t *testing.T) {
	h := requireRole(model.UserRoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("non-admin request reached the admin handler")
	}))

	r := httptest.NewRequest("GET", "/admin/", nil)
	ctx := model.ContextWithUser(r.Context(), &model.User{ID: 2, Role: model.UserRoleUser})
	ctx = model.ContextWithBasePath(ctx, "/exam")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r.WithContext(ctx))

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", w.Code)
	}
	if got := w.Header().Get("Location"); got != "/exam/?notice=forbidden" {
		t.Errorf("Location = %q, want home with forbidden notice", got)
	}
}

func TestRequireRoleWithoutUser(t *testing.T) {
	h := requireRole(model.UserRoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("unauthenticated request reached the admin handler")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/admin/", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}
