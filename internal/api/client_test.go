package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kpcai/examfront/internal/model"
)

func TestBearerTokenFromContext(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(model.User{ID: 1, Email: "a@b.c"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	ctx := ContextWithToken(t.Context(), "tok-123")
	if _, err := c.Me(ctx); err != nil {
		t.Fatalf("Me: %v", err)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}

	// Without a token in context no header is sent.
	gotAuth = ""
	if _, err := c.Me(t.Context()); err != nil {
		t.Fatalf("Me without token: %v", err)
	}
	if gotAuth != "" {
		t.Errorf("unexpected Authorization header %q", gotAuth)
	}
}

func TestUnauthorizedHookFiresOnAnyEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"detail": "token expired"})
	}))
	defer srv.Close()

	fired := 0
	c := New(srv.URL, WithUnauthorizedHook(func() { fired++ }))

	if _, err := c.Me(t.Context()); err == nil {
		t.Fatal("expected error from 401")
	}
	_, err := c.Questions(t.Context(), false)
	if err == nil {
		t.Fatal("expected error from 401")
	}
	if fired != 2 {
		t.Errorf("hook fired %d times, want 2", fired)
	}
	if !IsUnauthorized(err) {
		t.Error("expected IsUnauthorized for a 401 response")
	}
	if IsUnauthorized(nil) {
		t.Error("IsUnauthorized(nil) must be false")
	}
}

func TestDetailSurfacesServerMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"detail": "이미 존재하는 이메일입니다."})
	}))
	defer srv.Close()

	c := New(srv.URL)
	err := c.Register(t.Context(), "a@b.c", "pw", "2026-001")
	if err == nil {
		t.Fatal("expected error")
	}
	if got := Detail(err, "fallback"); got != "이미 존재하는 이메일입니다." {
		t.Errorf("Detail = %q", got)
	}

	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest {
		t.Errorf("expected typed 400, got %v", err)
	}
}

func TestDetailFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL)
	err := c.SubmitExam(t.Context(), 1)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := Detail(err, "기본 메시지"); got != "기본 메시지" {
		t.Errorf("Detail = %q, want fallback", got)
	}
}

func TestTimeoutClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		json.NewEncoder(w).Encode(map[string]any{})
	}))
	defer srv.Close()

	c := New(srv.URL, WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}))
	_, err := c.Me(t.Context())
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !IsTimeout(err) {
		t.Errorf("expected timeout classification, got %v", err)
	}
}

func TestIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"detail": "not found"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.ExamAnswers(t.Context(), 42)
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsNotFound(err) {
		t.Errorf("expected 404 classification, got %v", err)
	}
	if IsTimeout(err) {
		t.Error("404 must not classify as timeout")
	}
}

func TestRequestPathsAndQuery(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode([]model.Question{})
	}))
	defer srv.Close()

	c := New(srv.URL)
	if _, err := c.Questions(t.Context(), true); err != nil {
		t.Fatalf("Questions: %v", err)
	}
	if gotPath != "/api/questions" {
		t.Errorf("path = %q", gotPath)
	}
	if gotQuery != "include_inactive=true" {
		t.Errorf("query = %q", gotQuery)
	}
}
