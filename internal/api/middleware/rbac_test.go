package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/serendip/gatekeeper/internal/api/pipeline"
	"github.com/serendip/gatekeeper/internal/core/domain"
)

func runWithUser(user *domain.User, stage pipeline.Stage) (bool, error) {
	called := false
	c := &pipeline.Context{Request: &pipeline.Request{}, User: user}
	_, err := pipeline.Run(c, stage, func(c *pipeline.Context, next pipeline.Next, done pipeline.Done) {
		called = true
		next()
	})
	return called, err
}

func TestRequireGroup_Allows(t *testing.T) {
	called, err := runWithUser(&domain.User{Groups: []string{"staff"}}, RequireGroup("admin", "staff"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatalf("next stage not called")
	}
}

func TestRequireGroup_Forbids(t *testing.T) {
	called, err := runWithUser(&domain.User{Groups: []string{"guest"}}, RequireGroup("admin", "staff"))
	if !errors.Is(err, domain.ErrGroupAccessDenied) {
		t.Fatalf("expected ErrGroupAccessDenied, got %v", err)
	}
	if called {
		t.Fatalf("should not reach next stage")
	}
}

func TestRequireAdmin(t *testing.T) {
	if _, err := runWithUser(&domain.User{Groups: []string{domain.GroupAdmin}}, RequireAdmin()); err != nil {
		t.Fatalf("admin rejected: %v", err)
	}
	if _, err := runWithUser(&domain.User{}, RequireAdmin()); !errors.Is(err, domain.ErrAdminRequired) {
		t.Fatalf("expected ErrAdminRequired, got %v", err)
	}
	if _, err := runWithUser(nil, RequireAdmin()); !errors.Is(err, domain.ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken without user, got %v", err)
	}
}

func TestCORS_SetsHeaders(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderOrigin, "https://app.example.com")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := CORS("https://app.example.com")(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if err := handler(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	if got := rec.Header().Get(echo.HeaderAccessControlAllowOrigin); got != "https://app.example.com" {
		t.Fatalf("allow-origin = %q", got)
	}
	if got := rec.Header().Get(echo.HeaderAccessControlAllowHeaders); got != "clientid, Authorization, Content-Type, Accept" {
		t.Fatalf("allow-headers = %q", got)
	}
}

func TestCORS_IgnoresUnknownOrigin(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderOrigin, "https://evil.example.com")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := CORS("https://app.example.com")(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	_ = handler(c)

	if got := rec.Header().Get(echo.HeaderAccessControlAllowOrigin); got != "" {
		t.Fatalf("unexpected allow-origin %q", got)
	}
}
