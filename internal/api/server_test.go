package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/serendip/gatekeeper/internal/api/pipeline"
	"github.com/serendip/gatekeeper/internal/api/route"
	"github.com/serendip/gatekeeper/internal/core/domain"
	"github.com/serendip/gatekeeper/internal/core/ports"
)

type stubGuard struct {
	calls []ports.AuthorizeInput
	fn    func(in ports.AuthorizeInput) (*ports.Principal, error)
}

func (g *stubGuard) Authorize(_ context.Context, in ports.AuthorizeInput) (*ports.Principal, error) {
	g.calls = append(g.calls, in)
	if in.Public {
		return nil, nil
	}
	if g.fn == nil {
		return nil, domain.ErrMissingToken
	}
	return g.fn(in)
}

func testController() route.Controller {
	return route.Controller{
		Name: "TestController",
		Endpoints: []route.Endpoint{
			{Name: "echo", Method: http.MethodPost, PublicAccess: true, Stages: []pipeline.Stage{
				func(c *pipeline.Context, next pipeline.Next, _ pipeline.Done) {
					next(map[string]string{"username": c.Request.Field("username"), "clientid": c.Request.ClientID})
				},
			}},
			{Name: "whoami", Method: http.MethodGet, Stages: []pipeline.Stage{
				func(c *pipeline.Context, next pipeline.Next, _ pipeline.Done) { next(c.User.Username) },
			}},
			{Name: "group", Method: http.MethodPost, PublicAccess: true, Stages: []pipeline.Stage{
				func(_ *pipeline.Context, _ pipeline.Next, done pipeline.Done) { done(http.StatusAccepted, "added to group") },
			}},
			{Name: "empty", Method: http.MethodPost, PublicAccess: true, Stages: []pipeline.Stage{
				func(_ *pipeline.Context, _ pipeline.Next, done pipeline.Done) { done(0, "") },
			}},
			{Name: "fail", Method: http.MethodPost, PublicAccess: true, Stages: []pipeline.Stage{
				func(_ *pipeline.Context, next pipeline.Next, _ pipeline.Done) { next(domain.ErrUsernameTaken) },
			}},
			{Name: "stream", Method: http.MethodGet, PublicAccess: true, IsStream: true, Stages: []pipeline.Stage{
				func(c *pipeline.Context, next pipeline.Next, _ pipeline.Done) {
					w := c.Response.Writer()
					w.Header().Set(echo.HeaderContentType, echo.MIMETextPlain)
					w.WriteHeader(http.StatusOK)
					_, _ = w.Write([]byte("chunk"))
					next()
				},
			}},
			{Name: "takeover", Method: http.MethodGet, PublicAccess: true, Stages: []pipeline.Stage{
				func(c *pipeline.Context, _ pipeline.Next, _ pipeline.Done) {
					_ = c.Response.JSON(http.StatusTeapot, map[string]string{"by": "stage"})
				},
			}},
		},
	}
}

func newTestServer(t *testing.T, guard *stubGuard) *echo.Echo {
	t.Helper()
	registry := route.NewRegistry(zerolog.Nop())
	if err := registry.Register(testController()); err != nil {
		t.Fatalf("Register: %v", err)
	}

	e := echo.New()
	e.HTTPErrorHandler = NewHTTPErrorHandler(zerolog.Nop())
	e.Any("/*", NewServer(registry, guard, zerolog.Nop()).Handle)
	return e
}

func do(e *echo.Echo, method, path, contentType, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("invalid json %q: %v", rec.Body.String(), err)
	}
	return m
}

func TestServer_UnmatchedRoute(t *testing.T) {
	e := newTestServer(t, &stubGuard{})

	rec := do(e, http.MethodGet, "/api/test/missing", "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if got := decodeBody(t, rec)["error"]; got != "/api/test/missing not found" {
		t.Fatalf("error = %v", got)
	}

	// Known path, wrong verb.
	if rec := do(e, http.MethodDelete, "/api/test/echo", "", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("wrong verb status = %d, want 404", rec.Code)
	}
}

func TestServer_Options(t *testing.T) {
	e := newTestServer(t, &stubGuard{})

	if rec := do(e, http.MethodOptions, "/api/test/whoami", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("known path status = %d, want 200", rec.Code)
	}
	if rec := do(e, http.MethodOptions, "/api/test/nothing", "", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown path status = %d, want 400", rec.Code)
	}
}

func TestServer_PublicValueIsSerialized(t *testing.T) {
	guard := &stubGuard{}
	e := newTestServer(t, guard)

	rec := do(e, http.MethodPost, "/API/Test/Echo", echo.MIMEApplicationJSON, `{"username":"alice01"}`, "clientid", "web")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["username"] != "alice01" || body["clientid"] != "web" {
		t.Fatalf("unexpected body %v", body)
	}
	if len(guard.calls) != 1 || !guard.calls[0].Public || guard.calls[0].ControllerName != "TestController" || guard.calls[0].Endpoint != "echo" {
		t.Fatalf("unexpected guard calls %+v", guard.calls)
	}
}

func TestServer_FormBody(t *testing.T) {
	e := newTestServer(t, &stubGuard{})

	rec := do(e, http.MethodPost, "/api/test/echo", echo.MIMEApplicationForm, "username=bob0001")
	if got := decodeBody(t, rec)["username"]; got != "bob0001" {
		t.Fatalf("username = %v, want bob0001", got)
	}
}

func TestServer_MalformedJSON(t *testing.T) {
	e := newTestServer(t, &stubGuard{})

	rec := do(e, http.MethodPost, "/api/test/echo", echo.MIMEApplicationJSON, `{"username":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestServer_GuardRunsBeforeStages(t *testing.T) {
	guard := &stubGuard{fn: func(in ports.AuthorizeInput) (*ports.Principal, error) {
		if in.Authorization != "Bearer tok-1" {
			return nil, domain.ErrTokenNotFound
		}
		return &ports.Principal{User: &domain.User{ID: "u1", Username: "alice01"}, Token: domain.Token{AccessToken: "tok-1"}}, nil
	}}
	e := newTestServer(t, guard)

	rec := do(e, http.MethodGet, "/api/test/whoami", "", "", echo.HeaderAuthorization, "Bearer tok-1")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `"alice01"` {
		t.Fatalf("got %d %s", rec.Code, rec.Body.String())
	}

	rec = do(e, http.MethodGet, "/api/test/whoami", "", "", echo.HeaderAuthorization, "Bearer nope")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if got := decodeBody(t, rec)["code"]; got != "token_not_found" {
		t.Fatalf("code = %v", got)
	}
}

func TestServer_BodyTokenReachesGuard(t *testing.T) {
	guard := &stubGuard{}
	e := newTestServer(t, guard)

	rec := do(e, http.MethodGet, "/api/test/whoami?access_token=q-tok", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if guard.calls[0].BodyToken != "q-tok" {
		t.Fatalf("BodyToken = %q, want q-tok", guard.calls[0].BodyToken)
	}
}

func TestServer_DoneAndErrors(t *testing.T) {
	e := newTestServer(t, &stubGuard{})

	rec := do(e, http.MethodPost, "/api/test/group", "", "")
	if rec.Code != http.StatusAccepted || decodeBody(t, rec)["message"] != "added to group" {
		t.Fatalf("done: got %d %s", rec.Code, rec.Body.String())
	}

	rec = do(e, http.MethodPost, "/api/test/empty", "", "")
	if rec.Code != http.StatusOK || rec.Body.Len() != 0 {
		t.Fatalf("empty done: got %d %q", rec.Code, rec.Body.String())
	}

	rec = do(e, http.MethodPost, "/api/test/fail", "", "")
	if rec.Code != http.StatusConflict || decodeBody(t, rec)["code"] != "duplicate_username" {
		t.Fatalf("fail: got %d %s", rec.Code, rec.Body.String())
	}
}

func TestServer_StreamAndTakeover(t *testing.T) {
	e := newTestServer(t, &stubGuard{})

	rec := do(e, http.MethodGet, "/api/test/stream", "", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "chunk" {
		t.Fatalf("stream: got %d %q", rec.Code, rec.Body.String())
	}

	rec = do(e, http.MethodGet, "/api/test/takeover", "", "")
	if rec.Code != http.StatusTeapot || decodeBody(t, rec)["by"] != "stage" {
		t.Fatalf("takeover: got %d %s", rec.Code, rec.Body.String())
	}
}
