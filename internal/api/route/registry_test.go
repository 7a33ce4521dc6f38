package route

import (
	"errors"
	"net/http"
	"testing"

	"github.com/rs/zerolog"

	"github.com/serendip/gatekeeper/internal/api/pipeline"
)

func noop(c *pipeline.Context, next pipeline.Next, done pipeline.Done) { next() }

func newTestRegistry(t *testing.T, controllers ...Controller) *Registry {
	t.Helper()
	r := NewRegistry(zerolog.Nop())
	for _, c := range controllers {
		if err := r.Register(c); err != nil {
			t.Fatalf("Register(%s): %v", c.Name, err)
		}
	}
	return r
}

func TestPath(t *testing.T) {
	tests := []struct {
		prefix, controller, endpoint, want string
	}{
		{"", "AuthController", "token", "/api/auth/token"},
		{"v1", "AuthController", "refreshToken", "/api/v1/auth/refreshtoken"},
		{"/Admin/", "RestrictionController", "List", "/api/admin/restriction/list"},
		{"", "Health", "ping", "/api/health/ping"},
	}
	for _, tc := range tests {
		if got := Path(tc.prefix, tc.controller, tc.endpoint); got != tc.want {
			t.Errorf("Path(%q, %q, %q) = %q, want %q", tc.prefix, tc.controller, tc.endpoint, got, tc.want)
		}
	}
}

func TestRegistry_Match(t *testing.T) {
	r := newTestRegistry(t, Controller{
		Name: "AuthController",
		Endpoints: []Endpoint{
			{Name: "token", Method: "post", PublicAccess: true, Stages: []pipeline.Stage{noop}},
			{Name: "sessions", Method: "get", Stages: []pipeline.Stage{noop}},
			{Name: "custom", Method: "put", Route: "Custom/Path", Stages: []pipeline.Stage{noop}},
		},
	})

	d, ok := r.Match("POST", "/API/Auth/Token")
	if !ok {
		t.Fatal("expected case-insensitive match")
	}
	if d.ControllerName != "AuthController" || d.Endpoint != "token" || !d.PublicAccess {
		t.Errorf("unexpected descriptor %+v", d)
	}

	if _, ok := r.Match(http.MethodGet, "/api/auth/token"); ok {
		t.Error("verb must be part of the match")
	}
	if _, ok := r.Match(http.MethodPut, "/custom/path"); !ok {
		t.Error("explicit route must be normalized to a leading slash and lower case")
	}
	if _, ok := r.Match(http.MethodGet, "/api/auth/unknown"); ok {
		t.Error("unknown path must miss")
	}
}

func TestRegistry_MatchOptions(t *testing.T) {
	r := newTestRegistry(t, Controller{
		Name:      "AuthController",
		Endpoints: []Endpoint{{Name: "sessions", Method: http.MethodGet, Stages: []pipeline.Stage{noop}}},
	})

	if _, ok := r.Match(http.MethodOptions, "/api/auth/sessions"); !ok {
		t.Error("OPTIONS must match any registered verb")
	}
	if _, ok := r.Match(http.MethodOptions, "/api/auth/none"); ok {
		t.Error("OPTIONS on an unknown path must miss")
	}
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	r := newTestRegistry(t, Controller{
		Name:      "AuthController",
		Endpoints: []Endpoint{{Name: "token", Method: http.MethodPost, Stages: []pipeline.Stage{noop}}},
	})

	err := r.Register(Controller{
		Name: "OtherController",
		Endpoints: []Endpoint{
			{Name: "fine", Method: http.MethodPost, Stages: []pipeline.Stage{noop}},
			{Name: "clash", Method: "POST", Route: "/api/auth/token", Stages: []pipeline.Stage{noop}},
		},
	})
	if !errors.Is(err, ErrDuplicateRoute) {
		t.Fatalf("got %v, want ErrDuplicateRoute", err)
	}
	if _, ok := r.Match(http.MethodPost, "/api/other/fine"); ok {
		t.Error("a rejected controller must not be partially registered")
	}

	// Same path, different verb is fine.
	if err := r.Register(Controller{
		Name:      "ThirdController",
		Endpoints: []Endpoint{{Name: "x", Method: http.MethodGet, Route: "/api/auth/token", Stages: []pipeline.Stage{noop}}},
	}); err != nil {
		t.Fatalf("different verb: %v", err)
	}
	if len(r.Routes()) != 2 {
		t.Errorf("expected 2 routes, got %d", len(r.Routes()))
	}
}

func TestRegistry_RejectsInvalidEndpoint(t *testing.T) {
	r := NewRegistry(zerolog.Nop())

	tests := []Endpoint{
		{Name: "nomethod", Stages: []pipeline.Stage{noop}},
		{Name: "nostages", Method: http.MethodGet},
	}
	for _, ep := range tests {
		err := r.Register(Controller{Name: "BadController", Endpoints: []Endpoint{ep}})
		if !errors.Is(err, ErrInvalidEndpoint) {
			t.Errorf("%s: got %v, want ErrInvalidEndpoint", ep.Name, err)
		}
	}
}
