// Package route builds the verb+path table of every declared endpoint and
// resolves incoming requests against it.
package route

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/serendip/gatekeeper/internal/api/pipeline"
)

var (
	ErrDuplicateRoute  = errors.New("route already registered")
	ErrInvalidEndpoint = errors.New("endpoint needs a method and at least one stage")
)

// Endpoint declares one operation of a controller.
type Endpoint struct {
	Name         string
	Method       string
	PublicAccess bool
	IsStream     bool
	Stages       []pipeline.Stage

	// Route overrides the synthesized path.
	Route string
}

// Controller groups endpoints under a common path segment.
type Controller struct {
	// Name is the controller type name, e.g. "AuthController". The
	// "Controller" suffix is dropped from synthesized paths.
	Name      string
	Prefix    string
	Endpoints []Endpoint
}

// Descriptor is a registered route.
type Descriptor struct {
	Method         string
	Route          string
	PublicAccess   bool
	IsStream       bool
	ControllerName string
	Endpoint       string
	Stages         []pipeline.Stage
}

// Registry maps verb+path to descriptors. Registration happens at startup;
// lookups are safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	routes map[string]map[string]Descriptor // path -> method -> descriptor
	order  []Descriptor
	log    zerolog.Logger
}

func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{routes: make(map[string]map[string]Descriptor), log: log}
}

// Path synthesizes the default path of an endpoint:
// /api/{prefix/}{controller without "Controller"}/{endpoint}, lower-cased.
func Path(prefix, controllerName, endpoint string) string {
	var b strings.Builder
	b.WriteString("/api/")
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		b.WriteString(prefix)
		b.WriteByte('/')
	}
	b.WriteString(strings.Replace(controllerName, "Controller", "", 1))
	b.WriteByte('/')
	b.WriteString(endpoint)
	return strings.ToLower(b.String())
}

func normalize(path string) string {
	path = strings.ToLower(strings.TrimSpace(path))
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

// Register adds every endpoint of c. Nothing is registered when any
// endpoint is invalid or collides with an existing route.
func (r *Registry) Register(c Controller) error {
	descs := make([]Descriptor, 0, len(c.Endpoints))
	seen := make(map[string]bool, len(c.Endpoints))

	for _, ep := range c.Endpoints {
		if ep.Method == "" || len(ep.Stages) == 0 {
			return fmt.Errorf("%s > %s: %w", c.Name, ep.Name, ErrInvalidEndpoint)
		}
		path := Path(c.Prefix, c.Name, ep.Name)
		if ep.Route != "" {
			path = normalize(ep.Route)
		}
		d := Descriptor{
			Method:         strings.ToUpper(ep.Method),
			Route:          path,
			PublicAccess:   ep.PublicAccess,
			IsStream:       ep.IsStream,
			ControllerName: c.Name,
			Endpoint:       ep.Name,
			Stages:         ep.Stages,
		}
		key := d.Method + " " + d.Route
		if seen[key] {
			return fmt.Errorf("%s %s: %w", d.Method, d.Route, ErrDuplicateRoute)
		}
		seen[key] = true
		descs = append(descs, d)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, d := range descs {
		if _, exists := r.routes[d.Route][d.Method]; exists {
			return fmt.Errorf("%s %s: %w", d.Method, d.Route, ErrDuplicateRoute)
		}
	}
	for _, d := range descs {
		byMethod, ok := r.routes[d.Route]
		if !ok {
			byMethod = make(map[string]Descriptor)
			r.routes[d.Route] = byMethod
		}
		byMethod[d.Method] = d
		r.order = append(r.order, d)

		r.log.Info().
			Str("method", d.Method).
			Str("route", d.Route).
			Str("controller", d.ControllerName).
			Str("endpoint", d.Endpoint).
			Bool("public", d.PublicAccess).
			Msg("route registered")
	}
	return nil
}

// Match finds the descriptor for method and path, both case-insensitive.
// For OPTIONS it reports whether any method is registered at path and
// returns one of them.
func (r *Registry) Match(method, path string) (Descriptor, bool) {
	path = normalize(path)
	method = strings.ToUpper(method)

	r.mu.RLock()
	defer r.mu.RUnlock()

	byMethod, ok := r.routes[path]
	if !ok {
		return Descriptor{}, false
	}
	if method == http.MethodOptions {
		methods := make([]string, 0, len(byMethod))
		for m := range byMethod {
			methods = append(methods, m)
		}
		sort.Strings(methods)
		return byMethod[methods[0]], true
	}
	d, ok := byMethod[method]
	return d, ok
}

// Routes lists descriptors in registration order.
func (r *Registry) Routes() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Descriptor(nil), r.order...)
}
