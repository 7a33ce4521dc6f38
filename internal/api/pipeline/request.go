package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Request is the read-only view of an incoming request shared by every stage
// of a pipeline.
type Request struct {
	Method string
	Path   string
	Header http.Header
	Query  url.Values
	Body   []byte

	// Fields is the decoded JSON object or form body.
	Fields map[string]any

	IP        string
	UserAgent string

	// ClientID is the value of the clientid header, if any.
	ClientID string

	ctx context.Context
}

// Context returns the request's context, never nil.
func (r *Request) Context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// WithContext returns a shallow copy of r bound to ctx.
func (r *Request) WithContext(ctx context.Context) *Request {
	r2 := *r
	r2.ctx = ctx
	return &r2
}

// Field returns a body field as a string, falling back to the query string.
func (r *Request) Field(name string) string {
	if v, ok := r.Fields[name]; ok && v != nil {
		switch t := v.(type) {
		case string:
			return t
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(t)
		default:
			return fmt.Sprint(t)
		}
	}
	return r.Query.Get(name)
}

// Bind decodes the body into dst. Form bodies are bound through their
// decoded fields.
func (r *Request) Bind(dst any) error {
	if len(r.Fields) == 0 && len(r.Body) == 0 {
		return nil
	}
	if json.Valid(r.Body) {
		if err := json.Unmarshal(r.Body, dst); err != nil {
			return fmt.Errorf("decode body: %w", err)
		}
		return nil
	}
	raw, err := json.Marshal(r.Fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode fields: %w", err)
	}
	return nil
}
