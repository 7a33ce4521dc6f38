// Package pipeline runs the ordered stages of an endpoint.
//
// A stage receives the shared Context and two continuations. It calls next
// to hand the working value on (next() keeps it, next(v) replaces it,
// next(err) aborts with err) or done to finish the request successfully.
// Stages run one after another in the caller's goroutine. Only the first
// call a stage makes counts, and it is acted on once the stage returns. A
// stage that returns without calling either has taken over the response.
package pipeline

import (
	"context"
	"net/http"
	"sync"

	"github.com/serendip/gatekeeper/internal/core/domain"
)

// Responder writes the response of a request.
type Responder interface {
	JSON(code int, v any) error
	NoContent(code int) error
	Writer() http.ResponseWriter
	Committed() bool
}

// Context is handed to every stage of one request.
type Context struct {
	Request  *Request
	Response Responder

	// User and Token are set for non-public endpoints.
	User  *domain.User
	Token *domain.Token

	value any
}

// Value returns the current working value.
func (c *Context) Value() any { return c.value }

// Ctx returns the request's context.
func (c *Context) Ctx() context.Context { return c.Request.Context() }

type (
	Next  func(v ...any)
	Done  func(status int, message string)
	Stage func(c *Context, next Next, done Done)
)

// Outcome is how a pipeline ended without error.
type Outcome struct {
	// Value is the final working value.
	Value any

	// Finished is set when a stage called done with Status and Message.
	Finished bool
	Status   int
	Message  string

	// Detached is set when a stage took over the response.
	Detached bool
}

type signal int

const (
	signalNone signal = iota
	signalNext
	signalDone
)

type step struct {
	mu      sync.Mutex
	closed  bool
	signal  signal
	args    []any
	status  int
	message string
}

func (s *step) next(v ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.signal != signalNone {
		return
	}
	s.signal = signalNext
	s.args = v
}

func (s *step) done(status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.signal != signalNone {
		return
	}
	s.signal = signalDone
	s.status = status
	s.message = message
}

// close freezes the step; calls arriving after the stage returned are
// ignored.
func (s *step) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Run executes stages in order against c.
func Run(c *Context, stages ...Stage) (Outcome, error) {
	for _, stage := range stages {
		s := &step{}
		stage(c, s.next, s.done)
		s.close()

		switch s.signal {
		case signalNone:
			return Outcome{Value: c.value, Detached: true}, nil
		case signalDone:
			return Outcome{Value: c.value, Finished: true, Status: s.status, Message: s.message}, nil
		}

		if len(s.args) == 0 || s.args[0] == nil {
			continue
		}
		if err, ok := s.args[0].(error); ok {
			return Outcome{}, err
		}
		c.value = s.args[0]
	}
	return Outcome{Value: c.value}, nil
}
