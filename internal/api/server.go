package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/serendip/gatekeeper/internal/api/metrics"
	"github.com/serendip/gatekeeper/internal/api/pipeline"
	"github.com/serendip/gatekeeper/internal/api/route"
	"github.com/serendip/gatekeeper/internal/core/domain"
	"github.com/serendip/gatekeeper/internal/core/ports"
)

// Server dispatches requests to the registered endpoint pipelines.
type Server struct {
	routes *route.Registry
	guard  ports.Guard
	log    zerolog.Logger
}

func NewServer(routes *route.Registry, guard ports.Guard, log zerolog.Logger) *Server {
	return &Server{routes: routes, guard: guard, log: log}
}

// messageResponse is the body of a pipeline finished with a message.
type messageResponse struct {
	Message string `json:"message"`
}

// Handle is the catch-all echo handler. It answers preflight requests from
// the route table, authorizes non-public endpoints, runs the pipeline and
// writes its outcome.
func (s *Server) Handle(c echo.Context) error {
	started := time.Now()
	r := c.Request()

	if r.Method == http.MethodOptions {
		if _, ok := s.routes.Match(http.MethodOptions, r.URL.Path); ok {
			return c.NoContent(http.StatusOK)
		}
		return c.NoContent(http.StatusBadRequest)
	}

	desc, ok := s.routes.Match(r.Method, r.URL.Path)
	if !ok {
		metrics.RoutesUnmatchedTotal.Inc()
		return echo.NewHTTPError(http.StatusNotFound, r.URL.Path+" not found")
	}

	req, err := newRequest(c)
	if err != nil {
		return err
	}

	pc := &pipeline.Context{Request: req, Response: echoResponder{c: c}}
	outcome, err := s.dispatch(pc, desc)

	metrics.PipelineDuration.WithLabelValues(desc.ControllerName).Observe(time.Since(started).Seconds())
	s.logRequest(pc, time.Since(started), err)

	if err != nil {
		metrics.PipelineOutcomesTotal.WithLabelValues(desc.ControllerName, "error").Inc()
		return err
	}
	return s.respond(c, desc, outcome)
}

func (s *Server) dispatch(pc *pipeline.Context, desc route.Descriptor) (pipeline.Outcome, error) {
	principal, err := s.guard.Authorize(pc.Ctx(), ports.AuthorizeInput{
		BodyToken:      pc.Request.Field("access_token"),
		Authorization:  pc.Request.Header.Get(echo.HeaderAuthorization),
		ControllerName: desc.ControllerName,
		Endpoint:       desc.Endpoint,
		Public:         desc.PublicAccess,
	})
	if err != nil {
		var de *domain.Error
		if errors.As(err, &de) {
			metrics.AuthDenialsTotal.WithLabelValues(de.Code).Inc()
		}
		return pipeline.Outcome{}, err
	}
	if principal != nil {
		token := principal.Token
		pc.User = principal.User
		pc.Token = &token
	}

	return pipeline.Run(pc, desc.Stages...)
}

func (s *Server) respond(c echo.Context, desc route.Descriptor, out pipeline.Outcome) error {
	switch {
	case out.Detached || c.Response().Committed:
		metrics.PipelineOutcomesTotal.WithLabelValues(desc.ControllerName, "detached").Inc()
		return nil
	case out.Finished:
		metrics.PipelineOutcomesTotal.WithLabelValues(desc.ControllerName, "done").Inc()
		status := out.Status
		if status == 0 {
			status = http.StatusOK
		}
		if out.Message == "" {
			return c.NoContent(status)
		}
		return c.JSON(status, messageResponse{Message: out.Message})
	case desc.IsStream:
		metrics.PipelineOutcomesTotal.WithLabelValues(desc.ControllerName, "detached").Inc()
		return nil
	default:
		metrics.PipelineOutcomesTotal.WithLabelValues(desc.ControllerName, "value").Inc()
		return c.JSON(http.StatusOK, out.Value)
	}
}

func (s *Server) logRequest(pc *pipeline.Context, elapsed time.Duration, err error) {
	username := "unauthorized"
	if pc.User != nil {
		username = pc.User.Username
	}

	evt := s.log.Info()
	if err != nil {
		evt = s.log.Warn().Err(err)
	}
	evt.
		Str("method", pc.Request.Method).
		Str("path", pc.Request.Path).
		Str("ip", pc.Request.IP).
		Str("user", username).
		Str("user_agent", pc.Request.UserAgent).
		Int64("elapsed_ms", elapsed.Milliseconds()).
		Msg("request handled")
}

// newRequest assembles the pipeline view of an echo request. JSON objects
// and url-encoded forms are decoded into Fields.
func newRequest(c echo.Context) (*pipeline.Request, error) {
	r := c.Request()

	var body []byte
	if r.Body != nil {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, domain.Validation("request body could not be read")
		}
		body = b
	}

	fields := map[string]any{}
	if len(body) > 0 {
		mediaType, _, _ := mime.ParseMediaType(r.Header.Get(echo.HeaderContentType))
		switch mediaType {
		case echo.MIMEApplicationForm:
			values, err := url.ParseQuery(string(body))
			if err != nil {
				return nil, domain.Validation("malformed form body")
			}
			for k := range values {
				fields[k] = values.Get(k)
			}
		default:
			// Non-object JSON bodies are left to the stages.
			var obj map[string]any
			if err := json.Unmarshal(body, &obj); err == nil && obj != nil {
				fields = obj
			} else if mediaType == echo.MIMEApplicationJSON && !json.Valid(body) {
				return nil, domain.Validation("malformed JSON body")
			}
		}
	}

	req := &pipeline.Request{
		Method:    r.Method,
		Path:      r.URL.Path,
		Header:    r.Header,
		Query:     r.URL.Query(),
		Body:      body,
		Fields:    fields,
		IP:        c.RealIP(),
		UserAgent: r.UserAgent(),
		ClientID:  r.Header.Get("clientid"),
	}
	return req.WithContext(r.Context()), nil
}

type echoResponder struct {
	c echo.Context
}

func (r echoResponder) JSON(code int, v any) error { return r.c.JSON(code, v) }
func (r echoResponder) NoContent(code int) error { return r.c.NoContent(code) }
func (r echoResponder) Writer() http.ResponseWriter { return r.c.Response() }
func (r echoResponder) Committed() bool { return r.c.Response().Committed }
