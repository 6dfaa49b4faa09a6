package httpapi

import (
	"encoding/json"
	"fmt"

	"github.com/valyala/fasthttp"

	"github.com/statorio/stator/pkg/eventlog"
	"github.com/statorio/stator/pkg/fsm"
	"github.com/statorio/stator/pkg/logging"
)

// Handler processes one request. A returned error produces a generic
// 500 envelope; handlers write structured failures themselves.
type Handler func(ctx *fasthttp.RequestCtx) error

// Middleware wraps a handler.
type Middleware func(Handler) Handler

type route struct {
	method  string
	path    string
	handler Handler
}

// Server exposes the replay endpoints and the definition listing over
// fasthttp.
type Server struct {
	registry   *fsm.Registry
	replay     *eventlog.ReplayService
	log        logging.Logger
	routes     []route
	middleware []Middleware
	srv        *fasthttp.Server
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the request logger.
func WithLogger(log logging.Logger) ServerOption {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMiddleware appends middleware applied to every route, outermost
// first.
func WithMiddleware(mw ...Middleware) ServerOption {
	return func(s *Server) {
		s.middleware = append(s.middleware, mw...)
	}
}

// NewServer builds a server around a registry and a replay service.
func NewServer(registry *fsm.Registry, replay *eventlog.ReplayService, opts ...ServerOption) *Server {
	s := &Server{
		registry: registry,
		replay:   replay,
		log:      logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.route("POST", "/api/fsm/replay/history", s.handleHistory)
	s.route("POST", "/api/fsm/replay/replay", s.handleReplay)
	s.route("POST", "/api/fsm/replay/validate", s.handleValidate)
	s.route("POST", "/api/fsm/replay/statistics", s.handleStatistics)
	s.route("GET", "/api/fsm/definitions", s.handleDefinitions)
	s.route("GET", "/healthz", s.handleHealthz)
	return s
}

func (s *Server) route(method, path string, h Handler) {
	s.routes = append(s.routes, route{method: method, path: path, handler: h})
}

// Handler returns the composed fasthttp request handler.
func (s *Server) Handler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		method := string(ctx.Method())
		path := string(ctx.Path())

		var pathKnown bool
		for _, r := range s.routes {
			if r.path != path {
				continue
			}
			pathKnown = true
			if r.method != method {
				continue
			}

			h := r.handler
			for i := len(s.middleware) - 1; i >= 0; i-- {
				h = s.middleware[i](h)
			}
			if err := h(ctx); err != nil {
				s.log.Errorf("%s %s failed: %v", method, path, err)
				writeJSON(ctx, fasthttp.StatusInternalServerError, failure("internal_error", "request failed", nil))
			}
			return
		}

		if pathKnown {
			writeJSON(ctx, fasthttp.StatusMethodNotAllowed, failure("method_not_allowed",
				fmt.Sprintf("%s is not supported on %s", method, path), nil))
			return
		}
		writeJSON(ctx, fasthttp.StatusNotFound, failure("not_found", "no such endpoint", nil))
	}
}

// ListenAndServe blocks serving the API on addr.
func (s *Server) ListenAndServe(addr string) error {
	s.srv = &fasthttp.Server{
		Handler: s.Handler(),
		Name:    "stator",
	}
	return s.srv.ListenAndServe(addr)
}

// Shutdown gracefully stops a running server.
func (s *Server) Shutdown() error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown()
}

// response is the wire envelope shared by every endpoint.
type response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Message string      `json:"message"`
	Error   string      `json:"error,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

func success(data interface{}, message string) response {
	return response{Success: true, Data: data, Message: message}
}

func failure(code, message string, details interface{}) response {
	return response{Success: false, Message: message, Error: code, Details: details}
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, resp response) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json; charset=utf-8")
	body, err := json.Marshal(resp)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetBodyString(`{"success":false,"data":null,"message":"encoding failed","error":"internal_error"}`)
		return
	}
	ctx.SetBody(body)
}
