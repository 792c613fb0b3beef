// Package api exposes the bridge over HTTP for the embedding component.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/HsiangNianian/framebridge/internal/action"
	"github.com/HsiangNianian/framebridge/internal/bridge"
	"github.com/HsiangNianian/framebridge/internal/channel"
	"github.com/HsiangNianian/framebridge/internal/dispatch"
	"github.com/HsiangNianian/framebridge/internal/queue"
	"github.com/HsiangNianian/framebridge/internal/request"
	"github.com/HsiangNianian/framebridge/internal/scope"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error any    `json:"error"`
	State string `json:"state,omitempty"`
}

type Server struct {
	bridge    *bridge.Bridge
	authToken string
	logger    *zap.Logger
}

type Option func(*Server)

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithAuthToken requires "Authorization: Bearer <token>" on /api routes.
func WithAuthToken(token string) Option {
	return func(s *Server) {
		s.authToken = token
	}
}

func New(b *bridge.Bridge, options ...Option) *Server {
	s := &Server{bridge: b, logger: zap.NewNop()}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Router returns the HTTP routes. The frame websocket endpoint is mounted at
// framePath when frame is not nil.
func (s *Server) Router(framePath string, frame http.HandlerFunc) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if frame != nil {
		r.Get(framePath, frame)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireToken)
		r.Post("/rest", s.handleRest)
		r.Post("/fetch", s.handleFetch)
		r.Post("/actions/{name}", s.handleAction)
	})
	return r
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.authToken != "" && r.Header.Get("Authorization") != "Bearer "+s.authToken {
			s.logger.Warn("api unauthorized", zap.String("remote", r.RemoteAddr))
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleRest(w http.ResponseWriter, r *http.Request) {
	var req request.Descriptor
	if !s.decode(w, r, &req) {
		return
	}
	data, err := s.bridge.RestRequest(r.Context(), req)
	s.respond(w, r, data, err)
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	var req request.Descriptor
	if !s.decode(w, r, &req) {
		return
	}
	data, err := s.bridge.FetchRequest(r.Context(), req)
	s.respond(w, r, data, err)
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var opts action.Options
	for key, dst := range map[string]*bool{"background": &opts.Background, "storable": &opts.Storable} {
		v := r.URL.Query().Get(key)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid " + key + " flag"})
			return
		}
		*dst = b
	}

	var params map[string]any
	if !s.decode(w, r, &params) {
		return
	}

	data, err := s.bridge.ApexRequest(r.Context(), scope.FromContext(r.Context()), name, params, &opts)
	s.respond(w, r, data, err)
}

// decode reads an optional JSON body into v. An empty body leaves v untouched.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error()})
	return false
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, data json.RawMessage, err error) {
	if err == nil {
		if len(data) == 0 {
			data = json.RawMessage("null")
		}
		writeJSON(w, http.StatusOK, data)
		return
	}

	var (
		envErr *dispatch.EnvelopeError
		actErr *action.Error
	)
	switch {
	case errors.Is(err, dispatch.ErrInvalidKind):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.As(err, &envErr):
		writeJSON(w, http.StatusBadGateway, errorBody{Error: rawOrString(envErr.Data)})
	case errors.As(err, &actErr):
		writeJSON(w, http.StatusBadGateway, errorBody{Error: actErr.Payload, State: string(actErr.State)})
	case errors.Is(err, queue.ErrUnknownAction):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, channel.ErrTimeout):
		writeJSON(w, http.StatusGatewayTimeout, errorBody{Error: err.Error()})
	case errors.Is(err, scope.ErrClosed), errors.Is(err, queue.ErrClosed):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, errorBody{Error: err.Error()})
	case errors.Is(err, context.Canceled):
		s.logger.Debug("client went away", zap.String("path", r.URL.Path))
	default:
		s.logger.Error("bridge request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
	}
}

func rawOrString(data json.RawMessage) any {
	if len(data) == 0 {
		return nil
	}
	if json.Valid(data) {
		return data
	}
	return string(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
