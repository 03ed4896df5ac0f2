package rpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tailored-agentic-units/obfusengine/engine"
	"github.com/tailored-agentic-units/obfusengine/observability"
	"github.com/tailored-agentic-units/obfusengine/technique"
)

const (
	// DefaultMaxScriptBytes bounds the size of a request message.
	DefaultMaxScriptBytes = 4 << 20

	shutdownTimeout = 10 * time.Second
)

// Option configures a Server.
type Option func(*Server)

// WithObserver sets the observer notified of requests.
func WithObserver(o observability.Observer) Option {
	return func(s *Server) { s.observer = o }
}

// WithMaxBytes sets the maximum request message size.
func WithMaxBytes(n int) Option {
	return func(s *Server) { s.maxBytes = n }
}

// Server exposes a Service and a health endpoint on a chi router.
type Server struct {
	addr     string
	engine   *engine.Engine
	observer observability.Observer
	maxBytes int
	router   *chi.Mux
}

// NewServer creates a Server listening on addr.
func NewServer(addr string, e *engine.Engine, opts ...Option) *Server {
	s := &Server{
		addr:     addr,
		engine:   e,
		observer: observability.NoOpObserver{},
		maxBytes: DefaultMaxScriptBytes,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	svc := NewService(e, s.observer)
	r.Handle(ObfuscateProcedure, connect.NewUnaryHandler(
		ObfuscateProcedure,
		svc.Obfuscate,
		connect.WithReadMaxBytes(s.maxBytes),
	))

	s.router = r
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	var techniques []any
	for _, spec := range s.engine.Registry().All() {
		techniques = append(techniques, map[string]any{
			"id":     spec.ID,
			"domain": string(spec.Domain),
		})
	}

	st, err := structpb.NewStruct(map[string]any{
		"status":     "ok",
		"service":    ServiceName,
		"techniques": techniques,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data, err := protojson.Marshal(st)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// Client calls a remote Obfuscate procedure.
type Client struct {
	obfuscate *connect.Client[structpb.Struct, structpb.Struct]
}

// NewClient creates a Client for the server at baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	return &Client{
		obfuscate: connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+ObfuscateProcedure, opts...),
	}
}

// Obfuscate sends one request. techniques may contain "all".
func (c *Client) Obfuscate(ctx context.Context, script string, domain technique.Domain, techniques []string, encode bool) (*structpb.Struct, error) {
	ids := make([]any, len(techniques))
	for i, t := range techniques {
		ids[i] = t
	}
	msg, err := structpb.NewStruct(map[string]any{
		"script":     script,
		"language":   string(domain),
		"techniques": ids,
		"encode":     encode,
	})
	if err != nil {
		return nil, err
	}

	res, err := c.obfuscate.CallUnary(ctx, connect.NewRequest(msg))
	if err != nil {
		return nil, err
	}
	return res.Msg, nil
}
