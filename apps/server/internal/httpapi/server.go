// Package httpapi serves the student and admin HTTP surface over the
// resolver, the rule store and the image storage collaborator.
package httpapi

import (
	"net/http"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/zerolog"

	"scholaverse/apps/server/internal/auth"
	"scholaverse/apps/server/internal/gateway"
	"scholaverse/apps/server/internal/imagestore"
	"scholaverse/apps/server/internal/rulestore"
	"scholaverse/scoring"
)

const defaultRequestTimeout = 10 * time.Second

// Publisher receives rule-change events after successful mutations.
type Publisher interface {
	Publish(evt gateway.Event)
}

type Options struct {
	Resolver *scoring.Resolver
	Store    rulestore.Store
	Auth     *auth.HTTPHandler
	Images   imagestore.Service
	Events   Publisher
	// WebSocket serves the admin live feed; nil disables the route.
	WebSocket      http.HandlerFunc
	Logger         zerolog.Logger
	RequestTimeout time.Duration
}

type Server struct {
	resolver       *scoring.Resolver
	store          rulestore.Store
	auth           *auth.HTTPHandler
	images         imagestore.Service
	events         Publisher
	webSocket      http.HandlerFunc
	logger         zerolog.Logger
	requestTimeout time.Duration
}

func New(opts Options) *Server {
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	events := opts.Events
	if events == nil {
		events = nopPublisher{}
	}
	return &Server{
		resolver:       opts.Resolver,
		store:          opts.Store,
		auth:           opts.Auth,
		images:         opts.Images,
		events:         events,
		webSocket:      opts.WebSocket,
		logger:         opts.Logger,
		requestTimeout: timeout,
	}
}

// Handler returns the full route tree wrapped in request id, logging and
// recovery middleware. JSON routes are gzip-compressed on request; the
// websocket route is left unwrapped so it can hijack the connection.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("/health", s.handleHealth)
	s.auth.RegisterRoutes(api)
	s.registerStudentRoutes(api)
	s.registerAdminRoutes(api)
	s.registerImageRoutes(api)

	root := http.NewServeMux()
	root.Handle("/", gzhttp.GzipHandler(api))
	if s.webSocket != nil {
		root.HandleFunc("/api/admin/ws", withQueryToken(s.auth.RequireStaff(s.webSocket)))
	}
	return s.withRequestID(s.withAccessLog(s.withRecovery(root)))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type nopPublisher struct{}

func (nopPublisher) Publish(gateway.Event) {}
