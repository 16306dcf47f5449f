package api

import (
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/meshcom-gateway/meshcom-server/internal/auth"
	"github.com/meshcom-gateway/meshcom-server/internal/config"
	"github.com/meshcom-gateway/meshcom-server/internal/gateway"
	"github.com/meshcom-gateway/meshcom-server/internal/storage"
	"github.com/meshcom-gateway/meshcom-server/internal/validation"
	"github.com/meshcom-gateway/meshcom-server/pkg/meshcom"
)

// Gateway is the gateway session as seen by the API
type Gateway interface {
	Identity() meshcom.Identity
	LocalAddr() *net.UDPAddr
	State() gateway.State
	LastRaw() ([]byte, time.Time)
	SendMessage(target, dst, text string) error
	RegisterListener(fn gateway.Listener) func()
	ListenerCount() int
}

type contextKey string

const claimsKey contextKey = "claims"

// RESTServer represents the REST API server
type RESTServer struct {
	config    *config.Config
	gw        Gateway
	store     storage.Store
	auth      *auth.JWTManager
	validator *validation.Validator
	upgrader  websocket.Upgrader
	router    chi.Router
	server    *http.Server
}

// NewRESTServer creates a new REST API server; store may be nil, metrics may be nil
func NewRESTServer(cfg *config.Config, gw Gateway, store storage.Store, metrics http.Handler) *RESTServer {
	s := &RESTServer{
		config:    cfg,
		gw:        gw,
		store:     store,
		auth:      auth.NewJWTManager(&cfg.JWT),
		validator: validation.NewValidator(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		router: chi.NewRouter(),
	}

	s.setupRoutes(metrics)

	s.server = &http.Server{
		Handler:     s.handler(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	return s
}

// setupRoutes configures all routes
func (s *RESTServer) setupRoutes(metrics http.Handler) {
	// Middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metrics != nil && s.config.Metrics.Path != "" {
		s.router.Handle(s.config.Metrics.Path, metrics)
	}

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		s.setupAPIRoutes(r)
	})
}

// Handler returns the root HTTP handler
func (s *RESTServer) Handler() http.Handler {
	return s.server.Handler
}

// handler serves the Web UI next to the API when static_dir exists
func (s *RESTServer) handler() http.Handler {
	webDir := s.config.API.StaticDir
	if envWebDir := os.Getenv("WEB_DIR"); envWebDir != "" {
		webDir = envWebDir
	}
	if webDir == "" {
		return s.router
	}

	if _, err := os.Stat(webDir); os.IsNotExist(err) {
		log.Warn().Str("dir", webDir).Msg("Web directory not found, Web UI will not be available")
		return s.router
	}

	log.Info().Str("dir", webDir).Msg("Serving Web UI from directory")

	fs := http.FileServer(http.Dir(webDir))
	metricsPath := s.config.Metrics.Path

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") || (metricsPath != "" && r.URL.Path == metricsPath) {
			s.router.ServeHTTP(w, r)
			return
		}

		// 没有扩展名的路径交给前端路由
		if r.URL.Path == "/" || !strings.Contains(r.URL.Path, ".") {
			http.ServeFile(w, r, filepath.Join(webDir, "index.html"))
			return
		}

		fs.ServeHTTP(w, r)
	})
}

// ListenAndServe starts the server
func (s *RESTServer) ListenAndServe(addr string) error {
	s.server.Addr = addr

	log.Info().Str("addr", addr).Bool("auth", s.auth.Enabled()).Msg("Starting REST API server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *RESTServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// authMiddleware is the authentication middleware; no-op when no JWT secret is configured
func (s *RESTServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.auth.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := bearerToken(r)
		if !ok {
			s.respondError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		// Validate token
		claims, err := s.auth.ValidateToken(token)
		if err != nil {
			s.respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		// Add claims to context
		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken reads the Authorization header, or the token query parameter for WebSocket clients
func bearerToken(r *http.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}

	if token := r.URL.Query().Get("token"); token != "" {
		return token, true
	}

	return "", false
}
