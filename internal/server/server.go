package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"

	"codeguardian/dashboard"
	"codeguardian/data_engine"
	"codeguardian/inference_engine"
	"codeguardian/internal/config"
	"codeguardian/internal/credentials"
	apperrors "codeguardian/internal/errors"
	"codeguardian/internal/guardian"
	"codeguardian/internal/logging"
	"codeguardian/internal/websocket"
)

const (
	sessionCookieName = "codeguardian_session"
	sessionIDKey      = "sid"
	maxBodyBytes      = 1 << 20
	version           = "1.0.0"
)

// Dependencies are the services the HTTP layer exposes. Hub, Events and
// SettingsFile are optional.
type Dependencies struct {
	Guardian     *guardian.CodeGuardian
	Registry     *inference_engine.ProviderRegistry
	Vault        *credentials.Vault
	Settings     *config.SettingsManager
	SettingsFile string
	Hub          *websocket.Hub
	Events       *data_engine.WindowedAggregator
}

// Server represents the HTTP server
type Server struct {
	router      *mux.Router
	server      *http.Server
	deps        Dependencies
	cookies     *sessions.CookieStore
	rateLimiter *RateLimiter
	metrics     metricsFunc
	startedAt   time.Time
}

// NewServer builds the router and the http.Server with the usual timeouts.
func NewServer(cfg *config.Config, deps Dependencies) *Server {
	router := mux.NewRouter()

	cookies := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	cookies.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   7 * 24 * 60 * 60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	s := &Server{
		router:      router,
		deps:        deps,
		cookies:     cookies,
		rateLimiter: NewRateLimiter(cfg.RateLimit.Window, cfg.RateLimit.Limit),
		metrics:     collectSystemMetrics,
		startedAt:   time.Now(),
	}

	router.Use(rateLimitMiddleware(s.rateLimiter))
	router.Use(jsonContentTypeMiddleware)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           corsMiddleware(securityHeadersMiddleware(router)),
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	logging.L_infof("🌐 Starting CodeGuardian server on port %s", s.server.Addr)
	logging.L_info("📊 API endpoints available under /api/v1/, websocket on /ws")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.rateLimiter.Stop()
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	router := s.router
	api := router.PathPrefix("/api/v1").Subrouter()

	router.HandleFunc("/health", s.handleHealth).Methods("GET")
	router.HandleFunc("/ws", s.handleWebSocket)

	api.HandleFunc("/chat", s.handleChat).Methods("POST")
	api.HandleFunc("/analyze", s.handleAnalyze).Methods("POST")
	api.HandleFunc("/history", s.handleGetHistory).Methods("GET")
	api.HandleFunc("/history", s.handleClearHistory).Methods("DELETE")

	api.HandleFunc("/providers", s.handleListProviders).Methods("GET")
	api.HandleFunc("/providers/{id}", s.handleGetProvider).Methods("GET")
	api.HandleFunc("/settings", s.handleGetSettings).Methods("GET")
	api.HandleFunc("/settings", s.handleSaveSettings).Methods("POST")
	api.HandleFunc("/settings/keys/{id}", s.handleDeleteKey).Methods("DELETE")

	api.HandleFunc("/scan/security", s.handleSecurityScan).Methods("POST")
	api.HandleFunc("/scan/scalability", s.handleScalabilityAssessment).Methods("POST")
	api.HandleFunc("/activity", s.handleActivity).Methods("GET")

	api.HandleFunc("/metrics", s.handleSystemMetrics).Methods("GET")
	api.HandleFunc("/docs", s.handleAPIDocs).Methods("GET")

	// Embedded dashboard is the fallback
	router.PathPrefix("/").Handler(http.FileServer(http.FS(dashboard.Dist)))
}

// sessionID returns the CodeGuardian session bound to the request cookie,
// issuing a new one when the cookie is missing or unreadable.
func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) string {
	session, err := s.cookies.Get(r, sessionCookieName)
	if err != nil {
		logging.L_debug("Discarding unreadable session cookie", "error", err)
	}
	if sid, ok := session.Values[sessionIDKey].(string); ok && sid != "" {
		return sid
	}

	sid := guardian.NewSessionID()
	session.Values[sessionIDKey] = sid
	if err := session.Save(r, w); err != nil {
		logging.L_warn("⚠️  Failed to save session cookie", "error", err)
	}
	return sid
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) *apperrors.AppError {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.NewValidationError("request body is required", nil)
		}
		return apperrors.NewValidationError("invalid request body", map[string]interface{}{"error": err.Error()})
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	available := 0
	if s.deps.Registry != nil {
		available = len(s.deps.Registry.Available())
	}
	apperrors.SendSuccess(w, map[string]interface{}{
		"status":              "healthy",
		"timestamp":           time.Now().Format(time.RFC3339),
		"version":             version,
		"providers_available": available,
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.deps.Hub == nil {
		apperrors.SendError(w, apperrors.NewUnavailableError("websocket"))
		return
	}
	s.deps.Hub.HandleConnection(w, r)
}
