package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/claude/repcoach/internal/metrics"
	"github.com/claude/repcoach/internal/session"
)

// maxBodyBytes caps frame batches posted to the ingest endpoint.
const maxBodyBytes = 8 << 20

// Server holds dependencies for HTTP handlers.
type Server struct {
	session *session.Session
	log     *slog.Logger
	metrics *metrics.Manager
	apiKey  string
	ts      WhoIsClient
	router  chi.Router
}

// New creates a new Server with all routes configured.
func New(sess *session.Session, apiKey string, log *slog.Logger, m *metrics.Manager) *Server {
	s := &Server{
		session: sess,
		log:     log,
		metrics: m,
		apiKey:  apiKey,
		router:  chi.NewRouter(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// SetTailscale enables caller identification through the tailnet. Without
// it every caller is the local dev user. Call before serving.
func (s *Server) SetTailscale(lc WhoIsClient) {
	s.ts = lc
}

// Mount attaches an extra handler, such as the metrics exporter or the MCP
// endpoint, under pattern.
func (s *Server) Mount(pattern string, h http.Handler) {
	s.router.Mount(pattern, h)
}

func (s *Server) routes() {
	s.router.Use(PanicRecovery(s.log, s.metrics))
	s.router.Use(RequestMetrics(s.metrics))
	s.router.Use(RequestLogging(s.log))
	s.router.Use(CORS)
	s.router.Use(s.identity)

	s.router.Get("/healthz", s.handleHealth)

	// Write endpoints (API key required)
	s.router.Group(func(r chi.Router) {
		r.Use(APIKeyAuth(s.apiKey))
		r.Post("/api/v1/frames", s.handleFrames)
		r.Put("/api/v1/session/exercise", s.handleSetExercise)
	})

	// Read endpoints (no auth, tsnet handles access)
	s.router.Get("/api/v1/session", s.handleSession)
	s.router.Get("/api/v1/reps/recent", s.handleRecentReps)
	s.router.Get("/api/v1/exercises", s.handleExercises)
	s.router.Get("/api/v1/me", s.handleMe)
}

func (s *Server) identity(next http.Handler) http.Handler {
	dev := DevIdentity(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.ts == nil {
			dev.ServeHTTP(w, r)
			return
		}
		TailscaleIdentity(s.ts, s.log)(next).ServeHTTP(w, r)
	})
}
