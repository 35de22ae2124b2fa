// Package relay is the HTTP server that fronts the web client: it serves the
// static build, proxies backend calls and performs blob uploads for clients
// that cannot reach storage directly.
package relay

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/fakeyudi/contractdesk/internal/config"
)

// Server holds the relay's handlers and their shared state.
type Server struct {
	cfg      config.Relay
	upstream *http.Client
	storage  *http.Client
	compares *cache.Cache // nil when caching is disabled
	log      *zap.Logger
	now      func() time.Time
}

// New returns a Server for cfg. A nil logger is allowed.
func New(cfg config.Relay, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		cfg:      cfg,
		upstream: &http.Client{Timeout: cfg.UpstreamTimeout},
		storage:  &http.Client{Timeout: cfg.UpstreamTimeout},
		log:      log,
		now:      time.Now,
	}
	if cfg.CompareCacheTTL > 0 {
		s.compares = cache.New(cfg.CompareCacheTTL, 2*cfg.CompareCacheTTL)
	}
	return s
}

// Handler returns the relay's routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/vmp_agent", s.handleProxy)
		r.Post("/blob-upload", s.handleBlobUpload)
		r.Get("/health", s.handleHealth)
	})
	r.Get("/*", s.handleStatic)

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339),
	})
}

// handleStatic serves files of the static build. Unknown paths get
// index.html so client-side routes resolve.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	root := s.cfg.StaticDir
	rel := filepath.FromSlash(strings.TrimPrefix(filepath.ToSlash(filepath.Clean("/"+r.URL.Path)), "/"))
	if rel != "" && rel != "." {
		p := filepath.Join(root, rel)
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			http.ServeFile(w, r, p)
			return
		}
	}
	index := filepath.Join(root, "index.html")
	if _, err := os.Stat(index); err != nil {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, index)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// compareKey identifies a cached comparison within a credential scope.
func compareKey(scope, sessionID, category string) string {
	return scope + "|" + sessionID + "|" + category
}

// credentialScope hashes an Authorization header into a cache scope. An
// empty header has no scope and is never cached.
func credentialScope(authorization string) string {
	if authorization == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(authorization))
	return hex.EncodeToString(sum[:])
}

// evict drops every cached comparison of sessionID within scope.
func (s *Server) evict(scope, sessionID string) {
	if s.compares == nil || scope == "" || sessionID == "" {
		return
	}
	prefix := compareKey(scope, sessionID, "")
	for k := range s.compares.Items() {
		if strings.HasPrefix(k, prefix) {
			s.compares.Delete(k)
		}
	}
}
