// Package api serves decoded CAN logs over HTTP: in-memory sessions built
// from uploaded logs, one-shot preview and streaming exports, and an
// optional SQLite import store.
package api

import (
	"context"
	"log"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/cors"

	"github.com/banshee-data/canlog/internal/config"
	"github.com/banshee-data/canlog/internal/fsutil"
	"github.com/banshee-data/canlog/internal/httputil"
	"github.com/banshee-data/canlog/internal/session"
	"github.com/banshee-data/canlog/internal/store"
	"github.com/banshee-data/canlog/internal/timeutil"
	"github.com/banshee-data/canlog/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Options configures a Server. Only Config is required.
type Options struct {
	Config *config.Config
	// DataDir enables the "path" upload field, restricted to this directory.
	DataDir string
	// Store enables the /api/imports routes.
	Store *store.DB
	// FS reads server-side logs; defaults to the OS filesystem.
	FS fsutil.FileSystem
	// Clock drives session expiry; defaults to the real clock.
	Clock timeutil.Clock
}

type Server struct {
	cfg     *config.Config
	dataDir string
	store   *store.DB
	fs      fsutil.FileSystem
	clock   timeutil.Clock

	mu       sync.RWMutex
	sessions map[string]*entry
}

type entry struct {
	sess     *session.Session
	source   string
	created  time.Time
	lastUsed atomic.Int64 // unix nanoseconds
}

func (e *entry) touch(now time.Time) { e.lastUsed.Store(now.UnixNano()) }

func (e *entry) lastUsedAt() time.Time { return time.Unix(0, e.lastUsed.Load()).UTC() }

// SessionInfo describes a live session.
type SessionInfo struct {
	ID         string        `json:"id"`
	Source     string        `json:"source"`
	CreatedAt  time.Time     `json:"created_at"`
	LastUsedAt time.Time     `json:"last_used_at"`
	Stats      session.Stats `json:"stats"`
}

func NewServer(opts Options) *Server {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	fsys := opts.FS
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Server{
		cfg:      cfg,
		dataDir:  opts.DataDir,
		store:    opts.Store,
		fs:       fsys,
		clock:    clock,
		sessions: make(map[string]*entry),
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/version", s.showVersion)
	mux.HandleFunc("GET /api/config", s.showConfig)

	mux.HandleFunc("POST /api/sessions", s.createSession)
	mux.HandleFunc("GET /api/sessions", s.listSessions)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.deleteSession)
	mux.HandleFunc("GET /api/sessions/{id}/stats", s.sessionStats)
	mux.HandleFunc("GET /api/sessions/{id}/preview", s.sessionPreview)
	mux.HandleFunc("GET /api/sessions/{id}/signals", s.sessionSignals)
	mux.HandleFunc("GET /api/sessions/{id}/decimated", s.sessionDecimated)
	mux.HandleFunc("GET /api/sessions/{id}/summary", s.sessionSummary)
	mux.HandleFunc("GET /api/sessions/{id}/export.csv", s.sessionExportCSV)
	mux.HandleFunc("GET /api/sessions/{id}/chart.html", s.sessionChartHTML)
	mux.HandleFunc("GET /api/sessions/{id}/chart.png", s.sessionChartPNG)

	mux.HandleFunc("POST /api/preview", s.smartPreview)
	mux.HandleFunc("POST /api/stream/csv", s.streamCSV)
	mux.HandleFunc("POST /api/stream/decimated", s.streamDecimated)

	if s.store != nil {
		mux.HandleFunc("POST /api/imports", s.createImport)
		mux.HandleFunc("GET /api/imports", s.listImports)
		mux.HandleFunc("GET /api/imports/{id}/signals", s.importSignals)
		mux.HandleFunc("GET /api/imports/{id}/series", s.importSeries)
		mux.HandleFunc("DELETE /api/imports/{id}", s.deleteImport)
	}
	return mux
}

// Handler wraps ServeMux with CORS and request logging.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.GetCORSAllowedOrigins(),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Content-Disposition"},
	})
	return LoggingMiddleware(c.Handler(s.ServeMux()))
}

// Run serves until ctx is cancelled, then shuts down gracefully and frees
// every live session.
func (s *Server) Run(ctx context.Context, listen string) error {
	server := &http.Server{
		Addr:              listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()
	log.Printf("listening on %s", listen)

	if ttl := s.cfg.GetSessionIdleTimeout(); ttl > 0 {
		go s.expireSessions(ctx, ttl)
	}

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	s.closeSessions()
	return nil
}

func (s *Server) addSession(sess *session.Session, source string) *entry {
	now := s.clock.Now().UTC()
	e := &entry{sess: sess, source: source, created: now}
	e.touch(now)
	s.mu.Lock()
	s.sessions[sess.ID] = e
	s.mu.Unlock()
	return e
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*entry, bool) {
	id := r.PathValue("id")
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		httputil.NotFound(w, "no session "+id)
		return nil, false
	}
	e.touch(s.clock.Now())
	return e, true
}

// evictIdle frees every session unused for longer than ttl and returns how
// many were removed.
func (s *Server) evictIdle(ttl time.Duration) int {
	now := s.clock.Now()
	var idle []*entry
	s.mu.Lock()
	for id, e := range s.sessions {
		if now.Sub(e.lastUsedAt()) > ttl {
			idle = append(idle, e)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, e := range idle {
		e.sess.FreeMemory()
		log.Printf("session %s (%s) expired after %v idle", e.sess.ID, e.source, ttl)
	}
	return len(idle)
}

// expireSessions evicts idle sessions until ctx is done.
func (s *Server) expireSessions(ctx context.Context, ttl time.Duration) {
	interval := ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	tk := s.clock.NewTicker(interval)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C():
			s.evictIdle(ttl)
		}
	}
}

func (s *Server) closeSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.sessions {
		e.sess.FreeMemory()
		delete(s.sessions, id)
	}
}

func (e *entry) info() SessionInfo {
	return SessionInfo{
		ID:         e.sess.ID,
		Source:     e.source,
		CreatedAt:  e.created,
		LastUsedAt: e.lastUsedAt(),
		Stats:      e.sess.Stats(),
	}
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	out := make([]SessionInfo, 0, len(s.sessions))
	for _, e := range s.sessions {
		out = append(out, e.info())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	httputil.WriteJSONOK(w, out)
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]interface{}{
		"full_decode_max_bytes": s.cfg.GetFullDecodeMaxBytes(),
		"slice_fraction":        s.cfg.GetSliceFraction(),
		"slice_max_bytes":       s.cfg.GetSliceMaxBytes(),
		"preview_frames":        s.cfg.GetPreviewFrames(),
		"default_max_points":    s.cfg.GetDefaultMaxPoints(),
		"max_upload_bytes":      s.cfg.GetMaxUploadBytes(),
		"session_idle_timeout":  s.cfg.GetSessionIdleTimeout().String(),
		"server_side_paths":     s.dataDir != "",
		"imports_enabled":       s.store != nil,
	})
}
