// Package server exposes editing sessions over HTTP.
package server

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/pageset/internal/compiler"
	"github.com/local/pageset/internal/config"
	"github.com/local/pageset/internal/filetype"
	"github.com/local/pageset/internal/imagerender"
	"github.com/local/pageset/internal/limiter"
	"github.com/local/pageset/internal/metrics"
	"github.com/local/pageset/internal/session"
	"github.com/local/pageset/internal/statuscheck"
	"github.com/local/pageset/internal/storage"
	"github.com/local/pageset/internal/store"
)

// ResultStore keeps compiled documents until they are downloaded.
type ResultStore interface {
	Save(ctx context.Context, r store.Result) error
	Get(ctx context.Context, id string) (store.Result, error)
	Delete(ctx context.Context, id string) error
}

// Uploader persists compiled documents. *storage.S3Client satisfies it.
type Uploader interface {
	ListNextVersion(ctx context.Context, baseKey string) (int, error)
	UploadFile(ctx context.Context, key string, data []byte, metadata *storage.FileMetadata) (string, error)
}

// Fetcher loads a source document by reference. *source.Fetcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// Deps are the collaborators a Server drives. Fetcher, Uploads, Render,
// Status and Limiter are optional.
type Deps struct {
	Parse      func(data []byte) (compiler.Layout, error)
	Serializer compiler.Serializer
	Render     func(ctx context.Context, data []byte, pageCount int) ([]imagerender.Thumbnail, error)
	Detector   *filetype.Detector
	Fetcher    Fetcher
	Results    ResultStore
	Uploads    Uploader
	Status     *statuscheck.Checker
	Limiter    *limiter.Adaptive
	NewID      func() string
}

type entry struct {
	mu      sync.Mutex
	sess    *session.Session
	thumbs  map[int][]byte
	touched atomic.Int64
}

func (e *entry) touch(now time.Time) { e.touched.Store(now.UnixNano()) }

// Server holds the live sessions. Each session is serialized by its own lock.
type Server struct {
	cfg  config.Config
	deps Deps

	mu       sync.Mutex
	sessions map[string]*entry
}

// New creates a Server.
func New(cfg config.Config, deps Deps) *Server {
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	if deps.Detector == nil {
		deps.Detector = filetype.New()
	}
	return &Server{cfg: cfg, deps: deps, sessions: make(map[string]*entry)}
}

// RegisterRoutes attaches the HTTP API to mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /status", s.handleStatus)

	mux.HandleFunc("POST /sessions", s.handleCreateSession)
	mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("GET /sessions/{id}/thumbnails/{index}", s.handleThumbnail)
	mux.HandleFunc("POST /sessions/{id}/ops", s.handleOp)
	mux.HandleFunc("POST /sessions/{id}/selection", s.handleSelection)
	mux.HandleFunc("POST /sessions/{id}/compile", s.handleCompile)

	mux.HandleFunc("GET /results/{id}", s.handleGetResult)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Status == nil {
		http.Error(w, "status checks not configured", http.StatusNotImplemented)
		return
	}
	sum := s.deps.Status.Summary(r.Context())
	code := http.StatusOK
	if !sum.Healthy() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, sum)
}

func (s *Server) add(e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[e.sess.ID()] = e
	metrics.SetActiveSessions(len(s.sessions))
}

// acquire returns the session locked; callers must unlock it.
func (s *Server) acquire(id string) (*entry, error) {
	s.mu.Lock()
	e, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return nil, errSessionNotFound
	}
	e.mu.Lock()
	e.touch(time.Now())
	return e, nil
}

func (s *Server) remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	metrics.SetActiveSessions(len(s.sessions))
	return true
}

// Len returns the number of live sessions.
func (s *Server) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep drops sessions idle for longer than the configured timeout and
// returns how many it removed.
func (s *Server) Sweep(now time.Time) int {
	idle := s.cfg.Server.SessionIdle
	if idle <= 0 {
		return 0
	}
	cutoff := now.Add(-idle).UnixNano()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, e := range s.sessions {
		if e.touched.Load() < cutoff {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		metrics.SetActiveSessions(len(s.sessions))
		log.Info().Int("removed", removed).Int("active", len(s.sessions)).Msg("expired idle sessions")
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *Server) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Sweep(now)
		}
	}
}
