// Package server exposes a repository's read path over HTTP and pushes
// live ref updates to WebSocket clients when the repository changes on
// disk.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/pkarpovich/gitscope/internal/gitcore"
)

const shutdownTimeout = 5 * time.Second

// Server serves the read API for a single repository.
type Server struct {
	addr   string
	repo   *gitcore.Repository
	logger *slog.Logger

	httpServer *http.Server
	diffCache  *LRUCache[json.RawMessage]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	clients map[*client]bool

	// lastState remembers the most recent broadcast so watcher events
	// that change nothing visible do not wake clients.
	lastState []byte
}

// New creates a Server for repo listening on addr.
func New(repo *gitcore.Repository, addr string, logger *slog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:      addr,
		repo:      repo,
		logger:    logger,
		diffCache: NewLRUCache[json.RawMessage](256),
		ctx:       ctx,
		cancel:    cancel,
		clients:   make(map[*client]bool),
	}
}

// Start begins watching the repository and serving HTTP. It blocks until
// the listener fails or Shutdown is called.
func (s *Server) Start() error {
	if err := s.startWatcher(); err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("Serving repository read API", "addr", s.addr, "repo", s.repo.Name())
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the watcher, disconnects clients, and drains the HTTP
// server.
func (s *Server) Shutdown() error {
	s.cancel()

	s.mu.Lock()
	for c := range s.clients {
		c.close()
	}
	s.clients = make(map[*client]bool)
	s.mu.Unlock()

	var err error
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err = s.httpServer.Shutdown(ctx)
	}

	s.wg.Wait()
	return err
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/refs", s.handleRefs)
	mux.HandleFunc("GET /api/head", s.handleHead)
	mux.HandleFunc("GET /api/log", s.handleLog)
	mux.HandleFunc("GET /api/commit/{hash}", s.handleCommit)
	mux.HandleFunc("GET /api/diff/{hash}", s.handleDiff)
	mux.HandleFunc("GET /api/tree/{hash}", s.handleTree)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	return mux
}

// refsState is the wire snapshot pushed to clients and served by
// /api/refs-adjacent endpoints.
type refsState struct {
	Head     string                      `json:"head,omitempty"`
	Branch   string                      `json:"branch,omitempty"`
	Detached bool                        `json:"detached"`
	Refs     map[string][]gitcore.GitRef `json:"refs"`
	States   map[string]bool             `json:"states,omitempty"`
}

// currentState assembles the broadcast snapshot from the repository.
func (s *Server) currentState(ctx context.Context) (*refsState, error) {
	refs, err := s.repo.GetRefs(ctx)
	if err != nil {
		return nil, err
	}

	state := &refsState{
		Refs:     make(map[string][]gitcore.GitRef, len(refs)),
		Detached: true,
	}
	for kind, list := range refs {
		state.Refs[kind.String()] = list
	}

	if head, found, err := s.repo.GetHEAD(ctx); err == nil && found {
		state.Head = string(head)
	}
	if branch, ok := s.repo.GetHEADBranch(ctx); ok {
		state.Branch = branch
		state.Detached = false
	}

	states := make(map[string]bool)
	if s.repo.MergeInProgress() {
		states["merge"] = true
	}
	if s.repo.CherryPickInProgress() {
		states["cherryPick"] = true
	}
	if s.repo.RevertInProgress() {
		states["revert"] = true
	}
	if len(states) > 0 {
		state.States = states
	}

	return state, nil
}
