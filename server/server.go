// Package server exposes a memory.Store to other processes over a
// WebSocket carrying JSON requests.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/becomeliminal/nim-memory/memory"
)

const maxMessageSize = 16 << 20

var (
	errUnknownOp          = errors.New("unknown op")
	errCollectionRequired = errors.New("collection is required")
)

// Server serves one Store.
type Server struct {
	store    memory.Store
	logger   *memory.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *memory.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithCheckOrigin replaces the origin check used during the upgrade.
// The default accepts same-origin requests only.
func WithCheckOrigin(check func(r *http.Request) bool) Option {
	return func(s *Server) {
		s.upgrader.CheckOrigin = check
	}
}

// New creates a Server for store.
func New(store memory.Store, opts ...Option) *Server {
	s := &Server{
		store:  store,
		logger: memory.NoopLogger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		conns: make(map[*websocket.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("server")
	return s
}

// Handler returns the HTTP routes: /health and /ws.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// ListenAndServe serves on addr until ctx is done, then closes open
// WebSocket connections and shuts the listener down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen on %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.closeConns()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) track(conn *websocket.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Warn("upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	s.track(conn)
	defer func() {
		s.untrack(conn)
		_ = conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	s.logger.Debug("client connected", "remote", r.RemoteAddr)

	// Requests on one connection are served in order; the connection has
	// a single writer.
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("read failed", "remote", r.RemoteAddr, "error", err)
			}
			return
		}

		var resp Response
		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			resp = failure("", fmt.Errorf("decode request: %w", err))
		} else {
			resp = s.Dispatch(r.Context(), req)
		}

		if err := conn.WriteJSON(resp); err != nil {
			s.logger.Warn("write failed", "remote", r.RemoteAddr, "error", err)
			return
		}
	}
}

// Dispatch serves a single request against the store.
func (s *Server) Dispatch(ctx context.Context, req Request) Response {
	resp := Response{ID: req.ID}

	if req.Op != OpCollections && req.Collection == "" {
		if req.Op == "" || !knownOp(req.Op) {
			return failure(req.ID, fmt.Errorf("%w: %q", errUnknownOp, req.Op))
		}
		return failure(req.ID, errCollectionRequired)
	}

	switch req.Op {
	case OpSave:
		resp.OK = s.store.SaveInformation(ctx, req.Collection, req.RecordID, req.Text, req.Metadata, req.Embedding)
	case OpGet:
		resp.Record, resp.OK = s.store.GetInformation(ctx, req.Collection, req.RecordID)
	case OpRelevant:
		resp.Results = s.store.GetRelevant(ctx, req.Collection, req.Query, req.Limit, req.MinScore, req.Embedding)
		resp.OK = true
	case OpSearch:
		resp.Results = s.store.SearchByVector(ctx, req.Collection, req.Embedding, req.Limit, req.MinScore)
		resp.OK = true
	case OpRemove:
		resp.OK = s.store.RemoveInformation(ctx, req.Collection, req.RecordID)
	case OpCreate:
		resp.OK = s.store.CreateCollection(ctx, req.Collection, req.Metadata)
	case OpDrop:
		resp.OK = s.store.RemoveCollection(ctx, req.Collection)
	case OpExists:
		resp.OK = s.store.DoesCollectionExist(ctx, req.Collection)
	case OpCollections:
		resp.Collections = s.store.GetCollections(ctx)
		resp.OK = true
	case OpInfo:
		resp.Info, resp.OK = s.store.GetCollectionInfo(ctx, req.Collection)
	case OpCount:
		count := s.store.GetInformationCount(ctx, req.Collection)
		resp.Count = &count
		resp.OK = true
	case OpBatchSave:
		resp.Batch = s.store.BatchSave(ctx, req.Collection, req.Items)
		resp.OK = memory.AnySaved(resp.Batch)
	default:
		return failure(req.ID, fmt.Errorf("%w: %q", errUnknownOp, req.Op))
	}
	return resp
}

func knownOp(op string) bool {
	switch op {
	case OpSave, OpGet, OpRelevant, OpSearch, OpRemove, OpCreate, OpDrop,
		OpExists, OpCollections, OpInfo, OpCount, OpBatchSave:
		return true
	}
	return false
}
