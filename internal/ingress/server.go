// Package ingress implements the Ingress (C6): the client-facing and
// internal peer-to-peer HTTP surface. Routing and CORS handling are
// grounded on torua's cmd/coordinator/main.go (ServeMux registration,
// context-bounded outbound forwarding); request correlation IDs and
// structured logging generalize that pattern with github.com/google/uuid
// and go.uber.org/zap, which the teacher's own go.mod already pulls in
// transitively through etcd.
package ingress

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"meshcache/internal/cluster"
	"meshcache/internal/config"
	"meshcache/internal/dispatch"
	"meshcache/internal/store"
)

// Server is the node's single HTTP handler, combining the local store, the
// dispatcher, the outbound RPC client, and the rate limiter into the
// request flow SPEC_FULL.md §4.6 describes.
type Server struct {
	cfg        *config.Config
	store      *store.Store
	dispatcher *dispatch.Dispatcher
	rpc        *cluster.RPCClient
	stats      *cluster.StatTable
	limiter    *RateLimiter
	logger     *zap.Logger
	startedAt  time.Time
	mux        *http.ServeMux
}

// New wires every dependency into a ready-to-serve Server.
func New(cfg *config.Config, st *store.Store, d *dispatch.Dispatcher, rpc *cluster.RPCClient, stats *cluster.StatTable, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:        cfg,
		store:      st,
		dispatcher: d,
		rpc:        rpc,
		stats:      stats,
		limiter:    NewRateLimiter(cfg.RateLimit),
		logger:     logger,
		startedAt:  time.Now(),
	}
	s.mux = s.routes()
	return s
}

// Handler returns the fully wrapped http.Handler (CORS, correlation ID,
// and logging middleware applied) ready to pass to an *http.Server.
func (s *Server) Handler() http.Handler {
	return withCORS(withRequestLog(s.logger, s.mux))
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /{$}", s.handleWriteBatch)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /internal/get/{key}", s.handleInternalGet)
	mux.HandleFunc("POST /internal/set", s.handleInternalSet)
	mux.HandleFunc("DELETE /internal/delete/{key}", s.handleInternalDelete)
	mux.HandleFunc("GET /{key}", s.handleGet)
	mux.HandleFunc("DELETE /{key}", s.handleDelete)
	return mux
}

// --- client-facing handlers ---

func (s *Server) handleWriteBatch(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r) {
		return
	}
	body, err := decodeBody(r)
	if err != nil || len(body) == 0 {
		writeError(w, KindInvalidRequest, fmt.Errorf("empty or invalid request body"))
		return
	}

	local := make(map[string]store.Value)
	remote := make(map[string]map[string]store.Value)
	for key, raw := range body {
		target, ok := s.dispatcher.Owner(key)
		if !ok {
			writeError(w, KindInternal, fmt.Errorf("hash ring is empty"))
			return
		}
		v := store.NewValue(raw)
		if target.Local {
			local[key] = v
			continue
		}
		if remote[target.Peer] == nil {
			remote[target.Peer] = make(map[string]store.Value)
		}
		remote[target.Peer][key] = v
	}

	if len(local) > 0 {
		s.store.SetMany(local)
	}

	for peer, entries := range remote {
		if err := s.rpc.SetBatch(r.Context(), peer, entries); err != nil {
			s.requestLogger(r).Error("remote fan-out failed", zap.String("peer", peer), zap.Error(err))
			writeError(w, KindUpstreamFailure, err)
			return
		}
	}

	writeLiteral(w, http.StatusOK, `"OK"`)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r) {
		return
	}
	key := r.PathValue("key")
	if key == "" {
		writeError(w, KindInvalidRequest, fmt.Errorf("missing key"))
		return
	}

	target, ok := s.dispatcher.Owner(key)
	if !ok {
		writeError(w, KindInternal, fmt.Errorf("hash ring is empty"))
		return
	}

	var value store.Value
	var found bool
	if target.Local {
		value, found = s.store.Get(key)
	} else {
		value, found = s.rpc.Get(r.Context(), target.Peer, key)
	}
	if !found {
		writeError(w, KindNotFound, fmt.Errorf("key %q not found", key))
		return
	}
	writeJSON(w, http.StatusOK, map[string]store.Value{key: value})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r) {
		return
	}
	key := r.PathValue("key")
	if key == "" {
		writeError(w, KindInvalidRequest, fmt.Errorf("missing key"))
		return
	}

	target, ok := s.dispatcher.Owner(key)
	if !ok {
		writeError(w, KindInternal, fmt.Errorf("hash ring is empty"))
		return
	}

	var count int
	if target.Local {
		if s.store.Delete(key) {
			count = 1
		}
	} else {
		n, err := s.rpc.Delete(r.Context(), target.Peer, key)
		if err != nil {
			writeError(w, KindUpstreamFailure, err)
			return
		}
		count = n
	}
	writeLiteral(w, http.StatusOK, fmt.Sprintf(`"%d"`, count))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"node":   s.cfg.NodeID,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"node":          s.cfg.NodeID,
		"wall_clock_ms": time.Now().UnixMilli(),
		"cache_size":    s.store.Len(),
		"max_entries":   s.cfg.MaxEntries,
		"peers":         s.stats.Snapshot(),
	})
}

// --- internal peer-to-peer handlers: these ARE the authoritative node for
// the key, so they never consult the Dispatcher; they only touch the
// local Store. ---

func (s *Server) handleInternalGet(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		writeError(w, KindInvalidRequest, fmt.Errorf("missing key"))
		return
	}
	value, ok := s.store.Get(key)
	if !ok {
		writeError(w, KindNotFound, fmt.Errorf("key %q not found", key))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(value.Raw())
}

func (s *Server) handleInternalSet(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		writeError(w, KindInvalidRequest, err)
		return
	}
	entries := make(map[string]store.Value, len(body))
	for k, raw := range body {
		entries[k] = store.NewValue(raw)
	}
	s.store.SetMany(entries)
	writeLiteral(w, http.StatusOK, `"OK"`)
}

func (s *Server) handleInternalDelete(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		writeError(w, KindInvalidRequest, fmt.Errorf("missing key"))
		return
	}
	count := 0
	if s.store.Delete(key) {
		count = 1
	}
	writeLiteral(w, http.StatusOK, fmt.Sprintf(`"%d"`, count))
}

// --- shared plumbing ---

// admit applies the rate-limit gate; it writes a 429 and returns false if
// the current window's budget is exhausted.
func (s *Server) admit(w http.ResponseWriter, r *http.Request) bool {
	if !s.limiter.Allow() {
		writeError(w, KindRateLimited, fmt.Errorf("rate limit exceeded"))
		return false
	}
	return true
}

func decodeBody(r *http.Request) (map[string]json.RawMessage, error) {
	defer r.Body.Close()
	var body map[string]json.RawMessage
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&body); err != nil {
		return nil, err
	}
	return body, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeLiteral(w http.ResponseWriter, status int, literal string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(literal))
}

func writeError(w http.ResponseWriter, kind Kind, err error) {
	ierr := NewError(kind, err)
	if kind == KindNotFound {
		w.WriteHeader(ierr.Kind.StatusCode())
		return
	}
	writeJSON(w, ierr.Kind.StatusCode(), map[string]string{"error": err.Error()})
}

// --- middleware ---

type ctxKey int

const requestIDKey ctxKey = iota

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func withRequestLog(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		logger.Debug("request received",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
		)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	id, _ := r.Context().Value(requestIDKey).(string)
	return s.logger.With(zap.String("request_id", id), zap.String("node_id", s.cfg.NodeID))
}
