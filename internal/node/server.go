package node

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"ringkv/internal/replication"
	"ringkv/internal/ring"
	"ringkv/internal/telemetry"
)

const maxValueBytes = 1 << 20

// Server exposes a node over HTTP and serializes every access to it, so the
// ticker and client requests can run on different goroutines.
type Server struct {
	mu       sync.Mutex
	node     *Node
	outcomes *Outcomes
	logger   *zap.Logger
}

// NewServer wraps n. outcomes may be nil, in which case /tx is not served.
func NewServer(n *Node, outcomes *Outcomes, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{node: n, outcomes: outcomes, logger: logger}
}

// Start starts the node.
func (s *Server) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.node.Start()
}

// Tick runs one protocol round on the node.
func (s *Server) Tick() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.node.Tick()
}

// Handler returns the client API:
//
//	POST   /kv/{key}  create (body is the value)
//	PUT    /kv/{key}  update
//	GET    /kv/{key}  read
//	DELETE /kv/{key}  delete
//	GET    /tx/{id}   outcome of a transaction
//	GET    /members   membership table
//	GET    /healthz
//
// Operations answer 202 with the transaction id; the outcome is polled
// through /tx.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /kv/{key}", telemetry.Instrument("create", http.HandlerFunc(s.create)))
	mux.Handle("PUT /kv/{key}", telemetry.Instrument("update", http.HandlerFunc(s.update)))
	mux.Handle("GET /kv/{key}", telemetry.Instrument("read", http.HandlerFunc(s.read)))
	mux.Handle("DELETE /kv/{key}", telemetry.Instrument("delete", http.HandlerFunc(s.del)))
	mux.HandleFunc("GET /tx/{id}", s.transaction)
	mux.HandleFunc("GET /members", s.members)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	value, ok := readValue(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	id, err := s.node.Create(r.PathValue("key"), value)
	s.mu.Unlock()
	s.accepted(w, id, err)
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	value, ok := readValue(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	id, err := s.node.Update(r.PathValue("key"), value)
	s.mu.Unlock()
	s.accepted(w, id, err)
}

func (s *Server) read(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	id, err := s.node.Read(r.PathValue("key"))
	s.mu.Unlock()
	s.accepted(w, id, err)
}

func (s *Server) del(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	id, err := s.node.Delete(r.PathValue("key"))
	s.mu.Unlock()
	s.accepted(w, id, err)
}

// readValue reads the request body. An empty value would be indistinguishable
// from a miss on read, so it is rejected.
func readValue(w http.ResponseWriter, r *http.Request) (string, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxValueBytes))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	if len(body) == 0 {
		http.Error(w, "value cannot be empty", http.StatusBadRequest)
		return "", false
	}
	return string(body), true
}

func (s *Server) accepted(w http.ResponseWriter, id int64, err error) {
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusAccepted, struct {
			TxID int64 `json:"tx"`
		}{id})
	case errors.Is(err, replication.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ring.ErrUnavailable), errors.Is(err, ErrFailed):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		s.logger.Error("client operation failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) transaction(w http.ResponseWriter, r *http.Request) {
	if s.outcomes == nil {
		http.NotFound(w, r)
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid transaction id", http.StatusBadRequest)
		return
	}
	e, ok := s.outcomes.Lookup(id)
	if !ok {
		http.NotFound(w, r)
		return
	}

	type resp struct {
		TxID    int64  `json:"tx"`
		Op      string `json:"op"`
		Key     string `json:"key"`
		Value   string `json:"value,omitempty"`
		Outcome string `json:"outcome"`
		At      int64  `json:"at"`
	}
	s.writeJSON(w, http.StatusOK, resp{
		TxID:    e.TxID,
		Op:      e.Op.String(),
		Key:     e.Key,
		Value:   e.Value,
		Outcome: string(e.Kind),
		At:      int64(e.At),
	})
}

func (s *Server) members(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	entries := s.node.Members()
	state := s.node.State()
	s.mu.Unlock()

	type member struct {
		Address    string `json:"address"`
		Heartbeat  int64  `json:"heartbeat"`
		LastUpdate int64  `json:"last_update"`
	}
	out := struct {
		State   string   `json:"state"`
		Members []member `json:"members"`
	}{State: state.String(), Members: make([]member, 0, len(entries))}
	for _, e := range entries {
		out.Members = append(out.Members, member{
			Address:    e.Address.String(),
			Heartbeat:  e.Heartbeat,
			LastUpdate: int64(e.LastUpdate),
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("encoding response", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
