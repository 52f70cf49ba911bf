package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/user/boothmesh/logger"
)

const pingInterval = 20 * time.Second

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

// Server exposes GET /events (websocket) and GET /snapshot
type Server struct {
	bus  *Bus
	http *http.Server
}

// NewServer creates a server for bus listening on addr
func NewServer(bus *Bus, addr string) *Server {
	s := &Server{bus: bus}
	s.http = &http.Server{Addr: addr, Handler: s.Handler()}
	return s
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", s.eventStream)
	mux.HandleFunc("/snapshot", s.snapshot)
	return mux
}

// Run serves until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() { errc <- s.http.ListenAndServe() }()
	logger.Info("monitor", "listening on %s", s.http.Addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return ctx.Err()
	}
}

func (s *Server) eventStream(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("monitor", "ws upgrade: %v", err)
		return
	}
	defer conn.Close()

	id, ch, unsub := s.bus.Subscribe()
	defer unsub()
	logger.Debug("monitor", "subscriber %s connected", id[:8])

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(evt); err != nil {
				logger.Debug("monitor", "subscriber %s write: %v", id[:8], err)
				return
			}
		case <-ping.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

// snapshot returns the latest admission snapshot of every booth, or of the
// booth named by ?node=
func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "GET only"})
		return
	}

	snaps := s.bus.Snapshots()
	if q := r.URL.Query().Get("node"); q != "" {
		id, err := strconv.Atoi(q)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "node must be a number"})
			return
		}
		snap, ok := snaps[id]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no snapshot for node"})
			return
		}
		snaps = map[int]*structpb.Struct{id: snap}
	}

	out := make(map[string]json.RawMessage, len(snaps))
	for id, snap := range snaps {
		raw, err := protojson.Marshal(snap)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		out[strconv.Itoa(id)] = raw
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
