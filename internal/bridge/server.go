// Package bridge exposes the data layer to the desktop frontend over a
// websocket carrying JSON request/response messages, replacing a direct
// in-process web-channel. The bridge validates message shapes only; it
// performs no authentication.
package bridge

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mhayashi-dev/prodtrack/internal/editlock"
	"github.com/mhayashi-dev/prodtrack/internal/pages"
	"github.com/mhayashi-dev/prodtrack/internal/query"
)

// request is one frontend call.
type request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// response answers one request. Either Result or Error is set.
type response struct {
	ID     string        `json:"id"`
	Result any           `json:"result,omitempty"`
	Error  *callError    `json:"error,omitempty"`
}

type callError struct {
	Message string `json:"message"`
}

// Server serves the websocket endpoint and dispatches calls.
type Server struct {
	engine   *query.Engine
	pages    *pages.Service
	locks    *editlock.Coordinator
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewServer wires the bridge over the given services. A nil logger
// disables connection logging.
func NewServer(engine *query.Engine, pagesSvc *pages.Service, locks *editlock.Coordinator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		engine: engine,
		pages:  pagesSvc,
		locks:  locks,
		logger: logger,
		upgrader: websocket.Upgrader{
			// The frontend loads from a file:// shell or a dev server;
			// the bridge binds to loopback, so any origin is accepted.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP handler exposing the websocket at /ws.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	s.logger.Info("frontend connected", "conn_id", connID, "remote", r.RemoteAddr)
	defer s.logger.Info("frontend disconnected", "conn_id", connID)

	var writeMu sync.Mutex
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Error("websocket read failed", "conn_id", connID, "error", err)
			}
			return
		}

		var req request
		if err := json.Unmarshal(data, &req); err != nil {
			s.logger.Error("unparseable message", "conn_id", connID, "error", err)
			continue
		}

		resp := response{ID: req.ID}
		result, err := s.dispatch(r.Context(), req.Method, req.Params)
		if err != nil {
			s.logger.Error("call failed", "conn_id", connID, "method", req.Method, "error", err)
			resp.Error = &callError{Message: err.Error()}
		} else {
			resp.Result = result
		}

		writeMu.Lock()
		writeErr := conn.WriteJSON(resp)
		writeMu.Unlock()
		if writeErr != nil {
			s.logger.Error("websocket write failed", "conn_id", connID, "error", writeErr)
			return
		}
	}
}
