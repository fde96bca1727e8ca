package api

import (
	"encoding/json"
	"net/http"

	"github.com/gitpranav05/droply/internal/config"
	"github.com/gitpranav05/droply/internal/database"
	"github.com/gitpranav05/droply/internal/storage"
	"github.com/gitpranav05/droply/internal/websocket"
)

type Server struct {
	config  *config.Config
	store   *database.Store
	storage storage.Backend
	wsHub   *websocket.Hub
}

func NewServer(cfg *config.Config, store *database.Store, storage storage.Backend, wsHub *websocket.Hub) *Server {
	return &Server{
		config:  cfg,
		store:   store,
		storage: storage,
		wsHub:   wsHub,
	}
}

// publishEvent pushes a journal-style event to the owner's live websocket
// clients. Best effort; the durable copy is the node_events table.
func (s *Server) publishEvent(ownerID string, eventType string, payload interface{}) {
	eventMsg := map[string]interface{}{"event_type": eventType, "payload": payload}
	eventBytes, err := json.Marshal(eventMsg)
	if err != nil {
		return
	}
	s.wsHub.PublishEvent(ownerID, eventBytes)
}

// @Summary      Health check
// @Tags         system
// @Success      200  {string}  string "OK"
// @Router       /health [get]
func (s *Server) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.store.GetPool().Ping(r.Context()); err != nil {
		http.Error(w, "database unreachable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
