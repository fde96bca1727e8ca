package api

import (
	"log"
	"net/http"

	"github.com/gitpranav05/droply/internal/auth"
	"github.com/gitpranav05/droply/internal/websocket"
)

// ServeWsHandler upgrades to a websocket and streams this owner's node
// events. Browsers can't set an Authorization header on the upgrade request,
// so the token travels as a query parameter.
func (s *Server) ServeWsHandler(w http.ResponseWriter, r *http.Request) {
	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		http.Error(w, "Missing token", http.StatusUnauthorized)
		return
	}

	claims, err := auth.VerifyJWT(tokenString, s.config.JWT.Secret)
	if err != nil {
		http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WARN: websocket upgrade failed: %v", err)
		return
	}

	client := websocket.NewClient(s.wsHub, conn, claims.UserID)
	s.wsHub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}
