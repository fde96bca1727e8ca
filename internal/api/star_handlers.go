package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// @Summary      Star a node
// @Tags         starred
// @Produce      json
// @Security     BearerAuth
// @Param        nodeId  path      string  true  "Node id"
// @Success      200     {object}  models.Node
// @Failure      404     {string}  string "Not Found"
// @Router       /nodes/{nodeId}/star [post]
func (s *Server) StarNodeHandler(w http.ResponseWriter, r *http.Request) {
	s.setStarred(w, r, true, "node_starred")
}

// @Summary      Unstar a node
// @Tags         starred
// @Produce      json
// @Security     BearerAuth
// @Param        nodeId  path      string  true  "Node id"
// @Success      200     {object}  models.Node
// @Failure      404     {string}  string "Not Found"
// @Router       /nodes/{nodeId}/star [delete]
func (s *Server) UnstarNodeHandler(w http.ResponseWriter, r *http.Request) {
	s.setStarred(w, r, false, "node_unstarred")
}

func (s *Server) setStarred(w http.ResponseWriter, r *http.Request, starred bool, eventType string) {
	claims := GetUserFromContext(r.Context())
	nodeID := chi.URLParam(r, "nodeId")

	node, err := s.store.SetStarred(r.Context(), nodeID, claims.UserID, starred)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	s.publishEvent(claims.UserID, eventType, node)
	writeJSON(w, http.StatusOK, node)
}

// @Summary      List starred nodes
// @Description  All starred nodes across the hierarchy, excluding anything in the trash.
// @Tags         starred
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}  models.Node
// @Router       /starred [get]
func (s *Server) ListStarredHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())
	limit, offset := parsePagination(r)

	nodes, err := s.store.ListStarred(r.Context(), claims.UserID, limit, offset)
	if err != nil {
		http.Error(w, "Failed to list starred nodes", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, nodes)
}
