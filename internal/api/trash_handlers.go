package api

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// @Summary      Move a node to trash
// @Description  Marks the node as trashed. Its descendants disappear from listings but keep their own flags, so restoring the node brings them back unchanged.
// @Tags         trash
// @Produce      json
// @Security     BearerAuth
// @Param        nodeId  path      string  true  "Node id"
// @Success      200     {object}  models.Node
// @Failure      404     {string}  string "Not Found"
// @Router       /nodes/{nodeId} [delete]
func (s *Server) TrashNodeHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())
	nodeID := chi.URLParam(r, "nodeId")

	node, err := s.store.TrashNode(r.Context(), nodeID, claims.UserID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	s.publishEvent(claims.UserID, "node_trashed", node)
	writeJSON(w, http.StatusOK, node)
}

// @Summary      Restore a node from trash
// @Description  Clears the node's own trash flag. If an ancestor is still trashed the node stays hidden until that ancestor is restored too.
// @Tags         trash
// @Produce      json
// @Security     BearerAuth
// @Param        nodeId  path      string  true  "Node id"
// @Success      200     {object}  models.Node
// @Failure      404     {string}  string "Not Found"
// @Router       /nodes/{nodeId}/restore [post]
func (s *Server) RestoreNodeHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())
	nodeID := chi.URLParam(r, "nodeId")

	node, err := s.store.RestoreNode(r.Context(), nodeID, claims.UserID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	s.publishEvent(claims.UserID, "node_restored", node)
	writeJSON(w, http.StatusOK, node)
}

// @Summary      List trashed nodes
// @Description  Nodes whose own trash flag is set, most recently trashed first. Descendants of trashed folders are not listed separately.
// @Tags         trash
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}  models.Node
// @Router       /trash [get]
func (s *Server) ListTrashHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())
	limit, offset := parsePagination(r)

	nodes, err := s.store.ListTrash(r.Context(), claims.UserID, limit, offset)
	if err != nil {
		http.Error(w, "Failed to list trash", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, nodes)
}

// @Summary      Empty the trash
// @Description  Permanently deletes every trashed node and its subtree, then releases the stored objects.
// @Tags         trash
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  DeleteResponse
// @Router       /trash [delete]
func (s *Server) PurgeTrashHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())

	refs, err := s.store.PurgeTrash(r.Context(), claims.UserID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	storageErrors := 0
	for _, ref := range refs {
		if err := s.storage.Delete(ref); err != nil {
			log.Printf("WARN: failed to delete object %s during trash purge: %v", ref, err)
			storageErrors++
		}
	}

	s.publishEvent(claims.UserID, "trash_purged", map[string]interface{}{"released_objects": len(refs)})
	writeJSON(w, http.StatusOK, DeleteResponse{ReleasedObjects: len(refs), StorageErrors: storageErrors})
}
