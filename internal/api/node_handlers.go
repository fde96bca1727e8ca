package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jaevor/go-nanoid"

	"github.com/gitpranav05/droply/internal/database"
)

const defaultPageSize = 100

func parsePagination(r *http.Request) (limit int, offset int) {
	limit = defaultPageSize
	offset = 0

	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return limit, offset
}

// parseOptionalParentID validates a parent id from a query or form value.
// Empty means root.
func parseOptionalParentID(raw string) (*string, error) {
	if raw == "" {
		return nil, nil
	}
	if _, err := uuid.Parse(raw); err != nil {
		return nil, fmt.Errorf("invalid parent_id format")
	}
	return &raw, nil
}

// generateStorageRef mints the opaque key a file's bytes live under in the
// object storage backend. Distinct from the node id: replacing content swaps
// the ref but keeps the node.
func generateStorageRef() (string, error) {
	gen, err := nanoid.Standard(21)
	if err != nil {
		return "", fmt.Errorf("failed to initialize nanoid generator: %w", err)
	}
	return gen(), nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeStoreError maps the store's error taxonomy onto HTTP statuses. All of
// them are caller-recoverable.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrNodeNotFound):
		http.Error(w, "Node not found or you do not have permission to access it", http.StatusNotFound)
	case errors.Is(err, database.ErrInvalidParent):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, database.ErrInvalidMetadata):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, database.ErrInvalidName):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, database.ErrCycleDetected):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, database.ErrTransactionConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, database.ErrStorageUnavailable):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

type CreateFolderRequest struct {
	Name     string  `json:"name"`
	ParentID *string `json:"parent_id"`
}

// @Summary      Create a folder
// @Tags         nodes
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      CreateFolderRequest  true  "Folder name and optional parent"
// @Success      201      {object}  models.Node
// @Failure      400      {string}  string "Bad Request"
// @Failure      401      {string}  string "Unauthorized"
// @Router       /nodes/folder [post]
func (s *Server) CreateFolderHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())

	var req CreateFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if strings.TrimSpace(req.Name) == "" {
		http.Error(w, "Folder name cannot be empty", http.StatusBadRequest)
		return
	}

	if req.ParentID != nil {
		if _, err := uuid.Parse(*req.ParentID); err != nil {
			http.Error(w, "Invalid parent_id format", http.StatusBadRequest)
			return
		}
	}

	params := database.CreateNodeParams{
		ID:       uuid.NewString(),
		OwnerID:  claims.UserID,
		ParentID: req.ParentID,
		Name:     req.Name,
		IsFolder: true,
	}

	node, err := s.store.CreateNode(r.Context(), params)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	s.publishEvent(claims.UserID, "node_created", node)
	writeJSON(w, http.StatusCreated, node)
}

// @Summary      Upload a file
// @Tags         nodes
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        file       formData  file    true   "File content"
// @Param        parent_id  formData  string  false  "Parent folder id"
// @Success      201        {object}  models.Node
// @Failure      400        {string}  string "Bad Request"
// @Failure      502        {string}  string "Storage unavailable"
// @Router       /nodes/file [post]
func (s *Server) UploadFileHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, 1<<30)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "Error parsing multipart form", http.StatusBadRequest)
		return
	}

	file, handler, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Error retrieving the file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	parentID, err := parseOptionalParentID(r.FormValue("parent_id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	storageRef, err := generateStorageRef()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := s.storage.Save(storageRef, file); err != nil {
		log.Printf("WARN: object storage save failed for ref %s: %v", storageRef, err)
		writeStoreError(w, database.ErrStorageUnavailable)
		return
	}

	mimeType := handler.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	params := database.CreateNodeParams{
		ID:       uuid.NewString(),
		OwnerID:  claims.UserID,
		ParentID: parentID,
		Name:     handler.Filename,
		IsFolder: false,
		File: &database.FileMeta{
			Size:       handler.Size,
			Type:       mimeType,
			StorageRef: storageRef,
		},
	}

	node, err := s.store.CreateNode(r.Context(), params)
	if err != nil {
		// The object is already on disk; don't leave it orphaned.
		if delErr := s.storage.Delete(storageRef); delErr != nil {
			log.Printf("WARN: failed to clean up object %s after create failure: %v", storageRef, delErr)
		}
		writeStoreError(w, err)
		return
	}

	s.publishEvent(claims.UserID, "node_created", node)
	writeJSON(w, http.StatusCreated, node)
}

// @Summary      Replace file content
// @Tags         nodes
// @Produce      json
// @Security     BearerAuth
// @Param        nodeId  path      string  true  "Node id"
// @Success      200     {object}  models.Node
// @Failure      400     {string}  string "Bad Request"
// @Failure      404     {string}  string "Not Found"
// @Router       /nodes/{nodeId}/content [put]
func (s *Server) ReplaceContentHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())
	nodeID := chi.URLParam(r, "nodeId")

	r.Body = http.MaxBytesReader(w, r.Body, 1<<30)

	storageRef, err := generateStorageRef()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	counted := &countingReader{r: r.Body}
	if err := s.storage.Save(storageRef, counted); err != nil {
		log.Printf("WARN: object storage save failed for ref %s: %v", storageRef, err)
		writeStoreError(w, database.ErrStorageUnavailable)
		return
	}

	mimeType := r.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	meta := database.FileMeta{
		Size:       counted.n,
		Type:       mimeType,
		StorageRef: storageRef,
	}

	node, oldRefs, err := s.store.ReplaceContent(r.Context(), nodeID, claims.UserID, meta)
	if err != nil {
		if delErr := s.storage.Delete(storageRef); delErr != nil {
			log.Printf("WARN: failed to clean up object %s after replace failure: %v", storageRef, delErr)
		}
		writeStoreError(w, err)
		return
	}

	for _, ref := range oldRefs {
		if err := s.storage.Delete(ref); err != nil {
			log.Printf("WARN: failed to delete replaced object %s: %v", ref, err)
		}
	}

	s.publishEvent(claims.UserID, "node_content_replaced", node)
	writeJSON(w, http.StatusOK, node)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// @Summary      Download a file
// @Tags         nodes
// @Security     BearerAuth
// @Param        nodeId  path  string  true  "Node id"
// @Success      200     {file}    file
// @Failure      404     {string}  string "Not Found"
// @Router       /nodes/{nodeId}/download [get]
func (s *Server) DownloadFileHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())
	nodeID := chi.URLParam(r, "nodeId")

	node, err := s.store.GetNodeByID(r.Context(), nodeID, claims.UserID)
	if err != nil {
		http.Error(w, "Failed to retrieve file metadata", http.StatusInternalServerError)
		return
	}
	if node == nil {
		http.Error(w, "File not found or you do not have permission to access it", http.StatusNotFound)
		return
	}
	if node.IsFolder {
		http.Error(w, "Cannot download a folder", http.StatusBadRequest)
		return
	}
	if node.StorageRef == nil {
		http.Error(w, "File has no content", http.StatusNotFound)
		return
	}

	fileStream, err := s.storage.Get(*node.StorageRef)
	if err != nil {
		writeStoreError(w, database.ErrStorageUnavailable)
		return
	}
	defer fileStream.Close()

	w.Header().Set("Content-Disposition", "attachment; filename=\""+node.Name+"\"")
	if node.Type != nil && *node.Type != "" {
		w.Header().Set("Content-Type", *node.Type)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	if node.Size != nil {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", *node.Size))
	}

	io.Copy(w, fileStream)
}

// @Summary      List nodes
// @Description  Lists one level of the hierarchy. Default filters hide trashed nodes and descendants of trashed folders.
// @Tags         nodes
// @Produce      json
// @Security     BearerAuth
// @Param        parent_id  query     string  false  "Parent folder id; omit for the root"
// @Param        starred    query     bool    false  "Only starred nodes"
// @Success      200        {array}   models.Node
// @Failure      401        {string}  string "Unauthorized"
// @Router       /nodes [get]
func (s *Server) ListNodesHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())
	limit, offset := parsePagination(r)

	starred := r.URL.Query().Get("starred") == "true"

	parentIDStr := r.URL.Query().Get("parent_id")
	parentID, err := parseOptionalParentID(parentIDStr)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Starred without a parent is the global "starred" page.
	if starred && !r.URL.Query().Has("parent_id") {
		nodes, err := s.store.ListStarred(r.Context(), claims.UserID, limit, offset)
		if err != nil {
			http.Error(w, "Failed to list nodes", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, nodes)
		return
	}

	nodes, err := s.store.ListChildren(r.Context(), claims.UserID, parentID, database.ListFilter{StarredOnly: starred}, limit, offset)
	if err != nil {
		http.Error(w, "Failed to list nodes", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, nodes)
}

type UpdateNodeRequest struct {
	Name     *string `json:"name"`
	ParentID *string `json:"parent_id"`
	MoveRoot bool    `json:"move_to_root"`
}

// @Summary      Rename or move a node
// @Description  Provide "name" to rename, "parent_id" to move, or "move_to_root": true to move to the root of your namespace.
// @Tags         nodes
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        nodeId   path      string             true  "Node id"
// @Param        request  body      UpdateNodeRequest  true  "Fields to change"
// @Success      200      {object}  models.Node
// @Failure      400      {string}  string "Bad Request"
// @Failure      404      {string}  string "Not Found"
// @Failure      409      {string}  string "Cycle or conflict"
// @Router       /nodes/{nodeId} [patch]
func (s *Server) UpdateNodeHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())
	nodeID := chi.URLParam(r, "nodeId")

	var req UpdateNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var node interface{}
	var updated bool

	if req.Name != nil {
		renamed, err := s.store.RenameNode(r.Context(), nodeID, claims.UserID, strings.TrimSpace(*req.Name))
		if err != nil {
			writeStoreError(w, err)
			return
		}
		s.publishEvent(claims.UserID, "node_renamed", renamed)
		node = renamed
		updated = true
	}

	if req.ParentID != nil || req.MoveRoot {
		var newParentID *string
		if req.ParentID != nil {
			if _, err := uuid.Parse(*req.ParentID); err != nil {
				http.Error(w, "Invalid parent_id format", http.StatusBadRequest)
				return
			}
			newParentID = req.ParentID
		}

		moved, err := s.store.MoveNode(r.Context(), nodeID, claims.UserID, newParentID)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		s.publishEvent(claims.UserID, "node_moved", moved)
		node = moved
		updated = true
	}

	if !updated {
		http.Error(w, "No update operation specified (provide 'name', 'parent_id' or 'move_to_root')", http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, node)
}

// @Summary      Breadcrumbs for a node
// @Description  Ancestors of the node ordered nearest parent first, ending at the root.
// @Tags         nodes
// @Produce      json
// @Security     BearerAuth
// @Param        nodeId  path      string  true  "Node id"
// @Success      200     {array}   models.Node
// @Failure      404     {string}  string "Not Found"
// @Router       /nodes/{nodeId}/breadcrumbs [get]
func (s *Server) BreadcrumbsHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())
	nodeID := chi.URLParam(r, "nodeId")

	node, err := s.store.GetNodeByID(r.Context(), nodeID, claims.UserID)
	if err != nil {
		http.Error(w, "Failed to retrieve node", http.StatusInternalServerError)
		return
	}
	if node == nil {
		http.Error(w, "Node not found or you do not have permission to access it", http.StatusNotFound)
		return
	}

	chain, err := s.store.GetAncestorChain(r.Context(), nodeID, claims.UserID)
	if err != nil {
		http.Error(w, "Failed to retrieve ancestor chain", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, chain)
}

// @Summary      Permanently delete a node
// @Description  Removes the node and its whole subtree atomically and releases the stored objects. Cannot be undone.
// @Tags         nodes
// @Produce      json
// @Security     BearerAuth
// @Param        nodeId  path      string  true  "Node id"
// @Success      200     {object}  DeleteResponse
// @Failure      404     {string}  string "Not Found"
// @Router       /nodes/{nodeId}/permanent [delete]
func (s *Server) PermanentDeleteHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())
	nodeID := chi.URLParam(r, "nodeId")

	refs, err := s.store.DeleteSubtree(r.Context(), nodeID, claims.UserID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	// Metadata is gone; object deletion failures are reported but
	// non-fatal. Orphaned blobs beat dangling metadata.
	storageErrors := 0
	for _, ref := range refs {
		if err := s.storage.Delete(ref); err != nil {
			log.Printf("WARN: failed to delete object %s during permanent delete: %v", ref, err)
			storageErrors++
		}
	}

	s.publishEvent(claims.UserID, "node_deleted", map[string]interface{}{"id": nodeID})
	writeJSON(w, http.StatusOK, DeleteResponse{ReleasedObjects: len(refs), StorageErrors: storageErrors})
}

type DeleteResponse struct {
	ReleasedObjects int `json:"released_objects"`
	StorageErrors   int `json:"storage_errors"`
}
