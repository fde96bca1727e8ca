package api

import (
	"net/http"
	"strconv"
)

// @Summary      Poll the event journal
// @Description  Returns events for the authenticated owner with id greater than since_id, oldest first.
// @Tags         events
// @Produce      json
// @Security     BearerAuth
// @Param        since_id  query     int  false  "Return events after this id"
// @Success      200       {array}   database.Event
// @Failure      401       {string}  string "Unauthorized"
// @Router       /events [get]
func (s *Server) GetEventsHandler(w http.ResponseWriter, r *http.Request) {
	claims := GetUserFromContext(r.Context())

	var sinceID int64
	if v := r.URL.Query().Get("since_id"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			http.Error(w, "Invalid since_id parameter", http.StatusBadRequest)
			return
		}
		sinceID = parsed
	}

	events, err := s.store.GetEventsSince(r.Context(), claims.UserID, sinceID)
	if err != nil {
		http.Error(w, "Failed to retrieve events", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, events)
}
