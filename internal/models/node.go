package models

import "time"

// Node is a single row of the nodes table: a file or a folder in one
// owner's hierarchy. Files carry content metadata and storage refs,
// folders leave them nil.
type Node struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner_id"`
	ParentID     *string   `json:"parent_id"`
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	IsFolder     bool      `json:"is_folder"`
	IsStarred    bool      `json:"is_starred"`
	IsTrash      bool      `json:"is_trash"`
	Size         *int64    `json:"size,omitempty"`
	Type         *string   `json:"type,omitempty"`
	StorageRef   *string   `json:"storage_ref,omitempty"`
	ThumbnailRef *string   `json:"thumbnail_ref,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
