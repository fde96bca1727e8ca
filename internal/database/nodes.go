package database

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/gitpranav05/droply/internal/models"
)

const nodeColumns = `id, owner_id, parent_id, name, path, is_folder, is_starred, is_trash,
		size, type, storage_ref, thumbnail_ref, created_at, updated_at`

// FileMeta is the content metadata required for file nodes and forbidden
// for folders.
type FileMeta struct {
	Size         int64
	Type         string
	StorageRef   string
	ThumbnailRef *string
}

type CreateNodeParams struct {
	ID       string
	OwnerID  string
	ParentID *string
	Name     string
	IsFolder bool
	File     *FileMeta
}

// ListFilter narrows a ListChildren call. The zero value lists active
// (non-trashed) nodes.
type ListFilter struct {
	StarredOnly bool
	TrashedOnly bool
}

func scanNode(row pgx.Row) (*models.Node, error) {
	var node models.Node
	err := row.Scan(
		&node.ID,
		&node.OwnerID,
		&node.ParentID,
		&node.Name,
		&node.Path,
		&node.IsFolder,
		&node.IsStarred,
		&node.IsTrash,
		&node.Size,
		&node.Type,
		&node.StorageRef,
		&node.ThumbnailRef,
		&node.CreatedAt,
		&node.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &node, nil
}

func collectNodes(rows pgx.Rows) ([]models.Node, error) {
	defer rows.Close()

	var nodes []models.Node
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *node)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if nodes == nil {
		return []models.Node{}, nil
	}

	return nodes, nil
}

func (q *Queries) GetNodeByID(ctx context.Context, id string, ownerID string) (*models.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE id = $1 AND owner_id = $2`

	node, err := scanNode(q.db.QueryRow(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return node, nil
}

// getNodeAnyOwner fetches a node without the owner guard. Only used to tell
// "parent does not exist" apart from "parent is not yours".
func (q *Queries) getNodeAnyOwner(ctx context.Context, id string) (*models.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE id = $1`

	node, err := scanNode(q.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return node, nil
}

// GetAncestorChain returns the ancestors of a node ordered nearest parent
// first, ending at a root node. The node itself is never part of the chain.
func (q *Queries) GetAncestorChain(ctx context.Context, id string, ownerID string) ([]models.Node, error) {
	query := `
		WITH RECURSIVE chain AS (
			SELECT n.*, 1 AS depth
			FROM nodes n
			JOIN nodes child ON child.parent_id = n.id
			WHERE child.id = $1 AND child.owner_id = $2

			UNION ALL

			SELECT n.*, c.depth + 1
			FROM nodes n
			JOIN chain c ON c.parent_id = n.id
		)
		SELECT ` + nodeColumns + ` FROM chain ORDER BY depth
	`
	rows, err := q.db.Query(ctx, query, id, ownerID)
	if err != nil {
		return nil, err
	}

	return collectNodes(rows)
}

// chainContains reports whether nodeID appears in the ancestor chain of
// startID, the start node included. This is the cycle check for move.
func (q *Queries) chainContains(ctx context.Context, startID string, nodeID string) (bool, error) {
	query := `
		WITH RECURSIVE chain AS (
			SELECT id, parent_id FROM nodes WHERE id = $1

			UNION ALL

			SELECT n.id, n.parent_id
			FROM nodes n
			JOIN chain c ON n.id = c.parent_id
		)
		SELECT EXISTS (SELECT 1 FROM chain WHERE id = $2)
	`
	var contains bool
	err := q.db.QueryRow(ctx, query, startID, nodeID).Scan(&contains)
	return contains, err
}

// IsEffectivelyTrashed reports whether the node or any of its ancestors
// carries the trash flag. Trash visibility is transitive at read time; the
// per-node flag alone is not the whole story.
func (q *Queries) IsEffectivelyTrashed(ctx context.Context, id string) (bool, error) {
	query := `
		WITH RECURSIVE chain AS (
			SELECT id, parent_id, is_trash FROM nodes WHERE id = $1

			UNION ALL

			SELECT n.id, n.parent_id, n.is_trash
			FROM nodes n
			JOIN chain c ON n.id = c.parent_id
		)
		SELECT COALESCE(bool_or(is_trash), FALSE) FROM chain
	`
	var trashed bool
	err := q.db.QueryRow(ctx, query, id).Scan(&trashed)
	return trashed, err
}

func (q *Queries) insertNode(ctx context.Context, arg CreateNodeParams, path string) (*models.Node, error) {
	query := `
		INSERT INTO nodes (id, owner_id, parent_id, name, path, is_folder, size, type, storage_ref, thumbnail_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		RETURNING ` + nodeColumns

	var size *int64
	var mimeType, storageRef *string
	var thumbnailRef *string
	if arg.File != nil {
		size = &arg.File.Size
		mimeType = &arg.File.Type
		storageRef = &arg.File.StorageRef
		thumbnailRef = arg.File.ThumbnailRef
	}

	now := time.Now()
	row := q.db.QueryRow(ctx, query,
		arg.ID,
		arg.OwnerID,
		arg.ParentID,
		arg.Name,
		path,
		arg.IsFolder,
		size,
		mimeType,
		storageRef,
		thumbnailRef,
		now,
	)

	return scanNode(row)
}

// updateSubtreePaths rewrites the denormalized path of a node and all of its
// descendants after a rename or a move. Children keep their updated_at; the
// path is derived state, not a user-visible mutation of the child.
func (q *Queries) updateSubtreePaths(ctx context.Context, id string, oldPath string, newPath string) error {
	query := `
		WITH RECURSIVE subtree AS (
			SELECT id FROM nodes WHERE id = $1

			UNION ALL

			SELECT n.id
			FROM nodes n
			JOIN subtree s ON n.parent_id = s.id
		)
		UPDATE nodes
		SET path = $2 || substring(path FROM char_length($3::text) + 1)
		WHERE id IN (SELECT id FROM subtree)
	`
	_, err := q.db.Exec(ctx, query, id, newPath, oldPath)
	return err
}

// resolveParentPath validates the optional parent of a new node and returns
// the path prefix children of that parent get. A nil parent means the root
// of the owner's namespace.
func (q *Queries) resolveParentPath(ctx context.Context, parentID *string, ownerID string) (string, error) {
	if parentID == nil {
		return "", nil
	}

	parent, err := q.getNodeAnyOwner(ctx, *parentID)
	if err != nil {
		return "", err
	}
	if parent == nil || parent.OwnerID != ownerID || !parent.IsFolder {
		return "", ErrInvalidParent
	}

	return parent.Path, nil
}

// CreateNode inserts one node after validating its name, its folder/file
// metadata and its parent. Runs in its own transaction so the parent cannot
// disappear between validation and insert.
func (s *Store) CreateNode(ctx context.Context, arg CreateNodeParams) (*models.Node, error) {
	if strings.TrimSpace(arg.Name) == "" {
		return nil, ErrInvalidName
	}
	if arg.IsFolder && arg.File != nil {
		return nil, ErrInvalidMetadata
	}
	if !arg.IsFolder && arg.File == nil {
		return nil, ErrInvalidMetadata
	}

	var node *models.Node
	err := s.ExecTxRetry(ctx, func(q *Queries) error {
		parentPath, err := q.resolveParentPath(ctx, arg.ParentID, arg.OwnerID)
		if err != nil {
			return err
		}

		node, err = q.insertNode(ctx, arg, parentPath+"/"+arg.Name)
		if err != nil {
			return err
		}

		return q.LogNodeEvent(ctx, arg.OwnerID, "node_created", node)
	})
	if err != nil {
		return nil, err
	}

	return node, nil
}

// RenameNode changes a node's display name and rewrites the paths of its
// subtree in the same transaction.
func (s *Store) RenameNode(ctx context.Context, id string, ownerID string, newName string) (*models.Node, error) {
	if strings.TrimSpace(newName) == "" {
		return nil, ErrInvalidName
	}

	var node *models.Node
	err := s.ExecTxRetry(ctx, func(q *Queries) error {
		current, err := q.GetNodeByID(ctx, id, ownerID)
		if err != nil {
			return err
		}
		if current == nil {
			return ErrNodeNotFound
		}

		parentPrefix := strings.TrimSuffix(current.Path, "/"+current.Name)
		newPath := parentPrefix + "/" + newName

		query := `UPDATE nodes SET name = $1, updated_at = $2 WHERE id = $3 AND owner_id = $4`
		if _, err := q.db.Exec(ctx, query, newName, time.Now(), id, ownerID); err != nil {
			return err
		}

		if err := q.updateSubtreePaths(ctx, id, current.Path, newPath); err != nil {
			return err
		}

		node, err = q.GetNodeByID(ctx, id, ownerID)
		if err != nil {
			return err
		}

		return q.LogNodeEvent(ctx, ownerID, "node_renamed", node)
	})
	if err != nil {
		return nil, err
	}

	return node, nil
}

// MoveNode reparents a node. A nil newParentID moves it to the root. The
// cycle check walks the ancestor chain of the prospective parent inside the
// same repeatable-read transaction as the update, so a concurrent move
// cannot invalidate the walk.
func (s *Store) MoveNode(ctx context.Context, id string, ownerID string, newParentID *string) (*models.Node, error) {
	var node *models.Node
	err := s.ExecTxRetry(ctx, func(q *Queries) error {
		current, err := q.GetNodeByID(ctx, id, ownerID)
		if err != nil {
			return err
		}
		if current == nil {
			return ErrNodeNotFound
		}

		parentPath := ""
		if newParentID != nil {
			if *newParentID == id {
				return ErrCycleDetected
			}

			parent, err := q.getNodeAnyOwner(ctx, *newParentID)
			if err != nil {
				return err
			}
			if parent == nil {
				return ErrNodeNotFound
			}
			if parent.OwnerID != ownerID || !parent.IsFolder {
				return ErrInvalidParent
			}

			inChain, err := q.chainContains(ctx, *newParentID, id)
			if err != nil {
				return err
			}
			if inChain {
				return ErrCycleDetected
			}

			parentPath = parent.Path
		}

		query := `UPDATE nodes SET parent_id = $1, updated_at = $2 WHERE id = $3 AND owner_id = $4`
		if _, err := q.db.Exec(ctx, query, newParentID, time.Now(), id, ownerID); err != nil {
			return err
		}

		if err := q.updateSubtreePaths(ctx, id, current.Path, parentPath+"/"+current.Name); err != nil {
			return err
		}

		node, err = q.GetNodeByID(ctx, id, ownerID)
		if err != nil {
			return err
		}

		return q.LogNodeEvent(ctx, ownerID, "node_moved", node)
	})
	if err != nil {
		return nil, err
	}

	return node, nil
}

// SetStarred toggles the favorite flag. Setting the current value again is a
// no-op: updated_at is not bumped and no event is journaled.
func (s *Store) SetStarred(ctx context.Context, id string, ownerID string, starred bool) (*models.Node, error) {
	var node *models.Node
	err := s.ExecTxRetry(ctx, func(q *Queries) error {
		current, err := q.GetNodeByID(ctx, id, ownerID)
		if err != nil {
			return err
		}
		if current == nil {
			return ErrNodeNotFound
		}
		if current.IsStarred == starred {
			node = current
			return nil
		}

		query := `
			UPDATE nodes SET is_starred = $1, updated_at = $2
			WHERE id = $3 AND owner_id = $4
			RETURNING ` + nodeColumns

		node, err = scanNode(q.db.QueryRow(ctx, query, starred, time.Now(), id, ownerID))
		if err != nil {
			return err
		}

		eventType := "node_starred"
		if !starred {
			eventType = "node_unstarred"
		}
		return q.LogNodeEvent(ctx, ownerID, eventType, node)
	})
	if err != nil {
		return nil, err
	}

	return node, nil
}

func (s *Store) setTrash(ctx context.Context, id string, ownerID string, trashed bool, eventType string) (*models.Node, error) {
	var node *models.Node
	err := s.ExecTxRetry(ctx, func(q *Queries) error {
		query := `
			UPDATE nodes SET is_trash = $1, updated_at = $2
			WHERE id = $3 AND owner_id = $4
			RETURNING ` + nodeColumns

		var err error
		node, err = scanNode(q.db.QueryRow(ctx, query, trashed, time.Now(), id, ownerID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNodeNotFound
			}
			return err
		}

		return q.LogNodeEvent(ctx, ownerID, eventType, node)
	})
	if err != nil {
		return nil, err
	}

	return node, nil
}

// TrashNode soft-deletes a node. Descendants keep their own flags; listings
// hide them transitively.
func (s *Store) TrashNode(ctx context.Context, id string, ownerID string) (*models.Node, error) {
	return s.setTrash(ctx, id, ownerID, true, "node_trashed")
}

// RestoreNode clears a node's own trash flag. If an ancestor is still
// trashed the node stays hidden until that ancestor is restored too.
func (s *Store) RestoreNode(ctx context.Context, id string, ownerID string) (*models.Node, error) {
	return s.setTrash(ctx, id, ownerID, false, "node_restored")
}

// DeleteSubtree permanently removes a node and every descendant in one
// atomic statement and returns the storage refs whose objects should be
// released. Either the whole subtree goes or none of it.
func (s *Store) DeleteSubtree(ctx context.Context, id string, ownerID string) ([]string, error) {
	var refs []string
	err := s.ExecTxRetry(ctx, func(q *Queries) error {
		query := `
			WITH RECURSIVE subtree AS (
				SELECT n.id FROM nodes n WHERE n.id = $1 AND n.owner_id = $2

				UNION ALL

				SELECT n.id
				FROM nodes n
				JOIN subtree s ON n.parent_id = s.id
			)
			DELETE FROM nodes
			WHERE id IN (SELECT id FROM subtree)
			RETURNING storage_ref, thumbnail_ref
		`
		rows, err := q.db.Query(ctx, query, id, ownerID)
		if err != nil {
			return err
		}

		refs = refs[:0]
		deleted := 0
		for rows.Next() {
			var storageRef, thumbnailRef *string
			if err := rows.Scan(&storageRef, &thumbnailRef); err != nil {
				rows.Close()
				return err
			}
			deleted++
			if storageRef != nil {
				refs = append(refs, *storageRef)
			}
			if thumbnailRef != nil {
				refs = append(refs, *thumbnailRef)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		if deleted == 0 {
			return ErrNodeNotFound
		}

		return q.LogNodeEvent(ctx, ownerID, "node_deleted", map[string]interface{}{"id": id, "removed": deleted})
	})
	if err != nil {
		return nil, err
	}

	return refs, nil
}

// PurgeTrash permanently removes every trashed subtree of one owner and
// returns the released storage refs. Descendants of a trashed folder are
// purged with it even when their own flag is clear.
func (s *Store) PurgeTrash(ctx context.Context, ownerID string) ([]string, error) {
	var refs []string
	err := s.ExecTxRetry(ctx, func(q *Queries) error {
		query := `
			WITH RECURSIVE trashed AS (
				SELECT n.id FROM nodes n WHERE n.owner_id = $1 AND n.is_trash

				UNION ALL

				SELECT n.id
				FROM nodes n
				JOIN trashed t ON n.parent_id = t.id
			)
			DELETE FROM nodes
			WHERE id IN (SELECT id FROM trashed)
			RETURNING storage_ref, thumbnail_ref
		`
		rows, err := q.db.Query(ctx, query, ownerID)
		if err != nil {
			return err
		}

		refs = refs[:0]
		deleted := 0
		for rows.Next() {
			var storageRef, thumbnailRef *string
			if err := rows.Scan(&storageRef, &thumbnailRef); err != nil {
				rows.Close()
				return err
			}
			deleted++
			if storageRef != nil {
				refs = append(refs, *storageRef)
			}
			if thumbnailRef != nil {
				refs = append(refs, *thumbnailRef)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		if deleted == 0 {
			return nil
		}

		return q.LogNodeEvent(ctx, ownerID, "trash_purged", map[string]interface{}{"removed": deleted})
	})
	if err != nil {
		return nil, err
	}

	return refs, nil
}

// ReplaceContent swaps a file node's bytes for new ones: size, type and
// storage refs change, the identity and position of the node do not. Returns
// the previous refs so the caller can release the old objects.
func (s *Store) ReplaceContent(ctx context.Context, id string, ownerID string, meta FileMeta) (*models.Node, []string, error) {
	var node *models.Node
	var oldRefs []string
	err := s.ExecTxRetry(ctx, func(q *Queries) error {
		current, err := q.GetNodeByID(ctx, id, ownerID)
		if err != nil {
			return err
		}
		if current == nil {
			return ErrNodeNotFound
		}
		if current.IsFolder {
			return ErrInvalidMetadata
		}

		oldRefs = oldRefs[:0]
		if current.StorageRef != nil {
			oldRefs = append(oldRefs, *current.StorageRef)
		}
		if current.ThumbnailRef != nil {
			oldRefs = append(oldRefs, *current.ThumbnailRef)
		}

		query := `
			UPDATE nodes SET size = $1, type = $2, storage_ref = $3, thumbnail_ref = $4, updated_at = $5
			WHERE id = $6 AND owner_id = $7
			RETURNING ` + nodeColumns

		node, err = scanNode(q.db.QueryRow(ctx, query, meta.Size, meta.Type, meta.StorageRef, meta.ThumbnailRef, time.Now(), id, ownerID))
		if err != nil {
			return err
		}

		return q.LogNodeEvent(ctx, ownerID, "node_content_replaced", node)
	})
	if err != nil {
		return nil, nil, err
	}

	return node, oldRefs, nil
}

// ListChildren lists one level of the hierarchy for one owner, folders
// first, then by name, creation time and id so pagination stays stable even
// with duplicate sibling names. Default filters hide anything effectively
// trashed, including children of a trashed ancestor whose own flag is clear.
func (s *Store) ListChildren(ctx context.Context, ownerID string, parentID *string, filter ListFilter, limit int, offset int) ([]models.Node, error) {
	if parentID != nil && !filter.TrashedOnly {
		trashed, err := s.IsEffectivelyTrashed(ctx, *parentID)
		if err != nil {
			return nil, err
		}
		if trashed {
			return []models.Node{}, nil
		}
	}

	trashCond := "NOT n.is_trash"
	if filter.TrashedOnly {
		trashCond = "n.is_trash"
	}
	starCond := ""
	if filter.StarredOnly {
		starCond = " AND n.is_starred"
	}

	order := ` ORDER BY n.is_folder DESC, n.name, n.created_at, n.id LIMIT $2 OFFSET $3`

	if parentID == nil {
		query := `SELECT ` + nodeColumns + ` FROM nodes n
			WHERE n.owner_id = $1 AND n.parent_id IS NULL AND ` + trashCond + starCond + order
		rows, err := s.db.Query(ctx, query, ownerID, limit, offset)
		if err != nil {
			return nil, err
		}
		return collectNodes(rows)
	}

	query := `SELECT ` + nodeColumns + ` FROM nodes n
		WHERE n.owner_id = $1 AND n.parent_id = $4 AND ` + trashCond + starCond + order
	rows, err := s.db.Query(ctx, query, ownerID, limit, offset, *parentID)
	if err != nil {
		return nil, err
	}
	return collectNodes(rows)
}

// ListTrash lists every node of the owner whose own trash flag is set,
// newest first. This is the trash page: roots of trashed subtrees plus any
// individually trashed nodes.
func (q *Queries) ListTrash(ctx context.Context, ownerID string, limit int, offset int) ([]models.Node, error) {
	query := `
		SELECT ` + nodeColumns + ` FROM nodes
		WHERE owner_id = $1 AND is_trash
		ORDER BY updated_at DESC, id LIMIT $2 OFFSET $3
	`
	rows, err := q.db.Query(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}

	return collectNodes(rows)
}

// ListStarred lists every starred, non-trashed node of the owner across the
// whole hierarchy.
func (q *Queries) ListStarred(ctx context.Context, ownerID string, limit int, offset int) ([]models.Node, error) {
	query := `
		WITH RECURSIVE trashed AS (
			SELECT n.id FROM nodes n WHERE n.owner_id = $1 AND n.is_trash

			UNION ALL

			SELECT n.id
			FROM nodes n
			JOIN trashed t ON n.parent_id = t.id
		)
		SELECT ` + nodeColumns + ` FROM nodes n
		WHERE n.owner_id = $1 AND n.is_starred AND n.id NOT IN (SELECT id FROM trashed)
		ORDER BY n.is_folder DESC, n.name, n.created_at, n.id LIMIT $2 OFFSET $3
	`
	rows, err := q.db.Query(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}

	return collectNodes(rows)
}
