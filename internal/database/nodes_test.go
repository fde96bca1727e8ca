package database

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/gitpranav05/droply/internal/models"
)

// Owners are opaque identity-provider ids; a fresh one per test keeps the
// namespaces isolated when tests run in parallel.
func newOwnerID() string {
	return "owner_" + uuid.NewString()
}

func createTestFolder(t *testing.T, ownerID string, parentID *string, name string) *models.Node {
	t.Helper()
	node, err := testStore.CreateNode(context.Background(), CreateNodeParams{
		ID:       uuid.NewString(),
		OwnerID:  ownerID,
		ParentID: parentID,
		Name:     name,
		IsFolder: true,
	})
	require.NoError(t, err)
	require.NotNil(t, node)
	return node
}

func createTestFile(t *testing.T, ownerID string, parentID *string, name string) *models.Node {
	t.Helper()
	ref := "obj_" + uuid.NewString()
	node, err := testStore.CreateNode(context.Background(), CreateNodeParams{
		ID:       uuid.NewString(),
		OwnerID:  ownerID,
		ParentID: parentID,
		Name:     name,
		IsFolder: false,
		File:     &FileMeta{Size: 42, Type: "text/plain", StorageRef: ref},
	})
	require.NoError(t, err)
	require.NotNil(t, node)
	return node
}

func TestCreateNode(t *testing.T) {
	ownerID := newOwnerID()

	folder := createTestFolder(t, ownerID, nil, "Documents")
	require.Equal(t, ownerID, folder.OwnerID)
	require.Nil(t, folder.ParentID)
	require.True(t, folder.IsFolder)
	require.False(t, folder.IsStarred)
	require.False(t, folder.IsTrash)
	require.Nil(t, folder.Size)
	require.Equal(t, "/Documents", folder.Path)
	require.NotZero(t, folder.CreatedAt)
	require.NotZero(t, folder.UpdatedAt)

	file := createTestFile(t, ownerID, &folder.ID, "notes.txt")
	require.Equal(t, folder.ID, *file.ParentID)
	require.False(t, file.IsFolder)
	require.NotNil(t, file.Size)
	require.Equal(t, int64(42), *file.Size)
	require.NotNil(t, file.Type)
	require.Equal(t, "text/plain", *file.Type)
	require.NotNil(t, file.StorageRef)
	require.Equal(t, "/Documents/notes.txt", file.Path)
}

func TestCreateNodeValidation(t *testing.T) {
	ownerID := newOwnerID()
	otherOwnerID := newOwnerID()

	// Blank names are rejected before anything touches the database.
	_, err := testStore.CreateNode(context.Background(), CreateNodeParams{
		ID: uuid.NewString(), OwnerID: ownerID, Name: "   ", IsFolder: true,
	})
	require.ErrorIs(t, err, ErrInvalidName)

	// Folders must not carry file metadata, files must.
	_, err = testStore.CreateNode(context.Background(), CreateNodeParams{
		ID: uuid.NewString(), OwnerID: ownerID, Name: "Bad Folder", IsFolder: true,
		File: &FileMeta{Size: 1, Type: "text/plain", StorageRef: "ref"},
	})
	require.ErrorIs(t, err, ErrInvalidMetadata)

	_, err = testStore.CreateNode(context.Background(), CreateNodeParams{
		ID: uuid.NewString(), OwnerID: ownerID, Name: "bad.txt", IsFolder: false,
	})
	require.ErrorIs(t, err, ErrInvalidMetadata)

	// Parent must exist.
	missingParent := uuid.NewString()
	_, err = testStore.CreateNode(context.Background(), CreateNodeParams{
		ID: uuid.NewString(), OwnerID: ownerID, ParentID: &missingParent, Name: "Orphan", IsFolder: true,
	})
	require.ErrorIs(t, err, ErrInvalidParent)

	// Parent must be a folder.
	file := createTestFile(t, ownerID, nil, "not_a_folder.txt")
	_, err = testStore.CreateNode(context.Background(), CreateNodeParams{
		ID: uuid.NewString(), OwnerID: ownerID, ParentID: &file.ID, Name: "Child", IsFolder: true,
	})
	require.ErrorIs(t, err, ErrInvalidParent)

	// Parent must belong to the same owner.
	theirFolder := createTestFolder(t, otherOwnerID, nil, "Theirs")
	_, err = testStore.CreateNode(context.Background(), CreateNodeParams{
		ID: uuid.NewString(), OwnerID: ownerID, ParentID: &theirFolder.ID, Name: "Intruder", IsFolder: true,
	})
	require.ErrorIs(t, err, ErrInvalidParent)
}

func TestDuplicateSiblingNames(t *testing.T) {
	ownerID := newOwnerID()
	folder := createTestFolder(t, ownerID, nil, "Downloads")

	first := createTestFile(t, ownerID, &folder.ID, "report.pdf")
	second := createTestFile(t, ownerID, &folder.ID, "report.pdf")
	require.NotEqual(t, first.ID, second.ID)

	children, err := testStore.ListChildren(context.Background(), ownerID, &folder.ID, ListFilter{}, 100, 0)
	require.NoError(t, err)
	require.Len(t, children, 2)
}

func TestRenameNode(t *testing.T) {
	ownerID := newOwnerID()

	folder := createTestFolder(t, ownerID, nil, "Old Name")
	sub := createTestFolder(t, ownerID, &folder.ID, "Sub")
	file := createTestFile(t, ownerID, &sub.ID, "deep.txt")

	renamed, err := testStore.RenameNode(context.Background(), folder.ID, ownerID, "New Name")
	require.NoError(t, err)
	require.Equal(t, "New Name", renamed.Name)
	require.Equal(t, "/New Name", renamed.Path)
	require.True(t, renamed.UpdatedAt.After(folder.UpdatedAt))

	// The whole subtree's denormalized paths follow the rename.
	subAfter, err := testStore.GetNodeByID(context.Background(), sub.ID, ownerID)
	require.NoError(t, err)
	require.Equal(t, "/New Name/Sub", subAfter.Path)

	fileAfter, err := testStore.GetNodeByID(context.Background(), file.ID, ownerID)
	require.NoError(t, err)
	require.Equal(t, "/New Name/Sub/deep.txt", fileAfter.Path)

	_, err = testStore.RenameNode(context.Background(), folder.ID, ownerID, "")
	require.ErrorIs(t, err, ErrInvalidName)

	_, err = testStore.RenameNode(context.Background(), uuid.NewString(), ownerID, "Whatever")
	require.ErrorIs(t, err, ErrNodeNotFound)
}

func TestMoveNode(t *testing.T) {
	ownerID := newOwnerID()

	photos := createTestFolder(t, ownerID, nil, "Photos")
	archive := createTestFolder(t, ownerID, nil, "Archive")
	cat := createTestFile(t, ownerID, &photos.ID, "cat.png")

	moved, err := testStore.MoveNode(context.Background(), cat.ID, ownerID, &archive.ID)
	require.NoError(t, err)
	require.Equal(t, archive.ID, *moved.ParentID)
	require.Equal(t, "/Archive/cat.png", moved.Path)

	// nil parent moves the node to the root of the namespace.
	moved, err = testStore.MoveNode(context.Background(), cat.ID, ownerID, nil)
	require.NoError(t, err)
	require.Nil(t, moved.ParentID)
	require.Equal(t, "/cat.png", moved.Path)

	_, err = testStore.MoveNode(context.Background(), uuid.NewString(), ownerID, &archive.ID)
	require.ErrorIs(t, err, ErrNodeNotFound)

	missingParent := uuid.NewString()
	_, err = testStore.MoveNode(context.Background(), cat.ID, ownerID, &missingParent)
	require.ErrorIs(t, err, ErrNodeNotFound)

	_, err = testStore.MoveNode(context.Background(), cat.ID, ownerID, &cat.ID)
	require.ErrorIs(t, err, ErrCycleDetected)

	theirFolder := createTestFolder(t, newOwnerID(), nil, "Not Yours")
	_, err = testStore.MoveNode(context.Background(), cat.ID, ownerID, &theirFolder.ID)
	require.ErrorIs(t, err, ErrInvalidParent)
}

func TestMoveNodeCycleDetection(t *testing.T) {
	ownerID := newOwnerID()

	a := createTestFolder(t, ownerID, nil, "A")
	b := createTestFolder(t, ownerID, &a.ID, "B")
	c := createTestFolder(t, ownerID, &b.ID, "C")

	// A into its own grandchild would orphan the whole subtree.
	_, err := testStore.MoveNode(context.Background(), a.ID, ownerID, &c.ID)
	require.ErrorIs(t, err, ErrCycleDetected)

	_, err = testStore.MoveNode(context.Background(), a.ID, ownerID, &b.ID)
	require.ErrorIs(t, err, ErrCycleDetected)

	_, err = testStore.MoveNode(context.Background(), a.ID, ownerID, &a.ID)
	require.ErrorIs(t, err, ErrCycleDetected)

	// Moving a leaf upward is fine.
	moved, err := testStore.MoveNode(context.Background(), c.ID, ownerID, &a.ID)
	require.NoError(t, err)
	require.Equal(t, a.ID, *moved.ParentID)
	require.Equal(t, "/A/C", moved.Path)
}

func TestMoveNodeRewritesSubtreePaths(t *testing.T) {
	ownerID := newOwnerID()

	src := createTestFolder(t, ownerID, nil, "Src")
	dst := createTestFolder(t, ownerID, nil, "Dst")
	inner := createTestFolder(t, ownerID, &src.ID, "Inner")
	leaf := createTestFile(t, ownerID, &inner.ID, "leaf.txt")

	_, err := testStore.MoveNode(context.Background(), inner.ID, ownerID, &dst.ID)
	require.NoError(t, err)

	leafAfter, err := testStore.GetNodeByID(context.Background(), leaf.ID, ownerID)
	require.NoError(t, err)
	require.Equal(t, "/Dst/Inner/leaf.txt", leafAfter.Path)
}

func TestSetStarred(t *testing.T) {
	ownerID := newOwnerID()
	file := createTestFile(t, ownerID, nil, "important.txt")

	starred, err := testStore.SetStarred(context.Background(), file.ID, ownerID, true)
	require.NoError(t, err)
	require.True(t, starred.IsStarred)
	require.True(t, starred.UpdatedAt.After(file.UpdatedAt))

	// Starring again is a no-op: same flag, untouched timestamp.
	again, err := testStore.SetStarred(context.Background(), file.ID, ownerID, true)
	require.NoError(t, err)
	require.True(t, again.IsStarred)
	require.True(t, again.UpdatedAt.Equal(starred.UpdatedAt))

	unstarred, err := testStore.SetStarred(context.Background(), file.ID, ownerID, false)
	require.NoError(t, err)
	require.False(t, unstarred.IsStarred)

	_, err = testStore.SetStarred(context.Background(), uuid.NewString(), ownerID, true)
	require.ErrorIs(t, err, ErrNodeNotFound)
}

func TestTrashTransitivity(t *testing.T) {
	ownerID := newOwnerID()

	folder := createTestFolder(t, ownerID, nil, "Projects")
	sub := createTestFolder(t, ownerID, &folder.ID, "Active")
	file := createTestFile(t, ownerID, &sub.ID, "plan.md")

	trashed, err := testStore.TrashNode(context.Background(), folder.ID, ownerID)
	require.NoError(t, err)
	require.True(t, trashed.IsTrash)

	// Descendants keep their own flag clear.
	subAfter, err := testStore.GetNodeByID(context.Background(), sub.ID, ownerID)
	require.NoError(t, err)
	require.False(t, subAfter.IsTrash)

	// The trashed root disappears from its parent listing.
	rootNodes, err := testStore.ListChildren(context.Background(), ownerID, nil, ListFilter{}, 100, 0)
	require.NoError(t, err)
	require.Empty(t, rootNodes)

	// Listing inside the trashed subtree comes back empty too, even though
	// the children's own flags are clear.
	children, err := testStore.ListChildren(context.Background(), ownerID, &sub.ID, ListFilter{}, 100, 0)
	require.NoError(t, err)
	require.Empty(t, children)

	// Restoring a descendant while the ancestor is still trashed does not
	// make it visible.
	_, err = testStore.RestoreNode(context.Background(), file.ID, ownerID)
	require.NoError(t, err)
	effTrashed, err := testStore.IsEffectivelyTrashed(context.Background(), file.ID)
	require.NoError(t, err)
	require.True(t, effTrashed)

	// Restoring the root brings the whole subtree back exactly as it was.
	restored, err := testStore.RestoreNode(context.Background(), folder.ID, ownerID)
	require.NoError(t, err)
	require.False(t, restored.IsTrash)

	children, err = testStore.ListChildren(context.Background(), ownerID, &sub.ID, ListFilter{}, 100, 0)
	require.NoError(t, err)
	require.Len(t, children, 1)
	require.Equal(t, file.ID, children[0].ID)

	_, err = testStore.TrashNode(context.Background(), uuid.NewString(), ownerID)
	require.ErrorIs(t, err, ErrNodeNotFound)
}

func TestListTrash(t *testing.T) {
	ownerID := newOwnerID()

	folder := createTestFolder(t, ownerID, nil, "Doomed")
	createTestFile(t, ownerID, &folder.ID, "inside.txt")
	loose := createTestFile(t, ownerID, nil, "loose.txt")

	_, err := testStore.TrashNode(context.Background(), folder.ID, ownerID)
	require.NoError(t, err)
	_, err = testStore.TrashNode(context.Background(), loose.ID, ownerID)
	require.NoError(t, err)

	// Only the roots of trashed subtrees show up, not their descendants.
	trash, err := testStore.ListTrash(context.Background(), ownerID, 100, 0)
	require.NoError(t, err)
	require.Len(t, trash, 2)
	for _, n := range trash {
		require.True(t, n.IsTrash)
	}
}

func TestDeleteSubtree(t *testing.T) {
	ownerID := newOwnerID()

	folder := createTestFolder(t, ownerID, nil, "ToDelete")
	sub := createTestFolder(t, ownerID, &folder.ID, "Sub")
	f1 := createTestFile(t, ownerID, &folder.ID, "a.txt")
	f2 := createTestFile(t, ownerID, &sub.ID, "b.txt")
	survivor := createTestFile(t, ownerID, nil, "survivor.txt")

	refs, err := testStore.DeleteSubtree(context.Background(), folder.ID, ownerID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{*f1.StorageRef, *f2.StorageRef}, refs)

	// Every row of the subtree is gone, nothing else is.
	var count int
	err = testStore.pool.QueryRow(context.Background(),
		`SELECT count(*) FROM nodes WHERE id = ANY($1)`,
		[]string{folder.ID, sub.ID, f1.ID, f2.ID}).Scan(&count)
	require.NoError(t, err)
	require.Zero(t, count)

	still, err := testStore.GetNodeByID(context.Background(), survivor.ID, ownerID)
	require.NoError(t, err)
	require.NotNil(t, still)

	// Someone else's node looks like it does not exist.
	_, err = testStore.DeleteSubtree(context.Background(), survivor.ID, newOwnerID())
	require.ErrorIs(t, err, ErrNodeNotFound)

	_, err = testStore.DeleteSubtree(context.Background(), uuid.NewString(), ownerID)
	require.ErrorIs(t, err, ErrNodeNotFound)
}

func TestPurgeTrash(t *testing.T) {
	ownerID := newOwnerID()

	doomed := createTestFolder(t, ownerID, nil, "Doomed")
	inner := createTestFile(t, ownerID, &doomed.ID, "inner.txt")
	keeper := createTestFile(t, ownerID, nil, "keeper.txt")

	_, err := testStore.TrashNode(context.Background(), doomed.ID, ownerID)
	require.NoError(t, err)

	refs, err := testStore.PurgeTrash(context.Background(), ownerID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{*inner.StorageRef}, refs)

	gone, err := testStore.GetNodeByID(context.Background(), inner.ID, ownerID)
	require.NoError(t, err)
	require.Nil(t, gone)

	kept, err := testStore.GetNodeByID(context.Background(), keeper.ID, ownerID)
	require.NoError(t, err)
	require.NotNil(t, kept)

	// An empty trash purges to nothing without error.
	refs, err = testStore.PurgeTrash(context.Background(), ownerID)
	require.NoError(t, err)
	require.Empty(t, refs)
}

func TestReplaceContent(t *testing.T) {
	ownerID := newOwnerID()
	file := createTestFile(t, ownerID, nil, "doc.txt")
	folder := createTestFolder(t, ownerID, nil, "NotAFile")

	newMeta := FileMeta{Size: 2048, Type: "application/pdf", StorageRef: "obj_replacement"}
	node, oldRefs, err := testStore.ReplaceContent(context.Background(), file.ID, ownerID, newMeta)
	require.NoError(t, err)
	require.Equal(t, file.ID, node.ID)
	require.Equal(t, int64(2048), *node.Size)
	require.Equal(t, "application/pdf", *node.Type)
	require.Equal(t, "obj_replacement", *node.StorageRef)
	require.Equal(t, []string{*file.StorageRef}, oldRefs)

	_, _, err = testStore.ReplaceContent(context.Background(), folder.ID, ownerID, newMeta)
	require.ErrorIs(t, err, ErrInvalidMetadata)

	_, _, err = testStore.ReplaceContent(context.Background(), uuid.NewString(), ownerID, newMeta)
	require.ErrorIs(t, err, ErrNodeNotFound)
}

func TestListChildrenOrdering(t *testing.T) {
	ownerID := newOwnerID()

	createTestFile(t, ownerID, nil, "a_file.txt")
	createTestFolder(t, ownerID, nil, "z_folder")
	createTestFolder(t, ownerID, nil, "a_folder")
	createTestFile(t, ownerID, nil, "z_file.txt")

	nodes, err := testStore.ListChildren(context.Background(), ownerID, nil, ListFilter{}, 100, 0)
	require.NoError(t, err)
	require.Len(t, nodes, 4)
	require.Equal(t, "a_folder", nodes[0].Name)
	require.Equal(t, "z_folder", nodes[1].Name)
	require.Equal(t, "a_file.txt", nodes[2].Name)
	require.Equal(t, "z_file.txt", nodes[3].Name)
}

func TestListChildrenPagination(t *testing.T) {
	ownerID := newOwnerID()
	folder := createTestFolder(t, ownerID, nil, "Big")

	for i := 0; i < 5; i++ {
		createTestFile(t, ownerID, &folder.ID, "same_name.txt")
	}

	// Duplicate names must not break pagination: the two pages together
	// cover all five rows with no overlap.
	page1, err := testStore.ListChildren(context.Background(), ownerID, &folder.ID, ListFilter{}, 3, 0)
	require.NoError(t, err)
	require.Len(t, page1, 3)

	page2, err := testStore.ListChildren(context.Background(), ownerID, &folder.ID, ListFilter{}, 3, 3)
	require.NoError(t, err)
	require.Len(t, page2, 2)

	seen := map[string]bool{}
	for _, n := range append(page1, page2...) {
		require.False(t, seen[n.ID])
		seen[n.ID] = true
	}
	require.Len(t, seen, 5)
}

func TestListChildrenStarredFilter(t *testing.T) {
	ownerID := newOwnerID()
	folder := createTestFolder(t, ownerID, nil, "Mixed")
	fav := createTestFile(t, ownerID, &folder.ID, "fav.txt")
	createTestFile(t, ownerID, &folder.ID, "plain.txt")

	_, err := testStore.SetStarred(context.Background(), fav.ID, ownerID, true)
	require.NoError(t, err)

	nodes, err := testStore.ListChildren(context.Background(), ownerID, &folder.ID, ListFilter{StarredOnly: true}, 100, 0)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	require.Equal(t, fav.ID, nodes[0].ID)
}

func TestListStarredExcludesTrashed(t *testing.T) {
	ownerID := newOwnerID()

	folder := createTestFolder(t, ownerID, nil, "Stuff")
	inside := createTestFile(t, ownerID, &folder.ID, "inside.txt")
	outside := createTestFile(t, ownerID, nil, "outside.txt")

	_, err := testStore.SetStarred(context.Background(), inside.ID, ownerID, true)
	require.NoError(t, err)
	_, err = testStore.SetStarred(context.Background(), outside.ID, ownerID, true)
	require.NoError(t, err)

	starred, err := testStore.ListStarred(context.Background(), ownerID, 100, 0)
	require.NoError(t, err)
	require.Len(t, starred, 2)

	// Trashing the folder hides its starred descendant even though the
	// descendant's own trash flag stays clear.
	_, err = testStore.TrashNode(context.Background(), folder.ID, ownerID)
	require.NoError(t, err)

	starred, err = testStore.ListStarred(context.Background(), ownerID, 100, 0)
	require.NoError(t, err)
	require.Len(t, starred, 1)
	require.Equal(t, outside.ID, starred[0].ID)
}

func TestGetAncestorChain(t *testing.T) {
	ownerID := newOwnerID()

	root := createTestFolder(t, ownerID, nil, "Root")
	mid := createTestFolder(t, ownerID, &root.ID, "Mid")
	leaf := createTestFile(t, ownerID, &mid.ID, "leaf.txt")

	chain, err := testStore.GetAncestorChain(context.Background(), leaf.ID, ownerID)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	require.Equal(t, mid.ID, chain[0].ID)
	require.Equal(t, root.ID, chain[1].ID)

	// A root node has no ancestors.
	chain, err = testStore.GetAncestorChain(context.Background(), root.ID, ownerID)
	require.NoError(t, err)
	require.Empty(t, chain)
}

func TestConcurrentMoves(t *testing.T) {
	ownerID := newOwnerID()

	p1 := createTestFolder(t, ownerID, nil, "P1")
	p2 := createTestFolder(t, ownerID, nil, "P2")
	node := createTestFile(t, ownerID, nil, "contested.txt")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	targets := []*string{&p1.ID, &p2.ID}

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = testStore.MoveNode(context.Background(), node.ID, ownerID, targets[i])
		}(i)
	}
	wg.Wait()

	// Each attempt either succeeds or reports a clean conflict after its
	// retries ran out; nothing in between.
	for _, err := range errs {
		if err != nil {
			require.ErrorIs(t, err, ErrTransactionConflict)
		}
	}

	final, err := testStore.GetNodeByID(context.Background(), node.ID, ownerID)
	require.NoError(t, err)
	require.NotNil(t, final.ParentID)
	require.Contains(t, []string{p1.ID, p2.ID}, *final.ParentID)
}

func TestOwnerIsolation(t *testing.T) {
	ownerA := newOwnerID()
	ownerB := newOwnerID()

	nodeA := createTestFile(t, ownerA, nil, "private.txt")

	found, err := testStore.GetNodeByID(context.Background(), nodeA.ID, ownerB)
	require.NoError(t, err)
	require.Nil(t, found)

	_, err = testStore.RenameNode(context.Background(), nodeA.ID, ownerB, "stolen.txt")
	require.ErrorIs(t, err, ErrNodeNotFound)

	_, err = testStore.TrashNode(context.Background(), nodeA.ID, ownerB)
	require.ErrorIs(t, err, ErrNodeNotFound)

	nodes, err := testStore.ListChildren(context.Background(), ownerB, nil, ListFilter{}, 100, 0)
	require.NoError(t, err)
	require.Empty(t, nodes)
}
