package inmemdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core/document"
	"github.com/trezcool/darasa/core/user"
)

func createDoc(t *testing.T, repo document.Repository, title, ownerID, schoolID, visibility string) document.Document {
	t.Helper()
	content, err := document.NewContent(document.KindSheet)
	require.NoError(t, err)
	doc, err := repo.CreateDocument(context.Background(), document.Document{
		Title:      title,
		OwnerID:    ownerID,
		OwnerRole:  user.RoleTeacher,
		SchoolID:   schoolID,
		Visibility: visibility,
		Content:    content,
		Version:    1,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	})
	require.NoError(t, err)
	return doc
}

// nextSnapshot waits for one snapshot delivery.
func nextSnapshot(t *testing.T, w document.Watch) []document.Document {
	t.Helper()
	select {
	case docs := <-w.Snapshots():
		return docs
	case err := <-w.Err():
		t.Fatalf("watch failed: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a snapshot")
	}
	return nil
}

func docIDs(docs []document.Document) []string {
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids
}

func Test_documentRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(Open())

	doc := createDoc(t, repo, "Budget", "usr1", "school1", document.VisibilityPrivate)
	require.NotEmpty(t, doc.ID)

	got, err := repo.GetDocumentByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Budget", got.Title)

	_, err = repo.GetDocumentByID(ctx, "nope")
	assert.Equal(t, document.ErrNotFound, err)

	got, err = repo.RenameDocument(ctx, doc.ID, "Budget 2026")
	require.NoError(t, err)
	assert.Equal(t, "Budget 2026", got.Title)

	content := doc.Content.Clone()
	require.NoError(t, content.SetCell("A1", "10"))
	got, err = repo.UpdateDocumentContent(ctx, document.UpdateContent{
		DocID:       doc.ID,
		NewTitle:    "Budget 2026",
		Content:     content,
		BumpVersion: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
	val, _ := got.Content.Cell("A1")
	assert.Equal(t, "10", val)

	require.NoError(t, repo.DeleteDocumentsByID(ctx, doc.ID))
	_, err = repo.GetDocumentByID(ctx, doc.ID)
	assert.Equal(t, document.ErrNotFound, err)
}

func Test_documentRepository_storedCopyIsIsolated(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(Open())

	doc := createDoc(t, repo, "Budget", "usr1", "", document.VisibilityPrivate)
	require.NoError(t, doc.Content.SetCell("A1", "tampered"))

	got, err := repo.GetDocumentByID(ctx, doc.ID)
	require.NoError(t, err)
	_, ok := got.Content.Cell("A1")
	assert.False(t, ok) // caller mutations never reach the table
}

func Test_documentRepository_FilterDocuments(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(Open())

	own := createDoc(t, repo, "Mine", "usr1", "school1", document.VisibilityPrivate)
	shared := createDoc(t, repo, "Shared", "usr2", "school1", document.VisibilityInternal)
	hidden := createDoc(t, repo, "Hidden", "usr2", "school1", document.VisibilityPrivate)
	foreign := createDoc(t, repo, "Foreign", "usr3", "school2", document.VisibilityPublic)

	tests := []struct {
		name   string
		filter document.QueryFilter
		want   []string
	}{
		{
			"student sees own and school non-private",
			document.QueryFilter{UserID: "usr1", Role: user.RoleStudent, SchoolID: "school1"},
			[]string{own.ID, shared.ID},
		},
		{
			"admin sees everything in the school",
			document.QueryFilter{UserID: "usr1", Role: user.RoleAdmin, SchoolID: "school1"},
			[]string{own.ID, shared.ID, hidden.ID},
		},
		{
			"other school stays invisible",
			document.QueryFilter{UserID: "usr1", Role: user.RoleStudent, SchoolID: "school2"},
			[]string{own.ID, foreign.ID},
		},
		{
			"empty filter returns all",
			document.QueryFilter{},
			[]string{own.ID, shared.ID, hidden.ID, foreign.ID},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := repo.FilterDocuments(ctx, tt.filter)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, docIDs(docs))
		})
	}
}

func Test_documentRepository_WatchDocuments(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(Open())

	doc := createDoc(t, repo, "Mine", "usr1", "school1", document.VisibilityPrivate)
	filter := document.QueryFilter{UserID: "usr1", Role: user.RoleStudent, SchoolID: "school1"}

	w, err := repo.WatchDocuments(ctx, filter)
	require.NoError(t, err)
	defer w.Stop()

	// the watch itself delivers the initial state
	assert.ElementsMatch(t, []string{doc.ID}, docIDs(nextSnapshot(t, w)))

	// every remote change delivers a complete fresh set
	other := createDoc(t, repo, "Shared", "usr2", "school1", document.VisibilityInternal)
	assert.ElementsMatch(t, []string{doc.ID, other.ID}, docIDs(nextSnapshot(t, w)))

	require.NoError(t, repo.DeleteDocumentsByID(ctx, other.ID))
	assert.ElementsMatch(t, []string{doc.ID}, docIDs(nextSnapshot(t, w)))

	// out-of-filter changes still re-deliver the (unchanged) matching set
	createDoc(t, repo, "Hidden", "usr2", "school1", document.VisibilityPrivate)
	assert.ElementsMatch(t, []string{doc.ID}, docIDs(nextSnapshot(t, w)))
}

func Test_documentRepository_watchCoalescesBursts(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(Open())

	w, err := repo.WatchDocuments(ctx, document.QueryFilter{UserID: "usr1"})
	require.NoError(t, err)
	defer w.Stop()

	assert.Empty(t, nextSnapshot(t, w))

	// a burst of writes; a slow consumer only ever sees the latest set
	var last document.Document
	for i := 0; i < 5; i++ {
		last = createDoc(t, repo, "Doc", "usr1", "", document.VisibilityPrivate)
	}
	deadline := time.After(2 * time.Second)
	for {
		docs := nextSnapshot(t, w)
		if len(docs) == 5 {
			assert.Contains(t, docIDs(docs), last.ID)
			break
		}
		select {
		case <-deadline:
			t.Fatal("never saw the full set")
		default:
		}
	}

	// a pending kick may re-deliver the old set once before the delete lands
	require.NoError(t, repo.DeleteDocumentsByID(ctx, last.ID))
	for len(nextSnapshot(t, w)) != 4 {
		select {
		case <-deadline:
			t.Fatal("delete never reflected")
		default:
		}
	}
}

func Test_documentWatch_Stop(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(Open())

	w, err := repo.WatchDocuments(ctx, document.QueryFilter{UserID: "usr1"})
	require.NoError(t, err)
	nextSnapshot(t, w)

	w.Stop()
	w.Stop() // idempotent

	// no deliveries after Stop
	createDoc(t, repo, "Late", "usr1", "", document.VisibilityPrivate)
	select {
	case docs, ok := <-w.Snapshots():
		if ok {
			t.Fatalf("unexpected snapshot after Stop: %v", docIDs(docs))
		}
	case <-time.After(50 * time.Millisecond):
	}
}
