package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/darasa/core/document"
)

type documentRepository struct {
	db *documentTable
}

var _ document.Repository = (*documentRepository)(nil) // interface compliance check

func NewDocumentRepository(db *DB) *documentRepository {
	return &documentRepository{db: db.document}
}

func (repo *documentRepository) query(filter document.QueryFilter) []document.Document {
	docs := make([]document.Document, 0, len(repo.db.table))
	for _, doc := range repo.db.table {
		if filter.IsEmpty() || filter.Matches(*doc) {
			d := *doc
			d.Content = doc.Content.Clone()
			docs = append(docs, d)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].UpdatedAt.After(docs[j].UpdatedAt) })
	return docs
}

// notify kicks every live watch; must be called with the table lock held.
func (repo *documentRepository) notify() {
	for w := range repo.db.watchers {
		select {
		case w.kick <- struct{}{}:
		default: // a kick is already pending, the re-query will see this change
		}
	}
}

func (repo *documentRepository) CreateDocument(ctx context.Context, doc document.Document) (document.Document, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	doc.ID = uuid.New().String()
	doc.Content = doc.Content.Clone()
	repo.db.table[doc.ID] = &doc
	repo.notify()

	d := doc
	d.Content = doc.Content.Clone()
	return d, nil
}

func (repo *documentRepository) GetDocumentByID(ctx context.Context, id string) (document.Document, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if doc, ok := repo.db.table[id]; ok {
		d := *doc
		d.Content = doc.Content.Clone()
		return d, nil
	}
	return document.Document{}, document.ErrNotFound
}

func (repo *documentRepository) FilterDocuments(ctx context.Context, filter document.QueryFilter) ([]document.Document, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.query(filter), nil
}

func (repo *documentRepository) RenameDocument(ctx context.Context, id, title string) (document.Document, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	doc, ok := repo.db.table[id]
	if !ok {
		return document.Document{}, document.ErrNotFound
	}
	doc.Title = title
	doc.UpdatedAt = time.Now().UTC()
	repo.notify()

	d := *doc
	d.Content = doc.Content.Clone()
	return d, nil
}

func (repo *documentRepository) UpdateDocumentContent(ctx context.Context, up document.UpdateContent) (document.Document, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	doc, ok := repo.db.table[up.DocID]
	if !ok {
		return document.Document{}, document.ErrNotFound
	}
	doc.Title = up.NewTitle
	doc.Content = up.Content.Clone()
	if up.BumpVersion {
		doc.Version++
	}
	doc.UpdatedAt = time.Now().UTC()
	repo.notify()

	d := *doc
	d.Content = doc.Content.Clone()
	return d, nil
}

func (repo *documentRepository) DeleteDocumentsByID(ctx context.Context, ids ...string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	for _, id := range ids {
		delete(repo.db.table, id)
	}
	repo.notify()
	return nil
}

// documentWatch re-queries the table on every kick; a kick channel of
// capacity one coalesces change bursts into a single snapshot.
type documentWatch struct {
	repo   *documentRepository
	filter document.QueryFilter

	kick      chan struct{}
	snapshots chan []document.Document
	errc      chan error
	done      chan struct{}
}

var _ document.Watch = (*documentWatch)(nil) // interface compliance check

func (repo *documentRepository) WatchDocuments(ctx context.Context, filter document.QueryFilter) (document.Watch, error) {
	w := &documentWatch{
		repo:      repo,
		filter:    filter,
		kick:      make(chan struct{}, 1),
		snapshots: make(chan []document.Document, 1),
		errc:      make(chan error, 1),
		done:      make(chan struct{}),
	}

	repo.db.mutex.Lock()
	repo.db.watchers[w] = struct{}{}
	w.snapshots <- repo.query(filter)
	repo.db.mutex.Unlock()

	go w.run()
	return w, nil
}

func (w *documentWatch) Snapshots() <-chan []document.Document { return w.snapshots }
func (w *documentWatch) Err() <-chan error                     { return w.errc }

func (w *documentWatch) Stop() {
	w.repo.db.mutex.Lock()
	if _, live := w.repo.db.watchers[w]; live {
		delete(w.repo.db.watchers, w)
		close(w.done)
	}
	w.repo.db.mutex.Unlock()
}

func (w *documentWatch) run() {
	for {
		select {
		case <-w.done:
			return
		case <-w.kick:
			w.repo.db.mutex.RLock()
			docs := w.repo.query(w.filter)
			w.repo.db.mutex.RUnlock()

			// replace a stale undelivered snapshot rather than block
			select {
			case w.snapshots <- docs:
			default:
				select {
				case <-w.snapshots:
				default:
				}
				select {
				case w.snapshots <- docs:
				case <-w.done:
					return
				}
			}
		}
	}
}
