package document

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultAutosaveDebounce is the quiet period after the most recent edit
// before a session writes back to the store. Each new edit resets the wait,
// so writes coalesce: only the latest in-memory content is ever written.
const DefaultAutosaveDebounce = 1200 * time.Millisecond

var (
	ErrSessionClosed  = errors.New("editor session is closed")
	ErrSaveInProgress = errors.New("a save is already in progress")
)

type SessionState int

const (
	// SessionLoading and SessionNotFound are the transient and terminal
	// phases of OpenSession; a returned *Session is never in either.
	SessionLoading SessionState = iota
	SessionClean
	SessionDirty
	SessionSaving
	SessionNotFound
)

func (s SessionState) String() string {
	switch s {
	case SessionLoading:
		return "loading"
	case SessionClean:
		return "clean"
	case SessionDirty:
		return "dirty"
	case SessionSaving:
		return "saving"
	case SessionNotFound:
		return "not-found"
	}
	return "unknown"
}

type SessionOptions struct {
	// UpdatedBy is recorded on every write.
	UpdatedBy string

	// Debounce overrides the service's configured quiet period when > 0.
	Debounce time.Duration

	// OnError is notified of failed background saves. The session stays
	// dirty (edits are never discarded) and retries on the next debounce
	// cycle or explicit save.
	OnError func(error)

	// OnSaved is notified after every successful write with the stored
	// document (fresh Version/UpdatedAt).
	OnSaved func(Document)
}

// Session mediates between one open document and the store with eventual,
// debounced persistence. It exclusively owns the in-memory working copy;
// the store owns the durable one. All methods are safe for concurrent use.
type Session struct {
	svc  *Service
	opts SessionOptions

	mu       sync.Mutex
	saveDone *sync.Cond // signalled when an in-flight write finishes
	state    SessionState
	doc      Document // working copy
	rev      int64    // bumped on every edit
	selected int      // selected slide index (presentations)
	timer    *time.Timer
	saving   bool
	closed   bool
}

// OpenSession fetches the document once and hydrates a session around it.
// A missing or inaccessible document is terminal: ErrNotFound, no session.
func OpenSession(ctx context.Context, svc *Service, id string, opts SessionOptions) (*Session, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = svc.autosaveDebounce()
	}
	doc, err := svc.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	doc.Content = doc.Content.Clone()
	s := &Session{
		svc:   svc,
		opts:  opts,
		state: SessionClean,
		doc:   doc,
	}
	s.saveDone = sync.NewCond(&s.mu)
	return s, nil
}

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Document returns a snapshot of the working copy.
func (s *Session) Document() Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.doc
	doc.Content = s.doc.Content.Clone()
	return doc
}

// edit applies fn to the working copy, marks the session dirty and
// (re)starts the debounce timer.
func (s *Session) edit(fn func(*Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if err := fn(&s.doc); err != nil {
		return err
	}
	s.rev++
	if s.state != SessionSaving {
		s.state = SessionDirty
	}
	if s.timer == nil {
		s.timer = time.AfterFunc(s.opts.Debounce, s.autosave)
	} else {
		s.timer.Reset(s.opts.Debounce)
	}
	return nil
}

// Rename updates the working title; it is persisted with the next write.
func (s *Session) Rename(title string) error {
	rd := RenameDocument{Title: title}
	if err := rd.Validate(); err != nil {
		return err
	}
	return s.edit(func(doc *Document) error {
		doc.Title = rd.Title
		return nil
	})
}

func (s *Session) SetHTML(html string) error {
	return s.edit(func(doc *Document) error { return doc.Content.SetHTML(html) })
}

func (s *Session) SetCell(addr, val string) error {
	return s.edit(func(doc *Document) error { return doc.Content.SetCell(addr, val) })
}

func (s *Session) ClearCell(addr string) error {
	return s.edit(func(doc *Document) error { return doc.Content.ClearCell(addr) })
}

// CellDisplay returns the rendered value of a cell: formulas evaluated,
// literals as-is.
func (s *Session) CellDisplay(addr string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc.Content.Kind != KindSheet {
		return ""
	}
	return DisplayValue(s.doc.Content.Cells, addr)
}

func (s *Session) AddSlide(layout string) (Slide, error) {
	var sl Slide
	err := s.edit(func(doc *Document) error {
		var err error
		sl, err = doc.Content.AddSlide(layout)
		if err == nil {
			s.selected = len(doc.Content.Slides) - 1
		}
		return err
	})
	return sl, err
}

func (s *Session) DuplicateSlide(id string) (Slide, error) {
	var sl Slide
	err := s.edit(func(doc *Document) error {
		var err error
		sl, err = doc.Content.DuplicateSlide(id)
		return err
	})
	return sl, err
}

// DeleteSlide removes a slide; deleting the last remaining slide is
// rejected. The selection falls back to the nearest valid index.
func (s *Session) DeleteSlide(id string) error {
	return s.edit(func(doc *Document) error {
		if err := doc.Content.DeleteSlide(id); err != nil {
			return err
		}
		if max := len(doc.Content.Slides) - 1; s.selected > max {
			s.selected = max
		}
		return nil
	})
}

func (s *Session) MoveSlide(id string, to int) error {
	return s.edit(func(doc *Document) error { return doc.Content.MoveSlide(id, to) })
}

// SelectSlide records the active slide index (clamped to the valid range).
func (s *Session) SelectSlide(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 {
		i = 0
	}
	if max := len(s.doc.Content.Slides) - 1; max >= 0 && i > max {
		i = max
	}
	s.selected = i
}

func (s *Session) SelectedSlide() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

func (s *Session) AddElement(slideID string, el Element) (Element, error) {
	var added Element
	err := s.edit(func(doc *Document) error {
		var err error
		added, err = doc.Content.AddElement(slideID, el)
		return err
	})
	return added, err
}

func (s *Session) UpdateElement(slideID string, el Element) error {
	return s.edit(func(doc *Document) error { return doc.Content.UpdateElement(slideID, el) })
}

func (s *Session) DeleteElement(slideID, elementID string) error {
	return s.edit(func(doc *Document) error { return doc.Content.DeleteElement(slideID, elementID) })
}

// SaveNow bypasses the debounce wait and persists immediately, bumping the
// document version. ErrSaveInProgress is returned while another write is in
// flight; callers disable the action during SessionSaving.
func (s *Session) SaveNow(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()
	return s.save(ctx, true)
}

// Close stops the autosave timer and, when dirty, flushes a best-effort
// synchronous write so the user's last edit is not lost by navigating away
// mid-debounce. A write already in flight is waited out first; edits that
// raced it leave the session dirty again and get their own flush. Close is
// idempotent.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	for s.saving {
		s.saveDone.Wait()
	}
	dirty := s.state == SessionDirty
	s.mu.Unlock()

	if dirty {
		if err := s.save(ctx, false); err != nil && err != ErrSaveInProgress {
			return err
		}
	}
	return nil
}

func (s *Session) autosave() {
	err := s.save(context.Background(), false)
	if err == ErrSaveInProgress {
		// another write is in flight; try again after the next quiet period
		s.mu.Lock()
		if !s.closed && s.timer != nil {
			s.timer.Reset(s.opts.Debounce)
		}
		s.mu.Unlock()
	}
}

// save writes the current working copy. Writes are serialized per session:
// with one in flight the caller backs off instead of overlapping it.
func (s *Session) save(ctx context.Context, bump bool) error {
	s.mu.Lock()
	if s.saving {
		s.mu.Unlock()
		return ErrSaveInProgress
	}
	if s.state != SessionDirty && !bump {
		s.mu.Unlock()
		return nil
	}
	up := UpdateContent{
		DocID:       s.doc.ID,
		UpdatedBy:   s.opts.UpdatedBy,
		NewTitle:    s.doc.Title,
		Content:     s.doc.Content.Clone(),
		BumpVersion: bump,
	}
	rev := s.rev
	s.saving = true
	s.state = SessionSaving
	s.mu.Unlock()

	doc, err := s.svc.UpdateContent(ctx, up)

	s.mu.Lock()
	s.saving = false
	s.saveDone.Broadcast()
	if err != nil {
		// edits are never discarded on failure; the next debounce cycle or
		// explicit save retries with the then-current content
		s.state = SessionDirty
		onErr := s.opts.OnError
		s.mu.Unlock()
		if onErr != nil {
			onErr(err)
		}
		return err
	}
	s.doc.Version = doc.Version
	s.doc.UpdatedAt = doc.UpdatedAt
	if s.rev != rev {
		// edits arrived while the write was in flight; they stay pending
		// until their own quiet period elapses
		s.state = SessionDirty
	} else {
		s.state = SessionClean
	}
	onSaved := s.opts.OnSaved
	s.mu.Unlock()
	if onSaved != nil {
		onSaved(doc)
	}
	return nil
}
