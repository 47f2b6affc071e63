package document

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/trezcool/darasa/core"
)

var (
	// errors
	ErrNotFound        = errors.New("document not found")
	ErrKindMismatch    = errors.New("operation does not apply to this document kind")
	ErrLastSlide       = errors.New("a presentation must keep at least one slide")
	ErrSlideNotFound   = errors.New("slide not found")
	ErrElementNotFound = errors.New("element not found")
)

type (
	// Watch is a live snapshot subscription established by a Repository.
	Watch interface {
		// Snapshots delivers the complete current matching set on every
		// remote change, not a diff; consumers replace their local list
		// wholesale each time.
		Snapshots() <-chan []Document

		// Err reports a subscription that failed to establish or errored
		// mid-stream. The watch is dead afterwards; there is no automatic
		// reconnect.
		Err() <-chan error

		// Stop tears the subscription down. It is idempotent and safe to
		// call after the consumer is gone.
		Stop()
	}

	Repository interface {
		CreateDocument(ctx context.Context, doc Document) (Document, error)
		GetDocumentByID(ctx context.Context, id string) (Document, error)
		// FilterDocuments returns the set visible under the filter triple,
		// per QueryFilter.Matches.
		FilterDocuments(ctx context.Context, filter QueryFilter) ([]Document, error)
		RenameDocument(ctx context.Context, id, title string) (Document, error)
		// UpdateDocumentContent replaces the whole content value and the
		// title; no field-level patching.
		UpdateDocumentContent(ctx context.Context, up UpdateContent) (Document, error)
		DeleteDocumentsByID(ctx context.Context, ids ...string) error
		WatchDocuments(ctx context.Context, filter QueryFilter) (Watch, error)
	}

	Service struct {
		conf    *core.Config
		repo    Repository
		mailSvc core.EmailService
		log     core.Logger
	}
)

func NewService(conf *core.Config, repo Repository, mailSvc core.EmailService, log core.Logger) *Service {
	return &Service{conf: conf, repo: repo, mailSvc: mailSvc, log: log}
}

// autosaveDebounce resolves the configured quiet period for sessions opened
// without an explicit override.
func (svc *Service) autosaveDebounce() time.Duration {
	if svc.conf != nil && svc.conf.Document.AutosaveDebounce > 0 {
		return svc.conf.Document.AutosaveDebounce
	}
	return DefaultAutosaveDebounce
}

func (svc *Service) Create(ctx context.Context, nd NewDocument) (Document, error) {
	content, err := NewContent(nd.Kind)
	if err != nil {
		return Document{}, err
	}
	now := time.Now().UTC()
	doc := Document{
		Title:      nd.Title,
		OwnerID:    nd.OwnerID,
		OwnerRole:  nd.OwnerRole,
		SchoolID:   nd.SchoolID,
		Visibility: nd.Visibility,
		Content:    content,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return svc.repo.CreateDocument(ctx, doc)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Document, error) {
	return svc.repo.GetDocumentByID(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Document, error) {
	return svc.repo.FilterDocuments(ctx, filter)
}

func (svc *Service) Rename(ctx context.Context, id string, rd RenameDocument) (Document, error) {
	return svc.repo.RenameDocument(ctx, id, rd.Title)
}

// UpdateContent writes a session's working copy back to the store. The
// content kind is fixed at creation; a write that would change it is
// rejected before reaching the store.
func (svc *Service) UpdateContent(ctx context.Context, up UpdateContent) (Document, error) {
	doc, err := svc.repo.GetDocumentByID(ctx, up.DocID)
	if err != nil {
		return Document{}, err
	}
	if doc.Content.Kind != up.Content.Kind {
		return Document{}, ErrKindMismatch
	}
	return svc.repo.UpdateDocumentContent(ctx, up)
}

func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	return svc.repo.DeleteDocumentsByID(ctx, ids...)
}

func (svc *Service) Watch(ctx context.Context, filter QueryFilter) (Watch, error) {
	return svc.repo.WatchDocuments(ctx, filter)
}

// Share notifies recipients that a document was shared with them.
func (svc *Service) Share(ctx context.Context, id, sharedBy string, sd ShareDocument) error {
	doc, err := svc.repo.GetDocumentByID(ctx, id)
	if err != nil {
		return err
	}

	to := make([]mail.Address, 0, len(sd.Emails))
	for _, email := range sd.Emails {
		to = append(to, mail.Address{Address: email})
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      to,
		Subject: fmt.Sprintf("%s shared %q with you", sharedBy, doc.Title),
		BodyStr: fmt.Sprintf("%s shared the document %q with you. Open it to start reading.", sharedBy, doc.Title),
	})
	svc.log.Info(fmt.Sprintf("document %s shared with %d recipient(s)", doc.ID, len(to)))
	return nil
}
