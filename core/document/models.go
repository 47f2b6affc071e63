package document

import (
	"time"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/user"
)

// Visibility levels. Visibility only drives list filtering and display;
// enforcement lives server-side with the store.
const (
	VisibilityPrivate  = "private"
	VisibilityInternal = "internal"
	VisibilityPublic   = "public"
)

var Visibilities = []string{VisibilityPrivate, VisibilityInternal, VisibilityPublic}

// Document is one persisted document. The store owns the durable copy; an
// editor Session owns the in-memory working copy while the document is
// open. There is no cross-session locking: the last write wins.
type Document struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	OwnerID    string    `json:"owner_id"`
	OwnerRole  string    `json:"owner_role"`
	SchoolID   string    `json:"school_id"`
	Visibility string    `json:"visibility"`
	Content    Content   `json:"content"`
	Version    int       `json:"version"` // bumped on explicit saves only, never decremented
	CreatedAt  time.Time `json:"created_at"` // UTC
	UpdatedAt  time.Time `json:"updated_at"` // UTC, store-assigned on every write
}

// NewDocument contains information needed to create a new Document.
type NewDocument struct {
	Title      string `json:"title" validate:"required"`
	Kind       string `json:"kind" validate:"required,dockind"`
	Visibility string `json:"visibility" validate:"omitempty,docvisibility"`
	OwnerID    string `json:"owner_id" validate:"required"`
	OwnerRole  string `json:"owner_role"`
	SchoolID   string `json:"school_id"`
}

func (nd *NewDocument) Validate() error {
	nd.Title = core.CleanString(nd.Title)
	if nd.Visibility == "" {
		nd.Visibility = VisibilityPrivate
	}
	return core.Validate.Struct(nd)
}

// RenameDocument defines what may be provided to rename an existing Document.
type RenameDocument struct {
	Title string `json:"title" validate:"required"`
}

func (rd *RenameDocument) Validate() error {
	rd.Title = core.CleanString(rd.Title)
	return core.Validate.Struct(rd)
}

// UpdateContent is one whole-content write: it replaces the entire content
// value and always updates the title. BumpVersion is false for autosaves and
// true for explicit "save as new version" actions.
type UpdateContent struct {
	DocID       string  `json:"doc_id"`
	UpdatedBy   string  `json:"updated_by"`
	NewTitle    string  `json:"new_title"`
	Content     Content `json:"content"`
	BumpVersion bool    `json:"bump_version"`
}

// ShareDocument defines recipients to notify about a document.
type ShareDocument struct {
	Emails []string `json:"emails" validate:"required,min=1,dive,email"`
}

func (sd *ShareDocument) Validate() error {
	for i, e := range sd.Emails {
		sd.Emails[i] = core.CleanString(e, true /* lower */)
	}
	return core.Validate.Struct(sd)
}

// QueryFilter is the visibility triple a directory subscribes with. Changing
// any element means a different subscription.
type QueryFilter struct {
	UserID   string `query:"user_id"`
	Role     string `query:"role"`
	SchoolID string `query:"school_id"`
}

func (qf QueryFilter) IsEmpty() bool {
	return qf == QueryFilter{}
}

// Matches decides whether a document belongs to the filtered set: own
// documents always; school documents when not private; everything in the
// school for admins. Repositories must agree with this predicate.
func (qf QueryFilter) Matches(doc Document) bool {
	if doc.OwnerID == qf.UserID {
		return true
	}
	if doc.SchoolID == "" || doc.SchoolID != qf.SchoolID {
		return false
	}
	if user.RoleIsAdmin(qf.Role) {
		return true
	}
	return doc.Visibility != VisibilityPrivate
}
