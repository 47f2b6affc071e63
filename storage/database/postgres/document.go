package pgrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/document"
	"github.com/trezcool/darasa/core/user"
)

type documentRow struct {
	ID         string      `db:"id"`
	Title      null.String `db:"title"`
	OwnerID    string      `db:"owner_id"`
	OwnerRole  null.String `db:"owner_role"`
	SchoolID   null.String `db:"school_id"`
	Visibility null.String `db:"visibility"`
	Content    []byte      `db:"content"`
	Version    int         `db:"version"`
	CreatedAt  null.Time   `db:"created_at"`
	UpdatedAt  null.Time   `db:"updated_at"`
}

type documentRepository struct {
	db   *sqlx.DB
	conf *core.Config
	log  core.Logger
}

var _ document.Repository = (*documentRepository)(nil) // interface compliance check

func NewDocumentRepository(db *sqlx.DB, conf *core.Config, log core.Logger) *documentRepository {
	return &documentRepository{db: db, conf: conf, log: log}
}

func (repo documentRepository) unrow(row documentRow) (document.Document, error) {
	var content document.Content
	if err := json.Unmarshal(row.Content, &content); err != nil {
		return document.Document{}, errors.Wrap(err, "decoding document content")
	}
	return document.Document{
		ID:         row.ID,
		Title:      row.Title.String,
		OwnerID:    row.OwnerID,
		OwnerRole:  row.OwnerRole.String,
		SchoolID:   row.SchoolID.String,
		Visibility: row.Visibility.String,
		Content:    content,
		Version:    row.Version,
		CreatedAt:  row.CreatedAt.Time,
		UpdatedAt:  row.UpdatedAt.Time,
	}, nil
}

func (repo documentRepository) unrowSlice(rows []documentRow) ([]document.Document, error) {
	docs := make([]document.Document, 0, len(rows))
	for _, row := range rows {
		doc, err := repo.unrow(row)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// trapNoRowsErr maps psql "no rows" err to document.ErrNotFound
func (repo documentRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return document.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo documentRepository) CreateDocument(ctx context.Context, doc document.Document) (document.Document, error) {
	content, err := json.Marshal(doc.Content)
	if err != nil {
		return document.Document{}, errors.Wrap(err, "encoding document content")
	}

	var row documentRow
	err = repo.db.GetContext(ctx, &row, `
		INSERT INTO document (id, title, owner_id, owner_role, school_id, visibility, content, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING *`,
		uuid.New().String(), doc.Title, doc.OwnerID, doc.OwnerRole, doc.SchoolID, doc.Visibility,
		content, doc.Version, doc.CreatedAt.UTC(), doc.UpdatedAt.UTC(),
	)
	if err != nil {
		return document.Document{}, errors.Wrap(err, "inserting document")
	}
	return repo.unrow(row)
}

func (repo documentRepository) GetDocumentByID(ctx context.Context, id string) (document.Document, error) {
	if _, err := uuid.Parse(id); err != nil {
		return document.Document{}, document.ErrNotFound
	}
	var row documentRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM document WHERE id = $1`, id); err != nil {
		return document.Document{}, repo.trapNoRowsErr(err, "finding document")
	}
	return repo.unrow(row)
}

// visibilityClause mirrors document.QueryFilter.Matches in SQL: own documents
// always; non-private school documents; everything in the school for admins.
func visibilityClause(filter document.QueryFilter) (string, []interface{}) {
	if filter.IsEmpty() {
		return "", nil
	}
	args := []interface{}{filter.UserID, filter.SchoolID}
	clause := `(owner_id = $1 OR (school_id <> '' AND school_id = $2`
	if !user.RoleIsAdmin(filter.Role) {
		clause += ` AND visibility <> 'private'`
	}
	clause += `))`
	return clause, args
}

func (repo documentRepository) FilterDocuments(ctx context.Context, filter document.QueryFilter) ([]document.Document, error) {
	query := `SELECT * FROM document`
	clause, args := visibilityClause(filter)
	if clause != "" {
		query += " WHERE " + clause
	}
	query += " ORDER BY updated_at DESC"

	var rows []documentRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "filtering documents")
	}
	return repo.unrowSlice(rows)
}

func (repo documentRepository) RenameDocument(ctx context.Context, id, title string) (document.Document, error) {
	var row documentRow
	err := repo.db.GetContext(ctx, &row,
		`UPDATE document SET title = $1, updated_at = $2 WHERE id = $3 RETURNING *`,
		title, time.Now().UTC(), id,
	)
	if err != nil {
		return document.Document{}, repo.trapNoRowsErr(err, "renaming document")
	}
	return repo.unrow(row)
}

func (repo documentRepository) UpdateDocumentContent(ctx context.Context, up document.UpdateContent) (document.Document, error) {
	content, err := json.Marshal(up.Content)
	if err != nil {
		return document.Document{}, errors.Wrap(err, "encoding document content")
	}

	bump := 0
	if up.BumpVersion {
		bump = 1
	}
	var row documentRow
	err = repo.db.GetContext(ctx, &row, `
		UPDATE document
		SET title = $1, content = $2, version = version + $3, updated_at = $4
		WHERE id = $5
		RETURNING *`,
		up.NewTitle, content, bump, time.Now().UTC(), up.DocID,
	)
	if err != nil {
		return document.Document{}, repo.trapNoRowsErr(err, "updating document content")
	}
	return repo.unrow(row)
}

func (repo documentRepository) DeleteDocumentsByID(ctx context.Context, ids ...string) error {
	if _, err := repo.db.ExecContext(ctx, `DELETE FROM document WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return errors.Wrap(err, "deleting documents")
	}
	return nil
}
