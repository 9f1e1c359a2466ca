package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core/document"
)

var documentColumns = []string{"id", "owner_type", "owner_id", "title", "file_name", "content_type", "size", "storage_key", "uploaded_by", "created_at"}

type documentRow struct {
	ID          string      `db:"id"`
	OwnerType   string      `db:"owner_type"`
	OwnerID     string      `db:"owner_id"`
	Title       string      `db:"title"`
	FileName    string      `db:"file_name"`
	ContentType string      `db:"content_type"`
	Size        int64       `db:"size"`
	StorageKey  string      `db:"storage_key"`
	UploadedBy  null.String `db:"uploaded_by"`
	CreatedAt   time.Time   `db:"created_at"`
}

func (r documentRow) document() document.Document {
	return document.Document{
		ID:          r.ID,
		OwnerType:   r.OwnerType,
		OwnerID:     r.OwnerID,
		Title:       r.Title,
		FileName:    r.FileName,
		ContentType: r.ContentType,
		Size:        r.Size,
		StorageKey:  r.StorageKey,
		UploadedBy:  r.UploadedBy.String,
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

type documentRepository struct {
	db *sqlx.DB
}

var _ document.Repository = (*documentRepository)(nil) // interface compliance check

func NewDocumentRepository(db *sqlx.DB) *documentRepository {
	return &documentRepository{db: db}
}

func (repo *documentRepository) CreateDocument(ctx context.Context, d document.Document) (document.Document, error) {
	b := psql.Insert("document").
		Columns(documentColumns...).
		Values(d.ID, d.OwnerType, d.OwnerID, d.Title, d.FileName, d.ContentType, d.Size,
			d.StorageKey, nullString(d.UploadedBy), utc(d.CreatedAt))
	if _, err := exec(ctx, repo.db, b); err != nil {
		return document.Document{}, dbError(err, document.ErrNotFound)
	}
	return d, nil
}

func (repo *documentRepository) QueryDocuments(ctx context.Context, filter *document.QueryFilter) ([]document.Document, error) {
	b := psql.Select(documentColumns...).From("document")
	if filter != nil {
		eq := sq.Eq{}
		if filter.OwnerType != "" {
			eq["owner_type"] = filter.OwnerType
		}
		if filter.OwnerID != "" {
			eq["owner_id"] = filter.OwnerID
		}
		if len(eq) > 0 {
			b = b.Where(eq)
		}
		if filter.StudentIDs != nil {
			b = b.Where(sq.Eq{"owner_type": document.OwnerStudent, "owner_id": filter.StudentIDs})
		}
	}
	b = b.OrderBy(orderBy(nil, byCreatedDesc)...)

	var rows []documentRow
	if err := selectAll(ctx, repo.db, &rows, b); err != nil {
		return nil, errors.Wrap(err, "querying documents")
	}
	docs := make([]document.Document, 0, len(rows))
	for _, r := range rows {
		docs = append(docs, r.document())
	}
	return docs, nil
}

func (repo *documentRepository) GetDocument(ctx context.Context, id string) (document.Document, error) {
	var r documentRow
	if err := get(ctx, repo.db, &r, psql.Select(documentColumns...).From("document").Where(sq.Eq{"id": id})); err != nil {
		return document.Document{}, dbError(err, document.ErrNotFound)
	}
	return r.document(), nil
}

func (repo *documentRepository) DeleteDocument(ctx context.Context, id string) error {
	n, err := exec(ctx, repo.db, psql.Delete("document").Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting document")
	}
	if n == 0 {
		return document.ErrNotFound
	}
	return nil
}
