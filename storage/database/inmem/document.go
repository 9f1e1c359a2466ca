package inmemdb

import (
	"context"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/document"
)

type documentRepository struct {
	db *DB
}

func NewDocumentRepository(db *DB) document.Repository {
	return &documentRepository{db: db}
}

var documentComparators = comparators[document.Document]{
	"created_at": func(a, b document.Document) int { return cmpTime(a.CreatedAt, b.CreatedAt) },
}

func (repo *documentRepository) CreateDocument(_ context.Context, d document.Document) (document.Document, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, other := range repo.db.documents {
		if other.StorageKey == d.StorageKey {
			return document.Document{}, core.NewUniqueError("storage_key")
		}
	}
	repo.db.documents[d.ID] = d
	return d, nil
}

func (repo *documentRepository) QueryDocuments(_ context.Context, filter *document.QueryFilter) ([]document.Document, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var keep func(document.Document) bool
	if filter != nil {
		keep = func(d document.Document) bool {
			if filter.OwnerType != "" && d.OwnerType != filter.OwnerType {
				return false
			}
			if filter.OwnerID != "" && d.OwnerID != filter.OwnerID {
				return false
			}
			if filter.StudentIDs != nil &&
				(d.OwnerType != document.OwnerStudent || !inSlice(d.OwnerID, filter.StudentIDs)) {
				return false
			}
			return true
		}
	}
	docs := values(repo.db.documents, keep)
	sortRows(docs, nil, documentComparators, byCreatedDesc)
	return docs, nil
}

func (repo *documentRepository) GetDocument(_ context.Context, id string) (document.Document, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if d, ok := repo.db.documents[id]; ok {
		return d, nil
	}
	return document.Document{}, document.ErrNotFound
}

func (repo *documentRepository) DeleteDocument(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.documents[id]; !ok {
		return document.ErrNotFound
	}
	delete(repo.db.documents, id)
	return nil
}
