package gorm

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thebtf/docenrich/pkg/models"
)

// MaxPageSize caps a single ListDocuments page.
const MaxPageSize = 1000

// DocumentStore provides document-related database operations using GORM.
type DocumentStore struct {
	db *gorm.DB
}

// NewDocumentStore creates a new document store.
func NewDocumentStore(store *Store) *DocumentStore {
	return &DocumentStore{db: store.DB}
}

// CountDocuments returns the number of documents in a collection.
func (s *DocumentStore) CountDocuments(ctx context.Context, collection string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&Document{}).
		Where("collection = ?", collection).
		Count(&n).Error
	return n, classify(err)
}

// ListDocuments returns one page of a collection ordered by id.
func (s *DocumentStore) ListDocuments(ctx context.Context, collection string, offset, limit int) ([]*models.Document, error) {
	offset, limit = clampPage(offset, limit, MaxPageSize)

	var rows []Document
	err := s.db.WithContext(ctx).
		Where("collection = ?", collection).
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, classify(err)
	}

	out := make([]*models.Document, len(rows))
	for i := range rows {
		out[i] = rows[i].ToModel()
	}
	return out, nil
}

// ListCollections returns the distinct collection names in name order.
func (s *DocumentStore) ListCollections(ctx context.Context) ([]string, error) {
	var names []string
	err := s.db.WithContext(ctx).
		Model(&Document{}).
		Distinct("collection").
		Order("collection").
		Pluck("collection", &names).Error
	return names, classify(err)
}

// GetDocument retrieves a document by collection and external id.
func (s *DocumentStore) GetDocument(ctx context.Context, collection, externalID string) (*models.Document, error) {
	var row Document
	err := s.db.WithContext(ctx).
		Where("collection = ? AND external_id = ?", collection, externalID).
		First(&row).Error
	if err != nil {
		return nil, classify(err)
	}
	return row.ToModel(), nil
}

// CreateDocument inserts a document. An existing (collection, external id)
// pair is left untouched and returned with created=false.
func (s *DocumentStore) CreateDocument(ctx context.Context, doc *models.Document) (*models.Document, bool, error) {
	if doc.Collection == "" || doc.ExternalID == "" {
		return nil, false, errors.New("create document: collection and external id are required")
	}

	row := documentFromModel(doc)
	row.ID = 0
	now := time.Now()
	row.CreatedAt, row.UpdatedAt = now, now

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "collection"}, {Name: "external_id"}},
			DoNothing: true,
		}).
		Create(row)
	if res.Error != nil {
		return nil, false, classify(res.Error)
	}
	if res.RowsAffected == 0 {
		existing, err := s.GetDocument(ctx, doc.Collection, doc.ExternalID)
		return existing, false, err
	}
	return row.ToModel(), true, nil
}

// SaveEnrichment stores the derived fields and marks the document updated.
func (s *DocumentStore) SaveEnrichment(ctx context.Context, id int64, e *models.Enrichment) error {
	res := s.db.WithContext(ctx).
		Model(&Document{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"summary":          e.Summary,
			"keywords":         e.Keywords,
			"original_content": e.Chunks,
			"chunk_level":      e.Level,
			"status":           models.StatusUpdated,
			"failure_reason":   "",
			"updated_at":       time.Now(),
		})
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkFailed records a failed enrichment. An already updated document keeps
// its status.
func (s *DocumentStore) MarkFailed(ctx context.Context, id int64, reason string) error {
	res := s.db.WithContext(ctx).
		Model(&Document{}).
		Where("id = ? AND status <> ?", id, models.StatusUpdated).
		Updates(map[string]any{
			"status":         models.StatusFailed,
			"failure_reason": reason,
			"updated_at":     time.Now(),
		})
	return classify(res.Error)
}
