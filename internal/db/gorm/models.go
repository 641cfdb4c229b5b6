// Package gorm provides GORM-based document storage for docenrich.
package gorm

import (
	"time"

	"gorm.io/gorm"

	"github.com/thebtf/docenrich/pkg/models"
)

// GORM Models

// Note: JSON types (JSONStringArray) are imported from pkg/models
// and already implement sql.Scanner and driver.Valuer interfaces.

// Document is a source document row. (collection, external_id) is unique.
type Document struct {
	CreatedAt       time.Time              `gorm:"not null"`
	UpdatedAt       time.Time              `gorm:"not null"`
	Collection      string                 `gorm:"type:text;not null;uniqueIndex:idx_documents_collection_external,priority:1;index:idx_documents_collection_status,priority:1"`
	ExternalID      string                 `gorm:"type:text;not null;uniqueIndex:idx_documents_collection_external,priority:2"`
	Title           string                 `gorm:"type:text"`
	PdfURL          string                 `gorm:"type:text"`
	PdfLink         string                 `gorm:"type:text"`
	Link            string                 `gorm:"type:text"`
	Summary         string                 `gorm:"type:text"`
	FailureReason   string                 `gorm:"type:text"`
	Status          models.Status          `gorm:"type:text;not null;default:'pending';check:status IN ('pending', 'updated', 'failed');index:idx_documents_collection_status,priority:2"`
	PdfURLs         models.JSONStringArray `gorm:"type:jsonb;not null;default:'[]'"`
	OriginalContent models.JSONStringArray `gorm:"type:jsonb;not null;default:'[]'"`
	Keywords        models.JSONStringArray `gorm:"type:jsonb;not null;default:'[]'"`
	ID              int64                  `gorm:"primaryKey;autoIncrement"`
	ChunkLevel      int                    `gorm:"default:0"`
}

func (Document) TableName() string { return "documents" }

// BeforeCreate hook to ensure a status is set.
func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.Status == "" {
		d.Status = models.StatusPending
	}
	return nil
}

// ToModel converts the row to the domain type.
func (d *Document) ToModel() *models.Document {
	return &models.Document{
		ID:              d.ID,
		Collection:      d.Collection,
		ExternalID:      d.ExternalID,
		Title:           d.Title,
		PdfURL:          d.PdfURL,
		PdfLink:         d.PdfLink,
		PdfURLs:         d.PdfURLs,
		Link:            d.Link,
		OriginalContent: d.OriginalContent,
		Summary:         d.Summary,
		Keywords:        d.Keywords,
		Status:          d.Status,
		ChunkLevel:      d.ChunkLevel,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

// documentFromModel converts a domain document to a row.
func documentFromModel(m *models.Document) *Document {
	return &Document{
		ID:              m.ID,
		Collection:      m.Collection,
		ExternalID:      m.ExternalID,
		Title:           m.Title,
		PdfURL:          m.PdfURL,
		PdfLink:         m.PdfLink,
		PdfURLs:         m.PdfURLs,
		Link:            m.Link,
		OriginalContent: m.OriginalContent,
		Summary:         m.Summary,
		Keywords:        m.Keywords,
		Status:          m.Status,
		ChunkLevel:      m.ChunkLevel,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}
