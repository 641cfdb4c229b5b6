package models

import (
	"strings"
	"time"
)

// Status is the enrichment state of a document.
type Status string

const (
	StatusPending Status = "pending"
	StatusUpdated Status = "updated"
	StatusFailed  Status = "failed"
)

// Document is a legal document as kept in the document store.
type Document struct {
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Collection      string          `json:"collection"`
	ExternalID      string          `json:"external_id"`
	Title           string          `json:"title"`
	PdfURL          string          `json:"pdf_url,omitempty"`
	PdfLink         string          `json:"pdf_link,omitempty"`
	Link            string          `json:"link,omitempty"`
	Summary         string          `json:"summary,omitempty"`
	Status          Status          `json:"status"`
	PdfURLs         JSONStringArray `json:"pdf_urls,omitempty"`
	OriginalContent JSONStringArray `json:"original_content,omitempty"`
	Keywords        JSONStringArray `json:"keywords,omitempty"`
	ID              int64           `json:"id"`
	ChunkLevel      int             `json:"chunk_level"`
}

// SourceURL returns the location the document text is fetched from: the
// first present of pdf url, pdf link, first of the pdf url list, link.
func (d *Document) SourceURL() string {
	candidates := []string{d.PdfURL, d.PdfLink}
	if len(d.PdfURLs) > 0 {
		candidates = append(candidates, d.PdfURLs[0])
	}
	candidates = append(candidates, d.Link)

	for _, c := range candidates {
		if c = strings.TrimSpace(c); c != "" {
			return c
		}
	}
	return ""
}

// IsEnriched reports whether the document was already processed.
func (d *Document) IsEnriched() bool {
	return d.Status == StatusUpdated
}
