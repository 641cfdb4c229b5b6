package models

// Enrichment is what one pipeline pass derives from a document.
type Enrichment struct {
	Summary  string          `json:"summary"`
	Chunks   JSONStringArray `json:"original_content"`
	Keywords JSONStringArray `json:"keywords"`
	Level    int             `json:"chunk_level"`
}

// Empty reports whether there is nothing worth saving.
func (e *Enrichment) Empty() bool {
	return e.Summary == "" && len(e.Keywords) == 0
}
