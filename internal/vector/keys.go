package vector

import (
	"strconv"

	"github.com/google/uuid"
)

// Point key prefixes. Content vectors and summary/keyword vectors of the
// same document live under different keys.
const (
	ContentPrefix = "C0000"
	SummaryPrefix = "C9999"
)

// Payload field names.
const (
	FieldPointKey   = "point_key"
	FieldTitle      = "title"
	FieldURL        = "url"
	FieldCollection = "collection"
	FieldDocID      = "doc_id"
	FieldKeywords   = "keywords"
)

// pointNamespace scopes the name-based point ids. Changing it re-keys every
// stored point.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/thebtf/docenrich/points"))

// ContentKey is the point key of a document's content vector.
func ContentKey(collectionCode string, docID int64) string {
	return ContentPrefix + collectionCode + strconv.FormatInt(docID, 10)
}

// SummaryKey is the point key of a document's summary and keyword vectors.
func SummaryKey(collectionCode string, docID int64) string {
	return SummaryPrefix + collectionCode + strconv.FormatInt(docID, 10)
}

// PointID maps a point key onto the UUID Qdrant stores. The mapping is
// stable, so re-processing a document overwrites its points.
func PointID(key string) string {
	return uuid.NewSHA1(pointNamespace, []byte(key)).String()
}

// DocumentPayload is the payload stored with every vector of a document.
func DocumentPayload(key, collection string, docID int64, title, url string, keywords []string) map[string]any {
	p := map[string]any{
		FieldPointKey:   key,
		FieldTitle:      title,
		FieldURL:        url,
		FieldCollection: collection,
		FieldDocID:      docID,
	}
	if len(keywords) > 0 {
		p[FieldKeywords] = keywords
	}
	return p
}

// DocID reads the doc_id payload field. JSON numbers decode as float64.
func (h Hit) DocID() (int64, bool) {
	switch v := h.Payload[FieldDocID].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}
