package vector

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "C0000C0142", ContentKey("C01", 42))
	assert.Equal(t, "C9999C0142", SummaryKey("C01", 42))
	assert.Equal(t, "C0000C007", ContentKey("C00", 7))
}

func TestPointID(t *testing.T) {
	a := PointID(ContentKey("C01", 42))
	b := PointID(ContentKey("C01", 42))
	c := PointID(SummaryKey("C01", 42))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	parsed, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(5), parsed.Version())
}

func TestDocumentPayload(t *testing.T) {
	p := DocumentPayload("C0000C0142", "eastgodavaris", 42, "Order", "https://example.org/a.pdf", nil)

	assert.Equal(t, "C0000C0142", p[FieldPointKey])
	assert.Equal(t, int64(42), p[FieldDocID])
	assert.NotContains(t, p, FieldKeywords)

	p = DocumentPayload("k", "c", 1, "t", "u", []string{"Writ petition"})
	assert.Equal(t, []string{"Writ petition"}, p[FieldKeywords])
}

func TestHitFields(t *testing.T) {
	h := Hit{Payload: map[string]any{
		FieldTitle:    "Order",
		FieldDocID:    float64(42),
		FieldKeywords: []any{"a", 1, "b"},
	}}

	assert.Equal(t, "Order", h.StringField(FieldTitle))
	assert.Equal(t, "", h.StringField(FieldURL))
	assert.Equal(t, []string{"a", "b"}, h.StringsField(FieldKeywords))
	assert.Nil(t, h.StringsField(FieldURL))

	id, ok := h.DocID()
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)

	_, ok = Hit{}.DocID()
	assert.False(t, ok)
}
