package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestJSONStringArray tests JSONStringArray scanning.
func TestJSONStringArray(t *testing.T) {
	tests := []struct {
		input    any
		name     string
		expected JSONStringArray
		wantErr  bool
	}{
		{name: "nil input", input: nil, expected: nil},
		{name: "empty string", input: "", expected: nil},
		{name: "json array string", input: `["chunk one", "chunk two"]`, expected: JSONStringArray{"chunk one", "chunk two"}},
		{name: "json array bytes", input: []byte(`["a", "b", "c"]`), expected: JSONStringArray{"a", "b", "c"}},
		{name: "unsupported type", input: 42, wantErr: true},
		{name: "malformed json", input: `["a",`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var arr JSONStringArray
			err := arr.Scan(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, arr)
		})
	}
}

func TestJSONStringArray_Value(t *testing.T) {
	v, err := JSONStringArray(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)

	v, err = JSONStringArray{"Article 21"}.Value()
	require.NoError(t, err)
	assert.Equal(t, `["Article 21"]`, v)
}

func TestJSONFloat32Array(t *testing.T) {
	v, err := JSONFloat32Array{0.5, -1}.Value()
	require.NoError(t, err)

	var back JSONFloat32Array
	require.NoError(t, back.Scan(v))
	assert.Equal(t, JSONFloat32Array{0.5, -1}, back)

	v, err = JSONFloat32Array(nil).Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}
