// Package models contains domain models for docenrich.
package models

import (
	"database/sql/driver"
	"fmt"

	"github.com/goccy/go-json"
)

// JSONStringArray is a []string stored as a JSON text column.
type JSONStringArray []string

// Scan implements sql.Scanner.
func (a *JSONStringArray) Scan(value any) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*a = nil
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("scan JSONStringArray: unsupported type %T", value)
	}
	if len(data) == 0 {
		*a = nil
		return nil
	}
	return json.Unmarshal(data, (*[]string)(a))
}

// Value implements driver.Valuer. Nil arrays are stored as "[]".
func (a JSONStringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]string(a))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// JSONFloat32Array is an embedding vector stored as JSON text.
type JSONFloat32Array []float32

// Scan implements sql.Scanner.
func (a *JSONFloat32Array) Scan(value any) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*a = nil
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("scan JSONFloat32Array: unsupported type %T", value)
	}
	if len(data) == 0 {
		*a = nil
		return nil
	}
	return json.Unmarshal(data, (*[]float32)(a))
}

// Value implements driver.Valuer.
func (a JSONFloat32Array) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	data, err := json.Marshal([]float32(a))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
