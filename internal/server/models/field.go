package models

import (
	"bytes"
	"encoding/json"
)

// Field records whether a JSON key was present and whether it was null,
// so a partial update can tell "absent" from "explicitly cleared".
//
//	{}                  -> Set=false
//	{"due_date": null}  -> Set=true, Null=true
//	{"due_date": "..."} -> Set=true, Value=...
type Field[T any] struct {
	Set   bool
	Null  bool
	Value T
}

// Some returns a present, non-null Field.
func Some[T any](v T) Field[T] {
	return Field[T]{Set: true, Value: v}
}

// Null returns a present Field holding an explicit null.
func Null[T any]() Field[T] {
	return Field[T]{Set: true, Null: true}
}

// UnmarshalJSON is only invoked by encoding/json when the key is present,
// including for a literal null.
func (f *Field[T]) UnmarshalJSON(data []byte) error {
	f.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		f.Null = true
		var zero T
		f.Value = zero
		return nil
	}
	f.Null = false
	return json.Unmarshal(data, &f.Value)
}

// Ptr returns nil for an absent or null field and a pointer to Value otherwise.
func (f Field[T]) Ptr() *T {
	if !f.Set || f.Null {
		return nil
	}
	v := f.Value
	return &v
}
