package store

import "fmt"

type updateKind int

const (
	updateSet updateKind = iota
	updateDelete
	updateArrayUnion
	updateArrayRemove
)

// FieldUpdate is one field mutation applied by Store.Update.
type FieldUpdate struct {
	Field  string
	kind   updateKind
	values []any
}

// Set replaces field with value.
func Set(field string, value any) FieldUpdate {
	return FieldUpdate{Field: field, kind: updateSet, values: []any{value}}
}

// Delete removes field.
func Delete(field string) FieldUpdate {
	return FieldUpdate{Field: field, kind: updateDelete}
}

// ArrayUnion adds each value to the array field unless already present.
// A missing or non-array field is replaced by an array.
func ArrayUnion(field string, values ...any) FieldUpdate {
	return FieldUpdate{Field: field, kind: updateArrayUnion, values: values}
}

// ArrayRemove removes every occurrence of each value from the array field.
func ArrayRemove(field string, values ...any) FieldUpdate {
	return FieldUpdate{Field: field, kind: updateArrayRemove, values: values}
}

// applyUpdates mutates data in place. It reports whether anything changed.
func applyUpdates(data map[string]any, updates []FieldUpdate) (bool, error) {
	changed := false
	for _, u := range updates {
		if !validField(u.Field) {
			return false, fmt.Errorf("%w: field %q", ErrInvalidQuery, u.Field)
		}

		switch u.kind {
		case updateSet:
			v, err := canonical(u.values[0])
			if err != nil {
				return false, fmt.Errorf("encoding field %s: %w", u.Field, err)
			}
			data[u.Field] = v
			changed = true

		case updateDelete:
			if _, ok := data[u.Field]; ok {
				delete(data, u.Field)
				changed = true
			}

		case updateArrayUnion:
			arr, _ := data[u.Field].([]any)
			if _, isArr := data[u.Field].([]any); !isArr {
				changed = true
			}
			for _, raw := range u.values {
				v, err := canonical(raw)
				if err != nil {
					return false, fmt.Errorf("encoding field %s: %w", u.Field, err)
				}
				if containsValue(arr, v) {
					continue
				}
				arr = append(arr, v)
				changed = true
			}
			if arr == nil {
				arr = []any{}
			}
			data[u.Field] = arr

		case updateArrayRemove:
			arr, ok := data[u.Field].([]any)
			if !ok {
				continue
			}
			kept := arr[:0:0]
			for _, item := range arr {
				remove := false
				for _, raw := range u.values {
					v, err := canonical(raw)
					if err != nil {
						return false, fmt.Errorf("encoding field %s: %w", u.Field, err)
					}
					if containsValue([]any{item}, v) {
						remove = true
						break
					}
				}
				if remove {
					changed = true
					continue
				}
				kept = append(kept, item)
			}
			data[u.Field] = kept
		}
	}
	return changed, nil
}
