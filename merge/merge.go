// Package merge combines state documents. A document is a map[string]any
// holding JSON-compatible values; neither function mutates its inputs.
package merge

import "reflect"

// Document is a nested string-keyed mapping of JSON-compatible values.
type Document = map[string]any

// IsDocument reports whether value is a plain document (not a sequence, not nil).
func IsDocument(value any) bool {
	doc, ok := value.(map[string]any)
	return ok && doc != nil
}

// DeepMerge returns a new document where nested documents present on both
// sides are merged key by key and every other value from source replaces the
// one in target. Keys only present in target are kept. A nil target yields a
// shallow copy of source.
func DeepMerge(target, source Document) Document {
	if target == nil {
		return shallowCopy(source)
	}
	merged := shallowCopy(target)
	for key, value := range source {
		incoming, incomingIsDoc := value.(map[string]any)
		existing, existingIsDoc := merged[key].(map[string]any)
		if incomingIsDoc && incoming != nil && existingIsDoc && existing != nil {
			merged[key] = DeepMerge(existing, incoming)
			continue
		}
		merged[key] = value
	}
	return merged
}

// ShallowReplace overwrites top-level keys of target with those of source.
// Nested documents under a shared key are replaced wholesale.
func ShallowReplace(target, source Document) Document {
	merged := shallowCopy(target)
	if merged == nil {
		merged = make(Document, len(source))
	}
	for key, value := range source {
		merged[key] = value
	}
	return merged
}

// CloneDocument deep copies doc.
func CloneDocument(doc Document) Document {
	if doc == nil {
		return nil
	}
	cloned, _ := Clone(doc).(map[string]any)
	return cloned
}

// Clone returns a deep copy of value. Maps, slices, arrays and pointers are
// copied recursively; other values are returned as-is.
func Clone(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = Clone(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Clone(item)
		}
		return out
	case string, bool, float64, float32, int, int64, int32, uint, uint64, uint32:
		return v
	}
	cloned := cloneValue(reflect.ValueOf(value))
	if !cloned.IsValid() {
		return nil
	}
	return cloned.Interface()
}

func shallowCopy(doc Document) Document {
	if doc == nil {
		return nil
	}
	out := make(Document, len(doc))
	for key, value := range doc {
		out[key] = value
	}
	return out
}

func cloneValue(v reflect.Value) reflect.Value {
	if !v.IsValid() {
		return v
	}

	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		clone := reflect.New(v.Type().Elem())
		clone.Elem().Set(cloneValue(v.Elem()))
		return clone
	case reflect.Interface:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		elem := cloneValue(v.Elem())
		if !elem.IsValid() {
			return reflect.Zero(v.Type())
		}
		return elem.Convert(v.Type())
	case reflect.Struct:
		clone := reflect.New(v.Type()).Elem()
		clone.Set(v)
		for i := 0; i < v.NumField(); i++ {
			field := clone.Field(i)
			if !field.CanSet() {
				continue
			}
			field.Set(cloneValue(v.Field(i)))
		}
		return clone
	case reflect.Map:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		clone := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			clone.SetMapIndex(iter.Key(), cloneValue(iter.Value()))
		}
		return clone
	case reflect.Slice:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		clone := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			clone.Index(i).Set(cloneValue(v.Index(i)))
		}
		return clone
	case reflect.Array:
		clone := reflect.New(v.Type()).Elem()
		for i := 0; i < v.Len(); i++ {
			clone.Index(i).Set(cloneValue(v.Index(i)))
		}
		return clone
	default:
		return v
	}
}
