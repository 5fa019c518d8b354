package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

// MergeDepth is how many map levels SetMerged merges. Level 1 is the
// document itself, level 2 the entries of its nested maps (for example each
// day in "logs"). Values below that depth are replaced as a unit, so a day
// log written by a client fully replaces the stored one and keys the client
// removed (such as a cleared task timestamp) do not survive.
const MergeDepth = 2

// Sanitize converts v into a generic document tree in which every absent
// value is an explicit nil.
//
// Nil maps, slices, pointers and interfaces anywhere in v become nil
// entries (JSON null) instead of being dropped or rejected by the store.
// Numbers are kept as json.Number so integer timestamps survive the round
// trip exactly.
func Sanitize(v any) (Document, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	if len(data) == 0 || data[0] != '{' {
		return nil, fmt.Errorf("document must be a JSON object")
	}
	tree, err := ParseDocument(data)
	if err != nil {
		return nil, err
	}
	doc, _ := sanitizeValue(tree).(map[string]any)
	return doc, nil
}

// ParseDocument decodes a JSON object into a Document, keeping numbers as
// json.Number.
func ParseDocument(data []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return doc, nil
}

// sanitizeValue walks a decoded tree, normalising typed nils that may have
// been put into a Document by hand.
func sanitizeValue(v any) any {
	if v == nil {
		return nil
	}
	switch t := v.(type) {
	case map[string]any:
		if t == nil {
			return nil
		}
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = sanitizeValue(child)
		}
		return out
	case []any:
		if t == nil {
			return nil
		}
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = sanitizeValue(child)
		}
		return out
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
	}
	return v
}

// Merge merges src into dst down to MergeDepth and returns dst. A nil dst
// is allocated. Keys present in src overwrite; keys only in dst are kept.
func Merge(dst, src Document) Document {
	return mergeLevel(dst, src, 1)
}

func mergeLevel(dst, src map[string]any, level int) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, sv := range src {
		sm, srcIsMap := sv.(map[string]any)
		dm, dstIsMap := dst[k].(map[string]any)
		if level < MergeDepth && srcIsMap && dstIsMap {
			dst[k] = mergeLevel(dm, sm, level+1)
			continue
		}
		dst[k] = sv
	}
	return dst
}

// Clone deep-copies a document.
func Clone(doc Document) Document {
	if doc == nil {
		return nil
	}
	return cloneValue(doc).(map[string]any)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = cloneValue(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = cloneValue(child)
		}
		return out
	default:
		return v
	}
}
