package chat

import (
	"fmt"
	"reflect"
	"strings"
)

// FlattenContent collapses message content into one flat string. Content
// from the provider is either a plain string or an ordered sequence of
// heterogeneous parts, some carrying a "text" field. Sequences are joined
// with single spaces and trimmed; anything else degrades to its string
// form. The function is total: no input shape makes it fail.
func FlattenContent(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return fmt.Sprint(v)
	}

	parts := make([]string, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		parts = append(parts, partText(rv.Index(i).Interface()))
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// partText extracts the text of one content part: the "text" field of a
// mapping when present, the element's string form otherwise.
func partText(elem any) string {
	if m, ok := elem.(map[string]any); ok {
		if text, ok := m["text"]; ok {
			if s, ok := text.(string); ok {
				return s
			}
			return fmt.Sprint(text)
		}
	}
	if m, ok := elem.(map[string]string); ok {
		if text, ok := m["text"]; ok {
			return text
		}
	}
	return fmt.Sprint(elem)
}
