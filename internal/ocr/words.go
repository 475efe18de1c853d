package ocr

import (
	"encoding/json"
	"strings"
)

// The vendor payload is schema-less: any field may arrive as a bare string,
// as an object wrapping a "word" value, or as an array of either. These
// helpers are the single decoder for all three shapes; every field read
// goes through them.

type wordObject struct {
	Word string `json:"word"`
}

// extractWord decodes one scalar-or-object element into its string value.
// Returns "" when the element has neither shape.
func extractWord(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj wordObject
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Word
	}
	return ""
}

// enumerateWords flattens an element of any of the three shapes into the
// list of its non-blank string values.
func enumerateWords(raw json.RawMessage) []string {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err == nil {
		var words []string
		for _, item := range items {
			if w := extractWord(item); strings.TrimSpace(w) != "" {
				words = append(words, w)
			}
		}
		return words
	}

	if w := extractWord(raw); strings.TrimSpace(w) != "" {
		return []string{w}
	}
	return nil
}

// firstWord reads the named field and returns its first non-blank string
// value, if any.
func firstWord(fields map[string]json.RawMessage, key string) (string, bool) {
	raw, ok := fields[key]
	if !ok {
		return "", false
	}
	words := enumerateWords(raw)
	if len(words) == 0 {
		return "", false
	}
	return words[0], true
}
