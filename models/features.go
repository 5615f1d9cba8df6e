package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ParseFeatures decodes a JSON string list column. Empty and null columns are an empty list.
// Malformed content is reported to the caller, which decides whether to substitute a default.
func ParseFeatures(raw []byte) ([]string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []string{}, nil
	}

	var features []string
	if err := json.Unmarshal(trimmed, &features); err != nil {
		return []string{}, fmt.Errorf("decode features: %w", err)
	}
	if features == nil {
		features = []string{}
	}
	return features, nil
}

// EncodeFeatures is the inverse of ParseFeatures; a nil list is stored as [].
func EncodeFeatures(features []string) []byte {
	if features == nil {
		features = []string{}
	}
	encoded, _ := json.Marshal(features)
	return encoded
}
