package persistence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"

	"linkhealth/domain/repository"
)

const documentsTable = "documents"

var fieldKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// decodeList unmarshals raw JSON documents into out, a pointer to a slice.
func decodeList(docs [][]byte, out any) error {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, d := range docs {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(d)
	}
	buf.WriteByte(']')
	if err := json.Unmarshal(buf.Bytes(), out); err != nil {
		return fmt.Errorf("decode documents: %w", err)
	}
	return nil
}

// filterKeys returns the filter keys sorted, rejecting keys unsafe to embed in a JSON path.
func filterKeys(filter repository.Filter) ([]string, error) {
	keys := make([]string, 0, len(filter))
	for k := range filter {
		if !fieldKeyPattern.MatchString(k) {
			return nil, fmt.Errorf("invalid filter key %q", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func filterValue(v any) string {
	return fmt.Sprint(v)
}

func jsonString(doc any) (string, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeOne(raw []byte, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}
