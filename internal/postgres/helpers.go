package postgres

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgtype"
)

// nullableTextToString converts pgtype.Text to a Go string.
func nullableTextToString(t pgtype.Text) string {
	if t.Valid {
		return t.String
	}
	return ""
}

// decodeDoc unmarshals a jsonb column into a loosely-typed record. A NULL or
// empty column yields an empty record.
func decodeDoc(data []byte) (map[string]any, error) {
	doc := map[string]any{}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode jsonb document: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

// withKey sets key to value unless the document already carries one.
func withKey(doc map[string]any, key, value string) {
	if v, ok := doc[key]; ok && v != nil && v != "" {
		return
	}
	doc[key] = value
}
