// Package storage persists medicines, users, contacts and history as JSON
// documents grouped in collections.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

const (
	CollectionMedicines = "medicines"
	CollectionUsers     = "users"
	CollectionContacts  = "contacts"
	CollectionDoseLogs  = "dose_logs"
	CollectionAlerts    = "alerts"
)

// Filter matches documents whose top-level Field equals Value. When the
// field holds an array, any element may match.
type Filter struct {
	Field string
	Value any
}

// Store is a document database. It gives no multi-document guarantees.
type Store interface {
	Get(ctx context.Context, collection, id string, dst any) error
	Set(ctx context.Context, collection, id string, doc any) error
	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, collection string, filters ...Filter) ([]json.RawMessage, error)
	Close() error
}

// matches is shared by every Store implementation so filtering semantics
// stay identical across backends.
func matches(raw []byte, filters []Filter) (bool, error) {
	if len(filters) == 0 {
		return true, nil
	}
	// UseNumber keeps large ids such as Telegram chat ids exact.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return false, fmt.Errorf("decode document: %w", err)
	}
	for _, f := range filters {
		v, ok := doc[f.Field]
		if !ok || !valueMatches(v, f.Value) {
			return false, nil
		}
	}
	return true, nil
}

func valueMatches(docVal, want any) bool {
	if arr, ok := docVal.([]any); ok {
		for _, el := range arr {
			if scalarEqual(el, want) {
				return true
			}
		}
		return false
	}
	return scalarEqual(docVal, want)
}

func scalarEqual(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}
