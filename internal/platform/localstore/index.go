package localstore

import (
	"fmt"

	"github.com/sehetyar/sync-agent/internal/platform/schema"
)

// indexValues computes the index rows for a document: one row per declared
// index field, plus one per reference field so the id-rewrite cascade can
// find every referrer without scanning bodies.
func indexValues(sc *schema.Schema, doc Document) map[string][]string {
	out := make(map[string][]string)

	for _, field := range sc.Indexes {
		v, ok := doc[field]
		if !ok || v == nil {
			continue
		}
		out[field] = []string{scalarString(v)}
	}

	for _, field := range sc.RefFields() {
		v, ok := doc[field]
		if !ok || v == nil {
			continue
		}
		switch sc.Fields[field].Kind {
		case schema.Reference:
			if id := refID(v); id != "" {
				out[field] = []string{id}
			}
		case schema.ReferenceList:
			items, _ := v.([]interface{})
			var ids []string
			for _, item := range items {
				if id := refID(item); id != "" {
					ids = append(ids, id)
				}
			}
			if len(ids) > 0 {
				out[field] = ids
			}
		}
	}
	return out
}

// refID extracts the referenced id from either a bare id string or an
// expanded {_id, name} reference object.
func refID(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]interface{}:
		id, _ := t["_id"].(string)
		return id
	}
	return ""
}

// MatchField reports whether a document's field equals value under the
// schema's comparison rules (reference fields compare by the inner id).
// Used by callers that filter already-loaded documents.
func MatchField(sc *schema.Schema, doc Document, field, value string) bool {
	return fieldMatches(sc, field, doc[field], value)
}

func isRefField(sc *schema.Schema, field string) bool {
	f, ok := sc.Fields[field]
	if !ok {
		return false
	}
	return f.Kind == schema.Reference || f.Kind == schema.ReferenceList
}

func fieldMatches(sc *schema.Schema, field string, docValue interface{}, want string) bool {
	if docValue == nil {
		return false
	}
	if isRefField(sc, field) {
		if f := sc.Fields[field]; f.Kind == schema.ReferenceList {
			items, _ := docValue.([]interface{})
			for _, item := range items {
				if refID(item) == want {
					return true
				}
			}
			return false
		}
		return refID(docValue) == want
	}
	return scalarString(docValue) == want
}

func scalarString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// JSON numbers decode as float64; keep integral values clean.
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprintf("%v", v)
	}
}
