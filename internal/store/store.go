// Package store defines the document store contract the registration engine
// consumes: CRUD plus indexed equality lookups over four record kinds.
//
// Records are JSON documents. The store assigns the id and the creation time;
// everything else lives in Fields and is owned by the caller.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a document id does not exist.
var ErrNotFound = errors.New("document not found")

// ErrNoIndex is returned when a query filters or orders on a field that has no
// secondary index for the kind.
var ErrNoIndex = errors.New("no index for field")

// Kind names a record collection.
type Kind string

const (
	KindSetting       Kind = "setting"
	KindEvent         Kind = "event"
	KindRegistration  Kind = "registration"
	KindServiceRecord Kind = "serviceRecord"
)

// Kinds lists every collection, in a stable order.
var Kinds = []Kind{KindSetting, KindEvent, KindRegistration, KindServiceRecord}

// Indexes lists the secondary indexes per kind. Backends create exactly these.
var Indexes = map[Kind][]string{
	KindSetting: {"name"},
	KindEvent:   {"name", "link"},
}

// Indexed reports whether field is a secondary index of kind.
func Indexed(kind Kind, field string) bool {
	for _, f := range Indexes[kind] {
		if f == field {
			return true
		}
	}
	return false
}

// Document is a stored record.
type Document struct {
	ID        string
	Kind      Kind
	CreatedAt time.Time
	Fields    json.RawMessage
}

// Decode unmarshals the document fields into v.
func (d *Document) Decode(v any) error {
	if err := json.Unmarshal(d.Fields, v); err != nil {
		return fmt.Errorf("decode %s %s: %w", d.Kind, d.ID, err)
	}
	return nil
}

// Order is the sort direction of a query.
type Order int

const (
	Asc Order = iota
	Desc
)

// Query selects documents of one kind. Field/Equals is an optional equality
// filter on an indexed field. OrderBy names an indexed field to sort on; when
// empty, documents are sorted by creation time. Limit 0 means no limit.
type Query struct {
	Kind    Kind
	Field   string
	Equals  string
	OrderBy string
	Order   Order
	Limit   int
}

// Validate checks the query against the index table.
func (q Query) Validate() error {
	if q.Field != "" && !Indexed(q.Kind, q.Field) {
		return fmt.Errorf("%w: %s.%s", ErrNoIndex, q.Kind, q.Field)
	}
	if q.OrderBy != "" && !Indexed(q.Kind, q.OrderBy) {
		return fmt.Errorf("%w: %s.%s", ErrNoIndex, q.Kind, q.OrderBy)
	}
	return nil
}

// Store is the document store contract. Patch merges top-level fields into the
// stored document. Patch and Delete return ErrNotFound for unknown ids.
type Store interface {
	Insert(ctx context.Context, kind Kind, fields any) (string, error)
	Get(ctx context.Context, id string) (*Document, error)
	Patch(ctx context.Context, id string, fields map[string]any) error
	Delete(ctx context.Context, id string) error
	Query(ctx context.Context, q Query) ([]Document, error)
}

// Clock supplies creation timestamps.
type Clock func() time.Time

// SystemClock returns the current UTC time.
func SystemClock() time.Time { return time.Now().UTC() }

// MarshalFields encodes fields as a JSON object.
func MarshalFields(fields any) (json.RawMessage, error) {
	b, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	if len(b) == 0 || b[0] != '{' {
		return nil, fmt.Errorf("encode fields: %T is not an object", fields)
	}
	return b, nil
}

// MergeFields applies a top-level patch to a JSON object.
func MergeFields(doc json.RawMessage, patch map[string]any) (json.RawMessage, error) {
	obj := map[string]json.RawMessage{}
	if len(doc) > 0 {
		if err := json.Unmarshal(doc, &obj); err != nil {
			return nil, fmt.Errorf("decode stored fields: %w", err)
		}
	}
	for k, v := range patch {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode patch field %q: %w", k, err)
		}
		obj[k] = b
	}
	out, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("encode merged fields: %w", err)
	}
	return out, nil
}

// FieldString extracts a top-level string field, used by backends that
// evaluate index filters in process.
func FieldString(doc json.RawMessage, field string) string {
	obj := map[string]json.RawMessage{}
	if err := json.Unmarshal(doc, &obj); err != nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(obj[field], &s); err != nil {
		return ""
	}
	return s
}
