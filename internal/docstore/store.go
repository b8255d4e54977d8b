// Package docstore defines the document persistence surface the portal is built on.
//
// Documents live in named collections and carry free-form fields. Implementations
// report transport failures, timeouts and cancellations as ErrUnavailable so callers
// can tell "the store said no" apart from "the store could not be reached".
package docstore

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// Store errors.
var (
	ErrNotFound    = errors.New("document not found")
	ErrUnavailable = errors.New("document store unavailable")
)

// TimeLayout is a fixed-width UTC layout, so timestamps stored as fields
// order correctly when compared as text.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTime renders t for storage in a document field.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a timestamp written by FormatTime.
// Values in RFC 3339 are accepted as well.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// Fields holds the attributes of a document.
type Fields map[string]any

// String returns the field as text. Missing and null fields yield "".
func (f Fields) String(key string) string {
	switch v := f[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// Int returns the field as an integer, or 0 when missing or not numeric.
func (f Fields) Int(key string) int {
	switch v := f[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// Clone returns a shallow copy of f.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Document is a stored record.
type Document struct {
	ID        string
	Fields    Fields
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store is the document persistence capability surface.
type Store interface {
	// All returns every document of a collection in unspecified order.
	All(ctx context.Context, collection string) ([]Document, error)
	// Get returns a single document or ErrNotFound.
	Get(ctx context.Context, collection, id string) (*Document, error)
	// Create stores a new document under a generated id and returns the id.
	Create(ctx context.Context, collection string, fields Fields) (string, error)
	// Put creates or replaces the document with the given id.
	Put(ctx context.Context, collection, id string, fields Fields) error
	// Update merges fields into an existing document or returns ErrNotFound.
	Update(ctx context.Context, collection, id string, fields Fields) error
	// Delete removes a document or returns ErrNotFound.
	Delete(ctx context.Context, collection, id string) error
	// OrderedBy returns every document of a collection ordered by the text
	// value of field. Ties are broken by id.
	OrderedBy(ctx context.Context, collection, field string, descending bool) ([]Document, error)
}
