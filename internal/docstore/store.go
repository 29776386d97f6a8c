package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// MaxBatchSize is the largest number of writes a single batch may carry.
const MaxBatchSize = 500

var (
	ErrNotFound           = errors.New("document not found")
	ErrSubscriptionClosed = errors.New("subscription closed")
	ErrBatchTooLarge      = errors.New("batch exceeds maximum size")
)

// FieldValue is a sentinel placed in write data that the store resolves
// server-side.
type FieldValue int

const (
	// ServerTimestamp is replaced with the commit time of the write.
	ServerTimestamp FieldValue = iota + 1
	// Delete removes the field in a merge Set or an Update.
	Delete
)

// Filter is an equality predicate on a single field.
type Filter struct {
	Field string
	Value interface{}
}

// Where builds an equality filter.
func Where(field string, value interface{}) Filter {
	return Filter{Field: field, Value: value}
}

// Document is a single stored document.
type Document interface {
	ID() string
	Data() map[string]interface{}
	DataTo(v interface{}) error
}

// Snapshot is one delivery of the full matching document set.
type Snapshot struct {
	Documents []Document
	// FromCache is set when the delivery carries no new server truth.
	FromCache bool
	ReadTime  time.Time
}

// Subscription is a standing query. Next blocks until the next snapshot is
// available and returns ErrSubscriptionClosed once Stop was called or the
// subscription context ended.
type Subscription interface {
	Next() (*Snapshot, error)
	Stop()
}

// Batch groups writes that commit together.
type Batch interface {
	Set(collection, id string, data map[string]interface{})
	Len() int
	Commit(ctx context.Context) error
}

// Store is the document database the marketplace runs on.
type Store interface {
	// NewID reserves a fresh document ID in collection.
	NewID(collection string) string
	Get(ctx context.Context, collection, id string) (Document, error)
	// Query returns the documents matching every filter. No filters means a
	// full collection scan.
	Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error)
	Add(ctx context.Context, collection string, data map[string]interface{}) (string, error)
	Set(ctx context.Context, collection, id string, data map[string]interface{}, merge bool) error
	Update(ctx context.Context, collection, id string, fields map[string]interface{}) error
	Delete(ctx context.Context, collection, id string) error
	Batch() Batch
	Subscribe(ctx context.Context, collection string, filters ...Filter) (Subscription, error)
}

// mapDocument is a Document backed by plain field data.
type mapDocument struct {
	id   string
	data map[string]interface{}
}

// NewDocument wraps already-resolved field data as a Document.
func NewDocument(id string, data map[string]interface{}) Document {
	return &mapDocument{id: id, data: data}
}

func (d *mapDocument) ID() string { return d.id }

func (d *mapDocument) Data() map[string]interface{} {
	out := make(map[string]interface{}, len(d.data))
	for k, v := range d.data {
		out[k] = v
	}
	return out
}

// DataTo decodes the document through its JSON form, so destination structs
// use their json tags.
func (d *mapDocument) DataTo(v interface{}) error {
	raw, err := json.Marshal(d.data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
