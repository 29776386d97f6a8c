package docstore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore is the Store backed by Cloud Firestore.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore wraps an initialized Firestore client.
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

// Close releases the underlying client.
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func (s *FirestoreStore) NewID(collection string) string {
	return s.client.Collection(collection).NewDoc().ID
}

func (s *FirestoreStore) Get(ctx context.Context, collection, id string) (Document, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s/%s: %w", collection, id, err)
	}
	return &fsDocument{snap: snap}, nil
}

func (s *FirestoreStore) query(collection string, filters []Filter) firestore.Query {
	q := s.client.Collection(collection).Query
	for _, f := range filters {
		q = q.Where(f.Field, "==", f.Value)
	}
	return q
}

func (s *FirestoreStore) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	snaps, err := s.query(collection, filters).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", collection, err)
	}
	return wrapSnapshots(snaps), nil
}

func (s *FirestoreStore) Add(ctx context.Context, collection string, data map[string]interface{}) (string, error) {
	ref, _, err := s.client.Collection(collection).Add(ctx, toFirestore(data))
	if err != nil {
		return "", fmt.Errorf("failed to add to %s: %w", collection, err)
	}
	return ref.ID, nil
}

func (s *FirestoreStore) Set(ctx context.Context, collection, id string, data map[string]interface{}, merge bool) error {
	ref := s.client.Collection(collection).Doc(id)
	var err error
	if merge {
		_, err = ref.Set(ctx, toFirestore(data), firestore.MergeAll)
	} else {
		_, err = ref.Set(ctx, toFirestore(data))
	}
	if err != nil {
		return fmt.Errorf("failed to set %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *FirestoreStore) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	updates := make([]firestore.Update, 0, len(fields))
	for path, v := range toFirestore(fields) {
		updates = append(updates, firestore.Update{Path: path, Value: v})
	}
	_, err := s.client.Collection(collection).Doc(id).Update(ctx, updates)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return ErrNotFound
		}
		return fmt.Errorf("failed to update %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *FirestoreStore) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.client.Collection(collection).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *FirestoreStore) Batch() Batch {
	return &firestoreBatch{client: s.client, wb: s.client.Batch()}
}

func (s *FirestoreStore) Subscribe(ctx context.Context, collection string, filters ...Filter) (Subscription, error) {
	it := s.query(collection, filters).Snapshots(ctx)
	return &firestoreSubscription{it: it}, nil
}

type firestoreBatch struct {
	client *firestore.Client
	wb     *firestore.WriteBatch
	n      int
}

func (b *firestoreBatch) Set(collection, id string, data map[string]interface{}) {
	b.wb.Set(b.client.Collection(collection).Doc(id), toFirestore(data))
	b.n++
}

func (b *firestoreBatch) Len() int { return b.n }

func (b *firestoreBatch) Commit(ctx context.Context) error {
	if b.n > MaxBatchSize {
		return ErrBatchTooLarge
	}
	if b.n == 0 {
		return nil
	}
	if _, err := b.wb.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit batch of %d: %w", b.n, err)
	}
	return nil
}

type firestoreSubscription struct {
	it *firestore.QuerySnapshotIterator
}

// Next waits for the next query snapshot. The server SDK has no offline
// cache, so FromCache is never set here.
func (sub *firestoreSubscription) Next() (*Snapshot, error) {
	qs, err := sub.it.Next()
	if err != nil {
		if errors.Is(err, iterator.Done) || status.Code(err) == codes.Canceled {
			return nil, ErrSubscriptionClosed
		}
		return nil, err
	}
	snaps, err := qs.Documents.GetAll()
	if err != nil {
		return nil, err
	}
	return &Snapshot{Documents: wrapSnapshots(snaps), ReadTime: qs.ReadTime}, nil
}

func (sub *firestoreSubscription) Stop() {
	sub.it.Stop()
}

type fsDocument struct {
	snap *firestore.DocumentSnapshot
}

func (d *fsDocument) ID() string                   { return d.snap.Ref.ID }
func (d *fsDocument) Data() map[string]interface{} { return d.snap.Data() }
func (d *fsDocument) DataTo(v interface{}) error   { return d.snap.DataTo(v) }

func wrapSnapshots(snaps []*firestore.DocumentSnapshot) []Document {
	docs := make([]Document, 0, len(snaps))
	for _, snap := range snaps {
		docs = append(docs, &fsDocument{snap: snap})
	}
	return docs
}

// toFirestore swaps store sentinels for their Firestore equivalents.
func toFirestore(data map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		switch v {
		case ServerTimestamp:
			out[k] = firestore.ServerTimestamp
		case Delete:
			out[k] = firestore.Delete
		default:
			out[k] = v
		}
	}
	return out
}
