package docstore

import (
	"context"
	"reflect"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Op names a store operation for fault injection.
type Op string

const (
	OpGet    Op = "get"
	OpQuery  Op = "query"
	OpAdd    Op = "add"
	OpSet    Op = "set"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	OpCommit Op = "commit"
)

// FaultFunc may return an error to fail an operation before it touches state.
type FaultFunc func(op Op, collection, id string) error

const idAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// MemoryStore is an in-process Store. Every write pushes a full-state
// snapshot to each subscription on the written collection, the way the hosted
// store redelivers the whole matching set.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
	subs        map[*memorySubscription]struct{}
	fault       FaultFunc
	now         func() time.Time
}

type memoryCollection struct {
	docs  map[string]map[string]interface{}
	order []string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]*memoryCollection),
		subs:        make(map[*memorySubscription]struct{}),
		now:         time.Now,
	}
}

// SetFault installs a fault hook. Pass nil to clear it.
func (s *MemoryStore) SetFault(f FaultFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = f
}

// SetClock overrides the time source used for ServerTimestamp.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Count returns the number of documents in collection.
func (s *MemoryStore) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.collections[collection]; ok {
		return len(c.docs)
	}
	return 0
}

func (s *MemoryStore) checkFault(op Op, collection, id string) error {
	if s.fault == nil {
		return nil
	}
	return s.fault(op, collection, id)
}

func (s *MemoryStore) collection(name string) *memoryCollection {
	c, ok := s.collections[name]
	if !ok {
		c = &memoryCollection{docs: make(map[string]map[string]interface{})}
		s.collections[name] = c
	}
	return c
}

func (s *MemoryStore) NewID(collection string) string {
	id, err := gonanoid.Generate(idAlphabet, 20)
	if err != nil {
		// crypto/rand failure; fall back to a time-derived ID
		return time.Now().UTC().Format("20060102150405.000000000")
	}
	return id
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkFault(OpGet, collection, id); err != nil {
		return nil, err
	}
	c, ok := s.collections[collection]
	if !ok {
		return nil, ErrNotFound
	}
	data, ok := c.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return NewDocument(id, copyData(data)), nil
}

func (s *MemoryStore) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkFault(OpQuery, collection, ""); err != nil {
		return nil, err
	}
	return s.matching(collection, filters), nil
}

func (s *MemoryStore) matching(collection string, filters []Filter) []Document {
	c, ok := s.collections[collection]
	if !ok {
		return []Document{}
	}
	docs := make([]Document, 0, len(c.order))
	for _, id := range c.order {
		data := c.docs[id]
		if matches(data, filters) {
			docs = append(docs, NewDocument(id, copyData(data)))
		}
	}
	return docs
}

func matches(data map[string]interface{}, filters []Filter) bool {
	for _, f := range filters {
		v, ok := data[f.Field]
		if !ok || !reflect.DeepEqual(v, f.Value) {
			return false
		}
	}
	return true
}

func (s *MemoryStore) Add(ctx context.Context, collection string, data map[string]interface{}) (string, error) {
	id := s.NewID(collection)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkFault(OpAdd, collection, id); err != nil {
		return "", err
	}
	s.write(collection, id, data, false)
	s.publish(collection)
	return id, nil
}

func (s *MemoryStore) Set(ctx context.Context, collection, id string, data map[string]interface{}, merge bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkFault(OpSet, collection, id); err != nil {
		return err
	}
	s.write(collection, id, data, merge)
	s.publish(collection)
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkFault(OpUpdate, collection, id); err != nil {
		return err
	}
	c, ok := s.collections[collection]
	if !ok {
		return ErrNotFound
	}
	if _, ok := c.docs[id]; !ok {
		return ErrNotFound
	}
	s.write(collection, id, fields, true)
	s.publish(collection)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkFault(OpDelete, collection, id); err != nil {
		return err
	}
	c, ok := s.collections[collection]
	if !ok {
		return nil
	}
	if _, ok := c.docs[id]; !ok {
		return nil
	}
	delete(c.docs, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	s.publish(collection)
	return nil
}

// write applies data to a document. Callers hold s.mu.
func (s *MemoryStore) write(collection, id string, data map[string]interface{}, merge bool) {
	c := s.collection(collection)
	existing, ok := c.docs[id]
	if !ok {
		c.order = append(c.order, id)
	}
	var doc map[string]interface{}
	if merge && ok {
		doc = copyData(existing)
	} else {
		doc = make(map[string]interface{}, len(data))
	}
	for k, v := range data {
		switch v {
		case ServerTimestamp:
			doc[k] = s.now().UTC()
		case Delete:
			delete(doc, k)
		default:
			doc[k] = v
		}
	}
	c.docs[id] = doc
}

func copyData(data map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}

type memoryWrite struct {
	collection string
	id         string
	data       map[string]interface{}
}

type memoryBatch struct {
	store  *MemoryStore
	writes []memoryWrite
}

func (s *MemoryStore) Batch() Batch {
	return &memoryBatch{store: s}
}

func (b *memoryBatch) Set(collection, id string, data map[string]interface{}) {
	b.writes = append(b.writes, memoryWrite{collection: collection, id: id, data: data})
}

func (b *memoryBatch) Len() int { return len(b.writes) }

func (b *memoryBatch) Commit(ctx context.Context) error {
	if len(b.writes) > MaxBatchSize {
		return ErrBatchTooLarge
	}
	s := b.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range b.writes {
		if err := s.checkFault(OpCommit, w.collection, w.id); err != nil {
			return err
		}
	}
	touched := make(map[string]struct{})
	for _, w := range b.writes {
		s.write(w.collection, w.id, w.data, false)
		touched[w.collection] = struct{}{}
	}
	for collection := range touched {
		s.publish(collection)
	}
	return nil
}

type memorySubscription struct {
	store      *MemoryStore
	collection string
	filters    []Filter
	ctx        context.Context
	ch         chan *Snapshot
	closed     chan struct{}
	once       sync.Once
}

// Subscribe delivers the current matching set immediately and again after
// every write to the collection. A slow reader only ever sees the latest
// state; intermediate snapshots are coalesced.
func (s *MemoryStore) Subscribe(ctx context.Context, collection string, filters ...Filter) (Subscription, error) {
	sub := &memorySubscription{
		store:      s,
		collection: collection,
		filters:    filters,
		ctx:        ctx,
		ch:         make(chan *Snapshot, 1),
		closed:     make(chan struct{}),
	}
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	sub.offer(&Snapshot{Documents: s.matching(collection, filters), ReadTime: s.now()})
	s.mu.Unlock()
	return sub, nil
}

// publish pushes the current state to subscribers of collection. Callers hold s.mu.
func (s *MemoryStore) publish(collection string) {
	for sub := range s.subs {
		if sub.collection != collection {
			continue
		}
		sub.offer(&Snapshot{Documents: s.matching(collection, sub.filters), ReadTime: s.now()})
	}
}

// Redeliver pushes the current state of collection again without a write,
// optionally flagged as served from cache. A cache redelivery is dropped when
// a server snapshot is still waiting to be read.
func (s *MemoryStore) Redeliver(collection string, fromCache bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		if sub.collection != collection {
			continue
		}
		sub.offer(&Snapshot{Documents: s.matching(collection, sub.filters), FromCache: fromCache, ReadTime: s.now()})
	}
}

// offer replaces any undelivered snapshot with snap, except that a cache
// snapshot never displaces a pending server snapshot. Producers are
// serialized by the store mutex.
func (sub *memorySubscription) offer(snap *Snapshot) {
	select {
	case sub.ch <- snap:
		return
	default:
	}
	select {
	case pending := <-sub.ch:
		if snap.FromCache && !pending.FromCache {
			snap = pending
		}
	default:
	}
	sub.ch <- snap
}

func (sub *memorySubscription) Next() (*Snapshot, error) {
	select {
	case <-sub.closed:
		return nil, ErrSubscriptionClosed
	case <-sub.ctx.Done():
		return nil, ErrSubscriptionClosed
	default:
	}
	select {
	case snap := <-sub.ch:
		return snap, nil
	case <-sub.closed:
		return nil, ErrSubscriptionClosed
	case <-sub.ctx.Done():
		return nil, ErrSubscriptionClosed
	}
}

func (sub *memorySubscription) Stop() {
	sub.once.Do(func() {
		close(sub.closed)
		sub.store.mu.Lock()
		delete(sub.store.subs, sub)
		sub.store.mu.Unlock()
	})
}
