package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tcsync/internal/interfaces"
)

var _ interfaces.QueueStore = (*BadgerStore)(nil)

// BadgerStore implements the batch queue on an embedded Badger database.
// Key format: queue:{name}:msg:{sequence}; the zero-padded sequence keeps
// iteration order equal to push order.
type BadgerStore struct {
	db     *badger.DB
	name   string
	seq    *badger.Sequence
	mu     sync.Mutex
	logger arbor.ILogger
}

// NewBadgerStore creates a Badger-backed queue store. The caller owns db.
func NewBadgerStore(db *badger.DB, name string, logger arbor.ILogger) (*BadgerStore, error) {
	if db == nil {
		return nil, errors.New("badger db is required")
	}
	if name == "" {
		return nil, errors.New("queue name is required")
	}

	seq, err := db.GetSequence([]byte(fmt.Sprintf("queue:%s:seq", name)), 100)
	if err != nil {
		return nil, fmt.Errorf("failed to lease queue sequence: %w", err)
	}

	return &BadgerStore{
		db:     db,
		name:   name,
		seq:    seq,
		logger: logger,
	}, nil
}

// Push appends a batch payload
func (s *BadgerStore) Push(ctx context.Context, payload string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	n, err := s.seq.Next()
	s.mu.Unlock()
	if err != nil {
		return false, fmt.Errorf("%w: next sequence: %v", ErrQueueUnavailable, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.msgKey(n), []byte(payload))
	})
	if err != nil {
		return false, fmt.Errorf("%w: push: %v", ErrQueueUnavailable, err)
	}
	return true, nil
}

// Pop removes and returns the oldest payload
func (s *BadgerStore) Pop(ctx context.Context) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	var payload []byte
	err := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := s.prefix()
		it.Seek(prefix)
		if !it.ValidForPrefix(prefix) {
			return nil
		}

		item := it.Item()
		key := item.KeyCopy(nil)
		value, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		payload = value
		return txn.Delete(key)
	})
	if err != nil {
		return "", false, fmt.Errorf("%w: pop: %v", ErrQueueUnavailable, err)
	}
	if payload == nil {
		return "", false, nil
	}
	return string(payload), true, nil
}

// Len returns the number of pending payloads
func (s *BadgerStore) Len(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := s.prefix()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: len: %v", ErrQueueUnavailable, err)
	}
	return count, nil
}

// Close releases the leased sequence range; the database itself stays open
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq.Release()
}

func (s *BadgerStore) prefix() []byte {
	return []byte(fmt.Sprintf("queue:%s:msg:", s.name))
}

func (s *BadgerStore) msgKey(n uint64) []byte {
	return []byte(fmt.Sprintf("queue:%s:msg:%020d", s.name, n))
}
