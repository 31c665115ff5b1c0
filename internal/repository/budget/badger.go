package budget

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/kailas-cloud/tokgov/internal/domain"
	domgov "github.com/kailas-cloud/tokgov/internal/domain/governor"
)

// DefaultBadgerKey is the key holding the JSON record.
const DefaultBadgerKey = "tokgov/governor/state"

// BadgerStore keeps governor state under one key of an embedded BadgerDB.
type BadgerStore struct {
	db  *badger.DB
	key []byte
}

// NewBadgerStore wraps an open database. The caller owns db and closes it.
func NewBadgerStore(db *badger.DB, key string) *BadgerStore {
	if key == "" {
		key = DefaultBadgerKey
	}
	return &BadgerStore{db: db, key: []byte(key)}
}

// OpenBadger opens (or creates) a database directory with Badger's own logging silenced.
// Writes are synced: a committed Update is on disk before it returns.
func OpenBadger(dir string) (*badger.DB, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil).WithSyncWrites(true))
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", dir, err)
	}
	return db, nil
}

// Ping fails once the database is closed.
func (s *BadgerStore) Ping(_ context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger: database closed")
	}
	return nil
}

// Load reads the record.
func (s *BadgerStore) Load(_ context.Context) (domgov.State, error) {
	var st domgov.State
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		st, err = s.get(txn)
		return err
	})
	if err != nil {
		return domgov.State{}, err
	}
	return st, nil
}

// Save overwrites the record.
func (s *BadgerStore) Save(_ context.Context, st domgov.State) error {
	data, err := encodeJSON(st)
	if err != nil {
		return err
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.key, data)
	}); err != nil {
		return fmt.Errorf("badger set %s: %w", s.key, err)
	}
	return nil
}

// Record rolls and increments inside one read-write transaction.
// Badger's optimistic concurrency aborts the commit on a conflicting write;
// the conflict is retried a bounded number of times.
func (s *BadgerStore) Record(_ context.Context, day domgov.Day, delta int64) (domgov.State, error) {
	const maxAttempts = 3

	var out domgov.State
	var err error
	for range maxAttempts {
		err = s.db.Update(func(txn *badger.Txn) error {
			cur, err := s.get(txn)
			switch {
			case err == nil:
			case errors.Is(err, domain.ErrStateNotFound), errors.Is(err, domain.ErrCorruptState):
				cur = domgov.Fresh(day)
			default:
				return err
			}
			cur, _ = cur.Rolled(day)
			cur, err = cur.Add(delta)
			if err != nil {
				return err //nolint:wrapcheck // wrapped below
			}

			data, err := encodeJSON(cur)
			if err != nil {
				return err
			}
			if err := txn.Set(s.key, data); err != nil {
				return err //nolint:wrapcheck // wrapped below
			}
			out = cur
			return nil
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	if err != nil {
		return domgov.State{}, fmt.Errorf("badger record %s: %w", s.key, err)
	}
	return out, nil
}

func (s *BadgerStore) get(txn *badger.Txn) (domgov.State, error) {
	item, err := txn.Get(s.key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domgov.State{}, fmt.Errorf("%w: %s", domain.ErrStateNotFound, s.key)
		}
		return domgov.State{}, fmt.Errorf("badger get %s: %w", s.key, err)
	}
	var st domgov.State
	err = item.Value(func(val []byte) error {
		st, err = decodeJSON(val)
		return err
	})
	return st, err //nolint:wrapcheck // decodeJSON wraps
}
