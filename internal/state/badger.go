// SPDX-License-Identifier: MIT
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

const runPrefix = "run:"

// BadgerStore persists snapshots in a badger database so runs survive
// process restarts. Keys are "run:<id>", values JSON encoded.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens (or creates) the snapshot database at dir.
func OpenBadger(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("state: open badger at %s: %w", dir, err)
	}
	return &BadgerStore{db: db}, nil
}

func (b *BadgerStore) Save(_ context.Context, st *CrawlState) error {
	buf, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("state: encode snapshot %s: %w", st.RunID, err)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(runPrefix+st.RunID), buf)
	})
	if err != nil {
		return fmt.Errorf("state: save snapshot %s: %w", st.RunID, err)
	}
	return nil
}

func (b *BadgerStore) Load(_ context.Context, runID string) (*CrawlState, error) {
	var st CrawlState
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(runPrefix + runID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &st)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("state: load snapshot %s: %w", runID, err)
	}
	return &st, nil
}

func (b *BadgerStore) Delete(_ context.Context, runID string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(runPrefix + runID))
	})
	if err != nil {
		return fmt.Errorf("state: delete snapshot %s: %w", runID, err)
	}
	return nil
}

func (b *BadgerStore) List(ctx context.Context) ([]string, error) {
	var ids []string
	prefix := []byte(runPrefix)
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			ids = append(ids, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("state: list snapshots: %w", err)
	}
	return ids, nil
}

func (b *BadgerStore) Close() error {
	return b.db.Close()
}

var _ Store = (*BadgerStore)(nil)
