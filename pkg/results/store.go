// Package results keeps a history of completed runs in a badger database so
// that runs can be compared across invocations.
package results

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/vecsum/vecsum/pkg/telemetry"
)

const runPrefix = "run:"

// Store is a run history.
type Store struct {
	db *badger.DB
}

// Open opens or creates the history in dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("results.Open: %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// runKey orders runs by completion time. The zero-padded nanosecond stamp
// keeps byte order equal to time order.
func runKey(ts time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", runPrefix, ts.UnixNano(), id))
}

// Record stores a run. A run without an ID is given one.
func (s *Store) Record(evt telemetry.RunEvent) error {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	if evt.RunID == "" {
		evt.RunID = uuid.NewString()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("results.Record: marshal: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(runKey(evt.Timestamp, evt.RunID), data)
	})
	if err != nil {
		return fmt.Errorf("results.Record: %w", err)
	}
	slog.Debug("Run recorded", "component", "results", "strategy", evt.Strategy, "ts", evt.Timestamp)
	return nil
}

// Filter selects runs for List.
type Filter struct {
	Strategy string // empty matches all
	Path     string // empty matches all
	Limit    int    // 0 means no limit
}

func (f Filter) match(evt *telemetry.RunEvent) bool {
	if f.Strategy != "" && evt.Strategy != f.Strategy {
		return false
	}
	if f.Path != "" && evt.Path != f.Path {
		return false
	}
	return true
}

// List returns matching runs, newest first.
func (s *Store) List(f Filter) ([]telemetry.RunEvent, error) {
	var out []telemetry.RunEvent
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(runPrefix)
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// In reverse mode Seek lands on the last key <= the seek key.
		seek := append([]byte(runPrefix), 0xFF)
		for it.Seek(seek); it.Valid(); it.Next() {
			var evt telemetry.RunEvent
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &evt)
			})
			if err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			if !f.match(&evt) {
				continue
			}
			out = append(out, evt)
			if f.Limit > 0 && len(out) >= f.Limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("results.List: %w", err)
	}
	return out, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
