//go:generate go run go.uber.org/mock/mockgen -source=delivery.go -destination=../mocks/mock_delivery_repository.go -package=mocks
package repositories

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"support-hub/domain"
	hub "support-hub/errors"
)

const (
	logPrefix  = "log:"
	metaPrefix = "meta:"

	// Concurrent appends to the same key touch the same meta entry and can
	// conflict under badger's SSI; a bounded retry absorbs that.
	maxAppendRetries = 5
)

type IDeliveryStore interface {
	Append(key domain.Key, entry domain.Entry) error
	ReadAll(key domain.Key) ([]domain.Entry, error)
	Expire(key domain.Key) error
	ExpireStale() (int, error)
}

// DeliveryStore is the append-only per-key log backing chat history and
// queued notifications. A whole log expires at once when nothing has been
// appended to it for the retention window; single entries never expire on
// their own.
type DeliveryStore struct {
	db        *badger.DB
	log       *slog.Logger
	retention time.Duration
	now       func() time.Time
}

func NewDeliveryStore(db *badger.DB, log *slog.Logger, retention time.Duration) *DeliveryStore {
	return &DeliveryStore{db: db, log: log, retention: retention, now: time.Now}
}

// entryKey builds "log:{key}:{timestamp_padded}:{uuid}".
//  1. The 19-digit zero padding makes lexicographical order chronological,
//     so a forward prefix scan returns entries in append order.
//  2. The UUID disconnects collisions when two entries land on the same
//     nanosecond.
func entryKey(key domain.Key, at time.Time) []byte {
	return []byte(fmt.Sprintf("%s%s:%019d:%s", logPrefix, key, at.UnixNano(), uuid.NewString()))
}

func metaKey(key domain.Key) []byte {
	return []byte(metaPrefix + string(key))
}

// Append persists an entry and resets the key's retention clock. The entry
// and the last-append marker are written in one transaction: an appended
// entry is never observable without its expiry bookkeeping.
func (s *DeliveryStore) Append(key domain.Key, entry domain.Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry for %q: %w", key, err)
	}

	now := s.now()
	ek := entryKey(key, now)
	mv := []byte(strconv.FormatInt(now.UnixNano(), 10))

	for attempt := 0; ; attempt++ {
		err = s.db.Update(func(txn *badger.Txn) error {
			if err := txn.Set(ek, data); err != nil {
				return err
			}
			return txn.Set(metaKey(key), mv)
		})
		if !errors.Is(err, badger.ErrConflict) || attempt >= maxAppendRetries {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("%w: append %q: %v", hub.ErrStoreUnavailable, key, err)
	}
	return nil
}

// ReadAll returns the key's entries in append order. Reading is
// non-destructive and repeatable. A log past its retention is expired lazily
// here and reads as empty; a key that never existed reads as empty too. The
// scan always runs after the lazy expire: when a concurrent append revived
// the log in between, the read serves its entries instead of dropping them.
func (s *DeliveryStore) ReadAll(key domain.Key) ([]domain.Entry, error) {
	expired, err := s.isExpired(key)
	if err != nil {
		return nil, err
	}
	if expired {
		if _, err := s.expire(key); err != nil {
			return nil, err
		}
	}

	var raw [][]byte
	err = s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(logPrefix + string(key) + ":")
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = true
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				cp := make([]byte, len(value))
				copy(cp, value)
				raw = append(raw, cp)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: read %q: %v", hub.ErrStoreUnavailable, key, err)
	}

	entries := make([]domain.Entry, 0, len(raw))
	for _, b := range raw {
		var e domain.Entry
		if err := json.Unmarshal(b, &e); err != nil {
			return nil, fmt.Errorf("unmarshal entry for %q: %w", key, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Expire drops the whole log for a key, entries and marker alike, provided
// the log is still past its retention at delete time.
func (s *DeliveryStore) Expire(key domain.Key) error {
	_, err := s.expire(key)
	return err
}

// expire deletes a stale log in one transaction and reports whether it was
// dropped. The last-append marker is re-read inside the transaction: a log
// revived since staleness was observed is left alone, and a concurrent
// append committing mid-expire aborts the transaction through badger's
// conflict detection (the marker is in this transaction's read set). Either
// way an entry inside its own retention window is never deleted.
func (s *DeliveryStore) expire(key domain.Key) (bool, error) {
	cutoff := s.now().Add(-s.retention).UnixNano()
	dropped := false

	err := s.db.Update(func(txn *badger.Txn) error {
		dropped = false

		item, err := txn.Get(metaKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var last int64
		if err := item.Value(func(value []byte) error {
			var perr error
			last, perr = strconv.ParseInt(string(value), 10, 64)
			return perr
		}); err != nil {
			return fmt.Errorf("corrupt marker for %q: %w", key, err)
		}
		if last >= cutoff {
			// The marker moved since staleness was observed.
			return nil
		}

		prefix := []byte(logPrefix + string(key) + ":")
		var doomed [][]byte
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			k := it.Item().KeyCopy(nil)
			if ts, ok := entryTimestamp(k, len(prefix)); ok && ts > last {
				// Fresher than the marker: a concurrent append owns it.
				continue
			}
			doomed = append(doomed, k)
		}
		it.Close()

		for _, k := range doomed {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		if err := txn.Delete(metaKey(key)); err != nil {
			return err
		}
		dropped = true
		return nil
	})
	if errors.Is(err, badger.ErrConflict) {
		s.log.Debug("Expire aborted, log revived concurrently", "key", string(key))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: expire %q: %v", hub.ErrStoreUnavailable, key, err)
	}
	if dropped {
		s.log.Debug("Delivery log expired", "key", string(key))
	}
	return dropped, nil
}

// ExpireStale sweeps every key whose last append is older than the retention
// window. Returns the number of logs dropped. Used by the background sweeper;
// ReadAll also expires lazily so a stale log is never served in between runs.
func (s *DeliveryStore) ExpireStale() (int, error) {
	var stale []domain.Key
	cutoff := s.now().Add(-s.retention).UnixNano()

	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(metaPrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := domain.Key(item.Key()[len(metaPrefix):])
			err := item.Value(func(value []byte) error {
				last, err := strconv.ParseInt(string(value), 10, 64)
				if err != nil {
					return fmt.Errorf("corrupt marker for %q: %w", key, err)
				}
				if last < cutoff {
					stale = append(stale, key)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: sweep: %v", hub.ErrStoreUnavailable, err)
	}

	dropped := 0
	for _, key := range stale {
		ok, err := s.expire(key)
		if err != nil {
			return dropped, err
		}
		if ok {
			dropped++
		}
	}
	return dropped, nil
}

// isExpired reports whether the key exists and has outlived its retention.
func (s *DeliveryStore) isExpired(key domain.Key) (bool, error) {
	var last int64 = -1
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			last, err = strconv.ParseInt(string(value), 10, 64)
			return err
		})
	})
	if err != nil {
		return false, fmt.Errorf("%w: marker %q: %v", hub.ErrStoreUnavailable, key, err)
	}
	if last < 0 {
		return false, nil
	}
	return s.now().Sub(time.Unix(0, last)) > s.retention, nil
}

// entryTimestamp extracts the append timestamp encoded in an entry key,
// the 19-digit segment right after the log prefix.
func entryTimestamp(key []byte, prefixLen int) (int64, bool) {
	rest := key[prefixLen:]
	i := bytes.IndexByte(rest, ':')
	if i < 0 {
		return 0, false
	}
	ts, err := strconv.ParseInt(string(rest[:i]), 10, 64)
	return ts, err == nil
}
