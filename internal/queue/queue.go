package queue

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/pkg/errors"

	"github.com/CyntientOps/opsync/models"
)

/*
	Offline durable queue for dashboard updates that could not be delivered.
	Entries survive process restarts and are deleted only after confirmed
	delivery.

	Keyspace:
	  q:<rank><createdAtNanos><id>  -> entry JSON   (composite ordering key)
	  id:<id>                       -> composite key (idempotent overwrite index)

	Rank is a single digit (critical=0 .. low=3) and createdAtNanos is
	zero-padded, so a plain ascending key scan yields priority DESC,
	createdAt ASC — exactly the drain order.
*/

const (
	entryPrefix = "q:"
	idPrefix    = "id:"
)

type Entry struct {
	ID         string           `json:"id"`
	UpdateType models.EventType `json:"update_type"`
	UpdateData json.RawMessage  `json:"update_data"`
	Priority   models.Priority  `json:"priority"`
	CreatedAt  time.Time        `json:"created_at"`
}

type Config struct {
	Logger    *slog.Logger
	Directory string
}

type Queue struct {
	logger *slog.Logger
	db     *badger.DB
}

func New(cfg Config) (*Queue, error) {
	if err := os.MkdirAll(cfg.Directory, 0755); err != nil {
		return nil, errors.Wrap(err, "creating queue directory")
	}

	logger := cfg.Logger.WithGroup("queue")

	dbOpts := badger.DefaultOptions(cfg.Directory).
		WithLogger(newLogger(logger.WithGroup("store"))).
		WithLoggingLevel(badger.WARNING).
		WithMemTableSize(16 << 20) // 16MB MemTableSize

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, errors.Wrap(err, "opening queue store")
	}

	return &Queue{
		logger: logger,
		db:     db,
	}, nil
}

func compositeKey(prio models.Priority, createdAt time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%d%020d%s", entryPrefix, prio.DrainRank(), createdAt.UnixNano(), id))
}

// Enqueue persists the update. Re-enqueueing an id overwrites the stored
// payload but keeps the original creation time, so a retried update does not
// lose its place in the drain order.
func (q *Queue) Enqueue(u models.DashboardUpdate, prio models.Priority) error {
	data, err := json.Marshal(u)
	if err != nil {
		return errors.Wrap(err, "marshalling update")
	}

	createdAt := time.Now()

	err = q.db.Update(func(txn *badger.Txn) error {
		idKey := []byte(idPrefix + u.ID)

		if item, err := txn.Get(idKey); err == nil {
			oldKey, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if old, err := txn.Get(oldKey); err == nil {
				var prev Entry
				if raw, err := old.ValueCopy(nil); err == nil {
					if json.Unmarshal(raw, &prev) == nil && !prev.CreatedAt.IsZero() {
						createdAt = prev.CreatedAt
					}
				}
			}
			if err := txn.Delete(oldKey); err != nil {
				return err
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		entry := Entry{
			ID:         u.ID,
			UpdateType: u.Type,
			UpdateData: data,
			Priority:   prio,
			CreatedAt:  createdAt,
		}
		raw, err := json.Marshal(entry)
		if err != nil {
			return err
		}

		key := compositeKey(prio, createdAt, u.ID)
		if err := txn.Set(key, raw); err != nil {
			return err
		}
		return txn.Set(idKey, key)
	})
	if err != nil {
		return errors.Wrap(err, "persisting offline update")
	}

	q.logger.Debug("update queued offline", "id", u.ID, "priority", prio)
	return nil
}

// Drain reads up to maxBatch entries in priority DESC, createdAt ASC order and
// attempts each through send. Delivered entries are deleted; failed entries
// stay put for the next drain pass. There is no in-pass retry, a down network
// should not be hammered in a loop.
func (q *Queue) Drain(maxBatch int, send func(models.DashboardUpdate) error) (delivered int, failed int, err error) {
	type pending struct {
		key    []byte
		update models.DashboardUpdate
	}

	var batch []pending
	err = q.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(entryPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if maxBatch > 0 && len(batch) >= maxBatch {
				break
			}
			item := it.Item()
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			var entry Entry
			if err := json.Unmarshal(raw, &entry); err != nil {
				q.logger.Warn("skipping undecodable queue entry", "key", string(item.Key()), "error", err)
				continue
			}
			var u models.DashboardUpdate
			if err := json.Unmarshal(entry.UpdateData, &u); err != nil {
				q.logger.Warn("skipping undecodable queued update", "id", entry.ID, "error", err)
				continue
			}
			batch = append(batch, pending{key: item.KeyCopy(nil), update: u})
		}
		return nil
	})
	if err != nil {
		return 0, 0, errors.Wrap(err, "reading queue batch")
	}

	for _, p := range batch {
		if err := send(p.update); err != nil {
			q.logger.Debug("drain delivery failed, entry retained", "id", p.update.ID, "error", err)
			failed++
			continue
		}
		delErr := q.db.Update(func(txn *badger.Txn) error {
			if err := txn.Delete(p.key); err != nil {
				return err
			}
			return txn.Delete([]byte(idPrefix + p.update.ID))
		})
		if delErr != nil {
			q.logger.Error("delivered entry could not be deleted", "id", p.update.ID, "error", delErr)
			failed++
			continue
		}
		delivered++
	}

	if delivered > 0 || failed > 0 {
		q.logger.Info("offline queue drained", "delivered", delivered, "failed", failed)
	}
	return delivered, failed, nil
}

func (q *Queue) PendingCount() (int, error) {
	return q.countPrefix(entryPrefix)
}

func (q *Queue) PendingCriticalCount() (int, error) {
	return q.countPrefix(fmt.Sprintf("%s%d", entryPrefix, models.PriorityCritical.DrainRank()))
}

func (q *Queue) countPrefix(prefix string) (int, error) {
	count := 0
	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "counting queue entries")
	}
	return count, nil
}

func (q *Queue) Close() error {
	if err := q.db.Close(); err != nil {
		q.logger.Error("error closing queue store", "error", err)
		return errors.Wrap(err, "closing queue store")
	}
	return nil
}
