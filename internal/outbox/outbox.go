package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/qtosh1/botlyhub/internal/models"
)

const logPrefix = "log/"

// Item is a spooled entry together with its queue key.
type Item struct {
	Key   string
	Entry models.BotLog
}

// Queue is a durable FIFO of activity log entries backed by Badger.
type Queue struct {
	db *badger.DB
}

// OpenOptions configure the queue location. ReadOnly opens an existing
// queue for inspection and fails while a writer holds it.
type OpenOptions struct {
	Path     string
	InMemory bool
	ReadOnly bool
}

// Open opens (or creates) the queue.
func Open(opts OpenOptions) (*Queue, error) {
	var bopts badger.Options
	switch {
	case opts.InMemory:
		bopts = badger.DefaultOptions("").WithInMemory(true)
	case strings.TrimSpace(opts.Path) != "":
		bopts = badger.DefaultOptions(opts.Path).WithReadOnly(opts.ReadOnly)
	default:
		return nil, errors.New("outbox: path is required")
	}
	db, err := badger.Open(bopts.WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("outbox: open badger: %w", err)
	}
	return &Queue{db: db}, nil
}

// Close releases the underlying database.
func (q *Queue) Close() error {
	if q == nil || q.db == nil {
		return nil
	}
	return q.db.Close()
}

// Enqueue stores an entry. Entries keep their original timestamp.
func (q *Queue) Enqueue(entry models.BotLog) error {
	if q == nil || q.db == nil {
		return errors.New("outbox: not opened")
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("outbox: encode entry: %w", err)
	}
	key := fmt.Sprintf("%s%020d/%s", logPrefix, entry.Timestamp.UnixNano(), uuid.NewString())
	return q.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), raw)
	})
}

// Peek returns up to limit entries, oldest first, without removing them.
func (q *Queue) Peek(limit int) ([]Item, error) {
	if q == nil || q.db == nil {
		return nil, errors.New("outbox: not opened")
	}
	if limit <= 0 {
		limit = 100
	}
	items := make([]Item, 0, limit)
	err := q.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(logPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix) && len(items) < limit; it.Next() {
			item := it.Item()
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			var entry models.BotLog
			if err := json.Unmarshal(raw, &entry); err != nil {
				return fmt.Errorf("decode %s: %w", item.Key(), err)
			}
			items = append(items, Item{Key: string(item.KeyCopy(nil)), Entry: entry})
		}
		return nil
	})
	return items, err
}

// Ack removes delivered entries.
func (q *Queue) Ack(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return q.db.Update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Len counts pending entries.
func (q *Queue) Len() (int, error) {
	if q == nil || q.db == nil {
		return 0, errors.New("outbox: not opened")
	}
	n := 0
	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(logPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}
