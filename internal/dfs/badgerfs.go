package dfs

// badgerfs.go implements FS on top of an embedded BadgerDB instance, letting
// the whole system run with nothing but a single Badger directory standing
// in for a real DFS — the same embedding idiom the reference pack's
// disk_eject example uses for a second-level cache store, repurposed here as
// the primary blob store.

import (
	"bytes"
	"context"
	"io"

	badger "github.com/dgraph-io/badger/v4"
)

const badgerfsKeyPrefix = "dfs:"

// BadgerFS implements FS by storing each named file as a single Badger
// value. It is suited to CellStore files, which compaction writes once and
// GcWorker only ever removes wholesale — no partial writes or appends.
type BadgerFS struct {
	db *badger.DB
}

// NewBadgerFS wraps an already-open Badger database. The caller owns db's
// lifecycle (including Close).
func NewBadgerFS(db *badger.DB) *BadgerFS {
	return &BadgerFS{db: db}
}

func badgerfsKey(name string) []byte {
	return append([]byte(badgerfsKeyPrefix), name...)
}

type badgerWriteCloser struct {
	db   *badger.DB
	name string
	buf  bytes.Buffer
}

func (w *badgerWriteCloser) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *badgerWriteCloser) Close() error {
	return w.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerfsKey(w.name), w.buf.Bytes())
	})
}

func (b *BadgerFS) Create(_ context.Context, name string) (io.WriteCloser, error) {
	return &badgerWriteCloser{db: b.db, name: name}, nil
}

func (b *BadgerFS) Open(_ context.Context, name string) (io.ReadCloser, error) {
	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerfsKey(name))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			data = append([]byte(nil), v...)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrNotExist
	}
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *BadgerFS) Remove(_ context.Context, name string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(badgerfsKey(name))
		if err != nil {
			return err
		}
		return txn.Delete(badgerfsKey(name))
	})
	if err == badger.ErrKeyNotFound {
		return ErrNotExist
	}
	return err
}

func (b *BadgerFS) Exists(_ context.Context, name string) (bool, error) {
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(badgerfsKey(name))
		return err
	})
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (b *BadgerFS) Length(_ context.Context, name string) (int64, error) {
	var n int64 = -1
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerfsKey(name))
		if err != nil {
			return err
		}
		n = item.ValueSize()
		return nil
	})
	if err == badger.ErrKeyNotFound {
		return 0, ErrNotExist
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}
