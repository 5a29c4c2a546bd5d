// Package metastore emulates the METADATA table (StartRow/Location/Files
// column families), backed by an embedded BadgerDB instance instead of a
// real distributed range server. Column qualifiers and row/timestamp
// ordering reuse internal/key's order-preserving payload encoding directly
// as the Badger key, so a plain forward Badger iterator already yields rows
// ascending, then column family, then column qualifier, then timestamp
// descending — exactly the order GcWorker's metadata scan requires.
//
// Grounded on GcWorker.cc's access pattern; there is no dedicated
// metadata-store source file in the reference material, so the storage
// engine choice (embedded BadgerDB) follows the idiom used elsewhere in
// this module for on-disk state.
//
// © 2025 rangestore authors. MIT License.
package metastore

import (
	"bytes"
	"context"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/hypertable-go/rangestore/internal/key"
)

// Column families recognized in the METADATA table schema.
const (
	CFStartRow uint8 = 1
	CFLocation uint8 = 2
	CFFiles    uint8 = 3
)

const badgerKeyPrefix = "md:"

// Cell is a single metadata row/column/value observation, as yielded by Scan.
type Cell struct {
	Row             []byte
	ColumnFamily    uint8
	ColumnQualifier []byte
	Timestamp       int64
	Value           []byte
}

// Store is the METADATA table, backed by a Badger database the caller owns.
type Store struct {
	db *badger.DB
}

// New wraps an already-open Badger database.
func New(db *badger.DB) *Store { return &Store{db: db} }

func badgerKey(row []byte, cf uint8, cq []byte, ts, rev int64) []byte {
	payload := key.EncodePayloadProbe(key.Key{
		Row: row, ColumnFamily: cf, ColumnQualifier: cq,
		Flag: key.FlagInsert, Timestamp: ts, Revision: rev,
	})
	return append([]byte(badgerKeyPrefix), payload...)
}

// PutCell writes a single metadata cell. Revision is set equal to ts; the
// metadata table never needs finer tie-breaking than timestamp (a within-row
// timestamp tie during a GC pass is treated as an error condition, not
// something revision needs to disambiguate).
func (s *Store) PutCell(ctx context.Context, row []byte, cf uint8, cq []byte, ts int64, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(row, cf, cq, ts, ts), append([]byte(nil), value...))
	})
}

// DeleteRow removes every cell belonging to row, across all column families
// and qualifiers. Unlike a real Table's soft delete-with-tombstone, this
// store has no compaction pipeline of its own, so GcWorker's "delete the row
// because it no longer exists" is implemented as a hard delete.
func (s *Store) DeleteRow(ctx context.Context, row []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		prefix := append([]byte(badgerKeyPrefix), key.RowLowerBound(row)...)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		var toDelete [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			toDelete = append(toDelete, it.Item().KeyCopy(nil))
		}
		for _, k := range toDelete {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteCell removes one exact cell.
func (s *Store) DeleteCell(ctx context.Context, row []byte, cf uint8, cq []byte, ts int64) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(badgerKey(row, cf, cq, ts, ts))
	})
}

// CellRef identifies one exact cell version for batched deletion.
type CellRef struct {
	Row             []byte
	ColumnFamily    uint8
	ColumnQualifier []byte
	Timestamp       int64
}

// ApplyDeletes commits every row and cell deletion in a single Badger
// transaction — the batched-mutator "flush" GcWorker.cc performs once at the
// end of a metadata scan, rather than one RPC per buffered delete.
func (s *Store) ApplyDeletes(ctx context.Context, rows [][]byte, cells []CellRef) error {
	if len(rows) == 0 && len(cells) == 0 {
		return nil
	}
	return s.db.Update(func(txn *badger.Txn) error {
		for _, row := range rows {
			prefix := append([]byte(badgerKeyPrefix), key.RowLowerBound(row)...)
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			var toDelete [][]byte
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				toDelete = append(toDelete, it.Item().KeyCopy(nil))
			}
			it.Close()
			for _, k := range toDelete {
				if err := txn.Delete(k); err != nil {
					return err
				}
			}
		}
		for _, c := range cells {
			if err := txn.Delete(badgerKey(c.Row, c.ColumnFamily, c.ColumnQualifier, c.Timestamp, c.Timestamp)); err != nil {
				return err
			}
		}
		return nil
	})
}

// ScanAll returns every cell in the table whose column family is in cfs (or
// every column family, if cfs is empty), in the same order Scan uses.
func (s *Store) ScanAll(ctx context.Context, cfs ...uint8) ([]Cell, error) {
	return s.scan(ctx, []byte(badgerKeyPrefix), nextPrefix([]byte(badgerKeyPrefix)), cfs)
}

// Scan returns every cell with row in [startRow, endRow] (inclusive both
// ends) whose column family is in cfs. An empty cfs admits every column
// family. Cells are
// returned in (row asc, column_family asc, column_qualifier asc, timestamp
// desc) order.
func (s *Store) Scan(ctx context.Context, startRow, endRow []byte, cfs ...uint8) ([]Cell, error) {
	lower := append([]byte(badgerKeyPrefix), key.RowLowerBound(startRow)...)
	upper := append([]byte(badgerKeyPrefix), key.RowUpperBound(endRow)...)
	return s.scan(ctx, lower, upper, cfs)
}

// nextPrefix returns the lexicographically smallest byte string that sorts
// strictly above every string having prefix as a prefix.
func nextPrefix(prefix []byte) []byte {
	p := append([]byte(nil), prefix...)
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] != 0xff {
			p[i]++
			return p[:i+1]
		}
	}
	return nil // prefix was all 0xff bytes; caller has no meaningful upper bound
}

func (s *Store) scan(ctx context.Context, lower, upper []byte, cfs []uint8) ([]Cell, error) {
	allow := make(map[uint8]bool, len(cfs))
	for _, cf := range cfs {
		allow[cf] = true
	}

	var cells []Cell
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(lower); it.Valid(); it.Next() {
			item := it.Item()
			k := item.KeyCopy(nil)
			if upper != nil && bytes.Compare(k, upper) >= 0 {
				break
			}
			payload := k[len(badgerKeyPrefix):]
			dk, err := key.DecodePayload(payload)
			if err != nil {
				continue
			}
			if len(allow) > 0 && !allow[dk.ColumnFamily] {
				continue
			}
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			cells = append(cells, Cell{
				Row: append([]byte(nil), dk.Row...), ColumnFamily: dk.ColumnFamily,
				ColumnQualifier: append([]byte(nil), dk.ColumnQualifier...),
				Timestamp:       dk.Timestamp, Value: value,
			})
		}
		return nil
	})
	return cells, err
}
