package metastore

import (
	"context"
	"testing"

	badger "github.com/dgraph-io/badger/v4"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR))
	if err != nil {
		t.Fatalf("badger open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestScanOrdersRowsThenDescendingTimestamp(t *testing.T) {
	ctx := context.Background()
	s := New(openTestDB(t))

	if err := s.PutCell(ctx, []byte("T:r1"), CFFiles, []byte("ag1"), 1, []byte("a.cs;\n")); err != nil {
		t.Fatal(err)
	}
	if err := s.PutCell(ctx, []byte("T:r1"), CFFiles, []byte("ag1"), 2, []byte("b.cs;\n")); err != nil {
		t.Fatal(err)
	}
	if err := s.PutCell(ctx, []byte("T:r2"), CFFiles, []byte("ag1"), 1, []byte("c.cs;\n")); err != nil {
		t.Fatal(err)
	}

	cells, err := s.Scan(ctx, []byte("T:"), []byte("T:\xff\xff"), CFFiles)
	if err != nil {
		t.Fatal(err)
	}
	if len(cells) != 3 {
		t.Fatalf("got %d cells, want 3", len(cells))
	}
	if string(cells[0].Row) != "T:r1" || cells[0].Timestamp != 2 {
		t.Fatalf("cells[0] = %+v, want row T:r1 ts 2 (newest first)", cells[0])
	}
	if string(cells[1].Row) != "T:r1" || cells[1].Timestamp != 1 {
		t.Fatalf("cells[1] = %+v, want row T:r1 ts 1", cells[1])
	}
	if string(cells[2].Row) != "T:r2" {
		t.Fatalf("cells[2] = %+v, want row T:r2", cells[2])
	}
}

func TestDeleteRowRemovesEveryColumn(t *testing.T) {
	ctx := context.Background()
	s := New(openTestDB(t))

	s.PutCell(ctx, []byte("T:r1"), CFStartRow, nil, 1, []byte("a"))
	s.PutCell(ctx, []byte("T:r1"), CFLocation, nil, 1, []byte("rs1"))
	s.PutCell(ctx, []byte("T:r2"), CFStartRow, nil, 1, []byte("b"))

	if err := s.DeleteRow(ctx, []byte("T:r1")); err != nil {
		t.Fatal(err)
	}

	cells, err := s.Scan(ctx, []byte("T:"), []byte("T:\xff\xff"))
	if err != nil {
		t.Fatal(err)
	}
	if len(cells) != 1 || string(cells[0].Row) != "T:r2" {
		t.Fatalf("cells = %+v, want only T:r2 to survive", cells)
	}
}

func TestDeleteCellRemovesExactVersion(t *testing.T) {
	ctx := context.Background()
	s := New(openTestDB(t))

	s.PutCell(ctx, []byte("r"), CFFiles, []byte("ag1"), 1, []byte("old"))
	s.PutCell(ctx, []byte("r"), CFFiles, []byte("ag1"), 2, []byte("new"))

	if err := s.DeleteCell(ctx, []byte("r"), CFFiles, []byte("ag1"), 1); err != nil {
		t.Fatal(err)
	}

	cells, err := s.Scan(ctx, []byte("r"), []byte("r"), CFFiles)
	if err != nil {
		t.Fatal(err)
	}
	if len(cells) != 1 || string(cells[0].Value) != "new" {
		t.Fatalf("cells = %+v, want only the ts=2 cell to survive", cells)
	}
}
