package gcworker

import (
	"context"
	"testing"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/hypertable-go/rangestore/internal/dfs"
	"github.com/hypertable-go/rangestore/internal/metastore"
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

func writeFile(t *testing.T, fs dfs.FS, name string) {
	t.Helper()
	w, err := fs.Create(context.Background(), name)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("x")); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestGcReapsOnlyStaleFiles(t *testing.T) {
	ctx := context.Background()
	meta := metastore.New(openTestDB(t))
	fsys, err := dfs.NewLocalFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, fsys, "tables/a.cs")
	writeFile(t, fsys, "tables/b.cs")
	writeFile(t, fsys, "tables/c.cs")

	meta.PutCell(ctx, []byte("T:end1"), metastore.CFFiles, []byte("ag1"), 2, []byte("a.cs;\nb.cs;\n"))
	meta.PutCell(ctx, []byte("T:end1"), metastore.CFFiles, []byte("ag1"), 1, []byte("a.cs;\nc.cs;\n"))

	w := New(meta, fsys, "tables")
	stats, err := w.Gc(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesRemoved != 1 {
		t.Fatalf("FilesRemoved = %d, want 1", stats.FilesRemoved)
	}
	if ok, _ := fsys.Exists(ctx, "tables/c.cs"); ok {
		t.Fatal("c.cs should have been reaped")
	}
	if ok, _ := fsys.Exists(ctx, "tables/a.cs"); !ok {
		t.Fatal("a.cs is still referenced, should survive")
	}
	if ok, _ := fsys.Exists(ctx, "tables/b.cs"); !ok {
		t.Fatal("b.cs is still referenced, should survive")
	}

	cells, err := meta.Scan(ctx, []byte("T:"), []byte("T:\xff\xff"), metastore.CFFiles)
	if err != nil {
		t.Fatal(err)
	}
	if len(cells) != 1 || cells[0].Timestamp != 2 {
		t.Fatalf("expected only the newer cell to survive, got %+v", cells)
	}
}

func TestGcIsIdempotentOnUnchangedMetadata(t *testing.T) {
	ctx := context.Background()
	meta := metastore.New(openTestDB(t))
	fsys, err := dfs.NewLocalFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	writeFile(t, fsys, "tables/a.cs")
	writeFile(t, fsys, "tables/c.cs")
	meta.PutCell(ctx, []byte("T:end1"), metastore.CFFiles, []byte("ag1"), 2, []byte("a.cs;\n"))
	meta.PutCell(ctx, []byte("T:end1"), metastore.CFFiles, []byte("ag1"), 1, []byte("a.cs;\nc.cs;\n"))

	w := New(meta, fsys, "tables")
	if _, err := w.Gc(ctx); err != nil {
		t.Fatal(err)
	}
	stats2, err := w.Gc(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats2.FilesRemoved != 0 {
		t.Fatalf("second pass removed %d files, want 0", stats2.FilesRemoved)
	}
}

func TestGcDeletesRowWithNoValidFiles(t *testing.T) {
	ctx := context.Background()
	meta := metastore.New(openTestDB(t))
	fsys, err := dfs.NewLocalFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	meta.PutCell(ctx, []byte("T:gone"), metastore.CFFiles, []byte("ag1"), 1, []byte("!"))

	w := New(meta, fsys, "tables")
	stats, err := w.Gc(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.RowsDeleted != 1 {
		t.Fatalf("RowsDeleted = %d, want 1", stats.RowsDeleted)
	}
	cells, _ := meta.Scan(ctx, []byte("T:"), []byte("T:\xff\xff"), metastore.CFFiles)
	if len(cells) != 0 {
		t.Fatalf("expected row to be fully removed, got %+v", cells)
	}
}
