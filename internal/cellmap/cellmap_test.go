package cellmap

import (
	"testing"

	"github.com/hypertable-go/rangestore/internal/arena"
	"github.com/hypertable-go/rangestore/internal/key"
)

func mustKey(a *arena.Arena, row string, ts int64) (key.SerializedKey, []byte, uint32) {
	return key.Encode(a, key.Key{
		Row:       []byte(row),
		Flag:      key.FlagInsert,
		Timestamp: ts,
		Revision:  ts,
	}, []byte("v"))
}

func TestInsertOrdersByRowThenDescendingTimestamp(t *testing.T) {
	a := arena.New(4096)
	m := New(1)

	k1, v1, o1 := mustKey(a, "b", 100)
	m.Insert(k1, v1, o1)
	k2, v2, o2 := mustKey(a, "a", 200)
	m.Insert(k2, v2, o2)
	k3, v3, o3 := mustKey(a, "a", 100)
	m.Insert(k3, v3, o3)

	var rows []string
	var tss []int64
	for it := m.Begin(); it.Valid(); it = it.Next() {
		dk, err := it.Key().Decode()
		if err != nil {
			t.Fatal(err)
		}
		rows = append(rows, string(dk.Row))
		tss = append(tss, dk.Timestamp)
	}
	if len(rows) != 3 || rows[0] != "a" || rows[1] != "a" || rows[2] != "b" {
		t.Fatalf("unexpected row order: %v", rows)
	}
	if tss[0] != 200 || tss[1] != 100 {
		t.Fatalf("expected newer-first within row a, got %v", tss)
	}
}

func TestInsertCollisionKeepsFirstValue(t *testing.T) {
	a := arena.New(4096)
	m := New(1)

	k1, v1, o1 := key.Encode(a, key.Key{Row: []byte("r"), Flag: key.FlagInsert, Timestamp: 1, Revision: 1}, []byte("first"))
	k2, v2, o2 := key.Encode(a, key.Key{Row: []byte("r"), Flag: key.FlagInsert, Timestamp: 1, Revision: 1}, []byte("second"))

	if ok := m.Insert(k1, v1, o1); !ok {
		t.Fatal("first insert should succeed")
	}
	if ok := m.Insert(k2, v2, o2); ok {
		t.Fatal("duplicate exact key insert should report collision")
	}
	if m.Collisions() != 1 {
		t.Fatalf("collisions = %d, want 1", m.Collisions())
	}
	off, ok := m.Get(k1)
	if !ok || off != o1 {
		t.Fatalf("expected original offset to survive, got %d,%v", off, ok)
	}
	it := m.LowerBound(key.RowLowerBound([]byte("r")))
	if string(it.Value()) != "first" {
		t.Fatalf("value = %q, want %q (collision must not overwrite)", it.Value(), "first")
	}
}

func TestLowerBoundRowPrefix(t *testing.T) {
	a := arena.New(4096)
	m := New(1)
	ka, va, oa := mustKey(a, "a", 1)
	m.Insert(ka, va, oa)
	kb, vb, ob := mustKey(a, "b", 1)
	m.Insert(kb, vb, ob)
	kc, vc, oc := mustKey(a, "c", 1)
	m.Insert(kc, vc, oc)

	it := m.LowerBound(key.RowLowerBound([]byte("b")))
	if !it.Valid() {
		t.Fatal("expected a match")
	}
	dk, _ := it.Key().Decode()
	if string(dk.Row) != "b" {
		t.Fatalf("row = %q, want b", dk.Row)
	}

	end := m.LowerBound(key.RowUpperBound([]byte("b")))
	if !end.Valid() {
		t.Fatal("expected end iterator to still be valid (row c follows)")
	}
	dk2, _ := end.Key().Decode()
	if string(dk2.Row) != "c" {
		t.Fatalf("row = %q, want c", dk2.Row)
	}
}
