// Package debugserver exposes an HTTP introspection surface over a running
// range server's CellCache, block cache and GcWorker, the same small
// snapshot+pprof idiom the reference pack's own embedding example used,
// adapted here into a standalone mountable handler rather than a throwaway
// demo binary. cmd/rangestore-inspect is this package's intended client.
//
// © 2025 rangestore authors. MIT License.
package debugserver

import (
	"encoding/json"
	"net/http"
	"net/http/pprof"

	"github.com/hypertable-go/rangestore/internal/cellcache"
	"github.com/hypertable-go/rangestore/pkg/blockcache"
	"github.com/hypertable-go/rangestore/pkg/gcworker"
)

// Snapshot is the JSON payload served at /debug/rangestore/snapshot.
type Snapshot struct {
	// Block cache (pkg/blockcache) counters.
	Items          int    `json:"items"`
	HitsTotal      uint64 `json:"hits_total"`
	MissesTotal    uint64 `json:"misses_total"`
	EvictionsTotal uint64 `json:"evictions_total"`
	ArenaBytes     int64  `json:"arena_bytes"`

	// CellCache counters.
	CellCacheSize   int    `json:"cellcache_size"`
	CellCacheBytes  int64  `json:"cellcache_memory_used"`
	Collisions      uint32 `json:"cellcache_collisions"`
	Deletes         uint32 `json:"cellcache_deletes"`
	Frozen          bool   `json:"cellcache_frozen"`

	// GcWorker counters, from its most recently completed pass.
	GcFilesRemoved    int `json:"gc_files_removed"`
	GcFilesReapFailed int `json:"gc_files_reap_failed"`
	GcRowsDeleted     int `json:"gc_rows_deleted"`
	GcCellsDeleted    int `json:"gc_cells_deleted"`
}

// Server aggregates the collaborators a snapshot reports on. Any field may
// be nil; its section of the snapshot is then left at zero values.
type Server struct {
	CellCache  *cellcache.Cache
	BlockCache *blockcache.Cache
	GcWorker   *gcworker.Worker
}

// Snapshot collects a point-in-time view across every wired collaborator.
func (s *Server) Snapshot() Snapshot {
	var snap Snapshot

	if s.BlockCache != nil {
		st := s.BlockCache.Stats()
		snap.Items = s.BlockCache.Len()
		snap.HitsTotal = st.Hits
		snap.MissesTotal = st.Misses
		snap.EvictionsTotal = st.Evictions
		snap.ArenaBytes = s.BlockCache.SizeBytes()
	}

	if s.CellCache != nil {
		snap.CellCacheSize = s.CellCache.Size()
		snap.CellCacheBytes = s.CellCache.MemoryUsed()
		snap.Collisions = s.CellCache.CollisionCount()
		snap.Deletes = s.CellCache.DeleteCount()
		snap.Frozen = s.CellCache.Frozen()
	}

	if s.GcWorker != nil {
		gc := s.GcWorker.LastStats()
		snap.GcFilesRemoved = gc.FilesRemoved
		snap.GcFilesReapFailed = gc.FilesReapFailed
		snap.GcRowsDeleted = gc.RowsDeleted
		snap.GcCellsDeleted = gc.CellsDeleted
	}

	return snap
}

// Handler builds the mux cmd/rangestore-inspect (or any other poller) talks
// to: the JSON snapshot plus the standard pprof handlers.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/rangestore/snapshot", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.Snapshot())
	})
	mux.HandleFunc("/debug/pprof/heap", pprof.Index)
	mux.HandleFunc("/debug/pprof/goroutine", pprof.Index)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}
