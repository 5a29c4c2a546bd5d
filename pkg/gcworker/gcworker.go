// Package gcworker implements the periodic garbage collection pass: scan the
// METADATA table's Files column, build a filename reference-count map,
// delete cruft metadata cells/rows, and reap zero-refcount files from the
// DFS.
//
// Grounded on GcWorker.{h,cc}.
//
// © 2025 rangestore authors. MIT License.
package gcworker

import (
	"bytes"
	"context"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/hypertable-go/rangestore/internal/dfs"
	"github.com/hypertable-go/rangestore/internal/metastore"
	"github.com/hypertable-go/rangestore/internal/unsafehelpers"
)

// Stats summarizes one completed Gc pass.
type Stats struct {
	FilesRemoved     int
	FilesReapFailed  int
	RowsDeleted      int
	CellsDeleted     int
}

// Worker runs periodic Gc passes against one table's METADATA rows.
type Worker struct {
	meta      *metastore.Store
	fs        dfs.FS
	tablesDir string
	logger    *zap.Logger
	metrics   metricsSink

	lastStats atomic.Pointer[Stats]
}

// New constructs a Worker. tablesDir is prefixed to every file name found in
// a Files cell before it is passed to fs.
func New(meta *metastore.Store, fs dfs.FS, tablesDir string, opts ...Option) *Worker {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return &Worker{
		meta:      meta,
		fs:        fs,
		tablesDir: strings.TrimRight(tablesDir, "/") + "/",
		logger:    cfg.logger,
		metrics:   newMetricsSink(cfg.registry),
	}
}

// Gc performs one pass: scan_metadata, then reap. Each pass is pure with
// respect to metadata — the refcount map is rebuilt from scratch every time
// and carries no state across passes, so it tolerates metadata rewrites
// between passes, and running it twice in a row on unchanged metadata reaps
// nothing further.
func (w *Worker) Gc(ctx context.Context) (Stats, error) {
	filesMap := make(map[string]int)
	stats, err := w.scanMetadata(ctx, filesMap)
	if err != nil {
		return stats, err
	}
	stats.FilesRemoved, stats.FilesReapFailed = w.reap(ctx, filesMap)
	w.lastStats.Store(&stats)
	return stats, nil
}

// LastStats returns the Stats from the most recently completed Gc call, or
// the zero value if Gc has never run. Used by pkg/debugserver to publish a
// running worker's counters without forcing a fresh pass.
func (w *Worker) LastStats() Stats {
	if s := w.lastStats.Load(); s != nil {
		return *s
	}
	return Stats{}
}

// scanMetadata walks every Files cell across the whole METADATA table,
// ordered (by construction of metastore.Scan) row ascending, then column
// qualifier ascending, then timestamp descending within a (row, cq) group,
// tallying filename references and flagging stale rows/cells for deletion.
func (w *Worker) scanMetadata(ctx context.Context, filesMap map[string]int) (Stats, error) {
	var stats Stats

	cells, err := w.meta.ScanAll(ctx, metastore.CFFiles)
	if err != nil {
		return stats, err
	}

	var rowsToDelete [][]byte
	var cellsToDelete []metastore.CellRef

	var lastRow, lastCQ []byte
	var lastTime int64
	foundValidFiles := true
	haveRow := false

	flushRow := func() {
		if haveRow && !foundValidFiles {
			rowsToDelete = append(rowsToDelete, append([]byte(nil), lastRow...))
			stats.RowsDeleted++
		}
	}

	for _, cell := range cells {
		switch {
		case !haveRow || !bytes.Equal(cell.Row, lastRow):
			flushRow()
			lastRow = cell.Row
			lastCQ = cell.ColumnQualifier
			lastTime = cell.Timestamp
			haveRow = true
			foundValidFiles = isValidFiles(cell.Value)
			if foundValidFiles {
				insertFiles(filesMap, cell.Value, 1)
			}

		case !bytes.Equal(cell.ColumnQualifier, lastCQ):
			lastCQ = cell.ColumnQualifier
			lastTime = cell.Timestamp
			valid := isValidFiles(cell.Value)
			foundValidFiles = foundValidFiles || valid
			if valid {
				insertFiles(filesMap, cell.Value, 1)
			}

		default:
			if cell.Timestamp > lastTime {
				w.logger.Error("gcworker: unexpected timestamp order while scanning METADATA",
					zap.ByteString("row", cell.Row), zap.ByteString("cq", cell.ColumnQualifier))
				continue
			}
			if isValidFiles(cell.Value) {
				insertFiles(filesMap, cell.Value, 0)
				cellsToDelete = append(cellsToDelete, metastore.CellRef{
					Row: cell.Row, ColumnFamily: metastore.CFFiles,
					ColumnQualifier: cell.ColumnQualifier, Timestamp: cell.Timestamp,
				})
				stats.CellsDeleted++
			}
		}
	}
	flushRow()

	if err := w.meta.ApplyDeletes(ctx, rowsToDelete, cellsToDelete); err != nil {
		return stats, err
	}
	return stats, nil
}

// isValidFiles reports whether a Files cell value represents a real file
// list rather than the "no files" sentinel.
func isValidFiles(value []byte) bool {
	return len(value) > 0 && value[0] != '!'
}

// insertFiles splits a ";\n"-separated file-name list and adds each name to
// filesMap with delta c: 1 for a live cell's names, 0 for an older cell's
// names (candidates to reap unless also referenced elsewhere).
func insertFiles(filesMap map[string]int, value []byte, c int) {
	// value is a scan-local copy (metastore.Scan/ScanAll already copies out of
	// Badger's transaction), so viewing it as a string here costs nothing: no
	// caller mutates it after this point within one Gc pass.
	for _, name := range strings.Split(unsafehelpers.BytesToString(value), ";\n") {
		if name == "" {
			continue
		}
		insertFile(filesMap, name, c)
	}
}

func insertFile(filesMap map[string]int, name string, c int) {
	name = strings.TrimPrefix(name, "#")
	filesMap[name] += c
}

// reap removes every file whose final refcount is 0 from the DFS, under
// tablesDir. Failures are logged and counted, never propagated — a file that
// fails to delete this pass is simply retried on the next one.
func (w *Worker) reap(ctx context.Context, filesMap map[string]int) (removed, failed int) {
	for name, count := range filesMap {
		if count != 0 {
			continue
		}
		if err := w.fs.Remove(ctx, w.tablesDir+name); err != nil {
			w.logger.Warn("gcworker: failed to remove unreferenced file", zap.String("file", name), zap.Error(err))
			w.metrics.incReapFailed()
			failed++
			continue
		}
		w.metrics.incReaped()
		removed++
	}
	return removed, failed
}
