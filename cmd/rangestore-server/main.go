package main

// rangestore-server wires together CellCache, the shared block cache and
// GcWorker against on-disk storage, runs periodic garbage collection, and
// serves pkg/debugserver's HTTP introspection surface so
// cmd/rangestore-inspect has a real process to poll.
//
// © 2025 rangestore authors. MIT License.

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/hypertable-go/rangestore/internal/cellcache"
	"github.com/hypertable-go/rangestore/internal/dfs"
	"github.com/hypertable-go/rangestore/internal/metastore"
	"github.com/hypertable-go/rangestore/pkg/blockcache"
	"github.com/hypertable-go/rangestore/pkg/debugserver"
	"github.com/hypertable-go/rangestore/pkg/gcworker"
)

func main() {
	addr := flag.String("addr", ":6060", "debug HTTP listen address")
	dataDir := flag.String("data-dir", "./rangestore-data", "root directory for metadata and table files")
	gcInterval := flag.Duration("gc-interval", time.Minute, "interval between GcWorker passes")
	blockCacheBytes := flag.Int64("block-cache-bytes", 64<<20, "block cache capacity in bytes")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("rangestore-server: logger init: %v", err)
	}
	defer logger.Sync()

	metaDB, err := badger.Open(badger.DefaultOptions(*dataDir + "/metadata"))
	if err != nil {
		logger.Fatal("open metadata store", zap.Error(err))
	}
	defer metaDB.Close()
	meta := metastore.New(metaDB)

	fsys, err := dfs.NewLocalFS(*dataDir + "/tables")
	if err != nil {
		logger.Fatal("open table filesystem", zap.Error(err))
	}

	cells := cellcache.New(time.Now().UnixNano(), cellcache.WithLogger(logger))

	blocks, err := blockcache.New(*blockCacheBytes, 5*time.Minute, 8, blockcache.WithLogger(logger))
	if err != nil {
		logger.Fatal("init block cache", zap.Error(err))
	}
	defer blocks.Close()

	gc := gcworker.New(meta, fsys, "tables", gcworker.WithLogger(logger))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()

	go runGcLoop(ctx, gc, *gcInterval, logger)

	srv := &debugserver.Server{CellCache: cells, BlockCache: blocks, GcWorker: gc}
	httpSrv := &http.Server{Addr: *addr, Handler: srv.Handler()}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	logger.Info("rangestore-server listening", zap.String("addr", *addr))
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("serve", zap.Error(err))
	}
}

func runGcLoop(ctx context.Context, gc *gcworker.Worker, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := gc.Gc(ctx); err != nil {
				logger.Warn("gc pass failed", zap.Error(err))
			}
		}
	}
}
