package main

import (
	"flag"
	"time"
)

type options struct {
	target           string
	json             bool
	watch            bool
	interval         time.Duration
	heapProfile      string
	goroutineProfile string
	version          bool
}

func parseFlags() *options {
	opts := &options{}
	flag.StringVar(&opts.target, "target", "http://localhost:6060", "base URL of the rangestore process to inspect")
	flag.BoolVar(&opts.json, "json", false, "emit raw JSON instead of a pretty summary")
	flag.BoolVar(&opts.watch, "watch", false, "poll the snapshot endpoint repeatedly instead of a single fetch")
	flag.DurationVar(&opts.interval, "interval", 2*time.Second, "polling interval used with -watch")
	flag.StringVar(&opts.heapProfile, "heap-profile", "", "download a heap pprof profile to this path and exit")
	flag.StringVar(&opts.goroutineProfile, "goroutine-profile", "", "download a goroutine pprof profile to this path and exit")
	flag.BoolVar(&opts.version, "version", false, "print version and exit")
	flag.Parse()
	return opts
}
