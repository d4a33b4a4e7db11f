package main

import (
	"fmt"
	"os"

	kingpin "gopkg.in/alecthomas/kingpin.v2"

	"github.com/tomasleon/poorly/internal/core"
	"github.com/tomasleon/poorly/internal/engine"
	"github.com/tomasleon/poorly/internal/frontend"
)

var (
	dataDir = kingpin.Flag("data-dir", "directory holding database subdirectories").Default("data").String()
	addr    = kingpin.Flag("addr", "address to listen on").Default(":4780").String()
	verbose = kingpin.Flag("verbose", "log at debug level, overriding POORLY_LOG_LEVEL").Bool()
)

func main() {
	kingpin.CommandLine.HelpFlag.Short('h')
	kingpin.Parse()

	level := core.ParseLogLevel(os.Getenv("POORLY_LOG_LEVEL"))
	if *verbose {
		level = core.LogLevelDebug
	}
	log := core.NewLogger(level, os.Stderr)

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "poorly-server: %v\n", err)
		os.Exit(1)
	}

	e, err := engine.New(*dataDir, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "poorly-server: %v\n", err)
		os.Exit(1)
	}
	defer e.Close()

	srv := frontend.New(e, log)
	log.Info("data directory: %s", *dataDir)
	if err := srv.ListenAndServe(*addr); err != nil {
		fmt.Fprintf(os.Stderr, "poorly-server: %v\n", err)
		os.Exit(1)
	}
}
