// Command selkie-logger is the acquisition daemon: it loads a single INI
// configuration file, starts one goroutine per configured source plus
// the timer, and runs the writer loop until a shutdown signal arrives.
// Orchestration follows the teacher's server.go: parse flags, build the
// long-lived components, launch background goroutines, then block on
// the main loop and a signal-driven shutdown path.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/gops/agent"

	"github.com/SELKIE-WP7/SELKIELogger/internal/archiver"
	"github.com/SELKIE-WP7/SELKIELogger/internal/catalog"
	"github.com/SELKIE-WP7/SELKIELogger/internal/config"
	"github.com/SELKIE-WP7/SELKIELogger/internal/diagnostics"
	"github.com/SELKIE-WP7/SELKIELogger/internal/fifo"
	"github.com/SELKIE-WP7/SELKIELogger/internal/logging"
	"github.com/SELKIE-WP7/SELKIELogger/internal/signals"
	"github.com/SELKIE-WP7/SELKIELogger/internal/source"
	"github.com/SELKIE-WP7/SELKIELogger/internal/sources/timer"
	"github.com/SELKIE-WP7/SELKIELogger/internal/writer"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		flagVerbosity     = flag.Int("v", -1, "console verbosity (0=debug..5=critical), overrides config")
		flagFileVerbosity = flag.Int("fv", -1, "file verbosity (0=debug..5=critical), overrides config")
		flagGops          = flag.Bool("gops", false, "expose a gops diagnostic agent")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: selkie-logger [flags] <config-file>")
		return 1
	}
	configPath := flag.Arg(0)

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "selkie-logger: %v\n", err)
		return 1
	}

	consoleVerbosity := logging.Level(cfg.Global.Verbosity)
	fileVerbosity := logging.Level(cfg.Global.FileVerbosity)
	if *flagVerbosity >= 0 {
		consoleVerbosity = logging.Level(*flagVerbosity)
	}
	if *flagFileVerbosity >= 0 {
		fileVerbosity = logging.Level(*flagFileVerbosity)
	}

	log := logging.New(consoleVerbosity, fileVerbosity)
	logging.SetDefault(log)

	logPath := filepath.Join(cfg.Global.LogDirectory, cfg.Global.FilePrefix+".log")
	logFile, err := os.OpenFile(logPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		log.Fatalf("open log file %s: %v", logPath, err)
	}
	defer logFile.Close()
	log.SetFile(logFile)

	if *flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Warnf("gops agent: %v", err)
		} else {
			defer agent.Close()
		}
	}

	flags := signals.New()
	stopSignals := flags.Start()
	defer stopSignals()

	q := fifo.New()

	var cat *catalog.Catalog
	if cfg.Global.CatalogPath != "" {
		cat, err = catalog.Open(cfg.Global.CatalogPath, log)
		if err != nil {
			log.Fatalf("open catalog: %v", err)
		}
		defer cat.Close()
	}

	arc, err := archiver.New(context.Background(), archiver.Config{
		Gzip:     cfg.Global.ArchiveGzip,
		S3Bucket: cfg.Global.ArchiveS3Bucket,
	}, log)
	if err != nil {
		log.Fatalf("start archiver: %v", err)
	}

	reg, stats := diagnostics.NewStats(q)
	diag := diagnostics.New(diagnostics.Config{
		Addr:           cfg.Global.DiagAddr,
		ReportInterval: cfg.Global.DiagReportInterval,
	}, reg, stats, log)
	if err := diag.Start(); err != nil {
		log.Fatalf("start diagnostics: %v", err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		diag.Stop(stopCtx)
	}()

	sources := make([]source.Source, 0, len(cfg.Sources)+1)
	haveTimer := false
	for _, sc := range cfg.Sources {
		s, err := buildSource(sc, cfg.Global.Frequency, q, flags, log)
		if err != nil {
			log.Fatalf("configure source %s: %v", sc.Name, err)
		}
		if sc.Type == "timer" {
			haveTimer = true
		}
		sources = append(sources, s)
	}
	if !haveTimer {
		sources = append(sources, timer.New(0x02, cfg.Global.Frequency, q, flags, log))
	}

	var wg sync.WaitGroup
	done := make(chan error, len(sources))
	for _, s := range sources {
		wg.Add(1)
		go func(s source.Source) {
			defer wg.Done()
			source.Run(s, flags, log, done)
		}(s)
	}
	go func() {
		for err := range done {
			if err != nil {
				log.Warnf("a source thread exited with an error: %v", err)
			}
		}
	}()

	w := writer.New(cfg.Global.LogDirectory, cfg.Global.FilePrefix, "dat", q, flags, log, cat, sources)
	w.JoinSources = func() {
		wg.Wait()
		close(done)
	}
	w.OnRotate = func(path string) {
		go func(p string) {
			if _, err := arc.Archive(context.Background(), p); err != nil {
				log.Warnf("archiver: %v", err)
			}
		}(path)
	}

	log.SetState(logging.StateRunning)
	runErr := w.Run()
	log.SetState(logging.StateShutdown)

	if runErr != nil {
		log.Errorf("writer: %v", runErr)
		return 1
	}
	return 0
}
