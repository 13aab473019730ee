// uatu runs a script and records what it does: calls, returns and
// assignments, in order.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/uatu/compiler"
	"github.com/chazu/uatu/config"
	"github.com/chazu/uatu/pkg/bytecode"
	"github.com/chazu/uatu/store"
	"github.com/chazu/uatu/tracer"
)

var log = commonlog.GetLogger("uatu.cli")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	debug     bool
	configDir string
	backend   string
	storePath string
	dump      bool
	history   string
	disasm    bool
	maxEvents int
	verbose   bool
}

func parseFlags(args []string, stderr io.Writer) (*options, *flag.FlagSet, error) {
	var o options
	fs := flag.NewFlagSet("uatu", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.BoolVar(&o.debug, "debug", false, "Print every line record and event while tracing")
	fs.StringVar(&o.configDir, "config", "", "Directory containing uatu.toml (default: search upward from the program)")
	fs.StringVar(&o.backend, "store", "", "Event store backend: "+strings.Join(store.Backends(), ", "))
	fs.StringVar(&o.storePath, "store-path", "", "Database file for the sqlite and duckdb stores")
	fs.BoolVar(&o.dump, "dump", false, "Print the event log after the run")
	fs.StringVar(&o.history, "history", "", "Print the history of one kind, optionally for one name (e.g. 'assign:y')")
	fs.BoolVar(&o.disasm, "disasm", false, "Print the compiled bytecode and exit")
	fs.IntVar(&o.maxEvents, "max-events", -1, "Detach after this many events (0 = no limit)")
	fs.BoolVar(&o.verbose, "v", false, "Verbose output")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: uatu [options] program\n\n")
		fmt.Fprintf(stderr, "Runs program under the tracer and records calls, returns and assignments.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  uatu -dump prog.py                        # Print every event\n")
		fmt.Fprintf(stderr, "  uatu -history assign:total prog.py        # Values assigned to total\n")
		fmt.Fprintf(stderr, "  uatu -store sqlite -store-path t.db prog.py\n")
	}

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return &o, fs, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	o, fs, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}
	program := fs.Arg(0)

	var histKind, histSubject string
	if o.history != "" {
		histKind, histSubject, _ = strings.Cut(o.history, ":")
		if _, err := tracer.ParseKind(histKind); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
	}

	cfg, err := loadConfig(o, program)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	verbosity := cfg.Log.Verbosity
	if o.verbose {
		verbosity++
	}
	commonlog.Configure(verbosity, cfg.LogFile())

	src, err := os.ReadFile(program)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	unit, err := compiler.Compile(filepath.Base(program), string(src))
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if o.disasm {
		fmt.Fprint(stdout, unit.Disassemble())
		return 0
	}

	events, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if events != nil {
		defer commonlog.CallAndLogWarning(events.Close, "close event store", log)
	}

	tr := tracer.New(tracer.Options{
		Debug:        cfg.Trace.Debug,
		DebugOut:     stderr,
		MaxEvents:    cfg.Trace.MaxEvents,
		Store:        events,
		StoreTimeout: cfg.StoreTimeout(),
	})

	vm := bytecode.NewVM()
	vm.SetOutput(stdout)

	exit := 0
	if _, err := tr.Watch(ctx, vm, unit); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		exit = 1
	}

	if o.dump {
		for _, ev := range tr.Events() {
			fmt.Fprintln(stdout, ev.String())
		}
	}
	if o.history != "" {
		hist, err := tr.Recorder().History(histKind, histSubject)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 2
		}
		for _, ev := range hist {
			fmt.Fprintln(stdout, ev.String())
		}
	}
	if o.verbose {
		printStats(ctx, stderr, tr.Stats(), events)
	}
	return exit
}

// loadConfig reads uatu.toml and lets flags override it.
func loadConfig(o *options, program string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configDir != "" {
		cfg, err = config.Load(o.configDir)
	} else {
		cfg, err = config.FindAndLoad(filepath.Dir(program))
	}
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}

	if o.debug {
		cfg.Trace.Debug = true
	}
	if o.maxEvents >= 0 {
		cfg.Trace.MaxEvents = o.maxEvents
	}
	if o.backend != "" {
		cfg.Store.Backend = o.backend
	}
	if o.storePath != "" {
		cfg.Store.Path = o.storePath
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	return cfg, nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	sc := cfg.StoreConfig()
	s, err := store.Open(ctx, sc)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", sc.Backend, err)
	}
	if s != nil {
		log.Infof("recording run %s to %s store", s.RunID(), sc.Backend)
	}
	return s, nil
}

func printStats(ctx context.Context, w io.Writer, st tracer.Stats, events store.Store) {
	fmt.Fprintf(w, "%d events, %d captures missed, %d lines undecodable, %d captures pending\n",
		st.Events, st.CaptureMisses, st.DecodeFailures, st.Pending)
	if events == nil {
		return
	}
	fmt.Fprintf(w, "store run %s: %d write failures", events.RunID(), st.StoreFailures)
	if r, ok := events.(store.Reader); ok {
		if recs, err := r.Records(ctx); err == nil {
			fmt.Fprintf(w, ", %d records", len(recs))
		}
	}
	fmt.Fprintln(w)
}
