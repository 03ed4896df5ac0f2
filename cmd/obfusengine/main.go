package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tailored-agentic-units/obfusengine/config"
	"github.com/tailored-agentic-units/obfusengine/engine"
	"github.com/tailored-agentic-units/obfusengine/observability"
	"github.com/tailored-agentic-units/obfusengine/pipeline"
	"github.com/tailored-agentic-units/obfusengine/rpc"
	"github.com/tailored-agentic-units/obfusengine/technique"
)

const version = "1.0.0"

const (
	exitOK      = 0
	exitFatal   = 1
	exitPartial = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		inputScript string
		ip          string
		port        int
		techniques  string
		directory   string
		outputName  string
		encode      bool
		view        bool
	)
	flag.StringVar(&inputScript, "I", "", "Path to an existing script (.ps1 or .py)")
	flag.StringVar(&inputScript, "input-script", "", "Path to an existing script (.ps1 or .py)")
	flag.StringVar(&ip, "i", "", "Target IP or hostname for a generated reverse shell")
	flag.StringVar(&ip, "ip", "", "Target IP or hostname for a generated reverse shell")
	flag.IntVar(&port, "p", 0, "Target port for a generated reverse shell")
	flag.IntVar(&port, "port", 0, "Target port for a generated reverse shell")
	flag.StringVar(&techniques, "t", "", "Comma-separated techniques: invoke,xencrypt,chameleon,pyfuscation,all")
	flag.StringVar(&techniques, "technique", "", "Comma-separated techniques: invoke,xencrypt,chameleon,pyfuscation,all")
	flag.StringVar(&directory, "d", "", "Output directory; the workspace is created beneath it (overrides config)")
	flag.StringVar(&directory, "directory", "", "Output directory; the workspace is created beneath it (overrides config)")
	flag.StringVar(&outputName, "oN", "", "Output file name (default obfuscated.ps1 or obfuscated.py)")
	flag.StringVar(&outputName, "output-name", "", "Output file name (default obfuscated.ps1 or obfuscated.py)")
	flag.BoolVar(&encode, "e", false, "Base64 encode the output")
	flag.BoolVar(&encode, "encode", false, "Base64 encode the output")
	flag.BoolVar(&view, "v", false, "Show the original and obfuscated scripts side by side")
	flag.BoolVar(&view, "view", false, "Show the original and obfuscated scripts side by side")

	var (
		hxshell     = flag.Bool("hxshell", false, "Use the clipboard contents (e.g. a Hoaxshell payload) as input")
		configFile  = flag.String("config", "", "Path to a JSON or YAML config file")
		enginesDir  = flag.String("engines", "", "Directory holding the engine scripts (overrides config)")
		timeout     = flag.Duration("timeout", 0, "Per-stage engine timeout (overrides config)")
		noClipboard = flag.Bool("no-clipboard", false, "Do not copy the result to the clipboard")
		writeReport = flag.Bool("report", false, "Write <name>_report.json next to the output")
		list        = flag.Bool("list", false, "List techniques and engine availability, then exit")
		serve       = flag.String("serve", "", "Serve the Obfuscate procedure on this address instead of running once")
		verbose     = flag.Bool("verbose", false, "Enable verbose logging to stderr")
		showVersion = flag.Bool("version", false, "Print the version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("obfusengine v%s\n", version)
		return exitOK
	}

	logger := newLogger(*verbose)
	slog.SetDefault(logger)
	observability.RegisterObserver("slog", observability.NewSlogObserver(logger))

	cfg := config.DefaultConfig()
	if *configFile != "" {
		loaded, err := config.LoadConfig(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return exitFatal
		}
		cfg = *loaded
	}

	cfg.Merge(&config.Config{
		Input: config.InputConfig{
			Path:      inputScript,
			IP:        ip,
			Port:      port,
			Clipboard: *hxshell,
		},
		Techniques: technique.ParseList(techniques),
		Output: config.OutputConfig{
			Directory: directory,
			Name:      outputName,
			Report:    *writeReport,
		},
		Encode:   encode,
		View:     view,
		Pipeline: config.PipelineConfig{StageTimeout: config.Duration(*timeout)},
		Engines:  config.EnginesConfig{Dir: *enginesDir},
	})
	if *noClipboard {
		off := false
		cfg.Output.ClipboardNil = &off
	}

	e, err := engine.New(&cfg, engine.WithProgress(progress))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitFatal
	}

	if *list {
		printTechniques(e)
		return exitOK
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *serve != "" {
		obs, _ := observability.GetObserver(cfg.Pipeline.Observer)
		logger.Info("serving", "addr", *serve, "procedure", rpc.ObfuscateProcedure)
		if err := rpc.NewServer(*serve, e, rpc.WithObserver(obs)).ListenAndServe(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return exitFatal
		}
		return exitOK
	}

	if err := validateRun(&cfg); err != nil {
		printUsage(os.Stderr, err)
		flag.PrintDefaults()
		return exitFatal
	}

	result, err := e.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitFatal
	}

	if result.SinkErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", result.SinkErr)
		return exitFatal
	}
	if result.Partial() {
		var stageErr *pipeline.StageError
		if errors.As(result.Warning, &stageErr) {
			fmt.Fprintf(os.Stderr, "warning: technique %s failed; output holds the last successful stage\n", stageErr.Technique)
		} else {
			fmt.Fprintf(os.Stderr, "warning: %v\n", result.Warning)
		}
		return exitPartial
	}
	return exitOK
}

// validateRun checks that a single run has one input source and at least
// one technique.
func validateRun(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if len(cfg.Techniques) == 0 {
		return technique.ErrNoTechniques
	}
	return nil
}

func printUsage(w io.Writer, err error) {
	fmt.Fprintf(w, "error: %v\n\n", err)
	fmt.Fprintln(w, "Usage: obfusengine (-I <script> | -i <ip> -p <port> | -hxshell) -t <techniques> [options]")
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func progress(completed, total int, r pipeline.StageResult) {
	fmt.Fprintf(os.Stderr, "[%d/%d] %s done in %s\n", completed, total, r.Technique, r.Duration.Round(time.Millisecond))
}

func printTechniques(e *engine.Engine) {
	fmt.Printf("Engines: %s\n\n", e.EnginesDir())
	specs := e.Registry().All()
	for i, a := range e.Check() {
		status := "available"
		if !a.Available {
			status = "missing"
		}
		fmt.Printf("  %-12s %-10s %-9s %s\n", a.ID, specs[i].Domain, status, specs[i].Description)
	}
}
