package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/NodePath81/simstat/internal/analysis"
	"github.com/NodePath81/simstat/internal/app"
	"github.com/NodePath81/simstat/internal/config"
	"github.com/NodePath81/simstat/internal/util"
	"github.com/NodePath81/simstat/internal/version"
	"github.com/joho/godotenv"
)

const (
	exitOK         = 0
	exitError      = 1
	exitZeroWeight = 2

	defaultConfigPath = "simstat.yaml"
	dotenvPath        = ".env"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	// A missing .env is the common case; real variables still apply.
	if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(stderr, "error: load %s: %v\n", dotenvPath, err)
		return exitError
	}

	if len(args) == 0 {
		printHelp(stdout)
		return exitError
	}
	switch args[0] {
	case "cwnd", "flowmon", "meanerr":
		return runSingle(ctx, args[0], args[1:], stdout, stderr)
	case "run":
		return runBatch(ctx, args[1:], stdout, stderr)
	case "check":
		return checkConfig(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		printHelp(stdout)
		return exitOK
	case "version", "-v", "--version":
		fmt.Fprintln(stdout, version.Version)
		return exitOK
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
		printHelp(stderr)
		return exitError
	}
}

type outputFlags struct {
	format   *string
	promFile *string
	verbose  *bool
}

func addOutputFlags(fs *flag.FlagSet) outputFlags {
	return outputFlags{
		format:   fs.String("format", "", "Output format: text or json (default text, or $"+config.EnvFormat+")"),
		promFile: fs.String("prom-file", "", "Also write results as a Prometheus textfile to this path"),
		verbose:  fs.Bool("verbose", false, "Log each kept record"),
	}
}

func (o outputFlags) apply(cfg *config.Config) {
	if *o.format != "" {
		cfg.Output.Format = strings.ToLower(strings.TrimSpace(*o.format))
	}
	if *o.promFile != "" {
		cfg.Output.PromFile = *o.promFile
	}
	if *o.verbose {
		cfg.Log.Verbose = true
	}
}

func runSingle(ctx context.Context, name string, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	out := addOutputFlags(fs)
	segmentSize := fs.String("segment-size", "536", "cwnd: bytes per segment for the segment mean (0 disables)")
	protocol := fs.String("protocol", "tcp", "flowmon: protocol to keep (tcp, udp or a number)")
	minPackets := fs.Int64("min-packets", 1, "flowmon: classifier packet count a flow must exceed")
	minWeight := fs.Int64("min-weight", 1, "meanerr: weight an entry must exceed")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitError
	}
	if fs.NArg() > 1 {
		fmt.Fprintf(stderr, "error: %s takes a single input file\n", name)
		return exitError
	}

	cfg := config.Default()
	cfg.ApplyEnv(os.LookupEnv)
	out.apply(&cfg)

	file := fs.Arg(0)
	switch name {
	case "cwnd":
		size, err := config.ParseSize(*segmentSize)
		if err != nil {
			fmt.Fprintln(stderr, "error:", err)
			return exitError
		}
		sz := config.Size(size)
		cfg.Cwnd.SegmentSize = &sz
		cfg.Flowmon.File, cfg.MeanErr.File = "", ""
		cfg.Cwnd.File = util.FirstNonEmpty(file, cfg.Cwnd.File)
	case "flowmon":
		proto, err := config.ParseProtocol(*protocol)
		if err != nil {
			fmt.Fprintln(stderr, "error:", err)
			return exitError
		}
		cfg.Flowmon.Protocol = &proto
		cfg.Flowmon.MinPackets = minPackets
		cfg.Cwnd.File, cfg.MeanErr.File = "", ""
		cfg.Flowmon.File = util.FirstNonEmpty(file, cfg.Flowmon.File)
	case "meanerr":
		cfg.MeanErr.MinWeight = minWeight
		cfg.Cwnd.File, cfg.Flowmon.File = "", ""
		cfg.MeanErr.File = util.FirstNonEmpty(file, cfg.MeanErr.File)
	}
	if !cfg.AnyEnabled() {
		fmt.Fprintf(stderr, "error: %s needs an input file argument or %s\n", name, envFor(name))
		return exitError
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return exitError
	}
	return execute(ctx, cfg, stdout, stderr)
}

func runBatch(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", defaultConfigPath, "Path to config file")
	out := addOutputFlags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitError
	}
	if *configPath == defaultConfigPath && fs.NArg() > 0 {
		*configPath = fs.Arg(0)
	}
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "config invalid: %v\n", err)
		return exitError
	}
	out.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "config invalid: %v\n", err)
		return exitError
	}
	return execute(ctx, cfg, stdout, stderr)
}

func execute(ctx context.Context, cfg config.Config, stdout, stderr io.Writer) int {
	logger := util.NewLoggerTo(stderr, cfg.Log.Verbose)
	runner := app.NewRunner(cfg, logger)
	rep, err := runner.Run(ctx)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		if errors.Is(err, analysis.ErrZeroWeight) {
			return exitZeroWeight
		}
		return exitError
	}
	if err := runner.Emit(stdout, rep); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return exitError
	}
	return exitOK
}

func checkConfig(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", defaultConfigPath, "Path to config file")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitError
	}
	if *configPath == defaultConfigPath && fs.NArg() > 0 {
		*configPath = fs.Arg(0)
	}
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "config invalid: %v\n", err)
		return exitError
	}
	enabled := 0
	for _, on := range []bool{cfg.Cwnd.IsEnabled(), cfg.Flowmon.IsEnabled(), cfg.MeanErr.IsEnabled()} {
		if on {
			enabled++
		}
	}
	fmt.Fprintf(stdout, "config valid: %d analyses enabled, output %s\n", enabled, cfg.Output.Format)
	return exitOK
}

func envFor(name string) string {
	switch name {
	case "cwnd":
		return config.EnvCwndFile
	case "flowmon":
		return config.EnvFlowmonFile
	default:
		return config.EnvLogFile
	}
}

func printHelp(w io.Writer) {
	fmt.Fprint(w, `simstat - ns-3 simulation artifact analysis

Usage:
  simstat cwnd [flags] <trace>        Average a congestion-window trace
  simstat flowmon [flags] <report>    Summarize a FlowMonitor XML report
  simstat meanerr [flags] <log>       Weighted mean of "Mean error of" log lines
  simstat run --config <path>         Run every analysis enabled in a config file
  simstat check --config <path>       Validate config file
  simstat help                        Show this help
  simstat version                     Print version

Inputs may also come from SIMSTAT_CWND_FILE, SIMSTAT_FLOWMON_FILE and
SIMSTAT_LOG_FILE, set in the environment or in ./.env.

Exit status is 1 on I/O or parse errors or when a sum leaves the
float64 range, and 2 when nothing qualified for the average.
`)
}
