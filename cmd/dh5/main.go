// Command dh5 inspects, validates, creates and catalogs DAQ-HDF5 files.
//
// Usage:
//
//	dh5 [-config file] [-log-level level] <command> [flags] [args]
//
// Commands:
//
//	info           summarize files
//	validate       check files against the DH5 schema
//	create         create an empty DH5 file
//	add-operation  append an entry to the processing history
//	tree           print the HDF5 hierarchy of a file
//	catalog        scan files into, or query, the SQLite catalog
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/cog-neurophys-lab/dh5io/dh5"
	"github.com/cog-neurophys-lab/dh5io/internal/config"
	"github.com/cog-neurophys-lab/dh5io/internal/logging"
)

// errInvalid makes the command exit with status 1 without printing an
// additional error.
var errInvalid = errors.New("invalid files")

// env carries the state shared by all subcommands.
type env struct {
	cfg    config.Config
	logger zerolog.Logger
	stdout io.Writer
	stderr io.Writer
}

// fileOptions returns the dh5 options derived from the configuration.
func (e *env) fileOptions() []dh5.Option {
	opts := []dh5.Option{
		dh5.WithLogger(e.logger),
		dh5.WithOperator(e.cfg.Operator),
		dh5.WithTool(e.cfg.Tool),
	}
	if e.cfg.Strict {
		opts = append(opts, dh5.WithStrict())
	}
	return opts
}

type command struct {
	name    string
	summary string
	run     func(e *env, args []string) error
}

var commands = []command{
	{"info", "summarize files", runInfo},
	{"validate", "check files against the DH5 schema", runValidate},
	{"create", "create an empty DH5 file", runCreate},
	{"add-operation", "append an entry to the processing history", runAddOperation},
	{"tree", "print the HDF5 hierarchy of a file", runTree},
	{"ls", "list datasets with their shapes", runLs},
	{"attrs", "print attributes", runAttrs},
	{"catalog", "scan files into, or query, the SQLite catalog", runCatalog},
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, nil))
}

// run executes the command line args and returns the exit status. environ
// replaces the process environment when non-nil.
func run(args []string, stdout, stderr io.Writer, environ map[string]string) int {
	fs := flag.NewFlagSet("dh5", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "configuration file (default "+config.DefaultPath()+")")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn or error")
	fs.Usage = func() { usage(fs) }
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath, environ)
	if err != nil {
		fmt.Fprintf(stderr, "dh5: %v\n", err)
		return 1
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(stderr, "dh5: %v\n", err)
		return 2
	}

	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}
	name, rest := fs.Arg(0), fs.Args()[1:]

	e := &env{
		cfg:    cfg,
		logger: logging.New(stderr, "dh5", level),
		stdout: stdout,
		stderr: stderr,
	}
	for _, c := range commands {
		if c.name != name {
			continue
		}
		err := c.run(e, rest)
		switch {
		case err == nil:
			return 0
		case errors.Is(err, flag.ErrHelp):
			return 0
		case errors.Is(err, errInvalid):
			return 1
		case errors.Is(err, errUsage):
			fmt.Fprintf(stderr, "dh5 %s: %v\n", name, err)
			return 2
		default:
			fmt.Fprintf(stderr, "dh5 %s: %v\n", name, err)
			return 1
		}
	}

	fmt.Fprintf(stderr, "dh5: unknown command %q\n", name)
	fs.Usage()
	return 2
}

func usage(fs *flag.FlagSet) {
	out := fs.Output()
	fmt.Fprintln(out, "usage: dh5 [flags] <command> [command flags] [args]")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "commands:")
	for _, c := range commands {
		fmt.Fprintf(out, "  %-14s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "flags:")
	fs.PrintDefaults()
}
