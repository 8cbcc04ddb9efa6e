package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/cog-neurophys-lab/dh5io/dh5"
	"github.com/cog-neurophys-lab/dh5io/internal/render"
)

// errUsage marks bad command line arguments.
var errUsage = errors.New("usage")

func usageErr(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), errUsage)
}

func newFlagSet(e *env, name, args string) *flag.FlagSet {
	fs := flag.NewFlagSet("dh5 "+name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: dh5 %s [flags] %s\n", name, args)
		fs.PrintDefaults()
	}
	return fs
}

// parseFlags parses args into fs. Bad flags are usage errors; -h is passed
// through as flag.ErrHelp.
func parseFlags(fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err == nil || errors.Is(err, flag.ErrHelp) {
		return err
	}
	return fmt.Errorf("%w: %w", errUsage, err)
}

func formatFlag(fs *flag.FlagSet) *string {
	return fs.String("format", "text", "output format: text, json or yaml")
}

func runInfo(e *env, args []string) error {
	fs := newFlagSet(e, "info", "file...")
	format := formatFlag(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return usageErr("no files given")
	}
	f, err := render.ParseFormat(*format)
	if err != nil {
		return usageErr("%v", err)
	}
	r := render.New(e.stdout, f)

	for _, path := range fs.Args() {
		file, err := dh5.Open(path, e.fileOptions()...)
		if err != nil {
			return err
		}
		summary, err := file.Summary()
		file.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := r.Summary(summary); err != nil {
			return err
		}
	}
	return nil
}

func runValidate(e *env, args []string) error {
	fs := newFlagSet(e, "validate", "file...")
	format := formatFlag(fs)
	strict := fs.Bool("strict", e.cfg.Strict, "treat warnings as errors")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return usageErr("no files given")
	}
	f, err := render.ParseFormat(*format)
	if err != nil {
		return usageErr("%v", err)
	}
	r := render.New(e.stdout, f)

	opts := []dh5.Option{dh5.WithLogger(e.logger)}
	if *strict {
		opts = append(opts, dh5.WithStrict())
	}

	invalid := 0
	for _, path := range fs.Args() {
		report, verr := dh5.ValidatePath(path, opts...)
		if verr != nil {
			invalid++
		}
		if err := r.Report(path, report, verr); err != nil {
			return err
		}
	}
	if invalid > 0 {
		e.logger.Error().Int("invalid", invalid).Int("files", fs.NArg()).Msg("validation failed")
		return errInvalid
	}
	return nil
}

func runCreate(e *env, args []string) error {
	fs := newFlagSet(e, "create", "file")
	boards := fs.String("boards", strings.Join(e.cfg.Boards, ","), "comma separated A/D board names")
	operator := fs.String("operator", e.cfg.Operator, "operator name recorded in 000_create_file")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usageErr("want exactly one file")
	}

	opts := append(e.fileOptions(), dh5.WithOperator(*operator))
	if list := splitList(*boards); len(list) > 0 {
		opts = append(opts, dh5.WithBoards(list...))
	}
	f, err := dh5.Create(fs.Arg(0), opts...)
	if err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "created %s\n", fs.Arg(0))
	return nil
}

func runAddOperation(e *env, args []string) error {
	fs := newFlagSet(e, "add-operation", "-name NAME file")
	name := fs.String("name", "", "operation name, e.g. filter")
	tool := fs.String("tool", e.cfg.Tool, "tool that performed the operation")
	operator := fs.String("operator", e.cfg.Operator, "person who performed the operation")
	original := fs.String("original-file", "", "file the operation read from")
	id := fs.Int("id", -1, "operation index (default: one past the last)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usageErr("want exactly one file")
	}
	if *name == "" {
		return usageErr("-name is required")
	}

	f, err := dh5.OpenReadWrite(fs.Arg(0), e.fileOptions()...)
	if err != nil {
		return err
	}
	opts := []dh5.OperationOption{dh5.OperationTool(*tool)}
	if *operator != "" {
		opts = append(opts, dh5.OperatorName(*operator))
	}
	if *original != "" {
		opts = append(opts, dh5.OriginalFilename(*original))
	}
	if *id >= 0 {
		opts = append(opts, dh5.OperationID(*id))
	}
	if err := f.AddOperation(*name, opts...); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	last, _, err := lastOperation(fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "%s: added %s\n", fs.Arg(0), last)
	return nil
}

// lastOperation returns the name of the last operation of the file at path.
func lastOperation(path string) (string, bool, error) {
	f, err := dh5.Open(path)
	if err != nil {
		return "", false, err
	}
	defer f.Close()
	ops, err := f.Operations()
	if err != nil || len(ops) == 0 {
		return "", false, err
	}
	return ops[len(ops)-1].Name, true, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func writeLine(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format+"\n", args...)
}
