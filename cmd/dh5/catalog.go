package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/cog-neurophys-lab/dh5io/dh5"
	"github.com/cog-neurophys-lab/dh5io/internal/catalog"
	"github.com/cog-neurophys-lab/dh5io/internal/render"
)

// dh5Extensions are the file name extensions picked up by catalog scan.
var dh5Extensions = []string{".dh5", ".h5", ".hdf5"}

func runCatalog(e *env, args []string) error {
	if len(args) == 0 {
		return usageErr("want a subcommand: scan, list, show or remove")
	}
	sub, args := args[0], args[1:]

	fset := newFlagSet(e, "catalog "+sub, "[args]")
	dbPath := fset.String("db", e.cfg.Catalog, "catalog database")
	format := formatFlag(fset)
	invalidOnly := fset.Bool("invalid", false, "list: only files that failed validation")
	prefix := fset.String("prefix", "", "list: only paths with this prefix")
	if err := parseFlags(fset, args); err != nil {
		return err
	}
	f, err := render.ParseFormat(*format)
	if err != nil {
		return usageErr("%v", err)
	}

	store, err := catalog.Open(*dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	r := render.New(e.stdout, f)

	switch sub {
	case "scan":
		if fset.NArg() == 0 {
			return usageErr("no files or directories given")
		}
		return scan(ctx, e, store, fset.Args())
	case "list":
		entries, err := store.List(ctx, catalog.ListOptions{InvalidOnly: *invalidOnly, PathPrefix: *prefix})
		if err != nil {
			return err
		}
		return r.Entries(entries)
	case "show":
		var entries []catalog.Entry
		for _, p := range fset.Args() {
			abs, err := filepath.Abs(p)
			if err != nil {
				return err
			}
			entry, err := store.Get(ctx, abs)
			if err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return r.Entries(entries)
	case "remove":
		for _, p := range fset.Args() {
			abs, err := filepath.Abs(p)
			if err != nil {
				return err
			}
			if err := store.Delete(ctx, abs); err != nil {
				return err
			}
		}
		return nil
	default:
		return usageErr("unknown catalog subcommand %q", sub)
	}
}

// scan records every DH5 file under roots in the catalog.
func scan(ctx context.Context, e *env, store *catalog.Store, roots []string) error {
	var paths []string
	for _, root := range roots {
		err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !hasDH5Extension(p) {
				return nil
			}
			abs, err := filepath.Abs(p)
			if err != nil {
				return err
			}
			paths = append(paths, abs)
			return nil
		})
		if err != nil {
			return fmt.Errorf("scanning %s: %w", root, err)
		}
	}

	scanned, failed := 0, 0
	for _, p := range paths {
		entry, err := scanFile(e, p)
		if err != nil {
			e.logger.Warn().Str("path", p).Err(err).Msg("skipping unreadable file")
			failed++
			continue
		}
		if err := store.Upsert(ctx, entry); err != nil {
			return err
		}
		scanned++
		e.logger.Debug().Str("path", p).Bool("valid", entry.Valid).Msg("cataloged")
	}
	writeLine(e.stdout, "cataloged %d files, skipped %d", scanned, failed)
	return nil
}

// scanFile summarizes and validates one file.
func scanFile(e *env, path string) (catalog.Entry, error) {
	f, err := dh5.Open(path, dh5.WithLogger(e.logger))
	if err != nil {
		return catalog.Entry{}, err
	}
	defer f.Close()

	report, verr := dh5.Validate(f)
	summary, err := f.Summary()
	if err != nil {
		if verr == nil || !errors.Is(verr, dh5.ErrInvalid) {
			return catalog.Entry{}, err
		}
		summary = &dh5.Summary{Path: path}
	}
	return catalog.NewEntry(summary, report, verr, time.Now()), nil
}

func hasDH5Extension(p string) bool {
	ext := strings.ToLower(filepath.Ext(p))
	for _, want := range dh5Extensions {
		if ext == want {
			return true
		}
	}
	return false
}
