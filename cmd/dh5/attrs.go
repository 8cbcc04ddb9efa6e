package main

import (
	"fmt"
	"strings"

	"github.com/cog-neurophys-lab/dh5io/hdf5"
)

// runAttrs prints attributes. Without attribute paths it lists every
// attribute in the file.
func runAttrs(e *env, args []string) error {
	fs := newFlagSet(e, "attrs", "file [object@attr...]")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return usageErr("no file given")
	}

	f, err := hdf5.Open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer f.Close()

	if fs.NArg() == 1 {
		return f.WalkAttrs(func(info hdf5.AttrInfo) error {
			if info.Err != nil {
				writeLine(e.stdout, "%s: %v", info.Path, info.Err)
				return nil
			}
			writeLine(e.stdout, "%s = %s", info.Path, formatValue(info.Value))
			return nil
		})
	}

	for _, p := range fs.Args()[1:] {
		v, err := f.ReadAttr(p)
		if err != nil {
			return err
		}
		writeLine(e.stdout, "%s = %s", p, formatValue(v))
	}
	return nil
}

// runLs lists every dataset below the given group with its shape.
func runLs(e *env, args []string) error {
	fs := newFlagSet(e, "ls", "file [group]")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() < 1 || fs.NArg() > 2 {
		return usageErr("want a file and an optional group")
	}

	f, err := hdf5.Open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer f.Close()

	start := f.Root()
	if fs.NArg() == 2 {
		if start, err = f.OpenGroup(fs.Arg(1)); err != nil {
			return err
		}
	}

	return hdf5.Walk(start, func(p string, obj interface{}, err error) error {
		if err != nil {
			writeLine(e.stderr, "%s: %v", p, err)
			return nil
		}
		ds, ok := obj.(*hdf5.Dataset)
		if !ok {
			return nil
		}
		line := fmt.Sprintf("%-32s %-12s %d bytes", p, fmt.Sprint(ds.Shape()), ds.DtypeSize())
		if fields := ds.CompoundFields(); fields != nil {
			line += " {" + strings.Join(fields, ", ") + "}"
		}
		writeLine(e.stdout, "%s", line)
		return nil
	})
}

func formatValue(v interface{}) string {
	switch v := v.(type) {
	case string:
		return fmt.Sprintf("%q", v)
	case []string:
		return fmt.Sprintf("%q", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
