package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/cog-neurophys-lab/dh5io/hdf5"
)

const maxTreeDepth = 20

func runTree(e *env, args []string) error {
	fs := newFlagSet(e, "tree", "file")
	attrs := fs.Bool("attrs", false, "list attribute names")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usageErr("want exactly one file")
	}

	f, err := hdf5.Open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer f.Close()

	writeLine(e.stdout, "%s (superblock v%d)", fs.Arg(0), f.Version())
	return printGroup(e.stdout, f.Root(), "", 0, *attrs)
}

// printGroup writes the members of g, one per line, indented by depth.
func printGroup(w io.Writer, g *hdf5.Group, indent string, depth int, attrs bool) error {
	if depth > maxTreeDepth {
		writeLine(w, "%s[max depth reached]", indent)
		return nil
	}
	if attrs {
		if names := g.Attrs(); len(names) > 0 {
			writeLine(w, "%s@ %s", indent, strings.Join(names, ", "))
		}
	}

	members, err := g.Members()
	if err != nil {
		return fmt.Errorf("listing %s: %w", g.Path(), err)
	}
	for i, name := range members {
		branch, next := "├── ", "│   "
		if i == len(members)-1 {
			branch, next = "└── ", "    "
		}

		kind, err := g.MemberKind(name)
		if err != nil {
			writeLine(w, "%s%s%s: %v", indent, branch, name, err)
			continue
		}
		switch kind {
		case hdf5.KindGroup:
			writeLine(w, "%s%s%s/", indent, branch, name)
			sub, err := g.OpenGroup(name)
			if err != nil {
				writeLine(w, "%s%s%v", indent, next, err)
				continue
			}
			if err := printGroup(w, sub, indent+next, depth+1, attrs); err != nil {
				return err
			}
		case hdf5.KindDataset:
			ds, err := g.OpenDataset(name)
			if err != nil {
				writeLine(w, "%s%s%s: %v", indent, branch, name, err)
				continue
			}
			line := fmt.Sprintf("%s %v", name, ds.Shape())
			if fields := ds.CompoundFields(); fields != nil {
				line += " {" + strings.Join(fields, ", ") + "}"
			}
			writeLine(w, "%s%s%s", indent, branch, line)
			if attrs {
				if names := ds.Attrs(); len(names) > 0 {
					writeLine(w, "%s%s@ %s", indent, next, strings.Join(names, ", "))
				}
			}
		case hdf5.KindDatatype:
			dt, err := g.OpenDatatype(name)
			if err != nil {
				writeLine(w, "%s%s%s: %v", indent, branch, name, err)
				continue
			}
			line := name + " (datatype)"
			if fields := dt.CompoundFields(); fields != nil {
				line += " {" + strings.Join(fields, ", ") + "}"
			}
			writeLine(w, "%s%s%s", indent, branch, line)
		}
	}
	return nil
}
