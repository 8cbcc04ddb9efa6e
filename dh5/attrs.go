package dh5

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cog-neurophys-lab/dh5io/hdf5"
)

// attrReader is implemented by *hdf5.Group and *hdf5.Dataset.
type attrReader interface {
	Attr(name string) *hdf5.Attribute
}

// intAttr reads a scalar integer attribute.
func intAttr(obj attrReader, name string) (int64, bool, error) {
	attr := obj.Attr(name)
	if attr == nil {
		return 0, false, nil
	}
	v, err := attr.ReadScalarInt64()
	if err != nil {
		return 0, true, fmt.Errorf("reading attribute %s: %w", name, err)
	}
	return v, true, nil
}

// floatsAttr reads a scalar or 1-D floating point attribute.
func floatsAttr(obj attrReader, name string) ([]float64, bool, error) {
	attr := obj.Attr(name)
	if attr == nil {
		return nil, false, nil
	}
	v, err := attr.ReadFloat64()
	if err != nil {
		return nil, true, fmt.Errorf("reading attribute %s: %w", name, err)
	}
	return v, true, nil
}

// stringAttr reads a scalar string attribute.
func stringAttr(obj attrReader, name string) (string, bool, error) {
	attr := obj.Attr(name)
	if attr == nil {
		return "", false, nil
	}
	v, err := attr.ReadScalarString()
	if err != nil {
		return "", true, fmt.Errorf("reading attribute %s: %w", name, err)
	}
	return v, true, nil
}

// fieldsEqual reports whether a compound type has exactly the given member
// names in order.
func fieldsEqual(got []string, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

// parseID returns the id of a member named prefix followed by a decimal
// number without leading zeros.
func parseID(name, prefix string) (int, bool) {
	digits, ok := strings.CutPrefix(strings.TrimPrefix(name, "/"), prefix)
	if !ok || digits == "" {
		return 0, false
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	id, err := strconv.Atoi(digits)
	if err != nil || strconv.Itoa(id) != digits {
		return 0, false
	}
	return id, true
}

// groupIDs lists the ids of the member groups of g named prefix<id>, sorted.
func groupIDs(g *hdf5.Group, prefix string) ([]int, error) {
	members, err := g.Members()
	if err != nil {
		return nil, fmt.Errorf("listing members of %s: %w", g.Path(), err)
	}

	var ids []int
	for _, name := range members {
		id, ok := parseID(name, prefix)
		if !ok {
			continue
		}
		kind, err := g.MemberKind(name)
		if err != nil {
			return nil, fmt.Errorf("inspecting %s: %w", name, err)
		}
		if kind == hdf5.KindGroup {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids, nil
}
