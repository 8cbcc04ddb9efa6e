package hdf5

import (
	"fmt"
	"path"
	"reflect"
	"strings"

	"github.com/cog-neurophys-lab/dh5io/internal/dtype"
	"github.com/cog-neurophys-lab/dh5io/internal/message"
	"github.com/cog-neurophys-lab/dh5io/internal/object"
)

// CreateGroup creates the subgroup name.
func (g *Group) CreateGroup(name string) (*Group, error) {
	if err := g.canAdd(name); err != nil {
		return nil, err
	}
	child := &Group{file: g.file, path: childPath(g.path, name)}
	if err := child.commit(); err != nil {
		return nil, err
	}
	if err := g.addLink(message.NewHardLink(name, child.addr)); err != nil {
		return nil, err
	}
	g.file.groups[child.path] = child
	return child, nil
}

// SetAttr creates or replaces the attribute name. Numbers and strings are
// stored as scalars, slices of them as one dimensional attributes and
// structs, or slices of structs, as compounds. Strings are null
// terminated and sized to the longest value.
func (g *Group) SetAttr(name string, value any) error {
	if err := g.file.writable(); err != nil {
		return err
	}
	attr, err := newAttribute(name, value)
	if err != nil {
		return fmt.Errorf("%s: attribute %q: %w", g.path, name, err)
	}
	if i := g.attrIndex(name); i >= 0 {
		g.attrs[i] = attr
	} else {
		g.attrs = append(g.attrs, attr)
	}
	return g.commit()
}

// DeleteAttr removes the attribute name.
func (g *Group) DeleteAttr(name string) error {
	if err := g.file.writable(); err != nil {
		return err
	}
	i := g.attrIndex(name)
	if i < 0 {
		return fmt.Errorf("%s: attribute %q: %w", g.path, name, ErrNotFound)
	}
	g.attrs = append(g.attrs[:i], g.attrs[i+1:]...)
	return g.commit()
}

func (g *Group) attrIndex(name string) int {
	for i, a := range g.attrs {
		if a.Name == name {
			return i
		}
	}
	return -1
}

// Unlink removes the member name. The storage of the object is not
// reclaimed.
func (g *Group) Unlink(name string) error {
	if err := g.file.writable(); err != nil {
		return err
	}
	i := -1
	for j, l := range g.links {
		if l.Name == name {
			i = j
			break
		}
	}
	if i < 0 {
		return fmt.Errorf("%s: %w", childPath(g.path, name), ErrNotFound)
	}
	g.links = append(g.links[:i], g.links[i+1:]...)

	gone := childPath(g.path, name)
	for p := range g.file.groups {
		if p == gone || strings.HasPrefix(p, gone+"/") {
			delete(g.file.groups, p)
		}
	}
	return g.commit()
}

// Move renames the member src of g to dst.
func (g *Group) Move(src, dst string) error {
	if err := g.canAdd(dst); err != nil {
		return err
	}
	l := g.link(src)
	if l == nil {
		return fmt.Errorf("%s: %w", childPath(g.path, src), ErrNotFound)
	}
	l.Name = dst

	gone := childPath(g.path, src)
	for p := range g.file.groups {
		if p == gone || strings.HasPrefix(p, gone+"/") {
			delete(g.file.groups, p)
		}
	}
	return g.commit()
}

// CommitDatatype stores the datatype of sample, a number or a struct, as
// the committed datatype name.
func (g *Group) CommitDatatype(name string, sample any) (*NamedDatatype, error) {
	if err := g.canAdd(name); err != nil {
		return nil, err
	}
	t := reflect.TypeOf(sample)
	if t == nil {
		return nil, fmt.Errorf("no datatype for nil")
	}
	dt, err := dtype.Of(t)
	if err != nil {
		return nil, err
	}
	addr, err := g.file.writeHeader([]message.Message{dt}, 0)
	if err != nil {
		return nil, fmt.Errorf("writing datatype %s: %w", name, err)
	}
	if err := g.addLink(message.NewHardLink(name, addr)); err != nil {
		return nil, err
	}
	return &NamedDatatype{path: childPath(g.path, name), dt: dt}, nil
}

// canAdd checks that a member called name may be created.
func (g *Group) canAdd(name string) error {
	if err := g.file.writable(); err != nil {
		return err
	}
	if name == "" || strings.Contains(name, "/") || name == "." {
		return fmt.Errorf("invalid member name %q", name)
	}
	if g.HasMember(name) {
		return fmt.Errorf("%s: %w", childPath(g.path, name), ErrExists)
	}
	return nil
}

func (g *Group) addLink(l *message.Link) error {
	g.links = append(g.links, l)
	return g.commit()
}

// commit writes the group's members and attributes as a new header and
// repoints the parent at it, or the superblock for the root group. The
// parent is committed in turn.
func (g *Group) commit() error {
	addr, err := g.file.writeHeader(object.GroupMessages(g.links, g.attrs), object.MinGroupChunkSize)
	if err != nil {
		return fmt.Errorf("%s: writing header: %w", g.path, err)
	}
	old := g.addr
	g.addr = addr
	if g.path == "/" {
		g.file.sb.RootGroupAddress = addr
		return nil
	}
	if old == 0 {
		// not linked yet
		return nil
	}

	parent, err := g.parent()
	if err != nil {
		return err
	}
	name := path.Base(g.path)
	for _, l := range parent.links {
		if l.Name == name && l.IsHard() && l.ObjectAddress == old {
			l.ObjectAddress = addr
			return parent.commit()
		}
	}
	return fmt.Errorf("%s: no hard link %q to %#x", parent.path, name, old)
}

func (g *Group) parent() (*Group, error) {
	dir := path.Dir(g.path)
	if dir == "/" {
		return g.file.root, nil
	}
	return g.file.root.OpenGroup(dir)
}
