package hdf5

import (
	"fmt"
	"path"
	"strings"

	"github.com/cog-neurophys-lab/dh5io/internal/btree"
	"github.com/cog-neurophys-lab/dh5io/internal/heap"
	"github.com/cog-neurophys-lab/dh5io/internal/message"
	"github.com/cog-neurophys-lab/dh5io/internal/object"
)

// Group is an HDF5 group. Its members and attributes are loaded when the
// group is opened; a file hands out one Group per path, so changes made
// through it are seen by every holder.
type Group struct {
	file  *File
	path  string
	addr  uint64
	links []*message.Link
	attrs []*message.Attribute
}

// Kind is the type of object a group member refers to.
type Kind int

const (
	KindGroup Kind = iota
	KindDataset
	KindDatatype
)

func (k Kind) String() string {
	switch k {
	case KindGroup:
		return "group"
	case KindDataset:
		return "dataset"
	case KindDatatype:
		return "datatype"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// group returns the loaded group at p, reading it from n when it is not
// loaded yet.
func (f *File) group(p string, n node) (*Group, error) {
	if g, ok := f.groups[p]; ok {
		return g, nil
	}
	if n.kind != KindGroup {
		return nil, fmt.Errorf("%s: %w", p, ErrNotGroup)
	}
	if n.hdr == nil {
		var err error
		if n, err = f.node(n.addr); err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	links, err := f.memberLinks(n.hdr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	g := &Group{file: f, path: p, addr: n.addr, links: links, attrs: n.hdr.Attributes()}
	f.groups[p] = g
	return g, nil
}

// memberLinks returns the members of a group header. Symbol table
// members are turned into link messages.
func (f *File) memberLinks(hdr *object.Header) ([]*message.Link, error) {
	if info := hdr.LinkInfo(); info != nil && info.Dense() {
		return nil, fmt.Errorf("dense link storage: %w", ErrUnsupported)
	}
	st := hdr.SymbolTable()
	if st == nil {
		return hdr.Links(), nil
	}
	names, err := heap.ReadLocal(f.r, st.LocalHeapAddress)
	if err != nil {
		return nil, fmt.Errorf("reading local heap: %w", err)
	}
	entries, err := btree.GroupEntries(f.r, st.BTreeAddress, names)
	if err != nil {
		return nil, fmt.Errorf("reading symbol table: %w", err)
	}
	links := make([]*message.Link, len(entries))
	for i, e := range entries {
		if e.Soft {
			links[i] = message.NewSoftLink(e.Name, e.Target)
		} else {
			links[i] = message.NewHardLink(e.Name, e.Address)
		}
	}
	return links, nil
}

// Name returns the last component of the group's path.
func (g *Group) Name() string {
	return path.Base(g.path)
}

// Path returns the absolute path of the group.
func (g *Group) Path() string {
	return g.path
}

// Members returns the member names in storage order.
func (g *Group) Members() ([]string, error) {
	names := make([]string, len(g.links))
	for i, l := range g.links {
		names[i] = l.Name
	}
	return names, nil
}

// HasMember reports whether the group has a member called name. A soft
// link counts even if its target is missing.
func (g *Group) HasMember(name string) bool {
	return g.link(name) != nil
}

// MemberKind reports what the member name refers to.
func (g *Group) MemberKind(name string) (Kind, error) {
	n, err := g.child(name, 0)
	if err != nil {
		return 0, err
	}
	return n.kind, nil
}

// OpenGroup opens the group at rel, a path relative to g.
func (g *Group) OpenGroup(rel string) (*Group, error) {
	n, p, err := g.walk(rel, 0)
	if err != nil {
		return nil, err
	}
	return g.file.group(p, n)
}

// OpenDataset opens the dataset at rel, a path relative to g.
func (g *Group) OpenDataset(rel string) (*Dataset, error) {
	n, p, err := g.walk(rel, 0)
	if err != nil {
		return nil, err
	}
	if n.kind != KindDataset {
		return nil, fmt.Errorf("%s: %w", p, ErrNotDataset)
	}
	return g.file.dataset(p, n)
}

// OpenDatatype opens the committed datatype at rel, a path relative to g.
func (g *Group) OpenDatatype(rel string) (*NamedDatatype, error) {
	n, p, err := g.walk(rel, 0)
	if err != nil {
		return nil, err
	}
	if n.kind != KindDatatype {
		return nil, fmt.Errorf("%s: %w", p, ErrNotDatatype)
	}
	return &NamedDatatype{path: p, dt: n.hdr.Datatype()}, nil
}

// Attrs returns the attribute names in storage order.
func (g *Group) Attrs() []string {
	return attrNames(g.attrs)
}

// Attr returns the attribute called name, or nil.
func (g *Group) Attr(name string) *Attribute {
	for _, a := range g.attrs {
		if a.Name == name {
			return g.file.attribute(a)
		}
	}
	return nil
}

// HasAttr reports whether the group has an attribute called name.
func (g *Group) HasAttr(name string) bool {
	return g.Attr(name) != nil
}

func attrNames(attrs []*message.Attribute) []string {
	names := make([]string, len(attrs))
	for i, a := range attrs {
		names[i] = a.Name
	}
	return names
}

func (g *Group) link(name string) *message.Link {
	for _, l := range g.links {
		if l.Name == name {
			return l
		}
	}
	return nil
}

// child resolves the member name. hops counts the soft links followed so
// far.
func (g *Group) child(name string, hops int) (node, error) {
	p := childPath(g.path, name)
	l := g.link(name)
	switch {
	case l == nil:
		return node{}, fmt.Errorf("%s: %w", p, ErrNotFound)
	case l.IsHard():
		if cached, ok := g.file.groups[p]; ok && cached.addr == l.ObjectAddress {
			return node{addr: cached.addr, kind: KindGroup}, nil
		}
		n, err := g.file.node(l.ObjectAddress)
		if err != nil {
			return node{}, fmt.Errorf("%s: %w", p, err)
		}
		return n, nil
	case l.IsSoft():
		if hops >= maxSoftLinks {
			return node{}, fmt.Errorf("%s: %w", p, ErrLinkDepth)
		}
		from := g
		if strings.HasPrefix(l.SoftLinkValue, "/") {
			from = g.file.root
		}
		n, _, err := from.walk(l.SoftLinkValue, hops+1)
		return n, err
	}
	return node{}, fmt.Errorf("%s: external link to %s: %w", p, l.ExternalFile, ErrUnsupported)
}

// walk resolves rel, a slash separated path, starting at g. It returns
// the object and its path as named through g.
func (g *Group) walk(rel string, hops int) (node, string, error) {
	n := node{addr: g.addr, kind: KindGroup}
	cur, p := g, g.path
	parts := splitPath(rel)
	for i, name := range parts {
		var err error
		if n, err = cur.child(name, hops); err != nil {
			return node{}, "", err
		}
		p = childPath(cur.path, name)
		if i == len(parts)-1 {
			break
		}
		if cur, err = g.file.group(p, n); err != nil {
			return node{}, "", err
		}
	}
	return n, p, nil
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func childPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}
