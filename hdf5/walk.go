package hdf5

import (
	"errors"
)

// ErrStopWalk ends Walk or WalkAttrs early without an error.
var ErrStopWalk = errors.New("stop walk")

// WalkFunc is called by Walk with the path of each group and dataset and
// the opened *Group or *Dataset. If a member cannot be opened, obj is nil
// and err says why; returning err aborts the walk.
type WalkFunc func(path string, obj any, err error) error

// Walk visits g and the groups and datasets below it in member order,
// each group before its members. Committed datatypes are not visited, nor
// are links back to a group being walked.
func Walk(g *Group, fn WalkFunc) error {
	if err := walkGroup(g, fn, map[uint64]bool{}); err != nil && !errors.Is(err, ErrStopWalk) {
		return err
	}
	return nil
}

func walkGroup(g *Group, fn WalkFunc, active map[uint64]bool) error {
	if err := fn(g.path, g, nil); err != nil {
		return err
	}
	active[g.addr] = true
	defer delete(active, g.addr)
	for _, l := range g.links {
		p := childPath(g.path, l.Name)
		n, err := g.child(l.Name, 0)
		if err == nil {
			switch n.kind {
			case KindGroup:
				if active[n.addr] {
					continue
				}
				var sub *Group
				if sub, err = g.file.group(p, n); err == nil {
					if err := walkGroup(sub, fn, active); err != nil {
						return err
					}
					continue
				}
			case KindDataset:
				var ds *Dataset
				if ds, err = g.file.dataset(p, n); err == nil {
					if err := fn(p, ds, nil); err != nil {
						return err
					}
					continue
				}
			default:
				continue
			}
		}
		if err := fn(p, nil, err); err != nil {
			return err
		}
	}
	return nil
}

// AttrInfo describes one attribute visited by WalkAttrs.
type AttrInfo struct {
	Path       string // object path and name joined by '@'
	ObjectPath string
	ObjectKind Kind
	Name       string
	Attr       *Attribute
	Value      any // nil if Err is set
	Err        error
}

// WalkAttrs reads every attribute of every group and dataset in the file
// and passes it to fn. Returning ErrStopWalk from fn ends the walk.
func (f *File) WalkAttrs(fn func(AttrInfo) error) error {
	if f.closed {
		return ErrClosed
	}
	return Walk(f.root, func(p string, obj any, err error) error {
		var (
			kind  Kind
			names []string
			attr  func(string) *Attribute
		)
		switch o := obj.(type) {
		case *Group:
			kind, names, attr = KindGroup, o.Attrs(), o.Attr
		case *Dataset:
			kind, names, attr = KindDataset, o.Attrs(), o.Attr
		default:
			return nil
		}
		for _, name := range names {
			info := AttrInfo{Path: JoinAttrPath(p, name), ObjectPath: p, ObjectKind: kind, Name: name, Attr: attr(name)}
			info.Value, info.Err = info.Attr.Value()
			if err := fn(info); err != nil {
				return err
			}
		}
		return nil
	})
}
