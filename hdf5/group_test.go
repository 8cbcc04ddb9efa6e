package hdf5

import (
	"errors"
	"slices"
	"testing"

	"github.com/cog-neurophys-lab/dh5io/internal/message"
)

type indexItem struct {
	Time   int64 `h5:"time"`
	Offset int64 `h5:"offset"`
}

type spikeParams struct {
	SpikeSamples int32 `h5:"spikeSamples"`
	PreTrigger   int32 `h5:"preTrigSamples"`
	LockOut      int32 `h5:"lockOutSamples"`
}

func TestCreateGroups(t *testing.T) {
	f, p := create(t, "groups.h5")
	root := f.Root()
	cont, err := root.CreateGroup("CONT1")
	if err != nil {
		t.Fatal(err)
	}
	if cont.Path() != "/CONT1" || cont.Name() != "CONT1" {
		t.Errorf("path %q, name %q", cont.Path(), cont.Name())
	}
	if _, err := cont.CreateGroup("sub"); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"SPIKE0", "CONT2"} {
		if _, err := root.CreateGroup(name); err != nil {
			t.Fatal(err)
		}
	}

	// a group opened before later changes sees them
	again, err := f.OpenGroup("CONT1")
	if err != nil || again != cont {
		t.Errorf("OpenGroup returned %p (%v), want %p", again, err, cont)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	r := reopen(t, p)
	members, _ := r.Root().Members()
	if want := []string{"CONT1", "SPIKE0", "CONT2"}; !slices.Equal(members, want) {
		t.Errorf("members = %v, want %v", members, want)
	}
	sub, err := r.OpenGroup("/CONT1/sub")
	if err != nil {
		t.Fatalf("OpenGroup: %v", err)
	}
	if sub.Path() != "/CONT1/sub" {
		t.Errorf("path = %q", sub.Path())
	}
	if _, err := r.OpenGroup("/CONT9"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing group: %v, want ErrNotFound", err)
	}
	if _, err := r.OpenDataset("/CONT1"); !errors.Is(err, ErrNotDataset) {
		t.Errorf("OpenDataset on a group: %v, want ErrNotDataset", err)
	}
}

func TestCreateGroupErrors(t *testing.T) {
	f, _ := create(t, "dup.h5")
	defer f.Close()
	if _, err := f.Root().CreateGroup("CONT1"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Root().CreateGroup("CONT1"); !errors.Is(err, ErrExists) {
		t.Errorf("duplicate: %v, want ErrExists", err)
	}
	for _, name := range []string{"", "a/b", "."} {
		if _, err := f.Root().CreateGroup(name); err == nil {
			t.Errorf("name %q accepted", name)
		}
	}
}

func TestGroupAttributes(t *testing.T) {
	f, p := create(t, "attrs.h5")
	g, err := f.Root().CreateGroup("SPIKE0")
	if err != nil {
		t.Fatal(err)
	}
	params := spikeParams{SpikeSamples: 32, PreTrigger: 8, LockOut: 24}
	set := map[string]any{
		"SamplePeriod": int32(1000),
		"Calibration":  []float64{0.5, 0.25},
		"Name":         "hippocampus",
		"Labels":       []string{"a", "bcd"},
		"SpikeParams":  params,
	}
	for _, name := range []string{"SamplePeriod", "Calibration", "Name", "Labels", "SpikeParams"} {
		if err := g.SetAttr(name, set[name]); err != nil {
			t.Fatalf("SetAttr(%s): %v", name, err)
		}
	}
	if err := g.SetAttr("SamplePeriod", int32(500)); err != nil {
		t.Fatal(err)
	}
	if err := g.SetAttr("Labels", nil); err == nil {
		t.Error("nil attribute accepted")
	}
	if err := g.DeleteAttr("Name"); err != nil {
		t.Fatal(err)
	}
	if err := g.DeleteAttr("Name"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteAttr = %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	r := reopen(t, p)
	g, err = r.OpenGroup("SPIKE0")
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"SamplePeriod", "Calibration", "Labels", "SpikeParams"}; !slices.Equal(g.Attrs(), want) {
		t.Errorf("attrs = %v, want %v", g.Attrs(), want)
	}
	if v, err := g.Attr("SamplePeriod").ReadScalarInt64(); err != nil || v != 500 {
		t.Errorf("SamplePeriod = %d, %v", v, err)
	}
	if v, err := g.Attr("Calibration").ReadFloat64(); err != nil || !slices.Equal(v, []float64{0.5, 0.25}) {
		t.Errorf("Calibration = %v, %v", v, err)
	}
	labels := g.Attr("Labels")
	if v, err := labels.Value(); err != nil || !slices.Equal(v.([]string), []string{"a", "bcd"}) {
		t.Errorf("Labels = %v, %v", v, err)
	}
	if labels.IsScalar() || !slices.Equal(labels.Shape(), []uint64{2}) {
		t.Errorf("Labels shape = %v", labels.Shape())
	}

	sp := g.Attr("SpikeParams")
	if !sp.IsScalar() || sp.DtypeClass() != message.ClassCompound {
		t.Errorf("SpikeParams scalar %v, class %v", sp.IsScalar(), sp.DtypeClass())
	}
	if want := []string{"spikeSamples", "preTrigSamples", "lockOutSamples"}; !slices.Equal(sp.CompoundFields(), want) {
		t.Errorf("fields = %v", sp.CompoundFields())
	}
	var got spikeParams
	if err := sp.Read(&got); err != nil || got != params {
		t.Errorf("SpikeParams = %+v, %v", got, err)
	}
	v, err := sp.Value()
	if err != nil {
		t.Fatal(err)
	}
	if m := v.(map[string]any); m["lockOutSamples"] != int32(24) {
		t.Errorf("Value = %v", m)
	}
}

func TestMove(t *testing.T) {
	f, p := create(t, "move.h5")
	root := f.Root()
	g, err := root.CreateGroup("CONT1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := g.CreateDataset("DATA", [][]int16{{7}}); err != nil {
		t.Fatal(err)
	}
	if _, err := root.CreateGroup("CONT2"); err != nil {
		t.Fatal(err)
	}
	if err := root.Move("CONT1", "CONT2"); !errors.Is(err, ErrExists) {
		t.Errorf("Move onto a member = %v, want ErrExists", err)
	}
	if err := root.Move("CONT9", "CONT3"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Move of a missing member = %v, want ErrNotFound", err)
	}
	if err := root.Move("CONT1", "CONT3"); err != nil {
		t.Fatal(err)
	}
	if root.HasMember("CONT1") {
		t.Error("CONT1 still present after Move")
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	r := reopen(t, p)
	var data [][]int16
	ds, err := r.OpenDataset("/CONT3/DATA")
	if err != nil {
		t.Fatal(err)
	}
	if err := ds.Read(&data); err != nil || data[0][0] != 7 {
		t.Errorf("moved DATA = %v, %v", data, err)
	}
}

func TestUnlink(t *testing.T) {
	f, p := create(t, "unlink.h5")
	root := f.Root()
	for _, name := range []string{"CONT1", "CONT2"} {
		g, err := root.CreateGroup(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := g.CreateDataset("DATA", [][]int16{{1}}); err != nil {
			t.Fatal(err)
		}
	}
	if err := root.Unlink("CONT1"); err != nil {
		t.Fatal(err)
	}
	if err := root.Unlink("CONT1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Unlink = %v, want ErrNotFound", err)
	}
	if _, err := root.OpenGroup("CONT1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unlinked group still opens: %v", err)
	}
	// the name can be reused
	if _, err := root.CreateGroup("CONT1"); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	r := reopen(t, p)
	if _, err := r.OpenDataset("/CONT1/DATA"); !errors.Is(err, ErrNotFound) {
		t.Errorf("OpenDataset = %v, want ErrNotFound", err)
	}
	if _, err := r.OpenDataset("/CONT2/DATA"); err != nil {
		t.Errorf("sibling lost: %v", err)
	}
}

func TestCommitDatatype(t *testing.T) {
	f, p := create(t, "types.h5")
	nt, err := f.Root().CommitDatatype("CONT_INDEX_ITEM", indexItem{})
	if err != nil {
		t.Fatal(err)
	}
	if nt.Path() != "/CONT_INDEX_ITEM" || nt.Size() != 16 {
		t.Errorf("path %q, size %d", nt.Path(), nt.Size())
	}
	if _, err := f.Root().CommitDatatype("CONT_INDEX_ITEM", indexItem{}); !errors.Is(err, ErrExists) {
		t.Errorf("duplicate commit = %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	r := reopen(t, p)
	if kind, err := r.Root().MemberKind("CONT_INDEX_ITEM"); err != nil || kind != KindDatatype {
		t.Errorf("kind = %v, %v", kind, err)
	}
	nt, err = r.Root().OpenDatatype("CONT_INDEX_ITEM")
	if err != nil {
		t.Fatal(err)
	}
	if nt.Class() != message.ClassCompound || !slices.Equal(nt.CompoundFields(), []string{"time", "offset"}) {
		t.Errorf("class %v, fields %v", nt.Class(), nt.CompoundFields())
	}
	if _, err := r.OpenGroup("CONT_INDEX_ITEM"); !errors.Is(err, ErrNotGroup) {
		t.Errorf("OpenGroup on a datatype = %v, want ErrNotGroup", err)
	}
}

func TestSoftLinks(t *testing.T) {
	f, p := create(t, "links.h5")
	root := f.Root()
	cont, err := root.CreateGroup("CONT1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cont.CreateDataset("DATA", []int16{7}); err != nil {
		t.Fatal(err)
	}
	for _, l := range []*message.Link{
		message.NewSoftLink("latest", "/CONT1"),
		message.NewSoftLink("data", "CONT1/DATA"),
		message.NewSoftLink("ping", "/pong"),
		message.NewSoftLink("pong", "/ping"),
		message.NewExternalLink("remote", "other.h5", "/CONT1"),
	} {
		if err := root.addLink(l); err != nil {
			t.Fatal(err)
		}
	}
	if err := cont.addLink(message.NewSoftLink("up", "/")); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	r := reopen(t, p)
	if ds, err := r.OpenDataset("/latest/DATA"); err != nil || ds.NumElements() != 1 {
		t.Errorf("through /latest: %v", err)
	}
	if ds, err := r.OpenDataset("data"); err != nil || ds.Path() != "/data" {
		t.Errorf("relative link: %v", err)
	}
	if _, err := r.Root().MemberKind("ping"); !errors.Is(err, ErrLinkDepth) {
		t.Errorf("cycle = %v, want ErrLinkDepth", err)
	}
	if _, err := r.OpenGroup("remote"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("external link = %v, want ErrUnsupported", err)
	}
}
