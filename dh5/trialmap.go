package dh5

import (
	"fmt"

	"github.com/cog-neurophys-lab/dh5io/hdf5"
)

// TrialmapName is the root dataset holding the trial map.
const TrialmapName = "TRIALMAP"

var trialmapFields = []string{"TrialNo", "StimNo", "Outcome", "StartTime", "EndTime"}

// TrialmapEntry is one trial of the trial map. Times are in nanoseconds.
type TrialmapEntry struct {
	TrialNo   int32 `h5:"TrialNo"`
	StimNo    int32 `h5:"StimNo"`
	Outcome   int32 `h5:"Outcome"`
	StartTime int64 `h5:"StartTime"`
	EndTime   int64 `h5:"EndTime"`
}

// Duration returns EndTime - StartTime.
func (e TrialmapEntry) Duration() int64 {
	return e.EndTime - e.StartTime
}

// Trialmap reads the trial map. It reports false when the file has none.
func (f *File) Trialmap() ([]TrialmapEntry, bool, error) {
	ds, err := f.Root().OpenDataset(TrialmapName)
	if isNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("opening %s: %w", TrialmapName, err)
	}
	if !fieldsEqual(ds.CompoundFields(), trialmapFields...) {
		return nil, true, fmt.Errorf("%s has fields %v, want %v: %w", TrialmapName, ds.CompoundFields(), trialmapFields, ErrInvalid)
	}
	var entries []TrialmapEntry
	if err := ds.Read(&entries); err != nil {
		return nil, true, fmt.Errorf("reading %s: %w", TrialmapName, err)
	}
	return entries, true, nil
}

// AddTrialmap writes the trial map. An existing trial map is replaced when
// replace is set; otherwise it is an error wrapping fs.ErrExist.
func (f *File) AddTrialmap(entries []TrialmapEntry, replace bool) error {
	if err := f.writable(); err != nil {
		return err
	}
	root := f.Root()
	exists := root.HasMember(TrialmapName)
	if exists && !replace {
		return existsErr(TrialmapName)
	}
	if entries == nil {
		entries = []TrialmapEntry{}
	}
	if !exists {
		if _, err := root.CreateDataset(TrialmapName, entries); err != nil {
			return fmt.Errorf("creating %s: %w", TrialmapName, err)
		}
	} else {
		// The old map stays until its replacement is written.
		tmp := TrialmapName + ".new"
		if root.HasMember(tmp) {
			if err := root.Unlink(tmp); err != nil {
				return fmt.Errorf("removing %s: %w", tmp, err)
			}
		}
		if _, err := root.CreateDataset(tmp, entries); err != nil {
			return fmt.Errorf("creating %s: %w", TrialmapName, err)
		}
		if err := root.Unlink(TrialmapName); err != nil {
			return rollback(root, tmp, fmt.Errorf("removing %s: %w", TrialmapName, err))
		}
		if err := root.Move(tmp, TrialmapName); err != nil {
			return fmt.Errorf("renaming %s: %w", tmp, err)
		}
	}
	f.opts.logger.Debug().Int("trials", len(entries)).Bool("replaced", replace).Msg("wrote TRIALMAP")
	return nil
}

// ValidateTrialmap checks the TRIALMAP dataset. A missing trial map is a
// notice; wrong compound fields are an error.
func ValidateTrialmap(f *File, opts ...Option) (*Report, error) {
	v := newValidator(f.opts, opts)
	return v.report, v.trialmap(f)
}

func (v *validator) trialmap(f *File) error {
	kind, ok := f.memberKind(TrialmapName)
	if !ok {
		v.notice("/", "TRIALMAP dataset not found")
		return nil
	}
	if kind != hdf5.KindDataset {
		return v.invalid("/"+TrialmapName, "TRIALMAP is a %s, not a dataset", kind)
	}
	ds, err := f.Root().OpenDataset(TrialmapName)
	if err != nil {
		return v.invalid("/"+TrialmapName, "cannot open TRIALMAP: %v", err)
	}
	if !fieldsEqual(ds.CompoundFields(), trialmapFields...) {
		return v.invalid(ds.Path(), "TRIALMAP must be a compound dataset with fields %v, got %v", trialmapFields, ds.CompoundFields())
	}
	return nil
}
