package dh5

import (
	"fmt"

	"github.com/cog-neurophys-lab/dh5io/hdf5"
)

// EventTriggersName is the root dataset holding event triggers.
const EventTriggersName = "EV02"

var eventFields = []string{"time", "event"}

// EventTrigger is one event code with its time in nanoseconds.
type EventTrigger struct {
	Time  int64 `h5:"time"`
	Event int32 `h5:"event"`
}

// EventTriggers reads EV02. It reports false when the file has none.
func (f *File) EventTriggers() ([]EventTrigger, bool, error) {
	ds, err := f.Root().OpenDataset(EventTriggersName)
	if isNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("opening %s: %w", EventTriggersName, err)
	}
	var events []EventTrigger
	if err := ds.Read(&events); err != nil {
		return nil, true, fmt.Errorf("reading %s: %w", EventTriggersName, err)
	}
	return events, true, nil
}

// AddEventTriggers writes EV02 from parallel slices of times and codes.
func (f *File) AddEventTriggers(timestampsNs []int64, codes []int32) error {
	if err := f.writable(); err != nil {
		return err
	}
	if len(timestampsNs) != len(codes) {
		return fmt.Errorf("%d timestamps for %d event codes", len(timestampsNs), len(codes))
	}
	if f.Root().HasMember(EventTriggersName) {
		return existsErr(EventTriggersName)
	}

	events := make([]EventTrigger, len(codes))
	for i := range codes {
		events[i] = EventTrigger{Time: timestampsNs[i], Event: codes[i]}
	}
	if _, err := f.Root().CreateDataset(EventTriggersName, events); err != nil {
		return fmt.Errorf("creating %s: %w", EventTriggersName, err)
	}
	f.opts.logger.Debug().Int("events", len(events)).Msg("wrote EV02")
	return nil
}

// ValidateEventTriggers checks the EV02 dataset. Missing event triggers are
// a notice; wrong compound fields are an error.
func ValidateEventTriggers(f *File, opts ...Option) (*Report, error) {
	v := newValidator(f.opts, opts)
	return v.report, v.eventTriggers(f)
}

func (v *validator) eventTriggers(f *File) error {
	kind, ok := f.memberKind(EventTriggersName)
	if !ok {
		v.notice("/", "EV02 dataset not found")
		return nil
	}
	if kind != hdf5.KindDataset {
		return v.invalid("/"+EventTriggersName, "EV02 is a %s, not a dataset", kind)
	}
	ds, err := f.Root().OpenDataset(EventTriggersName)
	if err != nil {
		return v.invalid("/"+EventTriggersName, "cannot open EV02: %v", err)
	}
	if !fieldsEqual(ds.CompoundFields(), eventFields...) {
		return v.invalid(ds.Path(), "EV02 must be a compound dataset with fields %v, got %v", eventFields, ds.CompoundFields())
	}
	return nil
}
