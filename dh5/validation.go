package dh5

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cog-neurophys-lab/dh5io/hdf5"
)

// Severity grades a validation finding that is not an error.
type Severity int

const (
	// Notice marks an optional part of the schema that is absent.
	Notice Severity = iota
	// Warning marks a deviation that readers can tolerate.
	Warning
)

func (s Severity) String() string {
	switch s {
	case Notice:
		return "notice"
	case Warning:
		return "warning"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// MarshalText encodes the severity by name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a severity name.
func (s *Severity) UnmarshalText(text []byte) error {
	switch string(text) {
	case "notice":
		*s = Notice
	case "warning":
		*s = Warning
	default:
		return fmt.Errorf("unknown severity %q", text)
	}
	return nil
}

// Finding is a non-fatal validation result.
type Finding struct {
	Severity Severity `json:"severity" yaml:"severity"`
	Path     string   `json:"path" yaml:"path"`
	Message  string   `json:"message" yaml:"message"`
}

func (f Finding) String() string {
	return fmt.Sprintf("%s: %s: %s", f.Severity, f.Path, f.Message)
}

// Report collects the findings of a validation run.
type Report struct {
	Findings []Finding `json:"findings" yaml:"findings"`
}

// Warnings returns the findings of Warning severity.
func (r *Report) Warnings() []Finding {
	return r.filter(Warning)
}

// Notices returns the findings of Notice severity.
func (r *Report) Notices() []Finding {
	return r.filter(Notice)
}

func (r *Report) filter(s Severity) []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Severity == s {
			out = append(out, f)
		}
	}
	return out
}

type validator struct {
	logger zerolog.Logger
	strict bool
	report *Report
}

// newValidator merges per-call options over the file's options.
func newValidator(base *options, opts []Option) *validator {
	o := *base
	for _, opt := range opts {
		opt(&o)
	}
	return &validator{logger: o.logger, strict: o.strict, report: &Report{}}
}

func (v *validator) add(s Severity, path, format string, args ...interface{}) Finding {
	f := Finding{Severity: s, Path: path, Message: fmt.Sprintf(format, args...)}
	v.report.Findings = append(v.report.Findings, f)
	return f
}

// warn records a warning. In strict mode it returns an error wrapping
// ErrWarning.
func (v *validator) warn(path, format string, args ...interface{}) error {
	f := v.add(Warning, path, format, args...)
	v.logger.Warn().Str("path", path).Msg(f.Message)
	if v.strict {
		return fmt.Errorf("%s: %s: %w", path, f.Message, ErrWarning)
	}
	return nil
}

func (v *validator) notice(path, format string, args ...interface{}) {
	f := v.add(Notice, path, format, args...)
	v.logger.Info().Str("path", path).Msg(f.Message)
}

// invalid returns an error wrapping ErrInvalid.
func (v *validator) invalid(path, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	v.logger.Error().Str("path", path).Msg(msg)
	return fmt.Errorf("%s: %s: %w", path, msg, ErrInvalid)
}

// Validate checks that f follows the DH5 schema. Schema violations are
// returned as errors wrapping ErrInvalid; tolerable deviations are collected
// in the report.
func Validate(f *File, opts ...Option) (*Report, error) {
	v := newValidator(f.opts, opts)
	return v.report, v.file(f)
}

// ValidatePath opens path read-only and validates it.
func ValidatePath(path string, opts ...Option) (*Report, error) {
	f, err := Open(path, opts...)
	if err != nil {
		return &Report{}, fmt.Errorf("%s: %v: %w", path, err, ErrInvalid)
	}
	defer f.Close()
	return Validate(f)
}

func (v *validator) file(f *File) error {
	if _, ok := f.Version(); !ok {
		return v.invalid("/", "FILEVERSION attribute is missing")
	}
	if err := v.contDatatype(f); err != nil {
		return err
	}

	conts, err := groupIDs(f.Root(), ContPrefix)
	if err != nil {
		return v.invalid("/", "cannot list CONT groups: %v", err)
	}
	for _, id := range conts {
		g, err := f.Root().OpenGroup(ContGroupName(id))
		if err != nil {
			return v.invalid("/"+ContGroupName(id), "cannot open group: %v", err)
		}
		if err := v.contGroup(g); err != nil {
			return err
		}
	}

	spikes, err := groupIDs(f.Root(), SpikePrefix)
	if err != nil {
		return v.invalid("/", "cannot list SPIKE groups: %v", err)
	}
	for _, id := range spikes {
		g, err := f.Root().OpenGroup(SpikeGroupName(id))
		if err != nil {
			return v.invalid("/"+SpikeGroupName(id), "cannot open group: %v", err)
		}
		if err := v.spikeGroup(g); err != nil {
			return err
		}
	}

	if err := v.eventTriggers(f); err != nil {
		return err
	}
	if err := v.trialmap(f); err != nil {
		return err
	}
	return v.operations(f)
}

// ValidateContDatatype checks the committed CONT_INDEX_ITEM datatype, which
// is required once the file has CONT groups.
func ValidateContDatatype(f *File, opts ...Option) (*Report, error) {
	v := newValidator(f.opts, opts)
	return v.report, v.contDatatype(f)
}

func (v *validator) contDatatype(f *File) error {
	ids, err := f.ContGroupIDs()
	if err != nil {
		return v.invalid("/", "cannot list CONT groups: %v", err)
	}
	if len(ids) == 0 {
		return nil
	}
	dt, err := f.Root().OpenDatatype(ContIndexItemName)
	if err != nil {
		return v.invalid("/"+ContIndexItemName, "named datatype %s is missing: %v", ContIndexItemName, err)
	}
	if !fieldsEqual(dt.CompoundFields(), indexFields...) {
		return v.invalid(dt.Path(), "%s must be a compound with fields %v, got %v", ContIndexItemName, indexFields, dt.CompoundFields())
	}
	return nil
}

// ValidateContGroup checks the attributes and datasets of a CONT group.
func ValidateContGroup(g *hdf5.Group, opts ...Option) (*Report, error) {
	v := newValidator(defaultOptions(), opts)
	return v.report, v.contGroup(g)
}

func (v *validator) contGroup(g *hdf5.Group) error {
	p := g.Path()
	if !g.HasAttr(calibrationAttr) {
		if err := v.warn(p, "Calibration attribute is missing from CONT group %s", p); err != nil {
			return err
		}
	}
	if !g.HasAttr(samplePeriodAttr) {
		return v.invalid(p, "SamplePeriod attribute is missing from CONT group %s", p)
	}

	data, err := v.dataset(g, dataName)
	if err != nil {
		return err
	}
	if data.Rank() != 2 {
		return v.invalid(data.Path(), "DATA has shape %v, must be 2D", data.Shape())
	}

	index, err := v.dataset(g, indexName)
	if err != nil {
		return err
	}
	if !fieldsEqual(index.CompoundFields(), indexFields...) {
		return v.invalid(index.Path(), "INDEX is not a compound with fields %v, got %v", indexFields, index.CompoundFields())
	}

	return v.channels(g)
}

// channels checks the optional Channels attribute.
func (v *validator) channels(g *hdf5.Group) error {
	p := g.Path()
	attr := g.Attr(channelsAttr)
	if attr == nil {
		return v.warn(p, "Channels attribute is missing from group %s", p)
	}
	if !fieldsEqual(attr.CompoundFields(), channelFields...) {
		return v.invalid(p, "Channels attribute has fields %v, must have %v", attr.CompoundFields(), channelFields)
	}
	return nil
}

// dataset opens the named member of g, failing when it is missing or not a
// dataset.
func (v *validator) dataset(g *hdf5.Group, name string) (*hdf5.Dataset, error) {
	p := g.Path() + "/" + name
	kind, err := g.MemberKind(name)
	if err != nil {
		return nil, v.invalid(p, "%s dataset is missing from group %s", name, g.Path())
	}
	if kind != hdf5.KindDataset {
		return nil, v.invalid(p, "%s in %s is a %s, not a dataset", name, g.Path(), kind)
	}
	ds, err := g.OpenDataset(name)
	if err != nil {
		return nil, v.invalid(p, "cannot open %s: %v", name, err)
	}
	return ds, nil
}

// ValidateSpikeGroup checks the attributes and datasets of a SPIKE group.
func ValidateSpikeGroup(g *hdf5.Group, opts ...Option) (*Report, error) {
	v := newValidator(defaultOptions(), opts)
	return v.report, v.spikeGroup(g)
}

func (v *validator) spikeGroup(g *hdf5.Group) error {
	p := g.Path()
	if !g.HasAttr(samplePeriodAttr) {
		return v.invalid(p, "SamplePeriod attribute is missing from SPIKE group %s", p)
	}
	attr := g.Attr(spikeParamsAttr)
	if attr == nil {
		return v.invalid(p, "SpikeParams attribute is missing from SPIKE group %s", p)
	}
	if !fieldsEqual(attr.CompoundFields(), spikeParamFields...) {
		return v.invalid(p, "SpikeParams has fields %v, must have %v", attr.CompoundFields(), spikeParamFields)
	}
	var params SpikeParams
	if err := attr.Read(&params); err != nil {
		return v.invalid(p, "cannot read SpikeParams: %v", err)
	}

	data, err := v.dataset(g, dataName)
	if err != nil {
		return err
	}
	if data.Rank() != 2 {
		return v.invalid(data.Path(), "DATA has shape %v, must be 2D", data.Shape())
	}
	index, err := v.dataset(g, indexName)
	if err != nil {
		return err
	}
	nSpikes := index.NumElements()
	if rows := data.Shape()[0]; rows != nSpikes*uint64(params.SpikeSamples) {
		return v.invalid(data.Path(), "DATA has %d rows, want %d spikes of %d samples", rows, nSpikes, params.SpikeSamples)
	}

	if g.HasMember(clusterInfoName) {
		ci, err := v.dataset(g, clusterInfoName)
		if err != nil {
			return err
		}
		if ci.NumElements() != nSpikes {
			return v.invalid(ci.Path(), "CLUSTER_INFO has %d entries for %d spikes", ci.NumElements(), nSpikes)
		}
	}

	if !g.HasAttr(calibrationAttr) {
		if err := v.warn(p, "Calibration attribute is missing from SPIKE group %s", p); err != nil {
			return err
		}
	}
	return v.channels(g)
}
