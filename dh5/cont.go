package dh5

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/cog-neurophys-lab/dh5io/hdf5"
	"github.com/cog-neurophys-lab/dh5io/internal/message"
)

// ContPrefix is the name prefix of continuous signal groups.
const ContPrefix = "CONT"

const (
	dataName         = "DATA"
	indexName        = "INDEX"
	samplePeriodAttr = "SamplePeriod"
	calibrationAttr  = "Calibration"
	channelsAttr     = "Channels"
	nameAttr         = "Name"
	signalTypeAttr   = "SignalType"
)

// ContIndexItem marks the start of a recording region in a CONT group: the
// DATA row Offset was sampled at Time nanoseconds.
type ContIndexItem struct {
	Time   int64 `h5:"time"`
	Offset int64 `h5:"offset"`
}

// ChannelInfo describes one recording channel of a CONT or SPIKE group.
type ChannelInfo struct {
	GlobalChanNumber int16   `h5:"GlobalChanNumber"`
	BoardChanNo      int16   `h5:"BoardChanNo"`
	ADCBitWidth      int16   `h5:"ADCBitWidth"`
	MaxVoltageRange  float32 `h5:"MaxVoltageRange"`
	MinVoltageRange  float32 `h5:"MinVoltageRange"`
	AmplifChan0      float32 `h5:"AmplifChan0"`
}

var (
	indexFields   = []string{"time", "offset"}
	channelFields = []string{"GlobalChanNumber", "BoardChanNo", "ADCBitWidth", "MaxVoltageRange", "MinVoltageRange", "AmplifChan0"}
)

// SignalType classifies the content of a CONT group.
type SignalType string

const (
	SignalLFP SignalType = "LFP"
	SignalMUA SignalType = "MUA"
	SignalESA SignalType = "ESA"
)

// Region is a stretch of consecutive DATA rows [Start, End) recorded without
// interruption, starting at Time nanoseconds.
type Region struct {
	Start int
	End   int
	Time  int64
}

// ContGroupName returns the group name of CONT id.
func ContGroupName(id int) string {
	return ContPrefix + strconv.Itoa(id)
}

// ContGroup is a CONT<id> group holding a block of continuous signals.
type ContGroup struct {
	id int
	g  *hdf5.Group
}

// ContGroupIDs returns the ids of all CONT groups in ascending order.
func (f *File) ContGroupIDs() ([]int, error) {
	return groupIDs(f.Root(), ContPrefix)
}

// ContGroupNames returns the names of all CONT groups ordered by id.
func (f *File) ContGroupNames() ([]string, error) {
	ids, err := f.ContGroupIDs()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = ContGroupName(id)
	}
	return names, nil
}

// ContGroups opens all CONT groups ordered by id.
func (f *File) ContGroups() ([]*ContGroup, error) {
	ids, err := f.ContGroupIDs()
	if err != nil {
		return nil, err
	}
	groups := make([]*ContGroup, 0, len(ids))
	for _, id := range ids {
		c, err := f.ContGroup(id)
		if err != nil {
			return nil, err
		}
		groups = append(groups, c)
	}
	return groups, nil
}

// ContGroup opens CONT<id>. A missing group yields an error wrapping
// hdf5.ErrNotFound.
func (f *File) ContGroup(id int) (*ContGroup, error) {
	g, err := f.Root().OpenGroup(ContGroupName(id))
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", ContGroupName(id), err)
	}
	return &ContGroup{id: id, g: g}, nil
}

// ID returns the CONT id.
func (c *ContGroup) ID() int { return c.id }

// Group returns the underlying HDF5 group.
func (c *ContGroup) Group() *hdf5.Group { return c.g }

// Path returns the group path.
func (c *ContGroup) Path() string { return c.g.Path() }

// Name returns the optional Name attribute.
func (c *ContGroup) Name() string {
	name, _, _ := stringAttr(c.g, nameAttr)
	return name
}

// SignalType returns the optional SignalType attribute.
func (c *ContGroup) SignalType() SignalType {
	t, _, _ := stringAttr(c.g, signalTypeAttr)
	return SignalType(t)
}

// SamplePeriod returns the sampling period in nanoseconds.
func (c *ContGroup) SamplePeriod() (int64, error) {
	return samplePeriod(c.g)
}

func samplePeriod(g *hdf5.Group) (int64, error) {
	v, ok, err := intAttr(g, samplePeriodAttr)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%s: %s attribute missing: %w", g.Path(), samplePeriodAttr, hdf5.ErrNotFound)
	}
	return v, nil
}

// SamplingRate returns the sampling rate in Hz.
func (c *ContGroup) SamplingRate() (float64, error) {
	period, err := c.SamplePeriod()
	if err != nil {
		return 0, err
	}
	if period <= 0 {
		return 0, fmt.Errorf("%s: non-positive sample period %d", c.Path(), period)
	}
	return 1e9 / float64(period), nil
}

// Calibration returns the per-channel calibration factors. A scalar
// attribute applies to every channel; a missing attribute yields 1.
func (c *ContGroup) Calibration() ([]float64, error) {
	_, nChannels, err := c.Size()
	if err != nil {
		return nil, err
	}
	return calibration(c.g, nChannels)
}

func calibration(g *hdf5.Group, nChannels int) ([]float64, error) {
	values, ok, err := floatsAttr(g, calibrationAttr)
	if err != nil {
		return nil, err
	}
	out := make([]float64, nChannels)
	switch {
	case !ok || len(values) == 0:
		for i := range out {
			out[i] = 1
		}
	case len(values) == 1:
		for i := range out {
			out[i] = values[0]
		}
	case len(values) == nChannels:
		copy(out, values)
	default:
		return nil, fmt.Errorf("%s: %d calibration values for %d channels", g.Path(), len(values), nChannels)
	}
	return out, nil
}

// Channels returns the Channels attribute, or nil when it is absent.
func (c *ContGroup) Channels() ([]ChannelInfo, error) {
	return channels(c.g)
}

func channels(g *hdf5.Group) ([]ChannelInfo, error) {
	attr := g.Attr(channelsAttr)
	if attr == nil {
		return nil, nil
	}
	var out []ChannelInfo
	if err := attr.Read(&out); err != nil {
		return nil, fmt.Errorf("reading %s of %s: %w", channelsAttr, g.Path(), err)
	}
	return out, nil
}

func (c *ContGroup) data() (*hdf5.Dataset, error) {
	ds, err := c.g.OpenDataset(dataName)
	if err != nil {
		return nil, fmt.Errorf("opening %s/%s: %w", c.Path(), dataName, err)
	}
	return ds, nil
}

// Size returns the number of samples and channels of DATA.
func (c *ContGroup) Size() (nSamples, nChannels int, err error) {
	ds, err := c.data()
	if err != nil {
		return 0, 0, err
	}
	shape := ds.Shape()
	if len(shape) != 2 {
		return 0, 0, fmt.Errorf("%s/%s has rank %d, want 2: %w", c.Path(), dataName, len(shape), ErrInvalid)
	}
	return int(shape[0]), int(shape[1]), nil
}

// Data reads all of DATA, one row per sample.
func (c *ContGroup) Data() ([][]int16, error) {
	n, _, err := c.Size()
	if err != nil {
		return nil, err
	}
	return c.DataSlice(0, n)
}

// DataSlice reads count samples starting at sample start.
func (c *ContGroup) DataSlice(start, count int) ([][]int16, error) {
	ds, err := c.data()
	if err != nil {
		return nil, err
	}
	nSamples, nChannels, err := c.Size()
	if err != nil {
		return nil, err
	}
	if start < 0 || count < 0 || start+count > nSamples {
		return nil, fmt.Errorf("%s: samples [%d, %d) out of range [0, %d)", c.Path(), start, start+count, nSamples)
	}

	var flat []int16
	if count > 0 {
		err = ds.ReadSlice([]uint64{uint64(start), 0}, []uint64{uint64(count), uint64(nChannels)}, &flat)
		if err != nil {
			return nil, fmt.Errorf("reading %s/%s: %w", c.Path(), dataName, err)
		}
	}
	return rows(flat, count, nChannels), nil
}

// CalibratedData returns DATA multiplied by the calibration of each channel.
func (c *ContGroup) CalibratedData() ([][]float64, error) {
	raw, err := c.Data()
	if err != nil {
		return nil, err
	}
	cal, err := c.Calibration()
	if err != nil {
		return nil, err
	}
	out, err := applyGain(raw, cal, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.Path(), err)
	}
	return out, nil
}

// Index reads the INDEX records.
func (c *ContGroup) Index() ([]ContIndexItem, error) {
	ds, err := c.g.OpenDataset(indexName)
	if err != nil {
		return nil, fmt.Errorf("opening %s/%s: %w", c.Path(), indexName, err)
	}
	var items []ContIndexItem
	if err := ds.Read(&items); err != nil {
		return nil, fmt.Errorf("reading %s/%s: %w", c.Path(), indexName, err)
	}
	return items, nil
}

// Regions returns the recording regions described by INDEX, in DATA order.
func (c *ContGroup) Regions() ([]Region, error) {
	index, err := c.Index()
	if err != nil {
		return nil, err
	}
	nSamples, _, err := c.Size()
	if err != nil {
		return nil, err
	}

	regions := make([]Region, len(index))
	for i, item := range index {
		end := int64(nSamples)
		if i+1 < len(index) {
			end = index[i+1].Offset
		}
		if item.Offset < 0 || item.Offset > end || end > int64(nSamples) {
			return nil, fmt.Errorf("%s/%s record %d: offset %d outside [0, %d]: %w",
				c.Path(), indexName, i, item.Offset, end, ErrInvalid)
		}
		regions[i] = Region{Start: int(item.Offset), End: int(end), Time: item.Time}
	}
	return regions, nil
}

// SampleTime returns the time in nanoseconds at which DATA row i was
// sampled.
func (c *ContGroup) SampleTime(i int) (int64, error) {
	regions, err := c.Regions()
	if err != nil {
		return 0, err
	}
	period, err := c.SamplePeriod()
	if err != nil {
		return 0, err
	}
	for _, r := range regions {
		if i >= r.Start && i < r.End {
			return r.Time + int64(i-r.Start)*period, nil
		}
	}
	return 0, fmt.Errorf("%s: sample %d is not covered by %s", c.Path(), i, indexName)
}

// ContGroupSpec describes a CONT group to create.
type ContGroupSpec struct {
	Samples      int
	Channels     int
	IndexItems   int
	SamplePeriod int32     // nanoseconds
	Calibration  []float64 // one value, or one per channel
	ChannelInfo  []ChannelInfo
	Name         string
	SignalType   SignalType
}

// CreateEmptyContGroup creates CONT<id> with zero-filled DATA of the given
// size and IndexItems zero INDEX records. DATA is contiguous even when
// WithChunkRows is set.
func (f *File) CreateEmptyContGroup(id int, spec ContGroupSpec) (*ContGroup, error) {
	if spec.Samples < 0 || spec.Channels <= 0 || spec.IndexItems < 0 {
		return nil, fmt.Errorf("invalid CONT size %d x %d with %d index items", spec.Samples, spec.Channels, spec.IndexItems)
	}

	g, err := f.newContGroup(id, spec)
	if err != nil {
		return nil, err
	}

	dt := message.NewFixedPointDatatype(2, true, message.OrderLE)
	if _, err := g.CreateDatasetWithType(dataName, []uint64{uint64(spec.Samples), uint64(spec.Channels)}, dt); err != nil {
		return nil, rollback(f.Root(), ContGroupName(id), fmt.Errorf("creating %s/%s: %w", g.Path(), dataName, err))
	}
	if _, err := g.CreateDataset(indexName, make([]ContIndexItem, spec.IndexItems)); err != nil {
		return nil, rollback(f.Root(), ContGroupName(id), fmt.Errorf("creating %s/%s: %w", g.Path(), indexName, err))
	}

	f.opts.logger.Debug().Str("group", g.Path()).Int("samples", spec.Samples).Int("channels", spec.Channels).Msg("created CONT group")
	return &ContGroup{id: id, g: g}, nil
}

// CreateContGroup creates CONT<id> from signal rows and INDEX records.
// It fails with an error wrapping fs.ErrExist if the group exists.
func (f *File) CreateContGroup(id int, data [][]int16, index []ContIndexItem, samplePeriod int32, calibration []float64, channels []ChannelInfo) (*ContGroup, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("CONT data must have at least one sample")
	}
	nChannels := len(data[0])
	for i, row := range data {
		if len(row) != nChannels {
			return nil, fmt.Errorf("CONT data row %d has %d channels, want %d", i, len(row), nChannels)
		}
	}

	spec := ContGroupSpec{
		Samples:      len(data),
		Channels:     nChannels,
		IndexItems:   len(index),
		SamplePeriod: samplePeriod,
		Calibration:  calibration,
		ChannelInfo:  channels,
	}
	g, err := f.newContGroup(id, spec)
	if err != nil {
		return nil, err
	}

	if _, err := g.CreateDataset(dataName, data, f.opts.dataOptions(nChannels)...); err != nil {
		return nil, rollback(f.Root(), ContGroupName(id), fmt.Errorf("creating %s/%s: %w", g.Path(), dataName, err))
	}
	if _, err := g.CreateDataset(indexName, index); err != nil {
		return nil, rollback(f.Root(), ContGroupName(id), fmt.Errorf("creating %s/%s: %w", g.Path(), indexName, err))
	}

	f.opts.logger.Debug().Str("group", g.Path()).Int("samples", len(data)).Int("channels", nChannels).Msg("created CONT group")
	return &ContGroup{id: id, g: g}, nil
}

// newContGroup creates the CONT<id> group and its attributes.
func (f *File) newContGroup(id int, spec ContGroupSpec) (*hdf5.Group, error) {
	if err := f.writable(); err != nil {
		return nil, err
	}
	if id < 0 {
		return nil, fmt.Errorf("CONT id must be non-negative, got %d", id)
	}
	name := ContGroupName(id)
	if f.Root().HasMember(name) {
		return nil, existsErr(name)
	}
	if len(spec.Calibration) != 0 && len(spec.Calibration) != 1 && len(spec.Calibration) != spec.Channels {
		return nil, fmt.Errorf("%d calibration values for %d channels", len(spec.Calibration), spec.Channels)
	}
	if len(spec.ChannelInfo) != 0 && len(spec.ChannelInfo) != spec.Channels {
		return nil, fmt.Errorf("%d channel records for %d channels", len(spec.ChannelInfo), spec.Channels)
	}

	if err := f.ensureContIndexType(); err != nil {
		return nil, err
	}

	g, err := f.Root().CreateGroup(name)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", name, err)
	}

	if err := setContAttrs(g, spec); err != nil {
		return nil, rollback(f.Root(), name, err)
	}
	return g, nil
}

// setContAttrs writes the CONT group attributes given in spec.
func setContAttrs(g *hdf5.Group, spec ContGroupSpec) error {
	if err := g.SetAttr(samplePeriodAttr, spec.SamplePeriod); err != nil {
		return err
	}
	if len(spec.Calibration) > 0 {
		if err := g.SetAttr(calibrationAttr, spec.Calibration); err != nil {
			return err
		}
	}
	if len(spec.ChannelInfo) > 0 {
		if err := g.SetAttr(channelsAttr, spec.ChannelInfo); err != nil {
			return err
		}
	}
	if spec.Name != "" {
		if err := g.SetAttr(nameAttr, spec.Name); err != nil {
			return err
		}
	}
	if spec.SignalType != "" {
		if err := g.SetAttr(signalTypeAttr, string(spec.SignalType)); err != nil {
			return err
		}
	}
	return nil
}

// ensureContIndexType commits CONT_INDEX_ITEM at the root if it is missing.
func (f *File) ensureContIndexType() error {
	if f.Root().HasMember(ContIndexItemName) {
		return nil
	}
	if _, err := f.Root().CommitDatatype(ContIndexItemName, ContIndexItem{}); err != nil {
		return fmt.Errorf("committing %s: %w", ContIndexItemName, err)
	}
	return nil
}

// WriteContData writes rows into DATA of CONT<id> starting at sample
// firstSample.
func (f *File) WriteContData(id int, firstSample int, data [][]int16) error {
	if err := f.writable(); err != nil {
		return err
	}
	c, err := f.ContGroup(id)
	if err != nil {
		return err
	}
	nSamples, nChannels, err := c.Size()
	if err != nil {
		return err
	}
	if firstSample < 0 || firstSample+len(data) > nSamples {
		return fmt.Errorf("%s: rows [%d, %d) out of range [0, %d)", c.Path(), firstSample, firstSample+len(data), nSamples)
	}
	for i, row := range data {
		if len(row) != nChannels {
			return fmt.Errorf("%s: row %d has %d channels, want %d", c.Path(), i, len(row), nChannels)
		}
	}

	ds, err := c.data()
	if err != nil {
		return err
	}
	return ds.WriteAt(uint64(firstSample)*uint64(nChannels), data)
}

// WriteContIndex replaces the INDEX records of CONT<id>. The number of
// records must match the existing dataset.
func (f *File) WriteContIndex(id int, index []ContIndexItem) error {
	if err := f.writable(); err != nil {
		return err
	}
	c, err := f.ContGroup(id)
	if err != nil {
		return err
	}
	ds, err := c.g.OpenDataset(indexName)
	if err != nil {
		return fmt.Errorf("opening %s/%s: %w", c.Path(), indexName, err)
	}
	if n := ds.NumElements(); uint64(len(index)) != n {
		return fmt.Errorf("%s/%s holds %d records, got %d", c.Path(), indexName, n, len(index))
	}
	return ds.Write(index)
}

// rows reshapes a row-major buffer into n rows of width columns.
func rows(flat []int16, n, width int) [][]int16 {
	out := make([][]int16, n)
	for i := range out {
		out[i] = flat[i*width : (i+1)*width : (i+1)*width]
	}
	return out
}

// applyGain multiplies each column of raw by its gain. When channels is
// non-nil, column j holds channel channels[j]; otherwise rows hold every
// channel.
func applyGain(raw [][]int16, gain []float64, channels []int) ([][]float64, error) {
	width := len(gain)
	if channels != nil {
		width = len(channels)
		for _, ch := range channels {
			if ch < 0 || ch >= len(gain) {
				return nil, fmt.Errorf("channel %d out of range [0, %d)", ch, len(gain))
			}
		}
	}
	out := make([][]float64, len(raw))
	for i, row := range raw {
		if len(row) != width {
			return nil, fmt.Errorf("row %d has %d values, want %d", i, len(row), width)
		}
		scaled := make([]float64, len(row))
		for j, v := range row {
			ch := j
			if channels != nil {
				ch = channels[j]
			}
			scaled[j] = float64(v) * gain[ch]
		}
		out[i] = scaled
	}
	return out, nil
}

// isNotFound reports whether err denotes a missing object.
func isNotFound(err error) bool {
	return errors.Is(err, hdf5.ErrNotFound)
}
