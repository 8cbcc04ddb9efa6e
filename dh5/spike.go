package dh5

import (
	"fmt"
	"strconv"

	"github.com/cog-neurophys-lab/dh5io/hdf5"
)

// SpikePrefix is the name prefix of spike groups.
const SpikePrefix = "SPIKE"

const (
	spikeParamsAttr = "SpikeParams"
	clusterInfoName = "CLUSTER_INFO"
)

var spikeParamFields = []string{"spikeSamples", "preTrigSamples", "lockOutSamples"}

// SpikeParams describes the waveform window stored per spike.
type SpikeParams struct {
	SpikeSamples   int16 `h5:"spikeSamples"`
	PreTrigSamples int16 `h5:"preTrigSamples"`
	LockOutSamples int16 `h5:"lockOutSamples"`
}

// SpikeGroupName returns the group name of SPIKE id.
func SpikeGroupName(id int) string {
	return SpikePrefix + strconv.Itoa(id)
}

// SpikeIDFromName parses the id of a SPIKE group name such as "SPIKE3" or
// "/SPIKE3".
func SpikeIDFromName(name string) (int, error) {
	id, ok := parseID(name, SpikePrefix)
	if !ok {
		return 0, fmt.Errorf("%q is not a SPIKE group name", name)
	}
	return id, nil
}

// SpikeGroup is a SPIKE<id> group holding spike times and waveforms.
type SpikeGroup struct {
	id int
	g  *hdf5.Group
}

// SpikeGroupIDs returns the ids of all SPIKE groups in ascending order.
func (f *File) SpikeGroupIDs() ([]int, error) {
	return groupIDs(f.Root(), SpikePrefix)
}

// SpikeGroupNames returns the names of all SPIKE groups ordered by id.
func (f *File) SpikeGroupNames() ([]string, error) {
	ids, err := f.SpikeGroupIDs()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = SpikeGroupName(id)
	}
	return names, nil
}

// SpikeGroups opens all SPIKE groups ordered by id.
func (f *File) SpikeGroups() ([]*SpikeGroup, error) {
	ids, err := f.SpikeGroupIDs()
	if err != nil {
		return nil, err
	}
	groups := make([]*SpikeGroup, 0, len(ids))
	for _, id := range ids {
		s, ok, err := f.SpikeGroup(id)
		if err != nil {
			return nil, err
		}
		if ok {
			groups = append(groups, s)
		}
	}
	return groups, nil
}

// SpikeGroup opens SPIKE<id>. It reports false when the group is absent.
func (f *File) SpikeGroup(id int) (*SpikeGroup, bool, error) {
	g, err := f.Root().OpenGroup(SpikeGroupName(id))
	if isNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("opening %s: %w", SpikeGroupName(id), err)
	}
	return &SpikeGroup{id: id, g: g}, true, nil
}

// ID returns the SPIKE id.
func (s *SpikeGroup) ID() int { return s.id }

// Group returns the underlying HDF5 group.
func (s *SpikeGroup) Group() *hdf5.Group { return s.g }

// Path returns the group path.
func (s *SpikeGroup) Path() string { return s.g.Path() }

// Params returns the SpikeParams attribute.
func (s *SpikeGroup) Params() (SpikeParams, error) {
	attr := s.g.Attr(spikeParamsAttr)
	if attr == nil {
		return SpikeParams{}, fmt.Errorf("%s: %s attribute missing: %w", s.Path(), spikeParamsAttr, hdf5.ErrNotFound)
	}
	var p SpikeParams
	if err := attr.Read(&p); err != nil {
		return SpikeParams{}, fmt.Errorf("reading %s of %s: %w", spikeParamsAttr, s.Path(), err)
	}
	return p, nil
}

// SamplePeriod returns the waveform sampling period in nanoseconds.
func (s *SpikeGroup) SamplePeriod() (int64, error) {
	return samplePeriod(s.g)
}

// Calibration returns the per-channel calibration factors.
func (s *SpikeGroup) Calibration() ([]float64, error) {
	_, nChannels, err := s.dataShape()
	if err != nil {
		return nil, err
	}
	return calibration(s.g, nChannels)
}

// Channels returns the Channels attribute, or nil when it is absent.
func (s *SpikeGroup) Channels() ([]ChannelInfo, error) {
	return channels(s.g)
}

// NumSpikes returns the number of INDEX entries.
func (s *SpikeGroup) NumSpikes() (int, error) {
	ds, err := s.g.OpenDataset(indexName)
	if err != nil {
		return 0, fmt.Errorf("opening %s/%s: %w", s.Path(), indexName, err)
	}
	return int(ds.NumElements()), nil
}

// Timestamps returns the spike times in nanoseconds.
func (s *SpikeGroup) Timestamps() ([]int64, error) {
	ds, err := s.g.OpenDataset(indexName)
	if err != nil {
		return nil, fmt.Errorf("opening %s/%s: %w", s.Path(), indexName, err)
	}
	return ds.ReadInt64()
}

// ClusterInfo returns the cluster number of each spike. It reports false
// when the group has no CLUSTER_INFO dataset.
func (s *SpikeGroup) ClusterInfo() ([]int32, bool, error) {
	ds, err := s.g.OpenDataset(clusterInfoName)
	if isNotFound(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("opening %s/%s: %w", s.Path(), clusterInfoName, err)
	}
	v, err := ds.ReadInt32()
	if err != nil {
		return nil, true, fmt.Errorf("reading %s/%s: %w", s.Path(), clusterInfoName, err)
	}
	return v, true, nil
}

func (s *SpikeGroup) dataShape() (rows, nChannels int, err error) {
	ds, err := s.g.OpenDataset(dataName)
	if err != nil {
		return 0, 0, fmt.Errorf("opening %s/%s: %w", s.Path(), dataName, err)
	}
	shape := ds.Shape()
	if len(shape) != 2 {
		return 0, 0, fmt.Errorf("%s/%s has rank %d, want 2: %w", s.Path(), dataName, len(shape), ErrInvalid)
	}
	return int(shape[0]), int(shape[1]), nil
}

// Waveforms reads DATA. Spike i occupies rows
// [i*spikeSamples, (i+1)*spikeSamples).
func (s *SpikeGroup) Waveforms() ([][]int16, error) {
	n, nChannels, err := s.dataShape()
	if err != nil {
		return nil, err
	}
	ds, err := s.g.OpenDataset(dataName)
	if err != nil {
		return nil, err
	}
	var flat []int16
	if n > 0 {
		if err := ds.Read(&flat); err != nil {
			return nil, fmt.Errorf("reading %s/%s: %w", s.Path(), dataName, err)
		}
	}
	return rows(flat, n, nChannels), nil
}

// Waveform reads the samples of spike i, one row per sample.
func (s *SpikeGroup) Waveform(i int) ([][]int16, error) {
	params, err := s.Params()
	if err != nil {
		return nil, err
	}
	n, nChannels, err := s.dataShape()
	if err != nil {
		return nil, err
	}
	width := int(params.SpikeSamples)
	start := i * width
	if i < 0 || width <= 0 || start+width > n {
		return nil, fmt.Errorf("%s: spike %d out of range", s.Path(), i)
	}
	ds, err := s.g.OpenDataset(dataName)
	if err != nil {
		return nil, err
	}
	var flat []int16
	err = ds.ReadSlice([]uint64{uint64(start), 0}, []uint64{uint64(width), uint64(nChannels)}, &flat)
	if err != nil {
		return nil, fmt.Errorf("reading %s/%s: %w", s.Path(), dataName, err)
	}
	return rows(flat, width, nChannels), nil
}

// SpikeGroupSpec describes a SPIKE group to create.
type SpikeGroupSpec struct {
	SamplePeriod int32 // nanoseconds
	Params       SpikeParams
	Calibration  []float64
	ChannelInfo  []ChannelInfo
	Timestamps   []int64   // one per spike, nanoseconds
	Waveforms    [][]int16 // len(Timestamps)*Params.SpikeSamples rows
	ClusterInfo  []int32   // optional, one per spike
}

// CreateSpikeGroup creates SPIKE<id>. It fails with an error wrapping
// fs.ErrExist if the group exists.
func (f *File) CreateSpikeGroup(id int, spec SpikeGroupSpec) (*SpikeGroup, error) {
	if err := f.writable(); err != nil {
		return nil, err
	}
	if id < 0 {
		return nil, fmt.Errorf("SPIKE id must be non-negative, got %d", id)
	}
	name := SpikeGroupName(id)
	if f.Root().HasMember(name) {
		return nil, existsErr(name)
	}

	nSpikes := len(spec.Timestamps)
	if want := nSpikes * int(spec.Params.SpikeSamples); len(spec.Waveforms) != want {
		return nil, fmt.Errorf("%d waveform rows for %d spikes of %d samples", len(spec.Waveforms), nSpikes, spec.Params.SpikeSamples)
	}
	if spec.ClusterInfo != nil && len(spec.ClusterInfo) != nSpikes {
		return nil, fmt.Errorf("%d cluster numbers for %d spikes", len(spec.ClusterInfo), nSpikes)
	}
	if len(spec.Waveforms) == 0 {
		return nil, fmt.Errorf("SPIKE group needs at least one spike")
	}

	g, err := f.Root().CreateGroup(name)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", name, err)
	}
	if err := f.fillSpikeGroup(g, spec); err != nil {
		return nil, rollback(f.Root(), name, err)
	}

	f.opts.logger.Debug().Str("group", g.Path()).Int("spikes", nSpikes).Msg("created SPIKE group")
	return &SpikeGroup{id: id, g: g}, nil
}

// fillSpikeGroup writes the attributes and datasets of a new SPIKE group.
func (f *File) fillSpikeGroup(g *hdf5.Group, spec SpikeGroupSpec) error {
	if err := g.SetAttr(samplePeriodAttr, spec.SamplePeriod); err != nil {
		return err
	}
	if err := g.SetAttr(spikeParamsAttr, spec.Params); err != nil {
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

	if _, err := g.CreateDataset(dataName, spec.Waveforms, f.opts.dataOptions(len(spec.Waveforms[0]))...); err != nil {
		return fmt.Errorf("creating %s/%s: %w", g.Path(), dataName, err)
	}
	if _, err := g.CreateDataset(indexName, spec.Timestamps); err != nil {
		return fmt.Errorf("creating %s/%s: %w", g.Path(), indexName, err)
	}
	if spec.ClusterInfo != nil {
		if _, err := g.CreateDataset(clusterInfoName, spec.ClusterInfo); err != nil {
			return fmt.Errorf("creating %s/%s: %w", g.Path(), clusterInfoName, err)
		}
	}
	return nil
}
