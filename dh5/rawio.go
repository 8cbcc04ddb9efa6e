package dh5

import (
	"fmt"
	"sort"
)

// SignalStream is a CONT group seen as a block of analog channels sharing
// one sampling rate.
type SignalStream struct {
	ID           int       // CONT id
	Name         string    // group name, e.g. "CONT1"
	Samples      int       // rows of DATA
	Channels     int       // columns of DATA
	SamplingRate float64   // Hz
	Gain         []float64 // per channel calibration
	StartTime    int64     // time of the first sample in nanoseconds
}

// SpikeChannel is a SPIKE group seen as one unit of spike times and
// waveforms.
type SpikeChannel struct {
	ID             int
	Name           string
	Spikes         int
	Samples        int // waveform samples per spike
	PreTrigSamples int
	SamplingRate   float64
}

// RawReader gives stream-oriented access to the signals, spikes and events
// of a DH5 file. Sample reads pass straight through to the HDF5 layer.
type RawReader struct {
	f       *File
	streams []SignalStream
	conts   []*ContGroup
	spikes  []SpikeChannel
	groups  []*SpikeGroup
}

// NewRawReader builds the stream and spike channel tables of f.
func NewRawReader(f *File) (*RawReader, error) {
	r := &RawReader{f: f}

	conts, err := f.ContGroups()
	if err != nil {
		return nil, err
	}
	for _, c := range conts {
		s := SignalStream{ID: c.ID(), Name: ContGroupName(c.ID())}
		if s.Samples, s.Channels, err = c.Size(); err != nil {
			return nil, err
		}
		if s.SamplingRate, err = c.SamplingRate(); err != nil {
			return nil, err
		}
		if s.Gain, err = c.Calibration(); err != nil {
			return nil, err
		}
		index, err := c.Index()
		if err != nil {
			return nil, err
		}
		if len(index) > 0 {
			s.StartTime = index[0].Time
		}
		r.streams = append(r.streams, s)
		r.conts = append(r.conts, c)
	}

	spikes, err := f.SpikeGroups()
	if err != nil {
		return nil, err
	}
	for _, sg := range spikes {
		ch := SpikeChannel{ID: sg.ID(), Name: SpikeGroupName(sg.ID())}
		if ch.Spikes, err = sg.NumSpikes(); err != nil {
			return nil, err
		}
		params, err := sg.Params()
		if err != nil {
			return nil, err
		}
		ch.Samples = int(params.SpikeSamples)
		ch.PreTrigSamples = int(params.PreTrigSamples)
		period, err := sg.SamplePeriod()
		if err != nil {
			return nil, err
		}
		if period > 0 {
			ch.SamplingRate = 1e9 / float64(period)
		}
		r.spikes = append(r.spikes, ch)
		r.groups = append(r.groups, sg)
	}

	f.opts.logger.Debug().
		Int("streams", len(r.streams)).
		Int("spike_channels", len(r.spikes)).
		Msg("opened raw reader")
	return r, nil
}

// SignalStreams returns the analog streams in CONT id order.
func (r *RawReader) SignalStreams() []SignalStream {
	return r.streams
}

// SpikeChannels returns the spike channels in SPIKE id order.
func (r *RawReader) SpikeChannels() []SpikeChannel {
	return r.spikes
}

func (r *RawReader) stream(i int) (*ContGroup, SignalStream, error) {
	if i < 0 || i >= len(r.streams) {
		return nil, SignalStream{}, fmt.Errorf("signal stream %d out of range [0, %d)", i, len(r.streams))
	}
	return r.conts[i], r.streams[i], nil
}

// AnalogSignalChunk reads samples [iStart, iStop) of stream. channels
// selects columns by index; nil selects all.
func (r *RawReader) AnalogSignalChunk(stream, iStart, iStop int, channels []int) ([][]int16, error) {
	c, s, err := r.stream(stream)
	if err != nil {
		return nil, err
	}
	if iStop < iStart {
		return nil, fmt.Errorf("chunk stop %d before start %d", iStop, iStart)
	}
	for _, ch := range channels {
		if ch < 0 || ch >= s.Channels {
			return nil, fmt.Errorf("%s: channel %d out of range [0, %d)", s.Name, ch, s.Channels)
		}
	}

	raw, err := c.DataSlice(iStart, iStop-iStart)
	if err != nil {
		return nil, err
	}
	if channels == nil {
		return raw, nil
	}
	out := make([][]int16, len(raw))
	for i, row := range raw {
		sel := make([]int16, len(channels))
		for j, ch := range channels {
			sel[j] = row[ch]
		}
		out[i] = sel
	}
	return out, nil
}

// RescaleSignal applies the stream gain to a chunk read with the same
// channel selection. Channels outside the stream and rows whose width does
// not match the selection are errors.
func (r *RawReader) RescaleSignal(stream int, raw [][]int16, channels []int) ([][]float64, error) {
	_, s, err := r.stream(stream)
	if err != nil {
		return nil, err
	}
	out, err := applyGain(raw, s.Gain, channels)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Name, err)
	}
	return out, nil
}

// SpikeTimestamps returns all spike times of a spike channel in
// nanoseconds.
func (r *RawReader) SpikeTimestamps(channel int) ([]int64, error) {
	if channel < 0 || channel >= len(r.groups) {
		return nil, fmt.Errorf("spike channel %d out of range [0, %d)", channel, len(r.groups))
	}
	return r.groups[channel].Timestamps()
}

// SpikeTimestampsBetween returns the spike times t with tStart <= t < tStop.
func (r *RawReader) SpikeTimestampsBetween(channel int, tStart, tStop int64) ([]int64, error) {
	ts, err := r.SpikeTimestamps(channel)
	if err != nil {
		return nil, err
	}
	return between(ts, tStart, tStop), nil
}

// SpikeWaveform returns the waveform of spike i of a spike channel.
func (r *RawReader) SpikeWaveform(channel, i int) ([][]int16, error) {
	if channel < 0 || channel >= len(r.groups) {
		return nil, fmt.Errorf("spike channel %d out of range [0, %d)", channel, len(r.groups))
	}
	return r.groups[channel].Waveform(i)
}

// EventTimestamps returns the EV02 times and codes. Both are empty when the
// file has no event triggers.
func (r *RawReader) EventTimestamps() ([]int64, []int32, error) {
	events, _, err := r.f.EventTriggers()
	if err != nil {
		return nil, nil, err
	}
	times := make([]int64, len(events))
	codes := make([]int32, len(events))
	for i, e := range events {
		times[i] = e.Time
		codes[i] = e.Event
	}
	return times, codes, nil
}

// between returns the sub-slice of sorted ts within [tStart, tStop).
func between(ts []int64, tStart, tStop int64) []int64 {
	lo := sort.Search(len(ts), func(i int) bool { return ts[i] >= tStart })
	hi := sort.Search(len(ts), func(i int) bool { return ts[i] >= tStop })
	if hi < lo {
		hi = lo
	}
	return ts[lo:hi]
}
