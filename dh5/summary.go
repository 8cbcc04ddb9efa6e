package dh5

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ContSummary describes one CONT group.
type ContSummary struct {
	ID           int        `json:"id" yaml:"id"`
	Name         string     `json:"name,omitempty" yaml:"name,omitempty"`
	SignalType   SignalType `json:"signal_type,omitempty" yaml:"signal_type,omitempty"`
	Samples      int        `json:"samples" yaml:"samples"`
	Channels     int        `json:"channels" yaml:"channels"`
	SamplePeriod int64      `json:"sample_period_ns" yaml:"sample_period_ns"`
	Regions      int        `json:"regions" yaml:"regions"`
}

// SpikeSummary describes one SPIKE group.
type SpikeSummary struct {
	ID       int `json:"id" yaml:"id"`
	Spikes   int `json:"spikes" yaml:"spikes"`
	Channels int `json:"channels" yaml:"channels"`
	Samples  int `json:"samples_per_spike" yaml:"samples_per_spike"`
}

// Summary is an overview of a DH5 file.
type Summary struct {
	Path       string         `json:"path" yaml:"path"`
	Version    int            `json:"version" yaml:"version"`
	Boards     []string       `json:"boards,omitempty" yaml:"boards,omitempty"`
	Cont       []ContSummary  `json:"cont" yaml:"cont"`
	Spike      []SpikeSummary `json:"spike" yaml:"spike"`
	Events     int            `json:"events" yaml:"events"`
	Trials     int            `json:"trials" yaml:"trials"`
	Operations []Operation    `json:"operations" yaml:"operations"`
}

// Summary collects an overview of the file. Version is 1 when FILEVERSION
// is missing.
func (f *File) Summary() (*Summary, error) {
	s := &Summary{Path: f.path, Version: 1, Boards: f.Boards()}
	if v, ok := f.Version(); ok {
		s.Version = v
	}

	conts, err := f.ContGroups()
	if err != nil {
		return nil, err
	}
	for _, c := range conts {
		cs := ContSummary{ID: c.ID(), Name: c.Name(), SignalType: c.SignalType()}
		if cs.Samples, cs.Channels, err = c.Size(); err != nil {
			return nil, err
		}
		if p, err := c.SamplePeriod(); err == nil {
			cs.SamplePeriod = p
		}
		if regions, err := c.Regions(); err == nil {
			cs.Regions = len(regions)
		}
		s.Cont = append(s.Cont, cs)
	}

	spikes, err := f.SpikeGroups()
	if err != nil {
		return nil, err
	}
	for _, sg := range spikes {
		ss := SpikeSummary{ID: sg.ID()}
		if ss.Spikes, err = sg.NumSpikes(); err != nil {
			return nil, err
		}
		if _, ss.Channels, err = sg.dataShape(); err != nil {
			return nil, err
		}
		if p, err := sg.Params(); err == nil {
			ss.Samples = int(p.SpikeSamples)
		}
		s.Spike = append(s.Spike, ss)
	}

	events, _, err := f.EventTriggers()
	if err != nil {
		return nil, err
	}
	s.Events = len(events)

	trials, _, err := f.Trialmap()
	if err != nil {
		return nil, err
	}
	s.Trials = len(trials)

	if s.Operations, err = f.Operations(); err != nil {
		return nil, err
	}
	return s, nil
}

// String renders the summary as a tree.
func (s *Summary) String() string {
	contNames := make([]string, len(s.Cont))
	for i, c := range s.Cont {
		contNames[i] = ContGroupName(c.ID)
	}
	spikeNames := make([]string, len(s.Spike))
	for i, sp := range s.Spike {
		spikeNames[i] = SpikeGroupName(sp.ID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "DAQ-HDF5 File (version %d) %s containing:\n", s.Version, filepath.Base(s.Path))
	fmt.Fprintf(&b, "    ├─── %5d CONT Groups: %s\n", len(s.Cont), joinNames(contNames))
	fmt.Fprintf(&b, "    ├─── %5d SPIKE Groups: %s\n", len(s.Spike), joinNames(spikeNames))
	fmt.Fprintf(&b, "    ├─── %5d Events\n", s.Events)
	fmt.Fprintf(&b, "    └─── %5d Trials in TRIALMAP\n", s.Trials)
	return b.String()
}
