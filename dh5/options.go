package dh5

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/cog-neurophys-lab/dh5io/hdf5"
)

// Option configures how a DH5 file is created, opened or validated.
type Option func(*options)

type options struct {
	logger    zerolog.Logger
	operator  string
	tool      string
	boards    []string
	strict    bool
	chunkRows int
	now       func() time.Time
}

func defaultOptions() *options {
	return &options{
		logger: zerolog.Nop(),
		tool:   DefaultTool,
		now:    time.Now,
	}
}

func applyOptions(opts []Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets the logger that receives validation findings and write
// events.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithOperator sets the default operator name recorded by AddOperation.
func WithOperator(name string) Option {
	return func(o *options) {
		o.operator = name
	}
}

// WithTool sets the default tool name recorded by AddOperation.
func WithTool(name string) Option {
	return func(o *options) {
		if name != "" {
			o.tool = name
		}
	}
}

// WithBoards sets the BOARDS attribute written by Create.
func WithBoards(boards ...string) Option {
	return func(o *options) {
		o.boards = boards
	}
}

// WithStrict makes validation fail on the first warning.
func WithStrict() Option {
	return func(o *options) {
		o.strict = true
	}
}

// WithClock sets the time source used for operation dates.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithChunkRows stores the DATA of new CONT and SPIKE groups in chunks of n
// rows spanning all channels. Zero keeps contiguous storage.
// CreateEmptyContGroup ignores it: its DATA is always contiguous so that
// WriteContData can fill it in place.
func WithChunkRows(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.chunkRows = n
		}
	}
}

// dataOptions returns the dataset options for a DATA matrix with the given
// number of channels.
func (o *options) dataOptions(nChannels int) []hdf5.DatasetOption {
	if o.chunkRows <= 0 {
		return nil
	}
	return []hdf5.DatasetOption{hdf5.WithChunks(uint64(o.chunkRows), uint64(nChannels))}
}
