package hdf5

// DatasetOption configures CreateDataset.
type DatasetOption func(*datasetOptions)

type datasetOptions struct {
	chunks []uint64
}

// WithChunks stores the dataset in chunks of dims elements, one entry per
// dimension, instead of a contiguous block. Chunks are written unfiltered
// and cannot be rewritten later.
func WithChunks(dims ...uint64) DatasetOption {
	return func(o *datasetOptions) { o.chunks = dims }
}
