package dh5

import (
	"errors"
	"fmt"

	"github.com/cog-neurophys-lab/dh5io/hdf5"
)

var (
	// ErrInvalid marks a file whose structure violates the DH5 schema.
	ErrInvalid = errors.New("invalid DH5 file")

	// ErrWarning is returned by strict validation for the first finding that
	// would otherwise only be reported as a warning.
	ErrWarning = errors.New("DH5 warning")
)

// rollback unlinks the partly written member name of parent after err.
func rollback(parent *hdf5.Group, name string, err error) error {
	if uerr := parent.Unlink(name); uerr != nil {
		return errors.Join(err, fmt.Errorf("removing %s: %w", name, uerr))
	}
	return err
}
