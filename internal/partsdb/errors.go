package partsdb

import (
	"errors"
	"fmt"
)

// ErrSourceSchema indicates the snapshot source database has no recognizable
// component layout. resolveSourceSchema wraps it with the detail.
var ErrSourceSchema = errors.New("unrecognized source schema")

// ImportError wraps a failure inside an import run with the stage it
// happened in.
type ImportError struct {
	Stage string
	Err   error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import failed during %s: %v", e.Stage, e.Err)
}

func (e *ImportError) Unwrap() error { return e.Err }

// IsImportError reports whether err is an import-stage failure.
func IsImportError(err error) bool {
	var ie *ImportError
	return errors.As(err, &ie)
}
