package export

import (
	"errors"
	"fmt"
)

// ErrExportIO is matched by every ExportIOError.
var ErrExportIO = errors.New("EXPORT_IO")

// ExportIOError reports a failed filesystem step of an export.
type ExportIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *ExportIOError) Error() string {
	return fmt.Sprintf("EXPORT_IO: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ExportIOError) Unwrap() error { return e.Err }

func (e *ExportIOError) Is(target error) bool { return target == ErrExportIO }
