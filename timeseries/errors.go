package timeseries

import (
	"errors"
	"fmt"
)

// Error kinds carried by the engine. Per-source failures wrap ErrSourceInvalid
// and are accumulated by tasks rather than aborting them.
var (
	ErrSourceInvalid    = errors.New("source invalid")
	ErrExtentEmpty      = errors.New("extent empty")
	ErrSampleOutOfRange = errors.New("sample out of range")
	ErrCancelled        = errors.New("cancelled")
	ErrInternal         = errors.New("internal inconsistency")
)

func SourceInvalidError(uri string, reason error) error {
	return fmt.Errorf("%w: %s: %v", ErrSourceInvalid, uri, reason)
}

func InternalError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInternal, fmt.Sprintf(format, args...))
}
