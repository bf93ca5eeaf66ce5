package convert

import "errors"

var (
	ErrNoMatchingData     = errors.New("no matching data")
	ErrAlreadyExists      = errors.New("file already exists")
	ErrMisaligned         = errors.New("input, output and log collections differ in length")
	ErrUnsupportedFormat  = errors.New("no engine supports input format")
	ErrAdapterUnavailable = errors.New("no adapter registered for engine")
)
