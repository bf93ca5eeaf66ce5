package engine

import "errors"

var (
	ErrUnknownEngine = errors.New("unknown engine")
	ErrOutputSuffix  = errors.New("output path must end in " + niftiGzSuffix)
	ErrNoInput       = errors.New("job has no input or output")
)
