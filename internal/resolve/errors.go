package resolve

import "errors"

var (
	ErrInstanceNotFound  = errors.New("instance not found")
	ErrInvalidInstanceID = errors.New("invalid instance id")
	ErrBadManifest       = errors.New("malformed instance manifest")
	ErrBadTemplate       = errors.New("invalid file name template")
)
