package instance

import "errors"

var ErrInvalidDataType = errors.New("invalid data type")
