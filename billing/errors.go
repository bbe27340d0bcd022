package billing

import (
	"errors"
)

var (
	ErrInvalidRate = errors.New("billing: invalid rate")
)
