package formatter

import (
	"errors"
)

var (
	ErrMissingMediaURL = errors.New("formatter: media attachment enabled without a media url")
)
