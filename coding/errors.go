package coding

import (
	"errors"
)

//goland:noinspection ALL
var (
	ErrInvalidEncoding = errors.New("coding: invalid encoding")
	ErrInvalidLimits   = errors.New("coding: invalid segment limits")
	ErrEscapeAtEnd     = errors.New("coding: escape at end of input")
	ErrInvalidSeptet   = errors.New("coding: invalid gsm7 septet")
)
