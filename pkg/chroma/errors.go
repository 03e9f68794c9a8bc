package chroma

import "errors"

var (
	errInvalidLength   = errors.New("chroma: invalid byte length")
	errInvalidName     = errors.New("chroma: name must be 3-32 bytes")
	errInvalidSymbol   = errors.New("chroma: symbol must be 3-16 bytes")
	errInvalidDecimals = errors.New("chroma: decimals must be <= 18")
)
