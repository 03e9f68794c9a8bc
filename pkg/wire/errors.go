package wire

import "errors"

var (
	errNotOpReturn           = errors.New("wire: output is not an OP_RETURN script")
	errMalformedPayload      = errors.New("wire: malformed announcement payload")
	errBadMagic              = errors.New("wire: missing yuv magic bytes")
	errMissingPayload        = errors.New("wire: announcement missing its variant payload")
	errMultipleAnnouncements = errors.New("wire: transaction carries more than one announcement")
)
