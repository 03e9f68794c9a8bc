package pixel

import "errors"

var (
	errTweakOverflow  = errors.New("pixel: tweak scalar overflows the curve order")
	errNoParticipants = errors.New("pixel: multisig proof has no participant keys")
	errShortBuffer    = errors.New("pixel: proof buffer too short")
)
