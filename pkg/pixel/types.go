// Package pixel implements the pixel/proof primitives: the (luma, chroma)
// pair committed to a Bitcoin output via public-key tweaking, and the
// tagged proof variants that let a validator recompute and check that
// commitment.
package pixel

import (
	"crypto/sha256"
	"encoding/binary"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/yuvchain/yuvd/pkg/chroma"
)

// Luma is a 128-bit clear token amount, big-endian encoded.
type Luma [16]byte

// ZeroLuma is the zero amount; zero-luma outputs are skipped from
// conservation sums.
var ZeroLuma Luma

// LumaFromUint64 builds a Luma from a 64-bit amount.
func LumaFromUint64(v uint64) Luma {
	var l Luma
	binary.BigEndian.PutUint64(l[8:], v)
	return l
}

// Big returns the amount as a big.Int.
func (l Luma) Big() *big.Int {
	return new(big.Int).SetBytes(l[:])
}

// IsZero reports whether the amount is zero.
func (l Luma) IsZero() bool {
	return l == ZeroLuma
}

// Add returns l+o as a new Luma, truncated to 128 bits (callers are
// expected to keep sums within the supply cap, which is itself bounded
// well under 2^128).
func (l Luma) Add(o Luma) Luma {
	sum := new(big.Int).Add(l.Big(), o.Big())
	var out Luma
	b := sum.Bytes()
	copy(out[16-len(b):], b)
	return out
}

// Cmp compares two Luma amounts.
func (l Luma) Cmp(o Luma) int {
	return l.Big().Cmp(o.Big())
}

// Pixel is the (luma, chroma) pair committed to a Bitcoin output.
// When Hidden is set the clear Luma field is meaningless and Commitment
// carries the Pedersen commitment instead.
type Pixel struct {
	Chroma chroma.Chroma
	Luma   Luma
	Hidden bool
	Commit *Commitment
}

// EmptyPixel is the zero-luma, zero-chroma marker used for uncolored
// change outputs.
var EmptyPixel = Pixel{}

// IsEmpty reports whether the pixel is the all-zero marker.
func (p Pixel) IsEmpty() bool {
	return !p.Hidden && p.Chroma.IsZero() && p.Luma.IsZero()
}

// CommitmentBytes returns the byte representation fed into the tweaked-key
// hash: the clear amount when not hidden, or the serialized commitment
// point when hidden.
func (p Pixel) CommitmentBytes() []byte {
	if p.Hidden && p.Commit != nil {
		return p.Commit.Bytes()
	}
	out := make([]byte, 16)
	copy(out, p.Luma[:])
	return out
}

// BurnPoint is the fixed, well-known public key with unknown discrete log
// used as the inner key of unspendable burn outputs. It is a
// nothing-up-my-sleeve secp256k1 point, in the tradition of BIP341's H.
var BurnPoint = mustBurnPoint()

// mustBurnPoint derives the burn point by try-and-increment: hash a fixed
// seed plus a counter, treat the digest as a candidate x-coordinate under
// the even-y compressed tag, and keep incrementing until the candidate
// actually lies on the curve. Nobody — including this node — learns its
// discrete log, the same nothing-up-my-sleeve construction
// nothingUpMySleeveH uses for the Pedersen H generator (commitment.go).
func mustBurnPoint() *btcec.PublicKey {
	seed := sha256.Sum256([]byte("yuv-protocol/burn-point"))
	for counter := uint32(0); ; counter++ {
		candidate := sha256.Sum256(append(seed[:], byte(counter), byte(counter>>8), byte(counter>>16), byte(counter>>24)))
		compressed := make([]byte, 33)
		compressed[0] = 0x02
		copy(compressed[1:], candidate[:])
		key, err := btcec.ParsePubKey(compressed)
		if err != nil {
			continue
		}
		return key
	}
}

// IsBurnPoint reports whether key equals the protocol's fixed burn point.
// A nil key can never be the burn point.
func IsBurnPoint(key *btcec.PublicKey) bool {
	if key == nil {
		return false
	}
	return key.IsEqual(BurnPoint)
}
