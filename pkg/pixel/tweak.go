package pixel

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/yuvchain/yuvd/pkg/chroma"
)

// TweakedKey computes the pixel key H(H(H(commitmentBytes)||chroma)||P)·G + P
// for an inner key P. This is the central invariant the isolated checker
// recomputes for every proof-carrying output.
func TweakedKey(inner *btcec.PublicKey, commitmentBytes []byte, c chroma.Chroma) (*btcec.PublicKey, error) {
	h1 := sha256.Sum256(commitmentBytes)

	h2Input := make([]byte, 0, len(h1)+len(c))
	h2Input = append(h2Input, h1[:]...)
	h2Input = append(h2Input, c[:]...)
	h2 := sha256.Sum256(h2Input)

	innerBytes := inner.SerializeCompressed()
	h3Input := make([]byte, 0, len(h2)+len(innerBytes))
	h3Input = append(h3Input, h2[:]...)
	h3Input = append(h3Input, innerBytes...)
	h3 := sha256.Sum256(h3Input)

	return addTweak(inner, h3[:])
}

// TweakedKeyForPixel is a convenience wrapper over TweakedKey for a Pixel.
func TweakedKeyForPixel(inner *btcec.PublicKey, p Pixel) (*btcec.PublicKey, error) {
	return TweakedKey(inner, p.CommitmentBytes(), p.Chroma)
}

// addTweak computes tweak·G + P, following the same Jacobian-point idiom
// btcd's txscript package uses to compute taproot output keys.
func addTweak(inner *btcec.PublicKey, tweak []byte) (*btcec.PublicKey, error) {
	var tweakScalar btcec.ModNScalar
	if overflow := tweakScalar.SetByteSlice(tweak); overflow {
		return nil, errTweakOverflow
	}

	var innerJ, tweakJ, sumJ btcec.JacobianPoint
	inner.AsJacobian(&innerJ)
	btcec.ScalarBaseMultNonConst(&tweakScalar, &tweakJ)
	btcec.AddNonConst(&tweakJ, &innerJ, &sumJ)
	sumJ.ToAffine()

	return btcec.NewPublicKey(&sumJ.X, &sumJ.Y), nil
}
