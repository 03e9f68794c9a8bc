package pixel

import (
	"crypto/sha256"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/secp256k1"
	"github.com/consensys/gnark-crypto/ecc/secp256k1/fp"
)

// Commitment is a Pedersen commitment C = amount*G + blinding*H over the
// secp256k1 curve, used by the Bulletproof proof variant to hide a
// transferred amount while still letting the checker verify per-chroma
// conservation via commitment homomorphism.
type Commitment struct {
	point secp256k1.G1Affine
}

// NewPedersenCommitment commits to amount with the given 32-byte blinding
// factor.
func NewPedersenCommitment(amount uint64, blinding [32]byte) *Commitment {
	var amountScalar, blindScalar big.Int
	amountScalar.SetUint64(amount)
	blindScalar.SetBytes(blinding[:])

	var aG, bH secp256k1.G1Jac
	aG.ScalarMultiplication(&g1Generator, &amountScalar)
	bH.ScalarMultiplication(nothingUpMySleeveH(), &blindScalar)

	var sum secp256k1.G1Jac
	sum.Set(&aG).AddAssign(&bH)

	var out secp256k1.G1Affine
	out.FromJacobian(&sum)
	return &Commitment{point: out}
}

// Add computes the homomorphic sum of two commitments, i.e. a commitment
// to the sum of their hidden amounts under the sum of their blinding
// factors.
func (c *Commitment) Add(o *Commitment) *Commitment {
	var a, b, sum secp256k1.G1Jac
	a.FromAffine(&c.point)
	b.FromAffine(&o.point)
	sum.Set(&a).AddAssign(&b)

	var out secp256k1.G1Affine
	out.FromJacobian(&sum)
	return &Commitment{point: out}
}

// Equal reports whether two commitments are to the curve point, i.e.
// whether they commit to the same (amount, blinding) sum — the check
// conservation uses in place of clear-amount equality.
func (c *Commitment) Equal(o *Commitment) bool {
	return c.point.Equal(&o.point)
}

// Bytes returns the compressed point encoding, fed into the tweaked-key
// hash chain in place of a clear 16-byte amount.
func (c *Commitment) Bytes() []byte {
	b := c.point.Bytes()
	return b[:]
}

// CommitmentFromBytes parses a compressed point encoding back into a
// Commitment.
func CommitmentFromBytes(b []byte) (*Commitment, error) {
	var p secp256k1.G1Affine
	var arr [33]byte
	copy(arr[:], b)
	if _, err := p.SetBytes(arr[:]); err != nil {
		return nil, err
	}
	return &Commitment{point: p}, nil
}

var g1Generator = func() secp256k1.G1Jac {
	_, _, g1Aff, _ := secp256k1.Generators()
	var g1 secp256k1.G1Jac
	g1.FromAffine(&g1Aff)
	return g1
}()

var (
	nums     secp256k1.G1Affine
	numsOnce sync.Once
)

// nothingUpMySleeveH derives the secondary Pedersen generator H by hashing
// a fixed seed string plus a counter until a valid curve point is found
// (try-and-increment), so that nobody — including this node — knows its
// discrete log relative to G.
func nothingUpMySleeveH() *secp256k1.G1Affine {
	numsOnce.Do(func() {
		seed := sha256.Sum256([]byte("yuv-protocol/pedersen-h"))
		for counter := uint32(0); ; counter++ {
			candidate := sha256.Sum256(append(seed[:], byte(counter), byte(counter>>8), byte(counter>>16), byte(counter>>24)))
			var x fp.Element
			x.SetBytes(candidate[:])

			var ySquared, y fp.Element
			ySquared.Square(&x).Mul(&ySquared, &x)
			var seven fp.Element
			seven.SetUint64(7)
			ySquared.Add(&ySquared, &seven)

			if y.Sqrt(&ySquared) == nil {
				continue
			}

			nums.X = x
			nums.Y = y
			if !nums.IsOnCurve() {
				continue
			}
			return
		}
	})
	return &nums
}
