package pixel

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/yuvchain/yuvd/pkg/chroma"
)

// Kind tags a Proof's variant for serialization and dispatch.
type Kind uint8

const (
	KindSig Kind = iota + 1
	KindMultisig
	KindLightningCommitment
	KindLightningHtlc
	KindEmptyPixel
	KindBulletproof
)

func (k Kind) String() string {
	switch k {
	case KindSig:
		return "sig"
	case KindMultisig:
		return "multisig"
	case KindLightningCommitment:
		return "lightning_commitment"
	case KindLightningHtlc:
		return "lightning_htlc"
	case KindEmptyPixel:
		return "empty_pixel"
	case KindBulletproof:
		return "bulletproof"
	default:
		return "unknown"
	}
}

// Proof carries exactly the fields its validator needs to recompute the
// tweaked key and its expected scriptPubKey.
type Proof interface {
	Kind() Kind
	// Pix returns the (luma, chroma) pair the proof commits to.
	Pix() Pixel
	// TweakedKey reconstructs the expected output key.
	TweakedKey() (*btcec.PublicKey, error)
	// ExpectedScript derives the expected scriptPubKey under the
	// variant's script family.
	ExpectedScript() ([]byte, error)
}

// Sig is a single-key, P2WPKH proof.
type Sig struct {
	Inner *btcec.PublicKey
	Pixel Pixel
}

func (p *Sig) Kind() Kind      { return KindSig }
func (p *Sig) Pix() Pixel      { return p.Pixel }
func (p *Sig) TweakedKey() (*btcec.PublicKey, error) {
	return TweakedKeyForPixel(p.Inner, p.Pixel)
}
func (p *Sig) ExpectedScript() ([]byte, error) {
	tweaked, err := p.TweakedKey()
	if err != nil {
		return nil, err
	}
	return P2WPKHScript(tweaked)
}

// EmptyPixel is the zero-luma/zero-chroma marker for uncolored outputs;
// it uses the same P2WPKH encoding as Sig but always commits the empty
// pixel.
type EmptyPixelProof struct {
	Inner *btcec.PublicKey
}

func (p *EmptyPixelProof) Kind() Kind { return KindEmptyPixel }
func (p *EmptyPixelProof) Pix() Pixel { return EmptyPixel }
func (p *EmptyPixelProof) TweakedKey() (*btcec.PublicKey, error) {
	return TweakedKeyForPixel(p.Inner, EmptyPixel)
}
func (p *EmptyPixelProof) ExpectedScript() ([]byte, error) {
	tweaked, err := p.TweakedKey()
	if err != nil {
		return nil, err
	}
	return P2WPKHScript(tweaked)
}

// Multisig is a k-of-n redeem script over a multiset of inner pubkeys,
// each independently tweaked by the same pixel before the redeem script
// is built, then wrapped P2WSH.
type Multisig struct {
	K, N   uint8
	Inners []*btcec.PublicKey
	Pixel  Pixel
}

func (p *Multisig) Kind() Kind { return KindMultisig }
func (p *Multisig) Pix() Pixel { return p.Pixel }

func (p *Multisig) tweakedInners() ([]*btcec.PublicKey, error) {
	out := make([]*btcec.PublicKey, len(p.Inners))
	for i, inner := range p.Inners {
		tweaked, err := TweakedKeyForPixel(inner, p.Pixel)
		if err != nil {
			return nil, err
		}
		out[i] = tweaked
	}
	return out, nil
}

// TweakedKey has no single value for a multisig proof; callers needing
// the redeem script should call ExpectedScript directly. It returns the
// first tweaked participant key for interface compatibility with
// single-key checks that only need to confirm a match exists.
func (p *Multisig) TweakedKey() (*btcec.PublicKey, error) {
	tweaked, err := p.tweakedInners()
	if err != nil {
		return nil, err
	}
	if len(tweaked) == 0 {
		return nil, errNoParticipants
	}
	return tweaked[0], nil
}

func (p *Multisig) ExpectedScript() ([]byte, error) {
	tweaked, err := p.tweakedInners()
	if err != nil {
		return nil, err
	}
	redeem, err := MultisigRedeemScript(p.K, tweaked)
	if err != nil {
		return nil, err
	}
	return P2WSHScript(redeem)
}

// LightningCommitment carries the script-specific keys of a Lightning
// commitment output: revocation and to-local delay keys.
type LightningCommitment struct {
	RevocationKey *btcec.PublicKey
	ToLocalKey    *btcec.PublicKey
	CSVDelay      uint16
	Pixel         Pixel
}

func (p *LightningCommitment) Kind() Kind { return KindLightningCommitment }
func (p *LightningCommitment) Pix() Pixel { return p.Pixel }

func (p *LightningCommitment) tweakedKeys() (revocation, toLocal *btcec.PublicKey, err error) {
	revocation, err = TweakedKeyForPixel(p.RevocationKey, p.Pixel)
	if err != nil {
		return nil, nil, err
	}
	toLocal, err = TweakedKeyForPixel(p.ToLocalKey, p.Pixel)
	if err != nil {
		return nil, nil, err
	}
	return revocation, toLocal, nil
}

func (p *LightningCommitment) TweakedKey() (*btcec.PublicKey, error) {
	revocation, _, err := p.tweakedKeys()
	return revocation, err
}

func (p *LightningCommitment) ExpectedScript() ([]byte, error) {
	revocation, toLocal, err := p.tweakedKeys()
	if err != nil {
		return nil, err
	}
	witnessScript, err := commitmentWitnessScript(revocation, toLocal, p.CSVDelay)
	if err != nil {
		return nil, err
	}
	return P2WSHScript(witnessScript)
}

// LightningHtlc carries the script-specific keys of a Lightning HTLC
// output.
type LightningHtlc struct {
	RevocationKey *btcec.PublicKey
	RemoteHtlcKey *btcec.PublicKey
	LocalHtlcKey  *btcec.PublicKey
	PaymentHash   [32]byte
	Pixel         Pixel
}

func (p *LightningHtlc) Kind() Kind { return KindLightningHtlc }
func (p *LightningHtlc) Pix() Pixel { return p.Pixel }

func (p *LightningHtlc) tweakedKeys() (revocation, remote, local *btcec.PublicKey, err error) {
	revocation, err = TweakedKeyForPixel(p.RevocationKey, p.Pixel)
	if err != nil {
		return nil, nil, nil, err
	}
	remote, err = TweakedKeyForPixel(p.RemoteHtlcKey, p.Pixel)
	if err != nil {
		return nil, nil, nil, err
	}
	local, err = TweakedKeyForPixel(p.LocalHtlcKey, p.Pixel)
	if err != nil {
		return nil, nil, nil, err
	}
	return revocation, remote, local, nil
}

func (p *LightningHtlc) TweakedKey() (*btcec.PublicKey, error) {
	revocation, _, _, err := p.tweakedKeys()
	return revocation, err
}

func (p *LightningHtlc) ExpectedScript() ([]byte, error) {
	revocation, remote, local, err := p.tweakedKeys()
	if err != nil {
		return nil, err
	}
	witnessScript, err := htlcWitnessScript(revocation, remote, local, p.PaymentHash)
	if err != nil {
		return nil, err
	}
	return P2WSHScript(witnessScript)
}

// Bulletproof is a hidden-amount proof: a Pedersen commitment plus a
// range proof. The range proof bytes are carried and serialized but not
// verified anywhere; the isolated checker compares only per-chroma
// commitment sums.
type Bulletproof struct {
	Inner      *btcec.PublicKey
	Chroma     chroma.Chroma
	Commitment *Commitment
	RangeProof []byte
}

func (p *Bulletproof) Kind() Kind { return KindBulletproof }
func (p *Bulletproof) Pix() Pixel {
	return Pixel{Chroma: p.Chroma, Hidden: true, Commit: p.Commitment}
}
func (p *Bulletproof) TweakedKey() (*btcec.PublicKey, error) {
	return TweakedKey(p.Inner, p.Commitment.Bytes(), p.Chroma)
}
func (p *Bulletproof) ExpectedScript() ([]byte, error) {
	tweaked, err := p.TweakedKey()
	if err != nil {
		return nil, err
	}
	return P2WPKHScript(tweaked)
}
