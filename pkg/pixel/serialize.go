package pixel

import (
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/yuvchain/yuvd/pkg/chroma"
)

// Encode serializes a Proof into the compact, self-describing stream:
// a 1-byte variant tag followed by variant-specific fields. Senders and
// validators must encode identically for the tweaked-key check to
// succeed.
func Encode(p Proof) ([]byte, error) {
	switch v := p.(type) {
	case *Sig:
		return encodeSigLike(byte(KindSig), v.Pixel, v.Inner), nil
	case *EmptyPixelProof:
		return encodeSigLike(byte(KindEmptyPixel), EmptyPixel, v.Inner), nil
	case *Multisig:
		return encodeMultisig(v)
	case *LightningCommitment:
		return encodeLightningCommitment(v), nil
	case *LightningHtlc:
		return encodeLightningHtlc(v), nil
	case *Bulletproof:
		return encodeBulletproof(v), nil
	default:
		return nil, fmt.Errorf("pixel: unknown proof type %T", p)
	}
}

// Decode parses the compact proof stream back into a concrete Proof.
func Decode(b []byte) (Proof, error) {
	if len(b) < 1 {
		return nil, errShortBuffer
	}
	kind := Kind(b[0])
	body := b[1:]

	switch kind {
	case KindSig:
		px, inner, _, err := decodeSigLike(body)
		if err != nil {
			return nil, err
		}
		return &Sig{Inner: inner, Pixel: px}, nil
	case KindEmptyPixel:
		_, inner, _, err := decodeSigLike(body)
		if err != nil {
			return nil, err
		}
		return &EmptyPixelProof{Inner: inner}, nil
	case KindMultisig:
		return decodeMultisig(body)
	case KindLightningCommitment:
		return decodeLightningCommitment(body)
	case KindLightningHtlc:
		return decodeLightningHtlc(body)
	case KindBulletproof:
		return decodeBulletproof(body)
	default:
		return nil, fmt.Errorf("pixel: unknown proof tag 0x%02x", byte(kind))
	}
}

func encodeSigLike(tag byte, px Pixel, inner *btcec.PublicKey) []byte {
	out := make([]byte, 0, 1+16+32+33)
	out = append(out, tag)
	out = append(out, px.Luma[:]...)
	out = append(out, px.Chroma[:]...)
	out = append(out, inner.SerializeCompressed()...)
	return out
}

func decodeSigLike(b []byte) (Pixel, *btcec.PublicKey, int, error) {
	const size = 16 + 32 + 33
	if len(b) < size {
		return Pixel{}, nil, 0, errShortBuffer
	}
	var px Pixel
	copy(px.Luma[:], b[0:16])
	copy(px.Chroma[:], b[16:48])
	inner, err := btcec.ParsePubKey(b[48:81])
	if err != nil {
		return Pixel{}, nil, 0, err
	}
	return px, inner, size, nil
}

func encodeMultisig(v *Multisig) ([]byte, error) {
	out := make([]byte, 0, 1+1+1+len(v.Inners)*33+48)
	out = append(out, byte(KindMultisig))
	out = append(out, v.K, v.N)
	for _, key := range v.Inners {
		out = append(out, key.SerializeCompressed()...)
	}
	out = append(out, v.Pixel.Luma[:]...)
	out = append(out, v.Pixel.Chroma[:]...)
	return out, nil
}

func decodeMultisig(b []byte) (*Multisig, error) {
	if len(b) < 2 {
		return nil, errShortBuffer
	}
	k, n := b[0], b[1]
	offset := 2
	inners := make([]*btcec.PublicKey, 0, n)
	for i := byte(0); i < n; i++ {
		if len(b) < offset+33 {
			return nil, errShortBuffer
		}
		key, err := btcec.ParsePubKey(b[offset : offset+33])
		if err != nil {
			return nil, err
		}
		inners = append(inners, key)
		offset += 33
	}
	if len(b) < offset+48 {
		return nil, errShortBuffer
	}
	var px Pixel
	copy(px.Luma[:], b[offset:offset+16])
	copy(px.Chroma[:], b[offset+16:offset+48])
	return &Multisig{K: k, N: n, Inners: inners, Pixel: px}, nil
}

func encodeLightningCommitment(v *LightningCommitment) []byte {
	out := make([]byte, 0, 1+33+33+2+48)
	out = append(out, byte(KindLightningCommitment))
	out = append(out, v.RevocationKey.SerializeCompressed()...)
	out = append(out, v.ToLocalKey.SerializeCompressed()...)
	var delay [2]byte
	binary.BigEndian.PutUint16(delay[:], v.CSVDelay)
	out = append(out, delay[:]...)
	out = append(out, v.Pixel.Luma[:]...)
	out = append(out, v.Pixel.Chroma[:]...)
	return out
}

func decodeLightningCommitment(b []byte) (*LightningCommitment, error) {
	const size = 33 + 33 + 2 + 48
	if len(b) < size {
		return nil, errShortBuffer
	}
	revocation, err := btcec.ParsePubKey(b[0:33])
	if err != nil {
		return nil, err
	}
	toLocal, err := btcec.ParsePubKey(b[33:66])
	if err != nil {
		return nil, err
	}
	delay := binary.BigEndian.Uint16(b[66:68])
	var px Pixel
	copy(px.Luma[:], b[68:84])
	copy(px.Chroma[:], b[84:116])
	return &LightningCommitment{RevocationKey: revocation, ToLocalKey: toLocal, CSVDelay: delay, Pixel: px}, nil
}

func encodeLightningHtlc(v *LightningHtlc) []byte {
	out := make([]byte, 0, 1+33*3+32+48)
	out = append(out, byte(KindLightningHtlc))
	out = append(out, v.RevocationKey.SerializeCompressed()...)
	out = append(out, v.RemoteHtlcKey.SerializeCompressed()...)
	out = append(out, v.LocalHtlcKey.SerializeCompressed()...)
	out = append(out, v.PaymentHash[:]...)
	out = append(out, v.Pixel.Luma[:]...)
	out = append(out, v.Pixel.Chroma[:]...)
	return out
}

func decodeLightningHtlc(b []byte) (*LightningHtlc, error) {
	const size = 33*3 + 32 + 48
	if len(b) < size {
		return nil, errShortBuffer
	}
	offset := 0
	next := func(n int) []byte {
		s := b[offset : offset+n]
		offset += n
		return s
	}
	revocation, err := btcec.ParsePubKey(next(33))
	if err != nil {
		return nil, err
	}
	remote, err := btcec.ParsePubKey(next(33))
	if err != nil {
		return nil, err
	}
	local, err := btcec.ParsePubKey(next(33))
	if err != nil {
		return nil, err
	}
	var paymentHash [32]byte
	copy(paymentHash[:], next(32))
	var px Pixel
	copy(px.Luma[:], next(16))
	copy(px.Chroma[:], next(32))
	return &LightningHtlc{RevocationKey: revocation, RemoteHtlcKey: remote, LocalHtlcKey: local, PaymentHash: paymentHash, Pixel: px}, nil
}

func encodeBulletproof(v *Bulletproof) []byte {
	commit := v.Commitment.Bytes()
	out := make([]byte, 0, 1+32+33+33+2+len(v.RangeProof))
	out = append(out, byte(KindBulletproof))
	out = append(out, v.Chroma[:]...)
	out = append(out, v.Inner.SerializeCompressed()...)
	out = append(out, commit...)
	var rpLen [2]byte
	binary.BigEndian.PutUint16(rpLen[:], uint16(len(v.RangeProof)))
	out = append(out, rpLen[:]...)
	out = append(out, v.RangeProof...)
	return out
}

func decodeBulletproof(b []byte) (*Bulletproof, error) {
	const fixedSize = 32 + 33 + 33 + 2
	if len(b) < fixedSize {
		return nil, errShortBuffer
	}
	var c chroma.Chroma
	copy(c[:], b[0:32])
	inner, err := btcec.ParsePubKey(b[32:65])
	if err != nil {
		return nil, err
	}
	commit, err := CommitmentFromBytes(b[65:98])
	if err != nil {
		return nil, err
	}
	rpLen := binary.BigEndian.Uint16(b[98:100])
	if len(b) < 100+int(rpLen) {
		return nil, errShortBuffer
	}
	rangeProof := append([]byte(nil), b[100:100+int(rpLen)]...)
	return &Bulletproof{Inner: inner, Chroma: c, Commitment: commit, RangeProof: rangeProof}, nil
}
