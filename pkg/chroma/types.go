// Package chroma defines the token-type identifier and its on-chain
// metadata record.
package chroma

import "encoding/hex"

// Chroma is a 32-byte issuer identifier (an x-only public key) that
// identifies a token type.
type Chroma [32]byte

// String returns the lowercase hex encoding of the chroma.
func (c Chroma) String() string {
	return hex.EncodeToString(c[:])
}

// IsZero reports whether c is the all-zero chroma, used as the "no chroma"
// marker on EmptyPixel outputs.
func (c Chroma) IsZero() bool {
	return c == Chroma{}
}

// ParseChroma parses a 32-byte hex string into a Chroma.
func ParseChroma(s string) (Chroma, error) {
	var c Chroma
	b, err := hex.DecodeString(s)
	if err != nil {
		return c, err
	}
	if len(b) != len(c) {
		return c, errInvalidLength
	}
	copy(c[:], b)
	return c, nil
}

// Metadata is the registered description of a chroma, carried by a
// Chroma-metadata announcement.
type Metadata struct {
	Chroma     Chroma
	Name       string
	Symbol     string
	Decimals   uint8
	MaxSupply  uint64 // 0 == unlimited
	Freezable  bool
	IssuerKey  []byte // current issuer's compressed public key (33 bytes)
	TotalSupply uint64 // running sum of attached issuances
}

// Validate enforces the name/symbol/decimals bounds from the isolated
// checker's per-variant rules for Chroma-metadata announcements.
func (m *Metadata) Validate() error {
	if l := len(m.Name); l < 3 || l > 32 {
		return errInvalidName
	}
	if l := len(m.Symbol); l < 3 || l > 16 {
		return errInvalidSymbol
	}
	if m.Decimals > 18 {
		return errInvalidDecimals
	}
	return nil
}

// SupplyExceeded reports whether adding amount to the current total supply
// would exceed MaxSupply (unlimited when MaxSupply == 0).
func (m *Metadata) SupplyExceeded(amount uint64) bool {
	if m.MaxSupply == 0 {
		return false
	}
	return m.TotalSupply+amount > m.MaxSupply
}

// IssuerKeyFromChroma derives the initial issuer key recorded when a
// chroma is first registered: since a chroma is itself the issuer's
// x-only public key, its compressed form is the even-y-tagged chroma
// bytes (the BIP340 x-only convention). A later Transfer-ownership
// announcement can re-key the issuer to any compressed public key via
// UpdateChromaIssuer.
func IssuerKeyFromChroma(c Chroma) []byte {
	out := make([]byte, 0, 33)
	out = append(out, 0x02)
	out = append(out, c[:]...)
	return out
}
