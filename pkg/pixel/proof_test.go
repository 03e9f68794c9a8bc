package pixel

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/yuvchain/yuvd/pkg/chroma"
)

func randKey(t *testing.T) *btcec.PublicKey {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return priv.PubKey()
}

func testChroma(b byte) chroma.Chroma {
	var c chroma.Chroma
	c[0] = b
	return c
}

func TestSigProofScriptMatchesTweakedKey(t *testing.T) {
	inner := randKey(t)
	px := Pixel{Chroma: testChroma(1), Luma: LumaFromUint64(1000)}
	proof := &Sig{Inner: inner, Pixel: px}

	tweaked, err := proof.TweakedKey()
	if err != nil {
		t.Fatalf("tweaked key: %v", err)
	}
	wantScript, err := P2WPKHScript(tweaked)
	if err != nil {
		t.Fatalf("p2wpkh script: %v", err)
	}
	gotScript, err := proof.ExpectedScript()
	if err != nil {
		t.Fatalf("expected script: %v", err)
	}
	if !bytes.Equal(wantScript, gotScript) {
		t.Error("Sig.ExpectedScript does not match the script derived from its own tweaked key")
	}

	// Different pixels commit to different scripts for the same inner key.
	other := &Sig{Inner: inner, Pixel: Pixel{Chroma: testChroma(2), Luma: LumaFromUint64(1000)}}
	otherScript, err := other.ExpectedScript()
	if err != nil {
		t.Fatalf("other script: %v", err)
	}
	if bytes.Equal(gotScript, otherScript) {
		t.Error("distinct chromas must tweak to distinct scripts")
	}
}

func TestEmptyPixelIsSkippedFromConservation(t *testing.T) {
	if !EmptyPixel.IsEmpty() {
		t.Fatal("zero-value Pixel must report IsEmpty")
	}
	nonEmpty := Pixel{Chroma: testChroma(1), Luma: LumaFromUint64(1)}
	if nonEmpty.IsEmpty() {
		t.Error("a pixel with nonzero chroma or luma must not report IsEmpty")
	}
}

func TestMultisigRedeemScriptOrderIndependent(t *testing.T) {
	inner1 := randKey(t)
	inner2 := randKey(t)
	px := Pixel{Chroma: testChroma(3), Luma: LumaFromUint64(5000)}

	a := &Multisig{K: 2, N: 2, Inners: []*btcec.PublicKey{inner1, inner2}, Pixel: px}
	b := &Multisig{K: 2, N: 2, Inners: []*btcec.PublicKey{inner2, inner1}, Pixel: px}

	scriptA, err := a.ExpectedScript()
	if err != nil {
		t.Fatalf("script a: %v", err)
	}
	scriptB, err := b.ExpectedScript()
	if err != nil {
		t.Fatalf("script b: %v", err)
	}
	if !bytes.Equal(scriptA, scriptB) {
		t.Error("multisig redeem script must not depend on participant presentation order")
	}
}

func TestBurnPointIsStableAndDistinct(t *testing.T) {
	if !IsBurnPoint(BurnPoint) {
		t.Fatal("BurnPoint must equal itself")
	}
	other := randKey(t)
	if IsBurnPoint(other) {
		t.Error("a random key must not be mistaken for the burn point")
	}
	if IsBurnPoint(nil) {
		t.Error("a nil inner key must not be mistaken for the burn point")
	}
}

func TestPedersenCommitmentHomomorphism(t *testing.T) {
	var blind1, blind2 [32]byte
	if _, err := rand.Read(blind1[:]); err != nil {
		t.Fatalf("rand: %v", err)
	}
	if _, err := rand.Read(blind2[:]); err != nil {
		t.Fatalf("rand: %v", err)
	}

	c1 := NewPedersenCommitment(100, blind1)
	c2 := NewPedersenCommitment(250, blind2)
	sum := c1.Add(c2)

	if sum.Equal(c1) || sum.Equal(c2) {
		t.Error("sum of two distinct commitments should not equal either input")
	}

	roundTripped, err := CommitmentFromBytes(sum.Bytes())
	if err != nil {
		t.Fatalf("commitment round trip: %v", err)
	}
	if !roundTripped.Equal(sum) {
		t.Error("commitment must round-trip through its byte encoding")
	}
}
