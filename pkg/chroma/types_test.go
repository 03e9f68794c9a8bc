package chroma

import "testing"

func TestMetadataValidate(t *testing.T) {
	base := func() *Metadata {
		return &Metadata{Name: "Example Token", Symbol: "EXT", Decimals: 8}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("expected valid metadata, got %v", err)
	}

	tooShortName := base()
	tooShortName.Name = "ab"
	if err := tooShortName.Validate(); err == nil {
		t.Error("expected name-too-short to be rejected")
	}

	tooLongName := base()
	tooLongName.Name = string(make([]byte, 33))
	if err := tooLongName.Validate(); err == nil {
		t.Error("expected name-too-long to be rejected")
	}

	tooShortSymbol := base()
	tooShortSymbol.Symbol = "ab"
	if err := tooShortSymbol.Validate(); err == nil {
		t.Error("expected symbol-too-short to be rejected")
	}

	tooLongSymbol := base()
	tooLongSymbol.Symbol = string(make([]byte, 17))
	if err := tooLongSymbol.Validate(); err == nil {
		t.Error("expected symbol-too-long to be rejected")
	}

	tooManyDecimals := base()
	tooManyDecimals.Decimals = 19
	if err := tooManyDecimals.Validate(); err == nil {
		t.Error("expected decimals > 18 to be rejected")
	}
}

func TestMetadataSupplyExceeded(t *testing.T) {
	unlimited := &Metadata{MaxSupply: 0, TotalSupply: 1_000_000}
	if unlimited.SupplyExceeded(1_000_000) {
		t.Error("MaxSupply of 0 should mean unlimited")
	}

	capped := &Metadata{MaxSupply: 100, TotalSupply: 90}
	if capped.SupplyExceeded(10) {
		t.Error("exactly reaching the cap should not be exceeded")
	}
	if !capped.SupplyExceeded(11) {
		t.Error("exceeding the cap by 1 should be rejected")
	}
}

func TestChromaRoundTrip(t *testing.T) {
	var c Chroma
	c[0] = 0xab
	c[31] = 0xcd

	parsed, err := ParseChroma(c.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != c {
		t.Errorf("round trip mismatch: got %s want %s", parsed, c)
	}

	if !(Chroma{}).IsZero() {
		t.Error("zero-value Chroma should report IsZero")
	}
	if c.IsZero() {
		t.Error("non-zero Chroma should not report IsZero")
	}
}
