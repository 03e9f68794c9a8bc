package wire

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/yuvchain/yuvd/pkg/chroma"
	"github.com/yuvchain/yuvd/pkg/txtypes"
)

func testChroma(b byte) chroma.Chroma {
	var c chroma.Chroma
	c[0] = b
	return c
}

func TestChromaMetadataAnnouncementRoundTrip(t *testing.T) {
	want := &txtypes.Announcement{
		Variant: txtypes.AnnouncementChromaMetadata,
		ChromaMetadata: &txtypes.ChromaMetadataAnnouncement{
			Chroma:    testChroma(1),
			Name:      "Example Token",
			Symbol:    "EXT",
			Decimals:  8,
			MaxSupply: 21_000_000,
			Freezable: true,
		},
	}

	script, err := EncodeAnnouncement(want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeAnnouncement(script)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Variant != want.Variant {
		t.Fatalf("variant mismatch: got %d want %d", got.Variant, want.Variant)
	}
	if *got.ChromaMetadata != *want.ChromaMetadata {
		t.Errorf("chroma-metadata round trip mismatch: got %+v want %+v", got.ChromaMetadata, want.ChromaMetadata)
	}
}

func TestFreezeAnnouncementRoundTrip(t *testing.T) {
	var targetTxid chainhash.Hash
	targetTxid[5] = 0x42

	want := &txtypes.Announcement{
		Variant: txtypes.AnnouncementFreeze,
		Freeze: &txtypes.FreezeAnnouncement{
			Chroma:     testChroma(2),
			TargetTxid: targetTxid,
			TargetVout: 7,
		},
	}

	script, err := EncodeAnnouncement(want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeAnnouncement(script)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if *got.Freeze != *want.Freeze {
		t.Errorf("freeze round trip mismatch: got %+v want %+v", got.Freeze, want.Freeze)
	}
}

func TestTransferOwnershipAnnouncementRoundTrip(t *testing.T) {
	newKey := make([]byte, 33)
	newKey[0] = 0x02
	newKey[32] = 0xff

	want := &txtypes.Announcement{
		Variant: txtypes.AnnouncementTransferOwnership,
		TransferOwnership: &txtypes.TransferOwnershipAnnouncement{
			Chroma:       testChroma(3),
			NewIssuerKey: newKey,
		},
	}

	script, err := EncodeAnnouncement(want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeAnnouncement(script)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.TransferOwnership.Chroma != want.TransferOwnership.Chroma {
		t.Errorf("chroma mismatch: got %s want %s", got.TransferOwnership.Chroma, want.TransferOwnership.Chroma)
	}
	if string(got.TransferOwnership.NewIssuerKey) != string(want.TransferOwnership.NewIssuerKey) {
		t.Error("new issuer key mismatch after round trip")
	}
}

func TestDecodeAnnouncementRejectsBadMagic(t *testing.T) {
	badPayload := []byte{'b', 'a', 'd', 0x01}
	opReturn, err := txscript.NewScriptBuilder().
		AddOp(txscript.OP_RETURN).
		AddData(badPayload).
		Script()
	if err != nil {
		t.Fatalf("build script: %v", err)
	}
	if _, err := DecodeAnnouncement(opReturn); err == nil {
		t.Error("expected bad magic to be rejected")
	}
}

func TestDecodeAnnouncementRejectsNonOpReturn(t *testing.T) {
	if _, err := DecodeAnnouncement([]byte{0x76, 0xa9}); err == nil {
		t.Error("expected a non-OP_RETURN script to be rejected")
	}
}

func TestFindAnnouncementOutputRejectsMultiple(t *testing.T) {
	ann := &txtypes.Announcement{
		Variant: txtypes.AnnouncementFreeze,
		Freeze: &txtypes.FreezeAnnouncement{
			Chroma:     testChroma(4),
			TargetTxid: chainhash.Hash{},
			TargetVout: 0,
		},
	}
	script, err := EncodeAnnouncement(ann)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxOut(wire.NewTxOut(0, script))
	tx.AddTxOut(wire.NewTxOut(0, script))

	if _, err := FindAnnouncementOutput(tx); err == nil {
		t.Error("expected more than one announcement output to be rejected")
	}
}

func TestFindAnnouncementOutputNoneIsNotAnError(t *testing.T) {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxOut(wire.NewTxOut(0, []byte{0x00, 0x14}))

	idx, err := FindAnnouncementOutput(tx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx != -1 {
		t.Errorf("expected -1 when no announcement is present, got %d", idx)
	}
}
