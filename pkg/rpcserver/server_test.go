package rpcserver

import (
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/wire"

	"github.com/yuvchain/yuvd/pkg/chroma"
	"github.com/yuvchain/yuvd/pkg/pixel"
	"github.com/yuvchain/yuvd/pkg/storage"
	"github.com/yuvchain/yuvd/pkg/txtypes"
)

func TestDecodeHexTxRoundTrips(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	var c chroma.Chroma
	c[0] = 0x07

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxOut(wire.NewTxOut(0, []byte{0x00, 0x14}))
	want := &txtypes.TokenTransaction{
		BitcoinTx: tx,
		TxType: &txtypes.Issue{
			OutputProofs: []txtypes.OutputProof{{
				Vout:  0,
				Proof: &pixel.Sig{Inner: priv.PubKey(), Pixel: pixel.Pixel{Chroma: c, Luma: pixel.LumaFromUint64(42)}},
			}},
			Announcement: txtypes.ChromaMetadataAnnouncement{Chroma: c, Name: "Test", Symbol: "TST", MaxSupply: 1000},
		},
	}

	body, err := storage.EncodeTokenTx(want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	hexTx := hex.EncodeToString(body)

	got, err := decodeHexTx(hexTx)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Txid() != want.Txid() {
		t.Errorf("txid mismatch after round trip: got %s want %s", got.Txid(), want.Txid())
	}
}

func TestParseTxidRejectsGarbage(t *testing.T) {
	if _, err := parseTxid("not-a-txid"); err == nil {
		t.Error("expected an error for a malformed txid")
	}
}

func TestParseTxidAcceptsValidHash(t *testing.T) {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxOut(wire.NewTxOut(0, []byte{0x00, 0x14}))
	txid := tx.TxHash()

	got, err := parseTxid(txid.String())
	if err != nil {
		t.Fatalf("parse txid: %v", err)
	}
	if got != txid {
		t.Errorf("expected %s, got %s", txid, got)
	}
}
