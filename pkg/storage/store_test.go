package storage

import (
	"testing"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/yuvchain/yuvd/pkg/chroma"
	"github.com/yuvchain/yuvd/pkg/confirmation"
	"github.com/yuvchain/yuvd/pkg/pixel"
	"github.com/yuvchain/yuvd/pkg/txtypes"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := dbm.NewDB("test", dbm.MemDBBackend, "")
	if err != nil {
		t.Fatalf("open memdb: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db)
}

func mustTokenTx(t *testing.T) *txtypes.TokenTransaction {
	t.Helper()
	var chr chroma.Chroma
	chr[0] = 0x01

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxOut(wire.NewTxOut(0, []byte{0x00, 0x14}))

	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	pix := pixel.Pixel{Chroma: chr, Luma: pixel.Luma{0x05}}
	proof := &pixel.Sig{Inner: priv.PubKey(), Pixel: pix}

	return &txtypes.TokenTransaction{
		BitcoinTx: tx,
		TxType: &txtypes.Issue{
			OutputProofs: []txtypes.OutputProof{{Vout: 0, Proof: proof}},
			Announcement: txtypes.ChromaMetadataAnnouncement{
				Chroma: chr, Name: "Test Token", Symbol: "TST", Decimals: 2, MaxSupply: 1000,
			},
		},
	}
}

func TestAttachedTxRoundTrip(t *testing.T) {
	s := newTestStore(t)
	tx := mustTokenTx(t)
	txid := tx.Txid()

	if _, found, err := s.GetAttachedTx(txid); err != nil || found {
		t.Fatalf("expected not found before attach, got found=%v err=%v", found, err)
	}

	if err := s.RegisterChroma(&chroma.Metadata{Chroma: chroma.Chroma{0x01}, Name: "Test Token", Symbol: "TST", Decimals: 2, MaxSupply: 1000}); err != nil {
		t.Fatalf("register chroma: %v", err)
	}

	err := s.Attach(AttachResult{
		Txid:            txid,
		Tx:              tx,
		SupplyIncrement: &SupplyIncrement{Chroma: chroma.Chroma{0x01}, Amount: 500},
	})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}

	got, found, err := s.GetAttachedTx(txid)
	if err != nil || !found {
		t.Fatalf("expected attached tx found, got found=%v err=%v", found, err)
	}
	if got.Txid() != txid {
		t.Errorf("txid mismatch: got %s want %s", got.Txid(), txid)
	}

	meta, ok := s.Chroma(chroma.Chroma{0x01})
	if !ok {
		t.Fatal("expected chroma registered")
	}
	if meta.TotalSupply != 500 {
		t.Errorf("expected total supply 500, got %d", meta.TotalSupply)
	}
}

func TestMempoolCASTransition(t *testing.T) {
	s := newTestStore(t)
	var txid chainhash.Hash
	txid[0] = 0x42

	const (
		statusInitialized byte = 1
		statusWaitingMined byte = 2
	)

	if err := s.PutMempoolEntry(txid, statusInitialized, []byte("body")); err != nil {
		t.Fatalf("put: %v", err)
	}

	if err := s.CASMempoolStatus(txid, statusWaitingMined, statusInitialized, nil); err != ErrCASMismatch {
		t.Fatalf("expected ErrCASMismatch, got %v", err)
	}

	if err := s.CASMempoolStatus(txid, statusInitialized, statusWaitingMined, []byte("body2")); err != nil {
		t.Fatalf("cas: %v", err)
	}

	status, body, found, err := s.GetMempoolEntry(txid)
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if status != statusWaitingMined || string(body) != "body2" {
		t.Errorf("unexpected entry: status=%d body=%q", status, body)
	}

	list, err := s.ListMempoolByStatus(statusWaitingMined)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0] != txid {
		t.Errorf("expected [%s], got %v", txid, list)
	}

	if err := s.DeleteMempoolEntry(txid); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, _, found, _ := s.GetMempoolEntry(txid); found {
		t.Error("expected entry gone after delete")
	}
}

func TestAttachClearsMempoolStatusIndex(t *testing.T) {
	s := newTestStore(t)
	var txid chainhash.Hash
	txid[2] = 0x07

	const statusAttaching byte = 4
	if err := s.PutMempoolEntry(txid, statusAttaching, []byte("body")); err != nil {
		t.Fatalf("put: %v", err)
	}
	list, err := s.ListMempoolByStatus(statusAttaching)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one attaching entry before attach, got %v err=%v", list, err)
	}

	if err := s.Attach(AttachResult{Txid: txid, Tx: mustTokenTx(t)}); err != nil {
		t.Fatalf("attach: %v", err)
	}

	if _, _, found, err := s.GetMempoolEntry(txid); err != nil || found {
		t.Fatalf("expected mempool entry gone after attach, found=%v err=%v", found, err)
	}
	list, err = s.ListMempoolByStatus(statusAttaching)
	if err != nil {
		t.Fatalf("list after attach: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("expected the status-indexed secondary key to be cleared on attach, still found %v", list)
	}
}

func TestFrozenOutpoints(t *testing.T) {
	s := newTestStore(t)
	var txid chainhash.Hash
	txid[1] = 0x09

	frozen, err := s.IsFrozen(txid, 3)
	if err != nil || frozen {
		t.Fatalf("expected not frozen, got frozen=%v err=%v", frozen, err)
	}
	if err := s.Freeze(txid, 3); err != nil {
		t.Fatalf("freeze: %v", err)
	}
	frozen, err = s.IsFrozen(txid, 3)
	if err != nil || !frozen {
		t.Fatalf("expected frozen, got frozen=%v err=%v", frozen, err)
	}
	if frozen, _ := s.IsFrozen(txid, 4); frozen {
		t.Error("expected vout 4 to remain unfrozen")
	}
}

func TestPageIndexSmallAppendsShareFirstPage(t *testing.T) {
	s := newTestStore(t)
	c := chroma.Chroma{0x02}

	if _, found, err := s.ReadPage(c, 0); err != nil || found {
		t.Fatalf("expected no page, got found=%v err=%v", found, err)
	}

	for i := 0; i < 3; i++ {
		err := s.Attach(AttachResult{
			Txid:        chainhash.Hash{byte(i)},
			Tx:          mustTokenTx(t),
			PageAppends: map[chroma.Chroma][]byte{c: []byte("entry")},
		})
		if err != nil {
			t.Fatalf("attach %d: %v", i, err)
		}
	}

	tail, found, err := s.TailPage(c)
	if err != nil || !found {
		t.Fatalf("tail: found=%v err=%v", found, err)
	}
	if tail != 0 {
		t.Errorf("expected small appends to stay on page 0, got %d", tail)
	}
	page, found, err := s.ReadPage(c, 0)
	if err != nil || !found {
		t.Fatalf("read page: found=%v err=%v", found, err)
	}
	if string(page) != "entryentryentry" {
		t.Errorf("unexpected page contents: %q", page)
	}
}

func TestChromaRegistrationRejectsDuplicate(t *testing.T) {
	s := newTestStore(t)
	m := &chroma.Metadata{Chroma: chroma.Chroma{0x03}, Name: "Dup Token", Symbol: "DUP", Decimals: 0}
	if err := s.RegisterChroma(m); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := s.RegisterChroma(m); err == nil {
		t.Error("expected duplicate registration to fail")
	}
}

func TestUpdateChromaIssuer(t *testing.T) {
	s := newTestStore(t)
	c := chroma.Chroma{0x04}
	if err := s.RegisterChroma(&chroma.Metadata{Chroma: c, Name: "Issuer Token", Symbol: "ISS", IssuerKey: []byte{0x01}}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := s.UpdateChromaIssuer(c, []byte{0x02, 0x03}); err != nil {
		t.Fatalf("update issuer: %v", err)
	}
	meta, ok := s.Chroma(c)
	if !ok {
		t.Fatal("expected chroma present")
	}
	if string(meta.IssuerKey) != "\x02\x03" {
		t.Errorf("unexpected issuer key: %v", meta.IssuerKey)
	}
}

func TestAttachRegistersChromaMetadata(t *testing.T) {
	s := newTestStore(t)
	c := chroma.Chroma{0x05}
	var txid chainhash.Hash
	txid[0] = 0x55

	if _, ok := s.Chroma(c); ok {
		t.Fatal("expected chroma unregistered before attach")
	}

	err := s.Attach(AttachResult{
		Txid: txid,
		Tx:   mustTokenTx(t),
		ChromaRegistration: &chroma.Metadata{
			Chroma: c, Name: "Attach Token", Symbol: "ATT", Decimals: 4, MaxSupply: 0, Freezable: true, IssuerKey: []byte{0x02},
		},
	})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}

	meta, ok := s.Chroma(c)
	if !ok {
		t.Fatal("expected chroma registered by attach")
	}
	if meta.Name != "Attach Token" || meta.Symbol != "ATT" {
		t.Errorf("unexpected chroma metadata: %+v", meta)
	}
}

func TestAttachUpdatesChromaIssuer(t *testing.T) {
	s := newTestStore(t)
	c := chroma.Chroma{0x06}
	if err := s.RegisterChroma(&chroma.Metadata{Chroma: c, Name: "Owned Token", Symbol: "OWN", IssuerKey: []byte{0x01}}); err != nil {
		t.Fatalf("register: %v", err)
	}

	var txid chainhash.Hash
	txid[0] = 0x66
	err := s.Attach(AttachResult{
		Txid:         txid,
		Tx:           mustTokenTx(t),
		IssuerUpdate: &IssuerUpdate{Chroma: c, NewIssuerKey: []byte{0x09, 0x08}},
	})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}

	meta, ok := s.Chroma(c)
	if !ok {
		t.Fatal("expected chroma present")
	}
	if string(meta.IssuerKey) != "\x09\x08" {
		t.Errorf("unexpected issuer key after attach: %v", meta.IssuerKey)
	}
}

func TestRecentBlocksRoundTrip(t *testing.T) {
	s := newTestStore(t)

	window := []*confirmation.BlockInfo{
		{Hash: chainhash.Hash{0x01}, PrevHash: chainhash.Hash{0x00}, Height: 100, Txids: []chainhash.Hash{{0xaa}}},
		{Hash: chainhash.Hash{0x02}, PrevHash: chainhash.Hash{0x01}, Height: 101, Txids: nil},
	}
	if err := s.SaveRecentBlocks(window); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.LoadRecentBlocks()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(got))
	}
	if got[0].Height != 100 || got[1].Height != 101 {
		t.Errorf("unexpected heights: %d, %d", got[0].Height, got[1].Height)
	}
	if got[0].Hash != window[0].Hash {
		t.Errorf("hash mismatch: got %s want %s", got[0].Hash, window[0].Hash)
	}
	if len(got[0].Txids) != 1 || got[0].Txids[0] != window[0].Txids[0] {
		t.Errorf("txids mismatch: %v", got[0].Txids)
	}
}
