// Package txtypes defines the token transaction envelope and its tagged
// tx_type variants.
package txtypes

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/yuvchain/yuvd/pkg/chroma"
	"github.com/yuvchain/yuvd/pkg/pixel"
)

// Kind tags the shape of a token transaction's tx_type.
type Kind uint8

const (
	KindIssue Kind = iota + 1
	KindTransfer
	KindAnnouncement
)

// AnnouncementVariant tags which announcement payload an Announcement
// transaction carries.
type AnnouncementVariant uint8

const (
	AnnouncementChromaMetadata AnnouncementVariant = iota + 1
	AnnouncementFreeze
	AnnouncementTransferOwnership
	// AnnouncementUnfreeze is only emitted when the node is configured
	// with reversible_freeze; freeze is monotone by default.
	AnnouncementUnfreeze
)

// TxType is the tagged tx_type carried alongside a Bitcoin transaction.
type TxType interface {
	Kind() Kind
}

// OutputProof pairs a vout index with the proof claimed for it.
type OutputProof struct {
	Vout  uint32
	Proof pixel.Proof
}

// InputProof pairs an input's previous outpoint with the proof that was
// originally attached to that output, carried so the checker does not
// need a storage round-trip to re-derive it.
type InputProof struct {
	PrevOut wire.OutPoint
	Proof   pixel.Proof
}

// Issue mints new units for a chroma, named in the accompanying
// announcement.
type Issue struct {
	OutputProofs []OutputProof
	Announcement ChromaMetadataAnnouncement
}

func (Issue) Kind() Kind { return KindIssue }

// Transfer moves existing units between outputs.
type Transfer struct {
	InputProofs  []InputProof
	OutputProofs []OutputProof
}

func (Transfer) Kind() Kind { return KindTransfer }

// Announcement carries one of the three OP_RETURN announcement payloads.
type Announcement struct {
	Variant            AnnouncementVariant
	ChromaMetadata      *ChromaMetadataAnnouncement
	Freeze              *FreezeAnnouncement
	TransferOwnership   *TransferOwnershipAnnouncement
}

func (Announcement) Kind() Kind { return KindAnnouncement }

// ChromaMetadataAnnouncement registers a new chroma's metadata.
type ChromaMetadataAnnouncement struct {
	Chroma    chroma.Chroma
	Name      string
	Symbol    string
	Decimals  uint8
	MaxSupply uint64
	Freezable bool
}

// FreezeAnnouncement marks a single outpoint unspendable.
type FreezeAnnouncement struct {
	Chroma     chroma.Chroma
	TargetTxid chainhash.Hash
	TargetVout uint32
}

// TransferOwnershipAnnouncement re-keys a chroma's issuer.
type TransferOwnershipAnnouncement struct {
	Chroma       chroma.Chroma
	NewIssuerKey []byte // compressed pubkey, 33 bytes
}

// TokenTransaction is the (bitcoin_tx, tx_type) tuple the pipeline
// operates on.
type TokenTransaction struct {
	BitcoinTx *wire.MsgTx
	TxType    TxType
}

// Txid returns the Bitcoin transaction's hash.
func (t *TokenTransaction) Txid() chainhash.Hash {
	return t.BitcoinTx.TxHash()
}
