package storage

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/yuvchain/yuvd/pkg/chroma"
	"github.com/yuvchain/yuvd/pkg/pixel"
	"github.com/yuvchain/yuvd/pkg/txtypes"
)

// txRecord is the on-disk JSON shadow of a txtypes.TokenTransaction,
// following the teacher ledger's flat-struct-plus-json.Marshal idiom
// (SystemLedgerBlockMeta). Binary fields (the raw Bitcoin transaction,
// compact proof encodings) are hex strings so the record stays a single
// readable JSON document for debugging and migration tooling.
type txRecord struct {
	BitcoinTxHex string              `json:"bitcoin_tx"`
	Kind         txtypes.Kind        `json:"kind"`
	Issue        *issueRecord        `json:"issue,omitempty"`
	Transfer     *transferRecord     `json:"transfer,omitempty"`
	Announcement *announcementRecord `json:"announcement,omitempty"`
}

type outputProofRecord struct {
	Vout     uint32 `json:"vout"`
	ProofHex string `json:"proof"`
}

type inputProofRecord struct {
	PrevOutHash  string `json:"prev_out_hash"`
	PrevOutIndex uint32 `json:"prev_out_index"`
	ProofHex     string `json:"proof"`
}

type chromaMetadataRecord struct {
	Chroma    string `json:"chroma"`
	Name      string `json:"name"`
	Symbol    string `json:"symbol"`
	Decimals  uint8  `json:"decimals"`
	MaxSupply uint64 `json:"max_supply"`
	Freezable bool   `json:"freezable"`
}

type issueRecord struct {
	OutputProofs []outputProofRecord `json:"output_proofs"`
	Announcement chromaMetadataRecord `json:"announcement"`
}

type transferRecord struct {
	InputProofs  []inputProofRecord  `json:"input_proofs"`
	OutputProofs []outputProofRecord `json:"output_proofs"`
}

type freezeRecord struct {
	Chroma     string `json:"chroma"`
	TargetTxid string `json:"target_txid"`
	TargetVout uint32 `json:"target_vout"`
}

type transferOwnershipRecord struct {
	Chroma       string `json:"chroma"`
	NewIssuerKey string `json:"new_issuer_key"`
}

type announcementRecord struct {
	Variant           txtypes.AnnouncementVariant `json:"variant"`
	ChromaMetadata    *chromaMetadataRecord       `json:"chroma_metadata,omitempty"`
	Freeze            *freezeRecord               `json:"freeze,omitempty"`
	TransferOwnership *transferOwnershipRecord    `json:"transfer_ownership,omitempty"`
}

// chromaStateRecord is the full persisted state for a registered chroma,
// carrying the fields a live ChromaStore needs beyond what the on-chain
// announcement itself declares (current issuer key, running supply).
type chromaStateRecord struct {
	Chroma      string `json:"chroma"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Decimals    uint8  `json:"decimals"`
	MaxSupply   uint64 `json:"max_supply"`
	Freezable   bool   `json:"freezable"`
	IssuerKeyHex string `json:"issuer_key"`
	TotalSupply uint64 `json:"total_supply"`
}

func encodeChromaState(m *chroma.Metadata) []byte {
	rec := chromaStateRecord{
		Chroma:       m.Chroma.String(),
		Name:         m.Name,
		Symbol:       m.Symbol,
		Decimals:     m.Decimals,
		MaxSupply:    m.MaxSupply,
		Freezable:    m.Freezable,
		IssuerKeyHex: hex.EncodeToString(m.IssuerKey),
		TotalSupply:  m.TotalSupply,
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		// rec has no unmarshalable fields; a marshal failure here would be
		// a programmer error, not a runtime condition callers should handle.
		panic(fmt.Sprintf("storage: marshal chroma state: %v", err))
	}
	return encodeEnvelope(payload)
}

func decodeChromaState(b []byte) (*chroma.Metadata, error) {
	payload, err := decodeEnvelope(b)
	if err != nil {
		return nil, err
	}
	var rec chromaStateRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("storage: unmarshal chroma state: %w", err)
	}
	c, err := chroma.ParseChroma(rec.Chroma)
	if err != nil {
		return nil, err
	}
	issuerKey, err := hex.DecodeString(rec.IssuerKeyHex)
	if err != nil {
		return nil, err
	}
	return &chroma.Metadata{
		Chroma:      c,
		Name:        rec.Name,
		Symbol:      rec.Symbol,
		Decimals:    rec.Decimals,
		MaxSupply:   rec.MaxSupply,
		Freezable:   rec.Freezable,
		IssuerKey:   issuerKey,
		TotalSupply: rec.TotalSupply,
	}, nil
}

func hashHex(h chainhash.Hash) string { return hex.EncodeToString(h[:]) }

func hashFromHex(s string) (chainhash.Hash, error) {
	var h chainhash.Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	if len(b) != len(h) {
		return h, fmt.Errorf("storage: invalid hash length %d", len(b))
	}
	copy(h[:], b)
	return h, nil
}

func encodeOutputProofs(proofs []txtypes.OutputProof) ([]outputProofRecord, error) {
	out := make([]outputProofRecord, len(proofs))
	for i, op := range proofs {
		b, err := pixel.Encode(op.Proof)
		if err != nil {
			return nil, fmt.Errorf("storage: encode output proof %d: %w", i, err)
		}
		out[i] = outputProofRecord{Vout: op.Vout, ProofHex: hex.EncodeToString(b)}
	}
	return out, nil
}

func decodeOutputProofs(recs []outputProofRecord) ([]txtypes.OutputProof, error) {
	out := make([]txtypes.OutputProof, len(recs))
	for i, r := range recs {
		b, err := hex.DecodeString(r.ProofHex)
		if err != nil {
			return nil, err
		}
		proof, err := pixel.Decode(b)
		if err != nil {
			return nil, fmt.Errorf("storage: decode output proof %d: %w", i, err)
		}
		out[i] = txtypes.OutputProof{Vout: r.Vout, Proof: proof}
	}
	return out, nil
}

func encodeChromaMetadataAnnouncement(m txtypes.ChromaMetadataAnnouncement) chromaMetadataRecord {
	return chromaMetadataRecord{
		Chroma:    m.Chroma.String(),
		Name:      m.Name,
		Symbol:    m.Symbol,
		Decimals:  m.Decimals,
		MaxSupply: m.MaxSupply,
		Freezable: m.Freezable,
	}
}

func decodeChromaMetadataAnnouncement(r chromaMetadataRecord) (txtypes.ChromaMetadataAnnouncement, error) {
	c, err := chroma.ParseChroma(r.Chroma)
	if err != nil {
		return txtypes.ChromaMetadataAnnouncement{}, err
	}
	return txtypes.ChromaMetadataAnnouncement{
		Chroma:    c,
		Name:      r.Name,
		Symbol:    r.Symbol,
		Decimals:  r.Decimals,
		MaxSupply: r.MaxSupply,
		Freezable: r.Freezable,
	}, nil
}

func encodeAnnouncement(a *txtypes.Announcement) *announcementRecord {
	rec := &announcementRecord{Variant: a.Variant}
	if a.ChromaMetadata != nil {
		m := encodeChromaMetadataAnnouncement(*a.ChromaMetadata)
		rec.ChromaMetadata = &m
	}
	if a.Freeze != nil {
		rec.Freeze = &freezeRecord{
			Chroma:     a.Freeze.Chroma.String(),
			TargetTxid: hashHex(a.Freeze.TargetTxid),
			TargetVout: a.Freeze.TargetVout,
		}
	}
	if a.TransferOwnership != nil {
		rec.TransferOwnership = &transferOwnershipRecord{
			Chroma:       a.TransferOwnership.Chroma.String(),
			NewIssuerKey: hex.EncodeToString(a.TransferOwnership.NewIssuerKey),
		}
	}
	return rec
}

func decodeAnnouncement(rec *announcementRecord) (*txtypes.Announcement, error) {
	a := &txtypes.Announcement{Variant: rec.Variant}
	if rec.ChromaMetadata != nil {
		m, err := decodeChromaMetadataAnnouncement(*rec.ChromaMetadata)
		if err != nil {
			return nil, err
		}
		a.ChromaMetadata = &m
	}
	if rec.Freeze != nil {
		c, err := chroma.ParseChroma(rec.Freeze.Chroma)
		if err != nil {
			return nil, err
		}
		txid, err := hashFromHex(rec.Freeze.TargetTxid)
		if err != nil {
			return nil, err
		}
		a.Freeze = &txtypes.FreezeAnnouncement{Chroma: c, TargetTxid: txid, TargetVout: rec.Freeze.TargetVout}
	}
	if rec.TransferOwnership != nil {
		c, err := chroma.ParseChroma(rec.TransferOwnership.Chroma)
		if err != nil {
			return nil, err
		}
		key, err := hex.DecodeString(rec.TransferOwnership.NewIssuerKey)
		if err != nil {
			return nil, err
		}
		a.TransferOwnership = &txtypes.TransferOwnershipAnnouncement{Chroma: c, NewIssuerKey: key}
	}
	return a, nil
}

// EncodeTokenTx serializes a token transaction into the same
// envelope-wrapped record the attached-transaction store persists,
// exported so other packages (the mempool's pending-entry bodies) can
// reuse it instead of inventing a second encoding for the same value.
func EncodeTokenTx(tx *txtypes.TokenTransaction) ([]byte, error) {
	return encodeTokenTx(tx)
}

// DecodeTokenTx is the inverse of EncodeTokenTx.
func DecodeTokenTx(b []byte) (*txtypes.TokenTransaction, error) {
	return decodeTokenTx(b)
}

// encodeTokenTx serializes a token transaction into its envelope-wrapped
// on-disk record.
func encodeTokenTx(tx *txtypes.TokenTransaction) ([]byte, error) {
	var buf bytes.Buffer
	if err := tx.BitcoinTx.Serialize(&buf); err != nil {
		return nil, fmt.Errorf("storage: serialize bitcoin tx: %w", err)
	}
	rec := txRecord{BitcoinTxHex: hex.EncodeToString(buf.Bytes())}

	switch v := tx.TxType.(type) {
	case *txtypes.Issue:
		rec.Kind = txtypes.KindIssue
		outs, err := encodeOutputProofs(v.OutputProofs)
		if err != nil {
			return nil, err
		}
		rec.Issue = &issueRecord{
			OutputProofs: outs,
			Announcement: encodeChromaMetadataAnnouncement(v.Announcement),
		}
	case *txtypes.Transfer:
		rec.Kind = txtypes.KindTransfer
		ins := make([]inputProofRecord, len(v.InputProofs))
		for i, ip := range v.InputProofs {
			b, err := pixel.Encode(ip.Proof)
			if err != nil {
				return nil, fmt.Errorf("storage: encode input proof %d: %w", i, err)
			}
			ins[i] = inputProofRecord{
				PrevOutHash:  hashHex(ip.PrevOut.Hash),
				PrevOutIndex: ip.PrevOut.Index,
				ProofHex:     hex.EncodeToString(b),
			}
		}
		outs, err := encodeOutputProofs(v.OutputProofs)
		if err != nil {
			return nil, err
		}
		rec.Transfer = &transferRecord{InputProofs: ins, OutputProofs: outs}
	case *txtypes.Announcement:
		rec.Kind = txtypes.KindAnnouncement
		rec.Announcement = encodeAnnouncement(v)
	default:
		return nil, fmt.Errorf("storage: unknown tx_type %T", tx.TxType)
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return encodeEnvelope(payload), nil
}

// decodeTokenTx is the inverse of encodeTokenTx.
func decodeTokenTx(b []byte) (*txtypes.TokenTransaction, error) {
	payload, err := decodeEnvelope(b)
	if err != nil {
		return nil, err
	}
	var rec txRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("storage: unmarshal tx record: %w", err)
	}

	rawTx, err := hex.DecodeString(rec.BitcoinTxHex)
	if err != nil {
		return nil, err
	}
	msgTx := wire.NewMsgTx(wire.TxVersion)
	if err := msgTx.Deserialize(bytes.NewReader(rawTx)); err != nil {
		return nil, fmt.Errorf("storage: deserialize bitcoin tx: %w", err)
	}

	tx := &txtypes.TokenTransaction{BitcoinTx: msgTx}
	switch rec.Kind {
	case txtypes.KindIssue:
		if rec.Issue == nil {
			return nil, fmt.Errorf("storage: tx record missing issue payload")
		}
		outs, err := decodeOutputProofs(rec.Issue.OutputProofs)
		if err != nil {
			return nil, err
		}
		ann, err := decodeChromaMetadataAnnouncement(rec.Issue.Announcement)
		if err != nil {
			return nil, err
		}
		tx.TxType = &txtypes.Issue{OutputProofs: outs, Announcement: ann}
	case txtypes.KindTransfer:
		if rec.Transfer == nil {
			return nil, fmt.Errorf("storage: tx record missing transfer payload")
		}
		ins := make([]txtypes.InputProof, len(rec.Transfer.InputProofs))
		for i, r := range rec.Transfer.InputProofs {
			hash, err := hashFromHex(r.PrevOutHash)
			if err != nil {
				return nil, err
			}
			b, err := hex.DecodeString(r.ProofHex)
			if err != nil {
				return nil, err
			}
			proof, err := pixel.Decode(b)
			if err != nil {
				return nil, fmt.Errorf("storage: decode input proof %d: %w", i, err)
			}
			ins[i] = txtypes.InputProof{
				PrevOut: wire.OutPoint{Hash: hash, Index: r.PrevOutIndex},
				Proof:   proof,
			}
		}
		outs, err := decodeOutputProofs(rec.Transfer.OutputProofs)
		if err != nil {
			return nil, err
		}
		tx.TxType = &txtypes.Transfer{InputProofs: ins, OutputProofs: outs}
	case txtypes.KindAnnouncement:
		if rec.Announcement == nil {
			return nil, fmt.Errorf("storage: tx record missing announcement payload")
		}
		ann, err := decodeAnnouncement(rec.Announcement)
		if err != nil {
			return nil, err
		}
		tx.TxType = ann
	default:
		return nil, fmt.Errorf("storage: unknown tx_type kind %d", rec.Kind)
	}

	return tx, nil
}
