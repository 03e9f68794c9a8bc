// Package wire implements the OP_RETURN announcement codec: encoding a
// chroma-metadata, freeze, or transfer-ownership announcement into a
// Bitcoin OP_RETURN output, and parsing it back out.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/yuvchain/yuvd/pkg/chroma"
	"github.com/yuvchain/yuvd/pkg/txtypes"
)

// magicBytes is the fixed 3-byte "yuv" tag that opens every announcement
// payload, in the tradition of colored-coin OP_RETURN magic bytes.
var magicBytes = []byte{'y', 'u', 'v'}

// EncodeAnnouncement builds the OP_RETURN script carrying the given
// announcement.
func EncodeAnnouncement(a *txtypes.Announcement) ([]byte, error) {
	var body []byte
	switch a.Variant {
	case txtypes.AnnouncementChromaMetadata:
		if a.ChromaMetadata == nil {
			return nil, errMissingPayload
		}
		body = encodeChromaMetadata(a.ChromaMetadata)
	case txtypes.AnnouncementFreeze:
		if a.Freeze == nil {
			return nil, errMissingPayload
		}
		body = encodeFreeze(a.Freeze)
	case txtypes.AnnouncementTransferOwnership:
		if a.TransferOwnership == nil {
			return nil, errMissingPayload
		}
		body = encodeTransferOwnership(a.TransferOwnership)
	default:
		return nil, fmt.Errorf("wire: unsupported announcement variant %d", a.Variant)
	}

	payload := make([]byte, 0, len(magicBytes)+1+len(body))
	payload = append(payload, magicBytes...)
	payload = append(payload, byte(a.Variant))
	payload = append(payload, body...)

	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_RETURN).
		AddData(payload).
		Script()
}

// DecodeAnnouncement parses an OP_RETURN output's pkScript back into an
// Announcement. At most one announcement is permitted per transaction;
// callers are responsible for that per-transaction check.
func DecodeAnnouncement(pkScript []byte) (*txtypes.Announcement, error) {
	payload, err := extractOpReturnData(pkScript)
	if err != nil {
		return nil, err
	}
	if len(payload) < len(magicBytes)+1 {
		return nil, errMalformedPayload
	}
	if string(payload[:len(magicBytes)]) != string(magicBytes) {
		return nil, errBadMagic
	}

	variant := txtypes.AnnouncementVariant(payload[len(magicBytes)])
	body := payload[len(magicBytes)+1:]

	switch variant {
	case txtypes.AnnouncementChromaMetadata:
		meta, err := decodeChromaMetadata(body)
		if err != nil {
			return nil, err
		}
		return &txtypes.Announcement{Variant: variant, ChromaMetadata: meta}, nil
	case txtypes.AnnouncementFreeze:
		freeze, err := decodeFreeze(body)
		if err != nil {
			return nil, err
		}
		return &txtypes.Announcement{Variant: variant, Freeze: freeze}, nil
	case txtypes.AnnouncementTransferOwnership:
		xfer, err := decodeTransferOwnership(body)
		if err != nil {
			return nil, err
		}
		return &txtypes.Announcement{Variant: variant, TransferOwnership: xfer}, nil
	default:
		return nil, fmt.Errorf("wire: unsupported announcement variant %d", variant)
	}
}

// extractOpReturnData validates that pkScript is an OP_RETURN script and
// returns the single pushed data blob.
func extractOpReturnData(pkScript []byte) ([]byte, error) {
	tokenizer := txscript.MakeScriptTokenizer(0, pkScript)
	if !tokenizer.Next() || tokenizer.Opcode() != txscript.OP_RETURN {
		return nil, errNotOpReturn
	}
	if !tokenizer.Next() {
		return nil, errMalformedPayload
	}
	return tokenizer.Data(), tokenizer.Err()
}

// Chroma-metadata: chroma(32) || len(1) name(len) || len(1) symbol(len) ||
// decimals(1) || max_supply(8 be) || is_freezable(1).
func encodeChromaMetadata(m *txtypes.ChromaMetadataAnnouncement) []byte {
	out := make([]byte, 0, 32+1+len(m.Name)+1+len(m.Symbol)+1+8+1)
	out = append(out, m.Chroma[:]...)
	out = append(out, byte(len(m.Name)))
	out = append(out, m.Name...)
	out = append(out, byte(len(m.Symbol)))
	out = append(out, m.Symbol...)
	out = append(out, m.Decimals)
	var maxSupply [8]byte
	binary.BigEndian.PutUint64(maxSupply[:], m.MaxSupply)
	out = append(out, maxSupply[:]...)
	if m.Freezable {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	return out
}

func decodeChromaMetadata(b []byte) (*txtypes.ChromaMetadataAnnouncement, error) {
	if len(b) < 33 {
		return nil, errMalformedPayload
	}
	var c chroma.Chroma
	copy(c[:], b[0:32])
	offset := 32

	nameLen := int(b[offset])
	offset++
	if len(b) < offset+nameLen {
		return nil, errMalformedPayload
	}
	name := string(b[offset : offset+nameLen])
	offset += nameLen

	if len(b) < offset+1 {
		return nil, errMalformedPayload
	}
	symbolLen := int(b[offset])
	offset++
	if len(b) < offset+symbolLen {
		return nil, errMalformedPayload
	}
	symbol := string(b[offset : offset+symbolLen])
	offset += symbolLen

	if len(b) < offset+1+8+1 {
		return nil, errMalformedPayload
	}
	decimals := b[offset]
	offset++
	maxSupply := binary.BigEndian.Uint64(b[offset : offset+8])
	offset += 8
	freezable := b[offset] != 0

	return &txtypes.ChromaMetadataAnnouncement{
		Chroma:    c,
		Name:      name,
		Symbol:    symbol,
		Decimals:  decimals,
		MaxSupply: maxSupply,
		Freezable: freezable,
	}, nil
}

// Freeze: chroma(32) || target_txid(32) || vout(4 be).
func encodeFreeze(f *txtypes.FreezeAnnouncement) []byte {
	out := make([]byte, 0, 32+32+4)
	out = append(out, f.Chroma[:]...)
	out = append(out, f.TargetTxid[:]...)
	var vout [4]byte
	binary.BigEndian.PutUint32(vout[:], f.TargetVout)
	out = append(out, vout[:]...)
	return out
}

func decodeFreeze(b []byte) (*txtypes.FreezeAnnouncement, error) {
	if len(b) < 68 {
		return nil, errMalformedPayload
	}
	var c chroma.Chroma
	copy(c[:], b[0:32])
	var txid chainhash.Hash
	copy(txid[:], b[32:64])
	vout := binary.BigEndian.Uint32(b[64:68])
	return &txtypes.FreezeAnnouncement{Chroma: c, TargetTxid: txid, TargetVout: vout}, nil
}

// Transfer-ownership: chroma(32) || new_issuer_pubkey(33).
func encodeTransferOwnership(t *txtypes.TransferOwnershipAnnouncement) []byte {
	out := make([]byte, 0, 32+33)
	out = append(out, t.Chroma[:]...)
	out = append(out, t.NewIssuerKey...)
	return out
}

func decodeTransferOwnership(b []byte) (*txtypes.TransferOwnershipAnnouncement, error) {
	if len(b) < 65 {
		return nil, errMalformedPayload
	}
	var c chroma.Chroma
	copy(c[:], b[0:32])
	key := append([]byte(nil), b[32:65]...)
	return &txtypes.TransferOwnershipAnnouncement{Chroma: c, NewIssuerKey: key}, nil
}

// EncodeAnnouncementBody serializes just the variant-specific payload of a
// announcement, without the magic bytes or OP_RETURN wrapper. The storage
// layer does not use it.
func EncodeAnnouncementBody(a *txtypes.Announcement) ([]byte, error) {
	switch a.Variant {
	case txtypes.AnnouncementChromaMetadata:
		if a.ChromaMetadata == nil {
			return nil, errMissingPayload
		}
		return encodeChromaMetadata(a.ChromaMetadata), nil
	case txtypes.AnnouncementFreeze:
		if a.Freeze == nil {
			return nil, errMissingPayload
		}
		return encodeFreeze(a.Freeze), nil
	case txtypes.AnnouncementTransferOwnership:
		if a.TransferOwnership == nil {
			return nil, errMissingPayload
		}
		return encodeTransferOwnership(a.TransferOwnership), nil
	default:
		return nil, fmt.Errorf("wire: unsupported announcement variant %d", a.Variant)
	}
}

// DecodeAnnouncementBody is the inverse of EncodeAnnouncementBody.
func DecodeAnnouncementBody(variant txtypes.AnnouncementVariant, body []byte) (*txtypes.Announcement, error) {
	switch variant {
	case txtypes.AnnouncementChromaMetadata:
		meta, err := decodeChromaMetadata(body)
		if err != nil {
			return nil, err
		}
		return &txtypes.Announcement{Variant: variant, ChromaMetadata: meta}, nil
	case txtypes.AnnouncementFreeze:
		freeze, err := decodeFreeze(body)
		if err != nil {
			return nil, err
		}
		return &txtypes.Announcement{Variant: variant, Freeze: freeze}, nil
	case txtypes.AnnouncementTransferOwnership:
		xfer, err := decodeTransferOwnership(body)
		if err != nil {
			return nil, err
		}
		return &txtypes.Announcement{Variant: variant, TransferOwnership: xfer}, nil
	default:
		return nil, fmt.Errorf("wire: unsupported announcement variant %d", variant)
	}
}

// FindAnnouncementOutput returns the index of the single OP_RETURN output
// in tx carrying a "yuv" announcement, or -1 if none is present. It is an
// error for more than one such output to exist in a single transaction.
func FindAnnouncementOutput(tx *wire.MsgTx) (int, error) {
	found := -1
	for i, out := range tx.TxOut {
		if len(out.PkScript) == 0 || out.PkScript[0] != txscript.OP_RETURN {
			continue
		}
		payload, err := extractOpReturnData(out.PkScript)
		if err != nil || len(payload) < len(magicBytes) {
			continue
		}
		if string(payload[:len(magicBytes)]) != string(magicBytes) {
			continue
		}
		if found != -1 {
			return -1, errMultipleAnnouncements
		}
		found = i
	}
	return found, nil
}
