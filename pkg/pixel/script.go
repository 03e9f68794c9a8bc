package pixel

import (
	"bytes"
	"crypto/sha256"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
)

// P2WPKHScript derives the native segwit v0 key-path scriptPubKey for a
// single tweaked key, used by the Sig and EmptyPixel proof variants.
func P2WPKHScript(tweaked *btcec.PublicKey) ([]byte, error) {
	hash := btcutil.Hash160(tweaked.SerializeCompressed())
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(hash).
		Script()
}

// P2WSHScript derives the native segwit v0 script-path scriptPubKey that
// wraps a witness script, used by the Multisig and Lightning variants.
func P2WSHScript(witnessScript []byte) ([]byte, error) {
	h := sha256.Sum256(witnessScript)
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_0).
		AddData(h[:]).
		Script()
}

// P2TRScript derives the taproot scriptPubKey for an x-only output key.
func P2TRScript(outputKey *btcec.PublicKey) ([]byte, error) {
	return txscript.NewScriptBuilder().
		AddOp(txscript.OP_1).
		AddData(schnorr.SerializePubKey(outputKey)).
		Script()
}

// MultisigRedeemScript builds the k-of-n OP_CHECKMULTISIG redeem script
// over the given tweaked public keys. The keys are sorted lexicographically
// so that a multiset of participants always yields the same script
// regardless of presentation order.
func MultisigRedeemScript(k uint8, tweakedKeys []*btcec.PublicKey) ([]byte, error) {
	sorted := make([][]byte, len(tweakedKeys))
	for i, key := range tweakedKeys {
		sorted[i] = key.SerializeCompressed()
	}
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i], sorted[j]) < 0
	})

	builder := txscript.NewScriptBuilder()
	builder.AddInt64(int64(k))
	for _, pk := range sorted {
		builder.AddData(pk)
	}
	builder.AddInt64(int64(len(sorted)))
	builder.AddOp(txscript.OP_CHECKMULTISIG)
	return builder.Script()
}
