package storage

import (
	"encoding/binary"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/yuvchain/yuvd/pkg/chroma"
)

// Key namespaces, one prefix per storage trait in spec.md §4.6, following
// the teacher's ledger.go fixed-prefix-plus-binary-suffix idiom
// (keySysBlockPrefix, systemBlockKey).
var (
	prefixAttachedTx      = []byte("tx:")
	prefixMempool         = []byte("mempool:")
	prefixMempoolByStatus = []byte("mempool_status:")
	prefixChroma          = []byte("chroma:")
	prefixFrozen          = []byte("frozen:")
	prefixPage            = []byte("page:")
	prefixPageTail        = []byte("page_tail:")
	keyRecentBlocks       = []byte("blocks:window")
)

func attachedTxKey(txid chainhash.Hash) []byte {
	return append(append([]byte(nil), prefixAttachedTx...), txid[:]...)
}

func mempoolKey(txid chainhash.Hash) []byte {
	return append(append([]byte(nil), prefixMempool...), txid[:]...)
}

// mempoolStatusKey builds the secondary index key used for
// status-indexed reads: mempool_status:<status byte><txid>.
func mempoolStatusKey(status byte, txid chainhash.Hash) []byte {
	out := append(append([]byte(nil), prefixMempoolByStatus...), status)
	return append(out, txid[:]...)
}

func mempoolStatusPrefix(status byte) []byte {
	return append(append([]byte(nil), prefixMempoolByStatus...), status)
}

func chromaKey(c chroma.Chroma) []byte {
	return append(append([]byte(nil), prefixChroma...), c[:]...)
}

func frozenKey(txid chainhash.Hash, vout uint32) []byte {
	out := append(append([]byte(nil), prefixFrozen...), txid[:]...)
	var v [4]byte
	binary.BigEndian.PutUint32(v[:], vout)
	return append(out, v[:]...)
}

func pageKey(c chroma.Chroma, page uint32) []byte {
	out := append(append([]byte(nil), prefixPage...), c[:]...)
	var p [4]byte
	binary.BigEndian.PutUint32(p[:], page)
	return append(out, p[:]...)
}

func pageTailKey(c chroma.Chroma) []byte {
	return append(append([]byte(nil), prefixPageTail...), c[:]...)
}
