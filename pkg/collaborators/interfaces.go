// Package collaborators defines the small interfaces the core pipeline
// depends on for everything spec.md names out of scope: wallet signing,
// peer gossip, raw chain access, and range-proof verification. Each is
// narrow enough to mock independently, following the teacher's own
// pattern of abstracting external systems behind single-purpose
// interfaces (batch.AnchorCreator, batch.BlockInfoProvider).
package collaborators

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"github.com/yuvchain/yuvd/pkg/confirmation"
)

// WalletSigner is the wallet/coin-selection/PSBT-signing collaborator.
// The core never builds or signs Bitcoin transactions itself; it only
// validates and stores them. No component in this repository takes a
// WalletSigner: emulation runs the isolated checker on a transaction the
// caller has already built.
type WalletSigner interface {
	// SignPSBT signs every input the wallet controls in psbt and returns
	// the updated packet bytes.
	SignPSBT(ctx context.Context, psbt []byte) ([]byte, error)
	// SelectCoins returns a set of confirmed UTXOs sufficient to cover
	// amount plus fees at feeRateSatPerVByte.
	SelectCoins(ctx context.Context, amount int64, feeRateSatPerVByte int64) ([]wire.OutPoint, error)
}

// GossipNetwork is the peer-to-peer broadcast/request collaborator.
// The controller calls Broadcast to announce freshly admitted
// transactions. RequestParent has no caller in this repository: the
// attacher publishes parent requests on the event bus as KindGetData.
type GossipNetwork interface {
	// Broadcast announces txid as available to connected peers.
	Broadcast(ctx context.Context, txid chainhash.Hash) error
	// RequestParent asks peers for the full token transaction identified
	// by txid. The result, if any, re-enters the controller as if it had
	// arrived unsolicited.
	RequestParent(ctx context.Context, txid chainhash.Hash) error
}

// ChainClient is the raw Bitcoin RPC / block-polling collaborator. It
// satisfies confirmation.BlockInfoProvider directly so a ChainClient can
// be handed straight to confirmation.NewTracker, and additionally exposes
// lower-level reads. The attacher calls GetRawTransaction to recognise
// protocol-external issuance roots; BestBlockHash and IsUnspent have no
// caller in this repository.
type ChainClient interface {
	confirmation.BlockInfoProvider

	// BestBlockHash returns the chain tip as currently known to the
	// client.
	BestBlockHash(ctx context.Context) (chainhash.Hash, error)
	// GetRawTransaction fetches a confirmed Bitcoin transaction by txid,
	// used to resolve protocol-external issuance roots (outpoints that
	// are not themselves a prior token transaction).
	GetRawTransaction(ctx context.Context, txid chainhash.Hash) (*wire.MsgTx, error)
	// IsUnspent reports whether an outpoint is still present in the
	// UTXO set.
	IsUnspent(ctx context.Context, out wire.OutPoint) (bool, error)
}

// RangeProofVerifier is the commitment-library collaborator that verifies
// Bulletproof range proofs. The isolated checker only checks homomorphic
// commitment equality in-process (pkg/pixel.Commitment.Equal) and does
// not call this interface, so no range proof is verified anywhere in the
// pipeline.
type RangeProofVerifier interface {
	// VerifyRangeProof reports whether proof is a valid range proof for
	// the compressed-point-encoded commitment, under the fixed bit-width
	// the protocol uses for Luma.
	VerifyRangeProof(commitment []byte, proof []byte) (bool, error)
}
