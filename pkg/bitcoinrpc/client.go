// Package bitcoinrpc adapts btcd's rpcclient to the collaborators.ChainClient
// and confirmation.BlockInfoProvider interfaces, the only concrete chain
// access the node ships with. It follows the RPC-client-wrapper idiom
// common across the btcsuite ecosystem (see e.g. mainstay's AttestClient
// in the reference corpus): a struct embedding *rpcclient.Client plus
// chain params, translating btcjson verbose results into the pipeline's
// own types.
package bitcoinrpc

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"

	"github.com/yuvchain/yuvd/pkg/confirmation"
)

// Client wraps a connection to a Bitcoin Core-compatible JSON-RPC
// endpoint.
type Client struct {
	rpc    *rpcclient.Client
	params *chaincfg.Params
}

// Config names the RPC endpoint and credentials.
type Config struct {
	URL      string
	User     string
	Pass     string
	Params   *chaincfg.Params
	DisableTLS bool
}

// New dials the configured Bitcoin RPC endpoint.
func New(cfg Config) (*Client, error) {
	if cfg.Params == nil {
		cfg.Params = &chaincfg.MainNetParams
	}
	connCfg := &rpcclient.ConnConfig{
		Host:         cfg.URL,
		User:         cfg.User,
		Pass:         cfg.Pass,
		HTTPPostMode: true,
		DisableTLS:   cfg.DisableTLS,
	}
	rpc, err := rpcclient.New(connCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("bitcoinrpc: connect: %w", err)
	}
	return &Client{rpc: rpc, params: cfg.Params}, nil
}

// Shutdown closes the underlying RPC connection.
func (c *Client) Shutdown() { c.rpc.Shutdown() }

// BestBlockHash returns the chain tip.
func (c *Client) BestBlockHash(ctx context.Context) (chainhash.Hash, error) {
	hash, err := c.rpc.GetBestBlockHash()
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("bitcoinrpc: best block hash: %w", err)
	}
	return *hash, nil
}

// GetRawTransaction fetches a confirmed transaction by txid.
func (c *Client) GetRawTransaction(ctx context.Context, txid chainhash.Hash) (*wire.MsgTx, error) {
	tx, err := c.rpc.GetRawTransaction(&txid)
	if err != nil {
		return nil, fmt.Errorf("bitcoinrpc: get raw transaction %s: %w", txid, err)
	}
	return tx.MsgTx(), nil
}

// IsUnspent reports whether out is still present in the UTXO set.
func (c *Client) IsUnspent(ctx context.Context, out wire.OutPoint) (bool, error) {
	txOut, err := c.rpc.GetTxOut(&out.Hash, out.Index, true)
	if err != nil {
		return false, fmt.Errorf("bitcoinrpc: get txout %s:%d: %w", out.Hash, out.Index, err)
	}
	return txOut != nil, nil
}

// BlockByHeight fetches the block at height and translates it into the
// tracker's BlockInfo shape; a convenience wrapper, not part of
// BlockInfoProvider itself.
func (c *Client) BlockByHeight(height int64) (*confirmation.BlockInfo, error) {
	hash, err := c.rpc.GetBlockHash(height)
	if err != nil {
		return nil, fmt.Errorf("bitcoinrpc: block hash at %d: %w", height, err)
	}
	return c.blockInfo(hash)
}

// BlockByHash satisfies confirmation.BlockInfoProvider.
func (c *Client) BlockByHash(hash chainhash.Hash) (*confirmation.BlockInfo, error) {
	return c.blockInfo(&hash)
}

func (c *Client) blockInfo(hash *chainhash.Hash) (*confirmation.BlockInfo, error) {
	block, err := c.rpc.GetBlockVerbose(hash)
	if err != nil {
		return nil, fmt.Errorf("bitcoinrpc: get block %s: %w", hash, err)
	}
	var prevHash *chainhash.Hash
	if block.PreviousHash != "" {
		prevHash, err = chainhash.NewHashFromStr(block.PreviousHash)
		if err != nil {
			return nil, fmt.Errorf("bitcoinrpc: parse prev hash of %s: %w", hash, err)
		}
	}
	txids := make([]chainhash.Hash, 0, len(block.Tx))
	for _, txidStr := range block.Tx {
		txid, err := chainhash.NewHashFromStr(txidStr)
		if err != nil {
			return nil, fmt.Errorf("bitcoinrpc: parse txid in block %s: %w", hash, err)
		}
		txids = append(txids, *txid)
	}
	info := &confirmation.BlockInfo{
		Hash:   *hash,
		Height: block.Height,
		Txids:  txids,
	}
	if prevHash != nil {
		info.PrevHash = *prevHash
	}
	return info, nil
}
