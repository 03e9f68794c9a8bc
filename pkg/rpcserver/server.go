// Package rpcserver exposes the node's JSON-RPC surface over
// go-ethereum's rpc package: every method below is registered under the
// "yuv" namespace and named after the spec's lowercase-no-separator RPC
// method names (sendrawyuvtransaction, getrawyuvtransaction, ...). The
// teacher's HTTP handler layer (pkg/server/batch_handlers.go) used
// hand-rolled REST routes over encoding/json; this surface follows the
// same handler-struct idiom — one receiver, one method per verb, a
// thin translation layer between wire types and the controller — but
// speaks JSON-RPC 2.0 because that is what the interface names
// (sendrawyuvtransaction etc.) describe, not a REST path.
package rpcserver

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/yuvchain/yuvd/pkg/controller"
	"github.com/yuvchain/yuvd/pkg/storage"
	"github.com/yuvchain/yuvd/pkg/txtypes"
)

// TxStatusReply is getrawyuvtransaction's response shape.
type TxStatusReply struct {
	Status string `json:"status"`
	Hex    string `json:"hex,omitempty"`
}

// EmulateReply is emulateyuvtransaction's response shape.
type EmulateReply struct {
	Valid  bool   `json:"valid"`
	Class  string `json:"class,omitempty"`
	Reason string `json:"reason,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// FrozenReply is isyuvtxoutfrozen's response shape.
type FrozenReply struct {
	Frozen bool `json:"frozen"`
}

// API implements every exported method as one JSON-RPC call. Methods
// are exported so rpc.Server.RegisterName can reflect them. The wire
// name is the "yuv" namespace plus the Go method name with only its first
// letter lowercased (e.g. "yuv_sendRawYuvTransaction"); the all-lowercase
// names in the doc comments are not registered.
type API struct {
	ctrl *controller.Controller
}

// NewAPI builds the RPC-facing wrapper around ctrl.
func NewAPI(ctrl *controller.Controller) *API {
	return &API{ctrl: ctrl}
}

// SendRawYuvTransaction implements sendrawyuvtransaction: decodes a
// hex-encoded token transaction and admits it to the mempool.
func (a *API) SendRawYuvTransaction(ctx context.Context, hexTx string) (string, error) {
	tx, err := decodeHexTx(hexTx)
	if err != nil {
		return "", err
	}
	if err := a.ctrl.SubmitTransaction(tx); err != nil {
		return "", err
	}
	return tx.Txid().String(), nil
}

// ProvideYuvProof implements provideyuvproof: a parent transaction that
// a peer requested arrives out of band; it is fed back through the same
// submission path as any freshly observed transaction.
func (a *API) ProvideYuvProof(ctx context.Context, hexTx string) error {
	tx, err := decodeHexTx(hexTx)
	if err != nil {
		return err
	}
	return a.ctrl.ReceiveParent(tx)
}

// ProvideListYuvProofs implements providelistyuvproofs: a batch form of
// ProvideYuvProof for peers that gossip many parents at once.
func (a *API) ProvideListYuvProofs(ctx context.Context, hexTxs []string) error {
	for _, hexTx := range hexTxs {
		if err := a.ProvideYuvProof(ctx, hexTx); err != nil {
			return err
		}
	}
	return nil
}

// GetRawYuvTransaction implements getrawyuvtransaction: reports a
// transaction's lifecycle status and, when known, its hex body.
func (a *API) GetRawYuvTransaction(ctx context.Context, txidHex string) (*TxStatusReply, error) {
	txid, err := parseTxid(txidHex)
	if err != nil {
		return nil, err
	}
	status, tx, err := a.ctrl.TxStatus(txid)
	if err != nil {
		return nil, err
	}
	reply := &TxStatusReply{Status: string(status)}
	if tx != nil {
		body, err := storage.EncodeTokenTx(tx)
		if err != nil {
			return nil, err
		}
		reply.Hex = hex.EncodeToString(body)
	}
	return reply, nil
}

// GetListRawYuvTransactions implements getlistrawyuvtransactions: the
// plural form of GetRawYuvTransaction, skipping any txid not found
// anywhere rather than failing the whole batch.
func (a *API) GetListRawYuvTransactions(ctx context.Context, txidHexes []string) ([]TxStatusReply, error) {
	out := make([]TxStatusReply, 0, len(txidHexes))
	for _, h := range txidHexes {
		reply, err := a.GetRawYuvTransaction(ctx, h)
		if err != nil || reply.Status == string(controller.StatusNone) {
			continue
		}
		out = append(out, *reply)
	}
	return out, nil
}

// ListYuvTransactions implements listyuvtransactions: pages over every
// attached transaction in insertion order.
func (a *API) ListYuvTransactions(ctx context.Context, page uint32) ([]string, error) {
	txs, err := a.ctrl.ListPage(page)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(txs))
	for _, tx := range txs {
		body, err := storage.EncodeTokenTx(tx)
		if err != nil {
			return nil, err
		}
		out = append(out, hex.EncodeToString(body))
	}
	return out, nil
}

// IsYuvTxOutFrozen implements isyuvtxoutfrozen.
func (a *API) IsYuvTxOutFrozen(ctx context.Context, txidHex string, vout uint32) (*FrozenReply, error) {
	txid, err := parseTxid(txidHex)
	if err != nil {
		return nil, err
	}
	frozen, err := a.ctrl.IsOutputFrozen(txid, vout)
	if err != nil {
		return nil, err
	}
	return &FrozenReply{Frozen: frozen}, nil
}

// EmulateYuvTransaction implements emulateyuvtransaction: runs the
// isolated checker against hexTx without admitting it anywhere.
func (a *API) EmulateYuvTransaction(ctx context.Context, hexTx string) (*EmulateReply, error) {
	tx, err := decodeHexTx(hexTx)
	if err != nil {
		return nil, err
	}
	if checkErr := a.ctrl.Emulate(tx); checkErr != nil {
		return &EmulateReply{
			Valid:  false,
			Class:  string(checkErr.Class),
			Reason: string(checkErr.Reason),
			Detail: checkErr.Detail,
		}, nil
	}
	return &EmulateReply{Valid: true}, nil
}

func decodeHexTx(hexTx string) (*txtypes.TokenTransaction, error) {
	raw, err := hex.DecodeString(hexTx)
	if err != nil {
		return nil, fmt.Errorf("rpcserver: invalid hex: %w", err)
	}
	return storage.DecodeTokenTx(raw)
}

func parseTxid(s string) (chainhash.Hash, error) {
	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("rpcserver: invalid txid: %w", err)
	}
	return *h, nil
}

// Server owns the rpc.Server instance and the HTTP handler wrapping it.
type Server struct {
	rpcSrv *rpc.Server
	addr   string
}

// New registers api under the "yuv" namespace and binds an HTTP handler
// for addr without starting to listen yet.
func New(addr string, api *API) (*Server, error) {
	rpcSrv := rpc.NewServer()
	if err := rpcSrv.RegisterName("yuv", api); err != nil {
		return nil, fmt.Errorf("rpcserver: register: %w", err)
	}
	return &Server{rpcSrv: rpcSrv, addr: addr}, nil
}

// ListenAndServe blocks serving JSON-RPC over HTTP until ctx is done or
// the listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/", s.rpcSrv)

	httpSrv := &http.Server{Addr: s.addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return httpSrv.Close()
	case err := <-errCh:
		return err
	}
}
