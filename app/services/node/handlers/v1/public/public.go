// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/ardanlabs/utxochain/business/sys/validate"
	"github.com/ardanlabs/utxochain/business/web/errs"
	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/network"
	"github.com/ardanlabs/utxochain/foundation/blockchain/state"
	"github.com/ardanlabs/utxochain/foundation/blockchain/utxo"
	"github.com/ardanlabs/utxochain/foundation/blockchain/wallet"
	"github.com/ardanlabs/utxochain/foundation/events"
	"github.com/ardanlabs/utxochain/foundation/nameservice"
	"github.com/ardanlabs/utxochain/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of node endpoints.
type Handlers struct {
	Log     *zap.SugaredLogger
	State   *state.State
	Net     *network.Server
	Wallets *wallet.Wallets
	NS      *nameservice.NameService
	WS      websocket.Upgrader
	Evts    *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	// Need this to handle CORS on the websocket.
	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	// This upgrades the HTTP connection to a websocket connection.
	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	// This provides a channel for receiving events from the blockchain.
	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	// Starting a ticker to send a ping message over the websocket.
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	// Block waiting to receive events and send them into the websocket.
	for {
		select {
		case msg, wd := <-ch:

			// If the channel is closed, release the websocket.
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// Status returns the current view of this node.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var peers []string
	for _, pr := range h.State.RetrieveKnownPeers() {
		peers = append(peers, pr.Host)
	}

	st := status{
		Host:         h.State.RetrieveHost(),
		MinerAddress: h.State.RetrieveMinerAddress(),
		Height:       h.State.Height(),
		LatestHash:   hex.EncodeToString(h.State.LatestHash()),
		Mempool:      h.State.QueryMempoolLength(),
		KnownPeers:   peers,
	}

	return web.Respond(ctx, w, st, http.StatusOK)
}

// Genesis returns the chain parameters.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.RetrieveGenesis(), http.StatusOK)
}

// Balance returns the sum of the unspent outputs owned by the address.
func (h Handlers) Balance(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	address := web.Param(r, "address")

	amount, err := h.State.Balance(address)
	if err != nil {
		if errors.Is(err, wallet.ErrInvalidAddress) {
			return errs.NewTrusted(err, http.StatusBadRequest)
		}
		return err
	}

	return web.Respond(ctx, w, balance{Address: address, Name: h.NS.Lookup(address), Balance: amount}, http.StatusOK)
}

// Blocks returns every block from the tip back to genesis.
func (h Handlers) Blocks(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	dbBlocks, err := h.State.Blocks()
	if err != nil {
		return err
	}

	blocks := make([]block, len(dbBlocks))
	for i, blk := range dbBlocks {
		if blocks[i], err = toBlock(blk, h.NS); err != nil {
			return err
		}
	}

	return web.Respond(ctx, w, blocks, http.StatusOK)
}

// QueryBlock returns the block with the hex encoded hash.
func (h Handlers) QueryBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	hash, err := hex.DecodeString(web.Param(r, "hash"))
	if err != nil {
		return errs.NewTrusted(fmt.Errorf("invalid block hash: %w", err), http.StatusBadRequest)
	}

	blk, err := h.State.QueryBlock(hash)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return errs.NewTrusted(err, http.StatusNotFound)
		}
		return err
	}

	v, err := toBlock(blk, h.NS)
	if err != nil {
		return err
	}

	return web.Respond(ctx, w, v, http.StatusOK)
}

// TxProof returns the merkle path of a transaction inside a block.
func (h Handlers) TxProof(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	hash, err := hex.DecodeString(web.Param(r, "hash"))
	if err != nil {
		return errs.NewTrusted(fmt.Errorf("invalid block hash: %w", err), http.StatusBadRequest)
	}

	blk, err := h.State.QueryBlock(hash)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return errs.NewTrusted(err, http.StatusNotFound)
		}
		return err
	}

	txID := web.Param(r, "txid")
	for _, t := range blk.Transactions {
		if t.IDHex() != txID {
			continue
		}

		v, err := toTxProof(blk, t)
		if err != nil {
			return err
		}

		return web.Respond(ctx, w, v, http.StatusOK)
	}

	return errs.NewTrusted(fmt.Errorf("tx[%s] block[%x]: %w", txID, hash, database.ErrNotFound), http.StatusNotFound)
}

// UTXOs returns the unspent output index. With source=chain the outputs
// are computed by walking the chain instead.
func (h Handlers) UTXOs(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var records map[string]database.TxOutputs
	var err error

	switch source := r.URL.Query().Get("source"); source {
	case "", "index":
		records, err = h.State.QueryUTXOIndex()
	case "chain":
		records, err = h.State.FindUTXOs(ctx)
	default:
		return errs.NewTrusted(fmt.Errorf("unknown source %q", source), http.StatusBadRequest)
	}
	if err != nil {
		return err
	}

	list := make([]utxoRecord, 0, len(records))
	for txID, outs := range records {
		u := utxoRecord{TxID: txID}
		for idx, out := range outs.Outputs {
			u.Outputs = append(u.Outputs, toOutput(idx, out, h.NS))
		}
		sort.Slice(u.Outputs, func(i, j int) bool { return u.Outputs[i].Index < u.Outputs[j].Index })
		list = append(list, u)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].TxID < list[j].TxID })

	return web.Respond(ctx, w, list, http.StatusOK)
}

// Mempool returns the set of transactions waiting to be mined.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	mempool := h.State.RetrieveMempool()

	trans := make([]tx, len(mempool))
	for i, t := range mempool {
		trans[i] = toTx(t, h.NS)
	}

	return web.Respond(ctx, w, trans, http.StatusOK)
}

// SendTransaction builds a transaction signed by a wallet held by this node,
// adds it to the mempool and announces it to the known peers.
func (h Handlers) SendTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var req SendRequest
	if err := web.Decode(r, &req); err != nil {
		return errs.NewTrusted(fmt.Errorf("unable to decode payload: %w", err), http.StatusBadRequest)
	}

	if err := validate.Check(req); err != nil {
		return err
	}

	from, err := h.Wallets.Lookup(req.From)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	h.Log.Infow("send tran", "traceid", v.TraceID, "from", req.From, "to", req.To, "amount", req.Amount)

	newTx, err := h.State.NewTransaction(from, req.To, req.Amount)
	if err != nil {
		if errors.Is(err, utxo.ErrInsufficientFunds) {
			return errs.NewTrusted(err, http.StatusBadRequest)
		}
		return err
	}

	if err := h.State.UpsertNodeTransaction(newTx); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if h.Net != nil {
		h.Net.BroadcastTx(newTx.ID)
	}

	resp := sendResponse{
		Status: "transaction added to mempool",
		TxID:   newTx.IDHex(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}
