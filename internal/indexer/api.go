package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Klingon-tech/utxowallet/internal/log"
	"github.com/Klingon-tech/utxowallet/internal/wallet"
	"github.com/Klingon-tech/utxowallet/pkg/tx"
	"github.com/Klingon-tech/utxowallet/pkg/units"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/sony/gobreaker"
)

// balanceResponse amounts are BTC decimal strings.
type balanceResponse struct {
	Incoming        string `json:"incoming"`
	Outgoing        string `json:"outgoing"`
	IncomingPending string `json:"incomingPending"`
	OutgoingPending string `json:"outgoingPending"`
}

type utxoResponse struct {
	Chain         string      `json:"chain"`
	Address       string      `json:"address"`
	TxHash        string      `json:"txHash"`
	Index         uint32      `json:"index"`
	Value         json.Number `json:"value"`
	ValueAsString string      `json:"valueAsString"`
}

type broadcastRequest struct {
	TxData string `json:"txData"`
}

type broadcastResponse struct {
	TxID   string `json:"txId"`
	Failed bool   `json:"failed"`
}

// Balance returns the confirmed and pending totals of addr.
func (c *Client) Balance(ctx context.Context, addr string) (*wallet.Balance, error) {
	if _, err := c.decodeAddress(addr); err != nil {
		return nil, err
	}
	var resp balanceResponse
	path := fmt.Sprintf("/v3/%s/address/balance/%s", c.cfg.ChainPath, url.PathEscape(addr))
	if err := c.doGet(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}

	var (
		bal wallet.Balance
		err error
	)
	fields := []struct {
		dst *btcutil.Amount
		src string
	}{
		{&bal.Incoming, resp.Incoming},
		{&bal.Outgoing, resp.Outgoing},
		{&bal.IncomingPending, resp.IncomingPending},
		{&bal.OutgoingPending, resp.OutgoingPending},
	}
	for _, f := range fields {
		if *f.dst, err = parseBTCField(f.src); err != nil {
			return nil, fmt.Errorf("%w: balance: %v", ErrMalformedResponse, err)
		}
	}
	return &bal, nil
}

// SelectUTXOs asks the indexer for unspent outputs of addr worth at least
// minTotal. No UTXOs yet is reported as (nil, nil), never as an error.
func (c *Client) SelectUTXOs(ctx context.Context, addr string, minTotal btcutil.Amount) ([]wallet.UTXO, error) {
	if _, err := c.decodeAddress(addr); err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("chain", c.cfg.ChainSelector)
	q.Set("address", addr)
	q.Set("totalValue", units.ToDecimal(minTotal).String())

	var resp []utxoResponse
	if err := c.doGet(ctx, "/v4/data/utxos?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("select utxos: %w", err)
	}
	if len(resp) == 0 {
		return nil, nil
	}

	utxos := make([]wallet.UTXO, 0, len(resp))
	for i, r := range resp {
		u, err := c.toUTXO(r, addr)
		if err != nil {
			return nil, fmt.Errorf("%w: utxo %d: %v", ErrMalformedResponse, i, err)
		}
		utxos = append(utxos, u)
	}
	log.Indexer.Debug().
		Str("address", addr).
		Int("count", len(utxos)).
		Str("total", units.FormatBTC(wallet.TotalValue(utxos))).
		Msg("UTXOs selected")
	return utxos, nil
}

func (c *Client) toUTXO(r utxoResponse, requested string) (wallet.UTXO, error) {
	hash, err := chainhash.NewHashFromStr(r.TxHash)
	if err != nil {
		return wallet.UTXO{}, fmt.Errorf("tx hash %q: %v", r.TxHash, err)
	}
	raw := r.ValueAsString
	if raw == "" {
		raw = r.Value.String()
	}
	value, err := units.ParseBTC(raw)
	if err != nil {
		return wallet.UTXO{}, fmt.Errorf("value %q: %v", raw, err)
	}
	if value <= 0 {
		return wallet.UTXO{}, fmt.Errorf("value %q is not positive", raw)
	}

	owner := r.Address
	if owner == "" {
		owner = requested
	}
	addr, err := c.decodeAddress(owner)
	if err != nil {
		return wallet.UTXO{}, err
	}
	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return wallet.UTXO{}, fmt.Errorf("script for %s: %v", owner, err)
	}
	return wallet.UTXO{
		Outpoint: wire.OutPoint{Hash: *hash, Index: r.Index},
		Value:    value,
		Address:  owner,
		PkScript: script,
	}, nil
}

// Broadcast relays a signed transaction and returns its hash. It is never
// retried: a rejection would repeat, and a lost response is resolved by
// looking the txid up rather than by resubmitting.
func (c *Client) Broadcast(ctx context.Context, signed *tx.SignedTx) (chainhash.Hash, error) {
	body, err := json.Marshal(broadcastRequest{TxData: signed.Hex()})
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("marshal broadcast: %w", err)
	}
	want := signed.TxID()

	resp, err := c.attempt(ctx, http.MethodPost, fmt.Sprintf("/v3/%s/broadcast", c.cfg.ChainPath), body)
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests),
		errors.Is(err, ErrClientClosed):
		return chainhash.Hash{}, fmt.Errorf("broadcast %s: %w: %w", want, ErrNotSent, err)
	case resp == nil || resp.status >= http.StatusInternalServerError:
		// The transaction may or may not have been relayed.
		return chainhash.Hash{}, fmt.Errorf("broadcast %s: outcome unknown: %w", want, err)
	case resp.status == http.StatusTooManyRequests:
		apiErr := &APIError{StatusCode: resp.status, Message: errorMessage(resp.body)}
		return chainhash.Hash{}, fmt.Errorf("broadcast %s: %w: %w", want, ErrNotSent, apiErr)
	}
	if resp.status < 200 || resp.status >= 300 {
		return chainhash.Hash{}, &BroadcastError{StatusCode: resp.status, Detail: errorMessage(resp.body)}
	}

	var out broadcastResponse
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return chainhash.Hash{}, &BroadcastError{StatusCode: resp.status, Detail: fmt.Sprintf("unreadable response: %s", strings.TrimSpace(string(resp.body)))}
	}
	if out.Failed {
		return chainhash.Hash{}, &BroadcastError{StatusCode: resp.status, Detail: errorMessage(resp.body)}
	}
	got, err := chainhash.NewHashFromStr(out.TxID)
	if err != nil || *got != want {
		return chainhash.Hash{}, &BroadcastError{
			StatusCode: resp.status,
			Detail:     fmt.Sprintf("indexer reported txid %q, expected %s", out.TxID, want),
		}
	}

	log.Indexer.Info().Str("txid", want.String()).Int("vsize", signed.VirtualSize()).Msg("Transaction broadcast")
	return want, nil
}

func (c *Client) decodeAddress(s string) (btcutil.Address, error) {
	addr, err := btcutil.DecodeAddress(s, c.params)
	if err != nil {
		return nil, fmt.Errorf("decode address %q: %w", s, err)
	}
	if !addr.IsForNet(c.params) {
		return nil, fmt.Errorf("address %q is not for network %s", s, c.params.Name)
	}
	return addr, nil
}

// parseBTCField parses a BTC amount; an absent field counts as zero.
func parseBTCField(s string) (btcutil.Amount, error) {
	if s == "" {
		return 0, nil
	}
	return units.ParseBTC(s)
}
