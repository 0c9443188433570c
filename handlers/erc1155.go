package handlers

import (
	"context"
	"fmt"
	"math/big"

	"github.com/zunokit/evm-nft-indexer/chain"
)

// handleErc1155TransferSingle implements spec.md §4.5.4.
func (d *Dispatcher) handleErc1155TransferSingle(ctx context.Context, base chain.EventBase, m chain.Erc1155TransferSingleMeta) error {
	id := chain.NftId{Contract: base.Contract, TokenID: m.ID}
	return d.applyErc1155Transfer(ctx, base, id, m.From, m.To, m.Value.Big())
}

// handleErc1155TransferBatch implements spec.md §4.5.5: squash duplicate
// ids by summing values, then apply §4.5.4 semantics per element, all
// under the single shared EventBase. Squashing exists because two entries
// in one batch would otherwise race the idempotency check and cause the
// second to be dropped as a replay.
func (d *Dispatcher) handleErc1155TransferBatch(ctx context.Context, base chain.EventBase, m chain.Erc1155TransferBatchMeta) error {
	squashed := m.Squash()
	for i, id := range squashed.IDs {
		nftID := chain.NftId{Contract: base.Contract, TokenID: id}
		if err := d.applyErc1155Transfer(ctx, base, nftID, squashed.From, squashed.To, squashed.Values[i].Big()); err != nil {
			return fmt.Errorf("erc1155 transfer batch element %s: %w", id.String(), err)
		}
	}
	return nil
}

// applyErc1155Transfer updates the Erc1155 total supply and the two
// owner balance rows affected by a single (id, value) transfer.
func (d *Dispatcher) applyErc1155Transfer(ctx context.Context, base chain.EventBase, id chain.NftId, from, to chain.Address, value *big.Int) error {
	token, err := d.cache.TakeErc1155(ctx, d.store, id, base, chain.TxDetails{From: from})
	if err != nil {
		return fmt.Errorf("erc1155 transfer: %w", err)
	}

	if isReplay(token.LastUpdateBlock, token.LastUpdateLogIndex, base) {
		d.warnReplay(id, base)
		d.cache.PutErc1155(token)
		return nil
	}

	if from.IsZero() {
		token.TotalSupply = token.TotalSupply.Add(value)
	}
	if to.IsZero() {
		token.TotalSupply = token.TotalSupply.Sub(value)
	}

	token.LastUpdateBlock = base.Block
	token.LastUpdateTxIndex = base.TxIndex
	token.LastUpdateLogIndex = base.LogIndex
	d.cache.PutErc1155(token)

	if !from.IsZero() {
		fromKey := chain.Erc1155OwnerKey{ID: id, Owner: from}
		fromOwner, err := d.cache.TakeErc1155Owner(ctx, d.store, fromKey)
		if err != nil {
			return fmt.Errorf("erc1155 owner %s: %w", fromKey.String(), err)
		}
		fromOwner.Balance = fromOwner.Balance.Sub(value)
		d.cache.PutErc1155Owner(fromOwner)
	}

	// The recipient balance is incremented regardless of zeroness: a
	// transfer to the zero address still books a balance row for the zero
	// address. That row only ever grows (the sender side above skips the
	// zero address); sender rows may go transiently negative and are
	// reconciled downstream, per spec.md §9.
	toKey := chain.Erc1155OwnerKey{ID: id, Owner: to}
	toOwner, err := d.cache.TakeErc1155Owner(ctx, d.store, toKey)
	if err != nil {
		return fmt.Errorf("erc1155 owner %s: %w", toKey.String(), err)
	}
	toOwner.Balance = toOwner.Balance.Add(value)
	d.cache.PutErc1155Owner(toOwner)

	return nil
}

// handleErc1155Uri implements spec.md §4.5.6.
func (d *Dispatcher) handleErc1155Uri(ctx context.Context, base chain.EventBase, m chain.Erc1155UriMeta) error {
	id := chain.NftId{Contract: base.Contract, TokenID: m.ID}

	token, err := d.cache.TakeErc1155(ctx, d.store, id, base, chain.TxDetails{})
	if err != nil {
		return fmt.Errorf("erc1155 uri: %w", err)
	}

	if isReplay(token.LastUpdateBlock, token.LastUpdateLogIndex, base) {
		d.warnReplay(id, base)
		d.cache.PutErc1155(token)
		return nil
	}

	uri := m.Value
	token.TokenURI = &uri

	token.LastUpdateBlock = base.Block
	token.LastUpdateTxIndex = base.TxIndex
	token.LastUpdateLogIndex = base.LogIndex

	d.cache.PutErc1155(token)
	return nil
}
