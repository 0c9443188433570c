package handlers

import (
	"context"
	"fmt"

	"github.com/zunokit/evm-nft-indexer/chain"
)

// handleErc721Transfer implements spec.md §4.5.1. from=0 is a mint (the
// entity was just initialized by TakeNft, so mint_* is already correct);
// to=0 is a burn.
func (d *Dispatcher) handleErc721Transfer(ctx context.Context, base chain.EventBase, m chain.Erc721TransferMeta, tx chain.TxDetails) error {
	id := chain.NftId{Contract: base.Contract, TokenID: m.TokenID}

	nft, err := d.cache.TakeNft(ctx, d.store, id, base, tx)
	if err != nil {
		return fmt.Errorf("erc721 transfer: %w", err)
	}

	if isReplay(nft.LastUpdateBlock, nft.LastUpdateLogIndex, base) {
		d.warnReplay(id, base)
		d.cache.PutNft(nft)
		return nil
	}

	nft.Owner = m.To
	if m.To.IsZero() {
		block, txIndex := base.Block, base.TxIndex
		nft.BurnBlock = &block
		nft.BurnTxIndex = &txIndex
	} else {
		nft.BurnBlock = nil
		nft.BurnTxIndex = nil
	}
	nft.LastTransferBlock = base.Block
	nft.LastTransferTxIndex = base.TxIndex
	nft.Approved = nil

	nft.LastUpdateBlock = base.Block
	nft.LastUpdateTxIndex = base.TxIndex
	nft.LastUpdateLogIndex = base.LogIndex

	d.cache.PutNft(nft)
	return nil
}

// handleErc721Approval implements spec.md §4.5.2. An approval preceding
// any transfer initializes the NFT with a zero owner (spec.md §9 open
// question (b)); this design makes no special case for it.
func (d *Dispatcher) handleErc721Approval(ctx context.Context, base chain.EventBase, m chain.Erc721ApprovalMeta, tx chain.TxDetails) error {
	id := chain.NftId{Contract: base.Contract, TokenID: m.TokenID}

	nft, err := d.cache.TakeNft(ctx, d.store, id, base, tx)
	if err != nil {
		return fmt.Errorf("erc721 approval: %w", err)
	}

	if isReplay(nft.LastUpdateBlock, nft.LastUpdateLogIndex, base) {
		d.warnReplay(id, base)
		d.cache.PutNft(nft)
		return nil
	}

	if m.Approved.IsZero() {
		nft.Approved = nil
	} else {
		approved := m.Approved
		nft.Approved = &approved
	}

	nft.LastUpdateBlock = base.Block
	nft.LastUpdateTxIndex = base.TxIndex
	nft.LastUpdateLogIndex = base.LogIndex

	d.cache.PutNft(nft)
	return nil
}
