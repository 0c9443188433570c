package handlers

import (
	"context"
	"fmt"

	"github.com/zunokit/evm-nft-indexer/chain"
)

// handleApprovalForAll implements spec.md §4.5.3: keyed by (contract,
// owner), updates operator/approved and idempotency bookkeeping.
func (d *Dispatcher) handleApprovalForAll(ctx context.Context, base chain.EventBase, m chain.ApprovalForAllMeta) error {
	key := chain.ApprovalForAllKey{Contract: base.Contract, Owner: m.Owner}

	a, err := d.cache.TakeApprovalForAll(ctx, d.store, key)
	if err != nil {
		return fmt.Errorf("approval for all: %w", err)
	}

	if isReplay(a.LastUpdateBlock, a.LastUpdateLogIndex, base) {
		d.warnReplay(key, base)
		d.cache.PutApprovalForAll(a)
		return nil
	}

	a.Operator = m.Operator
	a.Approved = m.Approved

	a.LastUpdateBlock = base.Block
	a.LastUpdateTxIndex = base.TxIndex
	a.LastUpdateLogIndex = base.LogIndex

	d.cache.PutApprovalForAll(a)
	return nil
}
