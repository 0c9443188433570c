package evmclient

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// txSender recovers a transaction's sender from its signature, used by
// the receipts fallback (spec.md §4.4), which reads full transactions from
// the block and has no receipt "from" field to consult.
func txSender(tx *types.Transaction) (common.Address, error) {
	signer := types.LatestSignerForChainID(tx.ChainId())
	return types.Sender(signer, tx)
}
