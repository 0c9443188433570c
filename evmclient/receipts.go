package evmclient

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/zunokit/evm-nft-indexer/chain"
	"github.com/zunokit/evm-nft-indexer/shared/logging"
)

// GetBlockReceipts returns a transaction-index-keyed map of TxDetails for
// a block, preferring the bulk eth_getBlockReceipts call (spec.md §4.4).
// When the node reports "unsupported method" it falls back to a single
// eth_getBlockByNumber call with full transactions and recovers each
// sender from the transaction signature; it does not issue
// per-transaction eth_getTransactionByBlockNumberAndIndex calls. The
// fallback logs and skips a transaction whose sender cannot be recovered.
func (c *Client) GetBlockReceipts(ctx context.Context, number uint64) (map[uint64]chain.TxDetails, error) {
	receipts, err := c.getBlockReceiptsBulk(ctx, number)
	if err == nil {
		return receipts, nil
	}
	if !isUnsupportedMethod(err) {
		return nil, err
	}
	return c.getBlockReceiptsFallback(ctx, number)
}

func (c *Client) getBlockReceiptsBulk(ctx context.Context, number uint64) (map[uint64]chain.TxDetails, error) {
	var raw []struct {
		TransactionHash  common.Hash     `json:"transactionHash"`
		TransactionIndex hexUint64       `json:"transactionIndex"`
		From             common.Address  `json:"from"`
		To               *common.Address `json:"to"`
	}

	err := c.call(ctx, "eth_getBlockReceipts", func(ctx context.Context) error {
		return c.rpc.CallContext(ctx, &raw, "eth_getBlockReceipts", blockNumberArg(number))
	})
	if err != nil {
		return nil, err
	}

	out := make(map[uint64]chain.TxDetails, len(raw))
	for _, r := range raw {
		var digest chain.Digest
		copy(digest[:], r.TransactionHash.Bytes())

		var from chain.Address
		copy(from[:], r.From.Bytes())

		var to *chain.Address
		if r.To != nil {
			var addr chain.Address
			copy(addr[:], r.To.Bytes())
			to = &addr
		}

		out[uint64(r.TransactionIndex)] = chain.TxDetails{Hash: digest, From: from, To: to}
	}
	return out, nil
}

func (c *Client) getBlockReceiptsFallback(ctx context.Context, number uint64) (map[uint64]chain.TxDetails, error) {
	block, err := c.eth.BlockByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return nil, fmt.Errorf("evmclient: fallback get block %d: %w", number, err)
	}

	out := make(map[uint64]chain.TxDetails, len(block.Transactions()))
	for i, tx := range block.Transactions() {
		sender, err := txSender(tx)
		if err != nil {
			// Log-and-skip: the fallback must tolerate a transaction that
			// cannot be resolved rather than aborting the whole block.
			logging.Default().WithError(err).WithField("block", number).WithField("tx_index", i).Warn("receipts fallback: skipping transaction with unrecoverable sender")
			continue
		}

		var digest chain.Digest
		copy(digest[:], tx.Hash().Bytes())

		var from chain.Address
		copy(from[:], sender.Bytes())

		var to *chain.Address
		if tx.To() != nil {
			var addr chain.Address
			copy(addr[:], tx.To().Bytes())
			to = &addr
		}

		out[uint64(i)] = chain.TxDetails{Hash: digest, From: from, To: to}
	}
	return out, nil
}

func isUnsupportedMethod(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unsupported method") || strings.Contains(msg, "method not found") || strings.Contains(msg, "method not supported")
}

// hexUint64 decodes a JSON-RPC quantity field ("0x..") into a uint64.
type hexUint64 uint64

func (h *hexUint64) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		*h = 0
		return nil
	}
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return fmt.Errorf("evmclient: invalid hex quantity %q", string(data))
	}
	*h = hexUint64(v.Uint64())
	return nil
}

func blockNumberArg(number uint64) string {
	return fmt.Sprintf("0x%x", number)
}

// Uris holds on-chain tokenURI and contract-detail fan-out results
// (spec.md §4.4's get_uris_and_contract_details).
type Uris struct {
	TokenURIs       map[chain.NftId]string
	ContractDetails map[chain.Address]ContractDetails
}

// ContractDetails pairs optional name/symbol for a contract address.
type ContractDetails struct {
	Name   *string
	Symbol *string
}

// GetUrisAndContractDetails fans out tokenURI calls for tokens and
// name/symbol calls for contracts concurrently.
func (c *Client) GetUrisAndContractDetails(ctx context.Context, tokens []chain.NftId, contracts []chain.Address) (*Uris, error) {
	result := &Uris{
		TokenURIs:       make(map[chain.NftId]string),
		ContractDetails: make(map[chain.Address]ContractDetails),
	}
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, id := range tokens {
		wg.Add(1)
		go func(id chain.NftId) {
			defer wg.Done()
			uri, err := c.GetErc721URI(ctx, id)
			if err != nil {
				// Optional enrichment: a token URI failure leaves the
				// field absent rather than aborting the page (spec.md §4.6).
				return
			}
			mu.Lock()
			result.TokenURIs[id] = uri
			mu.Unlock()
		}(id)
	}

	for _, addr := range contracts {
		wg.Add(1)
		go func(addr chain.Address) {
			defer wg.Done()
			name, _ := c.GetName(ctx, addr)
			symbol, _ := c.GetSymbol(ctx, addr)
			if name == nil && symbol == nil {
				return
			}
			mu.Lock()
			result.ContractDetails[addr] = ContractDetails{Name: name, Symbol: symbol}
			mu.Unlock()
		}(addr)
	}

	wg.Wait()
	return result, nil
}
