// Package cache implements the update cache (C4): an in-memory
// write-through buffer that is the single writer of entity state during a
// page. Handlers take exclusive temporary custody of an entity via
// remove-modify-reinsert; this encodes the invariant that at most one
// handler mutates a given key at a time (spec.md §4.3).
package cache

import (
	"context"
	"fmt"

	"github.com/zunokit/evm-nft-indexer/chain"
)

// Store is the subset of the data store (C3) the cache needs to flush
// itself and to fall through to on cache misses.
type Store interface {
	LoadNft(ctx context.Context, id chain.NftId) (*chain.Nft, error)
	LoadErc1155(ctx context.Context, id chain.NftId) (*chain.Erc1155, error)
	LoadErc1155Owner(ctx context.Context, key chain.Erc1155OwnerKey) (*chain.Erc1155Owner, error)
	LoadApprovalForAll(ctx context.Context, key chain.ApprovalForAllKey) (*chain.ApprovalForAll, error)
	LoadContract(ctx context.Context, addr chain.Address) (*chain.TokenContract, error)

	SaveBlocks(ctx context.Context, blocks []chain.Block) error
	SaveTransactions(ctx context.Context, txs []chain.Transaction) error
	SaveContracts(ctx context.Context, contracts []chain.TokenContract) error
	SaveNfts(ctx context.Context, nfts []chain.Nft) error
	SaveErc1155s(ctx context.Context, tokens []chain.Erc1155) error
	SaveErc1155Owners(ctx context.Context, owners []chain.Erc1155Owner) error
	SaveApprovalForAlls(ctx context.Context, approvals []chain.ApprovalForAll) error
	InsertContractAbis(ctx context.Context, abis []chain.ContractAbi) error
	InsertMetadataBatch(ctx context.Context, metadata []chain.NftMetadata) error
}

// UpdateCache holds the keyed collections of pending mutations for a
// single page (spec.md §4.3).
type UpdateCache struct {
	nfts              map[chain.NftId]chain.Nft
	multiTokens        map[chain.NftId]chain.Erc1155
	multiTokenOwners   map[chain.Erc1155OwnerKey]chain.Erc1155Owner
	approvalForAlls    map[chain.ApprovalForAllKey]chain.ApprovalForAll
	contracts          map[chain.Address]chain.TokenContract
	transactions       map[transactionKey]chain.Transaction
	blocks             map[uint64]chain.Block
	abis               map[[16]byte]chain.ContractAbi
	metadata           map[[16]byte]chain.NftMetadata
}

type transactionKey struct {
	Block uint64
	Index uint64
}

// New returns an empty update cache, ready for one page.
func New() *UpdateCache {
	return &UpdateCache{
		nfts:            make(map[chain.NftId]chain.Nft),
		multiTokens:      make(map[chain.NftId]chain.Erc1155),
		multiTokenOwners: make(map[chain.Erc1155OwnerKey]chain.Erc1155Owner),
		approvalForAlls:  make(map[chain.ApprovalForAllKey]chain.ApprovalForAll),
		contracts:        make(map[chain.Address]chain.TokenContract),
		transactions:     make(map[transactionKey]chain.Transaction),
		blocks:           make(map[uint64]chain.Block),
		abis:             make(map[[16]byte]chain.ContractAbi),
		metadata:         make(map[[16]byte]chain.NftMetadata),
	}
}

// IsEmpty reports whether every collection is empty, used to verify a
// flush left nothing behind (spec.md §4.6 step 7).
func (c *UpdateCache) IsEmpty() bool {
	return len(c.nfts) == 0 &&
		len(c.multiTokens) == 0 &&
		len(c.multiTokenOwners) == 0 &&
		len(c.approvalForAlls) == 0 &&
		len(c.contracts) == 0 &&
		len(c.transactions) == 0 &&
		len(c.blocks) == 0 &&
		len(c.abis) == 0 &&
		len(c.metadata) == 0
}

// RegisterBlock records a block observed during the page.
func (c *UpdateCache) RegisterBlock(b chain.Block) {
	c.blocks[b.Number] = b
}

// RegisterTransaction records a transaction observed during the page.
func (c *UpdateCache) RegisterTransaction(tx chain.Transaction) {
	c.transactions[transactionKey{Block: tx.Block, Index: tx.Index}] = tx
}

// TakeNft removes and returns an Nft for exclusive mutation, falling
// through to the store and then to a fresh entity on miss.
func (c *UpdateCache) TakeNft(ctx context.Context, store Store, id chain.NftId, base chain.EventBase, tx chain.TxDetails) (chain.Nft, error) {
	if n, ok := c.nfts[id]; ok {
		delete(c.nfts, id)
		return n, nil
	}
	stored, err := store.LoadNft(ctx, id)
	if err != nil {
		return chain.Nft{}, fmt.Errorf("load nft %s: %w", id.String(), err)
	}
	if stored != nil {
		return *stored, nil
	}
	return chain.Nft{
		ID:                  id,
		MintBlock:           base.Block,
		MintTxIndex:         base.TxIndex,
		LastTransferBlock:   base.Block,
		LastTransferTxIndex: base.TxIndex,
		Minter:              tx.From,
	}, nil
}

// PutNft reinserts an Nft after mutation.
func (c *UpdateCache) PutNft(n chain.Nft) {
	c.nfts[n.ID] = n
}

// TakeErc1155 removes and returns an Erc1155 for exclusive mutation.
func (c *UpdateCache) TakeErc1155(ctx context.Context, store Store, id chain.NftId, base chain.EventBase, tx chain.TxDetails) (chain.Erc1155, error) {
	if t, ok := c.multiTokens[id]; ok {
		delete(c.multiTokens, id)
		return t, nil
	}
	stored, err := store.LoadErc1155(ctx, id)
	if err != nil {
		return chain.Erc1155{}, fmt.Errorf("load erc1155 %s: %w", id.String(), err)
	}
	if stored != nil {
		return *stored, nil
	}
	return chain.Erc1155{
		ID:          id,
		TotalSupply: chain.ZeroSignedBig(),
		Creator:     tx.From,
		MintBlock:   base.Block,
		MintTxIndex: base.TxIndex,
	}, nil
}

// PutErc1155 reinserts an Erc1155 after mutation.
func (c *UpdateCache) PutErc1155(t chain.Erc1155) {
	c.multiTokens[t.ID] = t
}

// TakeErc1155Owner removes and returns an Erc1155Owner for exclusive
// mutation.
func (c *UpdateCache) TakeErc1155Owner(ctx context.Context, store Store, key chain.Erc1155OwnerKey) (chain.Erc1155Owner, error) {
	if o, ok := c.multiTokenOwners[key]; ok {
		delete(c.multiTokenOwners, key)
		return o, nil
	}
	stored, err := store.LoadErc1155Owner(ctx, key)
	if err != nil {
		return chain.Erc1155Owner{}, fmt.Errorf("load erc1155 owner %s: %w", key.String(), err)
	}
	if stored != nil {
		return *stored, nil
	}
	return chain.Erc1155Owner{Key: key, Balance: chain.ZeroSignedBig()}, nil
}

// PutErc1155Owner reinserts an Erc1155Owner after mutation.
func (c *UpdateCache) PutErc1155Owner(o chain.Erc1155Owner) {
	c.multiTokenOwners[o.Key] = o
}

// TakeApprovalForAll removes and returns an ApprovalForAll for exclusive
// mutation.
func (c *UpdateCache) TakeApprovalForAll(ctx context.Context, store Store, key chain.ApprovalForAllKey) (chain.ApprovalForAll, error) {
	if a, ok := c.approvalForAlls[key]; ok {
		delete(c.approvalForAlls, key)
		return a, nil
	}
	stored, err := store.LoadApprovalForAll(ctx, key)
	if err != nil {
		return chain.ApprovalForAll{}, fmt.Errorf("load approval-for-all %s/%s: %w", key.Contract.Hex(), key.Owner.Hex(), err)
	}
	if stored != nil {
		return *stored, nil
	}
	return chain.ApprovalForAll{Key: key}, nil
}

// PutApprovalForAll reinserts an ApprovalForAll after mutation.
func (c *UpdateCache) PutApprovalForAll(a chain.ApprovalForAll) {
	c.approvalForAlls[a.Key] = a
}

// ContractExists reports whether the contract is known to the cache or
// the store, without taking custody of it.
func (c *UpdateCache) ContractExists(ctx context.Context, store Store, addr chain.Address) (bool, error) {
	if _, ok := c.contracts[addr]; ok {
		return true, nil
	}
	stored, err := store.LoadContract(ctx, addr)
	if err != nil {
		return false, fmt.Errorf("load contract %s: %w", addr.Hex(), err)
	}
	return stored != nil, nil
}

// PutContract inserts or updates a contract row in the cache.
func (c *UpdateCache) PutContract(t chain.TokenContract) {
	c.contracts[t.Address] = t
}

// Contract returns the cached contract row, if any, for patching (e.g.
// name/symbol/base_uri enrichment).
func (c *UpdateCache) Contract(addr chain.Address) (chain.TokenContract, bool) {
	t, ok := c.contracts[addr]
	return t, ok
}

// Contracts returns a snapshot of every contract currently cached.
func (c *UpdateCache) Contracts() []chain.TokenContract {
	out := make([]chain.TokenContract, 0, len(c.contracts))
	for _, t := range c.contracts {
		out = append(out, t)
	}
	return out
}

// Nfts returns a snapshot of every Nft currently cached.
func (c *UpdateCache) Nfts() []chain.Nft {
	out := make([]chain.Nft, 0, len(c.nfts))
	for _, n := range c.nfts {
		out = append(out, n)
	}
	return out
}

// PutAbi inserts a content-addressed ABI document.
func (c *UpdateCache) PutAbi(abi chain.ContractAbi) {
	c.abis[abi.Hash] = abi
}

// PutMetadata inserts a content-addressed metadata document.
func (c *UpdateCache) PutMetadata(m chain.NftMetadata) {
	c.metadata[m.Hash] = m
}

// Flush persists every pending collection to the store in foreign-key
// order (blocks → transactions → contracts → (nfts, erc1155s,
// erc1155_owners, approval_for_alls) → abis/metadata), then clears the
// cache. A persistence failure aborts the flush; the cache is left
// untouched so the caller can surface a fatal page error without losing
// state (spec.md §4.2, §4.6 step 7).
func (c *UpdateCache) Flush(ctx context.Context, store Store) error {
	if len(c.blocks) > 0 {
		blocks := make([]chain.Block, 0, len(c.blocks))
		for _, b := range c.blocks {
			blocks = append(blocks, b)
		}
		if err := store.SaveBlocks(ctx, blocks); err != nil {
			return fmt.Errorf("flush blocks: %w", err)
		}
	}

	if len(c.transactions) > 0 {
		txs := make([]chain.Transaction, 0, len(c.transactions))
		for _, tx := range c.transactions {
			txs = append(txs, tx)
		}
		if err := store.SaveTransactions(ctx, txs); err != nil {
			return fmt.Errorf("flush transactions: %w", err)
		}
	}

	if len(c.contracts) > 0 {
		if err := store.SaveContracts(ctx, c.Contracts()); err != nil {
			return fmt.Errorf("flush contracts: %w", err)
		}
	}

	if len(c.nfts) > 0 {
		if err := store.SaveNfts(ctx, c.Nfts()); err != nil {
			return fmt.Errorf("flush nfts: %w", err)
		}
	}

	if len(c.multiTokens) > 0 {
		tokens := make([]chain.Erc1155, 0, len(c.multiTokens))
		for _, t := range c.multiTokens {
			tokens = append(tokens, t)
		}
		if err := store.SaveErc1155s(ctx, tokens); err != nil {
			return fmt.Errorf("flush erc1155s: %w", err)
		}
	}

	if len(c.multiTokenOwners) > 0 {
		owners := make([]chain.Erc1155Owner, 0, len(c.multiTokenOwners))
		for _, o := range c.multiTokenOwners {
			owners = append(owners, o)
		}
		if err := store.SaveErc1155Owners(ctx, owners); err != nil {
			return fmt.Errorf("flush erc1155 owners: %w", err)
		}
	}

	if len(c.approvalForAlls) > 0 {
		approvals := make([]chain.ApprovalForAll, 0, len(c.approvalForAlls))
		for _, a := range c.approvalForAlls {
			approvals = append(approvals, a)
		}
		if err := store.SaveApprovalForAlls(ctx, approvals); err != nil {
			return fmt.Errorf("flush approval-for-alls: %w", err)
		}
	}

	if len(c.abis) > 0 {
		abis := make([]chain.ContractAbi, 0, len(c.abis))
		for _, a := range c.abis {
			abis = append(abis, a)
		}
		if err := store.InsertContractAbis(ctx, abis); err != nil {
			return fmt.Errorf("flush contract abis: %w", err)
		}
	}

	if len(c.metadata) > 0 {
		docs := make([]chain.NftMetadata, 0, len(c.metadata))
		for _, m := range c.metadata {
			docs = append(docs, m)
		}
		if err := store.InsertMetadataBatch(ctx, docs); err != nil {
			return fmt.Errorf("flush metadata: %w", err)
		}
	}

	c.clear()
	return nil
}

func (c *UpdateCache) clear() {
	c.nfts = make(map[chain.NftId]chain.Nft)
	c.multiTokens = make(map[chain.NftId]chain.Erc1155)
	c.multiTokenOwners = make(map[chain.Erc1155OwnerKey]chain.Erc1155Owner)
	c.approvalForAlls = make(map[chain.ApprovalForAllKey]chain.ApprovalForAll)
	c.contracts = make(map[chain.Address]chain.TokenContract)
	c.transactions = make(map[transactionKey]chain.Transaction)
	c.blocks = make(map[uint64]chain.Block)
	c.abis = make(map[[16]byte]chain.ContractAbi)
	c.metadata = make(map[[16]byte]chain.NftMetadata)
}
