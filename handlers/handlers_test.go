package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zunokit/evm-nft-indexer/cache"
	"github.com/zunokit/evm-nft-indexer/chain"
	"github.com/zunokit/evm-nft-indexer/shared/logging"
)

// memStore is a trivial in-memory cache.Store used to exercise handlers
// without a database, grounded on the teacher's sqlmock-free unit tests
// for pure service logic (mint_indexer's NewMintIndexer(&service.IndexerService{})).
type memStore struct {
	nfts  map[chain.NftId]chain.Nft
	erc   map[chain.NftId]chain.Erc1155
	owner map[chain.Erc1155OwnerKey]chain.Erc1155Owner
	afa   map[chain.ApprovalForAllKey]chain.ApprovalForAll
	contr map[chain.Address]chain.TokenContract
}

func newMemStore() *memStore {
	return &memStore{
		nfts:  make(map[chain.NftId]chain.Nft),
		erc:   make(map[chain.NftId]chain.Erc1155),
		owner: make(map[chain.Erc1155OwnerKey]chain.Erc1155Owner),
		afa:   make(map[chain.ApprovalForAllKey]chain.ApprovalForAll),
		contr: make(map[chain.Address]chain.TokenContract),
	}
}

func (s *memStore) LoadNft(_ context.Context, id chain.NftId) (*chain.Nft, error) {
	if n, ok := s.nfts[id]; ok {
		return &n, nil
	}
	return nil, nil
}
func (s *memStore) LoadErc1155(_ context.Context, id chain.NftId) (*chain.Erc1155, error) {
	if t, ok := s.erc[id]; ok {
		return &t, nil
	}
	return nil, nil
}
func (s *memStore) LoadErc1155Owner(_ context.Context, key chain.Erc1155OwnerKey) (*chain.Erc1155Owner, error) {
	if o, ok := s.owner[key]; ok {
		return &o, nil
	}
	return nil, nil
}
func (s *memStore) LoadApprovalForAll(_ context.Context, key chain.ApprovalForAllKey) (*chain.ApprovalForAll, error) {
	if a, ok := s.afa[key]; ok {
		return &a, nil
	}
	return nil, nil
}
func (s *memStore) LoadContract(_ context.Context, addr chain.Address) (*chain.TokenContract, error) {
	if c, ok := s.contr[addr]; ok {
		return &c, nil
	}
	return nil, nil
}
func (s *memStore) SaveBlocks(context.Context, []chain.Block) error             { return nil }
func (s *memStore) SaveTransactions(context.Context, []chain.Transaction) error { return nil }
func (s *memStore) SaveContracts(_ context.Context, cs []chain.TokenContract) error {
	for _, c := range cs {
		s.contr[c.Address] = c
	}
	return nil
}
func (s *memStore) SaveNfts(_ context.Context, nfts []chain.Nft) error {
	for _, n := range nfts {
		s.nfts[n.ID] = n
	}
	return nil
}
func (s *memStore) SaveErc1155s(_ context.Context, tokens []chain.Erc1155) error {
	for _, t := range tokens {
		s.erc[t.ID] = t
	}
	return nil
}
func (s *memStore) SaveErc1155Owners(_ context.Context, owners []chain.Erc1155Owner) error {
	for _, o := range owners {
		s.owner[o.Key] = o
	}
	return nil
}
func (s *memStore) SaveApprovalForAlls(_ context.Context, approvals []chain.ApprovalForAll) error {
	for _, a := range approvals {
		s.afa[a.Key] = a
	}
	return nil
}
func (s *memStore) InsertContractAbis(context.Context, []chain.ContractAbi) error { return nil }
func (s *memStore) InsertMetadataBatch(context.Context, []chain.NftMetadata) error {
	return nil
}

func mustAddr(t *testing.T, s string) chain.Address {
	t.Helper()
	a, err := chain.ParseAddress(s)
	require.NoError(t, err)
	return a
}

// TestScenarioAMintThenTransfer implements spec.md §8 Scenario A.
func TestScenarioAMintThenTransfer(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	c := cache.New()
	d := NewDispatcher(store, c, logging.Default())

	contract := mustAddr(t, "0x0000000000000000000000000000000000000001")
	addr2 := mustAddr(t, "0x0000000000000000000000000000000000000002")
	addr3 := mustAddr(t, "0x0000000000000000000000000000000000000003")
	addr4 := mustAddr(t, "0x0000000000000000000000000000000000000004")
	tokenID := chain.U256FromUint64(123)

	// 1. Transfer(from=0, to=0x...02, id=123) @ (block=10, log=0, tx=0)
	base1 := chain.EventBase{Block: 10, LogIndex: 0, TxIndex: 0, Contract: contract}
	err := d.Dispatch(ctx, chain.NftEvent{
		Base: base1,
		Meta: chain.Erc721TransferMeta{From: chain.ZeroAddress, To: addr2, TokenID: tokenID},
	}, chain.TxDetails{From: addr2})
	require.NoError(t, err)
	require.NoError(t, c.Flush(ctx, store))

	id := chain.NftId{Contract: contract, TokenID: tokenID}
	nft, err := store.LoadNft(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, nft)
	assert.Equal(t, addr2, nft.Owner)
	assert.Equal(t, uint64(10), nft.MintBlock)
	assert.Equal(t, uint64(0), nft.MintTxIndex)
	assert.Equal(t, uint64(10), nft.LastTransferBlock)
	assert.Equal(t, uint64(10), nft.LastUpdateBlock)
	assert.Nil(t, nft.BurnBlock)
	assert.Nil(t, nft.Approved)
	assert.Equal(t, addr2, nft.Minter)

	// 2. Approval(owner=0x...02, approved=0x...03, id=123) @ (10, 1, 0)
	base2 := chain.EventBase{Block: 10, LogIndex: 1, TxIndex: 0, Contract: contract}
	err = d.Dispatch(ctx, chain.NftEvent{
		Base: base2,
		Meta: chain.Erc721ApprovalMeta{Owner: addr2, Approved: addr3, TokenID: tokenID},
	}, chain.TxDetails{From: addr2})
	require.NoError(t, err)
	require.NoError(t, c.Flush(ctx, store))

	nft, err = store.LoadNft(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, nft.Approved)
	assert.Equal(t, addr3, *nft.Approved)
	assert.Equal(t, uint64(10), nft.LastUpdateBlock)
	assert.Equal(t, uint64(1), nft.LastUpdateLogIndex)

	// 3. Transfer(from=0x...02, to=0x...04, id=123) @ (11, 0, 0)
	base3 := chain.EventBase{Block: 11, LogIndex: 0, TxIndex: 0, Contract: contract}
	err = d.Dispatch(ctx, chain.NftEvent{
		Base: base3,
		Meta: chain.Erc721TransferMeta{From: addr2, To: addr4, TokenID: tokenID},
	}, chain.TxDetails{From: addr2})
	require.NoError(t, err)
	require.NoError(t, c.Flush(ctx, store))

	nft, err = store.LoadNft(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, addr4, nft.Owner)
	assert.Nil(t, nft.Approved)
	assert.Equal(t, uint64(11), nft.LastTransferBlock)
	assert.Equal(t, uint64(11), nft.LastUpdateBlock)
	assert.Equal(t, uint64(0), nft.LastUpdateLogIndex)

	// Scenario B — replay protection: apply (3) again.
	err = d.Dispatch(ctx, chain.NftEvent{
		Base: base3,
		Meta: chain.Erc721TransferMeta{From: addr2, To: addr4, TokenID: tokenID},
	}, chain.TxDetails{From: addr2})
	require.NoError(t, err)
	require.NoError(t, c.Flush(ctx, store))

	replayed, err := store.LoadNft(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, nft.Owner, replayed.Owner)
	assert.Equal(t, nft.LastUpdateBlock, replayed.LastUpdateBlock)
	assert.Equal(t, nft.LastUpdateLogIndex, replayed.LastUpdateLogIndex)
}

// TestScenarioCErc1155BatchSquash implements spec.md §8 Scenario C.
func TestScenarioCErc1155BatchSquash(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	c := cache.New()
	d := NewDispatcher(store, c, logging.Default())

	contract := mustAddr(t, "0x000000000000000000000000000000000000001c")
	owner := mustAddr(t, "0x000000000000000000000000000000000000000a")

	base := chain.EventBase{Block: 20, LogIndex: 0, TxIndex: 0, Contract: contract}
	batch := chain.Erc1155TransferBatchMeta{
		Operator: owner,
		From:     chain.ZeroAddress,
		To:       owner,
		IDs:      []chain.U256{chain.U256FromUint64(1), chain.U256FromUint64(1), chain.U256FromUint64(2)},
		Values:   []chain.U256{chain.U256FromUint64(10), chain.U256FromUint64(5), chain.U256FromUint64(7)},
	}

	err := d.Dispatch(ctx, chain.NftEvent{Base: base, Meta: batch}, chain.TxDetails{From: owner})
	require.NoError(t, err)
	require.NoError(t, c.Flush(ctx, store))

	id1 := chain.NftId{Contract: contract, TokenID: chain.U256FromUint64(1)}
	id2 := chain.NftId{Contract: contract, TokenID: chain.U256FromUint64(2)}

	token1, err := store.LoadErc1155(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, "15", token1.TotalSupply.String())

	token2, err := store.LoadErc1155(ctx, id2)
	require.NoError(t, err)
	assert.Equal(t, "7", token2.TotalSupply.String())

	owner1, err := store.LoadErc1155Owner(ctx, chain.Erc1155OwnerKey{ID: id1, Owner: owner})
	require.NoError(t, err)
	assert.Equal(t, "15", owner1.Balance.String())

	owner2, err := store.LoadErc1155Owner(ctx, chain.Erc1155OwnerKey{ID: id2, Owner: owner})
	require.NoError(t, err)
	assert.Equal(t, "7", owner2.Balance.String())
}
