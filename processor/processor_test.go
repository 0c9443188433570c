package processor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zunokit/evm-nft-indexer/cache"
	"github.com/zunokit/evm-nft-indexer/chain"
	"github.com/zunokit/evm-nft-indexer/evmclient"
	"github.com/zunokit/evm-nft-indexer/eventsource"
	"github.com/zunokit/evm-nft-indexer/shared/logging"
)

type fakeSource struct {
	finalized int64
	events    []eventsource.BlockEvents
	blocks    map[uint64]chain.BlockData
	txs       map[eventsource.TxKey]chain.TxDetails
}

func (f *fakeSource) FinalizedBlock(ctx context.Context) (int64, error) { return f.finalized, nil }
func (f *fakeSource) EventsForRange(ctx context.Context, r eventsource.BlockRange) ([]eventsource.BlockEvents, error) {
	return f.events, nil
}
func (f *fakeSource) BlocksForRange(ctx context.Context, r eventsource.BlockRange) (map[uint64]chain.BlockData, error) {
	return f.blocks, nil
}
func (f *fakeSource) TransactionsForRange(ctx context.Context, r eventsource.BlockRange) (map[eventsource.TxKey]chain.TxDetails, error) {
	return f.txs, nil
}

type fakeNode struct{}

func (fakeNode) GetBlocksForRange(ctx context.Context, start, end uint64) (map[uint64]chain.BlockData, error) {
	return nil, nil
}
func (fakeNode) GetBlockReceipts(ctx context.Context, number uint64) (map[uint64]chain.TxDetails, error) {
	return nil, nil
}
func (fakeNode) GetUrisAndContractDetails(ctx context.Context, tokens []chain.NftId, contracts []chain.Address) (*evmclient.Uris, error) {
	return &evmclient.Uris{TokenURIs: map[chain.NftId]string{}, ContractDetails: map[chain.Address]evmclient.ContractDetails{}}, nil
}

type fakeStore struct {
	mem       *memCacheStore
	processed int64
	flushed   bool
}

func (s *fakeStore) GetProcessedBlock(ctx context.Context) (int64, error) { return s.processed, nil }
func (s *fakeStore) MassUpdate(ctx context.Context, c *cache.UpdateCache, processedBlock uint64) error {
	if err := c.Flush(ctx, s.mem); err != nil {
		return err
	}
	s.processed = int64(processedBlock)
	s.flushed = true
	return nil
}

// fakeStore delegates cache.Store reads/writes to an in-memory map-backed
// implementation shared with the handlers package's test style.
func (s *fakeStore) LoadNft(ctx context.Context, id chain.NftId) (*chain.Nft, error) {
	return s.mem.LoadNft(ctx, id)
}
func (s *fakeStore) LoadErc1155(ctx context.Context, id chain.NftId) (*chain.Erc1155, error) {
	return s.mem.LoadErc1155(ctx, id)
}
func (s *fakeStore) LoadErc1155Owner(ctx context.Context, key chain.Erc1155OwnerKey) (*chain.Erc1155Owner, error) {
	return s.mem.LoadErc1155Owner(ctx, key)
}
func (s *fakeStore) LoadApprovalForAll(ctx context.Context, key chain.ApprovalForAllKey) (*chain.ApprovalForAll, error) {
	return s.mem.LoadApprovalForAll(ctx, key)
}
func (s *fakeStore) LoadContract(ctx context.Context, addr chain.Address) (*chain.TokenContract, error) {
	return s.mem.LoadContract(ctx, addr)
}
func (s *fakeStore) SaveBlocks(ctx context.Context, blocks []chain.Block) error {
	return s.mem.SaveBlocks(ctx, blocks)
}
func (s *fakeStore) SaveTransactions(ctx context.Context, txs []chain.Transaction) error {
	return s.mem.SaveTransactions(ctx, txs)
}
func (s *fakeStore) SaveContracts(ctx context.Context, contracts []chain.TokenContract) error {
	return s.mem.SaveContracts(ctx, contracts)
}
func (s *fakeStore) SaveNfts(ctx context.Context, nfts []chain.Nft) error {
	return s.mem.SaveNfts(ctx, nfts)
}
func (s *fakeStore) SaveErc1155s(ctx context.Context, tokens []chain.Erc1155) error {
	return s.mem.SaveErc1155s(ctx, tokens)
}
func (s *fakeStore) SaveErc1155Owners(ctx context.Context, owners []chain.Erc1155Owner) error {
	return s.mem.SaveErc1155Owners(ctx, owners)
}
func (s *fakeStore) SaveApprovalForAlls(ctx context.Context, approvals []chain.ApprovalForAll) error {
	return s.mem.SaveApprovalForAlls(ctx, approvals)
}
func (s *fakeStore) InsertContractAbis(ctx context.Context, abis []chain.ContractAbi) error {
	return s.mem.InsertContractAbis(ctx, abis)
}
func (s *fakeStore) InsertMetadataBatch(ctx context.Context, docs []chain.NftMetadata) error {
	return s.mem.InsertMetadataBatch(ctx, docs)
}

type fakeNotifier struct {
	contracts []chain.Address
	tokens    []chain.NftId
}

func (n *fakeNotifier) NotifyContract(ctx context.Context, addr chain.Address) {
	n.contracts = append(n.contracts, addr)
}
func (n *fakeNotifier) NotifyToken(ctx context.Context, id chain.NftId, tokenURI *string) {
	n.tokens = append(n.tokens, id)
}

func TestRunOnePageNoOpWhenCaughtUp(t *testing.T) {
	source := &fakeSource{finalized: 5}
	store := &fakeStore{mem: newMemCacheStore(), processed: 5}
	p := New(Config{PageSize: 10, BatchDelay: time.Millisecond}, source, fakeNode{}, store, &fakeNotifier{}, logging.Default(), nil)

	advanced, err := p.runOnePage(context.Background())
	require.NoError(t, err)
	assert.False(t, advanced)
	assert.False(t, store.flushed)
}

func TestRunOnePageDispatchesAndFlushes(t *testing.T) {
	contract := mustAddr(t, "0x1111111111111111111111111111111111111111")
	owner := mustAddr(t, "0x2222222222222222222222222222222222222222")
	zero := chain.ZeroAddress

	events := []eventsource.BlockEvents{
		{
			Block: 1,
			Transactions: []eventsource.TxEvents{
				{
					TxIndex: 0,
					Events: []chain.NftEvent{
						{
							Base: chain.EventBase{Block: 1, TxIndex: 0, LogIndex: 0, Contract: contract},
							Meta: chain.Erc721TransferMeta{From: zero, To: owner, TokenID: chain.U256FromUint64(7)},
						},
					},
				},
			},
		},
	}

	source := &fakeSource{
		finalized: 1,
		events:    events,
		blocks:    map[uint64]chain.BlockData{1: chain.BlockDataFromUnix(1, 1700000000)},
		txs:       map[eventsource.TxKey]chain.TxDetails{{Block: 1, Index: 0}: {From: owner}},
	}
	store := &fakeStore{mem: newMemCacheStore(), processed: 0}
	notifier := &fakeNotifier{}
	p := New(Config{PageSize: 10, BatchDelay: time.Millisecond}, source, fakeNode{}, store, notifier, logging.Default(), nil)

	advanced, err := p.runOnePage(context.Background())
	require.NoError(t, err)
	assert.True(t, advanced)
	assert.True(t, store.flushed)
	assert.EqualValues(t, 1, store.processed)
	assert.Len(t, notifier.tokens, 1)
	assert.Len(t, notifier.contracts, 1)

	stored, err := store.mem.LoadNft(context.Background(), chain.NftId{Contract: contract, TokenID: chain.U256FromUint64(7)})
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, owner, stored.Owner)
}

func mustAddr(t *testing.T, s string) chain.Address {
	t.Helper()
	a, err := chain.ParseAddress(s)
	require.NoError(t, err)
	return a
}
