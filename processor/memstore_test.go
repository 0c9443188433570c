package processor

import (
	"context"

	"github.com/zunokit/evm-nft-indexer/chain"
)

// memCacheStore is a trivial in-memory cache.Store used to exercise the
// processor's main loop without a database, grounded on handlers_test.go's
// memStore.
type memCacheStore struct {
	nfts  map[chain.NftId]chain.Nft
	erc   map[chain.NftId]chain.Erc1155
	owner map[chain.Erc1155OwnerKey]chain.Erc1155Owner
	afa   map[chain.ApprovalForAllKey]chain.ApprovalForAll
	contr map[chain.Address]chain.TokenContract
}

func newMemCacheStore() *memCacheStore {
	return &memCacheStore{
		nfts:  make(map[chain.NftId]chain.Nft),
		erc:   make(map[chain.NftId]chain.Erc1155),
		owner: make(map[chain.Erc1155OwnerKey]chain.Erc1155Owner),
		afa:   make(map[chain.ApprovalForAllKey]chain.ApprovalForAll),
		contr: make(map[chain.Address]chain.TokenContract),
	}
}

func (s *memCacheStore) LoadNft(_ context.Context, id chain.NftId) (*chain.Nft, error) {
	if n, ok := s.nfts[id]; ok {
		return &n, nil
	}
	return nil, nil
}
func (s *memCacheStore) LoadErc1155(_ context.Context, id chain.NftId) (*chain.Erc1155, error) {
	if t, ok := s.erc[id]; ok {
		return &t, nil
	}
	return nil, nil
}
func (s *memCacheStore) LoadErc1155Owner(_ context.Context, key chain.Erc1155OwnerKey) (*chain.Erc1155Owner, error) {
	if o, ok := s.owner[key]; ok {
		return &o, nil
	}
	return nil, nil
}
func (s *memCacheStore) LoadApprovalForAll(_ context.Context, key chain.ApprovalForAllKey) (*chain.ApprovalForAll, error) {
	if a, ok := s.afa[key]; ok {
		return &a, nil
	}
	return nil, nil
}
func (s *memCacheStore) LoadContract(_ context.Context, addr chain.Address) (*chain.TokenContract, error) {
	if c, ok := s.contr[addr]; ok {
		return &c, nil
	}
	return nil, nil
}
func (s *memCacheStore) SaveBlocks(context.Context, []chain.Block) error             { return nil }
func (s *memCacheStore) SaveTransactions(context.Context, []chain.Transaction) error { return nil }
func (s *memCacheStore) SaveContracts(_ context.Context, cs []chain.TokenContract) error {
	for _, c := range cs {
		s.contr[c.Address] = c
	}
	return nil
}
func (s *memCacheStore) SaveNfts(_ context.Context, nfts []chain.Nft) error {
	for _, n := range nfts {
		s.nfts[n.ID] = n
	}
	return nil
}
func (s *memCacheStore) SaveErc1155s(_ context.Context, tokens []chain.Erc1155) error {
	for _, t := range tokens {
		s.erc[t.ID] = t
	}
	return nil
}
func (s *memCacheStore) SaveErc1155Owners(_ context.Context, owners []chain.Erc1155Owner) error {
	for _, o := range owners {
		s.owner[o.Key] = o
	}
	return nil
}
func (s *memCacheStore) SaveApprovalForAlls(_ context.Context, approvals []chain.ApprovalForAll) error {
	for _, a := range approvals {
		s.afa[a.Key] = a
	}
	return nil
}
func (s *memCacheStore) InsertContractAbis(context.Context, []chain.ContractAbi) error { return nil }
func (s *memCacheStore) InsertMetadataBatch(context.Context, []chain.NftMetadata) error {
	return nil
}
