package processor

import (
	"time"

	"github.com/zunokit/evm-nft-indexer/chain"
)

// ChainDataSource selects where block/transaction enrichment data comes
// from during the main loop's step 4 (spec.md §4.6).
type ChainDataSource string

const (
	ChainDataSourceDatabase ChainDataSource = "Database"
	ChainDataSourceNode     ChainDataSource = "Node"
)

// Config holds the main-loop parameters spec.md §4.6 lists.
type Config struct {
	PageSize        uint64
	ChainDataSource ChainDataSource
	FetchNodeData   bool
	UriRetryBlocks  uint64
	TokenAvoidList  map[chain.Address]struct{}
	BatchDelay      time.Duration
}

// IsAvoided reports whether a contract is on the configured avoid list.
func (c Config) IsAvoided(addr chain.Address) bool {
	_, ok := c.TokenAvoidList[addr]
	return ok
}
