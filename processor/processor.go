// Package processor implements the processor/scheduler (C7): the 9-step
// main loop that pages through the event source, dispatches events into a
// page-scoped update cache, enriches from the node, flushes to the store,
// and notifies the metadata fetcher (spec.md §4.6).
//
// Grounded on indexer_service.go's Start/Stop/wg/stopChan lifecycle,
// upgraded from fmt.Printf to shared/logging, and with step 6's node call
// run as a recovered goroutine (shared/recovery.SafeGo) joined before the
// loop proceeds (spec.md §5). Step 8's notifications are published one by
// one on the loop's own goroutine.
package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zunokit/evm-nft-indexer/cache"
	"github.com/zunokit/evm-nft-indexer/chain"
	"github.com/zunokit/evm-nft-indexer/evmclient"
	"github.com/zunokit/evm-nft-indexer/eventsource"
	"github.com/zunokit/evm-nft-indexer/handlers"
	"github.com/zunokit/evm-nft-indexer/shared/logging"
	"github.com/zunokit/evm-nft-indexer/shared/metrics"
	"github.com/zunokit/evm-nft-indexer/shared/recovery"
)

// Source is the subset of eventsource.Source the processor needs.
type Source interface {
	FinalizedBlock(ctx context.Context) (int64, error)
	EventsForRange(ctx context.Context, r eventsource.BlockRange) ([]eventsource.BlockEvents, error)
	BlocksForRange(ctx context.Context, r eventsource.BlockRange) (map[uint64]chain.BlockData, error)
	TransactionsForRange(ctx context.Context, r eventsource.BlockRange) (map[eventsource.TxKey]chain.TxDetails, error)
}

// NodeClient is the subset of evmclient.Client the processor needs.
type NodeClient interface {
	GetBlocksForRange(ctx context.Context, start, end uint64) (map[uint64]chain.BlockData, error)
	GetBlockReceipts(ctx context.Context, number uint64) (map[uint64]chain.TxDetails, error)
	GetUrisAndContractDetails(ctx context.Context, tokens []chain.NftId, contracts []chain.Address) (*evmclient.Uris, error)
}

// Store is the subset of store.Store the processor needs beyond cache.Store.
type Store interface {
	cache.Store
	GetProcessedBlock(ctx context.Context) (int64, error)
	MassUpdate(ctx context.Context, c *cache.UpdateCache, processedBlock uint64) error
}

// Notifier is the subset of notify.Notifier the processor needs.
type Notifier interface {
	NotifyContract(ctx context.Context, addr chain.Address)
	NotifyToken(ctx context.Context, id chain.NftId, tokenURI *string)
}

// Processor runs the main loop over a single chain.
type Processor struct {
	cfg      Config
	source   Source
	node     NodeClient
	store    Store
	notifier Notifier
	logger   *logging.Logger
	metrics  *metrics.Metrics

	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New builds a Processor. m may be nil, in which case per-page metrics are
// skipped.
func New(cfg Config, source Source, node NodeClient, store Store, notifier Notifier, logger *logging.Logger, m *metrics.Metrics) *Processor {
	return &Processor{
		cfg:      cfg,
		source:   source,
		node:     node,
		store:    store,
		notifier: notifier,
		logger:   logger,
		metrics:  m,
		stopChan: make(chan struct{}),
	}
}

// Start runs the main loop until the context is cancelled or Stop is
// called. It blocks; callers typically run it in a goroutine.
func (p *Processor) Start(ctx context.Context) error {
	p.wg.Add(1)
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopChan:
			return nil
		default:
		}

		advanced, err := p.runOnePage(ctx)
		if err != nil {
			return err
		}
		if !advanced {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-p.stopChan:
				return nil
			case <-time.After(p.cfg.BatchDelay):
			}
		}
	}
}

// Stop signals Start to return after the in-flight page completes.
func (p *Processor) Stop() {
	close(p.stopChan)
	p.wg.Wait()
}

// runOnePage executes steps 1-9 of spec.md §4.6 for at most one page.
// It returns false when there is no new block to process (the loop
// should pause for BatchDelay before retrying).
func (p *Processor) runOnePage(ctx context.Context) (bool, error) {
	// Step 1.
	processed, err := p.store.GetProcessedBlock(ctx)
	if err != nil {
		return false, fmt.Errorf("processor: get processed block: %w", err)
	}
	current := uint64(processed) + 1

	finalized, err := p.source.FinalizedBlock(ctx)
	if err != nil {
		return false, fmt.Errorf("processor: finalized block: %w", err)
	}
	if current > uint64(finalized) {
		return false, nil
	}

	// Step 2.
	end := current + p.cfg.PageSize - 1
	if end > uint64(finalized) {
		end = uint64(finalized)
	}
	pageRange := eventsource.BlockRange{Start: current, End: end}

	// Step 3.
	blockEvents, err := p.source.EventsForRange(ctx, pageRange)
	if err != nil {
		return false, fmt.Errorf("processor: events for range: %w", err)
	}

	// Step 4.
	blocks, txs, err := p.loadChainData(ctx, pageRange)
	if err != nil {
		return false, fmt.Errorf("processor: load chain data: %w", err)
	}

	pageCache := cache.New()
	dispatcher := handlers.NewDispatcher(p.store, pageCache, p.logger)

	// Step 5.
	for _, be := range blockEvents {
		if b, ok := blocks[be.Block]; ok {
			pageCache.RegisterBlock(chain.Block{Number: b.Number, Time: b.DBTime()})
		}
		for _, txEvents := range be.Transactions {
			tx := txs[eventsource.TxKey{Block: be.Block, Index: txEvents.TxIndex}]
			pageCache.RegisterTransaction(chain.Transaction{
				Block: be.Block, Index: txEvents.TxIndex,
				Hash: tx.Hash, From: tx.From, To: tx.To,
			})
			for _, evt := range txEvents.Events {
				if err := dispatcher.Dispatch(ctx, evt, tx); err != nil {
					return false, fmt.Errorf("processor: dispatch event at block %d: %w", be.Block, err)
				}
				if p.metrics != nil {
					p.metrics.EventsHandledByKind.WithLabelValues(string(evt.Meta.Kind())).Inc()
				}
			}
		}
	}

	// Step 6.
	if p.cfg.FetchNodeData {
		if err := p.enrichFromNode(ctx, dispatcher, pageCache); err != nil {
			return false, fmt.Errorf("processor: node enrichment: %w", err)
		}
	}

	newTokens := pageCache.Nfts()
	newContracts := pageCache.Contracts()

	// Step 7.
	flushStart := time.Now()
	if err := p.store.MassUpdate(ctx, pageCache, end); err != nil {
		return false, fmt.Errorf("processor: mass update: %w", err)
	}
	if p.metrics != nil {
		p.metrics.CacheFlushDuration.Observe(time.Since(flushStart).Seconds())
	}
	if !pageCache.IsEmpty() {
		return false, fmt.Errorf("processor: cache not empty after flush")
	}

	// Step 8. Notification failure is non-fatal (spec.md §4.6).
	p.emitNotifications(ctx, newTokens, newContracts)

	// Step 9.
	if p.metrics != nil {
		p.metrics.PagesProcessed.Inc()
	}
	return true, nil
}

// loadChainData realizes spec.md §4.6 step 4: block/transaction data comes
// from the event source's own tables (Database) or from the node (Node).
func (p *Processor) loadChainData(ctx context.Context, r eventsource.BlockRange) (map[uint64]chain.BlockData, map[eventsource.TxKey]chain.TxDetails, error) {
	if p.cfg.ChainDataSource == ChainDataSourceNode {
		blocks, err := p.node.GetBlocksForRange(ctx, r.Start, r.End)
		if err != nil {
			return nil, nil, err
		}
		txs := make(map[eventsource.TxKey]chain.TxDetails)
		for n := r.Start; n <= r.End; n++ {
			receipts, err := p.node.GetBlockReceipts(ctx, n)
			if err != nil {
				return nil, nil, err
			}
			for idx, details := range receipts {
				txs[eventsource.TxKey{Block: n, Index: idx}] = details
			}
		}
		return blocks, txs, nil
	}

	blocks, err := p.source.BlocksForRange(ctx, r)
	if err != nil {
		return nil, nil, err
	}
	txs, err := p.source.TransactionsForRange(ctx, r)
	if err != nil {
		return nil, nil, err
	}
	return blocks, txs, nil
}

// enrichFromNode implements spec.md §4.6 step 6: fetch token URIs and
// contract name/symbol for every fetch-worthy entry in the page cache, run
// as a recovered goroutine joined before the loop proceeds (spec.md §5).
func (p *Processor) enrichFromNode(ctx context.Context, dispatcher *handlers.Dispatcher, c *cache.UpdateCache) error {
	var tokens []chain.NftId
	for _, n := range c.Nfts() {
		if p.isFetchWorthy(n) {
			tokens = append(tokens, n.ID)
		}
	}

	var contractAddrs []chain.Address
	for _, ct := range c.Contracts() {
		if !p.cfg.IsAvoided(ct.Address) {
			contractAddrs = append(contractAddrs, ct.Address)
		}
	}

	if len(tokens) == 0 && len(contractAddrs) == 0 {
		return nil
	}

	var result *evmclient.Uris
	var fetchErr error
	var wg sync.WaitGroup
	wg.Add(1)
	recovery.SafeGo(func() {
		defer wg.Done()
		result, fetchErr = p.node.GetUrisAndContractDetails(ctx, tokens, contractAddrs)
	})
	wg.Wait()
	if fetchErr != nil {
		return fetchErr
	}
	if result == nil {
		return nil
	}

	for _, n := range c.Nfts() {
		if uri, ok := result.TokenURIs[n.ID]; ok {
			dispatcher.PatchTokenURI(n, uri)
		}
	}
	for addr, details := range result.ContractDetails {
		dispatcher.PatchContractDetails(addr, details.Name, details.Symbol)
	}
	return nil
}

// isFetchWorthy implements spec.md §4.6 step 6's is_fetch_worthy predicate.
func (p *Processor) isFetchWorthy(n chain.Nft) bool {
	if n.TokenURI != nil {
		return false
	}
	if n.LastUpdateBlock-n.MintBlock >= p.cfg.UriRetryBlocks {
		return false
	}
	return !p.cfg.IsAvoided(n.ID.Contract)
}

func (p *Processor) emitNotifications(ctx context.Context, tokens []chain.Nft, contracts []chain.TokenContract) {
	for _, c := range contracts {
		p.notifier.NotifyContract(ctx, c.Address)
	}
	for _, n := range tokens {
		p.notifier.NotifyToken(ctx, n.ID, n.TokenURI)
	}
}
