// Package eventsource implements the event source (C2): a paged read of
// ordered, typed NFT events from the upstream event-extraction database
// (spec.md §4.1, §6). The upstream schema is read-only and owned by an
// external extraction process; this package only queries it.
//
// Grounded on the teacher's checkpoint_repository.go's *postgres.Postgres
// query style, adapted from a single-table checkpoint lookup to the
// multi-table upstream event schema.
package eventsource

import (
	"context"
	"database/sql"

	"github.com/zunokit/evm-nft-indexer/chain"
	"github.com/zunokit/evm-nft-indexer/shared/errors"
	"github.com/zunokit/evm-nft-indexer/shared/postgres"
)

// BlockRange is an inclusive [Start, End] block range.
type BlockRange struct {
	Start uint64
	End   uint64
}

// TxEvents groups events sharing a transaction, preserving intra-
// transaction log order.
type TxEvents struct {
	TxIndex uint64
	Events  []chain.NftEvent
}

// BlockEvents groups a block's transactions in ascending tx-index order.
type BlockEvents struct {
	Block        uint64
	Transactions []TxEvents
}

// Source reads events and chain data from the upstream store.
type Source struct {
	db *postgres.Postgres
}

// New builds a Source over an already-connected Postgres handle.
func New(db *postgres.Postgres) *Source {
	return &Source{db: db}
}

// FinalizedBlock returns the maximum block number safe to process,
// sourced from the upstream `_event_block` bookkeeping table (spec.md §6).
func (s *Source) FinalizedBlock(ctx context.Context) (int64, error) {
	const query = `SELECT COALESCE(MIN(finalized), 0) FROM _event_block`

	var finalized int64
	err := s.db.GetClient().QueryRowContext(ctx, query).Scan(&finalized)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, errors.UpstreamUnavailable("finalized_block", err)
	}
	return finalized, nil
}

// EventsForRange loads every NftEvent in range, grouped by block and then
// by transaction index, preserving intra-transaction log order (spec.md
// §4.1).
func (s *Source) EventsForRange(ctx context.Context, r BlockRange) ([]BlockEvents, error) {
	rows, err := s.queryAllEventTables(ctx, r)
	if err != nil {
		return nil, err
	}
	return groupByBlockAndTx(rows), nil
}

// BlocksForRange loads per-block timestamps for range, keyed by number
// (spec.md §4.1's blocks_for_range, used when chain_data_source=Database).
func (s *Source) BlocksForRange(ctx context.Context, r BlockRange) (map[uint64]chain.BlockData, error) {
	const query = `
		SELECT number, time
		FROM blocks
		WHERE number BETWEEN $1 AND $2
	`

	rows, err := s.db.GetClient().QueryContext(ctx, query, r.Start, r.End)
	if err != nil {
		return nil, errors.UpstreamUnavailable("blocks_for_range", err)
	}
	defer rows.Close()

	out := make(map[uint64]chain.BlockData)
	for rows.Next() {
		var number uint64
		var unixTime int64
		if err := rows.Scan(&number, &unixTime); err != nil {
			return nil, errors.UpstreamUnavailable("blocks_for_range scan", err)
		}
		out[number] = chain.BlockDataFromUnix(number, unixTime)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.UpstreamUnavailable("blocks_for_range rows", err)
	}
	return out, nil
}

// TransactionsForRange loads per-(block, index) sender/recipient details,
// used to populate TxDetails when chain_data_source=Database.
func (s *Source) TransactionsForRange(ctx context.Context, r BlockRange) (map[TxKey]chain.TxDetails, error) {
	const query = `
		SELECT block_number, index, hash, "from", "to"
		FROM transactions
		WHERE block_number BETWEEN $1 AND $2
	`

	rows, err := s.db.GetClient().QueryContext(ctx, query, r.Start, r.End)
	if err != nil {
		return nil, errors.UpstreamUnavailable("transactions_for_range", err)
	}
	defer rows.Close()

	out := make(map[TxKey]chain.TxDetails)
	for rows.Next() {
		var block uint64
		var index uint64
		var hashBytes, fromBytes []byte
		var toBytes []byte
		if err := rows.Scan(&block, &index, &hashBytes, &fromBytes, &toBytes); err != nil {
			return nil, errors.UpstreamUnavailable("transactions_for_range scan", err)
		}

		var digest chain.Digest
		if len(hashBytes) == 32 {
			copy(digest[:], hashBytes)
		}
		from, err := chain.AddressFromBytes(fromBytes)
		if err != nil {
			return nil, errors.UpstreamUnavailable("transactions_for_range from address", err)
		}
		var to *chain.Address
		if len(toBytes) == 20 {
			addr, err := chain.AddressFromBytes(toBytes)
			if err != nil {
				return nil, errors.UpstreamUnavailable("transactions_for_range to address", err)
			}
			to = &addr
		}

		out[TxKey{Block: block, Index: index}] = chain.TxDetails{Hash: digest, From: from, To: to}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.UpstreamUnavailable("transactions_for_range rows", err)
	}
	return out, nil
}

type TxKey struct {
	Block uint64
	Index uint64
}

func groupByBlockAndTx(rows []eventRow) []BlockEvents {
	blockOrder := []uint64{}
	blockIndex := map[uint64]int{}
	blocks := []BlockEvents{}

	txOrder := map[uint64][]uint64{}
	txIndexInBlock := map[uint64]map[uint64]int{}

	for _, r := range rows {
		bi, ok := blockIndex[r.base.Block]
		if !ok {
			bi = len(blocks)
			blockIndex[r.base.Block] = bi
			blockOrder = append(blockOrder, r.base.Block)
			blocks = append(blocks, BlockEvents{Block: r.base.Block})
			txIndexInBlock[r.base.Block] = map[uint64]int{}
		}

		ti, ok := txIndexInBlock[r.base.Block][r.base.TxIndex]
		if !ok {
			ti = len(blocks[bi].Transactions)
			txIndexInBlock[r.base.Block][r.base.TxIndex] = ti
			blocks[bi].Transactions = append(blocks[bi].Transactions, TxEvents{TxIndex: r.base.TxIndex})
			txOrder[r.base.Block] = append(txOrder[r.base.Block], r.base.TxIndex)
		}

		blocks[bi].Transactions[ti].Events = append(blocks[bi].Transactions[ti].Events, chain.NftEvent{Base: r.base, Meta: r.meta})
	}

	return blocks
}

type eventRow struct {
	base chain.EventBase
	meta chain.EventMeta
}
