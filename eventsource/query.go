package eventsource

import (
	"context"
	"fmt"

	"github.com/zunokit/evm-nft-indexer/chain"
	"github.com/zunokit/evm-nft-indexer/shared/errors"
)

// queryAllEventTables reads every upstream event table for range and
// returns rows in the canonical (block, tx_index, log_index) order
// (spec.md §4.1, §6). Each table shares the (block_number, log_index,
// transaction_index, address) envelope.
func (s *Source) queryAllEventTables(ctx context.Context, r BlockRange) ([]eventRow, error) {
	var out []eventRow

	readers := []func(context.Context, BlockRange) ([]eventRow, error){
		s.queryErc721Transfers,
		s.queryErc721Approvals,
		s.queryApprovalForAlls,
		s.queryErc1155TransferSingles,
		s.queryErc1155TransferBatches,
		s.queryErc1155Uris,
	}

	for _, read := range readers {
		rows, err := read(ctx, r)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}

	sortRows(out)
	return out, nil
}

func sortRows(rows []eventRow) {
	// Insertion sort is adequate: pages are bounded by page_size and a
	// handful of event kinds, so row counts stay small relative to the
	// cost of a full page's network round-trips.
	for i := 1; i < len(rows); i++ {
		for j := i; j > 0 && less(rows[j], rows[j-1]); j-- {
			rows[j], rows[j-1] = rows[j-1], rows[j]
		}
	}
}

func less(a, b eventRow) bool {
	if a.base.Block != b.base.Block {
		return a.base.Block < b.base.Block
	}
	if a.base.TxIndex != b.base.TxIndex {
		return a.base.TxIndex < b.base.TxIndex
	}
	return a.base.LogIndex < b.base.LogIndex
}

func (s *Source) queryErc721Transfers(ctx context.Context, r BlockRange) ([]eventRow, error) {
	const query = `
		SELECT block_number, log_index, transaction_index, address, "from", "to", token_id
		FROM erc721_transfer
		WHERE block_number BETWEEN $1 AND $2
	`
	rows, err := s.db.GetClient().QueryContext(ctx, query, r.Start, r.End)
	if err != nil {
		return nil, errors.UpstreamUnavailable("erc721_transfer", err)
	}
	defer rows.Close()

	var out []eventRow
	for rows.Next() {
		var blockNumber, logIndex, txIndex int64
		var addrBytes, fromBytes, toBytes []byte
		var tokenIDStr string
		if err := rows.Scan(&blockNumber, &logIndex, &txIndex, &addrBytes, &fromBytes, &toBytes, &tokenIDStr); err != nil {
			return nil, errors.UpstreamUnavailable("erc721_transfer scan", err)
		}

		base, err := baseFromRaw(blockNumber, logIndex, txIndex, addrBytes)
		if err != nil {
			return nil, err
		}
		from, err := chain.AddressFromBytes(fromBytes)
		if err != nil {
			return nil, errors.UpstreamUnavailable("erc721_transfer from address", err)
		}
		to, err := chain.AddressFromBytes(toBytes)
		if err != nil {
			return nil, errors.UpstreamUnavailable("erc721_transfer to address", err)
		}
		tokenID, err := chain.U256FromDecimalString(tokenIDStr)
		if err != nil {
			return nil, errors.UpstreamUnavailable("erc721_transfer token id", err)
		}

		out = append(out, eventRow{base: base, meta: chain.Erc721TransferMeta{From: from, To: to, TokenID: tokenID}})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.UpstreamUnavailable("erc721_transfer rows", err)
	}
	return out, nil
}

func (s *Source) queryErc721Approvals(ctx context.Context, r BlockRange) ([]eventRow, error) {
	const query = `
		SELECT block_number, log_index, transaction_index, address, owner, approved, token_id
		FROM erc721_approval
		WHERE block_number BETWEEN $1 AND $2
	`
	rows, err := s.db.GetClient().QueryContext(ctx, query, r.Start, r.End)
	if err != nil {
		return nil, errors.UpstreamUnavailable("erc721_approval", err)
	}
	defer rows.Close()

	var out []eventRow
	for rows.Next() {
		var blockNumber, logIndex, txIndex int64
		var addrBytes, ownerBytes, approvedBytes []byte
		var tokenIDStr string
		if err := rows.Scan(&blockNumber, &logIndex, &txIndex, &addrBytes, &ownerBytes, &approvedBytes, &tokenIDStr); err != nil {
			return nil, errors.UpstreamUnavailable("erc721_approval scan", err)
		}

		base, err := baseFromRaw(blockNumber, logIndex, txIndex, addrBytes)
		if err != nil {
			return nil, err
		}
		owner, err := chain.AddressFromBytes(ownerBytes)
		if err != nil {
			return nil, errors.UpstreamUnavailable("erc721_approval owner address", err)
		}
		approved, err := chain.AddressFromBytes(approvedBytes)
		if err != nil {
			return nil, errors.UpstreamUnavailable("erc721_approval approved address", err)
		}
		tokenID, err := chain.U256FromDecimalString(tokenIDStr)
		if err != nil {
			return nil, errors.UpstreamUnavailable("erc721_approval token id", err)
		}

		out = append(out, eventRow{base: base, meta: chain.Erc721ApprovalMeta{Owner: owner, Approved: approved, TokenID: tokenID}})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.UpstreamUnavailable("erc721_approval rows", err)
	}
	return out, nil
}

func (s *Source) queryApprovalForAlls(ctx context.Context, r BlockRange) ([]eventRow, error) {
	const query = `
		SELECT block_number, log_index, transaction_index, address, owner, operator, approved
		FROM approval_for_all
		WHERE block_number BETWEEN $1 AND $2
	`
	rows, err := s.db.GetClient().QueryContext(ctx, query, r.Start, r.End)
	if err != nil {
		return nil, errors.UpstreamUnavailable("approval_for_all", err)
	}
	defer rows.Close()

	var out []eventRow
	for rows.Next() {
		var blockNumber, logIndex, txIndex int64
		var addrBytes, ownerBytes, operatorBytes []byte
		var approved bool
		if err := rows.Scan(&blockNumber, &logIndex, &txIndex, &addrBytes, &ownerBytes, &operatorBytes, &approved); err != nil {
			return nil, errors.UpstreamUnavailable("approval_for_all scan", err)
		}

		base, err := baseFromRaw(blockNumber, logIndex, txIndex, addrBytes)
		if err != nil {
			return nil, err
		}
		owner, err := chain.AddressFromBytes(ownerBytes)
		if err != nil {
			return nil, errors.UpstreamUnavailable("approval_for_all owner address", err)
		}
		operator, err := chain.AddressFromBytes(operatorBytes)
		if err != nil {
			return nil, errors.UpstreamUnavailable("approval_for_all operator address", err)
		}

		out = append(out, eventRow{base: base, meta: chain.ApprovalForAllMeta{Owner: owner, Operator: operator, Approved: approved}})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.UpstreamUnavailable("approval_for_all rows", err)
	}
	return out, nil
}

func (s *Source) queryErc1155TransferSingles(ctx context.Context, r BlockRange) ([]eventRow, error) {
	const query = `
		SELECT block_number, log_index, transaction_index, address, operator, "from", "to", id, value
		FROM erc1155_transfer_single
		WHERE block_number BETWEEN $1 AND $2
	`
	rows, err := s.db.GetClient().QueryContext(ctx, query, r.Start, r.End)
	if err != nil {
		return nil, errors.UpstreamUnavailable("erc1155_transfer_single", err)
	}
	defer rows.Close()

	var out []eventRow
	for rows.Next() {
		var blockNumber, logIndex, txIndex int64
		var addrBytes, operatorBytes, fromBytes, toBytes []byte
		var idStr, valueStr string
		if err := rows.Scan(&blockNumber, &logIndex, &txIndex, &addrBytes, &operatorBytes, &fromBytes, &toBytes, &idStr, &valueStr); err != nil {
			return nil, errors.UpstreamUnavailable("erc1155_transfer_single scan", err)
		}

		base, err := baseFromRaw(blockNumber, logIndex, txIndex, addrBytes)
		if err != nil {
			return nil, err
		}
		operator, err := chain.AddressFromBytes(operatorBytes)
		if err != nil {
			return nil, errors.UpstreamUnavailable("erc1155_transfer_single operator address", err)
		}
		from, err := chain.AddressFromBytes(fromBytes)
		if err != nil {
			return nil, errors.UpstreamUnavailable("erc1155_transfer_single from address", err)
		}
		to, err := chain.AddressFromBytes(toBytes)
		if err != nil {
			return nil, errors.UpstreamUnavailable("erc1155_transfer_single to address", err)
		}
		id, err := chain.U256FromDecimalString(idStr)
		if err != nil {
			return nil, errors.UpstreamUnavailable("erc1155_transfer_single id", err)
		}
		value, err := chain.U256FromDecimalString(valueStr)
		if err != nil {
			return nil, errors.UpstreamUnavailable("erc1155_transfer_single value", err)
		}

		out = append(out, eventRow{base: base, meta: chain.Erc1155TransferSingleMeta{Operator: operator, From: from, To: to, ID: id, Value: value}})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.UpstreamUnavailable("erc1155_transfer_single rows", err)
	}
	return out, nil
}

// queryErc1155TransferBatches reads the batch header table plus its two
// array-side tables (`…_ids_0`, `…_values_1`), reassembling the parallel
// ids/values slices per row (spec.md §6).
func (s *Source) queryErc1155TransferBatches(ctx context.Context, r BlockRange) ([]eventRow, error) {
	const headerQuery = `
		SELECT id, block_number, log_index, transaction_index, address, operator, "from", "to"
		FROM erc1155_transfer_batch
		WHERE block_number BETWEEN $1 AND $2
	`
	rows, err := s.db.GetClient().QueryContext(ctx, headerQuery, r.Start, r.End)
	if err != nil {
		return nil, errors.UpstreamUnavailable("erc1155_transfer_batch", err)
	}
	defer rows.Close()

	type header struct {
		rowID    int64
		base     chain.EventBase
		operator chain.Address
		from     chain.Address
		to       chain.Address
	}

	var headers []header
	for rows.Next() {
		var rowID, blockNumber, logIndex, txIndex int64
		var addrBytes, operatorBytes, fromBytes, toBytes []byte
		if err := rows.Scan(&rowID, &blockNumber, &logIndex, &txIndex, &addrBytes, &operatorBytes, &fromBytes, &toBytes); err != nil {
			return nil, errors.UpstreamUnavailable("erc1155_transfer_batch scan", err)
		}

		base, err := baseFromRaw(blockNumber, logIndex, txIndex, addrBytes)
		if err != nil {
			return nil, err
		}
		operator, err := chain.AddressFromBytes(operatorBytes)
		if err != nil {
			return nil, errors.UpstreamUnavailable("erc1155_transfer_batch operator address", err)
		}
		from, err := chain.AddressFromBytes(fromBytes)
		if err != nil {
			return nil, errors.UpstreamUnavailable("erc1155_transfer_batch from address", err)
		}
		to, err := chain.AddressFromBytes(toBytes)
		if err != nil {
			return nil, errors.UpstreamUnavailable("erc1155_transfer_batch to address", err)
		}

		headers = append(headers, header{rowID: rowID, base: base, operator: operator, from: from, to: to})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.UpstreamUnavailable("erc1155_transfer_batch rows", err)
	}

	var out []eventRow
	for _, h := range headers {
		ids, err := s.queryBatchArray(ctx, "erc1155_transfer_batch_ids_0", h.rowID)
		if err != nil {
			return nil, err
		}
		values, err := s.queryBatchArray(ctx, "erc1155_transfer_batch_values_1", h.rowID)
		if err != nil {
			return nil, err
		}
		out = append(out, eventRow{
			base: h.base,
			meta: chain.Erc1155TransferBatchMeta{Operator: h.operator, From: h.from, To: h.to, IDs: ids, Values: values},
		})
	}
	return out, nil
}

func (s *Source) queryBatchArray(ctx context.Context, table string, rowID int64) ([]chain.U256, error) {
	query := fmt.Sprintf(`SELECT value FROM %s WHERE batch_id = $1 ORDER BY ordinal`, table)
	rows, err := s.db.GetClient().QueryContext(ctx, query, rowID)
	if err != nil {
		return nil, errors.UpstreamUnavailable(table, err)
	}
	defer rows.Close()

	var out []chain.U256
	for rows.Next() {
		var valueStr string
		if err := rows.Scan(&valueStr); err != nil {
			return nil, errors.UpstreamUnavailable(table+" scan", err)
		}
		v, err := chain.U256FromDecimalString(valueStr)
		if err != nil {
			return nil, errors.UpstreamUnavailable(table+" value", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.UpstreamUnavailable(table+" rows", err)
	}
	return out, nil
}

func (s *Source) queryErc1155Uris(ctx context.Context, r BlockRange) ([]eventRow, error) {
	const query = `
		SELECT block_number, log_index, transaction_index, address, value, id
		FROM erc1155_uri
		WHERE block_number BETWEEN $1 AND $2
	`
	rows, err := s.db.GetClient().QueryContext(ctx, query, r.Start, r.End)
	if err != nil {
		return nil, errors.UpstreamUnavailable("erc1155_uri", err)
	}
	defer rows.Close()

	var out []eventRow
	for rows.Next() {
		var blockNumber, logIndex, txIndex int64
		var addrBytes []byte
		var value, idStr string
		if err := rows.Scan(&blockNumber, &logIndex, &txIndex, &addrBytes, &value, &idStr); err != nil {
			return nil, errors.UpstreamUnavailable("erc1155_uri scan", err)
		}

		base, err := baseFromRaw(blockNumber, logIndex, txIndex, addrBytes)
		if err != nil {
			return nil, err
		}
		id, err := chain.U256FromDecimalString(idStr)
		if err != nil {
			return nil, errors.UpstreamUnavailable("erc1155_uri id", err)
		}

		out = append(out, eventRow{base: base, meta: chain.Erc1155UriMeta{Value: value, ID: id}})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.UpstreamUnavailable("erc1155_uri rows", err)
	}
	return out, nil
}

func baseFromRaw(blockNumber, logIndex, txIndex int64, addrBytes []byte) (chain.EventBase, error) {
	addr, err := chain.AddressFromBytes(addrBytes)
	if err != nil {
		return chain.EventBase{}, errors.UpstreamUnavailable("event address", err)
	}
	return chain.EventBase{
		Block:    uint64(blockNumber),
		LogIndex: uint64(logIndex),
		TxIndex:  uint64(txIndex),
		Contract: addr,
	}, nil
}
