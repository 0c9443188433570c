// Package store implements the data store (C3): the read-write home for
// materialized entity state, keyed exactly as spec.md §6 describes.
//
// Grounded on the teacher's checkpoint_repository.go: a thin repository
// over *postgres.Postgres using plain SQL (upsert via ON CONFLICT, bulk
// insert via multi-row VALUES), rather than an ORM.
package store

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/zunokit/evm-nft-indexer/cache"
	"github.com/zunokit/evm-nft-indexer/chain"
	"github.com/zunokit/evm-nft-indexer/shared/errors"
	"github.com/zunokit/evm-nft-indexer/shared/postgres"
	"github.com/zunokit/evm-nft-indexer/shared/timeout"
)

// execer is satisfied by both *sql.DB and *sql.Tx, letting every query
// method run unchanged inside or outside a transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store is the Postgres-backed realization of C3. It satisfies
// cache.Store in full, plus the checkpoint and transactional-flush
// operations the processor needs (spec.md §4.2).
type Store struct {
	db      *postgres.Postgres
	exec    execer
	timeout *timeout.TimeoutConfig
}

var _ cache.Store = (*Store)(nil)

// New builds a Store over an already-connected Postgres handle.
func New(db *postgres.Postgres) *Store {
	return &Store{db: db, exec: db.GetClient(), timeout: timeout.DefaultTimeoutConfig()}
}

// WithTx runs fn against a Store scoped to a single transaction,
// committing on success and rolling back otherwise. Used by MassUpdate to
// make a cache flush plus checkpoint advance atomic (spec.md §4.2, §5).
func (s *Store) WithTx(ctx context.Context, fn func(*Store) error) error {
	tx, err := s.db.GetClient().BeginTx(ctx, nil)
	if err != nil {
		return errors.StorePersistence("begin transaction", err)
	}
	txStore := &Store{db: s.db, exec: tx, timeout: s.timeout}
	if err := fn(txStore); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.StorePersistence("commit transaction", err)
	}
	return nil
}

// MassUpdate flushes a page's update cache and advances the processed-block
// checkpoint in a single transaction: either both happen or neither does,
// so a crash mid-flush never leaves a page half-applied (spec.md §4.2, §5).
func (s *Store) MassUpdate(ctx context.Context, c *cache.UpdateCache, processedBlock uint64) error {
	return timeout.DatabaseTimeout(ctx, s.timeout, func(ctx context.Context) error {
		return s.WithTx(ctx, func(tx *Store) error {
			if err := c.Flush(ctx, tx); err != nil {
				return err
			}
			return tx.setProcessedBlock(ctx, processedBlock)
		})
	})
}

// GetProcessedBlock returns the last fully-processed block number, or 0 if
// the indexer has never committed a page (spec.md §4.6 step 1).
func (s *Store) GetProcessedBlock(ctx context.Context) (int64, error) {
	const query = `SELECT block FROM ` + tableProcessedBlock + ` WHERE id = TRUE`

	var block int64
	err := s.exec.QueryRowContext(ctx, query).Scan(&block)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errors.StorePersistence("get_processed_block", err)
	}
	return block, nil
}

func (s *Store) setProcessedBlock(ctx context.Context, block uint64) error {
	const query = `
		INSERT INTO ` + tableProcessedBlock + ` (id, block)
		VALUES (TRUE, $1)
		ON CONFLICT (id) DO UPDATE SET block = EXCLUDED.block
	`
	if _, err := s.exec.ExecContext(ctx, query, block); err != nil {
		return errors.StorePersistence("set_processed_block", err)
	}
	return nil
}

// LoadNft implements cache.Store.
func (s *Store) LoadNft(ctx context.Context, id chain.NftId) (*chain.Nft, error) {
	const query = `
		SELECT token_id, token_uri, owner, metadata_hash,
			last_update_block, last_update_tx_index, last_update_log_index,
			last_transfer_block, last_transfer_tx_index,
			mint_block, mint_tx_index, burn_block, burn_tx_index,
			minter, approved
		FROM ` + tableNfts + `
		WHERE contract_address = $1 AND token_id = $2
	`
	row := s.exec.QueryRowContext(ctx, query, id.Contract, id.TokenID)

	var n chain.Nft
	n.ID = id
	var metadataHash sql.NullString
	var tokenURI sql.NullString
	var burnBlock, burnTxIndex sql.NullInt64
	var approved []byte
	var tokenID chain.U256
	err := row.Scan(&tokenID, &tokenURI, &n.Owner, &metadataHash,
		&n.LastUpdateBlock, &n.LastUpdateTxIndex, &n.LastUpdateLogIndex,
		&n.LastTransferBlock, &n.LastTransferTxIndex,
		&n.MintBlock, &n.MintTxIndex, &burnBlock, &burnTxIndex,
		&n.Minter, &approved)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.StorePersistence("load_nft", err)
	}
	if tokenURI.Valid {
		n.TokenURI = &tokenURI.String
	}
	if metadataHash.Valid {
		h, err := decodeHash16(metadataHash.String)
		if err != nil {
			return nil, errors.StorePersistence("load_nft metadata hash", err)
		}
		n.MetadataHash = &h
	}
	if burnBlock.Valid {
		v := uint64(burnBlock.Int64)
		n.BurnBlock = &v
	}
	if burnTxIndex.Valid {
		v := uint64(burnTxIndex.Int64)
		n.BurnTxIndex = &v
	}
	if len(approved) > 0 {
		addr, err := chain.AddressFromBytes(approved)
		if err != nil {
			return nil, errors.StorePersistence("load_nft approved", err)
		}
		n.Approved = &addr
	}
	return &n, nil
}

// LoadErc1155 implements cache.Store.
func (s *Store) LoadErc1155(ctx context.Context, id chain.NftId) (*chain.Erc1155, error) {
	const query = `
		SELECT token_uri, total_supply, creator,
			mint_block, mint_tx_index,
			last_update_block, last_update_tx_index, last_update_log_index
		FROM ` + tableErc1155s + `
		WHERE contract_address = $1 AND token_id = $2
	`
	row := s.exec.QueryRowContext(ctx, query, id.Contract, id.TokenID)

	var t chain.Erc1155
	t.ID = id
	var tokenURI sql.NullString
	err := row.Scan(&tokenURI, &t.TotalSupply, &t.Creator,
		&t.MintBlock, &t.MintTxIndex,
		&t.LastUpdateBlock, &t.LastUpdateTxIndex, &t.LastUpdateLogIndex)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.StorePersistence("load_erc1155", err)
	}
	if tokenURI.Valid {
		t.TokenURI = &tokenURI.String
	}
	return &t, nil
}

// LoadErc1155Owner implements cache.Store.
func (s *Store) LoadErc1155Owner(ctx context.Context, key chain.Erc1155OwnerKey) (*chain.Erc1155Owner, error) {
	const query = `
		SELECT balance FROM ` + tableErc1155Owners + `
		WHERE contract_address = $1 AND token_id = $2 AND owner = $3
	`
	row := s.exec.QueryRowContext(ctx, query, key.ID.Contract, key.ID.TokenID, key.Owner)

	var o chain.Erc1155Owner
	o.Key = key
	err := row.Scan(&o.Balance)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.StorePersistence("load_erc1155_owner", err)
	}
	return &o, nil
}

// LoadApprovalForAll implements cache.Store.
func (s *Store) LoadApprovalForAll(ctx context.Context, key chain.ApprovalForAllKey) (*chain.ApprovalForAll, error) {
	const query = `
		SELECT operator, approved, last_update_block, last_update_tx_index, last_update_log_index
		FROM ` + tableApprovalForAll + `
		WHERE contract_address = $1 AND owner = $2
	`
	row := s.exec.QueryRowContext(ctx, query, key.Contract, key.Owner)

	var a chain.ApprovalForAll
	a.Key = key
	err := row.Scan(&a.Operator, &a.Approved, &a.LastUpdateBlock, &a.LastUpdateTxIndex, &a.LastUpdateLogIndex)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.StorePersistence("load_approval_for_all", err)
	}
	return &a, nil
}

// LoadContract implements cache.Store.
func (s *Store) LoadContract(ctx context.Context, addr chain.Address) (*chain.TokenContract, error) {
	const query = `
		SELECT name, symbol, created_block, created_tx_index, base_uri, abi_hash
		FROM ` + tableTokenContracts + `
		WHERE address = $1
	`
	row := s.exec.QueryRowContext(ctx, query, addr)

	var t chain.TokenContract
	t.Address = addr
	var name, symbol, baseURI, abiHash sql.NullString
	err := row.Scan(&name, &symbol, &t.CreatedBlock, &t.CreatedTxIndex, &baseURI, &abiHash)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.StorePersistence("load_contract", err)
	}
	if name.Valid {
		t.Name = &name.String
	}
	if symbol.Valid {
		t.Symbol = &symbol.String
	}
	if baseURI.Valid {
		t.BaseURI = &baseURI.String
	}
	if abiHash.Valid {
		h, err := decodeHash16(abiHash.String)
		if err != nil {
			return nil, errors.StorePersistence("load_contract abi hash", err)
		}
		t.AbiHash = &h
	}
	return &t, nil
}

// SaveBlocks bulk-inserts, ignoring conflicts (append-only, spec.md §4.2).
func (s *Store) SaveBlocks(ctx context.Context, blocks []chain.Block) error {
	for _, page := range chunk(blocks, narrowChunk) {
		if err := s.insertBlocksPage(ctx, page); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insertBlocksPage(ctx context.Context, blocks []chain.Block) error {
	cols := []string{"number", "time"}
	values := make([]interface{}, 0, len(blocks)*2)
	for _, b := range blocks {
		values = append(values, b.Number, b.Time.UTC())
	}
	query := buildInsertQuery(tableBlocks, cols, len(blocks), "ON CONFLICT (number) DO NOTHING")
	if _, err := s.exec.ExecContext(ctx, query, values...); err != nil {
		return errors.StorePersistence("save_blocks", err)
	}
	return nil
}

// SaveTransactions bulk-inserts, ignoring conflicts (append-only).
func (s *Store) SaveTransactions(ctx context.Context, txs []chain.Transaction) error {
	for _, page := range chunk(txs, wideChunk) {
		if err := s.insertTransactionsPage(ctx, page); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insertTransactionsPage(ctx context.Context, txs []chain.Transaction) error {
	cols := []string{"block_number", "index", "hash", "\"from\"", "\"to\""}
	values := make([]interface{}, 0, len(txs)*5)
	for _, tx := range txs {
		values = append(values, tx.Block, tx.Index, tx.Hash, tx.From, nullableAddress(tx.To))
	}
	query := buildInsertQuery(tableTransactions, cols, len(txs), "ON CONFLICT (block_number, index) DO NOTHING")
	if _, err := s.exec.ExecContext(ctx, query, values...); err != nil {
		return errors.StorePersistence("save_transactions", err)
	}
	return nil
}

// SaveContracts bulk-upserts, updating mutable columns on conflict.
func (s *Store) SaveContracts(ctx context.Context, contracts []chain.TokenContract) error {
	for _, page := range chunk(contracts, wideChunk) {
		if err := s.upsertContractsPage(ctx, page); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) upsertContractsPage(ctx context.Context, contracts []chain.TokenContract) error {
	cols := []string{"address", "name", "symbol", "created_block", "created_tx_index", "base_uri", "abi_hash"}
	values := make([]interface{}, 0, len(contracts)*len(cols))
	for _, c := range contracts {
		values = append(values, c.Address, c.Name, c.Symbol, c.CreatedBlock, c.CreatedTxIndex, c.BaseURI, nullableHash16(c.AbiHash))
	}
	conflict := `ON CONFLICT (address) DO UPDATE SET
		name = EXCLUDED.name, symbol = EXCLUDED.symbol,
		base_uri = EXCLUDED.base_uri, abi_hash = EXCLUDED.abi_hash`
	query := buildInsertQuery(tableTokenContracts, cols, len(contracts), conflict)
	if _, err := s.exec.ExecContext(ctx, query, values...); err != nil {
		return errors.StorePersistence("save_contracts", err)
	}
	return nil
}

// SaveNfts bulk-upserts, updating every mutable column on conflict.
func (s *Store) SaveNfts(ctx context.Context, nfts []chain.Nft) error {
	for _, page := range chunk(nfts, wideChunk) {
		if err := s.upsertNftsPage(ctx, page); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) upsertNftsPage(ctx context.Context, nfts []chain.Nft) error {
	cols := []string{
		"contract_address", "token_id", "token_uri", "owner", "metadata_hash",
		"last_update_block", "last_update_tx_index", "last_update_log_index",
		"last_transfer_block", "last_transfer_tx_index",
		"mint_block", "mint_tx_index", "burn_block", "burn_tx_index",
		"minter", "approved",
	}
	values := make([]interface{}, 0, len(nfts)*len(cols))
	for _, n := range nfts {
		values = append(values,
			n.ID.Contract, n.ID.TokenID, n.TokenURI, n.Owner, nullableHash16(n.MetadataHash),
			n.LastUpdateBlock, n.LastUpdateTxIndex, n.LastUpdateLogIndex,
			n.LastTransferBlock, n.LastTransferTxIndex,
			n.MintBlock, n.MintTxIndex, nullableUint64(n.BurnBlock), nullableUint64(n.BurnTxIndex),
			n.Minter, nullableAddress(n.Approved))
	}
	conflict := `ON CONFLICT (contract_address, token_id) DO UPDATE SET
		token_uri = EXCLUDED.token_uri, owner = EXCLUDED.owner, metadata_hash = EXCLUDED.metadata_hash,
		last_update_block = EXCLUDED.last_update_block, last_update_tx_index = EXCLUDED.last_update_tx_index,
		last_update_log_index = EXCLUDED.last_update_log_index,
		last_transfer_block = EXCLUDED.last_transfer_block, last_transfer_tx_index = EXCLUDED.last_transfer_tx_index,
		burn_block = EXCLUDED.burn_block, burn_tx_index = EXCLUDED.burn_tx_index,
		approved = EXCLUDED.approved`
	query := buildInsertQuery(tableNfts, cols, len(nfts), conflict)
	if _, err := s.exec.ExecContext(ctx, query, values...); err != nil {
		return errors.StorePersistence("save_nfts", err)
	}
	return nil
}

// SaveErc1155s bulk-upserts.
func (s *Store) SaveErc1155s(ctx context.Context, tokens []chain.Erc1155) error {
	for _, page := range chunk(tokens, wideChunk) {
		if err := s.upsertErc1155sPage(ctx, page); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) upsertErc1155sPage(ctx context.Context, tokens []chain.Erc1155) error {
	cols := []string{
		"contract_address", "token_id", "token_uri", "total_supply", "creator",
		"mint_block", "mint_tx_index",
		"last_update_block", "last_update_tx_index", "last_update_log_index",
	}
	values := make([]interface{}, 0, len(tokens)*len(cols))
	for _, t := range tokens {
		values = append(values,
			t.ID.Contract, t.ID.TokenID, t.TokenURI, t.TotalSupply, t.Creator,
			t.MintBlock, t.MintTxIndex,
			t.LastUpdateBlock, t.LastUpdateTxIndex, t.LastUpdateLogIndex)
	}
	conflict := `ON CONFLICT (contract_address, token_id) DO UPDATE SET
		token_uri = EXCLUDED.token_uri, total_supply = EXCLUDED.total_supply,
		last_update_block = EXCLUDED.last_update_block, last_update_tx_index = EXCLUDED.last_update_tx_index,
		last_update_log_index = EXCLUDED.last_update_log_index`
	query := buildInsertQuery(tableErc1155s, cols, len(tokens), conflict)
	if _, err := s.exec.ExecContext(ctx, query, values...); err != nil {
		return errors.StorePersistence("save_erc1155s", err)
	}
	return nil
}

// SaveErc1155Owners bulk-upserts per-owner balances.
func (s *Store) SaveErc1155Owners(ctx context.Context, owners []chain.Erc1155Owner) error {
	for _, page := range chunk(owners, wideChunk) {
		if err := s.upsertErc1155OwnersPage(ctx, page); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) upsertErc1155OwnersPage(ctx context.Context, owners []chain.Erc1155Owner) error {
	cols := []string{"contract_address", "token_id", "owner", "balance"}
	values := make([]interface{}, 0, len(owners)*len(cols))
	for _, o := range owners {
		values = append(values, o.Key.ID.Contract, o.Key.ID.TokenID, o.Key.Owner, o.Balance)
	}
	conflict := `ON CONFLICT (contract_address, token_id, owner) DO UPDATE SET balance = EXCLUDED.balance`
	query := buildInsertQuery(tableErc1155Owners, cols, len(owners), conflict)
	if _, err := s.exec.ExecContext(ctx, query, values...); err != nil {
		return errors.StorePersistence("save_erc1155_owners", err)
	}
	return nil
}

// SaveApprovalForAlls bulk-upserts operator grants.
func (s *Store) SaveApprovalForAlls(ctx context.Context, approvals []chain.ApprovalForAll) error {
	for _, page := range chunk(approvals, wideChunk) {
		if err := s.upsertApprovalForAllsPage(ctx, page); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) upsertApprovalForAllsPage(ctx context.Context, approvals []chain.ApprovalForAll) error {
	cols := []string{"contract_address", "owner", "operator", "approved",
		"last_update_block", "last_update_tx_index", "last_update_log_index"}
	values := make([]interface{}, 0, len(approvals)*len(cols))
	for _, a := range approvals {
		values = append(values, a.Key.Contract, a.Key.Owner, a.Operator, a.Approved,
			a.LastUpdateBlock, a.LastUpdateTxIndex, a.LastUpdateLogIndex)
	}
	conflict := `ON CONFLICT (contract_address, owner) DO UPDATE SET
		operator = EXCLUDED.operator, approved = EXCLUDED.approved,
		last_update_block = EXCLUDED.last_update_block, last_update_tx_index = EXCLUDED.last_update_tx_index,
		last_update_log_index = EXCLUDED.last_update_log_index`
	query := buildInsertQuery(tableApprovalForAll, cols, len(approvals), conflict)
	if _, err := s.exec.ExecContext(ctx, query, values...); err != nil {
		return errors.StorePersistence("save_approval_for_alls", err)
	}
	return nil
}

// InsertContractAbis upserts content-addressed ABI documents, keyed by hash.
func (s *Store) InsertContractAbis(ctx context.Context, abis []chain.ContractAbi) error {
	for _, page := range chunk(abis, narrowChunk) {
		if err := s.insertAbisPage(ctx, page); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insertAbisPage(ctx context.Context, abis []chain.ContractAbi) error {
	cols := []string{"uid", "abi"}
	values := make([]interface{}, 0, len(abis)*2)
	for _, a := range abis {
		values = append(values, hash16ToHex(a.Hash), []byte(a.JSON))
	}
	query := buildInsertQuery(tableContractAbis, cols, len(abis), "ON CONFLICT (uid) DO NOTHING")
	if _, err := s.exec.ExecContext(ctx, query, values...); err != nil {
		return errors.StorePersistence("insert_contract_abis", err)
	}
	return nil
}

// InsertMetadataBatch upserts content-addressed metadata documents.
func (s *Store) InsertMetadataBatch(ctx context.Context, docs []chain.NftMetadata) error {
	for _, page := range chunk(docs, narrowChunk) {
		if err := s.insertMetadataPage(ctx, page); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) insertMetadataPage(ctx context.Context, docs []chain.NftMetadata) error {
	cols := []string{"uid", "raw", "json"}
	values := make([]interface{}, 0, len(docs)*3)
	for _, d := range docs {
		var jsonBytes []byte
		if len(d.JSON) > 0 {
			jsonBytes = []byte(d.JSON)
		}
		values = append(values, hash16ToHex(d.Hash), d.Raw, jsonBytes)
	}
	query := buildInsertQuery(tableNftMetadata, cols, len(docs), "ON CONFLICT (uid) DO NOTHING")
	if _, err := s.exec.ExecContext(ctx, query, values...); err != nil {
		return errors.StorePersistence("insert_metadata_batch", err)
	}
	return nil
}

// buildInsertQuery renders a multi-row INSERT with $N placeholders.
func buildInsertQuery(table string, cols []string, rows int, conflictClause string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", table, strings.Join(cols, ", "))

	n := len(cols)
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for c := 0; c < n; c++ {
			if c > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", r*n+c+1)
		}
		b.WriteString(")")
	}
	if conflictClause != "" {
		b.WriteString(" ")
		b.WriteString(conflictClause)
	}
	return b.String()
}

func nullableAddress(a *chain.Address) interface{} {
	if a == nil {
		return nil
	}
	return *a
}

func nullableUint64(v *uint64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableHash16(h *[16]byte) interface{} {
	if h == nil {
		return nil
	}
	return hash16ToHex(*h)
}

func hash16ToHex(h [16]byte) string {
	return hex.EncodeToString(h[:])
}

func decodeHash16(hexStr string) ([16]byte, error) {
	var h [16]byte
	b, err := hex.DecodeString(hexStr)
	if err != nil || len(b) != 16 {
		return h, fmt.Errorf("invalid 16-byte hash %q", hexStr)
	}
	copy(h[:], b)
	return h, nil
}
