package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zunokit/evm-nft-indexer/cache"
	"github.com/zunokit/evm-nft-indexer/chain"
	"github.com/zunokit/evm-nft-indexer/shared/postgres"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(postgres.NewPostgresWithDB(db)), mock
}

func TestGetProcessedBlockDefaultsToZero(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT block FROM _processed_block`).
		WillReturnError(sql.ErrNoRows)

	block, err := s.GetProcessedBlock(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 0, block)
}

func TestGetProcessedBlockReturnsStoredValue(t *testing.T) {
	s, mock := newMockStore(t)
	rows := sqlmock.NewRows([]string{"block"}).AddRow(int64(42))
	mock.ExpectQuery(`SELECT block FROM _processed_block`).WillReturnRows(rows)

	block, err := s.GetProcessedBlock(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 42, block)
}

func TestLoadNftNotFoundReturnsNil(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT token_id, token_uri, owner`).
		WillReturnError(sql.ErrNoRows)

	n, err := s.LoadNft(context.Background(), chain.NftId{Contract: chain.ZeroAddress, TokenID: chain.U256FromUint64(1)})
	require.NoError(t, err)
	assert.Nil(t, n)
}

func TestSaveBlocksEmptyIsNoOp(t *testing.T) {
	s, mock := newMockStore(t)
	require.NoError(t, s.SaveBlocks(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMassUpdateCommitsOnSuccess(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO _processed_block`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	emptyCache := cache.New()
	err := s.MassUpdate(context.Background(), emptyCache, 10)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMassUpdateRollsBackOnFailure(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO _processed_block`).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	emptyCache := cache.New()
	err := s.MassUpdate(context.Background(), emptyCache, 10)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
