package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zunokit/evm-nft-indexer/cache"
	"github.com/zunokit/evm-nft-indexer/chain"
	"github.com/zunokit/evm-nft-indexer/shared/migration"
	"github.com/zunokit/evm-nft-indexer/shared/postgres"
	"github.com/zunokit/evm-nft-indexer/shared/testutil"
	"github.com/zunokit/evm-nft-indexer/store"
)

// TestMassUpdateAgainstRealPostgres exercises MassUpdate's ON CONFLICT
// upserts and checkpoint advance against an actual schema (spec.md §6),
// not sqlmock's expectation scripting. Skipped under -short since it needs
// a Docker daemon for the Postgres testcontainer.
func TestMassUpdateAgainstRealPostgres(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping testcontainers-backed integration test in -short mode")
	}

	ctx := context.Background()
	td, err := testutil.SetupTestPostgres(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = td.Cleanup(ctx) })

	migrator, err := migration.NewMigrator(&migration.Config{
		DatabaseURL: td.DSN,
		Service:     "evm-nft-indexer-test",
		SchemaName:  "indexer_test",
		Migrations:  store.Migrations,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = migrator.Close() })
	require.NoError(t, migrator.Migrate())

	s := store.New(postgres.NewPostgresWithDB(td.DB))

	block, err := s.GetProcessedBlock(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), block)

	contract, err := chain.ParseAddress("0x0000000000000000000000000000000000000001")
	require.NoError(t, err)
	tokenID, err := chain.U256FromDecimalString("42")
	require.NoError(t, err)
	owner, err := chain.ParseAddress("0x0000000000000000000000000000000000000002")
	require.NoError(t, err)

	c := cache.New()
	c.PutNft(chain.Nft{
		ID:                chain.NftId{Contract: contract, TokenID: tokenID},
		Owner:             owner,
		LastUpdateBlock:   100,
		LastUpdateTxIndex: 0,
	})

	require.NoError(t, s.MassUpdate(ctx, c, 100))

	gotBlock, err := s.GetProcessedBlock(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(100), gotBlock)

	nft, err := s.LoadNft(ctx, chain.NftId{Contract: contract, TokenID: tokenID})
	require.NoError(t, err)
	require.NotNil(t, nft)
	require.Equal(t, owner, nft.Owner)
	require.Equal(t, uint64(100), nft.LastUpdateBlock)
}
