package metadata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/zunokit/evm-nft-indexer/chain"
	"github.com/zunokit/evm-nft-indexer/shared/logging"
)

type fakeFetcherStore struct {
	nfts     map[chain.NftId]*chain.Nft
	metadata []chain.NftMetadata
}

func newFakeFetcherStore() *fakeFetcherStore {
	return &fakeFetcherStore{nfts: make(map[chain.NftId]*chain.Nft)}
}

func (s *fakeFetcherStore) LoadNft(_ context.Context, id chain.NftId) (*chain.Nft, error) {
	return s.nfts[id], nil
}

func (s *fakeFetcherStore) SaveNfts(_ context.Context, nfts []chain.Nft) error {
	for i := range nfts {
		n := nfts[i]
		s.nfts[n.ID] = &n
	}
	return nil
}

func (s *fakeFetcherStore) InsertMetadataBatch(_ context.Context, metadata []chain.NftMetadata) error {
	s.metadata = append(s.metadata, metadata...)
	return nil
}

func testID(t *testing.T) chain.NftId {
	t.Helper()
	addr, err := chain.ParseAddress("0x0000000000000000000000000000000000000001")
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	tokenID, err := chain.U256FromDecimalString("7")
	if err != nil {
		t.Fatalf("U256FromDecimalString: %v", err)
	}
	return chain.NftId{Contract: addr, TokenID: tokenID}
}

func TestFetcherPersistsPlainJSONURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name":"token 7"}`))
	}))
	defer srv.Close()

	store := newFakeFetcherStore()
	id := testID(t)
	store.nfts[id] = &chain.Nft{ID: id}

	f := New(DefaultConfig(), store, logging.Default(), nil)
	uri := srv.URL + "/7.json"
	doc, err := f.Fetch(context.Background(), id, &uri)
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if doc.Hash == chain.ErrorHash {
		t.Fatal("expected a real content hash, got the error sentinel")
	}
	if string(doc.JSON) != `{"name":"token 7"}` {
		t.Fatalf("JSON = %q", string(doc.JSON))
	}
	if len(store.metadata) != 1 {
		t.Fatalf("expected one persisted metadata row, got %d", len(store.metadata))
	}
	if store.nfts[id].MetadataHash == nil || *store.nfts[id].MetadataHash != doc.Hash {
		t.Fatal("expected the nft row's metadata hash to be updated")
	}
}

func TestFetcherUsesErrorHashOnFailure(t *testing.T) {
	store := newFakeFetcherStore()
	id := testID(t)

	f := New(DefaultConfig(), store, logging.Default(), nil)
	doc, err := f.Fetch(context.Background(), id, nil)
	if err != nil {
		t.Fatalf("Fetch should not return a Go error for a missing token uri: %v", err)
	}
	if doc.Hash != chain.ErrorHash {
		t.Fatal("expected the error sentinel hash when no token uri is available")
	}
	if doc.Raw == nil || *doc.Raw == "" {
		t.Fatal("expected a non-empty error message in Raw")
	}
}

func TestFetcherMissingNftRowDoesNotFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name":"orphan"}`))
	}))
	defer srv.Close()

	store := newFakeFetcherStore()
	id := testID(t)

	f := New(DefaultConfig(), store, logging.Default(), nil)
	uri := srv.URL
	if _, err := f.Fetch(context.Background(), id, &uri); err != nil {
		t.Fatalf("Fetch should tolerate an unknown nft row: %v", err)
	}
	if len(store.metadata) != 1 {
		t.Fatal("metadata should still be persisted even if the nft row is missing")
	}
}

func TestFetcherDataURL(t *testing.T) {
	store := newFakeFetcherStore()
	id := testID(t)
	store.nfts[id] = &chain.Nft{ID: id}

	f := New(DefaultConfig(), store, logging.Default(), nil)
	uri := `data:application/json;utf8,{"name":"embedded"}`
	doc, err := f.Fetch(context.Background(), id, &uri)
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if doc.Hash == chain.ErrorHash {
		t.Fatal("expected a real content hash for a data url")
	}
	if string(doc.JSON) != `{"name":"embedded"}` {
		t.Fatalf("JSON = %q", string(doc.JSON))
	}
}
