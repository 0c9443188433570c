// Package metadata implements the metadata fetcher (C8): resolves a
// token's URI to a canonical, content-addressed metadata document
// (spec.md §4.7), grounded on
// original_source/metadata-retriever/.../{util.rs,ipfs.rs,data_url.rs,homebrew.rs}.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/zunokit/evm-nft-indexer/chain"
	"github.com/zunokit/evm-nft-indexer/shared/errors"
	"github.com/zunokit/evm-nft-indexer/shared/logging"
	"github.com/zunokit/evm-nft-indexer/shared/metrics"
)

// Store is the subset of store.Store the fetcher needs to persist a
// result and update the owning NFT row.
type Store interface {
	LoadNft(ctx context.Context, id chain.NftId) (*chain.Nft, error)
	SaveNfts(ctx context.Context, nfts []chain.Nft) error
	InsertMetadataBatch(ctx context.Context, metadata []chain.NftMetadata) error
}

// Fetcher resolves and persists NFT metadata documents.
type Fetcher struct {
	cfg     Config
	http    *httpFetcher
	store   Store
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// New builds a Fetcher. m may be nil, in which case fetch metrics are
// skipped.
func New(cfg Config, store Store, logger *logging.Logger, m *metrics.Metrics) *Fetcher {
	return &Fetcher{cfg: cfg, http: newHTTPFetcher(cfg), store: store, logger: logger, metrics: m}
}

// Fetch implements spec.md §4.7's 6-step algorithm for a single token and
// persists the result.
func (f *Fetcher) Fetch(ctx context.Context, id chain.NftId, tokenURI *string) (*chain.NftMetadata, error) {
	start := time.Now()
	result, err := f.resolve(ctx, id, tokenURI)
	if err != nil {
		result = &chain.NftMetadata{Hash: chain.ErrorHash, Raw: strPtr(err.Error())}
	}

	if f.metrics != nil {
		outcome := "ok"
		if result.Hash == chain.ErrorHash {
			outcome = "error"
		}
		f.metrics.MetadataFetchesTotal.WithLabelValues(outcome).Inc()
		f.metrics.MetadataFetchDuration.Observe(time.Since(start).Seconds())
	}

	if err := f.persist(ctx, id, *result); err != nil {
		return nil, fmt.Errorf("metadata: persist %s: %w", id, err)
	}
	return result, nil
}

// resolve runs steps 1-5: URI override, classification, fetch, and
// canonicalization, without touching the store.
func (f *Fetcher) resolve(ctx context.Context, id chain.NftId, tokenURI *string) (*chain.NftMetadata, error) {
	// Step 1.
	uri := f.applyENSOverride(id, tokenURI)
	if uri == "" {
		return nil, errors.URIParse("no token uri available")
	}

	// Step 2.
	classified, err := classifyURI(uri)
	if err != nil {
		return nil, err
	}

	// Step 3.
	raw, jsonBody, hashSource, err := f.fetchByKind(ctx, classified)
	if err != nil {
		return nil, err
	}

	// Step 5 (canonicalization): strip NUL bytes, compute hash from the
	// actual fetched bytes — not from raw, which step 4 nils out for a
	// successfully parsed JSON document or an image. A synthetic error body
	// (nil hashSource) gets the chain.ErrorHash sentinel instead.
	hash := chain.ErrorHash
	if hashSource != nil {
		hash = hashRaw(stripNUL(hashSource))
	}

	var rawPtr *string
	if cleanRaw := stripNUL(raw); len(cleanRaw) > 0 {
		s := string(cleanRaw)
		rawPtr = &s
	}
	return &chain.NftMetadata{Hash: hash, Raw: rawPtr, JSON: jsonBody}, nil
}

// applyENSOverride implements spec.md §4.7 step 1.
func (f *Fetcher) applyENSOverride(id chain.NftId, tokenURI *string) string {
	if !f.cfg.ENSRegistryAddress.IsZero() && id.Contract == f.cfg.ENSRegistryAddress {
		return fmt.Sprintf("%s/%s/%s", f.cfg.ENSOverrideBaseURL, id.Contract.Hex(), id.TokenID.String())
	}
	if tokenURI == nil {
		return ""
	}
	return *tokenURI
}

// fetchByKind implements spec.md §4.7 step 3 by dispatching on the
// classified URI kind. It returns (raw, json, hashSource, err): for an HTTP
// or IPFS fetch hashSource is the actual response bytes, independent of
// whatever step 4's content-type routing decided to keep as raw; for a data
// url it is the url text kept as raw; for an inline JSON document it is the
// document text; for a synthetic error body it is nil.
func (f *Fetcher) fetchByKind(ctx context.Context, c classifiedURI) ([]byte, json.RawMessage, []byte, error) {
	switch c.kind {
	case uriKindIPFS:
		body, synthetic, err := f.http.fetch(ctx, c.ipfs.URL(f.cfg.IPFSGateway))
		if err != nil {
			return nil, nil, nil, err
		}
		if synthetic {
			return body.raw, nil, nil, nil
		}
		return body.raw, body.json, body.source, nil

	case uriKindURL:
		body, synthetic, err := f.http.fetch(ctx, c.url)
		if err != nil {
			return nil, nil, nil, err
		}
		if synthetic {
			return body.raw, nil, nil, nil
		}
		return body.raw, body.json, body.source, nil

	case uriKindData:
		decoded, err := decodeDataURL(c.data)
		if err != nil {
			return nil, nil, nil, err
		}
		raw, jsonBody, err := f.classifyDataURLBody(decoded, c.data)
		if err != nil {
			return nil, nil, nil, err
		}
		return raw, jsonBody, raw, nil

	case uriKindJSON:
		return []byte(c.json), c.json, []byte(c.json), nil

	default:
		return nil, nil, nil, errors.URIParse("unclassified uri kind")
	}
}

// classifyDataURLBody implements spec.md §4.7 step 3's data-url MIME
// routing: application/json parses into JSON; text/image keep raw only.
func (f *Fetcher) classifyDataURLBody(decoded decodedDataURL, rawURI string) ([]byte, json.RawMessage, error) {
	switch {
	case strings.HasPrefix(decoded.mimeType, "application/json"):
		if !json.Valid(decoded.body) {
			return nil, nil, errors.ContentParse("invalid json in data url")
		}
		return []byte(rawURI), json.RawMessage(decoded.body), nil
	case strings.HasPrefix(decoded.mimeType, "text/"), strings.HasPrefix(decoded.mimeType, "image/"):
		return []byte(rawURI), nil, nil
	default:
		return nil, nil, errors.ContentParse("unsupported data url mime type: " + decoded.mimeType)
	}
}

// persist implements spec.md §4.7 step 6: upsert the metadata document and
// point the NFT row at it.
func (f *Fetcher) persist(ctx context.Context, id chain.NftId, doc chain.NftMetadata) error {
	if err := f.store.InsertMetadataBatch(ctx, []chain.NftMetadata{doc}); err != nil {
		return err
	}

	nft, err := f.store.LoadNft(ctx, id)
	if err != nil {
		return err
	}
	if nft == nil {
		f.logger.WithField("token", id.String()).Warn("metadata resolved for unknown nft")
		return nil
	}

	hash := doc.Hash
	nft.MetadataHash = &hash
	return f.store.SaveNfts(ctx, []chain.Nft{*nft})
}

// stripNUL removes NUL bytes before hashing/storage (spec.md §4.7 step 5).
func stripNUL(b []byte) []byte {
	if !strings.ContainsRune(string(b), 0) {
		return b
	}
	out := make([]byte, 0, len(b))
	for _, c := range b {
		if c != 0 {
			out = append(out, c)
		}
	}
	return out
}

func strPtr(s string) *string { return &s }
