package redis

import (
	"strings"
)

var (
	App     = "evmidx" // project code
	Env     = "dev"    // dev|stg|prod
	Version = "v1"     // schema version for easy bust
)

func join(parts ...string) string {
	return strings.Join(parts, ":")
}

func pfx() string {
	return join(App, Env, Version)
}

func NormalizeAddress(addr string) string { return strings.ToLower(addr) }

// MetadataFetchKey builds the dedup key C8's worker checks before refetching
// a token's metadata: one key per (contract, token id, uri hash), so a burst
// of identical notifications within the TTL window collapses to one fetch.
// uriHash is a hex-encoded digest of the token URI, not the raw URI, so the
// key stays a bounded size regardless of how long the URI is.
func MetadataFetchKey(contract, tokenID, uriHash string) string {
	return join(pfx(), "metadata-fetch", NormalizeAddress(contract), tokenID, uriHash)
}
