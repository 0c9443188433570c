package metadata

import (
	"time"

	"github.com/zunokit/evm-nft-indexer/chain"
)

// Config holds the metadata fetcher's external-collaborator settings
// (spec.md §4.7, §6's Config table).
type Config struct {
	HTTPTimeout time.Duration

	// IPFSGateway is prefixed to a resolved CID/extension path (spec.md
	// §4.7 step 3).
	IPFSGateway string

	// ENSRegistryAddress triggers the URI-override rule in spec.md §4.7
	// step 1. A zero address disables the override.
	ENSRegistryAddress chain.Address
	ENSOverrideBaseURL string
}

// DefaultConfig mirrors util.rs's IPFS_GATEWAY/ENS_URI constants.
func DefaultConfig() Config {
	return Config{
		HTTPTimeout:        15 * time.Second,
		IPFSGateway:        "https://ipfs.io/ipfs/",
		ENSOverrideBaseURL: "https://metadata.ens.domains/mainnet",
	}
}
