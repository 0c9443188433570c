package metadata

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/zunokit/evm-nft-indexer/shared/errors"
)

// uriKind tags the classified shape of a token URI, grounded on
// data_url.rs's UriType enum.
type uriKind int

const (
	uriKindURL uriKind = iota
	uriKindIPFS
	uriKindData
	uriKindJSON
)

// classifiedURI is the result of spec.md §4.7 step 2's classification.
type classifiedURI struct {
	kind uriKind
	url  string   // uriKindURL: the (possibly arweave-rewritten) absolute URL.
	ipfs IpfsPath // uriKindIPFS.
	data string   // uriKindData: the original "data:" string, unsanitized.
	json json.RawMessage
}

const arweaveGateway = "https://arweave.net/"

// classifyURI implements spec.md §4.7 step 2.
func classifyURI(s string) (classifiedURI, error) {
	// IPFS is checked first regardless of surrounding scheme, matching
	// data_url.rs's "generic check first for IPFS CID".
	if path, ok := parseIpfsPath(s); ok {
		return classifiedURI{kind: uriKindIPFS, ipfs: path}, nil
	}

	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" && u.Opaque == "" && u.Scheme != "data" {
		if json.Valid([]byte(s)) {
			return classifiedURI{kind: uriKindJSON, json: json.RawMessage(s)}, nil
		}
		return classifiedURI{}, errors.URIParse("not a url, ipfs path, or json document")
	}

	if u.Scheme == "data" {
		return classifiedURI{kind: uriKindData, data: s}, nil
	}

	if u.Scheme == "ar" {
		host := u.Host
		if host == "" {
			host = u.Opaque
		}
		rewritten := arweaveGateway + strings.TrimPrefix(host+u.Path, "/")
		return classifiedURI{kind: uriKindURL, url: rewritten}, nil
	}

	return classifiedURI{kind: uriKindURL, url: s}, nil
}
