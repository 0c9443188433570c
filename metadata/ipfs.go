package metadata

import (
	"regexp"
	"strings"

	"github.com/ipfs/go-cid"
)

// cidRegex matches a candidate CID anywhere in a string: base58 CIDv0
// ("Qm…"), base32/base16/base58btc CIDv1 variants, grounded on ipfs.rs's
// CID_REGEX.
var cidRegex = regexp.MustCompile(`(Qm[1-9A-HJ-NP-Za-km-z]{44}|b[A-Za-z2-7]{58,}|B[A-Z2-7]{58,}|z[1-9A-HJ-NP-Za-km-z]{48,}|F[0-9A-F]{50,})`)

// IpfsPath is a parsed CID plus an optional trailing file path, grounded
// on ipfs.rs's IpfsPath.
type IpfsPath struct {
	CID cid.Cid
	Ext string
}

// String renders the gateway-relative path: "<cid>" or "<cid>/<ext>".
func (p IpfsPath) String() string {
	if p.Ext == "" {
		return p.CID.String()
	}
	return p.CID.String() + "/" + p.Ext
}

// URL builds the full gateway URL for p.
func (p IpfsPath) URL(gateway string) string {
	return gateway + p.String()
}

// parseIpfsPath extracts a CID candidate from s via regex, validates it,
// and captures everything after the CID (up to "?"/"#") as the extension
// path, grounded on ipfs.rs's try_from_str.
func parseIpfsPath(s string) (IpfsPath, bool) {
	loc := cidRegex.FindStringIndex(s)
	if loc == nil {
		return IpfsPath{}, false
	}
	cidStr := s[loc[0]:loc[1]]
	c, err := cid.Decode(cidStr)
	if err != nil {
		return IpfsPath{}, false
	}

	ext := extractExtPath(s, cidStr)
	return IpfsPath{CID: c, Ext: ext}, true
}

// extractExtPath skips any non-slash characters immediately trailing the
// CID (e.g. a gateway domain suffix like ".ipfs.nftstorage.link"), then
// captures everything after the next "/" up to "?"/"#"/end, matching
// ipfs.rs's post-CID regex.
func extractExtPath(s, cidStr string) string {
	pattern := regexp.QuoteMeta(cidStr) + `[^/]*(?:/(.+?))(?:[?#]|$)`
	re := regexp.MustCompile(pattern)
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSuffix(m[1], "/")
}
