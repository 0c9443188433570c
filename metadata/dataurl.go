package metadata

import (
	"crypto/md5"
	"encoding/base64"
	"net/url"
	"strings"

	"github.com/zunokit/evm-nft-indexer/shared/errors"
)

// sanitizeDataURL applies the two RFC 2397 sanitizations grounded on
// data_url.rs's sanitize_data_url.
func sanitizeDataURL(s string) string {
	s = strings.ReplaceAll(s, ";utf8,", ";charset=utf8,")
	s = strings.ReplaceAll(s, "#", "%23")
	return s
}

// decodedDataURL is the decoded body and mime type of a "data:" URI.
type decodedDataURL struct {
	mimeType string
	body     []byte
}

// decodeDataURL processes a "data:" URI per RFC 2397 (spec.md §4.7 step
// 3), after sanitization.
func decodeDataURL(raw string) (decodedDataURL, error) {
	sanitized := sanitizeDataURL(raw)

	rest := strings.TrimPrefix(sanitized, "data:")
	if rest == sanitized {
		return decodedDataURL{}, errors.URIParse("not a data url")
	}

	comma := strings.IndexByte(rest, ',')
	if comma < 0 {
		return decodedDataURL{}, errors.URIParse("missing data url separator")
	}
	meta, payload := rest[:comma], rest[comma+1:]

	isBase64 := strings.HasSuffix(meta, ";base64")
	meta = strings.TrimSuffix(meta, ";base64")
	mimeType := meta
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = mimeType[:idx]
	}
	if mimeType == "" {
		mimeType = "text/plain"
	}

	var body []byte
	if isBase64 {
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return decodedDataURL{}, errors.ContentParse("invalid base64 in data url: " + err.Error())
		}
		body = decoded
	} else {
		decoded, err := url.QueryUnescape(payload)
		if err != nil {
			return decodedDataURL{}, errors.ContentParse("invalid percent-encoding in data url: " + err.Error())
		}
		body = []byte(decoded)
	}

	return decodedDataURL{mimeType: mimeType, body: body}, nil
}

// hashRaw computes the content-addressing hash for a raw document (spec.md
// §4.7 step 5): md5 of the raw bytes.
func hashRaw(raw []byte) [16]byte {
	return md5.Sum(raw)
}
