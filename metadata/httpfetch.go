package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/zunokit/evm-nft-indexer/shared/errors"
)

// fetchedBody is the result of step 4's HTTP response taxonomy. raw is the
// text persisted verbatim (nil when step 4 says "no raw", as for a
// successfully parsed JSON document or an image); source is always the
// actual fetched bytes, used for content-addressing regardless of what
// raw/json end up holding.
type fetchedBody struct {
	raw    []byte
	json   json.RawMessage
	source []byte
}

// httpFetcher performs the GET + status/content-type taxonomy of spec.md
// §4.7 steps 3-4, grounded on homebrew.rs's Homebrew.url_request.
type httpFetcher struct {
	client *http.Client
}

func newHTTPFetcher(cfg Config) *httpFetcher {
	return &httpFetcher{client: &http.Client{Timeout: cfg.HTTPTimeout}}
}

// fetch performs a GET against url and classifies the response. A non-2xx
// status or a recognized network error produces a synthetic error body
// rather than a Go error, matching FetchedMetadata::error's "recoverable
// at the token level" contract (spec.md §4.7).
func (f *httpFetcher) fetch(ctx context.Context, url string) (fetchedBody, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fetchedBody{}, false, errors.URIParse(err.Error())
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if msg, ok := classifyTransportError(err); ok {
			return fetchedBody{raw: []byte(msg), source: []byte(msg)}, true, nil
		}
		return fetchedBody{}, false, errors.HTTPTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusLine := fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		if http.StatusText(resp.StatusCode) == "" {
			statusLine = fmt.Sprintf("%d <unknown status code>", resp.StatusCode)
		}
		return fetchedBody{raw: []byte(statusLine), source: []byte(statusLine)}, true, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fetchedBody{}, false, errors.HTTPTransport(err)
	}

	contentType := resp.Header.Get("Content-Type")
	return classifyContent(contentType, body, url)
}

// classifyTransportError recognizes the connection-level error classes
// homebrew.rs's url_request special-cases (DNS, TCP refused, connection
// reset, unexpected EOF) and returns a short message suitable for storage
// as a synthetic error body.
func classifyTransportError(err error) (string, bool) {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "no such host"), strings.Contains(msg, "dns"):
		return "dns error: " + msg, true
	case strings.Contains(msg, "connection refused"):
		return "tcp connect error: " + msg, true
	case strings.Contains(msg, "connection reset"):
		return "connection reset by peer", true
	case strings.Contains(msg, "EOF"):
		return "unexpected EOF", true
	default:
		return "", false
	}
}

// classifyContent implements spec.md §4.7 step 4's Content-Type routing,
// grounded on mod.rs's FetchedMetadata::from_response: application/json
// retains raw only when the parse fails, image/* never keeps a raw text
// body, and anything else (including text/*, which step 3's data-url
// routing allows but step 4 does not) is invalid content.
func classifyContent(contentType string, body []byte, sourceURL string) (fetchedBody, bool, error) {
	mediaType := contentType
	if idx := strings.IndexByte(mediaType, ';'); idx >= 0 {
		mediaType = mediaType[:idx]
	}
	mediaType = strings.TrimSpace(mediaType)

	switch {
	case strings.HasPrefix(mediaType, "application/json"):
		if json.Valid(body) {
			return fetchedBody{json: json.RawMessage(body), source: body}, false, nil
		}
		return fetchedBody{raw: body, source: body}, false, nil
	case strings.HasPrefix(mediaType, "image/"):
		synthetic, _ := json.Marshal(map[string]string{"image": sourceURL})
		return fetchedBody{json: synthetic, source: body}, false, nil
	default:
		return fetchedBody{}, false, errors.ContentParse("unsupported content type: " + contentType)
	}
}
