package evmclient

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/zunokit/evm-nft-indexer/shared/errors"
	"github.com/zunokit/evm-nft-indexer/shared/resilience"
)

// DefaultRetryConfig implements spec.md §4.4's retry policy: three
// attempts, 1-second fixed backoff, classifying contract reverts as
// non-retryable and transport/timeout/5xx/429 as retryable.
func DefaultRetryConfig() *resilience.RetryConfig {
	return &resilience.RetryConfig{
		MaxAttempts:    3,
		InitialDelay:   1 * time.Second,
		MaxDelay:       1 * time.Second,
		BackoffFactor:  1.0,
		JitterFraction: 0,
		RetryableErrors: func(err error) bool {
			return !errors.IsType(err, errors.ErrorTypeNodeContractRevert)
		},
	}
}

const revertPrefix = "contract call reverted with data: "

// classify maps a raw go-ethereum error into the shared error taxonomy,
// decoding a revert's hex data tail as UTF-8 for logging (spec.md §4.4).
func classify(method string, err error) error {
	msg := err.Error()
	if idx := strings.Index(msg, revertPrefix); idx >= 0 {
		hexData := strings.TrimSpace(msg[idx+len(revertPrefix):])
		reason := decodeRevertReason(hexData)
		return errors.NodeContractRevert(reason)
	}
	return errors.NodeTransport(method, err)
}

// decodeRevertReason best-effort decodes a hex-encoded revert data tail
// as a printable string; falls back to the raw hex on failure.
func decodeRevertReason(hexData string) string {
	trimmed := strings.TrimPrefix(hexData, "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return hexData
	}
	if !isPrintableASCII(raw) {
		return hexData
	}
	return strings.TrimRight(string(raw), "\x00")
}

func isPrintableASCII(b []byte) bool {
	for _, c := range b {
		if c == 0 {
			continue
		}
		if c < 0x09 || c > 0x7e {
			return false
		}
	}
	return true
}
