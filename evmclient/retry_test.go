package evmclient

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	sharederrors "github.com/zunokit/evm-nft-indexer/shared/errors"
)

func TestClassifyContractRevert(t *testing.T) {
	// "Good number 1" in hex, as go-ethereum formats a revert message.
	err := errors.New("contract call reverted with data: 0x476f6f64206e756d62657220310000000000000000000000000000000000000000000000000000")
	classified := classify("eth_call", err)
	assert.True(t, sharederrors.IsType(classified, sharederrors.ErrorTypeNodeContractRevert))
}

func TestClassifyTransportError(t *testing.T) {
	err := errors.New("dial tcp: connection refused")
	classified := classify("eth_call", err)
	assert.True(t, sharederrors.IsType(classified, sharederrors.ErrorTypeNodeTransport))
}

func TestDefaultRetryConfigRetryable(t *testing.T) {
	cfg := DefaultRetryConfig()
	assert.Equal(t, 3, cfg.MaxAttempts)

	transport := sharederrors.NodeTransport("eth_call", errors.New("timeout"))
	assert.True(t, cfg.RetryableErrors(transport))

	revert := sharederrors.NodeContractRevert("execution reverted")
	assert.False(t, cfg.RetryableErrors(revert))
}

func TestDecodeRevertReasonFallsBackToHex(t *testing.T) {
	reason := decodeRevertReason("0xzz")
	assert.Equal(t, "0xzz", reason)
}
