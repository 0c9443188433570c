package evmclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/zunokit/evm-nft-indexer/chain"
	"github.com/zunokit/evm-nft-indexer/shared/errors"
)

// minimalTokenABI covers the three read-only selectors the processor
// needs: name(), symbol(), tokenURI(uint256). Grounded on the teacher's
// inline ABI-JSON-string pattern (pkg/web3/nft.go's balanceOf/ownerOf).
const minimalTokenABI = `[
	{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"tokenId","type":"uint256"}],"name":"tokenURI","outputs":[{"name":"","type":"string"}],"type":"function"}
]`

var parsedTokenABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(minimalTokenABI))
	if err != nil {
		panic(fmt.Sprintf("evmclient: invalid embedded ABI: %v", err))
	}
	parsedTokenABI = parsed
}

// GetName calls name() on a token contract. Absence (revert, no such
// method) is represented as nil, not an error (spec.md §4.4).
func (c *Client) GetName(ctx context.Context, addr chain.Address) (*string, error) {
	return c.callStringMethod(ctx, addr, "name")
}

// GetSymbol calls symbol() on a token contract.
func (c *Client) GetSymbol(ctx context.Context, addr chain.Address) (*string, error) {
	return c.callStringMethod(ctx, addr, "symbol")
}

// GetErc721URI calls tokenURI(uint256) on an ERC-721 contract. NUL bytes
// are stripped from the decoded string before returning, per the
// store-compatibility policy (spec.md §4.4, §9).
func (c *Client) GetErc721URI(ctx context.Context, id chain.NftId) (string, error) {
	data, err := parsedTokenABI.Pack("tokenURI", id.TokenID.Big())
	if err != nil {
		return "", fmt.Errorf("evmclient: pack tokenURI: %w", err)
	}

	var raw []byte
	callErr := c.call(ctx, "eth_call", func(ctx context.Context) error {
		result, err := c.ethCall(ctx, id.Contract, data)
		if err != nil {
			return err
		}
		raw = result
		return nil
	})
	if callErr != nil {
		return "", callErr
	}

	var uri string
	if err := parsedTokenABI.UnpackIntoInterface(&uri, "tokenURI", raw); err != nil {
		return "", fmt.Errorf("evmclient: unpack tokenURI: %w", err)
	}
	return stripNulBytes(uri), nil
}

func (c *Client) callStringMethod(ctx context.Context, addr chain.Address, method string) (*string, error) {
	data, err := parsedTokenABI.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("evmclient: pack %s: %w", method, err)
	}

	var raw []byte
	var reverted bool
	callErr := c.call(ctx, "eth_call", func(ctx context.Context) error {
		result, err := c.ethCall(ctx, addr, data)
		if err != nil {
			if classifiedIsRevert(err) {
				reverted = true
				return nil
			}
			return err
		}
		raw = result
		return nil
	})
	if callErr != nil {
		return nil, callErr
	}
	if reverted || len(raw) == 0 {
		return nil, nil
	}

	var value string
	if err := parsedTokenABI.UnpackIntoInterface(&value, method, raw); err != nil {
		return nil, nil
	}
	clean := stripNulBytes(value)
	return &clean, nil
}

func (c *Client) ethCall(ctx context.Context, to chain.Address, data []byte) ([]byte, error) {
	addr := addressToCommon(to)
	msg := ethereum.CallMsg{To: &addr, Data: data}
	return c.eth.CallContract(ctx, msg, nil)
}

func classifiedIsRevert(err error) bool {
	classified := classify("eth_call", err)
	return errors.IsType(classified, errors.ErrorTypeNodeContractRevert) ||
		strings.Contains(err.Error(), "execution reverted")
}

func stripNulBytes(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}
