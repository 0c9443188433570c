package chain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "with 0x prefix", input: "0x1234567890123456789012345678901234567890"},
		{name: "without prefix", input: "1234567890123456789012345678901234567890"},
		{name: "zero address", input: "0x0000000000000000000000000000000000000000"},
		{name: "too short", input: "0x1234", wantErr: true},
		{name: "odd hex digits", input: "0x123", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			a, err := ParseAddress(tc.input)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 20, len(a))
		})
	}
}

func TestAddressIsZero(t *testing.T) {
	assert.True(t, ZeroAddress.IsZero())
	a, err := ParseAddress("0x1111111111111111111111111111111111111111")
	require.NoError(t, err)
	assert.False(t, a.IsZero())
}

func TestU256Scan(t *testing.T) {
	var u U256
	require.NoError(t, u.Scan([]byte("1000000000000000000")))
	assert.Equal(t, "1000000000000000000", u.String())

	var fromString U256
	require.NoError(t, fromString.Scan("42"))
	assert.Equal(t, "42", fromString.String())

	var fromNil U256
	require.NoError(t, fromNil.Scan(nil))
	assert.Equal(t, "0", fromNil.String())
}

func TestU256FromDecimalStringRejectsNegative(t *testing.T) {
	_, err := U256FromDecimalString("-1")
	assert.Error(t, err)
}

func TestSignedBigAllowsNegative(t *testing.T) {
	zero := ZeroSignedBig()
	negative := zero.Sub(big.NewInt(5))
	assert.Equal(t, "-5", negative.String())

	back := negative.Add(big.NewInt(7))
	assert.Equal(t, "2", back.String())
}

func TestEventBaseBefore(t *testing.T) {
	a := EventBase{Block: 100, LogIndex: 2}
	b := EventBase{Block: 100, LogIndex: 3}
	c := EventBase{Block: 101, LogIndex: 0}

	assert.True(t, a.Before(b))
	assert.True(t, b.Before(c))
	assert.False(t, c.Before(a))
}

func TestAtLeast(t *testing.T) {
	assert.True(t, AtLeast(100, 5, 100, 5))
	assert.True(t, AtLeast(100, 5, 100, 4))
	assert.False(t, AtLeast(100, 4, 100, 5))
	assert.True(t, AtLeast(101, 0, 100, 99))
}

func TestBlockDataFromUnix(t *testing.T) {
	b := BlockDataFromUnix(42, 1_600_000_000)
	assert.Equal(t, uint64(42), b.Number)
	assert.Equal(t, int64(1_600_000_000), b.Time.Unix())
	assert.Equal(t, "UTC", b.DBTime().Location().String())
}
