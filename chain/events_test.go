package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErc1155TransferBatchSquash(t *testing.T) {
	operator, _ := ParseAddress("0x1111111111111111111111111111111111111111")
	from, _ := ParseAddress("0x2222222222222222222222222222222222222222")
	to, _ := ParseAddress("0x3333333333333333333333333333333333333333")

	batch := Erc1155TransferBatchMeta{
		Operator: operator,
		From:     from,
		To:       to,
		IDs: []U256{
			U256FromUint64(1),
			U256FromUint64(2),
			U256FromUint64(1),
		},
		Values: []U256{
			U256FromUint64(10),
			U256FromUint64(5),
			U256FromUint64(7),
		},
	}

	squashed := batch.Squash()

	require := map[string]string{"1": "17", "2": "5"}
	assert.Len(t, squashed.IDs, 2)
	for i, id := range squashed.IDs {
		assert.Equal(t, require[id.String()], squashed.Values[i].String())
	}
}

func TestEventKindDiscriminants(t *testing.T) {
	var meta EventMeta = Erc721TransferMeta{}
	assert.Equal(t, EventErc721Transfer, meta.Kind())

	meta = Erc1155UriMeta{}
	assert.Equal(t, EventErc1155Uri, meta.Kind())
}

func TestTopicsAreDistinct(t *testing.T) {
	topics := []Digest{
		TopicApprovalForAll,
		TopicErc721Approval,
		TopicErc721Transfer,
		TopicErc1155TransferSingle,
		TopicErc1155TransferBatch,
		TopicErc1155Uri,
	}
	seen := map[Digest]bool{}
	for _, tp := range topics {
		assert.False(t, seen[tp], "duplicate topic hash")
		seen[tp] = true
	}
}
