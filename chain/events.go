package chain

import (
	"golang.org/x/crypto/sha3"
)

// EventKind tags the concrete payload carried by an NftEvent.
type EventKind string

const (
	EventApprovalForAll       EventKind = "ApprovalForAll"
	EventErc721Approval       EventKind = "Erc721Approval"
	EventErc721Transfer       EventKind = "Erc721Transfer"
	EventErc1155TransferSingle EventKind = "Erc1155TransferSingle"
	EventErc1155TransferBatch  EventKind = "Erc1155TransferBatch"
	EventErc1155Uri            EventKind = "Erc1155Uri"
)

// EventMeta is the payload of a specific event kind. Implementations are
// the six concrete *Meta types below; switch on Kind() to recover the
// concrete type (spec.md §4.5.1-§4.5.7 enumerate one handler per kind).
type EventMeta interface {
	Kind() EventKind
}

// ApprovalForAllMeta is the payload of an ERC-721/ERC-1155
// ApprovalForAll(owner, operator, approved) log.
type ApprovalForAllMeta struct {
	Owner    Address
	Operator Address
	Approved bool
}

func (ApprovalForAllMeta) Kind() EventKind { return EventApprovalForAll }

// Erc721ApprovalMeta is the payload of an ERC-721 Approval(owner,
// approved, tokenId) log.
type Erc721ApprovalMeta struct {
	Owner    Address
	Approved Address
	TokenID  U256
}

func (Erc721ApprovalMeta) Kind() EventKind { return EventErc721Approval }

// Erc721TransferMeta is the payload of an ERC-721 Transfer(from, to,
// tokenId) log. From == zero address signals a mint; To == zero address
// signals a burn (spec.md §4.5.1).
type Erc721TransferMeta struct {
	From    Address
	To      Address
	TokenID U256
}

func (Erc721TransferMeta) Kind() EventKind { return EventErc721Transfer }

// Erc1155TransferSingleMeta is the payload of an ERC-1155
// TransferSingle(operator, from, to, id, value) log.
type Erc1155TransferSingleMeta struct {
	Operator Address
	From     Address
	To       Address
	ID       U256
	Value    U256
}

func (Erc1155TransferSingleMeta) Kind() EventKind { return EventErc1155TransferSingle }

// Erc1155TransferBatchMeta is the payload of an ERC-1155
// TransferBatch(operator, from, to, ids, values) log. Ids/Values are
// parallel slices; spec.md §4.5.5 requires squashing duplicate ids by
// summing values before per-element application.
type Erc1155TransferBatchMeta struct {
	Operator Address
	From     Address
	To       Address
	IDs      []U256
	Values   []U256
}

func (Erc1155TransferBatchMeta) Kind() EventKind { return EventErc1155TransferBatch }

// Erc1155UriMeta is the payload of an ERC-1155 URI(value, id) log.
type Erc1155UriMeta struct {
	Value string
	ID    U256
}

func (Erc1155UriMeta) Kind() EventKind { return EventErc1155Uri }

// NftEvent pairs an event's position in the canonical order with its
// decoded payload.
type NftEvent struct {
	Base EventBase
	Meta EventMeta
}

// Squash combines TransferBatch entries that share the same token id,
// summing their values, per spec.md §4.5.5. Order of first occurrence is
// preserved; this is a pure function with no side effects on m.
func (m Erc1155TransferBatchMeta) Squash() Erc1155TransferBatchMeta {
	order := make([]string, 0, len(m.IDs))
	totals := make(map[string]U256, len(m.IDs))
	ids := make(map[string]U256, len(m.IDs))

	for i, id := range m.IDs {
		key := id.String()
		if existing, ok := totals[key]; ok {
			sum := NewU256(existing.Big().Add(existing.Big(), m.Values[i].Big()))
			totals[key] = sum
		} else {
			totals[key] = m.Values[i]
			ids[key] = id
			order = append(order, key)
		}
	}

	out := Erc1155TransferBatchMeta{
		Operator: m.Operator,
		From:     m.From,
		To:       m.To,
		IDs:      make([]U256, 0, len(order)),
		Values:   make([]U256, 0, len(order)),
	}
	for _, key := range order {
		out.IDs = append(out.IDs, ids[key])
		out.Values = append(out.Values, totals[key])
	}
	return out
}

// Event topic signatures, for classifying raw logs before decoding. Kept
// as an optional convenience: the event source (C2) reads an indexed
// Postgres source (spec.md §6) whose schema already tags rows by kind, so
// it does not use these.
var (
	TopicApprovalForAll        = keccak256("ApprovalForAll(address,address,bool)")
	TopicErc721Approval        = keccak256("Approval(address,address,uint256)")
	TopicErc721Transfer        = keccak256("Transfer(address,address,uint256)")
	TopicErc1155TransferSingle = keccak256("TransferSingle(address,address,address,uint256,uint256)")
	TopicErc1155TransferBatch  = keccak256("TransferBatch(address,address,address,uint256[],uint256[])")
	TopicErc1155Uri            = keccak256("URI(string,uint256)")
)

func keccak256(signature string) Digest {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}
