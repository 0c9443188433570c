// Package chain holds the primitive types (C1) shared by every other
// component: fixed-width addresses and digests, arbitrary-precision
// integers, and the entity structs materialized by the event-fold
// pipeline (spec.md §3).
//
// Grounded on original_source/eth/src/types.rs's Address/U256/Bytes32
// newtypes and their Postgres BYTEA/NUMERIC (de)serialization; translated
// from Diesel's FromSql/Queryable traits to database/sql's Value()/Scan().
package chain

import (
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// Address is a 20-byte EVM address.
type Address [20]byte

// ZeroAddress is the all-zero address used to signal mint/burn.
var ZeroAddress = Address{}

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// Hex renders a as a "0x"-prefixed lowercase hex string.
func (a Address) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

// String implements fmt.Stringer.
func (a Address) String() string {
	return a.Hex()
}

// ParseAddress parses a "0x"-prefixed (or bare) 40-hex-digit address.
func ParseAddress(s string) (Address, error) {
	var a Address
	b, err := decodeFixedHex(s, 20)
	if err != nil {
		return a, fmt.Errorf("parse address %q: %w", s, err)
	}
	copy(a[:], b)
	return a, nil
}

// AddressFromBytes builds an Address from a 20-byte slice.
func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != 20 {
		return a, fmt.Errorf("address bytes must have length 20, got %d", len(b))
	}
	copy(a[:], b)
	return a, nil
}

// Value implements driver.Valuer, encoding as a BYTEA-compatible []byte.
func (a Address) Value() (driver.Value, error) {
	return a[:], nil
}

// Scan implements sql.Scanner.
func (a *Address) Scan(src interface{}) error {
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("chain.Address: unsupported scan type %T", src)
	}
	parsed, err := AddressFromBytes(b)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Digest is a 32-byte hash (block hash, transaction hash, metadata hash
// input, ...).
type Digest [32]byte

func (d Digest) Hex() string { return "0x" + hex.EncodeToString(d[:]) }
func (d Digest) String() string { return d.Hex() }

// ParseDigest parses a "0x"-prefixed (or bare) 64-hex-digit digest.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	b, err := decodeFixedHex(s, 32)
	if err != nil {
		return d, fmt.Errorf("parse digest %q: %w", s, err)
	}
	copy(d[:], b)
	return d, nil
}

func (d Digest) Value() (driver.Value, error) {
	return d[:], nil
}

func (d *Digest) Scan(src interface{}) error {
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("chain.Digest: unsupported scan type %T", src)
	}
	if len(b) != 32 {
		return fmt.Errorf("chain.Digest: expected 32 bytes, got %d", len(b))
	}
	copy(d[:], b)
	return nil
}

func decodeFixedHex(s string, n int) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != n {
		return nil, fmt.Errorf("expected %d bytes, got %d", n, len(b))
	}
	return b, nil
}

// U256 is a 256-bit unsigned integer, serialized through Postgres NUMERIC
// via database/sql so callers never round-trip through an intermediate
// decimal string by hand.
type U256 struct{ v *big.Int }

// NewU256 wraps an existing *big.Int. The value is defensively copied.
func NewU256(v *big.Int) U256 {
	if v == nil {
		return U256{v: new(big.Int)}
	}
	return U256{v: new(big.Int).Set(v)}
}

// U256FromUint64 builds a U256 from a uint64.
func U256FromUint64(v uint64) U256 {
	return U256{v: new(big.Int).SetUint64(v)}
}

// U256FromDecimalString parses a base-10 string (as used by the
// metadata-fetcher input envelope's token_id, spec.md §6).
func U256FromDecimalString(s string) (U256, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return U256{}, fmt.Errorf("invalid decimal u256 %q", s)
	}
	if v.Sign() < 0 {
		return U256{}, fmt.Errorf("u256 must be non-negative, got %q", s)
	}
	return U256{v: v}, nil
}

// Big returns the underlying *big.Int (a defensive copy).
func (u U256) Big() *big.Int {
	if u.v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(u.v)
}

// String renders the decimal representation.
func (u U256) String() string {
	if u.v == nil {
		return "0"
	}
	return u.v.String()
}

// Cmp compares two U256 values.
func (u U256) Cmp(other U256) int {
	return u.Big().Cmp(other.Big())
}

// Value implements driver.Valuer for NUMERIC columns.
func (u U256) Value() (driver.Value, error) {
	return u.String(), nil
}

// Scan implements sql.Scanner for NUMERIC columns (returned by lib/pq as
// []byte or string).
func (u *U256) Scan(src interface{}) error {
	var s string
	switch v := src.(type) {
	case nil:
		s = "0"
	case []byte:
		s = string(v)
	case string:
		s = v
	default:
		return fmt.Errorf("chain.U256: unsupported scan type %T", src)
	}
	parsed, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fmt.Errorf("chain.U256: invalid numeric %q", s)
	}
	u.v = parsed
	return nil
}

// SignedBig is an arbitrary-precision signed integer used for ERC-1155
// total supply and per-owner balances, which spec.md §9 explicitly
// permits to go transiently negative (the event source is incomplete: an
// owner's first observed action may be a send with no prior mint in the
// stream).
type SignedBig struct{ v *big.Int }

// ZeroSignedBig returns a SignedBig of value 0.
func ZeroSignedBig() SignedBig { return SignedBig{v: new(big.Int)} }

func NewSignedBig(v *big.Int) SignedBig {
	if v == nil {
		return ZeroSignedBig()
	}
	return SignedBig{v: new(big.Int).Set(v)}
}

func (s SignedBig) Big() *big.Int {
	if s.v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(s.v)
}

func (s SignedBig) String() string {
	if s.v == nil {
		return "0"
	}
	return s.v.String()
}

// Add returns s + delta.
func (s SignedBig) Add(delta *big.Int) SignedBig {
	return SignedBig{v: new(big.Int).Add(s.Big(), delta)}
}

// Sub returns s - delta.
func (s SignedBig) Sub(delta *big.Int) SignedBig {
	return SignedBig{v: new(big.Int).Sub(s.Big(), delta)}
}

func (s SignedBig) Value() (driver.Value, error) {
	return s.String(), nil
}

func (s *SignedBig) Scan(src interface{}) error {
	var str string
	switch v := src.(type) {
	case nil:
		str = "0"
	case []byte:
		str = string(v)
	case string:
		str = v
	default:
		return fmt.Errorf("chain.SignedBig: unsupported scan type %T", src)
	}
	parsed, ok := new(big.Int).SetString(str, 10)
	if !ok {
		return fmt.Errorf("chain.SignedBig: invalid numeric %q", str)
	}
	s.v = parsed
	return nil
}

// NftId is the composite primary key for both ERC-721 and ERC-1155 tokens.
type NftId struct {
	Contract Address
	TokenID  U256
}

func (id NftId) String() string {
	return fmt.Sprintf("%s/%s", id.Contract.Hex(), id.TokenID.String())
}

// EventBase is the common envelope every NftEvent carries: its position
// in the canonical per-contract order. Total order is lexicographic on
// (Block, LogIndex); this is the idempotency key's timestamp component
// (spec.md §3, §4.5).
type EventBase struct {
	Block    uint64
	TxIndex  uint64
	LogIndex uint64
	Contract Address
}

// Before reports whether e strictly precedes other in (block, log_index)
// lexicographic order.
func (e EventBase) Before(other EventBase) bool {
	if e.Block != other.Block {
		return e.Block < other.Block
	}
	return e.LogIndex < other.LogIndex
}

// AtLeast reports whether (block, log_index) >= (otherBlock, otherLogIndex) —
// the replay-detection comparison in the universal idempotency rule
// (spec.md §4.5).
func AtLeast(block, logIndex, otherBlock, otherLogIndex uint64) bool {
	if block != otherBlock {
		return block > otherBlock
	}
	return logIndex >= otherLogIndex
}

// TxDetails is the transaction envelope for an event: its hash and
// sender/recipient (recipient absent for contract-creation transactions).
type TxDetails struct {
	Hash Digest
	From Address
	To   *Address
}

// BlockData carries a block's number and wall-clock time.
type BlockData struct {
	Number uint64
	Time   time.Time
}

// DBTime truncates to UTC seconds, matching the original's
// NaiveDateTime::from_timestamp_opt(seconds, 0) convention.
func (b BlockData) DBTime() time.Time {
	return time.Unix(b.Time.Unix(), 0).UTC()
}

// BlockDataFromUnix builds a BlockData from a unix-second timestamp.
func BlockDataFromUnix(number uint64, unixSeconds int64) BlockData {
	return BlockData{Number: number, Time: time.Unix(unixSeconds, 0).UTC()}
}

// Nft is the materialized ERC-721 entity.
type Nft struct {
	ID      NftId
	TokenURI *string
	Owner    Address

	// MetadataHash references NftMetadata.Hash once the off-chain fetcher
	// (C8) resolves the token's URI.
	MetadataHash *[16]byte

	// LastUpdate is the idempotency-key triple (spec.md §3): monotone
	// non-decreasing in lex order across every handler invocation.
	LastUpdateBlock    uint64
	LastUpdateTxIndex  uint64
	LastUpdateLogIndex uint64

	// LastTransfer is set on every Transfer event (mint and burn included).
	LastTransferBlock   uint64
	LastTransferTxIndex uint64

	// Mint is set once, at entity creation, and never mutated again.
	MintBlock   uint64
	MintTxIndex uint64

	// Burn is set iff the most recent transfer's recipient is the zero
	// address.
	BurnBlock   *uint64
	BurnTxIndex *uint64

	Minter   Address
	Approved *Address
}

// Erc1155 is the materialized ERC-1155 token entity (one per (contract,
// token id), independent of owner).
type Erc1155 struct {
	ID          NftId
	TokenURI    *string
	TotalSupply SignedBig
	Creator     Address

	MintBlock   uint64
	MintTxIndex uint64

	LastUpdateBlock    uint64
	LastUpdateTxIndex  uint64
	LastUpdateLogIndex uint64
}

// Erc1155OwnerKey identifies a per-owner balance row. Two logical
// components (NftId, Owner); spec.md §4.3 writes this out as three atomic
// parts (contract, token id, owner) since NftId itself is a pair.
type Erc1155OwnerKey struct {
	ID    NftId
	Owner Address
}

func (k Erc1155OwnerKey) String() string {
	return fmt.Sprintf("%s/%s", k.ID.String(), k.Owner.Hex())
}

// Erc1155Owner is a per-(token, owner) balance.
type Erc1155Owner struct {
	Key     Erc1155OwnerKey
	Balance SignedBig
}

// ApprovalForAllKey identifies an operator-approval row: (contract, owner).
type ApprovalForAllKey struct {
	Contract Address
	Owner    Address
}

func (k ApprovalForAllKey) String() string {
	return fmt.Sprintf("%s/%s", k.Contract.Hex(), k.Owner.Hex())
}

// ApprovalForAll is a per-(contract, owner) operator grant.
type ApprovalForAll struct {
	Key      ApprovalForAllKey
	Operator Address
	Approved bool

	LastUpdateBlock    uint64
	LastUpdateTxIndex  uint64
	LastUpdateLogIndex uint64
}

// TokenContract is a discovered token contract. Created once on first
// observation (spec.md §4.5.7); name/symbol/abi are populated later by
// the on-chain (C5) and off-chain (C8) enrichment paths.
type TokenContract struct {
	Address Address
	Name    *string
	Symbol  *string

	CreatedBlock   uint64
	CreatedTxIndex uint64

	BaseURI *string
	AbiHash *[16]byte
}

// TokenContractFromEventBase constructs a fresh stub contract row at first observation,
// grounded on spec.md §4.5.7 ("TokenContract::from_event_base").
func TokenContractFromEventBase(base EventBase) TokenContract {
	return TokenContract{
		Address:        base.Contract,
		CreatedBlock:   base.Block,
		CreatedTxIndex: base.TxIndex,
	}
}

// ContractAbi is a content-addressed ABI document.
type ContractAbi struct {
	Hash [16]byte
	JSON json.RawMessage
}

// NftMetadata is a content-addressed off-chain metadata document. A
// sentinel hash of [16]byte{} (all zero, "[0]" per spec.md §4.7 step 5)
// marks an error result: these are not deduplicated by content.
type NftMetadata struct {
	Hash [16]byte
	Raw  *string
	JSON json.RawMessage
}

// ErrorHash is the sentinel used for synthetic fetch-error records.
var ErrorHash = [16]byte{}

// Transaction is a (block, index) keyed transaction record.
type Transaction struct {
	Block uint64
	Index uint64
	Hash  Digest
	From  Address
	To    *Address
}

// Block is a number-keyed block timestamp record.
type Block struct {
	Number uint64
	Time   time.Time
}
