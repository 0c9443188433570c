package handlers

import (
	"github.com/zunokit/evm-nft-indexer/chain"
)

// PatchContractDetails splices node-fetched name/symbol back onto a
// cached contract row (spec.md §4.6 step 6). Absent values (nil) leave
// the existing field untouched so a later page can still resolve them.
func (d *Dispatcher) PatchContractDetails(addr chain.Address, name, symbol *string) {
	contract, ok := d.cache.Contract(addr)
	if !ok {
		return
	}
	if name != nil {
		contract.Name = name
	}
	if symbol != nil {
		contract.Symbol = symbol
	}
	d.cache.PutContract(contract)
}

// PatchTokenURI splices a node-fetched ERC-721 tokenURI back onto a
// cached Nft row.
func (d *Dispatcher) PatchTokenURI(nft chain.Nft, uri string) {
	nft.TokenURI = &uri
	d.cache.PutNft(nft)
}
