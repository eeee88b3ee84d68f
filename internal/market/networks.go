package market

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/mr-tron/base58"
)

// Provider names used in errors and metrics.
const (
	ProviderGeckoTerminal = "geckoterminal"
	ProviderDexScreener   = "dexscreener"
)

// AddressFormat describes how pool references are encoded on a network.
type AddressFormat int

const (
	AddressBase58 AddressFormat = iota // 32-byte base58 account (Solana)
	AddressEVM                         // 0x-prefixed 20-byte hex
)

// Network maps an internal network id to provider-specific identifiers.
type Network struct {
	ID            string        // internal id stored on assets
	GeckoTerminal string        // path segment for OHLCV requests
	DexScreener   string        // chain id for pair lookups
	Format        AddressFormat // pool address encoding
}

// DefaultNetworks is the built-in mapping table.
var DefaultNetworks = []Network{
	{ID: "solana", GeckoTerminal: "solana", DexScreener: "solana", Format: AddressBase58},
	{ID: "ethereum", GeckoTerminal: "eth", DexScreener: "ethereum", Format: AddressEVM},
	{ID: "bsc", GeckoTerminal: "bsc", DexScreener: "bsc", Format: AddressEVM},
	{ID: "base", GeckoTerminal: "base", DexScreener: "base", Format: AddressEVM},
	{ID: "arbitrum", GeckoTerminal: "arbitrum", DexScreener: "arbitrum", Format: AddressEVM},
	{ID: "polygon", GeckoTerminal: "polygon_pos", DexScreener: "polygon", Format: AddressEVM},
	{ID: "avalanche", GeckoTerminal: "avax", DexScreener: "avalanche", Format: AddressEVM},
}

// Networks is a lookup table of supported networks.
type Networks struct {
	byID map[string]Network
}

// NewNetworks builds a lookup table. Later entries override earlier ones.
func NewNetworks(list ...Network) *Networks {
	n := &Networks{byID: make(map[string]Network, len(list))}
	for _, nw := range list {
		n.byID[strings.ToLower(nw.ID)] = nw
	}
	return n
}

// Lookup returns the mapping for a network id.
func (n *Networks) Lookup(id string) (Network, bool) {
	nw, ok := n.byID[strings.ToLower(id)]
	return nw, ok
}

// Supported returns the sorted list of supported network ids.
func (n *Networks) Supported() []string {
	ids := make([]string, 0, len(n.byID))
	for id := range n.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ValidatePoolRef checks that poolRef is well formed for the network.
func (nw Network) ValidatePoolRef(poolRef string) error {
	switch nw.Format {
	case AddressBase58:
		decoded, err := base58.Decode(poolRef)
		if err != nil {
			return &DataFormatError{Op: "validate pool", Detail: fmt.Sprintf("pool %q is not base58", poolRef), Err: err}
		}
		if len(decoded) != 32 {
			return &DataFormatError{Op: "validate pool", Detail: fmt.Sprintf("pool %q decodes to %d bytes, want 32", poolRef, len(decoded))}
		}
	case AddressEVM:
		if !strings.HasPrefix(poolRef, "0x") || len(poolRef) != 42 {
			return &DataFormatError{Op: "validate pool", Detail: fmt.Sprintf("pool %q is not a 0x-prefixed 20-byte address", poolRef)}
		}
		if _, err := hex.DecodeString(poolRef[2:]); err != nil {
			return &DataFormatError{Op: "validate pool", Detail: fmt.Sprintf("pool %q is not hex", poolRef), Err: err}
		}
	}
	return nil
}
