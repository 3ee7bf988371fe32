package graph

import "strings"

// ---------------------------------------------------------------------------
// Known mixer contracts: Ethereum mainnet privacy pools
// Wallets flagged by address here are mixers regardless of behaviour.
// ---------------------------------------------------------------------------

// knownMixers maps lower-cased contract addresses to a mixer type.
var knownMixers = map[string]string{
	// Tornado Cash
	"0xd90e2f925da726b50c4ed8d0fb90ad053324f31b": "tornado_cash_router",
	"0x12d66f87a04a9e220743712ce6d9bb1b5616b8fc": "tornado_cash_0.1eth",
	"0x47ce0c6ed5b0ce3d3a51fdb1c52dc66a7c3c2936": "tornado_cash_1eth",
	"0x910cbd523d972eb0a6f4cae4618ad62622b39dbf": "tornado_cash_10eth",
	"0xa160cdab225685da1d56aa342ad8841c3b53f291": "tornado_cash_100eth",
}

// IsKnownMixer reports whether address is a known mixer contract and
// returns its type.
func IsKnownMixer(address string) (string, bool) {
	kind, ok := knownMixers[strings.ToLower(address)]
	return kind, ok
}

