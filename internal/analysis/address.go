package analysis

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ErrInvalidAddress is returned for a token address that is not 0x followed
// by 40 hex digits.
var ErrInvalidAddress = errors.New("analysis: invalid token address")

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ValidateAddress checks the token address format. Surrounding whitespace
// is not tolerated; callers trim user input first.
func ValidateAddress(addr string) error {
	if !addressPattern.MatchString(addr) {
		return fmt.Errorf("%w: %q (expected 0x followed by 40 hex characters)", ErrInvalidAddress, addr)
	}
	return nil
}

// NormalizeAddress trims and validates addr and returns its EIP-55
// checksummed form, which is the key used for caching and deduplication.
func NormalizeAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if err := ValidateAddress(addr); err != nil {
		return "", err
	}
	return common.HexToAddress(addr).Hex(), nil
}
