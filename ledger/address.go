package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Address identifies an account or a registry.
type Address = common.Address

// ZeroAddress is the burn sentinel. A burned token is owned by it.
var ZeroAddress Address

// ContractAddress derives a registry address from its deployer and the
// deployer's nonce, the same way a contract creation does.
func ContractAddress(deployer Address, nonce uint64) Address {
	return crypto.CreateAddress(deployer, nonce)
}

// ParseAddress parses a 0x-prefixed hex address.
func ParseAddress(s string) (Address, error) {
	if !common.IsHexAddress(s) {
		return ZeroAddress, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}
