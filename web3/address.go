package web3

import (
	"regexp"
	"strings"

	"github.com/antonymartiz/PrivateVoting/tally"
	"github.com/ethereum/go-ethereum/common"
)

var addressRgx = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ParseAddress parses a 0x prefixed, 20 byte hex contract address. The zero
// address is rejected. Any failure is an InvalidContractAddress error.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !addressRgx.MatchString(s) {
		return common.Address{}, tally.Errorf(tally.KindInvalidContractAddress, "%q is not a 0x prefixed 20 byte hex address", s)
	}
	addr := common.HexToAddress(s)
	if addr == (common.Address{}) {
		return common.Address{}, tally.Errorf(tally.KindInvalidContractAddress, "zero address")
	}
	return addr, nil
}
