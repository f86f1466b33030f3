package web3

import (
	"testing"

	"github.com/antonymartiz/PrivateVoting/tally"
	qt "github.com/frankban/quicktest"
)

func TestParseAddress(t *testing.T) {
	c := qt.New(t)

	addr, err := ParseAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	c.Assert(err, qt.IsNil)
	c.Assert(addr, qt.Equals, votingAddr)

	addr, err = ParseAddress(" 0x5fbdb2315678afecb367f032d93f642f64180aa3 ")
	c.Assert(err, qt.IsNil)
	c.Assert(addr, qt.Equals, votingAddr)

	for _, s := range []string{
		"",
		"5FbDB2315678afecb367f032d93F642f64180aa3",
		"0x5FbDB2315678afecb367f032d93F642f64180aa",
		"0x5FbDB2315678afecb367f032d93F642f64180aa3ff",
		"0xZZbDB2315678afecb367f032d93F642f64180aa3",
		"0x0000000000000000000000000000000000000000",
	} {
		_, err := ParseAddress(s)
		c.Assert(tally.KindOf(err), qt.Equals, tally.KindInvalidContractAddress, qt.Commentf("address %q", s))
	}
}
