package rpc

import (
	"context"
	"testing"

	"github.com/antonymartiz/PrivateVoting/tally"
	"github.com/antonymartiz/PrivateVoting/web3/rpc/rpctest"
	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
)

var votingAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

func TestCandidates(t *testing.T) {
	c := qt.New(t)

	c.Assert(Candidates("http://localhost:8545", []string{SepoliaPublicURI}, ""), qt.DeepEquals,
		[]string{"http://localhost:8545", SepoliaPublicURI})
	c.Assert(Candidates("http://localhost:8545", []string{" ", SepoliaPublicURI, "http://localhost:8545"}, "abc"), qt.DeepEquals,
		[]string{"http://localhost:8545", SepoliaPublicURI, "https://sepolia.infura.io/v3/abc"})
	c.Assert(Candidates("", nil, ""), qt.HasLen, 0)
	c.Assert(redact("https://sepolia.infura.io/v3/abc"), qt.Equals, "https://sepolia.infura.io/v3/***")
}

func TestResolveFirstWithCode(t *testing.T) {
	c := qt.New(t)

	empty := rpctest.NewNode(t, 31337)
	deployed := rpctest.NewNode(t, 11155111)
	deployed.SetCode(votingAddr, []byte{0x60, 0x80})
	other := rpctest.NewNode(t, 1)
	other.SetCode(votingAddr, []byte{0x60, 0x80})

	r := NewResolver(empty.URL, deployed.URL, other.URL)
	endpoint, err := r.Resolve(context.Background(), votingAddr)
	c.Assert(err, qt.IsNil)
	defer endpoint.Close()
	c.Assert(endpoint.URI, qt.Equals, deployed.URL)
	c.Assert(endpoint.ChainID, qt.Equals, uint64(11155111))
	c.Assert(endpoint.Client(), qt.Not(qt.IsNil))

	// candidates after the winning one are never dialed
	c.Assert(empty.Requests("eth_getCode"), qt.Equals, 1)
	c.Assert(other.Requests("eth_getCode"), qt.Equals, 0)
}

func TestResolveSkipsUnavailable(t *testing.T) {
	c := qt.New(t)

	down := rpctest.NewNode(t, 1)
	down.SetFailing(true)
	up := rpctest.NewNode(t, 1)
	up.SetCode(votingAddr, []byte{0x01})

	endpoint, err := NewResolver(down.URL, up.URL).Resolve(context.Background(), votingAddr)
	c.Assert(err, qt.IsNil)
	defer endpoint.Close()
	c.Assert(endpoint.URI, qt.Equals, up.URL)
}

func TestResolveContractNotFound(t *testing.T) {
	c := qt.New(t)

	a := rpctest.NewNode(t, 1)
	b := rpctest.NewNode(t, 1)
	b.SetFailing(true)

	_, err := NewResolver(a.URL, b.URL).Resolve(context.Background(), votingAddr)
	c.Assert(tally.KindOf(err), qt.Equals, tally.KindContractNotFound)
}

func TestResolveNoReachableProvider(t *testing.T) {
	c := qt.New(t)

	a := rpctest.NewNode(t, 1)
	a.SetFailing(true)
	b := rpctest.NewNode(t, 1)
	b.SetFailing(true)
	b.SetCode(votingAddr, []byte{0x01})

	_, err := NewResolver(a.URL, b.URL).Resolve(context.Background(), votingAddr)
	c.Assert(tally.KindOf(err), qt.Equals, tally.KindLedgerReadFailure)
	c.Assert(err, qt.ErrorMatches, ".*none of 2 web3 providers is reachable.*")

	_, err = NewResolver().Resolve(context.Background(), votingAddr)
	c.Assert(tally.KindOf(err), qt.Equals, tally.KindLedgerReadFailure)
}

func TestDial(t *testing.T) {
	c := qt.New(t)

	node := rpctest.NewNode(t, 31337)
	endpoint, err := Dial(context.Background(), node.URL)
	c.Assert(err, qt.IsNil)
	defer endpoint.Close()
	c.Assert(endpoint.ChainID, qt.Equals, uint64(31337))
}
