package service

import (
	"context"

	"github.com/antonymartiz/PrivateVoting/log"
	"github.com/antonymartiz/PrivateVoting/tally"
	"github.com/antonymartiz/PrivateVoting/web3"
	"github.com/antonymartiz/PrivateVoting/web3/rpc"
	"github.com/ethereum/go-ethereum/common"
)

// Ledger defines the interface for reading the ledger side of a voting
// contract.
type Ledger interface {
	// Open resolves where the contract lives. It fails with a
	// ContractNotFound error if no provider knows it.
	Open(ctx context.Context, contract common.Address) (VoteSource, error)
}

// VoteSource reads the encrypted votes of one contract on one resolved
// endpoint.
type VoteSource interface {
	EncryptedVotes(ctx context.Context) ([][]byte, error)
	Close()
}

// Web3Ledger implements Ledger over the web3 providers of a resolver.
type Web3Ledger struct {
	resolver *rpc.Resolver
}

// NewWeb3Ledger returns a Ledger probing the resolver candidates.
func NewWeb3Ledger(resolver *rpc.Resolver) *Web3Ledger {
	return &Web3Ledger{resolver: resolver}
}

// Open implements Ledger.
func (l *Web3Ledger) Open(ctx context.Context, contract common.Address) (VoteSource, error) {
	endpoint, err := l.resolver.Resolve(ctx, contract)
	if err != nil {
		return nil, tally.Wrap(tally.KindLedgerReadFailure, err)
	}
	log.Debugw("reading votes", "contract", contract.Hex(), "uri", endpoint.URI)
	return &web3Source{endpoint: endpoint, voting: web3.NewVoting(contract, endpoint)}, nil
}

type web3Source struct {
	endpoint *rpc.Endpoint
	voting   *web3.Voting
}

func (s *web3Source) EncryptedVotes(ctx context.Context) ([][]byte, error) {
	return s.voting.EncryptedVotes(ctx)
}

func (s *web3Source) Close() {
	s.endpoint.Close()
}
