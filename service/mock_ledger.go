package service

import (
	"context"
	"sync"

	"github.com/antonymartiz/PrivateVoting/tally"
	"github.com/ethereum/go-ethereum/common"
)

// MockLedger implements a mock version of Ledger for testing
type MockLedger struct {
	mu      sync.Mutex
	votes   map[common.Address][][]byte
	readErr error
	reads   int
}

func NewMockLedger() *MockLedger {
	return &MockLedger{
		votes: make(map[common.Address][][]byte),
	}
}

// Deploy makes the contract known to the ledger with no votes.
func (m *MockLedger) Deploy(contract common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.votes[contract]; !ok {
		m.votes[contract] = [][]byte{}
	}
}

// AddVotes appends raw ciphertexts to the contract.
func (m *MockLedger) AddVotes(contract common.Address, votes ...[]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.votes[contract] = append(m.votes[contract], votes...)
}

// SetReadError makes every following read fail with err.
func (m *MockLedger) SetReadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
}

// Reads returns how many times the votes were read.
func (m *MockLedger) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

func (m *MockLedger) Open(_ context.Context, contract common.Address) (VoteSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.votes[contract]; !ok {
		return nil, tally.Errorf(tally.KindContractNotFound, "no code at %s", contract.Hex())
	}
	return &mockSource{ledger: m, contract: contract}, nil
}

type mockSource struct {
	ledger   *MockLedger
	contract common.Address
}

func (s *mockSource) EncryptedVotes(_ context.Context) ([][]byte, error) {
	s.ledger.mu.Lock()
	defer s.ledger.mu.Unlock()
	s.ledger.reads++
	if s.ledger.readErr != nil {
		return nil, tally.Wrap(tally.KindLedgerReadFailure, s.ledger.readErr)
	}
	votes := make([][]byte, len(s.ledger.votes[s.contract]))
	copy(votes, s.ledger.votes[s.contract])
	return votes, nil
}

func (s *mockSource) Close() {}
