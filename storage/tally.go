package storage

import (
	"fmt"

	"github.com/antonymartiz/PrivateVoting/types"
	"github.com/ethereum/go-ethereum/common"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

// SetTally stores the result of a confirmed finalization and releases the
// reservation of its contract in the same transaction.
func (s *Storage) SetTally(res *types.TallyResult) error {
	if res == nil {
		return fmt.Errorf("nil tally")
	}
	val, err := encodeArtifact(res)
	if err != nil {
		return fmt.Errorf("encode tally: %w", err)
	}
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	wTx := s.db.WriteTx()
	if err := prefixeddb.NewPrefixedWriteTx(wTx, tallyPrefix).Set(res.Contract.Bytes(), val); err != nil {
		wTx.Discard()
		return fmt.Errorf("set tally: %w", err)
	}
	if err := prefixeddb.NewPrefixedWriteTx(wTx, reservationPrefix).Delete(res.Contract.Bytes()); err != nil {
		wTx.Discard()
		return fmt.Errorf("delete reservation: %w", err)
	}
	return wTx.Commit()
}

// Tally returns the tally finalized for contract, or ErrNotFound.
func (s *Storage) Tally(contract common.Address) (*types.TallyResult, error) {
	data, err := s.getArtifact(tallyPrefix, contract.Bytes())
	if err != nil {
		return nil, err
	}
	res := &types.TallyResult{}
	if err := decodeArtifact(data, res); err != nil {
		return nil, fmt.Errorf("decode tally: %w", err)
	}
	return res, nil
}

// ListTallies returns the contracts with a finalized tally.
func (s *Storage) ListTallies() ([]common.Address, error) {
	keys, err := s.listArtifacts(tallyPrefix)
	if err != nil {
		return nil, err
	}
	contracts := make([]common.Address, 0, len(keys))
	for _, k := range keys {
		contracts = append(contracts, common.BytesToAddress(k))
	}
	return contracts, nil
}
