// Package finalizer holds the only code path that touches the private key
// and the ledger signing credential. It reads the ballots of a contract,
// aggregates them, decrypts the aggregate, unpacks both counters and submits
// them to the voting contract. It is meant to run inside the short-lived
// process spawned by the boundary package.
package finalizer

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/antonymartiz/PrivateVoting/crypto/paillier"
	"github.com/antonymartiz/PrivateVoting/log"
	"github.com/antonymartiz/PrivateVoting/tally"
	"github.com/antonymartiz/PrivateVoting/types"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// Ledger is the voting contract as seen by the finalizer.
type Ledger interface {
	EncryptedVotes(ctx context.Context) ([][]byte, error)
	FinalizeTally(ctx context.Context, forVotes, againstVotes *big.Int) (common.Hash, error)
	WaitTx(ctx context.Context, hash common.Hash) (*gethtypes.Receipt, error)
}

// Input is what the finalizer needs to know about one tally.
type Input struct {
	RequestID string
	Contract  common.Address
}

// Finalizer aggregates, decrypts and submits tallies.
type Finalizer struct {
	key    *paillier.PrivateKey
	ledger Ledger

	// Workers is the number of goroutines folding ciphertexts, zero for
	// GOMAXPROCS.
	Workers int
}

// New returns a Finalizer using key to decrypt and ledger to read the
// ballots and submit the tally.
func New(key *paillier.PrivateKey, ledger Ledger) *Finalizer {
	return &Finalizer{key: key, ledger: ledger}
}

// Finalize reads and aggregates the ballots, decrypts the aggregate, unpacks
// both counters, submits them with finalizeTally and waits for the
// transaction to be mined. Nothing is submitted if there are no valid
// ballots, decryption fails or the counters overflow. No step is retried.
func (f *Finalizer) Finalize(ctx context.Context, in *Input) (*types.TallyResult, error) {
	entries, err := f.ledger.EncryptedVotes(ctx)
	if err != nil {
		return nil, tally.Wrap(tally.KindLedgerReadFailure, err)
	}
	agg, err := tally.CombineParallel(ctx, &f.key.PublicKey, entries, f.Workers)
	if err != nil {
		return nil, tally.Wrap(tally.KindInternal, err)
	}
	plaintext, err := paillier.Decrypt(f.key, agg.Ciphertext)
	if err != nil {
		return nil, tally.Errorf(tally.KindDecryptionFailure, "failed to decrypt aggregate: %w", err)
	}
	if err := tally.CheckOverflow(plaintext, agg.Count); err != nil {
		// a wrong key yields a random plaintext, which ends up here too
		return nil, err
	}
	forVotes, againstVotes := tally.Unpack(plaintext)
	log.Infow("tally decrypted",
		"requestID", in.RequestID,
		"contract", in.Contract.Hex(),
		"ballots", agg.Count,
		"skipped", agg.Skipped(),
		"forVotes", forVotes.String(),
		"againstVotes", againstVotes.String())

	hash, err := f.ledger.FinalizeTally(ctx, forVotes, againstVotes)
	if err != nil {
		return nil, tally.Wrap(tally.KindLedgerWriteFailure, err)
	}
	if _, err := f.ledger.WaitTx(ctx, hash); err != nil {
		return nil, tally.Wrap(tally.KindLedgerWriteFailure, fmt.Errorf("finalize transaction %s: %w", hash.Hex(), err))
	}
	log.Infow("tally finalized", "requestID", in.RequestID, "contract", in.Contract.Hex(), "tx", hash.Hex())
	return &types.TallyResult{
		Contract:     in.Contract,
		ForVotes:     types.NewBigInt(forVotes),
		AgainstVotes: types.NewBigInt(againstVotes),
		Tx:           hash,
		Ballots:      agg.Count,
		Skipped:      agg.Skipped(),
		RequestID:    in.RequestID,
		FinalizedAt:  time.Now().UTC(),
	}, nil
}
