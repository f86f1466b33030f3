package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/antonymartiz/PrivateVoting/boundary"
	"github.com/antonymartiz/PrivateVoting/crypto/ethereum"
	"github.com/antonymartiz/PrivateVoting/crypto/paillier"
	"github.com/antonymartiz/PrivateVoting/log"
	"github.com/antonymartiz/PrivateVoting/storage"
	"github.com/antonymartiz/PrivateVoting/tally"
	"github.com/antonymartiz/PrivateVoting/types"
	"github.com/antonymartiz/PrivateVoting/web3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// TallyConfig holds what the network-facing side knows about the tally. It
// never holds secrets, only where they are.
type TallyConfig struct {
	// DefaultContract is used when a request names no contract.
	DefaultContract string
	// ProviderURL is the configured web3 provider, exposed to clients.
	ProviderURL string
	// KeyPath is the key file. Only its public half is read here.
	KeyPath string
	// SignerKeyPath and SignerKeyEnv locate the signing credential. Only
	// its presence is checked here.
	SignerKeyPath string
	SignerKeyEnv  string
	// Workers is the number of goroutines folding ciphertexts, zero for
	// GOMAXPROCS.
	Workers int
}

// TallyService guards finalizations and hands them to the isolated
// finalizer. It aggregates the ballots on its own side only to answer
// "no votes" without waking the finalizer.
type TallyService struct {
	conf     *TallyConfig
	storage  *storage.Storage
	ledger   Ledger
	boundary boundary.Boundary

	mu      sync.Mutex
	running bool
}

// NewTally creates a new TallyService. When the boundary is a
// ProcessBoundary, its OnLate hook should be set to HandleLate.
func NewTally(conf *TallyConfig, stg *storage.Storage, ledger Ledger, b boundary.Boundary) *TallyService {
	return &TallyService{
		conf:     conf,
		storage:  stg,
		ledger:   ledger,
		boundary: b,
	}
}

// Start prepares the service. Reservations left by a previous run are
// dropped, since no finalizer can be running for them anymore.
func (ts *TallyService) Start() error {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.running {
		return fmt.Errorf("service already running")
	}
	n, err := ts.storage.ClearReservations()
	if err != nil {
		return fmt.Errorf("failed to clear reservations: %w", err)
	}
	if n > 0 {
		log.Warnw("dropped stale finalization reservations", "count", n)
	}
	ts.running = true
	return nil
}

// Stop halts the service. Finalizer processes still running are not
// waited for; their reservations are dropped by the next Start.
func (ts *TallyService) Stop() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.running = false
}

// AggregateAndFinalize fetches the encrypted votes of contract, combines
// them and asks the finalizer to decrypt and submit the tally. An empty
// contract selects the default one. Only one finalization per contract can
// ever succeed.
func (ts *TallyService) AggregateAndFinalize(ctx context.Context, contract string) (*types.TallyOutcome, error) {
	if contract == "" {
		contract = ts.conf.DefaultContract
	}
	if contract == "" {
		return nil, tally.Errorf(tally.KindInvalidContractAddress, "no contract address given and no default configured")
	}
	addr, err := web3.ParseAddress(contract)
	if err != nil {
		return nil, err
	}
	if !paillier.KeyFileExists(ts.conf.KeyPath) {
		return nil, tally.Errorf(tally.KindMissingKeyMaterial, "no key file at %s", ts.conf.KeyPath)
	}
	if !ethereum.HasSignKeys(ts.conf.SignerKeyPath, ts.conf.SignerKeyEnv) {
		return nil, tally.Errorf(tally.KindMissingSigningCredential, "signing credential not configured")
	}

	requestID := uuid.New().String()
	if err := ts.storage.Reserve(addr, requestID); err != nil {
		return nil, err
	}
	keep := false
	defer func() {
		if keep {
			return
		}
		if err := ts.storage.Release(addr); err != nil {
			log.Errorw(err, "failed to release reservation", "contract", addr.Hex())
		}
	}()
	log.Infow("finalization started", "contract", addr.Hex(), "requestID", requestID)

	pub, err := paillier.LoadPublicKey(ts.conf.KeyPath)
	if err != nil {
		return nil, tally.Errorf(tally.KindMissingKeyMaterial, "failed to load public key: %w", err)
	}
	source, err := ts.ledger.Open(ctx, addr)
	if err != nil {
		return nil, err
	}
	defer source.Close()
	entries, err := source.EncryptedVotes(ctx)
	if err != nil {
		return nil, tally.Wrap(tally.KindLedgerReadFailure, err)
	}

	agg, err := tally.CombineParallel(ctx, pub, entries, ts.conf.Workers)
	if errors.Is(err, tally.ErrNoVotes) {
		log.Infow("no votes to finalize", "contract", addr.Hex(), "entries", len(entries), "skipped", agg.Skipped())
		return &types.TallyOutcome{NoVotes: true, Skipped: agg.Skipped()}, nil
	}
	if err != nil {
		return nil, tally.Wrap(tally.KindInternal, err)
	}
	log.Debugw("votes aggregated", "contract", addr.Hex(), "ballots", agg.Count, "skipped", agg.Skipped())

	res, err := ts.boundary.Finalize(ctx, &boundary.Request{
		RequestID: requestID,
		Contract:  addr,
	})
	if errors.Is(err, tally.ErrNoVotes) {
		log.Infow("finalizer found no votes", "contract", addr.Hex())
		return &types.TallyOutcome{NoVotes: true, Skipped: agg.Skipped()}, nil
	}
	if err != nil {
		// the finalizer may still submit the transaction, HandleLate settles
		// the reservation once it answers
		keep = tally.KindOf(err) == tally.KindBoundaryTimeout
		return nil, err
	}
	if err := ts.storage.SetTally(res); err != nil {
		// the tally is on the ledger already, keep the contract reserved
		keep = true
		log.Errorw(err, "failed to store finalized tally", "contract", addr.Hex(), "tx", res.Tx.Hex())
	}
	log.Infow("tally finalized",
		"contract", addr.Hex(),
		"for", res.ForVotes.String(),
		"against", res.AgainstVotes.String(),
		"tx", res.Tx.Hex())
	return &types.TallyOutcome{Result: res, Skipped: res.Skipped}, nil
}

// HandleLate settles the reservation of a request whose finalizer answered
// after the caller stopped waiting. It is the OnLate hook of the process
// boundary.
func (ts *TallyService) HandleLate(req *boundary.Request, res *types.TallyResult, err error) {
	r, rerr := ts.storage.Reservation(req.Contract)
	if rerr != nil || r.RequestID != req.RequestID {
		log.Warnw("late finalizer answer without matching reservation", "requestID", req.RequestID, "contract", req.Contract.Hex())
		return
	}
	if err != nil {
		if rerr := ts.storage.Release(req.Contract); rerr != nil {
			log.Errorw(rerr, "failed to release reservation", "contract", req.Contract.Hex())
		}
		return
	}
	if err := ts.storage.SetTally(res); err != nil {
		log.Errorw(err, "failed to store late tally", "contract", req.Contract.Hex(), "tx", res.Tx.Hex())
	}
}

// Tally returns the stored tally of contract.
func (ts *TallyService) Tally(contract common.Address) (*types.TallyResult, error) {
	return ts.storage.Tally(contract)
}

// Tallies lists the contracts with a stored tally.
func (ts *TallyService) Tallies() ([]common.Address, error) {
	return ts.storage.ListTallies()
}

// PublicKey returns the public half of the key file.
func (ts *TallyService) PublicKey() (*paillier.PublicKeyFile, error) {
	return paillier.ReadPublicKeyFile(ts.conf.KeyPath)
}

// KeyPresent reports whether the key file exists.
func (ts *TallyService) KeyPresent() bool {
	return paillier.KeyFileExists(ts.conf.KeyPath)
}

// DefaultContract returns the configured default contract.
func (ts *TallyService) DefaultContract() string {
	return ts.conf.DefaultContract
}

// ProviderURL returns the configured web3 provider.
func (ts *TallyService) ProviderURL() string {
	return ts.conf.ProviderURL
}
