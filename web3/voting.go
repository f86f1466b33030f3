package web3

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/antonymartiz/PrivateVoting/crypto/ethereum"
	"github.com/antonymartiz/PrivateVoting/log"
	"github.com/antonymartiz/PrivateVoting/tally"
	"github.com/antonymartiz/PrivateVoting/web3/rpc"
	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/errgroup"
)

const (
	// VotingABI is the subset of the voting contract interface used here.
	VotingABI = `[
	{"type":"function","name":"getEncryptedVotes","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bytes[]"}]},
	{"type":"function","name":"submitVote","stateMutability":"nonpayable","inputs":[{"name":"encryptedVote","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"finalizeTally","stateMutability":"nonpayable","inputs":[{"name":"forVotes","type":"uint256"},{"name":"againstVotes","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"startTime","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"endTime","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]}
]`

	web3QueryTimeout = 15 * time.Second
	// DefaultWaitInterval is the receipt polling interval used by WaitTx.
	DefaultWaitInterval = 2 * time.Second
)

// votingABI is the parsed VotingABI.
var votingABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(VotingABI))
	if err != nil {
		panic(fmt.Sprintf("invalid voting ABI: %v", err))
	}
	return parsed
}()

// ErrTxReverted is returned by WaitTx when the transaction was mined but
// reverted.
var ErrTxReverted = errors.New("transaction reverted")

// ContractInfo describes a deployed voting contract.
type ContractInfo struct {
	Address   common.Address `json:"address"`
	CodeSize  int            `json:"codeSize"`
	StartTime *big.Int       `json:"startTime"`
	EndTime   *big.Int       `json:"endTime"`
	Owner     common.Address `json:"owner"`
}

// Voting contains the bindings to a deployed voting contract on a resolved
// endpoint.
type Voting struct {
	ChainID  uint64
	address  common.Address
	endpoint *rpc.Endpoint
	contract *bind.BoundContract
	signer   *ethereum.SignKeys

	// WaitInterval is the receipt polling interval.
	WaitInterval time.Duration
}

// NewVoting binds the voting contract at address on the endpoint.
func NewVoting(address common.Address, endpoint *rpc.Endpoint) *Voting {
	cli := endpoint.Client()
	return &Voting{
		ChainID:      endpoint.ChainID,
		address:      address,
		endpoint:     endpoint,
		contract:     bind.NewBoundContract(address, votingABI, cli, cli, cli),
		WaitInterval: DefaultWaitInterval,
	}
}

// Address returns the address of the voting contract.
func (v *Voting) Address() common.Address {
	return v.address
}

// SetSigner sets the keys used for signing transactions.
func (v *Voting) SetSigner(signer *ethereum.SignKeys) {
	v.signer = signer
}

// AccountAddress returns the address of the account used to sign
// transactions, or the zero address if no signer is set.
func (v *Voting) AccountAddress() common.Address {
	if v.signer == nil {
		return common.Address{}
	}
	return v.signer.Address()
}

// EncryptedVotes returns the raw ciphertexts stored by the contract, in
// ledger order.
func (v *Voting) EncryptedVotes(ctx context.Context) ([][]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, web3QueryTimeout)
	defer cancel()
	var out []any
	if err := v.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getEncryptedVotes"); err != nil {
		return nil, tally.Errorf(tally.KindLedgerReadFailure, "failed to get encrypted votes: %w", err)
	}
	if len(out) != 1 {
		return nil, tally.Errorf(tally.KindLedgerReadFailure, "unexpected getEncryptedVotes output")
	}
	votes := *abi.ConvertType(out[0], new([][]byte)).(*[][]byte)
	log.Debugw("encrypted votes fetched", "contract", v.address.Hex(), "count", len(votes))
	return votes, nil
}

// FinalizeTally sends the finalizeTally transaction with both counters. It
// returns as soon as the transaction is accepted by the endpoint; use WaitTx
// to wait for it to be mined.
func (v *Voting) FinalizeTally(ctx context.Context, forVotes, againstVotes *big.Int) (common.Hash, error) {
	txOpts, err := v.authTransactOpts(ctx)
	if err != nil {
		return common.Hash{}, tally.Wrap(tally.KindLedgerWriteFailure, fmt.Errorf("failed to create transact options: %w", err))
	}
	tx, err := v.contract.Transact(txOpts, "finalizeTally", forVotes, againstVotes)
	if err != nil {
		return common.Hash{}, tally.Errorf(tally.KindLedgerWriteFailure, "failed to finalize tally: %w", err)
	}
	log.Infow("finalize tally transaction sent",
		"contract", v.address.Hex(),
		"tx", tx.Hash().Hex(),
		"nonce", tx.Nonce())
	return tx.Hash(), nil
}

// SubmitVote sends a submitVote transaction carrying one encrypted ballot.
func (v *Voting) SubmitVote(ctx context.Context, ciphertext []byte) (common.Hash, error) {
	txOpts, err := v.authTransactOpts(ctx)
	if err != nil {
		return common.Hash{}, tally.Wrap(tally.KindLedgerWriteFailure, fmt.Errorf("failed to create transact options: %w", err))
	}
	tx, err := v.contract.Transact(txOpts, "submitVote", ciphertext)
	if err != nil {
		return common.Hash{}, tally.Errorf(tally.KindLedgerWriteFailure, "failed to submit vote: %w", err)
	}
	log.Infow("vote submitted", "contract", v.address.Hex(), "tx", tx.Hash().Hex())
	return tx.Hash(), nil
}

// WaitTx polls the endpoint until the transaction is mined or ctx is done.
// A mined but reverted transaction returns ErrTxReverted.
func (v *Voting) WaitTx(ctx context.Context, hash common.Hash) (*gethtypes.Receipt, error) {
	interval := v.WaitInterval
	if interval <= 0 {
		interval = DefaultWaitInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		qctx, cancel := context.WithTimeout(ctx, web3QueryTimeout)
		receipt, err := v.endpoint.Client().TransactionReceipt(qctx, hash)
		cancel()
		switch {
		case err == nil:
			if receipt.Status != gethtypes.ReceiptStatusSuccessful {
				return receipt, tally.Errorf(tally.KindLedgerWriteFailure, "%w: %s", ErrTxReverted, hash.Hex())
			}
			log.Debugw("transaction mined", "tx", hash.Hex(), "block", receipt.BlockNumber)
			return receipt, nil
		case errors.Is(err, goethereum.NotFound):
		default:
			log.Warnw("failed to get transaction receipt, retrying", "tx", hash.Hex(), "error", err.Error())
		}
		select {
		case <-ctx.Done():
			return nil, tally.Errorf(tally.KindLedgerWriteFailure, "waiting for %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// Info returns the code size, voting window and owner of the contract.
func (v *Voting) Info(ctx context.Context) (*ContractInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, web3QueryTimeout)
	defer cancel()
	code, err := v.endpoint.Client().CodeAt(ctx, v.address, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get code: %w", err)
	}
	info := &ContractInfo{Address: v.address, CodeSize: len(code)}
	if len(code) == 0 {
		return info, tally.Errorf(tally.KindContractNotFound, "no code at %s", v.address.Hex())
	}
	g, gctx := errgroup.WithContext(ctx)
	opts := &bind.CallOpts{Context: gctx}
	g.Go(func() (err error) {
		info.StartTime, err = v.callBigInt(opts, "startTime")
		return err
	})
	g.Go(func() (err error) {
		info.EndTime, err = v.callBigInt(opts, "endTime")
		return err
	})
	g.Go(func() error {
		var out []any
		if err := v.contract.Call(opts, &out, "owner"); err != nil {
			return fmt.Errorf("failed to get owner: %w", err)
		}
		info.Owner = *abi.ConvertType(out[0], new(common.Address)).(*common.Address)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return info, nil
}

func (v *Voting) callBigInt(opts *bind.CallOpts, method string) (*big.Int, error) {
	var out []any
	if err := v.contract.Call(opts, &out, method); err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", method, err)
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// authTransactOpts helper method creates the transact options with the
// configured signer. It sets the nonce and the gas tip cap; the gas limit is
// estimated by the binding. If something goes wrong creating the signer,
// getting the nonce, or getting the gas price, it returns an error.
func (v *Voting) authTransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if v.signer == nil {
		return nil, tally.Wrap(tally.KindMissingSigningCredential, ethereum.ErrNoSigningKey)
	}
	bChainID := new(big.Int).SetUint64(v.ChainID)
	auth, err := bind.NewKeyedTransactorWithChainID(v.signer.PrivateKey(), bChainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	qctx, cancel := context.WithTimeout(ctx, web3QueryTimeout)
	defer cancel()
	address := v.signer.Address()
	log.Debugw("getting nonce", "address", address.Hex())
	nonce, err := v.endpoint.Client().PendingNonceAt(qctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	auth.Nonce = new(big.Int).SetUint64(nonce)
	if auth.GasTipCap, err = v.endpoint.Client().SuggestGasTipCap(qctx); err != nil {
		return nil, fmt.Errorf("failed to get gas tip cap: %w", err)
	}
	auth.Context = ctx
	return auth, nil
}
