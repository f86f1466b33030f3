package finalizer

import (
	"context"
	"time"

	"github.com/antonymartiz/PrivateVoting/boundary"
	"github.com/antonymartiz/PrivateVoting/crypto/ethereum"
	"github.com/antonymartiz/PrivateVoting/crypto/paillier"
	"github.com/antonymartiz/PrivateVoting/tally"
	"github.com/antonymartiz/PrivateVoting/types"
	"github.com/antonymartiz/PrivateVoting/web3"
	"github.com/antonymartiz/PrivateVoting/web3/rpc"
)

// HandlerConfig tells the isolated process where its secrets and providers
// are. None of it comes from the request.
type HandlerConfig struct {
	// KeyPath is the key file holding the private key.
	KeyPath string
	// SignerKeyPath is a file with the hex signing key. If empty, the key is
	// read from the SignerKeyEnv environment variable.
	SignerKeyPath string
	SignerKeyEnv  string
	// Providers are the web3 provider candidates, checked in order.
	Providers []string
	// Workers is the number of goroutines folding ciphertexts.
	Workers int
	// Deadline bounds a whole request, receipt wait included. Zero means no
	// bound.
	Deadline time.Duration
	// WaitInterval is the receipt polling interval, zero for the default.
	WaitInterval time.Duration
}

// NewHandler returns the boundary handler run by the finalizer process. Both
// secrets are loaded per request and dropped when it returns.
func NewHandler(conf *HandlerConfig) boundary.Handler {
	return func(ctx context.Context, req *boundary.Request) (*types.TallyResult, error) {
		if conf.Deadline > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, conf.Deadline)
			defer cancel()
		}
		key, err := paillier.LoadPrivateKey(conf.KeyPath)
		if err != nil {
			return nil, tally.Errorf(tally.KindMissingKeyMaterial, "failed to load private key: %w", err)
		}
		signer, err := ethereum.LoadSignKeys(conf.SignerKeyPath, conf.SignerKeyEnv)
		if err != nil {
			return nil, tally.Errorf(tally.KindMissingSigningCredential, "failed to load signing key: %w", err)
		}
		endpoint, err := rpc.NewResolver(conf.Providers...).Resolve(ctx, req.Contract)
		if err != nil {
			return nil, tally.Wrap(tally.KindLedgerReadFailure, err)
		}
		defer endpoint.Close()

		voting := web3.NewVoting(req.Contract, endpoint)
		voting.SetSigner(signer)
		if conf.WaitInterval > 0 {
			voting.WaitInterval = conf.WaitInterval
		}
		f := New(key, voting)
		f.Workers = conf.Workers
		return f.Finalize(ctx, &Input{RequestID: req.RequestID, Contract: req.Contract})
	}
}
