package api

import (
	"context"

	"github.com/antonymartiz/PrivateVoting/crypto/paillier"
	"github.com/antonymartiz/PrivateVoting/types"
	"github.com/ethereum/go-ethereum/common"
)

// Backend is what the API needs from the tally service.
type Backend interface {
	// AggregateAndFinalize runs the whole pipeline for the contract, or for
	// the default contract if empty.
	AggregateAndFinalize(ctx context.Context, contract string) (*types.TallyOutcome, error)
	// Tally returns the stored tally of a contract.
	Tally(contract common.Address) (*types.TallyResult, error)
	// Tallies lists the contracts with a stored tally.
	Tallies() ([]common.Address, error)
	// PublicKey returns the public half of the key file.
	PublicKey() (*paillier.PublicKeyFile, error)
	// KeyPresent reports whether the key file exists.
	KeyPresent() bool
	// DefaultContract and ProviderURL are exposed to clients as is.
	DefaultContract() string
	ProviderURL() string
}

// FinalizeRequest is the body of a finalization request. Contract overrides
// the default contract.
type FinalizeRequest struct {
	Contract string `json:"contract,omitempty"`
}

// NoVotesResponse is returned instead of a tally when the contract holds no
// valid ciphertext.
type NoVotesResponse struct {
	Message string `json:"message"`
	Skipped int    `json:"skipped"`
}

// HealthResponse is the response of the health endpoint.
type HealthResponse struct {
	OK         bool `json:"ok"`
	KeyPresent bool `json:"keyPresent"`
}

// ConfigResponse exposes the runtime configuration for frontends. Unset
// values are null.
type ConfigResponse struct {
	VotingContractAddress *string `json:"votingContractAddress"`
	ProviderURL           *string `json:"providerUrl"`
}

// PublicKeyResponse wraps the public key as stored in the key file.
type PublicKeyResponse struct {
	PublicKey *paillier.PublicKeyFile `json:"publicKey"`
}

// TalliesResponse lists the contracts with a finalized tally.
type TalliesResponse struct {
	Contracts []common.Address `json:"contracts"`
}
