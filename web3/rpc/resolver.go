package rpc

// This package resolves which web3 provider to use for a voting contract. A
// Resolver holds an ordered list of candidate provider URIs and checks them
// one by one, returning the first one where the contract has code. The result
// is an immutable Endpoint that is handed to the rest of the pipeline for a
// single finalization request, instead of re-pointing a shared client.

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/antonymartiz/PrivateVoting/log"
	"github.com/antonymartiz/PrivateVoting/tally"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

const (
	// DefaultMaxWeb3ClientRetries is the default number of retries to connect to
	// a web3 provider.
	DefaultMaxWeb3ClientRetries = 5
	// SepoliaPublicURI is the public Sepolia RPC used as fallback.
	SepoliaPublicURI = "https://rpc.sepolia.org"
	// infuraSepoliaURI is the Infura Sepolia endpoint template.
	infuraSepoliaURI = "https://sepolia.infura.io/v3/%s"
	// checkWeb3EndpointTimeout bounds the check of a single candidate.
	checkWeb3EndpointTimeout = time.Second * 10
)

// Endpoint is a resolved web3 provider. It is immutable once returned by the
// Resolver; callers share it read-only and close it when done.
type Endpoint struct {
	URI     string
	ChainID uint64
	client  *ethclient.Client
}

// Client returns the ethclient connected to the endpoint.
func (e *Endpoint) Client() *ethclient.Client {
	return e.client
}

// Close closes the underlying client.
func (e *Endpoint) Close() {
	if e.client != nil {
		e.client.Close()
	}
}

// Candidates builds the ordered candidate list: the configured provider, the
// fallbacks and, when an Infura API key is set, the Infura Sepolia endpoint.
// Empty and duplicated URIs are dropped.
func Candidates(provider string, fallbacks []string, infuraAPIKey string) []string {
	uris := append([]string{provider}, fallbacks...)
	if infuraAPIKey != "" {
		uris = append(uris, fmt.Sprintf(infuraSepoliaURI, infuraAPIKey))
	}
	var out []string
	for _, uri := range uris {
		uri = strings.TrimSpace(uri)
		if uri == "" || slices.Contains(out, uri) {
			continue
		}
		out = append(out, uri)
	}
	return out
}

// Resolver picks the provider to use for a contract.
type Resolver struct {
	candidates []string
}

// NewResolver returns a Resolver probing the URIs in the given order.
func NewResolver(uris ...string) *Resolver {
	return &Resolver{candidates: Candidates("", uris, "")}
}

// Candidates returns a copy of the URIs checked by the resolver.
func (r *Resolver) Candidates() []string {
	return slices.Clone(r.candidates)
}

// Resolve checks the candidates in order and returns the first endpoint where
// the contract has code. Unreachable candidates are skipped. If none of the
// reachable ones knows the contract it fails with a ContractNotFound error;
// if no candidate answered at all it fails with a LedgerReadFailure.
func (r *Resolver) Resolve(ctx context.Context, contract common.Address) (*Endpoint, error) {
	if len(r.candidates) == 0 {
		return nil, tally.Errorf(tally.KindLedgerReadFailure, "no web3 provider configured")
	}
	reachable := 0
	var lastErr error
	for _, uri := range r.candidates {
		if err := ctx.Err(); err != nil {
			return nil, tally.Wrap(tally.KindLedgerReadFailure, err)
		}
		endpoint, found, err := checkCandidate(ctx, uri, contract)
		if err != nil {
			log.Warnw("web3 provider not available", "uri", redact(uri), "error", err.Error())
			lastErr = err
			continue
		}
		reachable++
		if !found {
			log.Debugw("contract has no code on provider", "uri", redact(uri), "contract", contract.Hex())
			continue
		}
		log.Infow("web3 provider resolved",
			"uri", redact(uri),
			"chainID", endpoint.ChainID,
			"contract", contract.Hex())
		return endpoint, nil
	}
	if reachable == 0 {
		return nil, tally.Errorf(tally.KindLedgerReadFailure,
			"none of %d web3 providers is reachable: %w", len(r.candidates), lastErr)
	}
	return nil, tally.Errorf(tally.KindContractNotFound,
		"no code at %s on any of %d reachable web3 providers", contract.Hex(), reachable)
}

// checkCandidate connects to uri and checks whether the contract has code there. The
// returned endpoint is only open when found is true.
func checkCandidate(ctx context.Context, uri string, contract common.Address) (*Endpoint, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, checkWeb3EndpointTimeout)
	defer cancel()
	client, err := connect(ctx, uri)
	if err != nil {
		return nil, false, err
	}
	bChainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, false, fmt.Errorf("error getting the chainID from the web3 provider: %w", err)
	}
	code, err := client.CodeAt(ctx, contract, nil)
	if err != nil {
		client.Close()
		return nil, false, fmt.Errorf("error getting code at %s: %w", contract.Hex(), err)
	}
	if len(code) == 0 {
		client.Close()
		return nil, false, nil
	}
	return &Endpoint{
		URI:     uri,
		ChainID: bChainID.Uint64(),
		client:  client,
	}, true, nil
}

// Dial connects to uri without probing any contract, for tools that already
// know which provider to use.
func Dial(ctx context.Context, uri string) (*Endpoint, error) {
	ctx, cancel := context.WithTimeout(ctx, checkWeb3EndpointTimeout)
	defer cancel()
	client, err := connect(ctx, uri)
	if err != nil {
		return nil, err
	}
	bChainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("error getting the chainID from the web3 provider '%s': %w", redact(uri), err)
	}
	return &Endpoint{URI: uri, ChainID: bChainID.Uint64(), client: client}, nil
}

// connect method returns a new *ethclient.Client instance for the URI provided.
// It retries to connect to the web3 provider if it fails, up to the
// DefaultMaxWeb3ClientRetries times.
func connect(ctx context.Context, uri string) (client *ethclient.Client, err error) {
	for i := 0; i < DefaultMaxWeb3ClientRetries; i++ {
		if client, err = ethclient.DialContext(ctx, uri); err != nil {
			continue
		}
		return
	}
	return nil, fmt.Errorf("error dialing web3 provider uri '%s': %w", redact(uri), err)
}

// redact hides the API key of Infura style URIs before logging them.
func redact(uri string) string {
	if i := strings.Index(uri, "/v3/"); i >= 0 {
		return uri[:i] + "/v3/***"
	}
	return uri
}
