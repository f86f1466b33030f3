package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/antonymartiz/PrivateVoting/crypto/paillier"
	"github.com/antonymartiz/PrivateVoting/log"
	"github.com/antonymartiz/PrivateVoting/storage"
	"github.com/antonymartiz/PrivateVoting/web3"
	"github.com/go-chi/chi/v5"
)

// maxBodySize bounds the size of request bodies.
const maxBodySize = 1 << 16

// health reports whether the key file is present
// GET /health
func (a *API) health(w http.ResponseWriter, r *http.Request) {
	httpWriteJSON(w, &HealthResponse{OK: true, KeyPresent: a.backend.KeyPresent()})
}

// config exposes the default contract and provider
// GET /config
func (a *API) config(w http.ResponseWriter, r *http.Request) {
	resp := &ConfigResponse{}
	if c := a.backend.DefaultContract(); c != "" {
		resp.VotingContractAddress = &c
	}
	if p := a.backend.ProviderURL(); p != "" {
		resp.ProviderURL = &p
	}
	httpWriteJSON(w, resp)
}

// publicKey serves the public half of the key file, never the private one
// GET /publicKey
func (a *API) publicKey(w http.ResponseWriter, r *http.Request) {
	pub, err := a.backend.PublicKey()
	if errors.Is(err, paillier.ErrKeyFileNotFound) {
		log.Warnw("public key requested but key file missing")
		ErrPublicKeyNotFound.Write(w)
		return
	}
	if err != nil {
		ErrMissingKeyMaterial.Withf("invalid key file: %v", err).Write(w)
		return
	}
	httpWriteJSON(w, &PublicKeyResponse{PublicKey: pub})
}

// aggregateAndFinalize aggregates the encrypted votes of a contract and
// finalizes the tally through the isolated finalizer
// POST /aggregate-and-finalize
func (a *API) aggregateAndFinalize(w http.ResponseWriter, r *http.Request) {
	req := &FinalizeRequest{}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		ErrMalformedBody.Withf("could not read request body: %v", err).Write(w)
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, req); err != nil {
			ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
			return
		}
	}

	outcome, err := a.backend.AggregateAndFinalize(r.Context(), req.Contract)
	if err != nil {
		log.Warnw("finalization failed", "contract", req.Contract, "error", err.Error())
		ErrorFromTally(err).Write(w)
		return
	}
	if outcome.NoVotes {
		httpWriteJSON(w, &NoVotesResponse{Message: "no votes", Skipped: outcome.Skipped})
		return
	}
	httpWriteJSON(w, outcome.Result)
}

// tallies lists the contracts with a finalized tally
// GET /tallies
func (a *API) tallies(w http.ResponseWriter, r *http.Request) {
	contracts, err := a.backend.Tallies()
	if err != nil {
		ErrGenericInternalServerError.Withf("could not list tallies: %v", err).Write(w)
		return
	}
	httpWriteJSON(w, &TalliesResponse{Contracts: contracts})
}

// tally returns the finalized tally of a contract
// GET /tallies/{contract}
func (a *API) tally(w http.ResponseWriter, r *http.Request) {
	contract, err := web3.ParseAddress(chi.URLParam(r, ContractURLParam))
	if err != nil {
		ErrorFromTally(err).Write(w)
		return
	}
	res, err := a.backend.Tally(contract)
	if errors.Is(err, storage.ErrNotFound) {
		ErrTallyNotFound.With(contract.Hex()).Write(w)
		return
	}
	if err != nil {
		ErrGenericInternalServerError.Withf("could not get tally: %v", err).Write(w)
		return
	}
	httpWriteJSON(w, res)
}
