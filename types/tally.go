package types

import (
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TallyResult is the outcome of a confirmed finalization. Both counters are
// serialized as decimal strings to avoid precision loss in JSON clients.
type TallyResult struct {
	Contract     common.Address `json:"contract"            cbor:"0,keyasint,omitempty"`
	ForVotes     *BigInt        `json:"forVotes"            cbor:"1,keyasint,omitempty"`
	AgainstVotes *BigInt        `json:"againstVotes"        cbor:"2,keyasint,omitempty"`
	Tx           common.Hash    `json:"tx"                  cbor:"3,keyasint,omitempty"`
	Ballots      int            `json:"ballots"             cbor:"4,keyasint,omitempty"`
	Skipped      int            `json:"skipped"             cbor:"5,keyasint,omitempty"`
	RequestID    string         `json:"requestId,omitempty" cbor:"6,keyasint,omitempty"`
	FinalizedAt  time.Time      `json:"finalizedAt"         cbor:"7,keyasint,omitempty"`
}

func (r *TallyResult) String() string {
	data, err := json.Marshal(r)
	if err != nil {
		return ""
	}
	return string(data)
}

// TallyOutcome is the answer to a finalization request: either a finalized
// tally or, when no valid ciphertext was found, the no-votes outcome.
type TallyOutcome struct {
	Result  *TallyResult `json:"result,omitempty"`
	NoVotes bool         `json:"noVotes"`
	// Skipped is the number of malformed ledger entries left out.
	Skipped int `json:"skipped"`
}
