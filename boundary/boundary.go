// Package boundary isolates the finalizer from the network-facing process.
// The long-lived process sends one Request per finalization and gets back a
// Response; the private key and the signing credential only exist on the
// other side. A request names a contract and nothing else: the isolated side
// resolves the provider, reads the ballots and aggregates them itself, so no
// ciphertext chosen by the caller is ever decrypted. ProcessBoundary runs
// every request in a fresh OS process that reads the JSON request from stdin
// and writes the JSON response to stdout.
package boundary

import (
	"context"
	"errors"
	"fmt"

	"github.com/antonymartiz/PrivateVoting/tally"
	"github.com/antonymartiz/PrivateVoting/types"
	"github.com/ethereum/go-ethereum/common"
)

// maxPayloadSize bounds the size of a request or response read from a pipe.
const maxPayloadSize = 1 << 20

// Request is the only data crossing the boundary towards the finalizer.
type Request struct {
	RequestID string         `json:"requestId"`
	Contract  common.Address `json:"contract"`
}

// Response is what comes back: either a result or a failure.
type Response struct {
	RequestID string             `json:"requestId"`
	Result    *types.TallyResult `json:"result,omitempty"`
	Failure   *Failure           `json:"failure,omitempty"`
}

// Failure is a classified error in wire form.
type Failure struct {
	Kind   tally.Kind `json:"kind"`
	Detail string     `json:"detail"`
}

// Err converts the failure back into a classified error.
func (f *Failure) Err() error {
	return &tally.Error{Kind: f.Kind, Err: errors.New(f.Detail)}
}

// NewFailure converts err into its wire form.
func NewFailure(err error) *Failure {
	return &Failure{Kind: tally.KindOf(err), Detail: tally.DetailOf(err)}
}

// Boundary hands a finalization request to the isolated finalizer.
type Boundary interface {
	Finalize(ctx context.Context, req *Request) (*types.TallyResult, error)
}

// Handler runs a request on the isolated side.
type Handler func(ctx context.Context, req *Request) (*types.TallyResult, error)

// FuncBoundary runs the handler in the calling process. It keeps the same
// request and response contract and is meant for tests and development.
type FuncBoundary Handler

// Finalize implements Boundary.
func (f FuncBoundary) Finalize(ctx context.Context, req *Request) (*types.TallyResult, error) {
	res, err := f(ctx, req)
	if err != nil {
		return nil, NewFailure(err).Err()
	}
	return res, checkResult(req, &Response{RequestID: req.RequestID, Result: res})
}

// Validate checks the request before it is sent or after it is received.
func (r *Request) Validate() error {
	if r.RequestID == "" {
		return fmt.Errorf("missing request id")
	}
	if r.Contract == (common.Address{}) {
		return fmt.Errorf("missing contract")
	}
	return nil
}

// checkResult validates a successful response against its request.
func checkResult(req *Request, resp *Response) error {
	if resp.RequestID != req.RequestID {
		return tally.Errorf(tally.KindBoundaryProtocolError, "response for request %q, expected %q", resp.RequestID, req.RequestID)
	}
	res := resp.Result
	if res == nil {
		return tally.Errorf(tally.KindBoundaryProtocolError, "response carries neither result nor failure")
	}
	if res.RequestID != req.RequestID {
		return tally.Errorf(tally.KindBoundaryProtocolError, "result for request %q, expected %q", res.RequestID, req.RequestID)
	}
	if res.ForVotes == nil || res.AgainstVotes == nil {
		return tally.Errorf(tally.KindBoundaryProtocolError, "result without counters")
	}
	if res.Ballots <= 0 {
		return tally.Errorf(tally.KindBoundaryProtocolError, "result without ballots")
	}
	if res.Contract != req.Contract {
		return tally.Errorf(tally.KindBoundaryProtocolError, "result for contract %s, expected %s", res.Contract.Hex(), req.Contract.Hex())
	}
	return nil
}
