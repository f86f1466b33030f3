package boundary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/antonymartiz/PrivateVoting/tally"
	"github.com/antonymartiz/PrivateVoting/types"
	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"
)

// childModeEnv selects the behaviour of the test binary when it is re-executed
// as a finalizer child.
const childModeEnv = "BOUNDARY_TEST_CHILD"

var testContract = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

func TestMain(m *testing.M) {
	if mode := os.Getenv(childModeEnv); mode != "" {
		os.Exit(runChild(mode))
	}
	os.Exit(m.Run())
}

func runChild(mode string) int {
	switch mode {
	case "garbage":
		_, _ = io.Copy(io.Discard, os.Stdin)
		fmt.Println("this is not json")
		return 0
	case "silent":
		return 3
	}
	err := Serve(context.Background(), os.Stdin, os.Stdout, func(_ context.Context, req *Request) (*types.TallyResult, error) {
		switch mode {
		case "fail":
			return nil, tally.Errorf(tally.KindDecryptionFailure, "wrong key")
		case "slow":
			time.Sleep(time.Second)
		case "wrongid":
			req.RequestID = "other"
		}
		return testResult(req), nil
	})
	if err != nil {
		return 1
	}
	return 0
}

func testResult(req *Request) *types.TallyResult {
	return &types.TallyResult{
		Contract:     req.Contract,
		ForVotes:     new(types.BigInt).SetUint64(1),
		AgainstVotes: new(types.BigInt).SetUint64(0),
		Tx:           common.HexToHash("0x1234"),
		Ballots:      2,
		RequestID:    req.RequestID,
	}
}

func testRequest() *Request {
	return &Request{
		RequestID: uuid.NewString(),
		Contract:  testContract,
	}
}

func newChild(t *testing.T, mode string) *ProcessBoundary {
	exe, err := os.Executable()
	if err != nil {
		t.Fatal(err)
	}
	return &ProcessBoundary{
		Path:    exe,
		Env:     append(os.Environ(), childModeEnv+"="+mode),
		Stderr:  io.Discard,
		Timeout: 10 * time.Second,
	}
}

func TestProcessBoundarySuccess(t *testing.T) {
	c := qt.New(t)
	req := testRequest()

	res, err := newChild(t, "ok").Finalize(context.Background(), req)
	c.Assert(err, qt.IsNil)
	c.Assert(res.ForVotes.String(), qt.Equals, "1")
	c.Assert(res.AgainstVotes.String(), qt.Equals, "0")
	c.Assert(res.Tx, qt.Equals, common.HexToHash("0x1234"))
	c.Assert(res.RequestID, qt.Equals, req.RequestID)
}

func TestProcessBoundaryFailureKind(t *testing.T) {
	c := qt.New(t)

	_, err := newChild(t, "fail").Finalize(context.Background(), testRequest())
	c.Assert(tally.KindOf(err), qt.Equals, tally.KindDecryptionFailure)
	c.Assert(tally.DetailOf(err), qt.Equals, "wrong key")
}

func TestProcessBoundaryProtocolErrors(t *testing.T) {
	c := qt.New(t)

	for _, mode := range []string{"garbage", "silent", "wrongid"} {
		_, err := newChild(t, mode).Finalize(context.Background(), testRequest())
		c.Assert(tally.KindOf(err), qt.Equals, tally.KindBoundaryProtocolError, qt.Commentf("mode %s", mode))
	}

	// invalid requests never spawn a process
	req := testRequest()
	req.Contract = common.Address{}
	_, err := newChild(t, "ok").Finalize(context.Background(), req)
	c.Assert(tally.KindOf(err), qt.Equals, tally.KindBoundaryProtocolError)

	p := newChild(t, "ok")
	p.Path = "/nonexistent/finalizer"
	_, err = p.Finalize(context.Background(), testRequest())
	c.Assert(tally.KindOf(err), qt.Equals, tally.KindInternal)
}

func TestProcessBoundaryTimeout(t *testing.T) {
	c := qt.New(t)

	late := make(chan *types.TallyResult, 1)
	p := newChild(t, "slow")
	p.Timeout = 100 * time.Millisecond
	p.OnLate = func(_ *Request, res *types.TallyResult, err error) {
		if err != nil {
			t.Errorf("late child failed: %v", err)
		}
		late <- res
	}

	req := testRequest()
	_, err := p.Finalize(context.Background(), req)
	c.Assert(tally.KindOf(err), qt.Equals, tally.KindBoundaryTimeout)

	// the child is not killed and its result is still delivered
	select {
	case res := <-late:
		c.Assert(res.RequestID, qt.Equals, req.RequestID)
	case <-time.After(10 * time.Second):
		c.Fatal("late result never delivered")
	}
}

func TestProcessBoundaryCallerCancel(t *testing.T) {
	c := qt.New(t)

	late := make(chan struct{})
	p := newChild(t, "slow")
	p.OnLate = func(*Request, *types.TallyResult, error) { close(late) }

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := p.Finalize(ctx, testRequest())
	c.Assert(tally.KindOf(err), qt.Equals, tally.KindBoundaryTimeout)
	c.Assert(err, qt.ErrorIs, context.DeadlineExceeded)
	<-late
}

func TestServe(t *testing.T) {
	c := qt.New(t)
	req := testRequest()
	payload, err := json.Marshal(req)
	c.Assert(err, qt.IsNil)

	out := &bytes.Buffer{}
	err = Serve(context.Background(), bytes.NewReader(payload), out, func(_ context.Context, r *Request) (*types.TallyResult, error) {
		c.Assert(r.Contract, qt.Equals, req.Contract)
		return nil, tally.Errorf(tally.KindLedgerWriteFailure, "insufficient funds")
	})
	c.Assert(tally.KindOf(err), qt.Equals, tally.KindLedgerWriteFailure)

	resp := &Response{}
	c.Assert(json.Unmarshal(out.Bytes(), resp), qt.IsNil)
	c.Assert(resp.RequestID, qt.Equals, req.RequestID)
	c.Assert(resp.Result, qt.IsNil)
	c.Assert(resp.Failure, qt.DeepEquals, &Failure{Kind: tally.KindLedgerWriteFailure, Detail: "insufficient funds"})

	// private material never appears in the wire form of a request
	c.Assert(strings.Contains(string(payload), "lambda"), qt.IsFalse)

	out.Reset()
	err = Serve(context.Background(), strings.NewReader(`{"requestId":"x","secret":1}`), out, nil)
	c.Assert(tally.KindOf(err), qt.Equals, tally.KindBoundaryProtocolError)
	c.Assert(out.String(), qt.Contains, `"kind":"BoundaryProtocolError"`)
}

func TestServeRefusesCiphertext(t *testing.T) {
	c := qt.New(t)

	// only a contract reference is accepted: an aggregate or a ballot count
	// chosen by the caller never reaches the handler
	called := false
	h := func(context.Context, *Request) (*types.TallyResult, error) {
		called = true
		return nil, nil
	}
	for _, payload := range []string{
		`{"requestId":"x","contract":"` + testContract.Hex() + `","aggregate":"0x01","ballots":1}`,
		`{"requestId":"x","contract":"` + testContract.Hex() + `","endpoint":"http://evil.example"}`,
	} {
		out := &bytes.Buffer{}
		err := Serve(context.Background(), strings.NewReader(payload), out, h)
		c.Assert(tally.KindOf(err), qt.Equals, tally.KindBoundaryProtocolError)
		c.Assert(out.String(), qt.Contains, "unknown field")
	}
	c.Assert(called, qt.IsFalse)

	wire, err := json.Marshal(testRequest())
	c.Assert(err, qt.IsNil)
	var fields map[string]any
	c.Assert(json.Unmarshal(wire, &fields), qt.IsNil)
	c.Assert(fields, qt.HasLen, 2)
}

func TestFuncBoundary(t *testing.T) {
	c := qt.New(t)

	ok := FuncBoundary(func(_ context.Context, req *Request) (*types.TallyResult, error) {
		return testResult(req), nil
	})
	res, err := ok.Finalize(context.Background(), testRequest())
	c.Assert(err, qt.IsNil)
	c.Assert(res.ForVotes.String(), qt.Equals, "1")

	fail := FuncBoundary(func(context.Context, *Request) (*types.TallyResult, error) {
		return nil, fmt.Errorf("boom")
	})
	_, err = fail.Finalize(context.Background(), testRequest())
	c.Assert(tally.KindOf(err), qt.Equals, tally.KindInternal)
}
