package boundary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/antonymartiz/PrivateVoting/log"
	"github.com/antonymartiz/PrivateVoting/tally"
	"github.com/antonymartiz/PrivateVoting/types"
)

// DefaultTimeout is how long the caller waits for the finalizer process.
const DefaultTimeout = 3 * time.Minute

// ProcessBoundary spawns a fresh finalizer process per request.
type ProcessBoundary struct {
	// Path and Args are the command to run, for instance the server binary
	// with the "finalize" subcommand.
	Path string
	Args []string
	// Env is the environment of the child. A nil Env inherits the parent's.
	Env []string
	// Stderr receives the child's log output. Defaults to os.Stderr.
	Stderr io.Writer
	// Timeout bounds the wait for a response. Defaults to DefaultTimeout.
	Timeout time.Duration
	// OnLate is called with the outcome of a child that answered after the
	// caller stopped waiting. The child is never killed on timeout, so a
	// submitted transaction still completes.
	OnLate func(req *Request, res *types.TallyResult, err error)
}

type outcome struct {
	res *types.TallyResult
	err error
}

// Finalize implements Boundary. It returns a BoundaryTimeout error if the
// child does not answer in time or ctx is done first.
func (p *ProcessBoundary) Finalize(ctx context.Context, req *Request) (*types.TallyResult, error) {
	if err := req.Validate(); err != nil {
		return nil, tally.Errorf(tally.KindBoundaryProtocolError, "invalid request: %w", err)
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, tally.Errorf(tally.KindBoundaryProtocolError, "encode request: %w", err)
	}

	// not CommandContext: the child must survive the caller giving up
	cmd := exec.Command(p.Path, p.Args...)
	cmd.Env = p.Env
	cmd.Stdin = bytes.NewReader(payload)
	stdout := &bytes.Buffer{}
	cmd.Stdout = stdout
	cmd.Stderr = p.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	if err := cmd.Start(); err != nil {
		return nil, tally.Errorf(tally.KindInternal, "start finalizer process: %w", err)
	}
	log.Debugw("finalizer process started", "requestID", req.RequestID, "pid", cmd.Process.Pid)

	done := make(chan outcome, 1)
	go func() {
		waitErr := cmd.Wait()
		res, err := decodeResponse(req, stdout.Bytes(), waitErr)
		done <- outcome{res, err}
	}()

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case o := <-done:
		return o.res, o.err
	case <-timer.C:
		p.reapLate(req, done)
		return nil, tally.Errorf(tally.KindBoundaryTimeout, "no response from finalizer after %s", timeout)
	case <-ctx.Done():
		p.reapLate(req, done)
		return nil, tally.Errorf(tally.KindBoundaryTimeout, "caller stopped waiting: %w", ctx.Err())
	}
}

// reapLate waits for a child the caller no longer waits for.
func (p *ProcessBoundary) reapLate(req *Request, done <-chan outcome) {
	log.Warnw("finalizer process still running, waiting in background", "requestID", req.RequestID)
	go func() {
		o := <-done
		if o.err != nil {
			log.Errorw(o.err, "late finalizer process failed", "requestID", req.RequestID)
		} else {
			log.Infow("late finalizer process succeeded", "requestID", req.RequestID, "tx", o.res.Tx.Hex())
		}
		if p.OnLate != nil {
			p.OnLate(req, o.res, o.err)
		}
	}()
}

// decodeResponse parses the child's stdout. A child that exits with an error
// but still wrote a well-formed failure is reported with that failure.
func decodeResponse(req *Request, stdout []byte, waitErr error) (*types.TallyResult, error) {
	if len(bytes.TrimSpace(stdout)) == 0 {
		if waitErr != nil {
			return nil, tally.Errorf(tally.KindBoundaryProtocolError, "finalizer exited without response: %v", waitErr)
		}
		return nil, tally.Errorf(tally.KindBoundaryProtocolError, "finalizer sent an empty response")
	}
	if len(stdout) > maxPayloadSize {
		return nil, tally.Errorf(tally.KindBoundaryProtocolError, "response of %d bytes exceeds %d", len(stdout), maxPayloadSize)
	}
	resp := &Response{}
	dec := json.NewDecoder(bytes.NewReader(stdout))
	dec.DisallowUnknownFields()
	if err := dec.Decode(resp); err != nil {
		return nil, tally.Errorf(tally.KindBoundaryProtocolError, "malformed response: %v", err)
	}
	if resp.Failure != nil {
		if resp.Failure.Kind == "" {
			return nil, tally.Errorf(tally.KindBoundaryProtocolError, "failure without kind: %s", resp.Failure.Detail)
		}
		return nil, resp.Failure.Err()
	}
	if err := checkResult(req, resp); err != nil {
		return nil, err
	}
	if waitErr != nil {
		return nil, tally.Errorf(tally.KindBoundaryProtocolError, "finalizer reported success but exited with %v", waitErr)
	}
	return resp.Result, nil
}

// Serve is the child side of ProcessBoundary: it reads one request from r,
// runs h and writes the response to w. The handler error, if any, is
// returned after the response has been written so the caller can set the
// exit status.
func Serve(ctx context.Context, r io.Reader, w io.Writer, h Handler) error {
	req := &Request{}
	resp := &Response{}
	dec := json.NewDecoder(io.LimitReader(r, maxPayloadSize))
	dec.DisallowUnknownFields()
	err := dec.Decode(req)
	if err == nil {
		err = req.Validate()
	}
	if err != nil {
		err = tally.Errorf(tally.KindBoundaryProtocolError, "invalid request: %v", err)
	} else {
		resp.RequestID = req.RequestID
		resp.Result, err = h(ctx, req)
	}
	if err != nil {
		resp.Result = nil
		resp.Failure = NewFailure(err)
	}
	if werr := json.NewEncoder(w).Encode(resp); werr != nil {
		return fmt.Errorf("write response: %w", werr)
	}
	return err
}
