package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/antonymartiz/PrivateVoting/api"
	"github.com/antonymartiz/PrivateVoting/crypto/paillier"
	"github.com/antonymartiz/PrivateVoting/log"
	"github.com/antonymartiz/PrivateVoting/types"
)

const (
	// HTTPGET is the method string used for calling Request()
	HTTPGET = http.MethodGet
	// HTTPPOST is the method string used for calling Request()
	HTTPPOST = http.MethodPost

	errCodeNot200 = "API error"

	// DefaultRetries this enables Request() to handle the situation where the server connection fails
	DefaultRetries = 3
	// DefaultTimeout is the default timeout for the HTTP client
	DefaultTimeout = 10 * time.Second
	// FinalizeTimeout is the timeout of a finalization request, which waits
	// for the tally transaction to be mined.
	FinalizeTimeout = 5 * time.Minute
)

// HTTPclient is the tally API HTTP client.
type HTTPclient struct {
	c       *http.Client
	host    *url.URL
	retries int
}

// StatusError is returned when the API answers with a non 200 status. Kind
// is the error kind of the API error body, if any.
type StatusError struct {
	Status  int
	Kind    string
	Details string
	Body    []byte
}

func (e *StatusError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("%s: %d %s (%s)", errCodeNot200, e.Status, e.Kind, e.Details)
	}
	return fmt.Sprintf("%s: %d (%s)", errCodeNot200, e.Status, e.Body)
}

// New connects to the API host, checking it answers to ping, and returns
// the handle.
func New(host string) (*HTTPclient, error) {
	hostURL, err := url.Parse(host)
	if err != nil {
		return nil, err
	}

	tr := &http.Transport{
		IdleConnTimeout:    DefaultTimeout,
		DisableCompression: false,
	}
	c := &HTTPclient{
		c:       &http.Client{Transport: tr, Timeout: DefaultTimeout},
		host:    hostURL,
		retries: DefaultRetries,
	}
	log.Debugw("http client created", "host", hostURL.String())
	data, status, err := c.Request(HTTPGET, nil, api.PingEndpoint)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, statusError(status, data)
	}
	return c, nil
}

// SetRetries configures the number of retries for the HTTP client.
func (c *HTTPclient) SetRetries(n int) {
	c.retries = n
}

// SetTimeout configures the timeout for the HTTP client.
func (c *HTTPclient) SetTimeout(d time.Duration) {
	c.c.Timeout = d
	if tr, ok := c.c.Transport.(*http.Transport); ok {
		tr.ResponseHeaderTimeout = d
	}
}

// Health returns the health of the server.
func (c *HTTPclient) Health() (*api.HealthResponse, error) {
	resp := &api.HealthResponse{}
	return resp, c.getJSON(resp, api.HealthEndpoint)
}

// PublicKey returns the public key served by the API.
func (c *HTTPclient) PublicKey() (*paillier.PublicKey, error) {
	resp := &api.PublicKeyResponse{}
	if err := c.getJSON(resp, api.PublicKeyEndpoint); err != nil {
		return nil, err
	}
	return resp.PublicKey.Key()
}

// Tally returns the stored tally of contract.
func (c *HTTPclient) Tally(contract string) (*types.TallyResult, error) {
	resp := &types.TallyResult{}
	return resp, c.getJSON(resp, api.TalliesEndpoint, contract)
}

// AggregateAndFinalize asks the server to finalize contract, or its default
// contract if empty. The request is sent once: a finalization is never
// retried by the client. A nil result with no error means there were no
// votes.
func (c *HTTPclient) AggregateAndFinalize(contract string) (*types.TallyResult, error) {
	hc := &http.Client{Transport: c.c.Transport, Timeout: FinalizeTimeout}
	data, status, err := c.do(hc, 1, HTTPPOST, &api.FinalizeRequest{Contract: contract}, api.FinalizeEndpoint)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, statusError(status, data)
	}
	var msg struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &msg); err == nil && msg.Message != "" {
		return nil, nil
	}
	res := &types.TallyResult{}
	if err := json.Unmarshal(data, res); err != nil {
		return nil, fmt.Errorf("failed to decode tally: %w", err)
	}
	return res, nil
}

func (c *HTTPclient) getJSON(out any, urlPath ...string) error {
	data, status, err := c.Request(HTTPGET, nil, urlPath...)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return statusError(status, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Request performs a `method` type raw request to the endpoint specified in urlPath parameter.
// Method is either GET or POST. If POST, a JSON struct should be attached. Returns the response,
// the status code and an error.
func (c *HTTPclient) Request(method string, jsonBody any, urlPath ...string) ([]byte, int, error) {
	return c.do(c.c, c.retries, method, jsonBody, urlPath...)
}

func (c *HTTPclient) do(hc *http.Client, retries int, method string, jsonBody any, urlPath ...string) ([]byte, int, error) {
	var (
		body []byte
		err  error
	)

	// Marshal the JSON body if provided.
	if jsonBody != nil {
		body, err = json.Marshal(jsonBody)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal JSON: %w", err)
		}
	}

	u := *c.host
	u.Path = path.Join(u.Path, path.Join(urlPath...))

	headers := http.Header{}
	if jsonBody != nil {
		headers.Set("Content-Type", "application/json")
		headers.Set("Accept", "application/json")
	}

	log.Debugw("http client request",
		"type", method,
		"url", u.String(),
		"body", func() string {
			if len(body) > 512 {
				return string(body[:512]) + "..."
			}
			return string(body)
		}(),
	)

	var resp *http.Response
	for i := 1; i <= retries; i++ {
		// Create a fresh request each attempt
		var reqBody io.Reader
		if body != nil {
			reqBody = bytes.NewReader(body)
		}
		req, rerr := http.NewRequest(method, u.String(), reqBody)
		if rerr != nil {
			return nil, 0, fmt.Errorf("failed to create request: %w", rerr)
		}
		req.Header = headers

		resp, err = hc.Do(req)
		if err != nil {
			log.Warnw("http request failed", "error", err.Error(), "attempt", i, "retries", retries)
			if i < retries {
				time.Sleep(500 * time.Millisecond)
			}
			continue
		}
		break
	}

	if err != nil {
		return nil, 0, fmt.Errorf("http request ultimately failed after retries: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, resp.StatusCode, nil
}

func statusError(status int, data []byte) error {
	e := &StatusError{Status: status, Body: data}
	var body struct {
		Kind    string `json:"error"`
		Details string `json:"details"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		e.Kind, e.Details = body.Kind, body.Details
	}
	return e
}
