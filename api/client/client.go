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

	"github.com/vocdoni/zkpassport/api"
	"github.com/vocdoni/zkpassport/log"
)

const (
	// HTTPGET is the method string used for calling Request()
	HTTPGET = http.MethodGet
	// HTTPPOST is the method string used for calling Request()
	HTTPPOST = http.MethodPost

	errCodeNot200 = "API error"

	// DefaultRetries is the number of attempts of a GET request whose
	// connection fails. POST requests are sent once.
	DefaultRetries = 3
	// DefaultTimeout is the default timeout for the HTTP client. Proof
	// requests set their own with SetTimeout.
	DefaultTimeout = 10 * time.Second

	maxLoggedBody = 512
)

var retryDelay = 500 * time.Millisecond

// HTTPclient is the passport verification API HTTP client.
type HTTPclient struct {
	c       *http.Client
	host    *url.URL
	retries int
}

// New connects to the API host, checking it answers the ping endpoint, and
// returns the handle
func New(host string) (*HTTPclient, error) {
	hostURL, err := url.Parse(host)
	if err != nil {
		return nil, err
	}
	c := &HTTPclient{
		c: &http.Client{
			Transport: &http.Transport{IdleConnTimeout: DefaultTimeout},
			Timeout:   DefaultTimeout,
		},
		host:    hostURL,
		retries: DefaultRetries,
	}
	log.Debugw("http client created", "host", hostURL.String())
	data, status, err := c.Request(HTTPGET, nil, api.PingEndpoint)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%s: %d (%s)", errCodeNot200, status, data)
	}
	return c, nil
}

// SetTimeout configures the timeout of every request. Proofs can take
// minutes, so callers of Prove usually raise it.
func (c *HTTPclient) SetTimeout(d time.Duration) {
	c.c.Timeout = d
}

func truncateBody(body []byte) string {
	if len(body) > maxLoggedBody {
		return string(body[:maxLoggedBody]) + "..."
	}
	return string(body)
}

// Request sends a method request to the endpoint joined from urlPath, with
// jsonBody encoded as JSON if not nil. It returns the response body and the
// status code. A GET whose connection fails is retried; a POST is not, since
// proving and verifying requests are not cheap to repeat.
func (c *HTTPclient) Request(method string, jsonBody any, urlPath ...string) ([]byte, int, error) {
	var body []byte
	if jsonBody != nil {
		var err error
		if body, err = json.Marshal(jsonBody); err != nil {
			return nil, 0, fmt.Errorf("failed to marshal JSON: %w", err)
		}
	}
	u := *c.host
	u.Path = path.Join(u.Path, path.Join(urlPath...))
	log.Debugw("http client request", "type", method, "url", u.String(), "body", truncateBody(body))

	attempts := 1
	if method == HTTPGET && c.retries > 1 {
		attempts = c.retries
	}
	var (
		resp *http.Response
		err  error
	)
	for i := 1; i <= attempts; i++ {
		req, reqErr := http.NewRequest(method, u.String(), bytes.NewReader(body))
		if reqErr != nil {
			return nil, 0, fmt.Errorf("failed to create request: %w", reqErr)
		}
		if jsonBody != nil {
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Accept", "application/json")
		}
		if resp, err = c.c.Do(req); err == nil {
			break
		}
		log.Warnw("http request failed", "error", err.Error(), "attempt", i, "attempts", attempts)
		if i < attempts {
			time.Sleep(retryDelay)
		}
	}
	if err != nil {
		return nil, 0, fmt.Errorf("http request failed after %d attempts: %w", attempts, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, resp.StatusCode, nil
}

// post sends body to the endpoint and decodes a 200 response into out. Any
// other status is returned as an error holding the API error body.
func (c *HTTPclient) post(body, out any, urlPath ...string) error {
	data, status, err := c.Request(HTTPPOST, body, urlPath...)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("%s: %d (%s)", errCodeNot200, status, bytes.TrimSpace(data))
	}
	if out == nil {
		return nil
	}
	if raw, ok := out.(*[]byte); ok {
		*raw = data
		return nil
	}
	return json.Unmarshal(data, out)
}

// Verify runs passive authentication of a passport.
func (c *HTTPclient) Verify(req *api.VerifyRequest) (*api.VerifyResponse, error) {
	res := &api.VerifyResponse{}
	if err := c.post(req, res, api.VerifyEndpoint); err != nil {
		return nil, err
	}
	return res, nil
}

// CircuitInputs returns the inputs JSON of a registration circuit variant.
func (c *HTTPclient) CircuitInputs(variant string, req *api.InputsRequest) ([]byte, error) {
	var data []byte
	if err := c.post(req, &data, "circuits", variant, "inputs"); err != nil {
		return nil, err
	}
	return data, nil
}

// Prove requests a registration proof of a circuit variant.
func (c *HTTPclient) Prove(variant string, req *api.InputsRequest) (*api.ProofResponse, error) {
	res := &api.ProofResponse{}
	if err := c.post(req, res, "proofs", variant); err != nil {
		return nil, err
	}
	return res, nil
}
