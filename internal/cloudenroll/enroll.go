// Package cloudenroll holds the wire shapes and a thin HTTP client for
// the cloud enrollment flow: requests forwarded to a remote enrollment
// service. Only the request/response framing is implemented here — the
// service itself, and everything it does with these requests, is out of
// scope.
package cloudenroll

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DeviceCodeResponse is the device-authorization response an Auth0-style
// device flow returns before the user visits VerificationURI.
type DeviceCodeResponse struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
}

// BearerTokenAuthRequest authenticates a previously obtained bearer token
// against the controller, trading it for node access tokens.
type BearerTokenAuthRequest struct {
	Token string `json:"token"`
}

// RequestEnrollmentTokenRequest asks the controller to mint a short-lived
// token bound to the given attributes, handed to a second party to
// complete enrollment out of band.
type RequestEnrollmentTokenRequest struct {
	Attributes map[string]string `json:"attributes"`
}

// AuthenticateEnrollmentTokenRequest redeems a token minted by
// RequestEnrollmentTokenRequest.
type AuthenticateEnrollmentTokenRequest struct {
	Token string `json:"token"`
}

// EnrollmentTokenResponse carries the minted token back to the caller.
type EnrollmentTokenResponse struct {
	Token string `json:"token"`
}

// Client is a thin net/http wrapper around the enrollment endpoints —
// no SDK, just request/response framing against a configured base URL,
// matching the teacher's federation HTTP store clients.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a Client targeting baseURL with a 10-second request
// timeout, the teacher's default for outbound service calls.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// AuthenticateBearerToken posts a device-flow access token to
// "v0/enroll" and expects an empty success body.
func (c *Client) AuthenticateBearerToken(ctx context.Context, req BearerTokenAuthRequest) error {
	_, err := c.post(ctx, "v0/enroll", req, nil)
	return err
}

// RequestEnrollmentToken posts an attribute set to "v0/" and returns the
// minted token.
func (c *Client) RequestEnrollmentToken(ctx context.Context, req RequestEnrollmentTokenRequest) (EnrollmentTokenResponse, error) {
	var out EnrollmentTokenResponse
	_, err := c.post(ctx, "v0/", req, &out)
	return out, err
}

// AuthenticateEnrollmentToken redeems a previously minted token against
// "v0/enroll".
func (c *Client) AuthenticateEnrollmentToken(ctx context.Context, req AuthenticateEnrollmentTokenRequest) error {
	_, err := c.post(ctx, "v0/enroll", req, nil)
	return err
}

func (c *Client) post(ctx context.Context, path string, body any, out any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("cloudenroll: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s", c.baseURL, path)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("cloudenroll: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("cloudenroll: request to %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return resp, fmt.Errorf("cloudenroll: %s returned HTTP %d", path, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp, fmt.Errorf("cloudenroll: decode response from %s: %w", path, err)
		}
	}
	return resp, nil
}
