package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"can-telemetry-dashboard/internal/model"
)

// Kind classifies a fetch failure.
type Kind int

const (
	// KindTransport covers connection refused, DNS failure, and timeouts.
	KindTransport Kind = iota + 1
	// KindProtocol covers non-2xx HTTP responses.
	KindProtocol
	// KindDecode covers malformed JSON and missing or mistyped fields.
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// Error is a classified fetch failure. A single bad cycle never produces
// anything stronger than this; the next scheduled cycle is the retry.
type Error struct {
	Kind     Kind
	Endpoint string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s: %s: %v", e.Endpoint, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Client fetches telemetry and status from the CAN gateway HTTP API.
type Client struct {
	base string
	http *http.Client
}

// New builds a Client against a base URL such as http://localhost:5000/api/v1.
// Request deadlines come from the caller's context; the embedded client
// carries no timeout of its own.
func New(baseURL string) *Client {
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{},
	}
}

type canMessage struct {
	Value *float64 `json:"value"`
}

type latestResponse struct {
	Messages map[string]canMessage `json:"messages"`
}

type statusResponse struct {
	Connected *bool `json:"connected"`
}

// FetchLatest issues GET {base}/can/latest and returns the numeric value for
// each known field present in the response. Unknown field keys are ignored.
// A known field whose object lacks a numeric "value" rejects the whole
// response as a decode error.
func (c *Client) FetchLatest(ctx context.Context) (map[model.Field]float64, error) {
	const endpoint = "can/latest"
	var body latestResponse
	if err := c.getJSON(ctx, endpoint, &body); err != nil {
		return nil, err
	}
	out := make(map[model.Field]float64)
	for _, f := range model.TelemetryFields {
		msg, ok := body.Messages[string(f)]
		if !ok {
			continue
		}
		if msg.Value == nil {
			return nil, &Error{Kind: KindDecode, Endpoint: endpoint,
				Err: fmt.Errorf("field %q has no numeric value", f)}
		}
		out[f] = *msg.Value
	}
	return out, nil
}

// FetchStatus issues GET {base}/can/status. A missing "connected" member is
// a decode error.
func (c *Client) FetchStatus(ctx context.Context) (model.Status, error) {
	const endpoint = "can/status"
	var body statusResponse
	if err := c.getJSON(ctx, endpoint, &body); err != nil {
		return model.Status{}, err
	}
	if body.Connected == nil {
		return model.Status{}, &Error{Kind: KindDecode, Endpoint: endpoint,
			Err: fmt.Errorf("missing connected field")}
	}
	return model.Status{Connected: *body.Connected}, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	url := c.base + "/" + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &Error{Kind: KindTransport, Endpoint: endpoint, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Kind: KindTransport, Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{Kind: KindProtocol, Endpoint: endpoint,
			Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: KindDecode, Endpoint: endpoint,
			Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
