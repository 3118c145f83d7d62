// Package activecampaign implements crmsync.CRM against the
// ActiveCampaign v3 REST API.
package activecampaign

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/salinamaris/crmsync"
	"go.uber.org/zap"
)

// DefaultReferenceField is the deal custom field carrying the booking
// reference number.
const DefaultReferenceField = "Reservationsnummer"

// Config is the required properties to talk to the ActiveCampaign account.
type Config struct {
	// URL is the account API base, e.g. "https://acme.api-us1.com/api/3/".
	URL string

	// Token is the account API token, sent as the Api-Token header.
	Token string

	// ReferenceField overrides DefaultReferenceField.
	ReferenceField string

	// HTTPClient overrides http.DefaultClient.
	HTTPClient *http.Client
}

// Client is a stateless ActiveCampaign API client. It holds no cache:
// every name resolution re-queries the account, so concurrent use is safe.
type Client struct {
	url      string
	token    string
	refField string
	hc       *http.Client
	log      *zap.SugaredLogger
}

var _ crmsync.CRM = (*Client)(nil)

// NewClient creates a Client from the configuration.
func NewClient(cfg Config, log *zap.SugaredLogger) *Client {
	c := &Client{
		url:      strings.TrimSuffix(cfg.URL, "/") + "/",
		token:    cfg.Token,
		refField: cfg.ReferenceField,
		hc:       cfg.HTTPClient,
		log:      log,
	}
	if c.refField == "" {
		c.refField = DefaultReferenceField
	}
	if c.hc == nil {
		c.hc = http.DefaultClient
	}
	return c
}

// APIError is a non-2xx answer from the account. The body is kept verbatim
// so callers can inspect ActiveCampaign's validation payload.
type APIError struct {
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("activecampaign: status %d: %s", e.StatusCode, e.Body)
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, into interface{}) error {
	u := c.url + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, into)
}

func (c *Client) post(ctx context.Context, endpoint string, body, into interface{}) error {
	return c.send(ctx, http.MethodPost, c.url+endpoint, body, into)
}

func (c *Client) put(ctx context.Context, endpoint, id string, body, into interface{}) error {
	return c.send(ctx, http.MethodPut, c.url+endpoint+"/"+id, body, into)
}

func (c *Client) send(ctx context.Context, method, u string, body, into interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, into)
}

func (c *Client) do(req *http.Request, into interface{}) error {
	req.Header.Set("Api-Token", c.token)

	res, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}

	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return &APIError{StatusCode: res.StatusCode, Body: raw}
	}

	if into == nil {
		return nil
	}
	return json.Unmarshal(raw, into)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
