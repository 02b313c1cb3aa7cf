// Package graph provides a client for the Facebook Graph marketing API
// surface used by the sync jobs: lead forms, leads, form metadata, token
// exchange, page listing, and webhook subscription.
package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/adstack/leadsync/internal/resilience"
)

// DefaultBaseURL is the Graph API version pin.
const DefaultBaseURL = "https://graph.facebook.com/v18.0"

// leadFields is the fixed field set requested for every lead.
const leadFields = "ad_id,ad_name,adset_id,adset_name,campaign_id,campaign_name,created_time,field_data,form_id,platform"

// Client defines the Graph API operations used by the sync jobs.
type Client interface {
	// ListForms returns the lead-generation forms attached to a page.
	ListForms(ctx context.Context, pageID, pageToken string) ([]Form, error)
	// ListLeads returns the submitted leads of a form.
	ListLeads(ctx context.Context, formID, pageToken string) ([]Lead, error)
	// GetForm returns a form's display name and question schema.
	GetForm(ctx context.Context, formID, pageToken string) (*FormDetail, error)
	// ExchangeToken swaps a user token for a refreshed long-lived one.
	ExchangeToken(ctx context.Context, userToken string) (*Token, error)
	// ListPages returns the pages the token's user administers, each with
	// its own page-scoped token.
	ListPages(ctx context.Context, userToken string) ([]PageAccount, error)
	// SubscribeLeadsWebhook re-asserts the app's leadgen webhook
	// subscription on a page.
	SubscribeLeadsWebhook(ctx context.Context, pageID, pageToken string) error
}

// Option configures the Graph client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit overrides the default request throttle. A non-positive
// rps disables throttling.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

// WithRetryConfig overrides the retry policy for transient failures.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

type httpClient struct {
	appID     string
	appSecret string
	baseURL   string
	http      *http.Client
	limiter   *rate.Limiter
	retry     resilience.RetryConfig
}

// NewClient creates a Graph API client. appID and appSecret are only used
// by ExchangeToken; all other calls authenticate with the token passed per
// call. Requests are throttled to 10 req/s by default.
func NewClient(appID, appSecret string, opts ...Option) Client {
	c := &httpClient{
		appID:     appID,
		appSecret: appSecret,
		baseURL:   DefaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(10, 10),
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) ListForms(ctx context.Context, pageID, pageToken string) ([]Form, error) {
	params := url.Values{"access_token": {pageToken}}
	var out struct {
		Data []Form `json:"data"`
	}
	if err := c.call(ctx, http.MethodGet, pageID+"/leadgen_forms", params, &out); err != nil {
		return nil, eris.Wrapf(err, "graph: list forms for page %s", pageID)
	}
	return out.Data, nil
}

func (c *httpClient) ListLeads(ctx context.Context, formID, pageToken string) ([]Lead, error) {
	params := url.Values{
		"access_token": {pageToken},
		"fields":       {leadFields},
	}
	var out struct {
		Data []Lead `json:"data"`
	}
	if err := c.call(ctx, http.MethodGet, formID+"/leads", params, &out); err != nil {
		return nil, eris.Wrapf(err, "graph: list leads for form %s", formID)
	}
	return out.Data, nil
}

func (c *httpClient) GetForm(ctx context.Context, formID, pageToken string) (*FormDetail, error) {
	params := url.Values{
		"access_token": {pageToken},
		"fields":       {"name,questions"},
	}
	var out FormDetail
	if err := c.call(ctx, http.MethodGet, formID, params, &out); err != nil {
		return nil, eris.Wrapf(err, "graph: get form %s", formID)
	}
	return &out, nil
}

func (c *httpClient) ExchangeToken(ctx context.Context, userToken string) (*Token, error) {
	params := url.Values{
		"grant_type":        {"fb_exchange_token"},
		"client_id":         {c.appID},
		"client_secret":     {c.appSecret},
		"fb_exchange_token": {userToken},
	}
	var out Token
	if err := c.call(ctx, http.MethodGet, "oauth/access_token", params, &out); err != nil {
		return nil, eris.Wrap(err, "graph: exchange token")
	}
	return &out, nil
}

func (c *httpClient) ListPages(ctx context.Context, userToken string) ([]PageAccount, error) {
	params := url.Values{"access_token": {userToken}}
	var out struct {
		Data []PageAccount `json:"data"`
	}
	if err := c.call(ctx, http.MethodGet, "me/accounts", params, &out); err != nil {
		return nil, eris.Wrap(err, "graph: list pages")
	}
	return out.Data, nil
}

func (c *httpClient) SubscribeLeadsWebhook(ctx context.Context, pageID, pageToken string) error {
	params := url.Values{
		"access_token":      {pageToken},
		"subscribed_fields": {"leadgen"},
	}
	var out struct {
		Success bool `json:"success"`
	}
	if err := c.call(ctx, http.MethodPost, pageID+"/subscribed_apps", params, &out); err != nil {
		return eris.Wrapf(err, "graph: subscribe leads webhook for page %s", pageID)
	}
	if !out.Success {
		return eris.Errorf("graph: subscribe leads webhook for page %s: not confirmed", pageID)
	}
	return nil
}

// call performs one rate-limited, retried API request and decodes the
// response into out.
func (c *httpClient) call(ctx context.Context, method, path string, params url.Values, out any) error {
	reqURL := fmt.Sprintf("%s/%s?%s", c.baseURL, path, params.Encode())

	body, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		return c.do(ctx, method, reqURL)
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "unmarshal response")
	}
	return nil
}

func (c *httpClient) do(ctx context.Context, method, reqURL string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "rate limit")
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, redactTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "read response body")
	}

	if resp.StatusCode >= 400 {
		return nil, c.apiError(resp.StatusCode, body)
	}
	return body, nil
}

// apiError decodes the Graph error envelope when present and marks
// throttling and server-side failures as transient for the retry layer.
func (c *httpClient) apiError(status int, body []byte) error {
	var envelope struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		apiErr := envelope.Error
		apiErr.StatusCode = status
		if apiErr.Throttled() || resilience.IsTransientHTTPStatus(status) {
			return resilience.NewTransientError(apiErr, status)
		}
		return apiErr
	}

	err := eris.Errorf("unexpected status %d: %s", status, truncate(body, 256))
	if resilience.IsTransientHTTPStatus(status) {
		return resilience.NewTransientError(err, status)
	}
	return err
}

// redactTransportError strips the query string from a url.Error's message.
// Request URLs carry access tokens and the app secret as query parameters,
// and transport failures would otherwise embed them in logged errors. The
// url.Error wrapper is preserved so timeout classification keeps working.
func redactTransportError(err error) error {
	var uerr *url.Error
	if !errors.As(err, &uerr) {
		return err
	}
	redacted := uerr.URL
	if u, parseErr := url.Parse(uerr.URL); parseErr == nil {
		u.RawQuery = ""
		redacted = u.String()
	}
	return &url.Error{Op: uerr.Op, URL: redacted, Err: uerr.Err}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// timeLayouts covers the timestamp shapes the Graph API emits.
var timeLayouts = []string{
	"2006-01-02T15:04:05-0700",
	time.RFC3339,
}

// ParseTime parses a Graph API timestamp. The zero time and false are
// returned for empty or unrecognized input.
func ParseTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
