package costapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/model"
	"github.com/ogulcanaydogan/ai-spend-guardian/pkg/ttlcache"
)

const (
	DefaultBaseURL       = "https://api.openai.com"
	DefaultTimeout       = 5 * time.Second
	DefaultPageLimit     = 180
	DefaultValidationTTL = 5 * time.Minute
)

// Config holds Client settings. Zero values fall back to defaults.
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	PageLimit     int
	ValidationTTL time.Duration
	HTTPClient    *http.Client
	Now           func() time.Time
}

// Client talks to the provider's organization cost and admin endpoints.
type Client struct {
	baseURL    string
	timeout    time.Duration
	pageLimit  int
	client     *http.Client
	validation *ttlcache.Cache[validationKey, ValidationResult]
}

// NewClient creates a provider cost client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = DefaultPageLimit
	}
	if cfg.ValidationTTL <= 0 {
		cfg.ValidationTTL = DefaultValidationTTL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		timeout:   cfg.Timeout,
		pageLimit: cfg.PageLimit,
		client:    cfg.HTTPClient,
		validation: ttlcache.New[validationKey, ValidationResult](cfg.ValidationTTL,
			ttlcache.WithClock[validationKey, ValidationResult](cfg.Now),
		),
	}
}

// FetchCostPage returns one page of daily cost buckets, flattened into results.
func (c *Client) FetchCostPage(ctx context.Context, credential string, req PageRequest) (*CostPage, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = c.pageLimit
	}

	q := url.Values{}
	q.Set("start_time", strconv.FormatInt(req.Start.Unix(), 10))
	q.Set("end_time", strconv.FormatInt(req.End.Unix(), 10))
	q.Set("bucket_width", "1d")
	q.Set("limit", strconv.Itoa(limit))
	q.Add("group_by", "line_item")
	q.Add("group_by", "project_id")
	for _, id := range req.ProjectIDs {
		q.Add("project_ids", id)
	}
	if req.Cursor != "" {
		q.Set("page", req.Cursor)
	}

	var resp costsResponse
	if err := c.getJSON(ctx, "fetch costs", credential, "/v1/organization/costs?"+q.Encode(), &resp); err != nil {
		return nil, err
	}

	page := &CostPage{HasMore: resp.HasMore}
	if resp.NextPage != nil {
		page.NextCursor = *resp.NextPage
	}
	for _, bucket := range resp.Data {
		start := time.Unix(bucket.StartTime, 0).UTC()
		for _, r := range bucket.Results {
			lineItem := model.UnknownLineItem
			if r.LineItem != nil && *r.LineItem != "" {
				lineItem = *r.LineItem
			}
			page.Results = append(page.Results, CostResult{
				Amount:            r.Amount.Value,
				Currency:          r.Amount.Currency,
				LineItem:          lineItem,
				ExternalProjectID: r.ProjectID,
				BucketStart:       start,
			})
		}
	}
	return page, nil
}

// FetchOrganizationID returns the first organization visible to credential.
func (c *Client) FetchOrganizationID(ctx context.Context, credential string) (string, error) {
	var resp organizationsResponse
	if err := c.getJSON(ctx, "fetch organization", credential, "/v1/organizations", &resp); err != nil {
		return "", err
	}
	if len(resp.Data) == 0 || resp.Data[0].ID == "" {
		return "", ErrNoOrganizationFound
	}
	return resp.Data[0].ID, nil
}

func (c *Client) getJSON(ctx context.Context, op, credential, path string, out any) error {
	resp, err := c.do(ctx, op, credential, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return &UpstreamError{Op: op, StatusCode: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// do issues an authenticated GET bounded by the client timeout.
// The caller closes the response body.
func (c *Client) do(ctx context.Context, op, credential, path string) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "AI-Spend-Guardian/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		cancel()
		if isTimeout(ctx, err) {
			return nil, fmt.Errorf("%s: %w", op, ErrTimeout)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// cancelBody releases the request context once the body is closed.
type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
