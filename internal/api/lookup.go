package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"nodewar-tracker/internal/config"
	"nodewar-tracker/internal/domain"

	"github.com/valyala/fasthttp"
)

// LookupClient talks to the adventurer-profile source. The source is
// rate-sensitive and occasionally serves stale or placeholder data; callers
// (the resolver) own throttling, retries and staleness heuristics.
type LookupClient struct {
	lookupBase  string
	rosterBase  string
	client      *fasthttp.Client
	rateLimitMu sync.RWMutex
	rateLimit   RateLimitInfo
}

type RateLimitInfo struct {
	Bucket    string `json:"bucket"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`

	// seconds until reset
	Reset int `json:"reset"`

	UpdatedAt time.Time `json:"updated_at"`
}

func NewLookupClient(cfg *config.Config) *LookupClient {
	return &LookupClient{
		lookupBase: cfg.LookupBaseURL,
		rosterBase: cfg.RosterBaseURL,
		client: &fasthttp.Client{
			MaxConnsPerHost:     100,
			ReadTimeout:         10 * time.Second,
			WriteTimeout:        10 * time.Second,
			MaxIdleConnDuration: 1 * time.Minute,
		},
		rateLimit: RateLimitInfo{
			Limit:     60,
			Remaining: 60,
			Reset:     60,
			UpdatedAt: time.Now(),
		},
	}
}

func (c *LookupClient) GetRateLimitInfo() RateLimitInfo {
	c.rateLimitMu.RLock()
	defer c.rateLimitMu.RUnlock()
	return c.rateLimit
}

func (c *LookupClient) updateRateLimit(resp *fasthttp.Response) {
	c.rateLimitMu.Lock()
	defer c.rateLimitMu.Unlock()

	if bucket := string(resp.Header.Peek("X-Ratelimit-Bucket")); bucket != "" {
		c.rateLimit.Bucket = bucket
	}
	if limit := string(resp.Header.Peek("X-Ratelimit-Limit")); limit != "" {
		if val, err := strconv.Atoi(limit); err == nil {
			c.rateLimit.Limit = val
		}
	}
	if remaining := string(resp.Header.Peek("X-Ratelimit-Remaining")); remaining != "" {
		if val, err := strconv.Atoi(remaining); err == nil {
			c.rateLimit.Remaining = val
		}
	}
	if reset := string(resp.Header.Peek("X-Ratelimit-Reset")); reset != "" {
		if val, err := strconv.Atoi(reset); err == nil {
			c.rateLimit.Reset = val
		}
	}
	c.rateLimit.UpdatedAt = time.Now()
}

// GetProfile looks up one nickname's class and family.
func (c *LookupClient) GetProfile(ctx context.Context, nick string) (*ProfileResponse, error) {
	u := fmt.Sprintf("%s/api/adventurer/profile?nick=%s", c.lookupBase, url.QueryEscape(nick))
	return doRequest[ProfileResponse](ctx, c, u)
}

// GetAllianceRoster fetches the point-in-time family -> sub-guild snapshot.
func (c *LookupClient) GetAllianceRoster(ctx context.Context) (*RosterResponse, error) {
	u := fmt.Sprintf("%s/api/alliance/roster", c.rosterBase)
	return doRequest[RosterResponse](ctx, c, u)
}

func doRequest[T any](ctx context.Context, client *LookupClient, url string) (*T, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)

	deadline, ok := ctx.Deadline()
	if ok {
		if err := client.client.DoDeadline(req, resp, deadline); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
		}
	} else {
		if err := client.client.Do(req, resp); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
		}
	}

	client.updateRateLimit(resp)

	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("API error: %d", resp.StatusCode())
	}

	var result T
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

type ProfileResponse struct {
	Nick   string `json:"nick"`
	Classe string `json:"classe"`
	// Familia is the account-level family name shown on the profile page.
	Familia   string `json:"familia"`
	UpdatedAt string `json:"updated_at"`
}

type RosterResponse struct {
	Entries []RosterEntry `json:"entries"`
}

type RosterEntry struct {
	Familia string `json:"familia"`
	Guilda  string `json:"guilda"`
}
