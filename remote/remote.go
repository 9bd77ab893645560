// Package remote implements bpm.Store against the REST API served by
// package httpapi.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3/client"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/meikuraledutech/bpm"
)

// headerRequestID matches httpapi.HeaderRequestID.
const headerRequestID = "X-Request-ID"

// Options configures New.
type Options struct {
	Timeout      time.Duration
	RoleCacheTTL time.Duration
	Logger       *zap.Logger
}

// Client is a bpm.Store backed by HTTP calls.
type Client struct {
	http   *client.Client
	roles  *cache.Cache
	logger *zap.Logger
}

var _ bpm.Store = (*Client)(nil)

// New creates a Client for the API rooted at baseURL.
func New(baseURL string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.RoleCacheTTL <= 0 {
		opts.RoleCacheTTL = 5 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	hc := client.New()
	hc.SetBaseURL(baseURL)
	hc.SetTimeout(opts.Timeout)
	return &Client{
		http:   hc,
		roles:  cache.New(opts.RoleCacheTTL, 2*opts.RoleCacheTTL),
		logger: opts.Logger,
	}
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// do performs one request. A non-2xx answer becomes a *bpm.RejectionError
// wrapping the sentinel named by the response code; server faults and
// transport failures wrap bpm.ErrUnavailable.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	cfg := client.Config{Ctx: ctx, Header: map[string]string{}}
	if id := bpm.RequestID(ctx); id != "" {
		cfg.Header[headerRequestID] = id
	}
	if body != nil {
		cfg.Body = body
	}

	var (
		resp *client.Response
		err  error
	)
	switch method {
	case http.MethodGet:
		resp, err = c.http.Get(path, cfg)
	case http.MethodPost:
		resp, err = c.http.Post(path, cfg)
	case http.MethodPut:
		resp, err = c.http.Put(path, cfg)
	case http.MethodPatch:
		resp, err = c.http.Patch(path, cfg)
	case http.MethodDelete:
		resp, err = c.http.Delete(path, cfg)
	default:
		return fmt.Errorf("bpm: unsupported method %s", method)
	}
	if err != nil {
		c.logger.Warn("request failed",
			zap.String("method", method), zap.String("path", path),
			zap.String("request_id", bpm.RequestID(ctx)), zap.Error(err))
		return fmt.Errorf("%w: %s %s: %w", bpm.ErrUnavailable, method, path, err)
	}
	defer resp.Close()

	status := resp.StatusCode()
	if status >= 400 {
		return decodeError(status, resp.Body())
	}
	if out == nil || status == http.StatusNoContent {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("bpm: decode %s %s: %w", method, path, err)
	}
	return nil
}

func decodeError(status int, raw []byte) error {
	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		body.Error = http.StatusText(status)
	}
	if status >= 500 {
		return fmt.Errorf("%w: %s", bpm.ErrUnavailable, body.Error)
	}
	return &bpm.RejectionError{
		Status:  status,
		Message: body.Error,
		Cause:   bpm.ErrorForCode(body.Code),
	}
}

func tenantPath(tenantID int64, rest string) string {
	return "/tenants/" + strconv.FormatInt(tenantID, 10) + rest
}

func processPath(processID int64, rest string) string {
	return "/processes/" + strconv.FormatInt(processID, 10) + rest
}

// CreateProcess creates a process for p.TenantID.
func (c *Client) CreateProcess(ctx context.Context, p *bpm.Process) (*bpm.Process, error) {
	var out bpm.Process
	if err := c.do(ctx, http.MethodPost, tenantPath(p.TenantID, "/processes"), p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetProcess fetches the process with its activities, gateways and arcs.
func (c *Client) GetProcess(ctx context.Context, tenantID, processID int64) (*bpm.Process, error) {
	var out bpm.Process
	path := tenantPath(tenantID, "/processes/"+strconv.FormatInt(processID, 10)+"/detail")
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateRole creates a role and drops the cached role list of its tenant.
func (c *Client) CreateRole(ctx context.Context, r *bpm.Role) (*bpm.Role, error) {
	var out bpm.Role
	if err := c.do(ctx, http.MethodPost, tenantPath(r.TenantID, "/roles"), r, &out); err != nil {
		return nil, err
	}
	c.roles.Delete(strconv.FormatInt(r.TenantID, 10))
	return &out, nil
}

// ListRoles returns the roles of a tenant. Results are cached per tenant.
func (c *Client) ListRoles(ctx context.Context, tenantID int64) ([]bpm.Role, error) {
	key := strconv.FormatInt(tenantID, 10)
	if v, ok := c.roles.Get(key); ok {
		return v.([]bpm.Role), nil
	}
	var out []bpm.Role
	if err := c.do(ctx, http.MethodGet, tenantPath(tenantID, "/roles"), nil, &out); err != nil {
		return nil, err
	}
	c.roles.Set(key, out, cache.DefaultExpiration)
	return out, nil
}
