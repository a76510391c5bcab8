package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"vipctl/internal/logger"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// DefaultTimeout bounds every control-plane request
const DefaultTimeout = 30 * time.Second

var (
	ErrUnauthorized   = errors.New("invalid or expired token")
	ErrSiteNotFound   = errors.New("site not found")
	ErrAmbiguousSite  = errors.New("site query matches more than one site")
	ErrNoAccessToken  = errors.New("could not get files access token")
	errMissingBaseURL = errors.New("api url cannot be empty")
)

// Site is a hosted WordPress site as returned by the API
type Site struct {
	ID          int    `json:"client_site_id"`
	Name        string `json:"name"`
	DomainName  string `json:"domain_name"`
	Environment string `json:"environment_name"`
}

func (s Site) String() string {
	if s.Environment != "" {
		return fmt.Sprintf("%s (#%d, %s)", s.DomainName, s.ID, s.Environment)
	}
	return fmt.Sprintf("%s (#%d)", s.DomainName, s.ID)
}

// Config holds control-plane connection settings
type Config struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// Client is a thin wrapper over the control-plane REST API
type Client struct {
	client *resty.Client
	log    *zap.Logger
}

type listResponse[T any] struct {
	Status    string `json:"status"`
	Data      []T    `json:"data"`
	Result    int    `json:"result"`
	TotalRecs int64  `json:"totalrecs"`
}

type metaEntry struct {
	MetaKey   string `json:"meta_key"`
	MetaValue string `json:"meta_value"`
}

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// NewClient creates an API client authenticated with a bearer token
func NewClient(cfg Config, log *zap.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, errMissingBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.URL, "/")).
		SetTimeout(timeout).
		SetLogger(logger.NewRestyLogger(log)).
		SetHeader("Accept", "application/json")
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}

	return &Client{client: client, log: log}, nil
}

// FindSite resolves a site by numeric id, domain or free-text search.
// An exact id or domain match wins; otherwise the search must be unambiguous.
func (c *Client) FindSite(ctx context.Context, query string) (*Site, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrSiteNotFound
	}

	var body listResponse[Site]
	if err := c.get(ctx, "/sites", map[string]string{"search": query, "pagesize": "10"}, &body); err != nil {
		return nil, fmt.Errorf("failed to search sites: %w", err)
	}

	id, idErr := strconv.Atoi(query)
	for i := range body.Data {
		site := body.Data[i]
		if (idErr == nil && site.ID == id) || strings.EqualFold(site.DomainName, query) {
			return &site, nil
		}
	}

	switch len(body.Data) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrSiteNotFound, query)
	case 1:
		return &body.Data[0], nil
	default:
		return nil, fmt.Errorf("%w: %q (%d results)", ErrAmbiguousSite, query, len(body.Data))
	}
}

// FileCount returns the number of files the site already holds
func (c *Client) FileCount(ctx context.Context, site *Site) (int64, error) {
	var body listResponse[map[string]any]
	path := fmt.Sprintf("/sites/%d/files", site.ID)
	if err := c.get(ctx, path, map[string]string{"pagesize": "0"}, &body); err != nil {
		return 0, fmt.Errorf("failed to count files for site %d: %w", site.ID, err)
	}
	return body.TotalRecs, nil
}

// FilesAccessToken fetches the short-lived token used by the files service
func (c *Client) FilesAccessToken(ctx context.Context, site *Site) (string, error) {
	var body listResponse[metaEntry]
	path := fmt.Sprintf("/sites/%d/meta/files_access_token", site.ID)
	if err := c.get(ctx, path, nil, &body); err != nil {
		return "", fmt.Errorf("failed to fetch files access token: %w", err)
	}
	if len(body.Data) == 0 || body.Data[0].MetaValue == "" {
		return "", ErrNoAccessToken
	}
	return body.Data[0].MetaValue, nil
}

func (c *Client) get(ctx context.Context, path string, query map[string]string, out any) error {
	var apiErr errorResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(query).
		SetResult(out).
		SetError(&apiErr).
		Get(path)
	if err != nil {
		return err
	}

	c.log.Debug("API response",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode()),
		zap.Duration("duration", resp.Time()),
	)

	switch {
	case resp.StatusCode() == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode() == http.StatusNotFound:
		return ErrSiteNotFound
	case resp.IsError():
		if apiErr.Message != "" {
			return fmt.Errorf("api returned status %d: %s", resp.StatusCode(), apiErr.Message)
		}
		return fmt.Errorf("api returned status %d", resp.StatusCode())
	}
	return nil
}
