package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"vipctl/internal/logger"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	headerSiteID      = "X-Client-Site-ID"
	headerAccessToken = "X-Access-Token"
	headerAction      = "X-Action"
)

// FilesClient talks to the platform files service on behalf of one site
type FilesClient struct {
	client *resty.Client
	cfg    Config
}

// NewFilesClient creates a files service client bound to the site's access token
func NewFilesClient(cfg Config, site Site, log *zap.Logger) (*FilesClient, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("files endpoint cannot be empty")
	}
	if site.AccessToken == "" {
		return nil, fmt.Errorf("access token cannot be empty")
	}

	client := resty.New().
		SetTransport(newIdleTimeoutTransport(cfg.uploadTimeout())).
		SetBaseURL(baseURL(cfg.Endpoint, cfg.Secure)).
		SetLogger(logger.NewRestyLogger(log)).
		SetHeader(headerSiteID, strconv.Itoa(site.ID)).
		SetHeader(headerAccessToken, site.AccessToken)

	client.OnBeforeRequest(func(c *resty.Client, req *resty.Request) error {
		log.Debug("Files request", zap.String("method", req.Method), zap.String("url", req.URL))
		return nil
	})

	return &FilesClient{client: client, cfg: cfg}, nil
}

func baseURL(endpoint string, secure bool) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return strings.TrimSuffix(endpoint, "/")
	}
	scheme := "http"
	if secure {
		scheme = "https"
	}
	return scheme + "://" + strings.TrimSuffix(endpoint, "/")
}

// Exists issues a file_exists probe. 404 means absent, 2xx means present,
// anything else is an error.
func (c *FilesClient) Exists(ctx context.Context, remotePath string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.probeTimeout())
	defer cancel()

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader(headerAction, "file_exists").
		Get(remotePath)
	if err != nil {
		return false, fmt.Errorf("existence check for %s: %w", remotePath, err)
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return false, nil
	case resp.IsSuccess():
		return true, nil
	default:
		return false, fmt.Errorf("existence check for %s: unexpected status %d", remotePath, resp.StatusCode())
	}
}

// Put uploads the file body with a PUT to remotePath. The request has no
// overall deadline; it fails once the connection stalls for UploadTimeout.
func (c *FilesClient) Put(ctx context.Context, remotePath string, reader io.Reader, size int64, opts PutOptions) error {
	req := c.client.R().
		SetContext(ctx).
		SetBody(reader)
	if opts.ContentType != "" {
		req.SetHeader("Content-Type", opts.ContentType)
	}

	resp, err := req.Put(remotePath)
	if err != nil {
		return fmt.Errorf("upload of %s: %w", remotePath, err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("upload of %s failed with status %d: %s", remotePath, resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	return nil
}
