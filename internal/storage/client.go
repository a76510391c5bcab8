package storage

import (
	"context"
	"io"
	"time"
)

const (
	// DefaultProbeTimeout bounds a single existence check
	DefaultProbeTimeout = 2 * time.Second
	// DefaultUploadTimeout is how long an upload connection may sit idle
	DefaultUploadTimeout = 10 * time.Second
)

// Client defines the operations the importer needs from a remote files store.
// Remote paths are of the form /wp-content/uploads/<relative path>.
type Client interface {
	// Exists probes the remote for a file. A missing file is (false, nil).
	Exists(ctx context.Context, remotePath string) (bool, error)
	// Put uploads size bytes from reader to remotePath.
	Put(ctx context.Context, remotePath string, reader io.Reader, size int64, opts PutOptions) error
}

// PutOptions contains options for put operations
type PutOptions struct {
	ContentType string
}

// Site identifies the destination site for uploads
type Site struct {
	ID          int
	AccessToken string
}

// Config contains files service client configuration
type Config struct {
	Endpoint      string
	Secure        bool
	ProbeTimeout  time.Duration
	UploadTimeout time.Duration
}

func (c Config) probeTimeout() time.Duration {
	if c.ProbeTimeout <= 0 {
		return DefaultProbeTimeout
	}
	return c.ProbeTimeout
}

func (c Config) uploadTimeout() time.Duration {
	if c.UploadTimeout <= 0 {
		return DefaultUploadTimeout
	}
	return c.UploadTimeout
}
