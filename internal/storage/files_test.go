package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordedRequest struct {
	method string
	path   string
	header http.Header
	body   string
}

type fakeFilesService struct {
	mu       sync.Mutex
	files    map[string]string
	requests []recordedRequest
	status   int
	delay    time.Duration
}

func (f *fakeFilesService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		method: r.Method,
		path:   r.URL.Path,
		header: r.Header.Clone(),
		body:   string(body),
	})
	status := f.status
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	if status != 0 {
		w.WriteHeader(status)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.Method {
	case http.MethodGet:
		if _, ok := f.files[r.URL.Path]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	case http.MethodPut:
		f.files[r.URL.Path] = string(body)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeFilesService) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func (f *fakeFilesService) file(path string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.files[path]
}

func newTestFilesClient(t *testing.T, svc *fakeFilesService, cfg Config) *FilesClient {
	t.Helper()
	srv := httptest.NewServer(svc)
	t.Cleanup(srv.Close)

	cfg.Endpoint = srv.URL
	client, err := NewFilesClient(cfg, Site{ID: 42, AccessToken: "secret"}, zap.NewNop())
	require.NoError(t, err)
	return client
}

func TestFilesClientExists(t *testing.T) {
	svc := &fakeFilesService{files: map[string]string{"/wp-content/uploads/a.jpg": "x"}}
	client := newTestFilesClient(t, svc, Config{})

	exists, err := client.Exists(context.Background(), "/wp-content/uploads/a.jpg")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = client.Exists(context.Background(), "/wp-content/uploads/b.jpg")
	require.NoError(t, err)
	assert.False(t, exists)

	requests := svc.recorded()
	require.Len(t, requests, 2)
	req := requests[0]
	assert.Equal(t, http.MethodGet, req.method)
	assert.Equal(t, "42", req.header.Get("X-Client-Site-ID"))
	assert.Equal(t, "secret", req.header.Get("X-Access-Token"))
	assert.Equal(t, "file_exists", req.header.Get("X-Action"))
}

func TestFilesClientExistsUnexpectedStatus(t *testing.T) {
	svc := &fakeFilesService{files: map[string]string{}, status: http.StatusForbidden}
	client := newTestFilesClient(t, svc, Config{})

	_, err := client.Exists(context.Background(), "/wp-content/uploads/a.jpg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestFilesClientExistsTimeout(t *testing.T) {
	svc := &fakeFilesService{files: map[string]string{}, delay: time.Second}
	client := newTestFilesClient(t, svc, Config{ProbeTimeout: 50 * time.Millisecond})

	start := time.Now()
	_, err := client.Exists(context.Background(), "/wp-content/uploads/a.jpg")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 900*time.Millisecond)
}

func TestFilesClientPut(t *testing.T) {
	svc := &fakeFilesService{files: map[string]string{}}
	client := newTestFilesClient(t, svc, Config{})

	err := client.Put(context.Background(), "/wp-content/uploads/2020/01/a.jpg",
		strings.NewReader("jpeg-bytes"), 10, PutOptions{ContentType: "image/jpeg"})
	require.NoError(t, err)

	assert.Equal(t, "jpeg-bytes", svc.file("/wp-content/uploads/2020/01/a.jpg"))
	req := svc.recorded()[0]
	assert.Equal(t, http.MethodPut, req.method)
	assert.Equal(t, "image/jpeg", req.header.Get("Content-Type"))
	assert.Equal(t, "secret", req.header.Get("X-Access-Token"))
	assert.Empty(t, req.header.Get("X-Action"))
}

func TestFilesClientPutFailure(t *testing.T) {
	svc := &fakeFilesService{files: map[string]string{}, status: http.StatusBadGateway}
	client := newTestFilesClient(t, svc, Config{})

	err := client.Put(context.Background(), "/wp-content/uploads/a.jpg", strings.NewReader("x"), 1, PutOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

// tricklingReader yields one byte per interval
type tricklingReader struct {
	remaining int
	interval  time.Duration
}

func (r *tricklingReader) Read(p []byte) (int, error) {
	if r.remaining == 0 {
		return 0, io.EOF
	}
	time.Sleep(r.interval)
	p[0] = 'x'
	r.remaining--
	return 1, nil
}

func TestFilesClientPutSlowBodyKeepsFlowing(t *testing.T) {
	svc := &fakeFilesService{files: map[string]string{}}
	client := newTestFilesClient(t, svc, Config{UploadTimeout: 300 * time.Millisecond})

	start := time.Now()
	err := client.Put(context.Background(), "/wp-content/uploads/a.jpg",
		&tricklingReader{remaining: 12, interval: 50 * time.Millisecond}, 12, PutOptions{})
	require.NoError(t, err)

	// The transfer outlives the timeout but never goes idle.
	assert.Greater(t, time.Since(start), 300*time.Millisecond)
	assert.Equal(t, strings.Repeat("x", 12), svc.file("/wp-content/uploads/a.jpg"))
}

func TestFilesClientPutStalledConnection(t *testing.T) {
	svc := &fakeFilesService{files: map[string]string{}, delay: 2 * time.Second}
	client := newTestFilesClient(t, svc, Config{UploadTimeout: 200 * time.Millisecond})

	start := time.Now()
	err := client.Put(context.Background(), "/wp-content/uploads/a.jpg", strings.NewReader("x"), 1, PutOptions{})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 1500*time.Millisecond)

	assert.ErrorIs(t, err, os.ErrDeadlineExceeded)
	assert.Contains(t, err.Error(), "timeout")
}

func TestFilesClientPutCancelled(t *testing.T) {
	svc := &fakeFilesService{files: map[string]string{}, delay: 2 * time.Second}
	client := newTestFilesClient(t, svc, Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := client.Put(ctx, "/wp-content/uploads/a.jpg", strings.NewReader("x"), 1, PutOptions{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewFilesClientValidation(t *testing.T) {
	_, err := NewFilesClient(Config{}, Site{ID: 1, AccessToken: "t"}, zap.NewNop())
	assert.Error(t, err)

	_, err = NewFilesClient(Config{Endpoint: "files.example.com"}, Site{ID: 1}, zap.NewNop())
	assert.Error(t, err)
}

func TestBaseURL(t *testing.T) {
	assert.Equal(t, "https://files.example.com", baseURL("files.example.com", true))
	assert.Equal(t, "http://files.example.com", baseURL("files.example.com/", false))
	assert.Equal(t, "http://127.0.0.1:9000", baseURL("http://127.0.0.1:9000", true))
}

func TestCleanEndpoint(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		wantErr  bool
	}{
		{input: "localhost:9000", expected: "localhost:9000"},
		{input: "https://s3.example.com", expected: "s3.example.com"},
		{input: "http://s3.example.com/", expected: "s3.example.com"},
		{input: "http://s3.example.com/bucket", wantErr: true},
		{input: "s3.example.com/bucket", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := cleanEndpoint(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "wp-content/uploads/a.jpg", objectKey("/wp-content/uploads/a.jpg"))
}
