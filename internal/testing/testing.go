// package testing contains shared test helpers and a fake Spotify server
package testing

import (
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

var (
	errWrite = errors.New("write failed")
	errRead  = errors.New("read failed")
)

// FWriter fails every write.
type FWriter struct{}

func (*FWriter) Write([]byte) (int, error) { return 0, errWrite }

// LimitedWriter forwards to target until limit writes have happened, then fails.
type LimitedWriter struct {
	limit  int
	writes int
	target io.Writer
}

func NewLimitedWriter(limit, writes int, target io.Writer) *LimitedWriter {
	return &LimitedWriter{limit: limit, writes: writes, target: target}
}

func (l *LimitedWriter) Write(p []byte) (int, error) {
	if l.writes >= l.limit {
		return 0, errWrite
	}
	l.writes++
	return l.target.Write(p)
}

// BrokenBody is a response body whose reads always fail.
type BrokenBody struct{}

func (BrokenBody) Read([]byte) (int, error) { return 0, errRead }
func (BrokenBody) Close() error             { return nil }

// RoundTripper is an [http.RoundTripper] backed by a function. It counts the requests it sees.
type RoundTripper struct {
	fn    func(*http.Request) (*http.Response, error)
	mu    sync.Mutex
	calls int
}

func NewRoundTripper(fn func(*http.Request) (*http.Response, error)) *RoundTripper {
	return &RoundTripper{fn: fn}
}

// FailingTransport fails every request with err before any response is read.
func FailingTransport(err error) *RoundTripper {
	return NewRoundTripper(func(*http.Request) (*http.Response, error) { return nil, err })
}

// BodyTransport answers every request with status and a fresh body from newBody.
func BodyTransport(status int, newBody func() io.ReadCloser) *RoundTripper {
	return NewRoundTripper(func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: status,
			Header:     http.Header{"Content-Type": {"application/json"}},
			Body:       newBody(),
			Request:    req,
		}, nil
	})
}

func (rt *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	rt.mu.Lock()
	rt.calls++
	rt.mu.Unlock()
	return rt.fn(req)
}

// Calls returns how many requests went through rt.
func (rt *RoundTripper) Calls() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.calls
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		t.Errorf("file does not exist: %s", path)
	case err != nil:
		t.Errorf("stat %s: %v", path, err)
	case info.IsDir():
		t.Errorf("expected a file, found a directory: %s", path)
	}
}

func AssertNoFile(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("file should not exist: %s (stat err: %v)", path, err)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Errorf("directory does not exist: %s (%v)", path, err)
		return
	}
	if !info.IsDir() {
		t.Errorf("path is not a directory: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(content)
}

// MustWriteFile writes content to path, creating parent directories.
func MustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

// StringBody returns a body constructor for a fixed string.
func StringBody(s string) func() io.ReadCloser {
	return func() io.ReadCloser { return io.NopCloser(strings.NewReader(s)) }
}
