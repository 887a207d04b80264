package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// MetadataFile is the indicator list shared by every country.
const MetadataFile = "meta.json"

var ErrNotFound = errors.New("resource not found")

// Source serves the two dashboard resources: /data/{code}.csv and
// /data/meta.json.
type Source interface {
	Dataset(ctx context.Context, code string) (io.ReadCloser, error)
	Metadata(ctx context.Context) (io.ReadCloser, error)
}

// DatasetFile names the CSV resource of a country.
func DatasetFile(code string) string {
	return code + ".csv"
}

// DirSource reads resources from a file tree laid out like /data.
type DirSource struct {
	FS fs.FS
}

func NewDirSource(dir string) DirSource {
	return DirSource{FS: os.DirFS(dir)}
}

func (s DirSource) Dataset(ctx context.Context, code string) (io.ReadCloser, error) {
	return s.open(ctx, DatasetFile(code))
}

func (s DirSource) Metadata(ctx context.Context) (io.ReadCloser, error) {
	return s.open(ctx, MetadataFile)
}

func (s DirSource) open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !fs.ValidPath(name) {
		return nil, fmt.Errorf("%w: invalid path %q", ErrNotFound, name)
	}
	f, err := s.FS.Open(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// HTTPSource fetches resources from a remote host serving /data/*.
type HTTPSource struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSource) Dataset(ctx context.Context, code string) (io.ReadCloser, error) {
	return s.get(ctx, "/data/"+url.PathEscape(DatasetFile(code)))
}

func (s *HTTPSource) Metadata(ctx context.Context) (io.ReadCloser, error) {
	return s.get(ctx, "/data/"+MetadataFile)
}

func (s *HTTPSource) get(ctx context.Context, path string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	case resp.StatusCode != http.StatusOK:
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: unexpected status %s", path, resp.Status)
	}
	return resp.Body, nil
}
