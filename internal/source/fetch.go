// Package source loads source documents referenced by path or URL.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/local/pageset/internal/storage"
)

// ErrTooLarge is returned when a source exceeds the fetcher's size limit.
var ErrTooLarge = errors.New("source exceeds size limit")

// ObjectGetter downloads bucket objects. *storage.S3Client satisfies it.
type ObjectGetter interface {
	Download(ctx context.Context, bucket, key string) ([]byte, *storage.FileMetadata, error)
}

// Fetcher resolves source references:
// - file://path or absolute/relative filesystem paths
// - http(s):// URLs
// - s3://bucket/key (needs an ObjectGetter)
type Fetcher struct {
	HTTP     *http.Client
	S3       ObjectGetter
	MaxBytes int64
}

// Fetch returns the bytes behind ref. A trailing #fragment is ignored.
func (f *Fetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if i := strings.Index(ref, "#"); i >= 0 {
		ref = ref[:i]
	}
	if ref == "" {
		return nil, errors.New("empty source reference")
	}

	var (
		data []byte
		err  error
	)
	switch {
	case strings.HasPrefix(ref, "s3://"):
		data, err = f.fetchS3(ctx, ref)
	case strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://"):
		data, err = f.fetchHTTP(ctx, ref)
	default:
		data, err = f.readFile(strings.TrimPrefix(ref, "file://"))
	}
	if err != nil {
		return nil, err
	}
	log.Info().Str("ref", ref).Int("bytes", len(data)).Msg("fetched source document")
	return data, nil
}

func (f *Fetcher) limit(r io.Reader) ([]byte, error) {
	if f.MaxBytes <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, f.MaxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > f.MaxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.MaxBytes)
	}
	return data, nil
}

func (f *Fetcher) readFile(path string) ([]byte, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer fh.Close()
	return f.limit(fh)
}

func (f *Fetcher) fetchHTTP(ctx context.Context, url string) ([]byte, error) {
	client := f.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download source: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download source: http %d", resp.StatusCode)
	}
	return f.limit(resp.Body)
}

func (f *Fetcher) fetchS3(ctx context.Context, s3url string) ([]byte, error) {
	path := strings.TrimPrefix(s3url, "s3://")
	slash := strings.Index(path, "/")
	if slash <= 0 || slash == len(path)-1 {
		return nil, fmt.Errorf("invalid s3 url: %s", s3url)
	}
	if f.S3 == nil {
		return nil, fmt.Errorf("s3 source %s: storage is not configured", s3url)
	}
	data, _, err := f.S3.Download(ctx, path[:slash], path[slash+1:])
	if err != nil {
		return nil, err
	}
	if f.MaxBytes > 0 && int64(len(data)) > f.MaxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}
	return data, nil
}
