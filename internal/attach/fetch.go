// Package attach downloads submission attachments and unpacks them into a
// directory that can be mounted into a container.
package attach

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/programme-lv/disttester/internal/pool"
)

type Fetcher interface {
	// Fetch places every attachment into destDir, unpacking archives.
	Fetch(ctx context.Context, attachments []pool.Attachment, destDir string) error
}

// S3Getter is the part of the S3 client used for s3:// attachments.
type S3Getter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

func NewS3Client(ctx context.Context, region string) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// Downloader fetches http(s)://, s3:// and file:// attachments as well as
// plain local paths.
type Downloader struct {
	client *http.Client
	s3     S3Getter
	logger *slog.Logger
}

var _ Fetcher = (*Downloader)(nil)

// NewDownloader returns a Downloader. A nil s3 client makes s3:// URLs fail.
func NewDownloader(client *http.Client, s3 S3Getter, logger *slog.Logger) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Downloader{client: client, s3: s3, logger: logger}
}

func (d *Downloader) Fetch(ctx context.Context, attachments []pool.Attachment, destDir string) error {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", destDir, err)
	}
	for _, a := range attachments {
		if err := d.fetchOne(ctx, a, destDir); err != nil {
			return fmt.Errorf("failed to fetch %s: %w", a.DisplayName, err)
		}
	}
	return nil
}

func (d *Downloader) fetchOne(ctx context.Context, a pool.Attachment, destDir string) error {
	name := filepath.Base(a.DisplayName)
	if name == "." || name == "/" || name == "" {
		return fmt.Errorf("attachment has no usable name")
	}
	d.logger.Debug("fetching attachment", "name", name, "url", a.URL)

	body, err := d.open(ctx, a.URL)
	if err != nil {
		return err
	}
	defer body.Close()
	return unpack(body, name, destDir)
}

func (d *Downloader) open(ctx context.Context, raw string) (io.ReadCloser, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse url %s: %w", raw, err)
	}
	switch u.Scheme {
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
		if err != nil {
			return nil, err
		}
		resp, err := d.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to download %s: %w", raw, err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("failed to download %s: status %s", raw, resp.Status)
		}
		return resp.Body, nil
	case "s3":
		if d.s3 == nil {
			return nil, fmt.Errorf("no s3 client configured for %s", raw)
		}
		key := strings.TrimPrefix(u.Path, "/")
		obj, err := d.s3.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(u.Host),
			Key:    aws.String(key),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to download %s from s3 (bucket: %s, key: %s): %w", raw, u.Host, key, err)
		}
		return obj.Body, nil
	case "file":
		return os.Open(u.Path)
	case "":
		return os.Open(raw)
	default:
		return nil, fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
}
