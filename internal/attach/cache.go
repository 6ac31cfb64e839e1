package attach

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/programme-lv/disttester/internal/pool"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/singleflight"
)

// Cache materializes each peer's attachments at most once. Concurrent
// requests for the same peer share one download.
type Cache struct {
	fetcher Fetcher
	root    string
	dirs    *xsync.MapOf[string, string]
	group   singleflight.Group
	seq     atomic.Int64
}

func NewCache(fetcher Fetcher, root string) *Cache {
	return &Cache{
		fetcher: fetcher,
		root:    root,
		dirs:    xsync.NewMapOf[string, string](),
	}
}

// Dir returns the directory holding the attachments of studentID,
// downloading them on first use. Failed downloads are not cached.
func (c *Cache) Dir(ctx context.Context, studentID string, attachments []pool.Attachment) (string, error) {
	if dir, ok := c.dirs.Load(studentID); ok {
		return dir, nil
	}
	v, err, _ := c.group.Do(studentID, func() (any, error) {
		if dir, ok := c.dirs.Load(studentID); ok {
			return dir, nil
		}
		dir := filepath.Join(c.root, fmt.Sprintf("peer-%d", c.seq.Add(1)))
		if err := os.RemoveAll(dir); err != nil {
			return "", err
		}
		if err := c.fetcher.Fetch(ctx, attachments, dir); err != nil {
			os.RemoveAll(dir)
			return "", err
		}
		c.dirs.Store(studentID, dir)
		return dir, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Close removes every materialized directory.
func (c *Cache) Close() error {
	c.dirs.Clear()
	return os.RemoveAll(c.root)
}
