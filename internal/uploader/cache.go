package uploader

import (
	"strings"
	"sync"
)

// listingCache memoizes which remote paths are known to exist, populated by
// one listing call per directory. It is scoped to a single upload run and
// shared by every concurrent upload task in that run.
type listingCache struct {
	mu    sync.Mutex
	files map[string]bool // "bucket:path" -> known to exist
	dirs  map[string]bool // "bucket:dir" -> already listed
}

func newListingCache() *listingCache {
	return &listingCache{
		files: make(map[string]bool),
		dirs:  make(map[string]bool),
	}
}

// FileExists reports whether the remote path is known to exist
func (c *listingCache) FileExists(bucket, path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.files[bucket+":"+path]
}

// MarkFile records a remote path as existing
func (c *listingCache) MarkFile(bucket, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files[bucket+":"+path] = true
}

// MarkDirListed records a directory as listed. Returns false if the
// directory was already marked, so each directory is listed at most once
// per run even when the listing itself fails.
func (c *listingCache) MarkDirListed(bucket, dir string) bool {
	dir = strings.TrimRight(dir, "/")
	key := bucket + ":" + dir

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dirs[key] {
		return false
	}
	c.dirs[key] = true
	return true
}

// MarkFiles records a batch of listed paths under one lock acquisition
func (c *listingCache) MarkFiles(bucket, dir string, names []string) {
	dir = strings.TrimRight(dir, "/")

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range names {
		if name == "" {
			continue
		}
		fullPath := name
		if dir != "" {
			fullPath = dir + "/" + name
		}
		c.files[bucket+":"+fullPath] = true
	}
}
