package uploader

import (
	"fmt"
	"sync"
	"testing"
)

func TestListingCache_FileLifecycle(t *testing.T) {
	cache := newListingCache()

	if cache.FileExists("bucket", "dir/a.json") {
		t.Error("empty cache must not report files")
	}

	cache.MarkFile("bucket", "dir/a.json")
	if !cache.FileExists("bucket", "dir/a.json") {
		t.Error("marked file should exist")
	}
	if cache.FileExists("other", "dir/a.json") {
		t.Error("entries are scoped per bucket")
	}
}

func TestListingCache_MarkDirListedOnce(t *testing.T) {
	cache := newListingCache()

	if !cache.MarkDirListed("bucket", "2022-23/sem1/student") {
		t.Error("first mark should return true")
	}
	if cache.MarkDirListed("bucket", "2022-23/sem1/student") {
		t.Error("second mark should return false")
	}
	// Trailing slash normalizes to the same directory
	if cache.MarkDirListed("bucket", "2022-23/sem1/student/") {
		t.Error("trailing slash variant should be the same directory")
	}
}

func TestListingCache_MarkFiles(t *testing.T) {
	cache := newListingCache()

	cache.MarkFiles("bucket", "dir", []string{"a.json", "b.json", ""})

	if !cache.FileExists("bucket", "dir/a.json") || !cache.FileExists("bucket", "dir/b.json") {
		t.Error("batch-marked files should exist")
	}
	if cache.FileExists("bucket", "dir/") {
		t.Error("empty names must be ignored")
	}
}

func TestListingCache_ConcurrentAccess(t *testing.T) {
	cache := newListingCache()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			path := fmt.Sprintf("dir/file_%d.json", n)
			cache.MarkFile("bucket", path)
			cache.FileExists("bucket", path)
			cache.MarkDirListed("bucket", "dir")
		}(i)
	}
	wg.Wait()

	for i := 0; i < 50; i++ {
		if !cache.FileExists("bucket", fmt.Sprintf("dir/file_%d.json", i)) {
			t.Fatalf("file %d missing after concurrent marking", i)
		}
	}
}
