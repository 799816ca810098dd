package cache

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCacheKey_ContentAddressed(t *testing.T) {
	a := CacheKey([]byte("1 hello world\n"))
	b := CacheKey([]byte("1 hello world\n"))
	c := CacheKey([]byte("1 hello there\n"))

	if a != b {
		t.Errorf("Expected equal keys for equal content, got %s and %s", a, b)
	}
	if a == c {
		t.Error("Expected different keys for different content")
	}
	if !strings.HasPrefix(a, keyVersion) {
		t.Errorf("Expected key prefix %q, got %s", keyVersion, a)
	}
}

func TestMemoryCache_SetGetDelete(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)

	if err := c.Set("k", []byte("v"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, ok := c.Get("k")
	if !ok || string(got) != "v" {
		t.Errorf("Expected v, got %q (found=%v)", got, ok)
	}

	_ = c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Error("Expected entry to be deleted")
	}
}

func TestDiskCache_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)
	key := CacheKey([]byte("corpus"))

	if err := c.Set(key, []byte(`{"sentences":[]}`), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, ok := c.Get(key)
	if !ok || !bytes.Equal(got, []byte(`{"sentences":[]}`)) {
		t.Errorf("Unexpected entry %q (found=%v)", got, ok)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 || filepath.Ext(entries[0].Name()) != ".cache" {
		t.Errorf("Expected a single .cache file, got %v", entries)
	}
	if strings.Contains(entries[0].Name(), ":") {
		t.Errorf("Expected portable file name, got %s", entries[0].Name())
	}
}

func TestDiskCache_Expired(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Hour)

	if err := c.Set("k", []byte("v"), -time.Second); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, ok := c.Get("k"); ok {
		t.Error("Expected expired entry to miss")
	}
	if _, err := os.Stat(c.path("k")); !os.IsNotExist(err) {
		t.Error("Expected expired entry file to be removed")
	}
}

func TestDiskCache_DeleteMissing(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Hour)
	if err := c.Delete("absent"); err != nil {
		t.Errorf("Expected no error deleting a missing key, got %v", err)
	}
}

func TestLayeredCache_PromotesDiskHits(t *testing.T) {
	dir := t.TempDir()

	first := NewLayeredCache(time.Minute, dir, time.Hour)
	if err := first.Set("k", []byte("index"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// A fresh process only has the disk layer
	second := NewLayeredCache(time.Minute, dir, time.Hour)
	got, ok := second.Get("k")
	if !ok || string(got) != "index" {
		t.Fatalf("Expected disk hit, got %q (found=%v)", got, ok)
	}
	if _, ok := second.memory.Get("k"); !ok {
		t.Error("Expected disk hit to be promoted to memory")
	}
}

func TestLayeredCache_Clear(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	c := NewLayeredCache(time.Minute, dir, time.Hour)

	if err := c.Set("k", []byte("v"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := c.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	if _, ok := c.Get("k"); ok {
		t.Error("Expected miss after Clear")
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("Expected cache dir removed, got %v", err)
	}
}

func TestNew_SelectsLayers(t *testing.T) {
	if _, ok := New(time.Minute, "", time.Hour).(*MemoryCache); !ok {
		t.Error("Expected memory cache without a directory")
	}
	if _, ok := New(time.Minute, t.TempDir(), time.Hour).(*LayeredCache); !ok {
		t.Error("Expected layered cache with a directory")
	}
}
