// ABOUTME: Artwork downloader for album art metadata
// ABOUTME: Fetches images by URL into a hash-keyed temp cache
package artwork

import (
	"crypto/sha256"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// maxArtworkBytes bounds a single image download
const maxArtworkBytes = 8 << 20

// Downloader fetches and caches artwork images
type Downloader struct {
	cacheDir string
	client   *http.Client
}

// NewDownloader creates an artwork downloader backed by a temp cache.
func NewDownloader() (*Downloader, error) {
	cacheDir := filepath.Join(os.TempDir(), "sendspin-artwork")
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	return &Downloader{
		cacheDir: cacheDir,
		client:   &http.Client{},
	}, nil
}

// Fetch returns the artwork bytes for a URL, downloading on cache miss.
func (d *Downloader) Fetch(url string) ([]byte, error) {
	if url == "" {
		return nil, nil
	}

	hash := sha256.Sum256([]byte(url))
	filename := fmt.Sprintf("%x%s", hash[:8], extension(url))
	cachePath := filepath.Join(d.cacheDir, filename)

	if data, err := os.ReadFile(cachePath); err == nil {
		return data, nil
	}

	log.Printf("Downloading artwork: %s", url)
	resp, err := d.client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to download artwork: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("artwork download failed: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArtworkBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read artwork: %w", err)
	}

	if err := os.WriteFile(cachePath, data, 0644); err != nil {
		log.Printf("Failed to cache artwork: %v", err)
	}

	return data, nil
}

// extension extracts a file extension from a URL, defaulting to JPEG
func extension(url string) string {
	url = strings.Split(url, "?")[0]

	ext := filepath.Ext(url)
	if ext == "" {
		ext = ".jpg"
	}
	return ext
}

// Cleanup removes the artwork cache.
func (d *Downloader) Cleanup() error {
	return os.RemoveAll(d.cacheDir)
}
