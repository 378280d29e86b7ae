// Package localfs stores recorded audio on the local filesystem and issues
// HMAC-signed, time-limited access URLs.
package localfs

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Store struct {
	basePath string
	baseURL  string
	secret   []byte
}

func New(basePath, baseURL string, secret []byte) (*Store, error) {
	if basePath == "" {
		basePath = "./data/audio"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	if len(secret) == 0 {
		return nil, fmt.Errorf("blob signing secret is required")
	}
	return &Store{
		basePath: basePath,
		baseURL:  strings.TrimRight(baseURL, "/"),
		secret:   secret,
	}, nil
}

// Put streams audio bytes to disk and returns an opaque handle. The write
// goes through a temp file and rename so a crash never leaves a handle
// pointing at partial data.
func (s *Store) Put(_ context.Context, data io.Reader) (string, error) {
	handle := uuid.NewString()
	final := filepath.Join(s.basePath, handle)

	tmp, err := os.CreateTemp(s.basePath, handle+".part-*")
	if err != nil {
		return "", fmt.Errorf("create temp blob: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", fmt.Errorf("commit blob: %w", err)
	}
	return handle, nil
}

// Sign issues a time-limited URL for a stored handle.
func (s *Store) Sign(handle string, ttl time.Duration) (string, error) {
	if handle == "" {
		return "", fmt.Errorf("empty blob handle")
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	expires := time.Now().Add(ttl).Unix()
	sig := s.signature(handle, expires)

	query := url.Values{}
	query.Set("expires", strconv.FormatInt(expires, 10))
	query.Set("sig", sig)
	return fmt.Sprintf("%s/audio/%s?%s", s.baseURL, url.PathEscape(handle), query.Encode()), nil
}

// Verify checks a signature produced by Sign and that it has not expired.
func (s *Store) Verify(handle string, expires int64, sig string) bool {
	if time.Now().Unix() > expires {
		return false
	}
	expected := s.signature(handle, expires)
	return hmac.Equal([]byte(expected), []byte(sig))
}

// Open reads a stored blob back, for serving signed downloads.
func (s *Store) Open(_ context.Context, handle string) (io.ReadCloser, error) {
	if strings.ContainsAny(handle, "/\\") {
		return nil, fmt.Errorf("invalid blob handle")
	}
	f, err := os.Open(filepath.Join(s.basePath, handle))
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return f, nil
}

func (s *Store) signature(handle string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s:%d", handle, expires)
	return hex.EncodeToString(mac.Sum(nil))
}
