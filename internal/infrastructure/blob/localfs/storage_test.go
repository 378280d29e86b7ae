package localfs

import (
	"context"
	"io"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir(), "http://localhost:8080", []byte("test-secret"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return store
}

func TestPutOpenRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	handle, err := store.Put(ctx, strings.NewReader("audio payload"))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if handle == "" {
		t.Fatalf("empty handle")
	}

	rc, err := store.Open(ctx, handle)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read blob: %v", err)
	}
	if string(raw) != "audio payload" {
		t.Fatalf("round trip = %q", raw)
	}
}

func TestSignProducesVerifiableURL(t *testing.T) {
	store := newTestStore(t)

	signed, err := store.Sign("handle-1", time.Minute)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	parsed, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("parse signed url: %v", err)
	}
	expires, err := strconv.ParseInt(parsed.Query().Get("expires"), 10, 64)
	if err != nil {
		t.Fatalf("parse expires: %v", err)
	}
	sig := parsed.Query().Get("sig")

	if !store.Verify("handle-1", expires, sig) {
		t.Fatalf("signature did not verify")
	}
	if store.Verify("other-handle", expires, sig) {
		t.Fatalf("signature verified for a different handle")
	}
	if store.Verify("handle-1", expires+1, sig) {
		t.Fatalf("signature verified with altered expiry")
	}
}

func TestVerifyRejectsExpiredSignature(t *testing.T) {
	store := newTestStore(t)
	expires := time.Now().Add(-time.Minute).Unix()
	sig := store.signature("handle-1", expires)
	if store.Verify("handle-1", expires, sig) {
		t.Fatalf("expired signature verified")
	}
}

func TestOpenRejectsPathTraversal(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Open(context.Background(), "../etc/passwd"); err == nil {
		t.Fatalf("expected path traversal rejection")
	}
}

func TestNewRequiresSecret(t *testing.T) {
	if _, err := New(t.TempDir(), "http://localhost", nil); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}
