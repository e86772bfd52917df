package s3

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"collectcore/internal/attach/core"
)

func TestMockRoundTrip(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()
	if store.Driver() != core.DriverS3 {
		t.Fatalf("expected s3 driver, got %s", store.Driver())
	}

	info, err := store.Put(ctx, "entries/e1/c1/report.pdf", bytes.NewReader([]byte("pdf bytes")), core.PutOptions{ContentType: "application/pdf"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 9 {
		t.Fatalf("unexpected size %d", info.Size)
	}
	if _, err := store.Put(ctx, "entries/e1/c1/report.pdf", bytes.NewReader(nil), core.PutOptions{}); err == nil {
		t.Fatal("duplicate put must fail")
	}

	got, rc, err := store.Get(ctx, "entries/e1/c1/report.pdf")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil || string(data) != "pdf bytes" {
		t.Fatalf("unexpected content %q (%v)", data, err)
	}
	if got.ContentType != "application/pdf" {
		t.Fatalf("unexpected info: %+v", got)
	}
}

func TestMockListAndDelete(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()
	for _, key := range []string{"entries/e1/c1/a.txt", "entries/e1/c2/b.txt", "entries/e2/c1/c.txt"} {
		if _, err := store.Put(ctx, key, bytes.NewReader([]byte("x")), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	infos, err := store.List(ctx, "entries/e1/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 objects, got %d", len(infos))
	}

	if ok, err := store.Delete(ctx, "entries/e1/c1/a.txt"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if _, err := store.Head(ctx, "entries/e1/c1/a.txt"); err == nil {
		t.Fatal("head after delete must fail")
	}
}

func TestPresignURL(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()
	if _, err := store.Put(ctx, "k.txt", bytes.NewReader([]byte("x")), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	url, err := store.PresignURL(ctx, "k.txt", core.SignedURLOptions{Method: "GET"})
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if !strings.Contains(url, "k.txt") || !strings.Contains(url, "X-Amz-Signature") {
		t.Fatalf("unexpected presigned url %s", url)
	}
	if _, err := store.PresignURL(ctx, "k.txt", core.SignedURLOptions{Method: "PUT"}); err == nil {
		t.Fatal("non-GET presign must be unsupported")
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatal("expected bucket error")
	}
}

func TestOpenFromEnvRequiresBucket(t *testing.T) {
	t.Setenv("COLLECTCORE_ATTACH_S3_BUCKET", "")
	if _, err := OpenFromEnv(context.Background()); err == nil {
		t.Fatal("expected bucket error")
	}
}

func TestDecodeAWSChunked(t *testing.T) {
	body, ok := decodeAWSChunked([]byte("9\r\npdf bytes\r\n0\r\n\r\n"))
	if !ok || string(body) != "pdf bytes" {
		t.Fatalf("unexpected decode result %q %v", body, ok)
	}
	if _, ok := decodeAWSChunked([]byte("plain")); ok {
		t.Fatal("plain payload must not decode")
	}
}
