package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"collectcore/internal/attach/core"
)

func TestPutGetHeadDelete(t *testing.T) {
	store := New()
	ctx := context.Background()
	if store.Driver() != core.DriverMemory {
		t.Fatalf("expected memory driver, got %s", store.Driver())
	}

	info, err := store.Put(ctx, "entries/e1/c1/report.pdf", bytes.NewReader([]byte("pdf bytes")), core.PutOptions{
		ContentType: "application/pdf",
		Metadata:    map[string]string{"entry_id": "e1"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 9 || info.ContentType != "application/pdf" {
		t.Fatalf("unexpected info: %+v", info)
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
	if got.Metadata["entry_id"] != "e1" {
		t.Fatalf("metadata lost: %+v", got)
	}

	if _, err := store.Head(ctx, "missing"); err == nil {
		t.Fatal("head of missing key must fail")
	}
	if ok, err := store.Delete(ctx, "entries/e1/c1/report.pdf"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, err := store.Delete(ctx, "entries/e1/c1/report.pdf"); err != nil || ok {
		t.Fatalf("second delete should report false, got %v %v", ok, err)
	}
}

func TestListFiltersByPrefix(t *testing.T) {
	store := New()
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
	if infos[0].Key > infos[1].Key {
		t.Fatal("list must be sorted by key")
	}
}

func TestPresignUnsupported(t *testing.T) {
	store := New()
	_, err := store.PresignURL(context.Background(), "k", core.SignedURLOptions{})
	if !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestPutReadError(t *testing.T) {
	store := New()
	if _, err := store.Put(context.Background(), "bad", failingReader{}, core.PutOptions{}); err == nil {
		t.Fatal("expected read error")
	}
}
