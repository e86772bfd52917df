package attach

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
)

func TestAttachAndResolve(t *testing.T) {
	mgr := NewManager(NewMemory())
	ctx := context.Background()

	ref, info, err := mgr.Attach(ctx, "entry-1", "col-1", "report.pdf", "application/pdf", bytes.NewReader([]byte("pdf bytes")))
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if !IsReference(ref) {
		t.Fatalf("expected attachment reference, got %q", ref)
	}
	if info.Metadata["entry_id"] != "entry-1" || info.Metadata["column_id"] != "col-1" {
		t.Fatalf("metadata missing: %+v", info)
	}

	got, rc, err := mgr.Open(ctx, ref)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	data, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil || string(data) != "pdf bytes" {
		t.Fatalf("unexpected content %q (%v)", data, err)
	}
	if got.ContentType != "application/pdf" {
		t.Fatalf("unexpected info: %+v", got)
	}

	if _, err := mgr.Stat(ctx, ref); err != nil {
		t.Fatalf("stat: %v", err)
	}
}

func TestAttachUniqueKeysPerUpload(t *testing.T) {
	mgr := NewManager(NewMemory())
	ctx := context.Background()

	refA, _, err := mgr.Attach(ctx, "entry-1", "col-1", "report.pdf", "", bytes.NewReader([]byte("v1")))
	if err != nil {
		t.Fatalf("first attach: %v", err)
	}
	refB, _, err := mgr.Attach(ctx, "entry-1", "col-1", "report.pdf", "", bytes.NewReader([]byte("v2")))
	if err != nil {
		t.Fatalf("second attach: %v", err)
	}
	if refA == refB {
		t.Fatal("same filename must yield distinct references")
	}
}

func TestListForEntry(t *testing.T) {
	mgr := NewManager(NewMemory())
	ctx := context.Background()

	if _, _, err := mgr.Attach(ctx, "entry-1", "col-1", "a.txt", "", strings.NewReader("a")); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if _, _, err := mgr.Attach(ctx, "entry-1", "col-2", "b.txt", "", strings.NewReader("b")); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if _, _, err := mgr.Attach(ctx, "entry-2", "col-1", "c.txt", "", strings.NewReader("c")); err != nil {
		t.Fatalf("attach: %v", err)
	}

	infos, err := mgr.ListForEntry(ctx, "entry-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 attachments, got %d", len(infos))
	}
}

func TestRemove(t *testing.T) {
	mgr := NewManager(NewMemory())
	ctx := context.Background()
	ref, _, err := mgr.Attach(ctx, "entry-1", "col-1", "a.txt", "", strings.NewReader("a"))
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	ok, err := mgr.Remove(ctx, ref)
	if err != nil || !ok {
		t.Fatalf("remove: %v %v", ok, err)
	}
	if _, err := mgr.Stat(ctx, ref); err == nil {
		t.Fatal("stat after remove must fail")
	}
}

func TestReferenceValidation(t *testing.T) {
	for _, ref := range []string{"", "att://", "http://x", "entries/e/c/f"} {
		if IsReference(ref) {
			t.Errorf("%q should not be a valid reference", ref)
		}
	}
	if _, err := KeyFromReference("bogus"); err == nil {
		t.Fatal("expected reference parse error")
	}
	key, err := KeyFromReference("att://entries/e/c/f.txt")
	if err != nil || key != "entries/e/c/f.txt" {
		t.Fatalf("unexpected key %q (%v)", key, err)
	}
}

func TestDownloadURLFallsBackWhenUnsigned(t *testing.T) {
	// The memory backend cannot presign and exposes no URL, so the manager
	// must surface ErrUnsupported rather than inventing a location.
	mgr := NewManager(NewMemory())
	ctx := context.Background()
	ref, _, err := mgr.Attach(ctx, "entry-1", "col-1", "a.txt", "", strings.NewReader("a"))
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if _, err := mgr.DownloadURL(ctx, ref, 0); err == nil {
		t.Fatal("expected unsupported download url")
	}

	fsStore, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("fs store: %v", err)
	}
	fsMgr := NewManager(fsStore)
	ref, _, err = fsMgr.Attach(ctx, "entry-1", "col-1", "a.txt", "", strings.NewReader("a"))
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	url, err := fsMgr.DownloadURL(ctx, ref, 0)
	if err != nil || url == "" {
		t.Fatalf("download url: %q %v", url, err)
	}
}

func TestOpenSelectsDriver(t *testing.T) {
	t.Setenv("COLLECTCORE_ATTACH_DRIVER", "memory")
	store, err := Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if store.Driver() != DriverMemory {
		t.Fatalf("expected memory driver, got %s", store.Driver())
	}

	t.Setenv("COLLECTCORE_ATTACH_DRIVER", "fs")
	t.Setenv("COLLECTCORE_ATTACH_FS_ROOT", t.TempDir())
	store, err = Open(context.Background())
	if err != nil {
		t.Fatalf("open fs: %v", err)
	}
	if store.Driver() != DriverFilesystem {
		t.Fatalf("expected fs driver, got %s", store.Driver())
	}

	t.Setenv("COLLECTCORE_ATTACH_DRIVER", "carrier-pigeon")
	if _, err := Open(context.Background()); err == nil {
		t.Fatal("unknown driver must fail")
	}
}
