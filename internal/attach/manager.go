package attach

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RefScheme prefixes every attachment reference stored in a file column.
const RefScheme = "att://"

// IsReference reports whether v looks like an attachment reference.
func IsReference(v string) bool {
	return strings.HasPrefix(v, RefScheme) && len(v) > len(RefScheme)
}

// KeyFromReference strips the scheme off a reference.
func KeyFromReference(ref string) (string, error) {
	if !IsReference(ref) {
		return "", fmt.Errorf("invalid attachment reference %q", ref)
	}
	return strings.TrimPrefix(ref, RefScheme), nil
}

// Manager stores per-entry attachments and hands out references suitable for
// file column payload values. Keys are namespaced by entry and column so an
// entry's files can be listed and cleaned up together.
type Manager struct {
	store Store
}

// NewManager wraps a backend store.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// Store exposes the underlying backend.
func (m *Manager) Store() Store {
	return m.store
}

// Attach uploads a file for an entry's column and returns the reference to
// store in the payload. The key carries a fresh uuid so repeated uploads of
// the same filename never collide.
func (m *Manager) Attach(ctx context.Context, entryID, columnID, filename, contentType string, r io.Reader) (string, Info, error) {
	if entryID == "" || columnID == "" {
		return "", Info{}, errors.New("attachment requires entry and column ids")
	}
	name := path.Base(strings.TrimSpace(filename))
	if name == "" || name == "." || name == "/" {
		name = "upload"
	}
	key := fmt.Sprintf("entries/%s/%s/%s-%s", entryID, columnID, uuid.NewString(), name)
	info, err := m.store.Put(ctx, key, r, PutOptions{
		ContentType: contentType,
		Metadata: map[string]string{
			"entry_id":  entryID,
			"column_id": columnID,
			"filename":  name,
		},
	})
	if err != nil {
		return "", Info{}, err
	}
	return RefScheme + key, info, nil
}

// Open resolves a reference to its metadata and content.
func (m *Manager) Open(ctx context.Context, ref string) (Info, io.ReadCloser, error) {
	key, err := KeyFromReference(ref)
	if err != nil {
		return Info{}, nil, err
	}
	return m.store.Get(ctx, key)
}

// Stat resolves a reference to its metadata only.
func (m *Manager) Stat(ctx context.Context, ref string) (Info, error) {
	key, err := KeyFromReference(ref)
	if err != nil {
		return Info{}, err
	}
	return m.store.Head(ctx, key)
}

// Remove deletes the referenced attachment, reporting whether it existed.
func (m *Manager) Remove(ctx context.Context, ref string) (bool, error) {
	key, err := KeyFromReference(ref)
	if err != nil {
		return false, err
	}
	return m.store.Delete(ctx, key)
}

// ListForEntry returns every attachment stored for an entry.
func (m *Manager) ListForEntry(ctx context.Context, entryID string) ([]Info, error) {
	if entryID == "" {
		return nil, errors.New("entry id required")
	}
	return m.store.List(ctx, "entries/"+entryID+"/")
}

// DownloadURL returns a pre-signed URL for the reference, falling back to the
// backend's plain URL when pre-signing is unsupported.
func (m *Manager) DownloadURL(ctx context.Context, ref string, expiry time.Duration) (string, error) {
	key, err := KeyFromReference(ref)
	if err != nil {
		return "", err
	}
	url, err := m.store.PresignURL(ctx, key, SignedURLOptions{Method: "GET", Expiry: expiry})
	if err == nil {
		return url, nil
	}
	if !errors.Is(err, ErrUnsupported) {
		return "", err
	}
	info, err := m.store.Head(ctx, key)
	if err != nil {
		return "", err
	}
	if info.URL == "" {
		return "", ErrUnsupported
	}
	return info.URL, nil
}
