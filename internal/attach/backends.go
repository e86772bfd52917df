package attach

import (
	"context"

	"collectcore/internal/infra/attach/fs"
	"collectcore/internal/infra/attach/memory"
	"collectcore/internal/infra/attach/s3"
)

// NewFilesystem returns a filesystem-backed store rooted at dir.
func NewFilesystem(dir string) (Store, error) {
	return fs.New(dir)
}

// NewMemory returns an in-memory store for tests and ephemeral use.
func NewMemory() Store {
	return memory.New()
}

// OpenS3FromEnv constructs an S3-backed store from process environment.
func OpenS3FromEnv(ctx context.Context) (Store, error) {
	return s3.OpenFromEnv(ctx)
}

// NewMockS3ForTests returns an S3 store wired to an in-process fake transport.
func NewMockS3ForTests() Store {
	return s3.NewMockForTests()
}
