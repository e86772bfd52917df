package attach

import (
	"context"
	"fmt"
	"os"
)

// Open selects a Store implementation using environment variables.
//
//	COLLECTCORE_ATTACH_DRIVER: fs|s3|memory (default fs)
//	COLLECTCORE_ATTACH_FS_ROOT: directory root when driver=fs (default ./attachments)
//	(S3 specific variables documented in the s3 backend package)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("COLLECTCORE_ATTACH_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return NewFilesystem(os.Getenv("COLLECTCORE_ATTACH_FS_ROOT"))
	case DriverS3:
		return OpenS3FromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown attachment driver %s", driver)
	}
}
