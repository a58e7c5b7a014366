package blob

import (
	"context"
	"fmt"
	"os"

	s3store "assetcore/internal/infra/blob/s3"
)

// Open selects a document store implementation using environment variables.
//
//	ASSETCORE_DOCS_DRIVER: fs|s3|memory (default fs)
//	ASSETCORE_DOCS_FS_ROOT: directory root when driver=fs (default ./documents)
//	(S3 specific variables documented in the s3 driver)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("ASSETCORE_DOCS_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return NewFilesystem(os.Getenv("ASSETCORE_DOCS_FS_ROOT"))
	case DriverS3:
		return s3store.OpenFromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown document store driver %s", driver)
	}
}
