// Package blob re-exports the document store abstraction and its drivers so
// callers depend on one import path.
package blob

import (
	"context"

	"assetcore/internal/blob/core"
	fsstore "assetcore/internal/infra/blob/fs"
	memorystore "assetcore/internal/infra/blob/memory"
	s3store "assetcore/internal/infra/blob/s3"
)

type (
	// Store is the document store interface.
	Store = core.Store
	// Info describes a stored document.
	Info = core.Info
	// PutOptions specifies optional Put parameters.
	PutOptions = core.PutOptions
	// SignedURLOptions holds pre-signed URL options.
	SignedURLOptions = core.SignedURLOptions
	// Driver identifies a backend implementation.
	Driver = core.Driver
	// S3Config holds explicit S3 construction parameters.
	S3Config = s3store.Config
)

const (
	// DriverFilesystem is the local filesystem driver.
	DriverFilesystem = core.DriverFilesystem
	// DriverS3 is the S3 / MinIO driver.
	DriverS3 = core.DriverS3
	// DriverMemory is the in-memory driver.
	DriverMemory = core.DriverMemory
)

// Sentinel errors shared by all drivers.
var (
	ErrUnsupported = core.ErrUnsupported
	ErrNotFound    = core.ErrNotFound
	ErrExists      = core.ErrExists
)

// NewFilesystem returns a filesystem document store rooted at root.
func NewFilesystem(root string) (Store, error) {
	return fsstore.New(root)
}

// NewMemory returns an in-memory document store.
func NewMemory() Store { return memorystore.New() }

// NewS3 returns an S3 document store from explicit configuration.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	return s3store.New(ctx, cfg)
}

// NewMockS3ForTests returns an S3 store wired to an in-memory transport.
func NewMockS3ForTests() Store { return s3store.NewMockForTests() }
