package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	blobcore "assetcore/internal/blob/core"
	"assetcore/pkg/domain"
)

// WithDocumentStore installs the blob store backing asset document
// attachments. Without it the document operations report invalid state.
func WithDocumentStore(store blobcore.Store) ServiceOption {
	return func(s *Service) {
		s.documents = store
	}
}

func documentKey(assetID, filename string) string {
	return fmt.Sprintf("assets/%s/%s", assetID, filename)
}

func validFilename(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	return !strings.ContainsAny(name, "/\\") && name != "." && name != ".."
}

// AttachDocument stores a document (invoice scan, warranty certificate,
// handover form) against an asset. Filenames are unique per asset.
func (s *Service) AttachDocument(ctx context.Context, assetID, filename, contentType string, r io.Reader) (blobcore.Info, error) {
	var info blobcore.Info
	err := s.observe(ctx, "attach_document", func(ctx context.Context) (string, error) {
		if s.documents == nil {
			return assetID, domain.InvalidStateError(EntityAsset, assetID, "no document store configured")
		}
		if !validFilename(filename) {
			return assetID, domain.InvalidInputError(fmt.Sprintf("invalid document filename %q", filename))
		}
		if _, ok := s.store.GetAsset(assetID); !ok {
			return assetID, domain.NotFoundError(EntityAsset, assetID)
		}
		var err error
		info, err = s.documents.Put(ctx, documentKey(assetID, filename), r, blobcore.PutOptions{
			ContentType: contentType,
			Metadata:    map[string]string{"asset_id": assetID},
		})
		if errors.Is(err, blobcore.ErrExists) {
			return assetID, domain.AlreadyExistsError(EntityAsset, assetID, fmt.Sprintf("document %q already attached", filename))
		}
		return assetID, err
	})
	return info, err
}

// GetDocument opens an attached document for reading. The caller closes the
// returned reader.
func (s *Service) GetDocument(ctx context.Context, assetID, filename string) (blobcore.Info, io.ReadCloser, error) {
	if s.documents == nil {
		return blobcore.Info{}, nil, domain.InvalidStateError(EntityAsset, assetID, "no document store configured")
	}
	if !validFilename(filename) {
		return blobcore.Info{}, nil, domain.InvalidInputError(fmt.Sprintf("invalid document filename %q", filename))
	}
	if _, ok := s.store.GetAsset(assetID); !ok {
		return blobcore.Info{}, nil, domain.NotFoundError(EntityAsset, assetID)
	}
	info, rc, err := s.documents.Get(ctx, documentKey(assetID, filename))
	if errors.Is(err, blobcore.ErrNotFound) {
		return blobcore.Info{}, nil, domain.NotFoundError(EntityAsset, assetID)
	}
	return info, rc, err
}

// ListDocuments enumerates the documents attached to an asset.
func (s *Service) ListDocuments(ctx context.Context, assetID string) ([]blobcore.Info, error) {
	if s.documents == nil {
		return nil, domain.InvalidStateError(EntityAsset, assetID, "no document store configured")
	}
	if _, ok := s.store.GetAsset(assetID); !ok {
		return nil, domain.NotFoundError(EntityAsset, assetID)
	}
	return s.documents.List(ctx, documentKey(assetID, ""))
}
