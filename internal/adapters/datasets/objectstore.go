package datasets

import (
	"bytes"
	"context"
	"errors"
	"io"

	"micdash/internal/blob"
)

// ErrArtifactNotFound is returned when a stored artifact is missing.
var ErrArtifactNotFound = errors.New("artifact not found")

// ObjectStore persists export artifacts.
type ObjectStore interface {
	// Put stores a new immutable object and fails when key exists.
	Put(ctx context.Context, key string, payload []byte, contentType string, metadata map[string]string) (ExportArtifact, error)
	// Get opens the object for streaming.
	Get(ctx context.Context, key string) (ExportArtifact, io.ReadCloser, error)
	// Delete removes the object; returns true if it existed.
	Delete(ctx context.Context, key string) (bool, error)
	// List returns artifacts whose keys start with prefix.
	List(ctx context.Context, prefix string) ([]ExportArtifact, error)
}

// BlobObjectStore adapts a blob.Store to ObjectStore.
type BlobObjectStore struct {
	Store blob.Store
}

// NewBlobObjectStore wraps store.
func NewBlobObjectStore(store blob.Store) *BlobObjectStore {
	return &BlobObjectStore{Store: store}
}

func (s *BlobObjectStore) Put(ctx context.Context, key string, payload []byte, contentType string, metadata map[string]string) (ExportArtifact, error) {
	info, err := s.Store.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{ContentType: contentType, Metadata: metadata})
	if err != nil {
		return ExportArtifact{}, err
	}
	return fromInfo(info), nil
}

func (s *BlobObjectStore) Get(ctx context.Context, key string) (ExportArtifact, io.ReadCloser, error) {
	info, rc, err := s.Store.Get(ctx, key)
	if errors.Is(err, blob.ErrNotFound) {
		return ExportArtifact{}, nil, errors.Join(ErrArtifactNotFound, err)
	}
	if err != nil {
		return ExportArtifact{}, nil, err
	}
	return fromInfo(info), rc, nil
}

func (s *BlobObjectStore) Delete(ctx context.Context, key string) (bool, error) {
	return s.Store.Delete(ctx, key)
}

func (s *BlobObjectStore) List(ctx context.Context, prefix string) ([]ExportArtifact, error) {
	infos, err := s.Store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]ExportArtifact, len(infos))
	for i, info := range infos {
		out[i] = fromInfo(info)
	}
	return out, nil
}

func fromInfo(info blob.Info) ExportArtifact {
	return ExportArtifact{
		Key:         info.Key,
		ContentType: info.ContentType,
		SizeBytes:   info.Size,
		ETag:        info.ETag,
		Metadata:    cloneStrings(info.Metadata),
		CreatedAt:   info.LastModified,
	}
}
