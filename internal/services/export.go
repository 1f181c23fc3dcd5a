package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/deckofthoughts/apiserver/internal/storage"
	"github.com/deckofthoughts/apiserver/internal/store"
	"github.com/deckofthoughts/apiserver/types"
)

const exportContentType = "application/json"

// ObjectStore reads and writes objects in a bucket. Missing keys are
// reported as storage.ErrNotFound.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// ExportResult describes a stored deck snapshot.
type ExportResult struct {
	Key        string `json:"key"`
	ExportedAt int64  `json:"exportedAt"`
	Count      int    `json:"count"`
}

// ExportService snapshots a user's deck into object storage.
type ExportService struct {
	cards   CardRepository
	objects ObjectStore
	now     func() time.Time
}

func NewExportService(cards CardRepository, objects ObjectStore) *ExportService {
	return &ExportService{
		cards:   cards,
		objects: objects,
		now:     time.Now,
	}
}

// Export writes every card owned by caller as one JSON document and returns its key.
func (s *ExportService) Export(ctx context.Context, caller types.Identity) (ExportResult, error) {
	cards, err := s.cards.ListByOwner(ctx, caller.ID)
	if err != nil {
		return ExportResult{}, fmt.Errorf("list cards: %w", err)
	}

	exportedAt := s.now().UnixMilli()
	data, err := json.Marshal(types.CardExport{
		ExportedAt: exportedAt,
		Username:   caller.Username,
		Cards:      cards,
	})
	if err != nil {
		return ExportResult{}, fmt.Errorf("encode export: %w", err)
	}

	key := ExportKey(caller.ID, exportedAt)
	if err := s.objects.Put(ctx, key, bytes.NewReader(data), int64(len(data)), exportContentType); err != nil {
		return ExportResult{}, fmt.Errorf("store export: %w", err)
	}

	return ExportResult{Key: key, ExportedAt: exportedAt, Count: len(cards)}, nil
}

// Open streams the caller's snapshot taken at exportedAt. Keys are derived
// from the caller's id, so other users' snapshots are unreachable.
func (s *ExportService) Open(ctx context.Context, caller types.Identity, exportedAt int64) (io.ReadCloser, error) {
	rc, err := s.objects.Get(ctx, ExportKey(caller.ID, exportedAt))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("load export: %w", err)
	}
	return rc, nil
}

// Delete removes the caller's snapshot taken at exportedAt.
func (s *ExportService) Delete(ctx context.Context, caller types.Identity, exportedAt int64) error {
	// S3 and MinIO delete missing keys without error.
	rc, err := s.Open(ctx, caller, exportedAt)
	if err != nil {
		return err
	}
	_ = rc.Close()

	if err := s.objects.Delete(ctx, ExportKey(caller.ID, exportedAt)); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return store.ErrNotFound
		}
		return fmt.Errorf("delete export: %w", err)
	}
	return nil
}

// ExportKey is the object key of a snapshot taken at exportedAt (epoch ms).
func ExportKey(userID string, exportedAt int64) string {
	return fmt.Sprintf("exports/%s/%d.json", userID, exportedAt)
}
