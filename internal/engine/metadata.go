package engine

import (
	"context"
	"fmt"
	"io"

	"dashboard/internal/models"

	"github.com/goccy/go-json"
)

// MaxMetadataBytes bounds the meta.json download.
const MaxMetadataBytes = 4 << 20

// DecodeMetadata reads the meta.json indicator list.
func DecodeMetadata(r io.Reader) ([]models.Metadata, error) {
	content, err := io.ReadAll(io.LimitReader(r, MaxMetadataBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	if len(content) > MaxMetadataBytes {
		return nil, fmt.Errorf("metadata: %w", ErrTooLarge)
	}
	var entries []models.Metadata
	if err := json.Unmarshal(content, &entries); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if entries == nil {
		entries = []models.Metadata{}
	}
	return entries, nil
}

// FetchMetadata downloads and decodes the indicator list.
func FetchMetadata(ctx context.Context, src Source) ([]models.Metadata, error) {
	rc, err := src.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return DecodeMetadata(rc)
}
