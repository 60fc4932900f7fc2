package redis

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/becomeliminal/nim-memory/memory"
)

// Record hash fields.
const (
	fieldText      = "text"
	fieldMetadata  = "metadata"
	fieldEmbedding = "embedding"
	fieldTimestamp = "timestamp"

	fieldCreatedAt = "created_at"
)

// encodeRecord serializes a record into hash fields. metadata and embedding
// are JSON; an empty embedding is stored as an empty string so an overwrite
// always replaces every field.
func encodeRecord(text string, metadata map[string]any, embedding []float32, ts time.Time) (map[string]any, error) {
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", memory.ErrNotJSON, err)
	}
	embJSON := ""
	if len(embedding) > 0 {
		raw, err := json.Marshal(embedding)
		if err != nil {
			return nil, fmt.Errorf("marshal embedding: %w", err)
		}
		embJSON = string(raw)
	}
	return map[string]any{
		fieldText:      text,
		fieldMetadata:  string(metaJSON),
		fieldEmbedding: embJSON,
		fieldTimestamp: ts.UTC().Format(time.RFC3339Nano),
	}, nil
}

// decodeRecord rebuilds a record from the fields of its hash.
func decodeRecord(key, id string, fields map[string]string) (*memory.Record, error) {
	rec := &memory.Record{
		ID:   id,
		Text: fields[fieldText],
	}
	if raw := fields[fieldMetadata]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &rec.Metadata); err != nil {
			return nil, memory.NewDecodeError(key, fieldMetadata, err)
		}
	}
	if raw := fields[fieldEmbedding]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &rec.Embedding); err != nil {
			return nil, memory.NewDecodeError(key, fieldEmbedding, err)
		}
		if len(rec.Embedding) == 0 {
			rec.Embedding = nil
		}
	}
	if raw := fields[fieldTimestamp]; raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, memory.NewDecodeError(key, fieldTimestamp, err)
		}
		rec.Timestamp = ts
	}
	return rec, nil
}

// decodeCollectionInfo rebuilds collection info from its metadata hash.
func decodeCollectionInfo(key, name string, fields map[string]string) (*memory.CollectionInfo, error) {
	info := &memory.CollectionInfo{Name: name}
	if raw := fields[fieldCreatedAt]; raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, memory.NewDecodeError(key, fieldCreatedAt, err)
		}
		info.CreatedAt = ts
	}
	if raw := fields[fieldMetadata]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &info.Metadata); err != nil {
			return nil, memory.NewDecodeError(key, fieldMetadata, err)
		}
	}
	return info, nil
}
