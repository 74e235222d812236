package events

import (
	"context"
	"fmt"
)

type DocumentIndexer interface {
	IndexDocument(ctx context.Context, index, id string, document interface{}) error
}

type ElasticsearchRecorder struct {
	indexer DocumentIndexer
	index   string
}

func NewElasticsearchRecorder(indexer DocumentIndexer, index string) *ElasticsearchRecorder {
	return &ElasticsearchRecorder{indexer: indexer, index: index}
}

// Record indexes the event under its EventID so retries overwrite rather
// than duplicate.
func (r *ElasticsearchRecorder) Record(ctx context.Context, event SecurityEvent) error {
	if err := r.indexer.IndexDocument(ctx, r.index, event.EventID, event); err != nil {
		return fmt.Errorf("elasticsearch: record %s: %w", event.EventType, err)
	}
	return nil
}
