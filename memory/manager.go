package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// SimpleManager is the SDK-provided layer between an agent and a Store.
// The Store never generates embeddings; SimpleManager does, through an
// optional Embedder.
//
// Features:
//   - Id generation for new memories
//   - Automatic embedding, degrading to text-only records when the
//     embedder is absent or fails
//   - Relevance recall with configured limit and threshold
//   - Prompt-ready formatting
type SimpleManager struct {
	store    Store
	embedder Embedder // Optional
	config   *Config
	logger   *Logger
}

// NewSimpleManager creates a new SimpleManager. embedder may be nil.
func NewSimpleManager(store Store, embedder Embedder, config *Config) *SimpleManager {
	if config == nil {
		config = DefaultConfig
	}
	logger := config.Logger
	if logger == nil {
		logger = NoopLogger()
	}
	return &SimpleManager{
		store:    store,
		embedder: embedder,
		config:   config,
		logger:   logger.WithComponent("manager"),
	}
}

// embed returns nil when no embedding can be produced.
func (m *SimpleManager) embed(ctx context.Context, text string) []float32 {
	if m.embedder == nil {
		return nil
	}
	embedding, err := m.embedder.Embed(ctx, text)
	if err != nil {
		m.logger.WarnContext(ctx, "embedding failed, using text only", "error", err)
		return nil
	}
	return embedding
}

// Remember stores text as a new memory and returns its id.
func (m *SimpleManager) Remember(ctx context.Context, collection, text string, metadata map[string]any) (string, error) {
	if !m.config.Enabled {
		return "", nil // Memory disabled
	}

	id := uuid.New().String()
	if !m.store.SaveInformation(ctx, collection, id, text, metadata, m.embed(ctx, text)) {
		return "", fmt.Errorf("remember %s in %q: %w", id, collection, ErrSaveFailed)
	}
	m.logger.DebugContext(ctx, "remembered", "collection", collection, "id", id)
	return id, nil
}

// RememberBatch stores many memories. Items without an id get one; items
// without an embedding are embedded concurrently, at most
// Config.EmbedConcurrency at a time. Results follow input order.
func (m *SimpleManager) RememberBatch(ctx context.Context, collection string, items []BatchItem) ([]BatchResult, error) {
	if !m.config.Enabled {
		return nil, nil // Memory disabled
	}

	prepared := make([]BatchItem, len(items))
	copy(prepared, items)

	g, gctx := errgroup.WithContext(ctx)
	if m.config.EmbedConcurrency > 0 {
		g.SetLimit(m.config.EmbedConcurrency)
	}
	for i := range prepared {
		if prepared[i].ID == "" {
			prepared[i].ID = uuid.New().String()
		}
		if len(prepared[i].Embedding) > 0 || m.embedder == nil {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			prepared[i].Embedding = m.embed(gctx, prepared[i].Text)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("embed batch: %w", err)
	}

	results := m.store.BatchSave(ctx, collection, prepared)
	m.logger.DebugContext(ctx, "remembered batch",
		"collection", collection,
		"total", len(results),
		"failed", FailedCount(results),
	)
	return results, nil
}

// Recall returns the memories most relevant to query.
func (m *SimpleManager) Recall(ctx context.Context, collection, query string) ([]ResultItem, error) {
	if !m.config.Enabled {
		return nil, nil // Memory disabled
	}

	results := m.store.GetRelevant(ctx, collection, query, m.config.Limit, m.config.MinRelevance, m.embed(ctx, query))
	m.logger.DebugContext(ctx, "recalled",
		"collection", collection,
		"query", truncate(query, 50),
		"results", len(results),
	)
	return results, nil
}

// Retrieve recalls memories for query and formats them for prompt injection.
// It returns "" when nothing relevant is found.
func (m *SimpleManager) Retrieve(ctx context.Context, collection, query string) (string, error) {
	results, err := m.Recall(ctx, collection, query)
	if err != nil {
		return "", err
	}
	return Format(results), nil
}

// Forget removes one memory.
func (m *SimpleManager) Forget(ctx context.Context, collection, id string) bool {
	if !m.config.Enabled {
		return false
	}
	return m.store.RemoveInformation(ctx, collection, id)
}

// Format renders results as a numbered block, best match first. The whole
// block stays near 2000 characters; each memory gets at least 100.
func Format(results []ResultItem) string {
	if len(results) == 0 {
		return ""
	}

	var parts []string
	parts = append(parts, "=== RELEVANT MEMORIES ===\n")

	maxLengthPerMemory := 2000 / len(results)
	if maxLengthPerMemory < 100 {
		maxLengthPerMemory = 100 // Minimum reasonable length
	}

	for i, r := range results {
		parts = append(parts, fmt.Sprintf("%d. [%.2f] %s\n", i+1, r.Relevance, truncate(r.Text, maxLengthPerMemory)))
	}

	return strings.Join(parts, "\n")
}

// truncate truncates a string to maxLen bytes, adding "..." if truncated.
// It never splits a UTF-8 sequence.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return "..."
	}
	cut := maxLen - 3
	for cut > 0 && !utf8RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func utf8RuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// Config holds SimpleManager configuration.
type Config struct {
	// Enabled toggles memory system on/off.
	// Default: false (opt-in).
	Enabled bool

	// MinRelevance is the minimum score for recall.
	// Cosine scores lie in [-1, 1] and text scores in [0, 1].
	// Default: 0.1
	MinRelevance float64

	// Limit caps how many memories Recall returns. Zero means no cap.
	// Default: 10
	Limit int

	// EmbedConcurrency bounds concurrent Embed calls in RememberBatch.
	// Zero means unbounded.
	// Default: 4
	EmbedConcurrency int

	// Logger receives manager logs. Nil discards them.
	Logger *Logger
}

// DefaultConfig returns sensible defaults.
var DefaultConfig = &Config{
	Enabled:          false, // Opt-in
	MinRelevance:     0.1,
	Limit:            10,
	EmbedConcurrency: 4,
}
