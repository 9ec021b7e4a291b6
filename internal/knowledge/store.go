// Package knowledge provides the embedded document corpus backing the
// local retrieval agent.
//
// Documents live in a chromem-go persistent collection. chromem is an
// embeddable vector database in pure Go, so no external database
// service is needed.
package knowledge

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"path/filepath"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/kestrelworks/queryd/internal/agent"
	"github.com/kestrelworks/queryd/internal/logging"
)

// embeddingDim is the dimension of the lexical hash embedding.
const embeddingDim = 128

// Config holds knowledge store configuration.
type Config struct {
	// Path is the directory for persistent storage.
	Path string
	// Collection is the collection name.
	Collection string
	// Compress enables gzip compression for stored data.
	Compress bool
}

// Document is one corpus entry.
type Document struct {
	ID      string
	Title   string
	Content string
}

// Store is a chromem-backed document corpus. It satisfies
// agent.CorpusSearcher.
type Store struct {
	db         *chromem.DB
	collection *chromem.Collection
	logger     *logging.Logger
}

// NewStore opens (or creates) the persistent corpus at cfg.Path.
func NewStore(cfg Config, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.Collection == "" {
		cfg.Collection = "queryd_default"
	}

	path, err := expandPath(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", path, err)
	}

	db, err := chromem.NewPersistentDB(path, cfg.Compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, lexicalEmbedding)
	if err != nil {
		return nil, fmt.Errorf("creating collection %s: %w", cfg.Collection, err)
	}

	return &Store{
		db:         db,
		collection: collection,
		logger:     logger.Named("knowledge"),
	}, nil
}

// Seed adds documents to the corpus, overwriting entries with the same ID.
func (s *Store) Seed(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	entries := make([]chromem.Document, 0, len(docs))
	for _, d := range docs {
		if d.ID == "" || d.Content == "" {
			return fmt.Errorf("document id and content are required")
		}
		entries = append(entries, chromem.Document{
			ID:       d.ID,
			Content:  d.Content,
			Metadata: map[string]string{"title": d.Title},
		})
	}
	if err := s.collection.AddDocuments(ctx, entries, 1); err != nil {
		return fmt.Errorf("adding documents: %w", err)
	}
	s.logger.Debug(ctx, "corpus seeded", zap.Int("documents", len(docs)))
	return nil
}

// Count returns the number of documents in the corpus.
func (s *Store) Count() int {
	return s.collection.Count()
}

// Search returns up to limit documents ranked by similarity to the
// query. Satisfies agent.CorpusSearcher.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]agent.CorpusHit, error) {
	if limit <= 0 {
		limit = 5
	}
	// chromem rejects nResults beyond the collection size.
	if n := s.collection.Count(); n < limit {
		limit = n
	}
	if limit == 0 {
		return nil, nil
	}

	results, err := s.collection.Query(ctx, query, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying corpus: %w", err)
	}

	hits := make([]agent.CorpusHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, agent.CorpusHit{
			ID:      r.ID,
			Title:   r.Metadata["title"],
			Content: r.Content,
			Score:   float64(r.Similarity),
		})
	}
	return hits, nil
}

// expandPath resolves a leading ~ to the user's home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}

// lexicalEmbedding maps text to a normalized bag-of-tokens hash vector.
// It keeps the corpus self-contained: no model download or embedding
// service is required, and similar texts still land near each other.
func lexicalEmbedding(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, embeddingDim)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,;:!?\"'()")
		if len(tok) < 3 {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[h.Sum32()%embeddingDim]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		// chromem requires non-zero vectors; use a constant direction
		// for token-free text.
		vec[0] = 1
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}
