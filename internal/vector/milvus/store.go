package milvus

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/claimlens/backend/internal/evidence"
	"github.com/claimlens/backend/pkg/logger"
)

// Embedder turns text into a vector. Implemented by the LLM client.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingCache is an optional lookaside cache in front of the embedder.
type EmbeddingCache interface {
	GetEmbedding(ctx context.Context, text string) ([]float32, bool)
	SetEmbedding(ctx context.Context, text string, embedding []float32)
}

// Store is the evidence store backed by a Milvus collection. External search
// results are upserted alongside the ingested corpus so later verifications
// find them without another web round-trip.
type Store struct {
	client         client.Client
	embedder       Embedder
	cache          EmbeddingCache
	collectionName string
	vectorDim      int
	logger         *zap.Logger
}

// trustRankAbsent marks items with no known rank, since the column is not
// nullable.
const trustRankAbsent = int64(-1)

func NewStore(endpoint, apiKey string, embedder Embedder, cache EmbeddingCache, collectionName string, vectorDim int) (*Store, error) {
	c, err := client.NewClient(context.Background(), client.Config{
		Address: endpoint,
		APIKey:  apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus evidence store initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &Store{
		client:         c,
		embedder:       embedder,
		cache:          cache,
		collectionName: collectionName,
		vectorDim:      vectorDim,
		logger:         logger.GetLogger(),
	}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// EnsureCollection creates and loads the evidence collection if it does not
// exist yet.
func (s *Store) EnsureCollection(ctx context.Context) error {
	has, err := s.client.HasCollection(ctx, s.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if has {
		s.logger.Info("Collection already exists", zap.String("collection", s.collectionName))
		return nil
	}

	schema := &entity.Schema{
		CollectionName: s.collectionName,
		Description:    "News evidence embeddings",
		Fields: []*entity.Field{
			{
				Name:       "id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{"max_length": "80"},
			},
			{
				Name:       "embedding",
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": fmt.Sprintf("%d", s.vectorDim)},
			},
			{
				Name:       "text",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "8192"},
			},
			{
				Name:       "source_url",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "512"},
			},
			{
				Name:       "source_id",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "128"},
			},
			{
				Name:       "origin",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "16"},
			},
			{
				Name:     "published_at",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "trust_rank",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "retrieved_at",
				DataType: entity.FieldTypeInt64,
			},
		},
	}

	if err := s.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.L2, 1024)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	if err := s.client.CreateIndex(ctx, s.collectionName, "embedding", idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := s.client.LoadCollection(ctx, s.collectionName, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	s.logger.Info("Collection created and loaded", zap.String("collection", s.collectionName))

	return nil
}

func (s *Store) embed(ctx context.Context, text string) ([]float32, error) {
	if s.cache != nil {
		if embedding, ok := s.cache.GetEmbedding(ctx, text); ok {
			return embedding, nil
		}
	}

	embedding, err := s.embedder.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.SetEmbedding(ctx, text, embedding)
	}

	return embedding, nil
}

// Search embeds the query and returns the topK nearest items.
func (s *Store) Search(ctx context.Context, query string, topK int) ([]evidence.Hit, error) {
	queryEmbedding, err := s.embed(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: embedding failed: %v", evidence.ErrStoreUnavailable, err)
	}

	sp, _ := entity.NewIndexIvfFlatSearchParam(16)

	searchResult, err := s.client.Search(
		ctx,
		s.collectionName,
		[]string{},
		"",
		[]string{"id", "text", "source_url", "source_id", "origin", "published_at", "trust_rank", "retrieved_at"},
		[]entity.Vector{entity.FloatVector(queryEmbedding)},
		"embedding",
		entity.L2,
		topK,
		sp,
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", evidence.ErrStoreUnavailable, err)
	}

	hits := make([]evidence.Hit, 0)
	for _, sr := range searchResult {
		for i := 0; i < sr.ResultCount; i++ {
			item, err := itemFromColumns(sr.Fields, i)
			if err != nil {
				s.logger.Warn("Skipping malformed search row", zap.Error(err))
				continue
			}

			hits = append(hits, evidence.Hit{
				Item:  item,
				Score: similarityFromDistance(float64(sr.Scores[i])),
			})
		}
	}

	s.logger.Debug("Vector search completed",
		zap.Int("topK", topK),
		zap.Int("results", len(hits)),
	)

	return hits, nil
}

// Upsert stores an item unless one with the same ID already exists. Re-runs
// of the same external search are therefore no-ops. The exists check only
// saves an embedding round-trip; concurrent writers racing past it converge
// on one row because the write below upserts by primary key.
func (s *Store) Upsert(ctx context.Context, item evidence.Item) error {
	id := itemID(item)

	exists, err := s.exists(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: %v", evidence.ErrStoreUnavailable, err)
	}
	if exists {
		s.logger.Debug("Evidence already stored", zap.String("id", id))
		return nil
	}

	embedding, err := s.embed(ctx, item.Text)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: embedding failed: %v", evidence.ErrStoreUnavailable, err)
	}

	publishedAt := int64(0)
	if item.PublishedAt != nil {
		publishedAt = item.PublishedAt.Unix()
	}
	trustRank := trustRankAbsent
	if item.TrustRank != nil {
		trustRank = int64(*item.TrustRank)
	}
	retrievedAt := item.RetrievedAt
	if retrievedAt.IsZero() {
		retrievedAt = time.Now()
	}

	_, err = s.client.Upsert(
		ctx,
		s.collectionName,
		"",
		entity.NewColumnVarChar("id", []string{id}),
		entity.NewColumnFloatVector("embedding", s.vectorDim, [][]float32{embedding}),
		entity.NewColumnVarChar("text", []string{truncateForStorage(item.Text, 8192)}),
		entity.NewColumnVarChar("source_url", []string{item.SourceURL}),
		entity.NewColumnVarChar("source_id", []string{item.SourceID}),
		entity.NewColumnVarChar("origin", []string{string(item.Origin)}),
		entity.NewColumnInt64("published_at", []int64{publishedAt}),
		entity.NewColumnInt64("trust_rank", []int64{trustRank}),
		entity.NewColumnInt64("retrieved_at", []int64{retrievedAt.Unix()}),
	)
	if err != nil {
		return fmt.Errorf("%w: failed to upsert: %v", evidence.ErrStoreUnavailable, err)
	}

	if err := s.client.Flush(ctx, s.collectionName, false); err != nil {
		return fmt.Errorf("%w: failed to flush: %v", evidence.ErrStoreUnavailable, err)
	}

	s.logger.Info("Evidence stored", zap.String("id", id), zap.String("origin", string(item.Origin)))

	return nil
}

// itemID falls back to a content-derived id so every stored row keeps the
// stable-identity invariant even when the caller left ID unset.
func itemID(item evidence.Item) string {
	if item.ID != "" {
		return item.ID
	}
	return evidence.TextID(item.Text)
}

func (s *Store) exists(ctx context.Context, id string) (bool, error) {
	result, err := s.client.Query(
		ctx,
		s.collectionName,
		[]string{},
		fmt.Sprintf(`id == "%s"`, id),
		[]string{"id"},
	)
	if err != nil {
		return false, err
	}

	for _, col := range result {
		if col.Name() == "id" {
			return col.Len() > 0, nil
		}
	}

	return false, nil
}

func itemFromColumns(fields client.ResultSet, i int) (evidence.Item, error) {
	getString := func(name string) (string, error) {
		col := fields.GetColumn(name)
		if col == nil {
			return "", fmt.Errorf("missing column %q", name)
		}
		v, err := col.Get(i)
		if err != nil {
			return "", err
		}
		str, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("column %q has type %T", name, v)
		}
		return str, nil
	}
	getInt64 := func(name string) (int64, error) {
		col := fields.GetColumn(name)
		if col == nil {
			return 0, fmt.Errorf("missing column %q", name)
		}
		v, err := col.Get(i)
		if err != nil {
			return 0, err
		}
		n, ok := v.(int64)
		if !ok {
			return 0, fmt.Errorf("column %q has type %T", name, v)
		}
		return n, nil
	}

	id, err := getString("id")
	if err != nil {
		return evidence.Item{}, err
	}
	text, err := getString("text")
	if err != nil {
		return evidence.Item{}, err
	}
	sourceURL, err := getString("source_url")
	if err != nil {
		return evidence.Item{}, err
	}
	sourceID, err := getString("source_id")
	if err != nil {
		return evidence.Item{}, err
	}
	origin, err := getString("origin")
	if err != nil {
		return evidence.Item{}, err
	}
	publishedAt, err := getInt64("published_at")
	if err != nil {
		return evidence.Item{}, err
	}
	trustRank, err := getInt64("trust_rank")
	if err != nil {
		return evidence.Item{}, err
	}
	retrievedAt, err := getInt64("retrieved_at")
	if err != nil {
		return evidence.Item{}, err
	}

	item := evidence.Item{
		ID:          id,
		Text:        text,
		SourceURL:   sourceURL,
		SourceID:    sourceID,
		Origin:      evidence.Origin(origin),
		RetrievedAt: time.Unix(retrievedAt, 0).UTC(),
	}
	if publishedAt > 0 {
		t := time.Unix(publishedAt, 0).UTC()
		item.PublishedAt = &t
	}
	if trustRank != trustRankAbsent {
		r := int(trustRank)
		item.TrustRank = &r
	}

	return item, nil
}

// similarityFromDistance maps an L2 distance over normalized embeddings into
// a [0,1] similarity score.
func similarityFromDistance(distance float64) float64 {
	similarity := 1.0 - distance/2.0
	if similarity < 0 {
		return 0
	}
	if similarity > 1 {
		return 1
	}
	return similarity
}

func truncateForStorage(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
