package weaviate

import (
	"context"
	"fmt"
	"sort"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"hackrx/backend/internal/index"
	"hackrx/backend/internal/vector"
)

const batchSize = 100

// Store keeps document indexes as DocumentChunk objects tagged with docHash.
type Store struct {
	client *weaviate.Client
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	return vector.EnsureSchema(ctx, vector.NewWeaviateClientAdapter(s.client))
}

func byHash(docHash string) *filters.WhereBuilder {
	return filters.Where().
		WithPath([]string{"docHash"}).
		WithOperator(filters.Equal).
		WithValueString(docHash)
}

// Exists reports whether every chunk of docHash has been written. A build
// still inserting batches is not an index yet.
func (s *Store) Exists(ctx context.Context, docHash string) (bool, error) {
	count, total, err := s.chunkState(ctx, docHash)
	if err != nil {
		return false, err
	}
	return count > 0 && count >= total, nil
}

// Save replaces any chunks stored for docHash with entries.
func (s *Store) Save(ctx context.Context, docHash string, entries []index.Entry) error {
	if err := s.Delete(ctx, docHash); err != nil {
		return fmt.Errorf("clear previous chunks: %w", err)
	}

	for start := 0; start < len(entries); start += batchSize {
		end := min(start+batchSize, len(entries))

		objects := make([]*models.Object, 0, end-start)
		for _, e := range entries[start:end] {
			objects = append(objects, &models.Object{
				Class: vector.ClassName,
				Properties: map[string]interface{}{
					"content":    e.Content,
					"docHash":    docHash,
					"chunkIndex": e.Index,
					"chunkTotal": len(entries),
				},
				Vector: e.Vector,
			})
		}

		resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
		if err != nil {
			return fmt.Errorf("batch insert: %w", err)
		}
		for _, r := range resp {
			if r.Result != nil && r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
				return fmt.Errorf("batch insert: %s", r.Result.Errors.Error[0].Message)
			}
		}
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, docHash string) error {
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(vector.ClassName).
		WithOutput("minimal").
		WithWhere(byHash(docHash)).
		Do(ctx)
	return err
}

// Search returns the k nearest chunks of docHash. Weaviate reports cosine
// distance, so the score is 1 - distance.
func (s *Store) Search(ctx context.Context, docHash string, vec []float32, k int) ([]index.Result, error) {
	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vec)

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "chunkIndex"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
	}

	res, err := s.client.GraphQL().Get().
		WithClassName(vector.ClassName).
		WithNearVector(nearVector).
		WithWhere(byHash(docHash)).
		WithLimit(k).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors[0].Message)
	}

	var results []index.Result
	if data, ok := res.Data["Get"].(map[string]interface{}); ok {
		if chunks, ok := data[vector.ClassName].([]interface{}); ok {
			for _, c := range chunks {
				props, ok := c.(map[string]interface{})
				if !ok {
					continue
				}

				result := index.Result{}
				if content, ok := props["content"].(string); ok {
					result.Content = content
				}
				if idx, ok := props["chunkIndex"].(float64); ok {
					result.Index = int(idx)
				}
				if additional, ok := props["_additional"].(map[string]interface{}); ok {
					if d, ok := additional["distance"].(float64); ok {
						result.Score = float32(1 - d)
					}
				}
				results = append(results, result)
			}
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Index < results[j].Index
	})
	return results, nil
}

// CountChunks returns the number of chunks stored for docHash.
func (s *Store) CountChunks(ctx context.Context, docHash string) (int, error) {
	count, _, err := s.chunkState(ctx, docHash)
	return count, err
}

// chunkState returns how many chunks of docHash are stored and how many the
// document has in total.
func (s *Store) chunkState(ctx context.Context, docHash string) (count, total int, err error) {
	res, err := s.client.GraphQL().Aggregate().
		WithClassName(vector.ClassName).
		WithWhere(byHash(docHash)).
		WithFields(
			graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}},
			graphql.Field{Name: "chunkTotal", Fields: []graphql.Field{{Name: "maximum"}}},
		).
		Do(ctx)
	if err != nil {
		return 0, 0, err
	}
	if len(res.Errors) > 0 {
		return 0, 0, fmt.Errorf("graphql error: %v", res.Errors[0].Message)
	}

	agg, ok := res.Data["Aggregate"].(map[string]interface{})
	if !ok {
		return 0, 0, nil
	}
	groups, ok := agg[vector.ClassName].([]interface{})
	if !ok || len(groups) == 0 {
		return 0, 0, nil
	}
	g, ok := groups[0].(map[string]interface{})
	if !ok {
		return 0, 0, nil
	}
	if meta, ok := g["meta"].(map[string]interface{}); ok {
		if c, ok := meta["count"].(float64); ok {
			count = int(c)
		}
	}
	if ct, ok := g["chunkTotal"].(map[string]interface{}); ok {
		if m, ok := ct["maximum"].(float64); ok {
			total = int(m)
		}
	}
	return count, total, nil
}

// Count returns the number of distinct documents with stored chunks.
func (s *Store) Count(ctx context.Context) (int, error) {
	res, err := s.client.GraphQL().Aggregate().
		WithClassName(vector.ClassName).
		WithGroupBy("docHash").
		WithFields(graphql.Field{Name: "groupedBy", Fields: []graphql.Field{{Name: "value"}}}).
		Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("graphql error: %v", res.Errors[0].Message)
	}

	if agg, ok := res.Data["Aggregate"].(map[string]interface{}); ok {
		if groups, ok := agg[vector.ClassName].([]interface{}); ok {
			return len(groups), nil
		}
	}
	return 0, nil
}
