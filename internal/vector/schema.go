package vector

import (
	"context"

	"github.com/weaviate/weaviate/entities/models"
)

const ClassName = "DocumentChunk"

// SchemaClient defines the interface for Weaviate schema operations
type SchemaClient interface {
	ClassExists(ctx context.Context, className string) (bool, error)
	CreateClass(ctx context.Context, class *models.Class) error
	GetClass(ctx context.Context, className string) (*models.Class, error)
	AddProperty(ctx context.Context, className string, property *models.Property) error
}

func chunkProperties() []*models.Property {
	return []*models.Property{
		{
			Name:     "content",
			DataType: []string{"text"},
		},
		{
			Name:     "docHash",
			DataType: []string{"string"}, // exact match filter
		},
		{
			Name:     "chunkIndex",
			DataType: []string{"int"},
		},
		{
			Name:     "chunkTotal",
			DataType: []string{"int"}, // chunks in the whole document
		},
	}
}

// EnsureSchema creates the chunk class with cosine distance, or adds any
// properties an older class is missing.
func EnsureSchema(ctx context.Context, client SchemaClient) error {
	exists, err := client.ClassExists(ctx, ClassName)
	if err != nil {
		return err
	}

	properties := chunkProperties()

	if !exists {
		class := &models.Class{
			Class:             ClassName,
			Description:       "A retrieval chunk of a submitted document",
			Vectorizer:        "none",
			VectorIndexConfig: map[string]interface{}{"distance": "cosine"},
			Properties:        properties,
		}
		return client.CreateClass(ctx, class)
	}

	class, err := client.GetClass(ctx, ClassName)
	if err != nil {
		return err
	}

	existingProps := make(map[string]bool)
	for _, p := range class.Properties {
		existingProps[p.Name] = true
	}

	for _, p := range properties {
		if !existingProps[p.Name] {
			if err := client.AddProperty(ctx, ClassName, p); err != nil {
				return err
			}
		}
	}

	return nil
}
