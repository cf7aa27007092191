package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ConfigureEviction asks Redis to evict shortest-TTL keys first under
// memory pressure, making time-sensitive entries the preferred victims.
// Managed Redis deployments often forbid CONFIG SET; that is logged and
// tolerated.
func (s *RedisStore) ConfigureEviction(ctx context.Context) {
	err := s.client.ConfigSet(ctx, "maxmemory-policy", s.config.EvictionPolicy).Err()
	if err != nil {
		s.logger.Warn("Could not set eviction policy", map[string]interface{}{
			"policy": s.config.EvictionPolicy,
			"error":  err.Error(),
		})
		return
	}
	s.logger.Info("Redis eviction policy configured", map[string]interface{}{
		"policy": s.config.EvictionPolicy,
	})
}

// EnsureIndex creates the RediSearch index over cache entries if it
// does not already exist. Only the topic tag is filterable; the
// embedding field is a FLAT FLOAT32 cosine index of the configured
// dimensionality.
func (s *RedisStore) EnsureIndex(ctx context.Context) error {
	if _, err := s.client.FTInfo(ctx, s.config.IndexName).Result(); err == nil {
		s.logger.Info("Redis index already exists", map[string]interface{}{
			"index": s.config.IndexName,
		})
		return nil
	}

	s.logger.Info("Creating Redis index", map[string]interface{}{
		"index":      s.config.IndexName,
		"dimensions": s.config.Dimensions,
	})

	err := s.client.FTCreate(ctx, s.config.IndexName,
		&redis.FTCreateOptions{
			OnHash: true,
			Prefix: []interface{}{s.config.KeyPrefix},
		},
		&redis.FieldSchema{FieldName: "query", FieldType: redis.SearchFieldTypeText},
		&redis.FieldSchema{FieldName: "response", FieldType: redis.SearchFieldTypeText},
		&redis.FieldSchema{FieldName: "class", FieldType: redis.SearchFieldTypeText},
		&redis.FieldSchema{FieldName: "topic", FieldType: redis.SearchFieldTypeTag},
		&redis.FieldSchema{FieldName: "created_at", FieldType: redis.SearchFieldTypeNumeric},
		&redis.FieldSchema{
			FieldName: "embedding",
			FieldType: redis.SearchFieldTypeVector,
			VectorArgs: &redis.FTVectorArgs{
				FlatOptions: &redis.FTFlatOptions{
					Type:           "FLOAT32",
					Dim:            s.config.Dimensions,
					DistanceMetric: "COSINE",
				},
			},
		},
	).Err()
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", s.config.IndexName, err)
	}

	s.logger.Info("Redis index created", map[string]interface{}{
		"index": s.config.IndexName,
	})
	return nil
}
