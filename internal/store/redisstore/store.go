package redisstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/llmstream/openrouter-bot/internal/chat"
)

const (
	modelCatalogKey = "models:catalog"
	modelCatalogTTL = 10 * time.Minute
)

// Store caches the model catalog so listing models does not hit the
// database on every request.
type Store struct {
	rdb *redis.Client
}

func New(addr, password string, db int) *Store {
	return &Store{rdb: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

// GetModelCatalog returns redis.Nil via the error when the cache is
// cold.
func (s *Store) GetModelCatalog(ctx context.Context) ([]chat.Model, error) {
	raw, err := s.rdb.Get(ctx, modelCatalogKey).Bytes()
	if err != nil {
		return nil, err
	}
	var models []chat.Model
	if err := json.Unmarshal(raw, &models); err != nil {
		return nil, err
	}
	return models, nil
}

func (s *Store) SetModelCatalog(ctx context.Context, models []chat.Model) error {
	raw, err := json.Marshal(models)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, modelCatalogKey, raw, modelCatalogTTL).Err()
}

func (s *Store) InvalidateModelCatalog(ctx context.Context) error {
	return s.rdb.Del(ctx, modelCatalogKey).Err()
}
