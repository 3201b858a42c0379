package localstore

import (
	"context"
	"errors"
	"time"

	"github.com/SeaWiser/shoes-sync/pkg/redis"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Backend is the durable side of the store. Implementations must tolerate
// concurrent calls for different domains.
type Backend interface {
	Load(ctx context.Context, domain Domain) ([]byte, bool, error)
	Save(ctx context.Context, domain Domain, value []byte) error
	Delete(ctx context.Context, domain Domain) error
}

// GormBackend persists domains through the shared gorm connection
// (sqlite on-device, postgres in hosted mode).
type GormBackend struct {
	db *gorm.DB
}

// NewGormBackend wraps an open gorm connection.
func NewGormBackend(db *gorm.DB) (*GormBackend, error) {
	if db == nil {
		return nil, errors.New("gorm connection required")
	}
	return &GormBackend{db: db}, nil
}

func (b *GormBackend) Load(ctx context.Context, domain Domain) ([]byte, bool, error) {
	var row DomainState
	err := b.db.WithContext(ctx).First(&row, "domain = ?", string(domain)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(row.Value), true, nil
}

func (b *GormBackend) Save(ctx context.Context, domain Domain, value []byte) error {
	row := DomainState{
		Domain:    string(domain),
		Value:     string(value),
		UpdatedAt: time.Now().UTC(),
	}
	return b.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "domain"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&row).Error
}

func (b *GormBackend) Delete(ctx context.Context, domain Domain) error {
	return b.db.WithContext(ctx).Delete(&DomainState{}, "domain = ?", string(domain)).Error
}

// RedisBackend persists domains in redis for multi-instance hosted
// deployments of the sync daemon.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend wraps a connected redis client.
func NewRedisBackend(client *redis.Client) (*RedisBackend, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	return &RedisBackend{client: client}, nil
}

func (b *RedisBackend) Load(ctx context.Context, domain Domain) ([]byte, bool, error) {
	val, err := b.client.Get(ctx, b.client.StateKey(string(domain)))
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(val), true, nil
}

func (b *RedisBackend) Save(ctx context.Context, domain Domain, value []byte) error {
	return b.client.Set(ctx, b.client.StateKey(string(domain)), string(value), 0)
}

func (b *RedisBackend) Delete(ctx context.Context, domain Domain) error {
	return b.client.Del(ctx, b.client.StateKey(string(domain)))
}
