package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"oneflow/pkg/cache"
)

var ErrNotFound = errors.New("identity not found")

// Store is the user-lookup capability the auth core consumes. The core never
// mutates identities except through Create at registration time.
type Store interface {
	FindByEmail(ctx context.Context, email string) (*Identity, error)
	FindByID(ctx context.Context, id string) (*Identity, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, identity *Identity) error
	List(ctx context.Context) ([]Identity, error)
}

type gormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) FindByEmail(ctx context.Context, email string) (*Identity, error) {
	var id Identity
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &id, nil
}

func (s *gormStore) FindByID(ctx context.Context, id string) (*Identity, error) {
	var rec Identity
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (s *gormStore) EmailExists(ctx context.Context, email string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Identity{}).Where("email = ?", email).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *gormStore) Create(ctx context.Context, identity *Identity) error {
	return s.db.WithContext(ctx).Create(identity).Error
}

func (s *gormStore) List(ctx context.Context) ([]Identity, error) {
	var recs []Identity
	if err := s.db.WithContext(ctx).Order("created_at").Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// cachedStore layers a short-TTL redis cache over FindByID. Only read paths
// that can tolerate a briefly stale record should use it; the refresh flow
// goes to the underlying store directly so deactivations take effect
// immediately.
type cachedStore struct {
	Store
	cache *cache.Cache
	ttl   time.Duration
}

func NewCachedStore(inner Store, c *cache.Cache, ttl time.Duration) Store {
	return &cachedStore{Store: inner, cache: c, ttl: ttl}
}

func cacheKey(id string) string {
	return fmt.Sprintf("oneflow:identity:%s", id)
}

func (s *cachedStore) FindByID(ctx context.Context, id string) (*Identity, error) {
	var rec Identity
	hit, err := s.cache.GetJSON(ctx, cacheKey(id), &rec)
	if err == nil && hit {
		return &rec, nil
	}

	fresh, err := s.Store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	// Best effort; a cache write failure never fails the lookup.
	_ = s.cache.SetJSON(ctx, cacheKey(id), fresh, s.ttl)
	return fresh, nil
}
