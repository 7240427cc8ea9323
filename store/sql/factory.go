package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
)

type RepositoryFactory struct {
	db *bun.DB

	syncLogStore      *SyncLogStore
	webhookStatsStore *WebhookStatsStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

// BuildStores accepts a *bun.DB or anything exposing DB() *bun.DB, such as a
// go-persistence-bun client.
func (f *RepositoryFactory) BuildStores(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.syncLogStore != nil && f.webhookStatsStore != nil {
		return nil
	}
	return f.initStores()
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) SyncLogStore() *SyncLogStore {
	if f == nil {
		return nil
	}
	return f.syncLogStore
}

func (f *RepositoryFactory) WebhookStatsStore() *WebhookStatsStore {
	if f == nil {
		return nil
	}
	return f.webhookStatsStore
}

// CachedWebhookStatsReader wraps the stats store with a read-through cache.
func (f *RepositoryFactory) CachedWebhookStatsReader(cacheService repositorycache.CacheService) (*CachedWebhookStatsReader, error) {
	if f == nil || f.webhookStatsStore == nil {
		return nil, fmt.Errorf("sqlstore: repository factory stores are not built")
	}
	return NewCachedWebhookStatsReader(f.webhookStatsStore, cacheService)
}

func (f *RepositoryFactory) initStores() error {
	syncLogStore, err := NewSyncLogStore(f.db)
	if err != nil {
		return err
	}
	webhookStatsStore, err := NewWebhookStatsStore(f.db)
	if err != nil {
		return err
	}
	f.syncLogStore = syncLogStore
	f.webhookStatsStore = webhookStatsStore
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		if typed == nil {
			return nil, fmt.Errorf("sqlstore: persistence client is required")
		}
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
