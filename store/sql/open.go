package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/migrations"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

type openConfig struct {
	debug       bool
	pingTimeout time.Duration
	identifier  string
	migrate     bool
	maxOpen     int
}

func (c openConfig) clientConfig(driver, dsn string) persistenceConfig {
	return persistenceConfig{
		driver:      driver,
		server:      dsn,
		debug:       c.debug,
		pingTimeout: c.pingTimeout,
		identifier:  c.identifier,
	}
}

type OpenOption func(*openConfig)

func WithDebug(debug bool) OpenOption {
	return func(c *openConfig) {
		c.debug = debug
	}
}

func WithPingTimeout(timeout time.Duration) OpenOption {
	return func(c *openConfig) {
		if timeout > 0 {
			c.pingTimeout = timeout
		}
	}
}

func WithOtelIdentifier(identifier string) OpenOption {
	return func(c *openConfig) {
		if trimmed := strings.TrimSpace(identifier); trimmed != "" {
			c.identifier = trimmed
		}
	}
}

// WithoutMigrations skips registering and applying the embedded schema.
func WithoutMigrations() OpenOption {
	return func(c *openConfig) {
		c.migrate = false
	}
}

func WithMaxOpenConns(n int) OpenOption {
	return func(c *openConfig) {
		c.maxOpen = n
	}
}

// persistenceConfig satisfies the configuration contract of go-persistence-bun.
type persistenceConfig struct {
	driver      string
	server      string
	debug       bool
	pingTimeout time.Duration
	identifier  string
}

func (c persistenceConfig) GetDebug() bool { return c.debug }
func (c persistenceConfig) GetDriver() string { return c.driver }
func (c persistenceConfig) GetServer() string { return c.server }
func (c persistenceConfig) GetPingTimeout() time.Duration { return c.pingTimeout }
func (c persistenceConfig) GetOtelIdentifier() string { return c.identifier }

// OpenPostgres connects through lib/pq and applies the postgres schema.
func OpenPostgres(ctx context.Context, dsn string, opts ...OpenOption) (*persistence.Client, error) {
	return open(ctx, DriverPostgres, dsn, pgdialect.New(), opts...)
}

// OpenSQLite connects through go-sqlite3 and applies the sqlite schema.
// In-memory databases are limited to one connection so every query sees the
// same schema.
func OpenSQLite(ctx context.Context, dsn string, opts ...OpenOption) (*persistence.Client, error) {
	if strings.Contains(dsn, "mode=memory") || strings.Contains(dsn, ":memory:") {
		opts = append([]OpenOption{WithMaxOpenConns(1)}, opts...)
	}
	return open(ctx, DriverSQLite, dsn, sqlitedialect.New(), opts...)
}

func open(
	ctx context.Context,
	driver string,
	dsn string,
	dialect schema.Dialect,
	opts ...OpenOption,
) (*persistence.Client, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("sqlstore: %s dsn is required", driver)
	}
	dialectName, err := migrations.DialectForDriver(driver)
	if err != nil {
		return nil, err
	}
	cfg := openConfig{
		pingTimeout: 5 * time.Second,
		identifier:  "go-integrations",
		migrate:     true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", driver, err)
	}
	if cfg.maxOpen > 0 {
		sqlDB.SetMaxOpenConns(cfg.maxOpen)
	}

	client, err := persistence.New(cfg.clientConfig(driver, dsn), sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: new persistence client: %w", err)
	}
	if !cfg.migrate {
		return client, nil
	}

	_, err = migrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != dialectName {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, migrations.WithValidationTargets(dialectName))
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("sqlstore: migrate %s: %w", dialectName, err)
	}
	return client, nil
}
