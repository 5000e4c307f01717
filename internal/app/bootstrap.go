package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	wstore "hackrx/backend/internal/adapter/weaviate"
	"hackrx/backend/internal/config"
	"hackrx/backend/internal/vector"
)

// Dependencies holds the optional infrastructure the service was configured
// with. Unconfigured members stay nil.
type Dependencies struct {
	DB          *sql.DB
	Weaviate    *weaviate.Client
	NSQProducer *nsq.Producer
}

func (d *Dependencies) Close() {
	if d.NSQProducer != nil {
		d.NSQProducer.Stop()
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			slog.Warn("failed to close db", "error", err)
		}
	}
}

type SchemaEnsurer interface {
	EnsureSchema(ctx context.Context) error
}

// Bootstrap connects to every backing service cfg enables, retrying each
// until it answers.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	deps := &Dependencies{}
	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second

	if cfg.DBHost != "" {
		db, err := openDB(ctx, cfg, retryDelay)
		if err != nil {
			deps.Close()
			return nil, err
		}
		deps.DB = db
	}

	if cfg.VectorBackend == config.BackendWeaviate {
		client, err := weaviate.NewClient(weaviate.Config{Host: cfg.WeaviateHost, Scheme: cfg.WeaviateScheme})
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("weaviate client error: %w", err)
		}

		adapter := vector.NewWeaviateClientAdapter(client)
		if err := Retry(ctx, "weaviate ready", cfg.BootstrapRetryAttempts, retryDelay, adapter.Ready); err != nil {
			deps.Close()
			return nil, fmt.Errorf("weaviate not ready: %w", err)
		}
		if err := EnsureSchemaWithRetry(ctx, wstore.NewStore(client), cfg.BootstrapRetryAttempts, retryDelay); err != nil {
			deps.Close()
			return nil, fmt.Errorf("weaviate schema error: %w", err)
		}
		deps.Weaviate = client
	}

	if cfg.IndexQueue == config.QueueNSQ {
		producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("nsq producer error: %w", err)
		}
		ping := func(context.Context) error { return producer.Ping() }
		if err := Retry(ctx, "nsqd ping", cfg.BootstrapRetryAttempts, retryDelay, ping); err != nil {
			producer.Stop()
			deps.Close()
			return nil, fmt.Errorf("nsqd unreachable: %w", err)
		}
		deps.NSQProducer = producer
	}

	return deps, nil
}

func openDB(ctx context.Context, cfg *config.Config, retryDelay time.Duration) (*sql.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if err := Retry(ctx, "db ping", cfg.BootstrapRetryAttempts, retryDelay, db.PingContext); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	if err := migrateUp(db, cfg.MigrationPath); err != nil {
		db.Close()
		return nil, err
	}
	slog.Info("migrations applied successfully")
	return db, nil
}

func migrateUp(db *sql.DB, path string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(path, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up error: %w", err)
	}
	return nil
}

// Retry runs op up to attempts times, sleeping delay between failures. It
// gives up early when ctx is done.
func Retry(ctx context.Context, name string, attempts int, delay time.Duration, op func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		slog.Warn("bootstrap step failed, retrying...", "step", name, "attempt", i+1, "max_attempts", attempts, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

// EnsureSchemaWithRetry retries schema creation until the store accepts it.
func EnsureSchemaWithRetry(ctx context.Context, store SchemaEnsurer, attempts int, delay time.Duration) error {
	return Retry(ctx, "ensure schema", attempts, delay, store.EnsureSchema)
}
