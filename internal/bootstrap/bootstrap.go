// Package bootstrap builds the backends selected by the config. It is shared
// by the server and the admin CLI.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/burenotti/go_course_backend/internal/adapter/searchindex"
	"github.com/burenotti/go_course_backend/internal/adapter/storage"
	directorystorage "github.com/burenotti/go_course_backend/internal/adapter/storage/directory"
	"github.com/burenotti/go_course_backend/internal/adapter/storage/memory"
	"github.com/burenotti/go_course_backend/internal/adapter/storage/migrations"
	batchservice "github.com/burenotti/go_course_backend/internal/app/batch"
	enrollmentservice "github.com/burenotti/go_course_backend/internal/app/enrollment"
	"github.com/burenotti/go_course_backend/internal/app/unitofwork"
	"github.com/burenotti/go_course_backend/internal/config"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/leporo/sqlf"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type Directory interface {
	batchservice.Directory
	batchservice.CourseCatalog
	enrollmentservice.Directory
}

type Index interface {
	batchservice.Index
	enrollmentservice.Index
	Close(ctx context.Context) error
}

type Backends struct {
	DB                storage.Beginner
	SQL               *storage.DB
	Directory         Directory
	Index             Index
	BatchContext      batchservice.ContextFactory
	EnrollmentContext enrollmentservice.ContextFactory

	mongo *mongo.Client
}

func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backends, error) {
	b := &Backends{}

	switch cfg.DB.Driver {
	case config.DriverPostgres:
		sqlf.SetDialect(sqlf.PostgreSQL)
		db, err := sql.Open("pgx", cfg.DB.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to connect database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to connect database: %w", err)
		}
		b.SQL = &storage.DB{DB: db}
		b.DB = b.SQL
		b.Directory = directorystorage.NewPostgresStorage(b.SQL)
		b.BatchContext = batchservice.PostgresContext(logger)
		b.EnrollmentContext = enrollmentservice.PostgresContext(logger)
	case config.DriverMemory:
		store := memory.NewStore()
		b.DB = store
		b.Directory = memory.NewDirectory()
		b.BatchContext = batchservice.MemoryContext(store)
		b.EnrollmentContext = enrollmentservice.MemoryContext(store)
		logger.Warn("using in-memory store, data is lost on restart")
	}

	switch cfg.Search.Driver {
	case config.DriverMongo:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Search.URI))
		if err != nil {
			return nil, errors.Join(fmt.Errorf("failed to connect search index: %w", err), b.closeSQL())
		}
		if err := client.Ping(ctx, readpref.Primary()); err != nil {
			_ = client.Disconnect(ctx)
			return nil, errors.Join(fmt.Errorf("failed to connect search index: %w", err), b.closeSQL())
		}
		index := searchindex.NewMongo(client.Database(cfg.Search.Database), cfg.Timeouts.Index, logger)
		if err := index.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(ctx)
			return nil, errors.Join(err, b.closeSQL())
		}
		b.mongo = client
		b.Index = index
	case config.DriverMemory:
		b.Index = searchindex.NewMemory(logger)
	}

	return b, nil
}

// Migrate applies the schema. The in-memory store has none.
func (b *Backends) Migrate(ctx context.Context, logger *slog.Logger) error {
	if b.SQL == nil {
		logger.Info("no sql database configured, skipping migrations")
		return nil
	}
	return migrations.Apply(ctx, b.SQL, logger)
}

func (b *Backends) BatchUoW(bus unitofwork.MessageBus, logger *slog.Logger) *unitofwork.UnitOfWork[*batchservice.AtomicContext] {
	return unitofwork.New[*batchservice.AtomicContext](b.DB, b.BatchContext, bus, logger)
}

// Close waits for pending index writes before releasing connections.
func (b *Backends) Close(ctx context.Context) error {
	var errs []error
	if b.Index != nil {
		errs = append(errs, b.Index.Close(ctx))
	}
	if b.mongo != nil {
		errs = append(errs, b.mongo.Disconnect(ctx))
	}
	errs = append(errs, b.closeSQL())
	return errors.Join(errs...)
}

func (b *Backends) closeSQL() error {
	if b.SQL == nil {
		return nil
	}
	return b.SQL.Close()
}
