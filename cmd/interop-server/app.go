package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/palladiumkenya/openmrs-module-interop/internal/config"
	"github.com/palladiumkenya/openmrs-module-interop/internal/domain/clinical"
	"github.com/palladiumkenya/openmrs-module-interop/internal/domain/encounter"
	"github.com/palladiumkenya/openmrs-module-interop/internal/domain/observer"
	"github.com/palladiumkenya/openmrs-module-interop/internal/domain/reference"
	"github.com/palladiumkenya/openmrs-module-interop/internal/domain/translate"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/auth"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/blobstore"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/db"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/events"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/property"
	"github.com/palladiumkenya/openmrs-module-interop/internal/platform/publish"
)

// app holds the components shared by the serve, token and bundle commands.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	pool    *pgxpool.Pool
	props   *property.Reader
	repo    clinical.Repository
	svc     *clinical.Service
	tr      *translate.Translator
	tokens  *auth.TokenCache
	checks  map[string]db.Pinger
	closers []func() error
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger, tokenOpts ...auth.Option) (*app, error) {
	a := &app{cfg: cfg, logger: logger, checks: map[string]db.Pinger{}}

	if cfg.HasDatabase() {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.pool = pool
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		a.repo = clinical.NewRepoPG(pool)
	} else {
		logger.Warn().Msg("DATABASE_URL not set, clinical entities are read from the in-memory ingest store")
		a.repo = clinical.NewMemoryRepo()
	}

	store, err := a.propertyStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.props = property.NewReader(store, logger)

	tokenStore, err := a.tokenStore(store)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.tokens = auth.NewTokenCache(a.props, tokenStore, logger, tokenOpts...)

	a.svc = clinical.NewService(a.repo)
	a.tr = translate.New(reference.NewResolver(a.props, a.svc, logger))
	return a, nil
}

func (a *app) propertyStore(ctx context.Context) (property.Store, error) {
	switch a.cfg.PropertyStore {
	case config.PropertyStorePostgres:
		return property.NewPGStore(a.pool), nil
	case config.PropertyStoreSQLite:
		s, err := property.OpenSQLite(ctx, a.cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	default:
		return property.NewMemoryStore(nil), nil
	}
}

func (a *app) tokenStore(props property.Store) (auth.TokenStore, error) {
	if a.cfg.TokenStore != config.TokenStoreRedis {
		return auth.NewPropertyTokenStore(props), nil
	}
	rs, err := auth.NewRedisTokenStore(a.cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, rs.Close)
	a.checks["redis"] = rs
	return rs, nil
}

// publisher fans each bundle out to the SHR (when configured), the S3
// archive (when configured) and the log.
func (a *app) publisher(ctx context.Context, obs publish.BundleObserver) (publish.Publisher, error) {
	var targets []publish.Publisher

	if a.cfg.SHRBaseURL != "" {
		var deliveries publish.DeliveryLog = publish.NewMemoryDeliveryLog()
		if a.pool != nil {
			deliveries = publish.NewPGDeliveryLog(a.pool)
		}
		targets = append(targets, publish.NewSHRPublisher(a.cfg.SHRBaseURL, a.tokens, a.logger,
			publish.WithDeliveryLog(deliveries), publish.WithBasicAuth(a.tokens)))
	} else {
		a.logger.Warn().Msg("SHR_BASE_URL not set, bundles are not delivered")
	}

	if a.cfg.ArchiveBucket != "" {
		store, err := blobstore.NewS3Store(ctx, blobstore.S3Config{
			Bucket:   a.cfg.ArchiveBucket,
			Region:   a.cfg.ArchiveRegion,
			Endpoint: a.cfg.ArchiveEndpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("archive store: %w", err)
		}
		targets = append(targets, publish.NewArchive(store))
	}

	targets = append(targets, publish.NewLog(a.logger))

	var p publish.Publisher = publish.NewFanout(targets...)
	if obs != nil {
		p = publish.Observed(p, obs)
	}
	return p, nil
}

func (a *app) assembler() *encounter.Assembler {
	return encounter.NewAssembler(a.props, a.svc, a.tr, a.logger)
}

// registry subscribes every event handler.
func (a *app) registry(pub publish.Publisher) (*events.Registry, *encounter.Handler, error) {
	reg := events.NewRegistry()

	encHandler := encounter.NewHandler(a.assembler(), pub, a.logger)
	if err := encHandler.Register(reg); err != nil {
		return nil, nil, err
	}
	if err := observer.New(a.props, a.svc, a.tr, pub, a.logger).Register(reg); err != nil {
		return nil, nil, err
	}
	if err := observer.NewRMSSync(a.props, a.svc, nil, a.logger).Register(reg); err != nil {
		return nil, nil, err
	}
	return reg, encHandler, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn().Err(err).Msg("close failed")
		}
	}
	a.closers = nil
}
