package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/sells-group/keyword-discovery/internal/config"
	"github.com/sells-group/keyword-discovery/internal/discovery"
	"github.com/sells-group/keyword-discovery/internal/exports"
	"github.com/sells-group/keyword-discovery/internal/metrics"
	"github.com/sells-group/keyword-discovery/internal/providers"
	"github.com/sells-group/keyword-discovery/internal/resilience"
	"github.com/sells-group/keyword-discovery/pkg/dataforseo"
	"github.com/sells-group/keyword-discovery/pkg/searchconsole"
)

// discoveryEnv holds the store, guard and pipeline used by the discover and
// serve commands.
type discoveryEnv struct {
	Store    discovery.Store // nil when running without persistence
	Guard    *resilience.Guard
	Pipeline *discovery.Pipeline
}

// Close releases resources held by the environment.
func (e *discoveryEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initDiscovery builds providers from config and wires the pipeline. When
// withStore is set the store is opened, migrated and used for brand terms.
// reg may be nil.
func initDiscovery(ctx context.Context, withStore bool, reg prometheus.Registerer) (*discoveryEnv, error) {
	if err := cfg.Validate("discover"); err != nil {
		return nil, err
	}

	env := &discoveryEnv{Guard: resilience.FromConfig(cfg.Retry, cfg.Circuit)}

	p, err := initProviders(ctx, cfg, env.Guard)
	if err != nil {
		return nil, err
	}

	if withStore {
		st, err := openStore(ctx)
		if err != nil {
			return nil, err
		}
		env.Store = st
		p.BrandTerms = st
	}

	var rec *metrics.Recorder
	if reg != nil {
		rec = metrics.New(reg)
	}
	env.Pipeline = discovery.NewPipeline(p, &cfg.Discovery, rec)
	return env, nil
}

// initProviders picks a provider per source. Export files take precedence
// over live APIs; sources with neither stay nil and contribute nothing.
func initProviders(ctx context.Context, c *config.Config, guard *resilience.Guard) (discovery.Providers, error) {
	var p discovery.Providers

	if c.HasDataForSEO() {
		client := dataforseo.NewClient(c.DataForSEO.Login, c.DataForSEO.Password,
			dataforseo.WithBaseURL(c.DataForSEO.BaseURL),
			dataforseo.WithLocation(c.DataForSEO.LocationCode, c.DataForSEO.LanguageCode),
			dataforseo.WithRateLimit(c.DataForSEO.RateLimit),
			dataforseo.WithTimeout(time.Duration(c.DataForSEO.TimeoutSecs)*time.Second),
		)
		d := providers.NewDataForSEO(client, guard, c.Discovery.CompetitorLimit)
		p.Suggestions = d
		p.Competitors = d
		p.Metadata = d
	}

	if c.Exports.CompetitorDir != "" {
		p.Competitors = &exports.CompetitorFiles{Dir: c.Exports.CompetitorDir}
	}

	switch {
	case c.Exports.PerformanceFile != "":
		p.Performance = &exports.PerformanceFile{Path: c.Exports.PerformanceFile}
	case c.HasSearchConsole():
		client, err := searchconsole.NewClient(ctx, option.WithCredentialsFile(c.SearchConsole.CredentialsFile))
		if err != nil {
			return p, eris.Wrap(err, "init search console")
		}
		p.Performance = providers.NewSearchConsole(client, guard, c.SearchConsole.PropertyID, c.SearchConsole.SearchType)
	}

	zap.L().Debug("providers configured",
		zap.Bool("suggestions", p.Suggestions != nil),
		zap.Bool("competitors", p.Competitors != nil),
		zap.Bool("metadata", p.Metadata != nil),
		zap.Bool("performance", p.Performance != nil),
	)
	return p, nil
}

// openStore opens and migrates the configured store.
func openStore(ctx context.Context) (discovery.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}

	var (
		st  discovery.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		st, err = discovery.NewSQLiteStore(cfg.Store.DatabaseURL)
	case "postgres":
		var pool *pgxpool.Pool
		pool, err = pgxpool.New(ctx, cfg.Store.DatabaseURL)
		if err == nil {
			st = discovery.NewPostgresStore(pool)
		}
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}
