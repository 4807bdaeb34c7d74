package main

import (
	"context"
	"os"
	"time"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"

	"github.com/sells-group/forecast-cli/internal/forecast"
	"github.com/sells-group/forecast-cli/internal/model"
	"github.com/sells-group/forecast-cli/internal/scoring"
	"github.com/sells-group/forecast-cli/internal/store"
	sfpkg "github.com/sells-group/forecast-cli/pkg/salesforce"
)

// forecastEnv holds the open store and the services every command computes
// with.
type forecastEnv struct {
	Store    store.Store
	Settings *scoring.SettingsStore
	Service  *forecast.Service
}

// Close releases the store connection.
func (e *forecastEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv validates config for the given mode, opens the store, runs
// migrations, and wires the forecast service. Callers defer env.Close().
func initEnv(ctx context.Context, mode string) (*forecastEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	settings := scoring.NewSettingsStore(st)
	return &forecastEnv{
		Store:    st,
		Settings: settings,
		Service:  forecast.NewService(st, settings),
	}, nil
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.Path
		if dsn == "" {
			dsn = "forecast.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initSalesforce authenticates with the configured JWT key pair.
func initSalesforce() (sfpkg.Client, error) {
	pemData, err := os.ReadFile(cfg.Salesforce.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}

	sf, err := salesforce.Init(salesforce.Creds{
		Domain:         cfg.Salesforce.LoginURL,
		Username:       cfg.Salesforce.Username,
		ConsumerKey:    cfg.Salesforce.ClientID,
		ConsumerRSAPem: string(pemData),
	})
	if err != nil {
		return nil, eris.Wrap(err, "init salesforce")
	}

	return sfpkg.NewClient(sf), nil
}

// resolveRange turns the period/start/end flag triple into a concrete
// window. Custom dates override the period and must come as a pair; an
// empty period falls back to the configured default.
func resolveRange(period, start, end string) (model.DateRange, error) {
	switch {
	case start != "" && end != "":
		s, err := model.ParseDate(start)
		if err != nil {
			return model.DateRange{}, err
		}
		e, err := model.ParseDate(end)
		if err != nil {
			return model.DateRange{}, err
		}
		return model.CustomRange(s, e)
	case start != "" || end != "":
		return model.DateRange{}, eris.New("--start and --end must be supplied together")
	}

	if period == "" {
		period = cfg.Forecast.DefaultPeriod
	}
	p, err := model.ParsePeriod(period)
	if err != nil {
		return model.DateRange{}, err
	}
	return p.Range(time.Now()), nil
}
