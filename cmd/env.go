package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/crashify360/totalloss/internal/config"
	"github.com/crashify360/totalloss/internal/notify"
	"github.com/crashify360/totalloss/internal/resilience"
	"github.com/crashify360/totalloss/internal/salvage"
	"github.com/crashify360/totalloss/internal/store"
	"github.com/crashify360/totalloss/internal/threshold"
	"github.com/crashify360/totalloss/internal/validate"
	"github.com/crashify360/totalloss/internal/valuation"
	"github.com/crashify360/totalloss/pkg/autograp"
)

// appEnv holds the components shared by commands.
type appEnv struct {
	Store     store.Store
	Evaluator *threshold.Evaluator
	Validator *validate.Validator
	Extractor *salvage.Extractor
}

// Close releases the store if one was opened.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens and migrates the configured store.
func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	if err := c.Validate("store"); err != nil {
		return nil, err
	}

	var (
		st  store.Store
		err error
	)
	switch c.Store.Driver {
	case "sqlite":
		st, err = store.NewSQLite(c.Store.Path)
	case "postgres":
		st, err = store.NewPostgres(ctx, c.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: c.Store.MaxConns,
			MinConns: c.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initEnv builds the evaluation components. The store is opened only when
// withStore is set.
func initEnv(ctx context.Context, c *config.Config, withStore bool) (*appEnv, error) {
	rates, err := c.Thresholds.Build()
	if err != nil {
		return nil, eris.Wrap(err, "load threshold rates")
	}

	env := &appEnv{
		Evaluator: threshold.NewEvaluator(rates, threshold.WithConcurrency(c.Batch.Concurrency)),
		Validator: validate.New(c.Validation),
		Extractor: salvage.NewExtractor(c.Extractor),
	}
	if withStore {
		st, err := initStore(ctx, c)
		if err != nil {
			return nil, err
		}
		env.Store = st
	}
	return env, nil
}

func newAutoGrapClient(c *config.Config) autograp.Client {
	v := c.Valuation
	return autograp.NewClient(v.APIKey,
		autograp.WithBaseURL(v.BaseURL),
		autograp.WithTimeout(v.Timeout()),
		autograp.WithRateLimit(float64(v.RatePerHour), v.Burst),
		autograp.WithRetry(v.Retry.RetryConfig()),
		autograp.WithBreaker(resilience.NewBreaker("autograp", v.BreakerThreshold, time.Duration(v.BreakerCooldownSecs)*time.Second)),
	)
}

// newValuationService wraps the AutoGrap client with a read-through cache.
// cache may be nil.
func newValuationService(c *config.Config, cache valuation.Cache) *valuation.Service {
	return valuation.NewService(newAutoGrapClient(c), cache, c.Valuation.CacheTTL())
}

// newNotifier builds a Notifier that logs instead of sending when dryRun
// or email.dry_run is set.
func newNotifier(c *config.Config, dryRun bool) *notify.Notifier {
	e := c.Email
	var sender notify.Sender = notify.NewSMTPSender(notify.SMTPConfig{
		Host:     e.SMTPHost,
		Port:     e.SMTPPort,
		Username: e.Username,
		Password: e.Password,
		UseTLS:   e.UseTLS,
	})
	if dryRun || e.DryRun {
		sender = notify.LogSender{}
	}
	return notify.New(sender, e.From,
		notify.WithRetry(e.Retry.RetryConfig()),
		notify.WithConcurrency(e.Concurrency),
	)
}
