package cli

import (
	"context"
	"fmt"

	"github.com/wagnerlima/memory-cloud/zonegraph/internal/assistant"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/config"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/engine"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/engine/elastic"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/engine/sqlite"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/graph"
	"github.com/wagnerlima/memory-cloud/zonegraph/internal/zones"
)

func openEngine(cfg config.EngineConfig) (engine.Engine, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		store, err := sqlite.Open(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverElasticsearch:
		refresh := "wait_for"
		if !cfg.Refresh {
			refresh = "false"
		}
		client, err := elastic.New(elastic.Options{
			URL:      cfg.URL,
			Username: cfg.Username,
			Password: cfg.Password,
			Refresh:  refresh,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown engine driver %q", cfg.Driver)
	}
}

func (a *app) openScorer() (assistant.Scorer, error) {
	ac := a.cfg.Assistant
	scorer, err := assistant.NewOpenAI(assistant.Config{
		APIKey:  ac.APIKey,
		BaseURL: ac.BaseURL,
		Model:   ac.Model,
		Timeout: ac.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("relevance assistant: %w", err)
	}
	cb := a.cfg.CircuitBreaker
	return assistant.NewBreaker(scorer, assistant.BreakerSettings{
		MaxRequests:      cb.MaxRequests,
		Interval:         cb.BreakerInterval(),
		Timeout:          cb.BreakerTimeout(),
		ReadyToTripRatio: cb.ReadyToTripRatio,
	}, a.logger), nil
}

// openGraph connects to the engine, makes sure the default zone exists and
// returns a graph client. The returned func closes the engine.
func (a *app) openGraph(ctx context.Context) (*graph.Client, func(), error) {
	eng, err := openEngine(a.cfg.Engine)
	if err != nil {
		return nil, nil, fmt.Errorf("open engine: %w", err)
	}
	closeEngine := func() {
		if err := eng.Close(); err != nil {
			a.logger.Warn("close engine", "err", err)
		}
	}

	reg, err := zones.Open(ctx, eng, zones.Options{Prefix: a.cfg.Engine.IndexPrefix, Logger: a.logger})
	if err != nil {
		closeEngine()
		return nil, nil, err
	}

	opts := graph.Options{Logger: a.logger}
	if a.cfg.Assistant.Enabled {
		scorer, err := a.openScorer()
		if err != nil {
			closeEngine()
			return nil, nil, err
		}
		opts.Assistant = scorer
	}
	a.logger.Debug("graph ready", "driver", a.cfg.Engine.Driver, "prefix", a.cfg.Engine.IndexPrefix, "assistant", a.cfg.Assistant.Enabled)
	return graph.New(reg, opts), closeEngine, nil
}
