// File: cmd/components.go
package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot-cli/api/schemas"
	"github.com/xkilldash9x/pilot-cli/internal/agent"
	"github.com/xkilldash9x/pilot-cli/internal/config"
	"github.com/xkilldash9x/pilot-cli/internal/executor"
	"github.com/xkilldash9x/pilot-cli/internal/memory"
	"github.com/xkilldash9x/pilot-cli/internal/observability"
	"github.com/xkilldash9x/pilot-cli/internal/platform"
	"github.com/xkilldash9x/pilot-cli/internal/resolve"
	"github.com/xkilldash9x/pilot-cli/internal/snapshot"
	"github.com/xkilldash9x/pilot-cli/internal/store"
	"github.com/xkilldash9x/pilot-cli/internal/vision"
)

// appComponents holds the initialized services backing one invocation.
type appComponents struct {
	Agent  *agent.Agent
	KV     schemas.KVStore
	Driver *platform.Driver
	DBPool *pgxpool.Pool
}

// Shutdown gracefully closes all components.
func (ac *appComponents) Shutdown() {
	if ac.Driver != nil {
		ac.Driver.Shutdown()
	}
	if ac.DBPool != nil {
		ac.DBPool.Close()
	}
}

// initializeComponents handles dependency injection: persistence, host
// driver, snapshot cache, resolver, executor and the agent on top.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*appComponents, error) {
	components := &appComponents{}

	// 1. Persistence. An empty database URL selects the in-process store;
	// learned state then lives only as long as the invocation.
	var kv schemas.KVStore
	if cfg.Database().URL != "" {
		dbPool, err := pgxpool.New(ctx, cfg.Database().URL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		components.DBPool = dbPool

		dbStore, err := store.New(ctx, dbPool, logger)
		if err != nil {
			components.Shutdown()
			return nil, fmt.Errorf("failed to initialize database store: %w", err)
		}
		kv = dbStore
	} else {
		logger.Debug("No database URL configured, using in-process store")
		kv = store.NewMemStore()
	}
	components.KV = kv
	mem := memory.New(kv, logger)

	// 2. Host driver.
	driver := platform.NewDriver(logger, platform.Options{
		Headless:  cfg.Browser().Headless,
		UserAgent: cfg.Browser().UserAgent,
		ExtraArgs: parseBrowserArgs(cfg.Browser().Args),
	})
	components.Driver = driver

	// 3. Snapshot cache.
	snaps := snapshot.NewCache(driver, logger, snapshot.Options{
		Freshness:   cfg.Snapshot().Freshness,
		EventBuffer: cfg.Snapshot().EventBuffer,
	})

	// 4. Resolver.
	resolver := resolve.New(logger, resolve.Options{
		FuzzyFloor:     cfg.Resolver().FuzzyFloor,
		MaxSuggestions: cfg.Resolver().MaxSuggestions,
	})

	// 5. Optional vision fallback.
	var detector schemas.VisionDetector
	if cfg.Vision().Enabled {
		det, err := vision.New(ctx, logger, vision.Options{
			APIKey: cfg.Vision().APIKey,
			Model:  cfg.Vision().Model,
		})
		if err != nil {
			components.Shutdown()
			return nil, fmt.Errorf("failed to initialize vision detector: %w", err)
		}
		detector = det
	}

	// 6. Agent.
	components.Agent = agent.New(agent.Config{
		Driver:   driver,
		Snaps:    snaps,
		Resolver: resolver,
		Memory:   mem,
		Vision:   detector,
		ExecOptions: executor.Options{
			SettleDelay:     cfg.Executor().SettleDelay,
			DispatchTimeout: cfg.Executor().DispatchTimeout,
		},
	}, logger)

	return components, nil
}

// parseBrowserArgs turns "--name=value" and bare "--name" strings into
// allocator flags.
func parseBrowserArgs(args []string) map[string]any {
	if len(args) == 0 {
		return nil
	}
	flags := make(map[string]any, len(args))
	for _, arg := range args {
		arg = strings.TrimPrefix(arg, "--")
		if name, value, ok := strings.Cut(arg, "="); ok {
			flags[name] = value
		} else {
			flags[arg] = true
		}
	}
	return flags
}

// componentLogger returns the shared logger for command run functions.
func componentLogger() *zap.Logger {
	return observability.GetLogger()
}
