// Command cu is the AO Compute Unit CLI: it wires the Module Host,
// Interaction Source, Evaluation Cache and Evaluator together from
// environment configuration and exposes read/write/cache subcommands.
// Grounded on the teacher's cmd/coordinator/main.go (signal-aware
// context, config-then-adapters-then-service wiring), generalized from
// one long-running Run loop to a one-shot cobra command tree.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/permaweb/cu-core/internal/cache"
	"github.com/permaweb/cu-core/internal/cli"
	"github.com/permaweb/cu-core/internal/config"
	"github.com/permaweb/cu-core/internal/engine"
	"github.com/permaweb/cu-core/internal/evaluator"
	"github.com/permaweb/cu-core/internal/interactions"
	"github.com/permaweb/cu-core/internal/logging"
	"github.com/permaweb/cu-core/internal/modulestore"
	"github.com/permaweb/cu-core/internal/wasmhost"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logging.New()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync()

	store, err := moduleStoreFromConfig(cfg, log)
	if err != nil {
		return err
	}
	source, writer, err := interactionsFromConfig(cfg, log)
	if err != nil {
		return err
	}
	evalCache, closeCache, err := cacheFromConfig(cfg, log)
	if err != nil {
		return err
	}
	defer closeCache()

	host := wasmhost.New(log)
	eval := evaluator.New(host, source, store, evalCache, log)

	root := cli.NewRootCommand(cli.Deps{
		Evaluator: eval,
		Cache:     evalCache,
		Writer:    writer,
		Log:       log,
	})
	root.SetContext(ctx)
	return root.Execute()
}

func moduleStoreFromConfig(cfg config.Config, log engine.Logger) (engine.ModuleBinaryStore, error) {
	if cfg.ModuleStoreDir != "" {
		return modulestore.NewFSStore(cfg.ModuleStoreDir, log), nil
	}
	return modulestore.NewHTTPStore(cfg.ModuleStoreURL, log)
}

func interactionsFromConfig(cfg config.Config, log engine.Logger) (engine.Source, engine.Writer, error) {
	if cfg.InteractionsDir != "" {
		fs := interactions.NewFileSource(cfg.InteractionsDir, log)
		return fs, fs, nil
	}
	su, err := interactions.NewSUClient(cfg.SUBaseURL, log)
	if err != nil {
		return nil, nil, err
	}
	return su, su, nil
}

func cacheFromConfig(cfg config.Config, log engine.Logger) (engine.Cache, func(), error) {
	if cfg.CacheDir == "" {
		return cache.NewMemoryCache(), func() {}, nil
	}
	c, err := cache.OpenLevelDBCache(cfg.CacheDir, log)
	if err != nil {
		return nil, nil, fmt.Errorf("open cache: %w", err)
	}
	return c, func() { c.Close() }, nil
}
