package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/asp/internal/config"
	"github.com/papapumpkin/asp/internal/harnesses"
	"github.com/papapumpkin/asp/internal/install"
	"github.com/papapumpkin/asp/internal/manifest"
	"github.com/papapumpkin/asp/internal/registry"
	"github.com/papapumpkin/asp/internal/store"
	"github.com/papapumpkin/asp/internal/telemetry"
	"github.com/papapumpkin/asp/internal/ui"
)

// env is everything a command needs, opened from config and flags.
type env struct {
	cfg       config.Config
	installer *install.Installer
	store     *store.Store
	registry  registry.Access
	telemetry *telemetry.Emitter
	printer   *ui.Printer
}

func (e *env) Close() {
	if e.store != nil {
		e.store.Close()
	}
	if e.telemetry != nil {
		e.telemetry.Close()
	}
}

// loadConfig loads config and applies persistent flag overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	applyFlagOverrides(cmd, &cfg)
	return cfg, nil
}

// applyFlagOverrides applies CLI flag values to the loaded config.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetInt("concurrency"); v > 0 {
		cfg.Concurrency = v
	}
	if v, _ := cmd.Flags().GetString("store"); v != "" {
		cfg.StoreRoot = v
	}
	if v, _ := cmd.Flags().GetString("registry"); v != "" {
		cfg.RegistryPath = v
	}
	if v, _ := cmd.Flags().GetBool("verbose"); v {
		cfg.Verbose = true
	}
}

// applyProjectRegistry points cfg at the registry the project manifest
// declares. Remote URLs get their own clone; anything else is a local
// registry path relative to the project directory.
func applyProjectRegistry(cfg *config.Config, projectDir string) error {
	path := cfg.ProjectFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(projectDir, path)
	}
	p, err := manifest.LoadProject(path)
	if errors.Is(err, manifest.ErrNoManifest) {
		return nil
	}
	if err != nil {
		return err
	}

	url := p.Registry.URL
	switch {
	case url == "":
	case isRemoteURL(url):
		if url != cfg.RegistryURL {
			cfg.RegistryPath = registry.ClonePath(filepath.Dir(cfg.RegistryPath), url)
			cfg.RegistryURL = url
		}
	default:
		if !filepath.IsAbs(url) {
			url = filepath.Join(projectDir, url)
		}
		cfg.RegistryPath, cfg.RegistryURL = url, ""
	}
	return nil
}

// isRemoteURL reports whether url names a remote git repository, either
// scheme://host/path or scp-style user@host:path.
func isRemoteURL(url string) bool {
	if strings.Contains(url, "://") {
		return true
	}
	at, colon := strings.Index(url, "@"), strings.Index(url, ":")
	return at > 0 && colon > at
}

// openEnv wires registry, store, harnesses and telemetry into an
// Installer for the --project directory.
func openEnv(ctx context.Context, cmd *cobra.Command) (*env, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	project, _ := cmd.Flags().GetString("project")
	if !cmd.Flags().Changed("registry") {
		if err := applyProjectRegistry(&cfg, project); err != nil {
			return nil, err
		}
	}
	e := &env{cfg: cfg, printer: ui.New(cmd.ErrOrStderr())}
	logger := cmd.ErrOrStderr()

	e.registry = registry.NewRetrying(registry.NewGit(cfg.RegistryPath, cfg.RegistryURL), registry.RetryOptions{
		Timeout: cfg.RegistryTimeout,
		Retries: uint64(cfg.RegistryRetries),
		Logger:  logger,
		Verbose: cfg.Verbose,
	})

	e.store, err = store.Open(ctx, cfg.StoreRoot, e.registry,
		store.WithLogger(logger),
		store.WithVerbose(cfg.Verbose),
		store.WithVerify(cfg.VerifySnapshots),
	)
	if err != nil {
		return nil, err
	}

	if cfg.TelemetryPath != "" {
		e.telemetry, err = telemetry.NewEmitter(cfg.TelemetryPath)
		if err != nil {
			e.Close()
			return nil, err
		}
	}

	e.installer = install.New(install.Options{
		ProjectDir:     project,
		ProjectFile:    cfg.ProjectFile,
		LockFile:       cfg.LockFile,
		ModulesDir:     cfg.ModulesDir,
		Registry:       e.registry,
		Store:          e.store,
		Harnesses:      harnesses.Default(),
		Concurrency:    cfg.Concurrency,
		LockTimeout:    cfg.LockTimeout,
		RequireHarness: cfg.RequireHarness,
		Verbose:        cfg.Verbose,
		Logger:         logger,
		Telemetry:      e.telemetry,
	})
	return e, nil
}

// setupSignalContext returns a context that is canceled on SIGINT or SIGTERM.
func setupSignalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	printer := ui.New(cmd.ErrOrStderr())
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			printer.Info("shutting down...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
