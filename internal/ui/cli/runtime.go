package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	coreapp "dtsresolve/internal/core/app"
	"dtsresolve/internal/core/config"
	"dtsresolve/internal/engine/model"
	"dtsresolve/internal/shared/observability"
	"dtsresolve/internal/shared/util"
	"dtsresolve/internal/shared/version"
	"dtsresolve/internal/ui/report"
)

func Run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	r := &runner{stdout: os.Stdout, stderr: os.Stderr}
	return r.run(ctx, args)
}

// runner carries the process streams and extra App options so tests can
// substitute a fake registry.
type runner struct {
	stdout     io.Writer
	stderr     io.Writer
	appOptions []coreapp.Option
}

func (r *runner) run(ctx context.Context, args []string) int {
	opts, err := parseOptions(args)
	if err != nil {
		return 2
	}

	if opts.version {
		fmt.Fprintf(r.stdout, "dtsresolve v%s\n", version.Version)
		return 0
	}

	configureLogging(r.stderr, opts.verbose)

	cfg, cfgPath, err := loadConfig(opts.configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}
	baseDir := filepath.Dir(cfgPath)

	if err := applyOptions(&opts, cfg); err != nil {
		fmt.Fprintln(r.stderr, err.Error())
		return 1
	}
	if opts.watch {
		if _, err := os.Stat(cfgPath); err != nil {
			fmt.Fprintf(r.stderr, "-watch requires an existing config file: %v\n", err)
			return 1
		}
	}

	shutdownTracing, err := initTracing(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize tracing", "error", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			slog.Warn("tracing shutdown failed", "error", err)
		}
	}()

	current, err := r.newApp(cfg, baseDir)
	if err != nil {
		slog.Error("failed to initialize app", "error", err)
		return 1
	}
	defer func() {
		if err := current.Close(context.Background()); err != nil {
			slog.Warn("failed to close app", "error", err)
		}
	}()

	health := coreapp.NewHealthService(current)
	if cfg.Observability.Enabled {
		srv := NewObservabilityServer(":"+strconv.Itoa(cfg.Observability.Port), health)
		if err := srv.Start(ctx); err != nil {
			slog.Error("failed to start observability server", "error", err)
			return 1
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Stop(stopCtx)
		}()
	}

	if err := r.resolveAndEmit(ctx, current, cfg, opts); err != nil {
		slog.Error("resolution failed", "error", err)
		return 1
	}
	if !opts.watch {
		return 0
	}

	reloads := make(chan *config.Config, 1)
	watcher := config.NewWatcher(cfgPath, func(next *config.Config) {
		select {
		case <-reloads:
		default:
		}
		reloads <- next
	})
	if err := watcher.Start(ctx); err != nil {
		slog.Error("failed to start config watcher", "error", err)
		return 1
	}
	defer watcher.Stop()

	for {
		select {
		case <-ctx.Done():
			return 0
		case next := <-reloads:
			anchorOutput(next, baseDir)
			if err := applyOptions(&opts, next); err != nil {
				slog.Error("reloaded config rejected", "error", err)
				continue
			}
			replacement, err := r.newApp(next, baseDir, coreapp.WithMemo(current.Memo()))
			if err != nil {
				slog.Error("failed to rebuild app after reload", "error", err)
				continue
			}
			if err := current.Close(context.Background()); err != nil {
				slog.Warn("failed to close previous app", "error", err)
			}
			current, cfg = replacement, next
			health.SetApp(current)
			if err := r.resolveAndEmit(ctx, current, cfg, opts); err != nil {
				if ctx.Err() != nil {
					return 0
				}
				slog.Error("resolution failed", "error", err)
			}
		}
	}
}

func (r *runner) newApp(cfg *config.Config, baseDir string, extra ...coreapp.Option) (*coreapp.App, error) {
	options := append([]coreapp.Option{coreapp.WithBaseDir(baseDir)}, r.appOptions...)
	options = append(options, extra...)
	return coreapp.New(cfg, options...)
}

func (r *runner) resolveAndEmit(ctx context.Context, a *coreapp.App, cfg *config.Config, opts cliOptions) error {
	refs := packageRefs(opts, cfg)
	if len(refs) == 0 {
		return fmt.Errorf("no packages to resolve: pass name@version arguments or configure [packages]")
	}

	deps, err := a.ResolveAll(ctx, refs)
	if err != nil {
		return err
	}

	encoded, err := json.MarshalIndent(deps, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	encoded = append(encoded, '\n')

	treeOut := r.stderr
	if cfg.Output.File != "" {
		if err := util.WriteFileWithDirs(cfg.Output.File, encoded, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", cfg.Output.File, err)
		}
		slog.Info("wrote declaration map", "path", cfg.Output.File, "files", len(deps))
		treeOut = r.stdout
	} else if _, err := r.stdout.Write(encoded); err != nil {
		return err
	}

	if cfg.Output.Tree {
		fmt.Fprint(treeOut, report.RenderTree(deps))
	}
	return nil
}

// applyOptions folds command-line flags into cfg.
func applyOptions(opts *cliOptions, cfg *config.Config) error {
	for _, arg := range opts.args {
		if ref := model.ParsePackageRef(arg); ref.Name == "" {
			return fmt.Errorf("invalid package argument %q: expected name@version", arg)
		}
	}
	if opts.noCache {
		cfg.Cache.Enabled = false
	}
	if opts.tree {
		cfg.Output.Tree = true
	}
	if opts.out != "" {
		cfg.Output.File = opts.out
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// packageRefs returns the positional packages in argument order, or the
// configured set when none were given.
func packageRefs(opts cliOptions, cfg *config.Config) []model.PackageRef {
	if len(opts.args) == 0 {
		return cfg.PackageRefs()
	}
	refs := make([]model.PackageRef, 0, len(opts.args))
	for _, arg := range opts.args {
		refs = append(refs, model.ParsePackageRef(arg))
	}
	return refs
}

// loadConfig reads path with env overrides applied. The default path may be
// absent, in which case built-in defaults are used. Relative paths inside the
// file resolve against the returned absolute config path's directory.
func loadConfig(path string) (*config.Config, string, error) {
	cfg, err := config.LoadOrDefault(path, path == defaultConfigPath)
	if err != nil {
		return nil, "", err
	}
	config.ApplyEnvOverrides(cfg)

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, "", err
	}
	anchorOutput(cfg, filepath.Dir(abs))
	return cfg, abs, nil
}

func anchorOutput(cfg *config.Config, dir string) {
	if cfg.Output.File != "" {
		cfg.Output.File = config.ResolveRelative(dir, cfg.Output.File)
	}
}

func initTracing(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	endpoint := ""
	if cfg.Observability.EnableTracing {
		endpoint = cfg.Observability.OTLPEndpoint
	}
	return observability.InitTracing(ctx, endpoint, cfg.Observability.OTLPInsecure)
}

func configureLogging(w io.Writer, verbose bool) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
}
