package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"mindtracking-client/internal/domain/avatar"
	"mindtracking-client/internal/domain/kv"
	"mindtracking-client/internal/domain/lifecycle"
	"mindtracking-client/internal/domain/profile"
	"mindtracking-client/internal/domain/session"
	platformconfig "mindtracking-client/internal/platform/config"
	platformerrors "mindtracking-client/internal/platform/errors"
	platformlogging "mindtracking-client/internal/platform/logging"
	platformobservability "mindtracking-client/internal/platform/observability"
	"mindtracking-client/internal/transport/api"
	httptransport "mindtracking-client/internal/transport/http"
	"mindtracking-client/internal/transport/stream"
)

const shutdownTimeout = 15 * time.Second

// Options controls how the application is assembled.
type Options struct {
	ConfigPath string
	DotEnv     bool
	// Env overrides environment lookup.
	Env func(string) (string, bool)
	// Override adjusts the loaded configuration before anything is built.
	Override func(*platformconfig.Config)
}

type stepFn func(context.Context, *App) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

// App holds every assembled component. Close releases them.
type App struct {
	Config     *platformconfig.Config
	ConfigPath string
	Logger     *slog.Logger
	Registry   *prometheus.Registry
	Metrics    *platformobservability.Metrics
	Store      kv.Store
	Bus        evbus.Bus
	Lifecycle  *lifecycle.Monitor
	API        *api.Client
	Profile    *profile.Service
	Session    *session.Service
	// Avatar is nil when no upload destination is configured.
	Avatar *avatar.Service
	Stream *stream.Bridge

	opts                  Options
	logProvider           *platformlogging.Logger
	observabilityShutdown platformobservability.ShutdownFunc
}

// Build runs the init graph and returns the assembled application.
func Build(ctx context.Context, opts Options) (*App, error) {
	app := &App{opts: opts}
	if err := executeInitSteps(ctx, InitGraph(), app); err != nil {
		_ = app.Close(context.Background())
		return nil, err
	}
	return app, nil
}

// Run builds the application, warms the profile and serves until ctx is cancelled or
// the process receives SIGINT or SIGTERM.
func Run(ctx context.Context, opts Options) error {
	app, err := Build(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := app.Close(closeCtx); err != nil {
			app.Logger.Warn("shutdown incomplete", slog.Any("error", err))
		}
	}()

	logBootstrapGraph(InitGraph(), app.Logger)

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, groupCtx := errgroup.WithContext(rootCtx)

	signalCtx, stop := signal.NotifyContext(groupCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.startServices(group, groupCtx); err != nil {
		cancel()
		return err
	}

	return waitForShutdown(signalCtx, cancel, app.Logger, group)
}

func (a *App) startServices(g *errgroup.Group, ctx context.Context) error {
	g.Go(func() error {
		a.Profile.LoadFromCache(ctx)
		a.Profile.LoadFromRemote(ctx)
		return a.Profile.Run(ctx)
	})

	if !a.Config.Bridge.Enabled {
		return nil
	}

	router, err := httptransport.Build(httptransport.Options{
		Logger:       a.Logger,
		Debug:        strings.EqualFold(a.Config.Log.Level, "debug"),
		AllowOrigins: a.Config.Bridge.AllowOrigins,
		Metrics:      a.Metrics,
		Gatherer:     a.gatherer(),
		Health:       a.Store.Stats,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindTransport, "http:build-router", "failed to build router", err)
	}

	deps := httptransport.HandlerDeps{
		Profile:   a.Profile,
		Lifecycle: a.Lifecycle,
		Stream:    a.Stream,
		Session:   a.Session,
		Logger:    a.Logger,
	}
	if a.Avatar != nil {
		deps.Avatar = a.Avatar
	}
	handler, err := httptransport.NewProfileHandler(deps)
	if err != nil {
		return err
	}
	handler.RegisterRoutes(router)

	server := httptransport.NewServer(httptransport.ServerConfig{Addr: a.Config.Bridge.Addr}, router, a.Logger)
	g.Go(func() error {
		if err := server.Start(ctx); err != nil {
			return platformerrors.Wrap(platformerrors.KindTransport, "http:serve", "bridge server failed", err)
		}
		return nil
	})
	return nil
}

func (a *App) gatherer() prometheus.Gatherer {
	if a.Registry == nil {
		return nil
	}
	return a.Registry
}

// Close releases the components in reverse construction order.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Stream != nil {
		errs = append(errs, a.Stream.Close())
	}
	if a.Lifecycle != nil {
		errs = append(errs, a.Lifecycle.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close(ctx))
	}
	if a.observabilityShutdown != nil {
		errs = append(errs, a.observabilityShutdown(ctx))
	}
	if a.logProvider != nil {
		errs = append(errs, a.logProvider.Close())
	}
	return errors.Join(errs...)
}

func logBootstrapGraph(steps []initStep, logger *slog.Logger) {
	if logger == nil {
		return
	}
	for _, step := range steps {
		logger.Debug("init step", slog.String("id", step.ID), slog.String("title", step.Title), slog.Any("depends_on", step.DependsOn))
	}
	logger.Info("services starting")
}

func executeInitSteps(ctx context.Context, steps []initStep, app *App) error {
	if app == nil {
		return platformerrors.New(platformerrors.KindBootstrap, "execute init steps", "nil application state")
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(platformerrors.KindBootstrap, step.ID, fmt.Sprintf("dependency %s not satisfied", dep))
			}
		}
		if step.Execute == nil {
			return platformerrors.New(platformerrors.KindBootstrap, step.ID, "missing execute function")
		}
		if err := step.Execute(ctx, app); err != nil {
			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initLoggingStep,
		},
		{
			ID:        "observability:setup-hooks",
			Title:     "Setup observability hooks and metrics",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   setupObservabilityStep,
		},
		{
			ID:        "storage:init-kv",
			Title:     "Open key-value store",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindStorage,
			Execute:   initStoreStep,
		},
		{
			ID:        "lifecycle:init-monitor",
			Title:     "Start app lifecycle monitor",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initLifecycleStep,
		},
		{
			ID:        "api:init-client",
			Title:     "Create backend client",
			DependsOn: []string{"storage:init-kv"},
			Kind:      platformerrors.KindConfig,
			Execute:   initAPIClientStep,
		},
		{
			ID:        "profile:init-service",
			Title:     "Create profile synchronizer",
			DependsOn: []string{"api:init-client", "lifecycle:init-monitor", "observability:setup-hooks"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initProfileStep,
		},
		{
			ID:        "session:init-service",
			Title:     "Create session service",
			DependsOn: []string{"profile:init-service"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initSessionStep,
		},
		{
			ID:        "avatar:init-service",
			Title:     "Create avatar uploader",
			DependsOn: []string{"profile:init-service"},
			Kind:      platformerrors.KindUpload,
			Execute:   initAvatarStep,
		},
		{
			ID:        "stream:init-bridge",
			Title:     "Create snapshot stream",
			DependsOn: []string{"profile:init-service"},
			Kind:      platformerrors.KindTransport,
			Execute:   initStreamStep,
		},
	}
}

func loadConfigStep(_ context.Context, app *App) error {
	loader := platformconfig.NewLoader().
		WithDotEnv(app.opts.DotEnv).
		WithPath(app.opts.ConfigPath).
		WithEnv(app.opts.Env)

	result, err := loader.Load()
	if err != nil {
		return err
	}
	if app.opts.Override != nil {
		app.opts.Override(result.Config)
		if err := result.Config.Validate(); err != nil {
			return err
		}
	}

	app.Config = result.Config
	app.ConfigPath = result.Path
	return nil
}

func initLoggingStep(_ context.Context, app *App) error {
	provider, err := platformlogging.New(platformlogging.Config{
		Level:    app.Config.Log.Level,
		Format:   app.Config.Log.Format,
		Dir:      app.Config.Log.Dir,
		Filename: app.Config.Log.File,
	})
	if err != nil {
		return err
	}

	app.logProvider = provider
	app.Logger = provider.Slog()

	source := app.ConfigPath
	if source == "" {
		source = "defaults"
	}
	app.Logger.Info("logging ready", slog.String("level", app.Config.Log.Level), slog.String("config", source))
	return nil
}

func setupObservabilityStep(ctx context.Context, app *App) error {
	provider, err := platformobservability.Setup(ctx, platformobservability.Config{
		Spans:   strings.EqualFold(app.Config.Log.Level, "debug"),
		Metrics: app.Config.Metrics.Enabled,
	}, app.Logger)
	if err != nil {
		return err
	}
	app.observabilityShutdown = provider.Shutdown
	app.Registry = provider.Registry
	app.Metrics = provider.Metrics
	return nil
}

func initStoreStep(ctx context.Context, app *App) error {
	sc := app.Config.Store
	store, err := kv.New(kv.Config{
		Driver:    sc.Driver,
		Namespace: sc.Namespace,
		Redis: &kv.RedisConfig{
			Addr:     sc.Redis.Addr,
			Username: sc.Redis.Username,
			Password: sc.Redis.Password,
			DB:       sc.Redis.DB,
			Prefix:   sc.Redis.Prefix,
		},
		SQLite: &kv.SQLiteConfig{DSN: sc.SQLite.DSN},
	}, kv.Dependencies{})
	if err != nil {
		return err
	}
	app.Store = store

	stats, err := store.Stats(ctx)
	if err != nil {
		_ = store.Close(ctx)
		app.Store = nil
		return err
	}
	app.Logger.Info("kv store ready", slog.String("driver", sc.Driver), slog.String("namespace", sc.Namespace), slog.Any("stats", stats))
	return nil
}

func initLifecycleStep(_ context.Context, app *App) error {
	app.Bus = evbus.New()
	monitor, err := lifecycle.NewMonitor(app.Bus, lifecycle.StateActive, app.Logger)
	if err != nil {
		return err
	}
	app.Lifecycle = monitor
	return nil
}

func initAPIClientStep(_ context.Context, app *App) error {
	client, err := api.New(api.Options{
		BaseURL: app.Config.API.BaseURL,
		Timeout: app.Config.API.Timeout,
		Store:   app.Store,
		Logger:  app.Logger,
	})
	if err != nil {
		return err
	}
	app.API = client
	return nil
}

func initProfileStep(_ context.Context, app *App) error {
	svc, err := profile.NewService(profile.Config{
		FreshnessParam:  app.Config.Sync.FreshnessParam,
		RefreshInterval: app.Config.Sync.RefreshInterval,
	}, profile.Dependencies{
		Store:      app.Store,
		Fetcher:    profile.NewHTTPFetcher(app.API),
		Foreground: app.Lifecycle,
		Logger:     app.Logger,
		Metrics:    app.Metrics,
	})
	if err != nil {
		return err
	}
	app.Profile = svc
	return nil
}

func initSessionStep(_ context.Context, app *App) error {
	svc, err := session.New(session.Dependencies{
		Backend: app.API,
		Store:   app.Store,
		Profile: app.Profile,
		Logger:  app.Logger,
	})
	if err != nil {
		return err
	}
	app.Session = svc
	return nil
}

func initAvatarStep(_ context.Context, app *App) error {
	uc := app.Config.Upload
	if uc.CloudName == "" {
		app.Logger.Info("avatar upload disabled: no cloud name configured")
		return nil
	}

	uploader, err := avatar.NewCloudinary(avatar.CloudinaryConfig{
		CloudName:    uc.CloudName,
		APIKey:       uc.APIKey,
		APISecret:    uc.APISecret,
		UploadPreset: uc.UploadPreset,
		Folder:       uc.Folder,
	})
	if err != nil {
		app.Logger.Warn("avatar upload disabled", slog.Any("error", err))
		return nil
	}

	svc, err := avatar.NewService(avatar.Dependencies{
		Uploader:     uploader,
		Backend:      app.API,
		Profile:      app.Profile,
		MaxDimension: uc.MaxDimension,
		Logger:       app.Logger,
	})
	if err != nil {
		return err
	}
	app.Avatar = svc
	return nil
}

func initStreamStep(_ context.Context, app *App) error {
	app.Stream = stream.NewBridge(app.Profile, app.Logger)
	return nil
}

func waitForShutdown(ctx context.Context, cancel context.CancelFunc, logger *slog.Logger, g *errgroup.Group) error {
	<-ctx.Done()
	logger.Info("shutting down", slog.Any("cause", context.Cause(ctx)))

	cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("service stopped with error", slog.Any("error", err))
			return err
		}
		logger.Info("all services stopped")
	case <-time.After(shutdownTimeout):
		logger.Error("shutdown timed out")
		return platformerrors.New(platformerrors.KindBootstrap, "bootstrap.shutdown", "shutdown timed out")
	}
	return nil
}
