package profile

import (
	"context"
	"log/slog"
	"time"

	"mindtracking-client/internal/domain/kv"
	"mindtracking-client/internal/platform/errors"
	"mindtracking-client/internal/platform/logging"
	"mindtracking-client/internal/platform/observability"
)

const (
	opLoadCache  = "load_cache"
	opLoadRemote = "load_remote"
	opUpdate     = "update"
	opClear      = "clear"
)

// ForegroundSource notifies when the app returns to the foreground.
type ForegroundSource interface {
	OnForeground(fn func()) (cancel func())
}

// Config tunes a Service.
type Config struct {
	// FreshnessParam is the query parameter carrying the freshness token. Default "t".
	FreshnessParam string
	// RefreshInterval drives Run. Zero disables periodic refresh.
	RefreshInterval time.Duration
}

// Dependencies are the collaborators of a Service. Store and Fetcher are required.
type Dependencies struct {
	Store      kv.Store
	Fetcher    Fetcher
	Foreground ForegroundSource
	Logger     *slog.Logger
	Metrics    *observability.Metrics
	Now        func() time.Time
}

// Service is the process-wide synchronizer: one snapshot, one registry.
type Service struct {
	cache      *Cache
	registry   *Registry
	fetcher    Fetcher
	foreground ForegroundSource
	tokens     *tokenSource
	param      string
	interval   time.Duration
	logger     *slog.Logger
	metrics    *observability.Metrics
}

func NewService(cfg Config, deps Dependencies) (*Service, error) {
	if deps.Store == nil {
		return nil, errors.New(errors.KindConfig, "profile.new_service", "store is required")
	}
	if deps.Fetcher == nil {
		return nil, errors.New(errors.KindConfig, "profile.new_service", "fetcher is required")
	}

	logger := logging.OrDefault(deps.Logger).With(slog.String("component", "profile"))
	param := cfg.FreshnessParam
	if param == "" {
		param = "t"
	}

	return &Service{
		cache:      NewCache(deps.Store, logger),
		registry:   NewRegistry(logger, deps.Metrics),
		fetcher:    deps.Fetcher,
		foreground: deps.Foreground,
		tokens:     newTokenSource(deps.Now),
		param:      param,
		interval:   cfg.RefreshInterval,
		logger:     logger,
		metrics:    deps.Metrics,
	}, nil
}

// Current returns the in-memory snapshot.
func (s *Service) Current() Snapshot {
	return s.cache.Current()
}

// Persisted reads the stored snapshot without adopting or publishing it. Both fields
// are returned even when only the name is stored.
func (s *Service) Persisted(ctx context.Context) Snapshot {
	return s.cache.ReadFromPersistent(ctx)
}

// Subscribe registers l for every published snapshot.
func (s *Service) Subscribe(l Listener) func() {
	return s.registry.Subscribe(l)
}

// Listeners returns the number of registered listeners.
func (s *Service) Listeners() int {
	return s.registry.Len()
}

// LoadFromCache reads the persisted snapshot. A cached photo is adopted and published;
// without one nothing changes, so a cold cache never blanks other consumers.
func (s *Service) LoadFromCache(ctx context.Context) (string, Result) {
	ctx, end := observability.StartSpan(ctx, "profile", opLoadCache)

	snap, err := s.cache.read(ctx)
	end(err)
	if err != nil {
		return "", s.fail(ctx, opLoadCache, err)
	}
	if snap.Photo == "" {
		return "", s.done(opLoadCache, unchanged(nil))
	}

	s.cache.set(snap)
	s.registry.Publish(snap)
	return snap.Photo, s.done(opLoadCache, updated(nil))
}

// LoadFromRemote fetches the authoritative profile, stores it and publishes it. The
// returned photo carries a fresh token; it is empty when the user has no photo or on
// failure. On failure the snapshot is left as it was.
func (s *Service) LoadFromRemote(ctx context.Context) (string, Result) {
	ctx, end := observability.StartSpan(ctx, "profile", opLoadRemote)

	start := time.Now()
	p, err := s.fetcher.FetchProfile(ctx)
	s.metrics.ObserveFetch(time.Since(start), err)
	end(err)
	if err != nil {
		return "", s.fail(ctx, opLoadRemote, err)
	}

	snap := Snapshot{Name: p.Name}
	if p.HasPhoto {
		snap.Photo = withFreshness(p.Photo, s.param, s.tokens.next())
	}

	werr := s.apply(ctx, snap)
	s.logger.DebugContext(ctx, "profile refreshed",
		slog.Bool("has_photo", p.HasPhoto),
		slog.Bool("has_name", p.HasName),
	)
	return snap.Photo, s.done(opLoadRemote, updated(werr))
}

// Update sets the photo locally right after an upload, keeping the current name. An
// empty url removes the photo.
func (s *Service) Update(ctx context.Context, url string) Result {
	ctx, end := observability.StartSpan(ctx, "profile", opUpdate)

	snap := Snapshot{Name: s.cache.Current().Name}
	if url != "" {
		snap.Photo = withFreshness(url, s.param, s.tokens.next())
	}

	werr := s.apply(ctx, snap)
	end(werr)
	return s.done(opUpdate, updated(werr))
}

// Clear empties the snapshot and removes both persisted keys. Used on logout.
func (s *Service) Clear(ctx context.Context) Result {
	ctx, end := observability.StartSpan(ctx, "profile", opClear)

	werr := s.apply(ctx, Snapshot{})
	end(werr)
	return s.done(opClear, updated(werr))
}

// Run refreshes from remote every RefreshInterval until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "periodic profile refresh started", slog.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.LoadFromRemote(ctx)
		}
	}
}

// apply sets, persists and publishes snap. Publishing happens even when the write
// fails: memory and listeners stay correct, the store catches up on the next change.
func (s *Service) apply(ctx context.Context, snap Snapshot) error {
	s.cache.set(snap)
	err := s.cache.write(ctx, snap)
	if err != nil {
		s.logger.WarnContext(ctx, "profile cache write failed", slog.Any("error", err))
		s.metrics.SyncFailure("persist", string(errors.KindOf(err)))
	}
	s.registry.Publish(snap)
	return err
}

func (s *Service) fail(ctx context.Context, op string, err error) Result {
	kind := errors.KindOf(err)
	s.logger.WarnContext(ctx, "profile sync failed",
		slog.String("op", op),
		slog.String("kind", string(kind)),
		slog.Any("error", err),
	)
	s.metrics.SyncFailure(op, string(kind))
	return s.done(op, unchanged(err))
}

func (s *Service) done(op string, r Result) Result {
	s.metrics.SyncOutcome(op, string(r.Outcome))
	return r
}
