package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/proxyshape"
	"github.com/aretw0/proxyshape/pkg/adapters/file"
	"github.com/aretw0/proxyshape/pkg/adapters/memory"
	"github.com/aretw0/proxyshape/pkg/adapters/redis"
	"github.com/aretw0/proxyshape/pkg/domain"
	"github.com/aretw0/proxyshape/pkg/persistence/middleware"
	"github.com/aretw0/proxyshape/pkg/ports"
	"github.com/aretw0/proxyshape/pkg/session"
)

// Workspace is a proxy rebuilt from its stage and last snapshot, registered
// with a session manager backed by the configured store.
type Workspace struct {
	Proxy   *proxyshape.Proxy
	Host    *memory.Host
	Stage   *memory.Stage
	Manager *session.Manager
	Store   ports.SnapshotStore
	Logger  *slog.Logger

	closers []func() error
}

// OpenStore creates the snapshot store and, for redis, a distributed locker.
// The store seals snapshots when an encryption key is configured.
func OpenStore(opts Options) (ports.SnapshotStore, ports.DistributedLocker, func() error, error) {
	enc, err := opts.Encryption()
	if err != nil {
		return nil, nil, nil, err
	}
	var mws []middleware.Middleware
	if enc != nil {
		mw, err := middleware.NewEncryptionMiddleware(*enc)
		if err != nil {
			return nil, nil, nil, err
		}
		mws = append(mws, mw)
	}

	switch opts.Store {
	case StoreMemory:
		return middleware.Chain(memory.NewStore(), mws...), nil, func() error { return nil }, nil
	case StoreRedis:
		store, err := redis.NewFromURL(opts.RedisURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		locker := redis.NewLocker(store.Client(), "proxyshape:")
		return middleware.Chain(store, mws...), locker, store.Close, nil
	default:
		return middleware.Chain(file.New(opts.SnapshotDir()), mws...), nil, func() error { return nil }, nil
	}
}

// Open builds the workspace for opts. A saved snapshot for the proxy is
// restored when present.
func Open(ctx context.Context, opts Options, logger *slog.Logger, hooks ...domain.LifecycleHooks) (*Workspace, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.StagePath == "" {
		return nil, fmt.Errorf("--stage is required")
	}
	stage, err := memory.LoadStageFile(opts.StagePath)
	if err != nil {
		return nil, err
	}

	store, locker, closeStore, err := OpenStore(opts)
	if err != nil {
		return nil, err
	}

	host := memory.NewHost()
	proxyOpts := []proxyshape.Option{
		proxyshape.WithLogger(logger),
		proxyshape.WithHostSelection(host),
	}
	for _, h := range hooks {
		proxyOpts = append(proxyOpts, proxyshape.WithLifecycleHooks(h))
	}
	p, err := proxyshape.New(opts.ProxyID, stage, host, proxyOpts...)
	if err != nil {
		closeStore()
		return nil, err
	}

	mgrOpts := []session.Option{session.WithLogger(logger)}
	if locker != nil {
		mgrOpts = append(mgrOpts, session.WithLocker(locker))
	}
	mgr := session.NewManager(store, mgrOpts...)
	if err := mgr.Register(p); err != nil {
		closeStore()
		return nil, err
	}

	w := &Workspace{
		Proxy:   p,
		Host:    host,
		Stage:   stage,
		Manager: mgr,
		Store:   store,
		Logger:  logger,
		closers: []func() error{closeStore},
	}

	switch err := mgr.Load(ctx, p.ID()); {
	case err == nil:
		logger.Info("snapshot restored", "proxy_id", p.ID())
	case errors.Is(err, domain.ErrSnapshotNotFound):
		logger.Debug("no snapshot, starting empty", "proxy_id", p.ID())
	default:
		w.Close()
		return nil, fmt.Errorf("failed to restore snapshot: %w", err)
	}
	return w, nil
}

// Commit saves the proxy's snapshot.
func (w *Workspace) Commit(ctx context.Context) error {
	return w.Manager.Save(ctx, w.Proxy.ID())
}

// Close releases the proxy and the store.
func (w *Workspace) Close() error {
	var errs []error
	errs = append(errs, w.Proxy.Close())
	for _, c := range w.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
