package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"dashboard/internal/engine"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrAlreadyMounted = errors.New("anchor already mounted")
	ErrNotMounted     = errors.New("anchor not mounted")
	ErrClosed         = errors.New("registry closed")
)

// Registry holds one controller per anchor element.
type Registry struct {
	src    engine.Source
	cfg    Config
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	mounts map[string]*Controller
	closed bool
}

// NewRegistry creates a registry whose controllers share src and cfg.
// cfg.Anchor is ignored.
func NewRegistry(src engine.Source, cfg Config) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		src:    src,
		cfg:    cfg,
		logger: cfg.Logger,
		ctx:    ctx,
		cancel: cancel,
		mounts: make(map[string]*Controller),
	}
}

// Mount creates and mounts a controller for country into anchor. An empty
// anchor gets a generated one.
func (r *Registry) Mount(anchor, country string) (*Controller, error) {
	if anchor == "" {
		anchor = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	if _, exists := r.mounts[anchor]; exists {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyMounted, anchor)
	}

	cfg := r.cfg
	cfg.Anchor = anchor
	c, err := New(country, r.src, cfg)
	if err != nil {
		return nil, err
	}
	if err := c.Mount(r.ctx); err != nil {
		return nil, err
	}
	r.mounts[anchor] = c
	return c, nil
}

func (r *Registry) Get(anchor string) (*Controller, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.mounts[anchor]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotMounted, anchor)
	}
	return c, nil
}

// Unmount removes the anchor's controller and waits for its loads to stop.
func (r *Registry) Unmount(ctx context.Context, anchor string) error {
	r.mu.Lock()
	c, ok := r.mounts[anchor]
	delete(r.mounts, anchor)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotMounted, anchor)
	}
	return c.Unmount(ctx)
}

// Anchors lists mounted anchors, sorted.
func (r *Registry) Anchors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.mounts))
	for a := range r.mounts {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Close unmounts every controller concurrently.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	mounts := r.mounts
	r.mounts = make(map[string]*Controller)
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range mounts {
		g.Go(func() error {
			return c.Unmount(gctx)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	r.logger.Info("registry closed", zap.Int("unmounted", len(mounts)))
	return nil
}
