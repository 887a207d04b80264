package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dashboard/internal/bootstrap"
	"dashboard/internal/engine"
	"dashboard/internal/models"

	"go.uber.org/zap"
)

var (
	ErrUnknownIndicator       = errors.New("indicator is not in the current metadata")
	ErrUnknownTab             = errors.New("unknown tab")
	ErrUnknownOrientation     = errors.New("unknown orientation")
	ErrOrientationUnavailable = errors.New("orientation control not available in this profile")
	ErrNotReady               = errors.New("dataset or indicator not loaded")
	ErrMounted                = errors.New("controller already mounted")
	ErrUnmounted              = errors.New("controller unmounted")
)

// Config carries the controller parameters besides the country code.
type Config struct {
	Anchor      string
	Profile     Profile
	Logger      *zap.Logger
	LoadTimeout time.Duration // per resource load; zero means none
}

// Controller owns the UI state of one mounted dashboard.
//
// Tab, indicator, orientation and sidebar state change only through the
// methods below. The dataset and metadata loads run on their own goroutines;
// a dataset load is keyed by a generation number and its result is dropped
// when a newer load (a country change) or an unmount supersedes it.
type Controller struct {
	anchor      string
	src         engine.Source
	profile     Profile
	logger      *zap.Logger
	loadTimeout time.Duration

	mu              sync.Mutex
	country         string
	tab             models.Tab
	indicator       *models.Option
	orientation     models.Orientation
	sidebarExpanded bool

	table         *engine.Table
	metadata      []models.Metadata
	datasetState  models.LoadState
	metadataState models.LoadState

	datasetGen    uint64
	cancelDataset context.CancelFunc

	ctx       context.Context
	cancel    context.CancelFunc
	mounted   bool
	unmounted bool
	pending   int
	idle      chan struct{}
}

// New creates an unmounted controller for country.
func New(country string, src engine.Source, cfg Config) (*Controller, error) {
	if !bootstrap.ValidCode(country) {
		return nil, fmt.Errorf("%w: %q", bootstrap.ErrInvalidCode, country)
	}
	if cfg.Profile.Name == "" {
		cfg.Profile = Explorer
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Anchor == "" {
		cfg.Anchor = country
	}
	tab := cfg.Profile.DefaultTab
	if !tab.Valid() {
		tab = models.TabMap
	}

	idle := make(chan struct{})
	close(idle)
	return &Controller{
		anchor:          cfg.Anchor,
		src:             src,
		profile:         cfg.Profile,
		logger:          cfg.Logger.With(zap.String("anchor", cfg.Anchor)),
		loadTimeout:     cfg.LoadTimeout,
		country:         country,
		tab:             tab,
		orientation:     models.Horizontal,
		sidebarExpanded: true,
		datasetState:    models.LoadState{Status: models.StatusLoading},
		metadataState:   models.LoadState{Status: models.StatusLoading},
		idle:            idle,
	}, nil
}

func (c *Controller) Anchor() string { return c.anchor }

func (c *Controller) Country() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.country
}

// Mount starts the dataset and metadata loads. The loads live until ctx is
// cancelled or Unmount is called.
func (c *Controller) Mount(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.unmounted:
		return ErrUnmounted
	case c.mounted:
		return ErrMounted
	}
	c.mounted = true
	c.ctx, c.cancel = context.WithCancel(ctx)

	c.logger.Info("mounting dashboard", zap.String("country", c.country), zap.String("profile", c.profile.Name))
	c.startDatasetLocked()
	c.startMetadataLocked()
	return nil
}

// Unmount cancels in-flight loads, waits for them to return and discards all
// state.
func (c *Controller) Unmount(ctx context.Context) error {
	c.mu.Lock()
	if c.unmounted {
		c.mu.Unlock()
		return nil
	}
	c.unmounted = true
	if c.cancel != nil {
		c.cancel()
	}
	c.table = nil
	c.metadata = nil
	c.indicator = nil
	c.mu.Unlock()

	c.logger.Info("unmounting dashboard")
	return c.Wait(ctx)
}

// Wait blocks until no load is in flight.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	idle := c.idle
	c.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetCountry switches the dashboard to another country, cancelling any
// dataset load still running for the previous one.
func (c *Controller) SetCountry(code string) error {
	if !bootstrap.ValidCode(code) {
		return fmt.Errorf("%w: %q", bootstrap.ErrInvalidCode, code)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unmounted {
		return ErrUnmounted
	}
	if code == c.country {
		return nil
	}
	c.logger.Info("country changed", zap.String("from", c.country), zap.String("to", code))
	c.country = code
	// the old table describes another country
	c.table = nil
	c.datasetState = models.LoadState{Status: models.StatusLoading}
	if c.mounted {
		c.startDatasetLocked()
	}
	return nil
}

func (c *Controller) SelectIndicator(value string) (models.Option, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	opt, ok := findOption(IndicatorOptions(c.metadata, c.profile.Descriptions), value)
	if !ok {
		return models.Option{}, fmt.Errorf("%w: %q", ErrUnknownIndicator, value)
	}
	c.indicator = &opt
	return opt, nil
}

func (c *Controller) SetTab(tab models.Tab) error {
	if !tab.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownTab, tab)
	}
	c.mu.Lock()
	c.tab = tab
	c.mu.Unlock()
	return nil
}

// ToggleSidebar flips the settings sidebar and returns the new state.
func (c *Controller) ToggleSidebar() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sidebarExpanded = !c.sidebarExpanded
	return c.sidebarExpanded
}

func (c *Controller) SetOrientation(o models.Orientation) error {
	if !c.profile.OrientationControl {
		return ErrOrientationUnavailable
	}
	if !o.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownOrientation, o)
	}
	c.mu.Lock()
	c.orientation = o
	c.mu.Unlock()
	return nil
}

// Options returns the current indicator options.
func (c *Controller) Options() []models.Option {
	c.mu.Lock()
	defer c.mu.Unlock()
	return IndicatorOptions(c.metadata, c.profile.Descriptions)
}

// Ranking ranks the regions by the selected indicator.
func (c *Controller) Ranking() (*models.Ranking, error) {
	c.mu.Lock()
	table, ind := c.table, c.indicator
	c.mu.Unlock()
	if table == nil || ind == nil {
		return nil, ErrNotReady
	}
	return engine.Rank(table, engine.RegionColumn, ind.Value)
}

// Render maps the current state onto the view handed to the widget shell.
func (c *Controller) Render() models.View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := models.View{
		Anchor:          c.anchor,
		Country:         c.country,
		Profile:         c.profile.Name,
		Tab:             c.tab,
		Tabs:            models.Tabs,
		Options:         IndicatorOptions(c.metadata, c.profile.Descriptions),
		SidebarExpanded: c.sidebarExpanded,
		Dataset:         c.datasetState,
		Metadata:        c.metadataState,
	}
	if c.indicator != nil {
		ind := *c.indicator
		v.Indicator = &ind
	}
	if c.profile.OrientationControl {
		v.Orientation = c.orientation
		v.Orientations = []models.Orientation{models.Horizontal, models.Vertical}
	}
	if c.table != nil && c.indicator != nil && !c.table.Has(c.indicator.Value) {
		v.Warnings = append(v.Warnings, fmt.Sprintf("dataset has no column %q for indicator %q", c.indicator.Value, c.indicator.Label))
	}
	v.Body = renderBody(frame{
		tab:         c.tab,
		indicator:   c.indicator,
		orientation: c.orientation,
		profile:     c.profile,
		table:       c.table,
		dataset:     c.datasetState,
	})
	return v
}

// --- LOADS ---

func (c *Controller) loadContext() (context.Context, context.CancelFunc) {
	if c.loadTimeout > 0 {
		return context.WithTimeout(c.ctx, c.loadTimeout)
	}
	return context.WithCancel(c.ctx)
}

func (c *Controller) beginLocked() {
	if c.pending == 0 {
		c.idle = make(chan struct{})
	}
	c.pending++
}

func (c *Controller) endLocked() {
	c.pending--
	if c.pending == 0 {
		close(c.idle)
	}
}

func (c *Controller) startDatasetLocked() {
	if c.cancelDataset != nil {
		c.cancelDataset()
	}
	c.datasetGen++
	gen, code := c.datasetGen, c.country
	ctx, cancel := c.loadContext()
	c.cancelDataset = cancel
	c.beginLocked()

	go func() {
		defer cancel()
		t0 := time.Now()
		table, err := engine.FetchTable(ctx, c.src, code)
		c.finishDataset(gen, code, table, err, time.Since(t0))
	}()
}

func (c *Controller) finishDataset(gen uint64, code string, table *engine.Table, err error, took time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.endLocked()

	log := c.logger.With(zap.String("country", code))
	switch {
	case c.unmounted:
		return
	case gen != c.datasetGen:
		log.Debug("discarding superseded dataset load", zap.Uint64("generation", gen))
		return
	case err != nil:
		log.Error("error loading data", zap.Error(err))
		c.datasetState = models.LoadState{Status: models.StatusError, Error: err.Error()}
		return
	}
	c.table = table
	c.datasetState = models.LoadState{Status: models.StatusReady}
	log.Info("dataset loaded", zap.Int("rows", table.Len()), zap.Int("columns", len(table.Columns)), zap.Duration("took", took))
	c.checkSchemaLocked()
}

func (c *Controller) startMetadataLocked() {
	ctx, cancel := c.loadContext()
	c.beginLocked()

	go func() {
		defer cancel()
		meta, err := engine.FetchMetadata(ctx, c.src)
		c.finishMetadata(meta, err)
	}()
}

func (c *Controller) finishMetadata(meta []models.Metadata, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.endLocked()

	if c.unmounted {
		return
	}
	if err != nil {
		c.logger.Error("error loading metadata", zap.Error(err))
		c.metadataState = models.LoadState{Status: models.StatusError, Error: err.Error()}
		return
	}
	c.metadata = meta
	c.metadataState = models.LoadState{Status: models.StatusReady}
	c.logger.Info("metadata loaded", zap.Int("indicators", len(meta)))

	if opt, ok := defaultOption(meta, c.profile.DefaultIndicator, c.profile.Descriptions); ok {
		c.indicator = &opt
	} else {
		c.logger.Info("default indicator not in metadata", zap.String("indicator", c.profile.DefaultIndicator))
	}
	c.checkSchemaLocked()
}

// checkSchemaLocked warns once both resources are present about indicators
// whose column the dataset lacks.
func (c *Controller) checkSchemaLocked() {
	if c.table == nil || c.metadata == nil {
		return
	}
	keys := make([]string, len(c.metadata))
	for i, m := range c.metadata {
		keys[i] = string(m.DataKey)
	}
	if missing := c.table.Missing(keys...); len(missing) > 0 {
		c.logger.Warn("dataset lacks indicator columns",
			zap.String("country", c.country),
			zap.Strings("columns", missing))
	}
}
