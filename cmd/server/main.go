package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"dashboard/internal/api"
	"dashboard/internal/bootstrap"
	"dashboard/internal/config"
	"dashboard/internal/dashboard"
	"dashboard/internal/engine"
	"dashboard/internal/logging"
	"dashboard/internal/models"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var (
	// Global flags
	configPath string
	addr       string
	dataDir    string
	dataURL    string
	country    string
	page       string
	profile    string
	logLevel   string
	devLogs    bool

	// render flags
	renderTab         string
	renderIndicator   string
	renderOrientation string
	renderWait        time.Duration

	// config init flags
	forceInit bool

	logger *zap.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Country indicator dashboard service",
	Long: `Serves the country indicator dashboard.

At startup the country code is taken from --country or from the id of the
anchor element (class "sub-sdg" by default) in the host page, and a dashboard
is mounted for it. Further dashboards can be mounted through the HTTP API.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		applyFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		logger, err = logging.New(cfg.Logging.Level, cfg.Logging.Development)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runServe,
}

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Load a dashboard once and print its rendered view as JSON",
	RunE:  runRender,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the effective configuration to --config",
	Long: `Writes the configuration in effect (defaults, then the existing file,
environment and flags) to the --config path as YAML.`,
	RunE: runConfigInit,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "dashboard.yaml", "config file (YAML)")
	pf.StringVar(&addr, "addr", "", "listen address")
	pf.StringVar(&dataDir, "data-dir", "", "directory holding {code}.csv and meta.json")
	pf.StringVar(&dataURL, "data-url", "", "base URL serving /data/{code}.csv and /data/meta.json")
	pf.StringVar(&country, "country", "", "country code to mount (skips the page scan)")
	pf.StringVar(&page, "page", "", "host HTML page holding the anchor element")
	pf.StringVar(&profile, "profile", "", "dashboard profile: explorer or compact")
	pf.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	pf.BoolVar(&devLogs, "dev", false, "human readable development logs")

	renderCmd.Flags().StringVar(&renderTab, "tab", string(models.TabRanks), "tab to render")
	renderCmd.Flags().StringVar(&renderIndicator, "indicator", "", "indicator data key (default: profile default)")
	renderCmd.Flags().StringVar(&renderOrientation, "orientation", "", "bar layout orientation")
	renderCmd.Flags().DurationVar(&renderWait, "wait", 30*time.Second, "how long to wait for the loads")

	configInitCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "overwrite an existing file")

	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(renderCmd, configCmd)
}

func applyFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("addr") {
		c.Server.Addr = addr
	}
	if flags.Changed("data-dir") {
		c.Data.Dir = dataDir
	}
	if flags.Changed("data-url") {
		c.Data.BaseURL = dataURL
	}
	if flags.Changed("country") {
		c.Bootstrap.Country = country
	}
	if flags.Changed("page") {
		c.Bootstrap.Page = page
	}
	if flags.Changed("profile") {
		c.Dashboard.Profile = profile
	}
	if flags.Changed("log-level") {
		c.Logging.Level = logLevel
	}
	if flags.Changed("dev") {
		c.Logging.Development = devLogs
	}
}

// newRegistry builds the resource source and the registry from cfg.
func newRegistry() (*dashboard.Registry, error) {
	prof, err := dashboard.ProfileByName(cfg.Dashboard.Profile)
	if err != nil {
		return nil, err
	}
	if cfg.Dashboard.DefaultIndicator != "" {
		prof.DefaultIndicator = cfg.Dashboard.DefaultIndicator
	}
	loadTimeout, err := cfg.LoadTimeout()
	if err != nil {
		return nil, err
	}

	var src engine.Source
	if cfg.Data.BaseURL != "" {
		timeout, err := cfg.DataTimeout()
		if err != nil {
			return nil, err
		}
		src = engine.NewHTTPSource(cfg.Data.BaseURL, timeout)
		logger.Info("reading data over HTTP", zap.String("base_url", cfg.Data.BaseURL))
	} else {
		src = engine.NewDirSource(cfg.Data.Dir)
		logger.Info("reading data from directory", zap.String("dir", cfg.Data.Dir))
	}

	return dashboard.NewRegistry(src, dashboard.Config{
		Profile:     prof,
		Logger:      logger.Named("dashboard"),
		LoadTimeout: loadTimeout,
	}), nil
}

func resolveCountry() (string, bool) {
	code, err := bootstrap.Resolve(cfg.Bootstrap.Country, cfg.Bootstrap.Page, cfg.Bootstrap.MarkerClass)
	if err != nil {
		logger.Error("Error: No country div found.",
			zap.String("page", cfg.Bootstrap.Page),
			zap.String("marker_class", cfg.Bootstrap.MarkerClass),
			zap.Error(err))
		return "", false
	}
	return code, true
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg, err := newRegistry()
	if err != nil {
		return err
	}

	// 1. Mount the page's dashboard; loads run in the background and the
	// view reports "loading" until they finish.
	mounted := ""
	if code, ok := resolveCountry(); ok {
		if _, err := reg.Mount(code, code); err != nil {
			logger.Error("mount failed", zap.String("country", code), zap.Error(err))
		} else {
			mounted = code
		}
	}

	// 2. HTTP API
	serveDir := ""
	if cfg.Server.ServeData && cfg.Data.BaseURL == "" {
		serveDir = cfg.Data.Dir
	}
	e := api.NewServer(reg, logger.Named("http"), serveDir)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server ready", zap.String("addr", cfg.Server.Addr))
		if err := e.Start(cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// 3. Page watcher: a rewritten anchor switches the mounted dashboard's
	// country, or mounts one if the first scan found nothing.
	if cfg.Bootstrap.Watch && cfg.Bootstrap.Country == "" && cfg.Bootstrap.Page != "" {
		w, err := bootstrap.NewWatcher(cfg.Bootstrap.Page, cfg.Bootstrap.MarkerClass, mounted, logger.Named("bootstrap"), func(code string) {
			if mounted == "" {
				if _, err := reg.Mount(code, code); err != nil {
					logger.Error("mount failed", zap.String("country", code), zap.Error(err))
					return
				}
				mounted = code
				return
			}
			ctrl, err := reg.Get(mounted)
			if err != nil {
				logger.Warn("mounted dashboard gone", zap.String("anchor", mounted), zap.Error(err))
				return
			}
			if err := ctrl.SetCountry(code); err != nil {
				logger.Error("country switch failed", zap.String("country", code), zap.Error(err))
			}
		})
		if err != nil {
			logger.Warn("page watch disabled", zap.Error(err))
		} else {
			g.Go(func() error {
				w.Run(gctx)
				return nil
			})
		}
	}

	// 4. Shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := e.Shutdown(sctx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
		return reg.Close(sctx)
	})

	return g.Wait()
}

func runRender(cmd *cobra.Command, args []string) error {
	reg, err := newRegistry()
	if err != nil {
		return err
	}
	defer reg.Close(context.Background())

	code, ok := resolveCountry()
	if !ok {
		return errors.New("no country to render")
	}
	ctrl, err := reg.Mount(code, code)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), renderWait)
	defer cancel()
	if err := ctrl.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for loads: %w", err)
	}

	if err := ctrl.SetTab(models.Tab(renderTab)); err != nil {
		return err
	}
	if renderIndicator != "" {
		if _, err := ctrl.SelectIndicator(renderIndicator); err != nil {
			return err
		}
	}
	if renderOrientation != "" {
		if err := ctrl.SetOrientation(models.Orientation(renderOrientation)); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(ctrl.Render())
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(configPath); err == nil && !forceInit {
		return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
	}
	// Load resolves relative paths against the file's directory
	out := *cfg
	base := filepath.Dir(configPath)
	out.Data.Dir = relativeTo(base, cfg.Data.Dir)
	out.Bootstrap.Page = relativeTo(base, cfg.Bootstrap.Page)
	if err := out.Save(configPath); err != nil {
		return err
	}
	logger.Info("config written", zap.String("path", configPath))
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", configPath)
	return nil
}

// relativeTo rewrites a working-directory path relative to base.
func relativeTo(base, path string) string {
	if path == "" {
		return ""
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	absBase, err := filepath.Abs(base)
	if err != nil {
		return absPath
	}
	if rel, err := filepath.Rel(absBase, absPath); err == nil {
		return rel
	}
	return absPath
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
