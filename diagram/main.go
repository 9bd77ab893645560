package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gdamore/tcell/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/meikuraledutech/bpm"
	"github.com/meikuraledutech/bpm/config"
	"github.com/meikuraledutech/bpm/editor"
	"github.com/meikuraledutech/bpm/remote"
	"github.com/meikuraledutech/bpm/terminal"
)

type cli struct {
	cfg         config.Editor
	metricsAddr string
}

func setupFlags(cmd *cobra.Command, defaults *config.Editor) error {
	cmd.Flags().String("config-file", "", "Path to config file.")
	cmd.Flags().String("api-url", defaults.APIURL, "base URL of the process store API")
	cmd.Flags().Int64("tenant", defaults.TenantID, "tenant owning the process")
	cmd.Flags().Int64("process", defaults.ProcessID, "process to edit")
	cmd.Flags().Bool("read-only", defaults.ReadOnly, "open the diagram without editing rights")
	cmd.Flags().Duration("request-timeout", defaults.RequestTimeout, "timeout of each store request")
	cmd.Flags().Duration("role-cache-ttl", defaults.RoleCacheTTL, "how long the role list is cached")
	cmd.Flags().String("log-level", defaults.LogLevel, "debug, info, warn or error")
	cmd.Flags().String("log-file", defaults.LogFile, "file receiving logs; none when empty")
	cmd.Flags().String("metrics-addr", "", "serve editor metrics on this address when set")
	return viper.BindPFlags(cmd.Flags())
}

func (c *cli) setupConfig(cmd *cobra.Command, args []string) error {
	configFile, err := cmd.Flags().GetString("config-file")
	if err != nil {
		return err
	}
	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return err
			}
		}
	}

	c.cfg.APIURL = viper.GetString("api-url")
	c.cfg.TenantID = viper.GetInt64("tenant")
	c.cfg.ProcessID = viper.GetInt64("process")
	c.cfg.ReadOnly = viper.GetBool("read-only")
	c.cfg.RequestTimeout = viper.GetDuration("request-timeout")
	c.cfg.RoleCacheTTL = viper.GetDuration("role-cache-ttl")
	c.cfg.LogLevel = viper.GetString("log-level")
	c.cfg.LogFile = viper.GetString("log-file")
	c.metricsAddr = viper.GetString("metrics-addr")
	return c.cfg.Validate()
}

func (c *cli) logger() (*zap.Logger, error) {
	if c.cfg.LogFile == "" {
		return zap.NewNop(), nil
	}
	return config.NewLogger(c.cfg.LogLevel, c.cfg.LogFile)
}

func (c *cli) run(cmd *cobra.Command, args []string) error {
	logger, err := c.logger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	reg := prometheus.NewRegistry()
	if c.metricsAddr != "" {
		go func() {
			h := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
			if err := http.ListenAndServe(c.metricsAddr, h); err != nil {
				logger.Error("metrics listener failed", zap.Error(err))
			}
		}()
	}

	store := remote.New(c.cfg.APIURL, remote.Options{
		Timeout:      c.cfg.RequestTimeout,
		RoleCacheTTL: c.cfg.RoleCacheTTL,
		Logger:       logger,
	})

	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("failed to create screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("failed to initialize screen: %w", err)
	}
	defer screen.Fini()
	screen.EnableMouse()
	screen.Clear()

	app := terminal.New(screen, terminal.Options{Logger: logger})
	surface := editor.NewSurface(store, editor.StaticSession{
		Tenant:   c.cfg.TenantID,
		Process:  c.cfg.ProcessID,
		Editable: !c.cfg.ReadOnly,
	}, editor.SurfaceOptions{
		Notifier: app,
		Logger:   logger,
		Metrics:  editor.NewMetrics(reg),
		Placement: editor.Placement{
			Origin: bpm.Position{X: c.cfg.PlacementOriginX, Y: c.cfg.PlacementOriginY},
			Spread: bpm.Position{X: c.cfg.PlacementSpreadX, Y: c.cfg.PlacementSpreadY},
		},
		Seed:    uint64(c.cfg.ProcessID),
		Timeout: c.cfg.RequestTimeout,
		OnSelect: func(n bpm.Node) {
			logger.Debug("selected", zap.Stringer("node", n.Endpoint()))
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = app.Run(ctx, surface)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func main() {
	defaults, err := config.LoadEditor()
	if err != nil {
		log.Fatal(err)
	}
	cli := &cli{cfg: *defaults}

	cmd := &cobra.Command{
		Use:          "diagram",
		Short:        "Edit a business process diagram in the terminal",
		PreRunE:      cli.setupConfig,
		RunE:         cli.run,
		SilenceUsage: true,
	}

	if err := setupFlags(cmd, defaults); err != nil {
		log.Fatal(err)
	}

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
