package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"livewatch/internal/gallery"
	"livewatch/internal/holodex"
	"livewatch/internal/platform/config"
	"livewatch/internal/platform/logger"
	"livewatch/internal/platform/metrics"
	"livewatch/internal/presence"
	"livewatch/internal/site"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:          "livewatch",
		Short:        "Fan-art page with the tracked channel's live status",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// A missing .env is fine; system env and defaults apply.
			_ = config.Load(envFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), config.FromEnv())
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and the presence refresher",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), config.FromEnv())
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Fetch the channel once and print its presence as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := config.FromEnv()
			if err := s.Validate(); err != nil {
				return err
			}
			log := logger.NewWithWriter(cmd.ErrOrStderr(), s.LogLevel, s.LogFormat)
			return check(cmd.Context(), newHolodexClient(s, log, nil), s.ChannelID, cmd.OutOrStdout())
		},
	})

	return root
}

func newHolodexClient(s config.Settings, log *slog.Logger, met *metrics.Metrics) *holodex.Client {
	cfg := holodex.Config{
		BaseURL:         s.HolodexBaseURL,
		APIKey:          s.HolodexAPIKey,
		Timeout:         s.HolodexTimeout,
		BreakerFailures: uint(s.BreakerFailures),
		BreakerDelay:    s.BreakerDelay,
	}
	if met != nil {
		cfg.OnBreakerChange = met.SetBreakerState
	}
	return holodex.NewClient(cfg, nil, log)
}

func serve(ctx context.Context, s config.Settings) error {
	log := logger.New(s.LogLevel, s.LogFormat)

	if err := s.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		return err
	}

	catalog, err := gallery.LoadCatalog(s.ArtCatalog)
	if err != nil {
		log.Error("art catalog", "error", err)
		return err
	}

	met := metrics.New(presence.Kinds)
	client := newHolodexClient(s, log, met)
	sched := presence.NewScheduler(client, presence.NewCache(), presence.SchedulerConfig{
		ChannelID:  s.ChannelID,
		Interval:   s.RefreshInterval,
		StaleAfter: s.StalenessThreshold,
	}, log, met)

	channelURL := s.ChannelURL
	if channelURL == "" {
		channelURL = "https://www.youtube.com/channel/" + s.ChannelID + "/streams"
	}
	page, err := site.NewHandler(site.Config{
		Title:      s.SiteTitle,
		ChannelURL: channelURL,
		ImagesDir:  s.ImagesDir,
		StaticDir:  s.StaticDir,
	}, sched.Cache(), catalog, log)
	if err != nil {
		return fmt.Errorf("page templates: %w", err)
	}

	r := newRouter(log, met, sched, presence.NewHandler(sched, s.OnDemandRefresh, log), page)

	addr := ":" + s.Port
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if s.OnDemandRefresh {
		// No background timer; warm the cache once and let /api refresh it.
		g.Go(func() error {
			_, _ = sched.Refresh(gctx)
			return nil
		})
	} else {
		g.Go(func() error { return sched.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, draining connections")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	log.Info("server starting",
		"port", s.Port,
		"channel_id", s.ChannelID,
		"refresh_interval", s.RefreshInterval.String(),
		"staleness_threshold", s.StalenessThreshold.String(),
		"on_demand_refresh", s.OnDemandRefresh,
		"artworks", catalog.Len(),
		"log_level", s.LogLevel,
	)

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", "error", err)
		return err
	}

	log.Info("server stopped")
	return nil
}
