// dashboard keeps a live view of the issue dashboard stream and relays it to
// local consumers over websocket and HTTP.
//
// Usage: go run ./cmd/dashboard --config configs/dashboard.example.yaml
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/issue-dashboard/internal/api"
	"github.com/rickgao/issue-dashboard/internal/config"
	"github.com/rickgao/issue-dashboard/internal/connection"
	"github.com/rickgao/issue-dashboard/internal/poller"
	"github.com/rickgao/issue-dashboard/internal/relay"
	"github.com/rickgao/issue-dashboard/internal/stream"
	"github.com/rickgao/issue-dashboard/internal/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("dashboard", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "path to config file (built-in defaults when empty)")
	verbose := flags.BoolP("verbose", "v", false, "debug logging, overrides log.level")
	showVersion := flags.Bool("version", false, "print version and exit")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if *showVersion {
		fmt.Println("dashboard", version.String())
		return nil
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadAndValidate(*configPath); err != nil {
			return err
		}
	}

	// Set up structured logging; the level can be hot reloaded.
	level := new(slog.LevelVar)
	applyLevel(level, cfg.Log, *verbose)
	logger := newLogger(os.Stdout, cfg.Log.Format, level)
	slog.SetDefault(logger)

	logger.Info("starting dashboard",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"transport", cfg.Stream.Transport,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	state := stream.NewState()

	hub := relay.NewHub(cfg.Relay.RecentEvents, cfg.Relay.SendBuffer, logger)
	detach := hub.Attach(state)
	defer detach()

	tr, err := connection.NewTransport(cfg.Stream.Transport, cfg.Stream.WSConfig(), logger)
	if err != nil {
		return fmt.Errorf("stream transport: %w", err)
	}
	mgr := connection.NewManager(connection.Config{
		BaseURL:        cfg.API.BaseURL,
		StreamURL:      cfg.Stream.URL,
		ReconnectDelay: cfg.Stream.ReconnectDelay,
	}, tr, state, connection.WithLogger(logger))

	// Initial paint from the REST endpoint, repeated while the stream is down.
	apiClient := api.NewClient(cfg.API.BaseURL,
		api.WithLogger(logger),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.MaxRetries, cfg.API.RetryBackoff),
	)
	p := poller.New(poller.Config{
		Interval: cfg.API.PollInterval,
		Timeout:  cfg.API.Timeout,
	}, apiClient, state, mgr, logger)

	srv := &http.Server{
		Addr:              cfg.Relay.ListenAddr,
		Handler:           relay.NewServer(hub, mgr, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return mgr.Run(gctx)
	})

	g.Go(func() error {
		logger.Info("starting relay server", "addr", cfg.Relay.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("relay server: %w", err)
		}
		return nil
	})

	if err := p.Start(gctx); err != nil {
		return fmt.Errorf("start poller: %w", err)
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		hub.Close()
		if err := p.Stop(shutdownCtx); err != nil {
			logger.Warn("poller stop", "error", err)
		}
		return srv.Shutdown(shutdownCtx)
	})

	if *configPath != "" {
		g.Go(func() error {
			err := config.Watch(gctx, *configPath, logger, func(c *config.Config) {
				applyLevel(level, c.Log, *verbose)
				logger.Info("log level applied", "level", level.Level())
			})
			if err != nil {
				logger.Warn("config watch disabled", "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		logStats(gctx, mgr, p, hub, logger)
		return nil
	})

	mgr.Start()
	logger.Info("dashboard running",
		"stream_url", connection.Config{BaseURL: cfg.API.BaseURL, StreamURL: cfg.Stream.URL}.URL(),
		"relay_url", fmt.Sprintf("ws://%s/ws/stream", cfg.Relay.ListenAddr),
	)

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("dashboard stopped")
	return nil
}

func newLogger(w io.Writer, format string, level slog.Leveler) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func applyLevel(v *slog.LevelVar, cfg config.LogConfig, verbose bool) {
	if verbose {
		v.Set(slog.LevelDebug)
		return
	}
	if l, err := cfg.SlogLevel(); err == nil {
		v.Set(l)
	}
}

func logStats(ctx context.Context, mgr *connection.Manager, p *poller.Poller, hub *relay.Hub, logger *slog.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := mgr.Stats()
			ps := p.Stats()
			logger.Info("stats",
				"phase", s.Phase,
				"opens", s.Opens,
				"reconnects", s.Reconnects,
				"frames_received", s.FramesReceived,
				"frames_malformed", s.FramesMalformed,
				"metrics_polls", ps.Polls,
				"metrics_poll_errors", ps.Errors,
				"relay_clients", hub.Count(),
			)
		}
	}
}
