// streamtail connects to the dashboard stream and prints decoded updates to
// the console.
// Usage: go run ./cmd/streamtail --url http://localhost:8080/api/v1/dashboard
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/rickgao/issue-dashboard/internal/config"
	"github.com/rickgao/issue-dashboard/internal/connection"
	"github.com/rickgao/issue-dashboard/internal/model"
	"github.com/rickgao/issue-dashboard/internal/stream"
)

func main() {
	flags := pflag.NewFlagSet("streamtail", pflag.ExitOnError)
	configPath := flags.StringP("config", "c", "", "path to config file")
	baseURL := flags.String("url", "", "dashboard API base URL (overrides config)")
	transport := flags.String("transport", "", "sse or websocket (overrides config)")
	verbose := flags.BoolP("verbose", "v", false, "print full message JSON")
	flags.Parse(os.Args[1:])

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadWithDefaults(*configPath); err != nil {
			logger.Error("failed to load config", "error", err)
			os.Exit(1)
		}
	}
	if *baseURL != "" {
		cfg.API.BaseURL = *baseURL
	}
	if *transport != "" {
		cfg.Stream.Transport = *transport
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	state := stream.NewState()
	state.SubscribePhase(func(p model.ConnectionPhase) {
		fmt.Printf("[PHASE] %s\n", p)
	})
	state.SubscribeMetrics(func(m model.MetricsSnapshot) {
		if *verbose {
			printJSON("METRICS", m)
			return
		}
		fmt.Printf("[METRICS] total=%d open=%d resolved=%d closed=%d at=%s\n",
			m.TotalIssues, m.OpenIssues, m.ResolvedIssues, m.ClosedIssues, m.Timestamp.Format(time.RFC3339))
	})
	state.SubscribeEvents(func(e model.IssueEvent) {
		if *verbose {
			printJSON("EVENT", e)
			return
		}
		fmt.Printf("[EVENT] issue=%s type=%s status=%s category=%s priority=%d\n",
			e.IssueID, e.EventType, e.Status, e.Category, e.Priority)
	})

	tr, err := connection.NewTransport(cfg.Stream.Transport, cfg.Stream.WSConfig(), logger)
	if err != nil {
		logger.Error("invalid transport", "error", err)
		os.Exit(1)
	}

	mgr := connection.NewManager(connection.Config{
		BaseURL:        cfg.API.BaseURL,
		StreamURL:      cfg.Stream.URL,
		ReconnectDelay: cfg.Stream.ReconnectDelay,
	}, tr, state, connection.WithLogger(logger))

	done := make(chan error, 1)
	go func() { done <- mgr.Run(ctx) }()
	mgr.Start()

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s := mgr.Stats()
				logger.Info("stats",
					"phase", s.Phase,
					"channel_id", s.ChannelID,
					"frames_received", s.FramesReceived,
					"frames_malformed", s.FramesMalformed,
					"frames_ignored", s.FramesIgnored,
					"reconnects", s.Reconnects,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")

	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("stream manager", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func printJSON(tag string, v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Printf("[%s] %s\n", tag, data)
}
