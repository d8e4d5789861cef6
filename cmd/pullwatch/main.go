package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"

	"github.com/ldevineau/pullwatch/internal/config"
	"github.com/ldevineau/pullwatch/internal/event"
	"github.com/ldevineau/pullwatch/internal/gh"
	"github.com/ldevineau/pullwatch/internal/logging"
	"github.com/ldevineau/pullwatch/internal/scheduler"
	"github.com/ldevineau/pullwatch/internal/storage"
	"github.com/ldevineau/pullwatch/internal/store"
	"github.com/ldevineau/pullwatch/internal/tui"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	noTUI := flag.Bool("no-tui", false, "disable TUI mode")
	flag.Parse()

	// Optional .env next to the binary; the config substitutes ${VARS}.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	enableTUI := !*noTUI && os.Getenv("PULLWATCH_TUI") != "0" &&
		isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd())

	logger, logCloser, err := logging.Setup(cfg.LogFile, cfg.Log.Level, enableTUI)
	if err != nil {
		fmt.Fprintf(os.Stderr, "setup logger: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	if err := run(cfg, logger, enableTUI); err != nil {
		logger.Error("fatal", "err", err)
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, enableTUI bool) error {
	client, err := gh.NewClient(cfg.Token, logger)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.StateFile), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	persist, err := storage.Open(cfg.StateFile, logger)
	if err != nil {
		return err
	}
	defer persist.Close()

	bus := event.NewBus()

	// Subscribe before any store activity so nothing is missed; the TUI or
	// the headless sink drains this channel.
	events, cancel := bus.Subscribe(64)
	defer cancel()

	st := store.New(client, persist, bus, logger,
		store.WithStaleAfter(cfg.StaleAfter),
		store.WithDependenciesLabel(cfg.DepsLabel),
		store.WithSortBy(cfg.Sort),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := st.Connect(ctx); err != nil {
		return err
	}
	st.Initialize()
	defer st.Shutdown()

	sched := scheduler.New(st, cfg.PollTick, cfg.RefreshDelay, logger)
	go func() {
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("scheduler error", "err", err)
		}
	}()

	if enableTUI {
		m := tui.NewModel(st, client, events)
		p := tea.NewProgram(m, tea.WithAltScreen())

		// Quit the TUI on SIGINT/SIGTERM as well.
		go func() {
			<-ctx.Done()
			p.Send(tea.Quit())
		}()

		if _, err := p.Run(); err != nil {
			return fmt.Errorf("tui: %w", err)
		}
		return nil
	}

	logger.Info("pullwatch running (headless)", "user", st.User().Login)
	drainEvents(ctx, events, logger)
	return nil
}

// drainEvents is the headless stand-in for the TUI: it logs the event feed
// until shutdown.
func drainEvents(ctx context.Context, events <-chan event.Event, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			switch e := e.(type) {
			case event.StatusMessage:
				logger.Info(e.Message)
			case event.PullRequestsUpdated:
				logger.Info("pull requests updated", "count", len(e.PullRequests), "last_check", e.LastCheck)
			case event.OrganizationsUpdated:
				logger.Info("organizations updated", "count", len(e.Organizations))
			case event.ConnectionChanged:
				logger.Info("connection changed", "connected", e.IsConnected)
			case event.FilterToggled:
				logger.Info("filter toggled", "kind", e.FilterKind, "value", e.Value, "active", e.Active)
			}
		}
	}
}
