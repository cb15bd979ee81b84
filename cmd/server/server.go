package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/paularlott/cli"

	"github.com/jlauha/seuranta/internal/api"
	"github.com/jlauha/seuranta/internal/config"
	"github.com/jlauha/seuranta/internal/lease"
	"github.com/jlauha/seuranta/internal/log"
	"github.com/jlauha/seuranta/internal/mcp"
	"github.com/jlauha/seuranta/internal/notify"
	"github.com/jlauha/seuranta/internal/presence"
	"github.com/jlauha/seuranta/internal/storage"
)

// Command returns the server subcommand.
func Command() *cli.Command {
	return &cli.Command{
		Name:        "server",
		Usage:       "Start the seuranta server",
		Description: "Start the HTTP server with the lease poller, presence API, and MCP endpoint",
		Flags:       config.GetFlags(),
		Run: func(ctx context.Context, cmd *cli.Command) error {
			opts := &config.Config{
				DataDir:         cmd.GetString("data-dir"),
				ListenAddr:      cmd.GetString("addr"),
				PollerEnabled:   cmd.GetBool("poller-enabled"),
				LeaseEndpoint:   cmd.GetString("lease-endpoint"),
				NotifierEnabled: cmd.GetBool("notifier-enabled"),
				NotifierURL:     cmd.GetString("notifier-url"),
				NotifierAPIKey:  cmd.GetString("notifier-api-key"),
				APIAuthToken:    cmd.GetString("api-token"),
				MCPAuthToken:    cmd.GetString("mcp-token"),
			}
			if v := cmd.GetString("poll-interval"); v != "" {
				interval, err := time.ParseDuration(v)
				if err != nil {
					return err
				}
				opts.PollInterval = interval
			}

			cfg, err := config.Load(opts)
			if err != nil {
				log.Error("Invalid configuration", "error", err)
				return err
			}

			log.Info("Configuration loaded", "source", cfg.String(), "data_dir", cfg.DataDir, "listen_addr", cfg.ListenAddr)

			return Run(cfg)
		},
	}
}

// Run wires the components together and serves until interrupted.
// Construction order: storage, cache, engine, notifier, poller, handlers.
func Run(cfg *config.Config) error {
	store, err := storage.NewStorage(cfg.DataDir)
	if err != nil {
		log.Error("Failed to initialize storage", "error", err)
		return err
	}
	defer store.Close()
	log.Info("Storage initialized", "backend", "SQLite", "path", store.GetDatabasePath())

	cache := lease.NewCache()
	engine := presence.NewEngine(store, cache)

	var notifier *notify.Notifier
	if cfg.NotifierEnabled {
		notifier = notify.New(cfg.NotifierURL, cfg.NotifierAPIKey)
		log.Info("Notifier enabled", "url", cfg.NotifierURL)
	}

	var poller *lease.Poller
	if cfg.PollerEnabled {
		poller = lease.NewPoller(cfg.LeaseEndpoint, cache, lease.PollerOptions{
			Interval:       cfg.PollInterval,
			FetchTimeout:   cfg.FetchTimeout,
			ConnectTimeout: cfg.ConnectTimeout,
			OnCycle:        presenceHook(engine, notifier),
		})
		poller.Start()
		defer func() {
			poller.Stop()
			log.Info("Lease poller stopped")
		}()
	} else {
		log.Info("Lease poller disabled; presence will stay empty until leases arrive by other means")
	}

	apiHandler := api.NewHandler(engine, store, cache)
	mcpServer := mcp.NewServer(engine, store, cfg.MCPAuthToken)

	mux := http.NewServeMux()
	apiHandler.RegisterRoutes(mux)
	mux.HandleFunc("/mcp", mcpServer.GetHTTPHandler())

	var handler http.Handler = mux
	if cfg.IsAPIAuthEnabled() {
		handler = api.AuthMiddleware(cfg.APIAuthToken, handler)
	}
	handler = api.SecurityHeadersMiddleware(handler)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: handler,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			server.Close()
		}
	}()

	log.Info("Starting seuranta server", "addr", cfg.ListenAddr)
	log.Info("API available", "url", "http://localhost"+cfg.ListenAddr+"/api/")
	log.Info("MCP available", "url", "http://localhost"+cfg.ListenAddr+"/mcp")
	if cfg.IsAPIAuthEnabled() {
		log.Info("API authentication enabled")
	}
	mcpServer.LogStartup()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("Server error", "error", err)
		return err
	}

	log.Info("Server stopped")
	return nil
}

// presenceHook recomputes the presence view after every poll cycle and
// pushes it to the notifier. Cache replacement has already happened when the
// poller invokes this, so the notification never reflects a stale snapshot.
func presenceHook(engine *presence.Engine, notifier *notify.Notifier) lease.CycleHook {
	return func(ctx context.Context) error {
		names, err := engine.PresentNames()
		if err != nil {
			return err
		}

		log.Debug("Presence recomputed", "count", len(names))

		if notifier != nil {
			return notifier.Push(ctx, names)
		}
		return nil
	}
}
