package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mattn/go-isatty"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"taskd/internal/cache"
	"taskd/internal/controller"
	"taskd/internal/mcpserver"
	"taskd/internal/queue"
	"taskd/internal/repository"
	"taskd/internal/routes"
	"taskd/internal/service"
	"taskd/internal/worker"
	"taskd/pkg/logger"
)

const (
	transportAuto  = "auto"
	transportStdio = "stdio"
	transportHTTP  = "http"

	shutdownTimeout = 15 * time.Second
)

var (
	serveTransport string
	servePort      string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the task API over HTTP or an MCP stdio session",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveTransport, "transport", transportAuto, "auto, stdio or http")
	serveCmd.Flags().StringVar(&servePort, "port", "", "HTTP port (overrides PORT)")
}

// resolveTransport picks stdio for an auto run that is attached to a pipe
// outside a hosting platform, and HTTP otherwise.
func resolveTransport(flag string, stdinIsTerminal, deployment bool) (string, error) {
	switch flag {
	case transportStdio, transportHTTP:
		return flag, nil
	case transportAuto, "":
		if !stdinIsTerminal && !deployment {
			return transportStdio, nil
		}
		return transportHTTP, nil
	default:
		return "", fmt.Errorf("unknown transport %q (want auto, stdio or http)", flag)
	}
}

func stdinIsTerminal() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// app holds everything serve wires together.
type app struct {
	store     *repository.Facade
	cache     *cache.Client
	events    *queue.EventPublisher
	svc       *service.Service
	mcp       *mcp.Server
	worker    *worker.Worker
	readiness map[string]controller.Pinger
}

func buildApp(ctx context.Context) (*app, error) {
	store, err := openStorage(ctx)
	if err != nil {
		return nil, err
	}
	a := &app{store: store, readiness: map[string]controller.Pinger{}}

	var opts []service.Option
	if cfg.CacheEnabled() {
		c, err := cache.New(ctx, cache.Options{URL: cfg.RedisURL, PoolSize: cfg.RedisPoolSize, TTL: cfg.CacheTTL})
		if err != nil {
			logger.Warn(ctx, "Redis unavailable, running without list cache", "error", err)
		} else {
			a.cache = c
			a.readiness["cache"] = c
			opts = append(opts, service.WithCache(c))
		}
	}

	qopts := queue.Options{
		Brokers:       cfg.KafkaBrokers,
		EventsTopic:   cfg.KafkaEventsTopic,
		CommandsTopic: cfg.KafkaCommandsTopic,
		GroupID:       cfg.KafkaGroupID,
		Partitions:    cfg.KafkaPartitions,
	}
	if cfg.KafkaEnabled() {
		queue.EnsureTopics(ctx, qopts)
		if p := queue.NewEventPublisher(ctx, qopts); p != nil {
			a.events = p
			opts = append(opts, service.WithPublisher(p))
		}
	}

	a.svc = service.New(store, opts...)
	a.mcp = mcpserver.New(a.svc, mcpserver.Options{Name: "taskd", Version: version})

	if cfg.KafkaEnabled() {
		reader, err := queue.NewCommandReader(qopts)
		if err != nil {
			logger.Warn(ctx, "Command worker disabled", "error", err)
		} else {
			a.worker = worker.New(reader, a.svc)
		}
	}
	return a, nil
}

func (a *app) close(ctx context.Context) {
	if err := a.events.Close(); err != nil {
		logger.Warn(ctx, "Kafka writer close failed", "error", err)
	}
	if err := a.cache.Close(); err != nil {
		logger.Warn(ctx, "Redis close failed", "error", err)
	}
	if err := a.store.Close(); err != nil {
		logger.Warn(ctx, "Storage close failed", "error", err)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	mode, err := resolveTransport(serveTransport, stdinIsTerminal(), cfg.IsDeployment())
	if err != nil {
		return err
	}
	closer := setupLogging(mode == transportStdio)
	defer closer.Close()

	sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	a, err := buildApp(ctx)
	if err != nil {
		logger.Error(ctx, "Startup failed", "error", err)
		return err
	}
	defer a.close(context.Background())
	logger.Info(ctx, "taskd starting", "version", version, "transport", mode, "backend", a.store.Backend())

	g, gctx := errgroup.WithContext(ctx)
	if a.worker != nil {
		g.Go(func() error { return a.worker.Run(gctx) })
	}

	switch mode {
	case transportStdio:
		g.Go(func() error {
			defer cancel()
			return mcpserver.RunStdio(gctx, a.mcp)
		})
	default:
		port := cfg.HTTPPort
		if servePort != "" {
			port = servePort
		}
		serveHTTP(gctx, g, a, port)
	}

	err = g.Wait()
	logger.Info(context.Background(), "taskd stopped")
	return err
}

func serveHTTP(ctx context.Context, g *errgroup.Group, a *app, port string) {
	gin.SetMode(gin.ReleaseMode)
	tasks := controller.NewTasks(a.svc, a.readiness)
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      routes.Router(tasks, mcpserver.HTTPHandler(a.mcp)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	g.Go(func() error {
		logger.Info(ctx, "HTTP server listening", "port", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info(context.Background(), "Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error(shutdownCtx, "Server shutdown error", "error", err)
		}
		return nil
	})
}
