package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/HsiangNianian/framebridge/internal/api"
	"github.com/HsiangNianian/framebridge/internal/bridge"
	"github.com/HsiangNianian/framebridge/internal/channel"
	"github.com/HsiangNianian/framebridge/internal/config"
	"github.com/HsiangNianian/framebridge/internal/logging"
	"github.com/HsiangNianian/framebridge/internal/queue"
	"github.com/HsiangNianian/framebridge/internal/store"
	"github.com/HsiangNianian/framebridge/internal/ws"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load(os.Getenv("BRIDGE_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("bridge failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	var st store.Store
	if cfg.Store.RedisAddr != "" {
		rs := store.NewRedisStore(cfg.Store.RedisAddr)
		defer func() { _ = rs.Close() }()
		if err := rs.Ping(ctx); err != nil {
			return err
		}
		st = rs
		logger.Info("use redis store", zap.String("addr", cfg.Store.RedisAddr))
	} else {
		st = store.NewMemoryStore()
		logger.Info("use memory store")
	}

	host := queue.New(
		queue.WithLogger(logger.Named("queue")),
		queue.WithStore(st),
		queue.WithCacheTTL(cfg.Store.CacheTTL()),
		queue.WithMaxJobs(cfg.Actions.BackgroundWorkers),
	)
	registerBuiltins(host)

	holder := channel.NewHolder(channel.WithWaitTimeout(cfg.Channel.WaitTimeout()))

	hubOpts := []ws.Option{ws.WithLogger(logger.Named("ws"))}
	if len(cfg.Server.AllowedOrigins) > 0 {
		allowed := cfg.Server.AllowedOrigins
		hubOpts = append(hubOpts, ws.WithCheckOrigin(func(r *http.Request) bool {
			return slices.Contains(allowed, r.Header.Get("Origin"))
		}))
	}
	hub := ws.NewHub(holder, cfg.Server.FrameAuthToken, hubOpts...)

	b := bridge.New(holder, host, bridge.WithLogger(logger.Named("bridge")))
	defer b.Close()

	srv := &http.Server{
		Addr: cfg.Server.ListenAddr,
		Handler: api.New(b,
			api.WithLogger(logger.Named("api")),
			api.WithAuthToken(cfg.Server.APIAuthToken),
		).Router(cfg.Server.FramePath, hub.HandleFrame),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("bridge listening", zap.String("addr", cfg.Server.ListenAddr), zap.String("frame_path", cfg.Server.FramePath))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		host.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func registerBuiltins(host *queue.Host) {
	c := host.Group("c")
	c.Register("ping", func(context.Context, map[string]any) (any, error) {
		return map[string]any{"pong": true, "time": time.Now().UTC().Format(time.RFC3339)}, nil
	})
	c.Register("echo", func(_ context.Context, params map[string]any) (any, error) {
		return params, nil
	})
}
