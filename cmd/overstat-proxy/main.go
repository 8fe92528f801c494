package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"overstat-proxy-go/internal/client"
	"overstat-proxy-go/internal/config"
	"overstat-proxy-go/internal/cors"
	"overstat-proxy-go/internal/handler"
	"overstat-proxy-go/internal/metrics"
	"overstat-proxy-go/internal/middleware"
	"overstat-proxy-go/internal/ratelimit"
	"overstat-proxy-go/internal/service"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// sweepInterval is how often the in-memory rate-limit store drops expired windows.
const sweepInterval = time.Minute

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	var cli config.CLI
	kong.Parse(&cli,
		kong.Name("overstat-proxy"),
		kong.Description("Pass-through proxy for the Overstat tournament statistics API."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)

	fx.New(options(&cli)...).Run()
}

func options(cli *config.CLI) []fx.Option {
	return []fx.Option{
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			l := &fxevent.SlogLogger{Logger: logger}
			l.UseLogLevel(slog.LevelDebug)
			return l
		}),
		fx.Provide(
			func() *config.CLI { return cli },
			func() handler.Version { return handler.Version(version) },
			handler.DefaultEndpoints,
			config.Load,
			newLogger,
			metrics.New,
			cors.NewPolicy,
			newAPIMiddleware,
			newEcho,
			client.NewUpstreamClient,
			service.NewProxyService,
			service.NewHealthProber,
			handler.NewProcess,
			handler.NewProxyHandler,
			handler.NewHealthHandler,
			handler.NewStatusHandler,
		),
		fx.Invoke(handler.RegisterRoutes, warnConfigPermissions, startServer),
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "text":
		h = slog.NewTextHandler(os.Stdout, opts)
	default:
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(h).With("service", "overstat-proxy")
}

func newEcho(
	cfg *config.Config,
	logger *slog.Logger,
	m *metrics.Metrics,
	policy *cors.Policy,
	endpoints handler.Endpoints,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler(logger, endpoints)

	if cfg.Server.TrustProxy {
		e.IPExtractor = echo.ExtractIPFromXFFHeader()
	} else {
		e.IPExtractor = echo.ExtractIPDirect()
	}

	// Inbound timeouts to mitigate slow-client attacks.
	e.Server.ReadTimeout = 30 * time.Second
	// WriteTimeout stays 0 so long streamed responses are not cut off.
	e.Server.WriteTimeout = 0
	e.Server.IdleTimeout = 120 * time.Second
	e.Server.ReadHeaderTimeout = 10 * time.Second

	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLogger(logger))
	e.Use(echomw.Recover())
	if cfg.Metrics.Enabled {
		e.Use(middleware.MetricsMiddleware(m, cfg.Metrics.Path))
	}
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.CORS(policy))
	e.Use(echomw.BodyLimit(fmt.Sprintf("%dB", cfg.Server.BodyMaxBytes)))
	if cfg.Server.Compression {
		e.Use(echomw.Gzip())
	}

	logger.Info("cors policy", "summary", policy.Describe())
	return e
}

// newAPIMiddleware builds the per-IP rate limiter for the /api group,
// backed by process memory or by Redis when replicas must share quota.
func newAPIMiddleware(
	lc fx.Lifecycle,
	cfg *config.Config,
	logger *slog.Logger,
	m *metrics.Metrics,
) handler.APIMiddleware {
	rl := cfg.Server.RateLimit
	if !rl.Enabled {
		logger.Info("rate limiter disabled")
		return nil
	}

	policy := ratelimit.Policy{
		Limit:  rl.MaxRequests,
		Window: time.Duration(rl.WindowSeconds) * time.Second,
	}

	var store ratelimit.Store
	switch rl.Backend {
	case config.RateLimitBackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     rl.Redis.Addr,
			Password: rl.Redis.Password,
			DB:       rl.Redis.DB,
		})
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				// Unreachable Redis is not fatal: the limiter admits requests until it recovers.
				if err := rdb.Ping(ctx).Err(); err != nil {
					logger.Warn("redis rate-limit store unreachable", "addr", rl.Redis.Addr, "err", err)
				}
				return nil
			},
			OnStop: func(_ context.Context) error {
				return rdb.Close()
			},
		})
		store = ratelimit.NewRedisStore(rdb, rl.Redis.KeyPrefix, policy)
	default:
		mem := ratelimit.NewMemoryStore(policy)
		ctx, cancel := context.WithCancel(context.Background())
		lc.Append(fx.Hook{
			OnStart: func(_ context.Context) error {
				go mem.Run(ctx, sweepInterval)
				return nil
			},
			OnStop: func(_ context.Context) error {
				cancel()
				return nil
			},
		})
		store = mem
	}

	logger.Info("rate limiter enabled",
		"backend", rl.Backend,
		"max_requests", rl.MaxRequests,
		"window_seconds", rl.WindowSeconds,
	)
	return handler.APIMiddleware{middleware.RateLimit(store, policy, logger, m)}
}

func warnConfigPermissions(cfg *config.Config, logger *slog.Logger) {
	cfg.WarnPermissions(logger)
}

func startServer(lc fx.Lifecycle, e *echo.Echo, cfg *config.Config, svc *service.ProxyService, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			addr := cfg.Server.Addr()
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("bind %s: %w", addr, err)
			}
			logger.Info("starting server",
				"addr", addr,
				"target", svc.Target(),
				"version", version,
			)
			go func() {
				if err := e.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server error", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			timeout := time.Duration(cfg.Server.ShutdownTimeoutSeconds) * time.Second
			if timeout <= 0 {
				logger.Info("shutting down server")
				return e.Close()
			}
			logger.Info("draining server", "timeout", timeout)
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return e.Shutdown(ctx)
		},
	})
}
