package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"hometracker.app/internal/auth"
	"hometracker.app/internal/config"
	"hometracker.app/internal/httpapi"
	"hometracker.app/internal/obs"
	"hometracker.app/internal/ratelimit"
	"hometracker.app/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = ""
)

func main() {
	log := obs.Logger()
	if err := run(log); err != nil {
		log.WithError(err).Fatal("hometracker-api stopped")
	}
}

func run(log *logrus.Logger) error {
	cfg, err := config.Load(os.LookupEnv)
	if err != nil {
		return err
	}
	if err := obs.SetLevel(cfg.LogLevel); err != nil {
		log.WithError(err).Warn("unknown log level, keeping default")
	}
	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	probe := httpapi.ReadyProbe{}

	var store auth.AccountStore
	if cfg.PGDSN != "" {
		pgStore, err := pg.Open(cfg.PGDSN)
		if err != nil {
			return err
		}
		defer pgStore.Close()
		store = pgStore
		probe.DB = httpapi.PingFunc(pgStore.Ping)
	} else {
		log.Warn("no database configured, accounts are kept in memory")
		store = auth.NewInMemory()
	}

	lockoutPolicy := ratelimit.Policy{
		Limit:  cfg.AuthLockout.Attempts,
		Window: cfg.AuthLockout.Window,
		Block:  cfg.AuthLockout.Block,
	}
	var lockout ratelimit.Window
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		probe.Redis = httpapi.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		lockout, err = ratelimit.NewRedisWindow(rdb, lockoutPolicy)
	} else {
		lockout, err = ratelimit.NewMemoryWindow(lockoutPolicy)
	}
	if err != nil {
		return err
	}

	tokens, err := auth.NewTokenIssuer(auth.TokenConfig{
		Secret:   cfg.Token.Secret,
		Issuer:   cfg.Token.Issuer,
		Audience: cfg.Token.Audience,
		TTL:      cfg.Token.TTL,
		Leeway:   cfg.Token.Leeway,
	})
	if err != nil {
		return err
	}
	if tokens.Ephemeral() {
		log.Warn("HOMETRACKER_JWT_SECRET is not set; using a random secret, tokens will not survive a restart")
	}

	svc, err := auth.NewService(store, tokens,
		auth.WithHasher(auth.NewHasher(cfg.Hash.Concurrency, auth.WithIterations(cfg.Hash.Iterations))),
		auth.WithLogger(log),
		auth.WithMaxRegistrationRole(cfg.MaxRegistrationRole),
	)
	if err != nil {
		return err
	}

	proxies, err := cfg.TrustedProxyPrefixes()
	if err != nil {
		return err
	}

	opts := []httpapi.Option{
		httpapi.WithTrustedProxies(proxies...),
		httpapi.WithLockout(lockout),
		httpapi.WithCSRF(cfg.CSRFEnabled),
		httpapi.WithAllowedOrigins(cfg.AllowedOrigins...),
		httpapi.WithMaxBodyBytes(cfg.MaxBodyBytes),
		httpapi.WithLogger(log),
	}
	if cfg.RateLimit.Requests > 0 {
		opts = append(opts, httpapi.WithRateLimit(cfg.RateLimit.Requests,
			float64(cfg.RateLimit.Requests)/cfg.RateLimit.Window.Seconds()))
	}
	api := httpapi.New(probe, version, svc, opts...)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithFields(logrus.Fields{"address": srv.Addr, "version": version}).Info("starting hometracker-api")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.GRPCAddr != "" {
		grpcSrv := httpapi.NewGRPCServer(probe, version, svc)
		g.Go(func() error { return grpcSrv.Run(gctx, cfg.GRPCAddr) })
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("stopped")
	return nil
}
