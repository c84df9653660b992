package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"pharmadesk/backend/internal/analytics"
	"pharmadesk/backend/internal/cache"
	"pharmadesk/backend/internal/config"
	"pharmadesk/backend/internal/httpapi"
	"pharmadesk/backend/internal/invoice"
	"pharmadesk/backend/internal/service"
	"pharmadesk/backend/internal/storage"
	"pharmadesk/backend/internal/store"
	"pharmadesk/backend/internal/store/memory"
	pgstore "pharmadesk/backend/internal/store/postgres"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres unavailable and DATABASE_URL is set; refusing in-memory fallback")
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Info().Msg("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Info().Msg("repository: in-memory (seeded)")
	}

	reportCache := cache.ReportCache(cache.NoopReportCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisReportCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("redis unavailable, using noop report cache")
		} else {
			reportCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Info().Msg("report cache: redis")
		}
	} else {
		log.Info().Msg("report cache: noop")
	}

	var sink storage.Sink
	if cfg.S3Bucket != "" {
		s3Sink, err := storage.NewS3Sink(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3Prefix)
		if err != nil {
			log.Fatal().Err(err).Msg("s3 sink setup failed")
		}
		sink = s3Sink
		log.Info().Str("bucket", cfg.S3Bucket).Msg("invoice sink: s3")
	} else {
		localSink, err := storage.NewLocalSink(cfg.InvoiceDir, cfg.InvoiceBaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("local invoice sink setup failed")
		}
		sink = localSink
		log.Info().Str("dir", cfg.InvoiceDir).Msg("invoice sink: local")
	}

	letterhead := invoice.Letterhead{
		Name:    cfg.PharmacyName,
		Address: cfg.PharmacyAddress,
		Phone:   cfg.PharmacyPhone,
		Email:   cfg.PharmacyEmail,
	}
	attacher := invoice.NewAttacher(invoice.TextRenderer{}, sink, repo, letterhead, log)
	attacher.Start()

	svc := service.New(repo, reportCache, attacher, cfg.TimezoneOffsetMinutes, cfg.NearlyExpiryDays, log)
	agg := analytics.New(repo, reportCache, time.Duration(cfg.ReportCacheTTLSeconds)*time.Second, log)
	api := httpapi.New(svc, agg, cfg.TimezoneOffsetMinutes, log)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Address()).Msg("pharmacy backend listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}

	// Let queued invoices finish before closing the stores they write to.
	attacher.Stop()

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error().Err(err).Msg("close error")
		}
	}

	log.Info().Msg("server stopped")
}
