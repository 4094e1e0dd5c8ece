package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pageset/internal/compiler"
	cfgpkg "github.com/local/pageset/internal/config"
	"github.com/local/pageset/internal/filetype"
	"github.com/local/pageset/internal/imagerender"
	"github.com/local/pageset/internal/limiter"
	logpkg "github.com/local/pageset/internal/logger"
	"github.com/local/pageset/internal/metrics"
	"github.com/local/pageset/internal/pdfdoc"
	"github.com/local/pageset/internal/server"
	"github.com/local/pageset/internal/source"
	"github.com/local/pageset/internal/statuscheck"
	"github.com/local/pageset/internal/storage"
	"github.com/local/pageset/internal/store"
)

func main() {
	cfg := cfgpkg.Load()

	// Init logging
	_ = logpkg.Init(logpkg.FromConfig(cfg))
	defer logpkg.Close()

	metrics.Init()

	ctx := context.Background()

	// Result store
	results, err := store.NewResultStore(ctx, cfg.Results.RedisURL, cfg.Results.TTL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer results.Close()

	// Object storage (optional)
	var (
		s3c     *storage.S3Client
		uploads server.Uploader
		bucket  statuscheck.BucketChecker
	)
	if cfg.Storage.Enabled {
		s3c, err = storage.NewS3Client(ctx, storage.Options{
			Bucket:          cfg.Storage.Bucket,
			Region:          cfg.Storage.Region,
			Endpoint:        cfg.Storage.Endpoint,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			Password:        cfg.Storage.Password,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init S3 client")
		}
		uploads, bucket = s3c, s3c
	}

	fetcher := &source.Fetcher{
		HTTP:     &http.Client{Timeout: cfg.Server.FetchTimeout},
		MaxBytes: int64(cfg.Server.MaxUploadMB) << 20,
	}
	if s3c != nil {
		fetcher.S3 = s3c
	}

	loader := pdfdoc.NewLoader()
	thumbOpts := imagerender.DefaultOptions()
	thumbOpts.Scale = cfg.Engine.ThumbScale
	thumbOpts.MaxWidth = cfg.Engine.ThumbMaxWidth

	srv := server.New(cfg, server.Deps{
		Parse: func(data []byte) (compiler.Layout, error) {
			return loader.Parse(data)
		},
		Serializer: pdfdoc.NewSerializer(),
		Render: func(ctx context.Context, data []byte, pageCount int) ([]imagerender.Thumbnail, error) {
			return imagerender.RenderAll(ctx, data, pageCount, thumbOpts, cfg.Engine.RenderWorkers)
		},
		Detector: filetype.New(),
		Fetcher:  fetcher,
		Results:  results,
		Uploads:  uploads,
		Status:   statuscheck.New(statuscheck.Options{Redis: results, S3: bucket}),
		Limiter: limiter.New(results.Client(), limiter.Options{
			MaxInflight: cfg.Server.MaxCompiles,
			BaseBackoff: cfg.Server.UploadBackoff,
			MaxBackoff:  cfg.Server.UploadMaxBackoff,
		}),
	})

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	mux.Handle("GET /metrics", metrics.Handler())

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go srv.RunSweeper(sweepCtx, time.Minute)

	httpSrv := &http.Server{Addr: ":" + cfg.Server.Port, Handler: mux}

	go func() {
		log.Info().Msgf("HTTP server listening on :%s", cfg.Server.Port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	fmt.Println("shutdown complete")
}
