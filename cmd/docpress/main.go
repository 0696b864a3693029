package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docpress/internal/auth"
	"docpress/internal/config"
	"docpress/internal/db"
	httpx "docpress/internal/http"
	"docpress/internal/jobs"
	"docpress/internal/notify"
	"docpress/internal/queue"
	"docpress/internal/registry"
	"docpress/internal/render"
	"docpress/internal/status"
	"docpress/internal/storage"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, _ := config.Load()

	gdb, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal(err)
	}
	if err := db.AutoMigrateAndIndexes(gdb); err != nil {
		log.Fatal(err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	objects, err := storage.NewS3(ctx, storage.Config{
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
		Region:          cfg.S3Region,
		Bucket:          cfg.S3Bucket,
		Endpoint:        cfg.S3Endpoint,
	})
	if err != nil {
		log.Fatal(err)
	}

	reg := registry.Default()
	q := queue.NewRedis(rdb, cfg.QueueName)
	store := &jobs.Repo{DB: gdb}

	dispatcher := notify.NewDispatcher(&notify.LogSink{Log: log}, cfg.NotifyBuffer, log)
	go dispatcher.Run(ctx)

	enq := &jobs.Enqueuer{
		Store:       store,
		Queue:       q,
		Registry:    reg,
		MaxAttempts: cfg.MaxAttempts,
		Log:         log,
	}

	resolver := &status.Resolver{
		Store:      store,
		Registry:   reg,
		Objects:    objects,
		Cache:      &status.RedisCache{RDB: rdb, Prefix: "docpress"},
		CacheTTL:   cfg.FileCacheTTL,
		PresignTTL: cfg.PresignTTL,
		Log:        log,
	}

	renderer := render.NewClient(cfg.RenderURL, cfg.RenderTimeout)

	for i := 0; i < cfg.Workers; i++ {
		w := &jobs.Worker{
			ID:       fmt.Sprintf("worker-%d", i+1),
			Store:    store,
			Queue:    q,
			Renderer: renderer,
			Objects:  objects,
			Notifier: dispatcher,
			Registry: reg,
			Backoff:  jobs.Backoff{Base: cfg.BackoffBase, Cap: cfg.BackoffCap},
			Log:      log,
		}
		go w.Run(ctx)
		if i == 0 {
			go w.RunPromoter(ctx, time.Second)
		}
	}

	sweeper := &jobs.Sweeper{
		Store:      store,
		Queue:      q,
		StaleAfter: cfg.SweepStaleAfter,
		Log:        log,
	}
	sweeper.Start(ctx)
	defer sweeper.Stop()

	jwtSvc := auth.NewJWT(cfg.JWTSecret)
	r := httpx.NewRouter(cfg, store, enq, resolver, jwtSvc)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	// graceful shutdown
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}
