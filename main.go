package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ctrlr/internal/api"
	"ctrlr/internal/catalog"
	"ctrlr/internal/config"
	"ctrlr/internal/convertapi"
	"ctrlr/internal/redis"
	"ctrlr/internal/relay"
	"ctrlr/internal/service/ai"
	"ctrlr/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CTRLR_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbType := os.Getenv("CTRLR_DB")
	if dbType == "" {
		dbType = cfg.BasicConfig.Database
	}
	if dbType == "" {
		dbType = "sqlite3"
	}
	log.Printf("dbType: %s", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = redis.NewRedisClient(cfg.Redis)
		if err != nil {
			log.Printf("summary cache disabled: %v", err)
			rdb = nil
		} else {
			defer rdb.Close()
		}
	}

	converter, err := convertapi.New(cfg.ConvertAPI)
	if err != nil {
		log.Fatalf("init convertapi: %v", err)
	}
	rel, err := relay.New(converter, relay.NewHTTPFetcher(cfg.ConvertAPI.Timeout()), storage.NewArtifactStore(db), relay.Options{
		UploadDir:     cfg.BasicConfig.UploadDir,
		ConvertedDir:  cfg.BasicConfig.ConvertedDir,
		PublicBaseURL: cfg.BasicConfig.PublicBaseURL,
		ArtifactTTL:   cfg.BasicConfig.ArtifactTTL(),
	})
	if err != nil {
		log.Fatalf("init relay: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	rel.StartRetention(ctx, cfg.BasicConfig.CleanupInterval())

	assistant, err := ai.New(ctx, cfg, rdb, rel)
	if err != nil {
		log.Fatalf("init assistant: %v", err)
	}
	if assistant == nil {
		log.Printf("assistant disabled: /summarize and /chat will return 503")
	}

	handlers := api.NewHandler(rel, assistant, catalog.Default(), api.Options{
		ConvertedDir:       cfg.BasicConfig.ConvertedDir,
		MaxUploadBytes:     cfg.BasicConfig.MaxUploadBytes(),
		RateLimitPerMinute: cfg.BasicConfig.RateLimitPerMinute,
	})
	router := gin.Default()
	handlers.RegisterRoutes(router)

	srv := api.NewServer(cfg.BasicConfig.ServerAddress, router, cfg.BasicConfig.AllowedOrigins)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	log.Printf("ctrl-r relay listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server stopped: %v", err)
	}
}
