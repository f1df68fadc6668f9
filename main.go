package main

import (
	"context"
	"log"

	"github.com/fasthttp/router"
	"github.com/joho/godotenv"
	"github.com/valyala/fasthttp"

	"stridesync/internal/config"
	"stridesync/internal/db"
	"stridesync/internal/http/handlers"
	appmw "stridesync/internal/http/middleware"
	"stridesync/internal/strava"
	syncpkg "stridesync/internal/sync"
	"stridesync/internal/token"
	ui "stridesync/web"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	gdb, err := db.Connect(cfg)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	creds := db.NewCredentialStore(gdb)
	activities := db.NewActivityStore(gdb)
	splits := db.NewSplitStore(gdb)

	client := strava.NewClient(cfg.StravaClientID, cfg.StravaClientSecret)
	client.MaxRetries = cfg.MaxRetries
	client.BaseBackoff = cfg.BaseBackoff

	tokens := token.NewManager(creds, client)

	ingestor := syncpkg.NewIngestor(tokens, client, activities)
	ingestor.PerPage = cfg.PerPage

	enricher := syncpkg.NewEnricher(tokens, client, activities, splits)
	enricher.MaxAttempts = cfg.MaxRetries
	enricher.Pacing = cfg.Pacing

	pipeline := syncpkg.NewPipeline(tokens, ingestor, enricher)
	pipeline.LookbackDays = cfg.LookbackDays
	pipeline.MaxActivities = cfg.MaxActivities
	pipeline.BatchSize = cfg.BatchSize

	if cfg.SyncInterval > 0 {
		syncpkg.StartSyncWorker(context.Background(), pipeline, creds, cfg.SyncInterval)
		log.Printf("sync worker started, interval %s", cfg.SyncInterval)
	}

	r := router.New()

	handler := handlers.RequestLogger(r.Handler)
	admin := appmw.AdminAuth(cfg)

	r.GET("/healthz", func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
	})

	r.ServeFS("/static/{filepath:*}", ui.StaticFS())

	r.GET("/", admin(handlers.StatusPage(activities, creds)))

	r.GET("/oauth/connect", handlers.OAuthConnect(cfg))
	r.GET("/oauth/callback", handlers.OAuthCallback(client, creds))

	r.POST("/v1/sync", admin(handlers.TriggerSync(pipeline, cfg)))
	r.GET("/v1/activities", handlers.ListActivities(activities))
	r.GET("/v1/activities/{id}", handlers.ActivityDetail(activities, splits))

	r.GET("/metrics", handlers.MetricsHandler())

	log.Printf("stridesync listening on %s", cfg.ListenAddr)
	if err := fasthttp.ListenAndServe(cfg.ListenAddr, handler); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
