package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"death2data.org/internal/auth"
	"death2data.org/internal/config"
	"death2data.org/internal/fingerprint"
	"death2data.org/internal/ids"
	"death2data.org/internal/obs"
	"death2data.org/internal/registry"
	"death2data.org/internal/store/pg"
	"death2data.org/internal/usage"
	"death2data.org/internal/watch"
)

func main() {
	obs.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.Watch.Dir == "" {
		log.Fatal("D2D_WATCH_DIR is required")
	}
	if cfg.PGDSN == "" {
		log.Fatal("D2D_PG_DSN is required")
	}
	token := os.Getenv("D2D_WATCH_TOKEN")
	if token == "" {
		log.Fatal("D2D_WATCH_TOKEN is required")
	}

	db, err := pg.Open(cfg.PGDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	users := pg.NewUserStore(db)
	authSvc := auth.NewService(users, []byte(cfg.AuthSecret))
	principal, err := authSvc.Resolve(ctx, token)
	if err != nil {
		log.Fatalf("resolve watch token: %v", err)
	}

	meter := usage.NewMeter(pg.NewUsageLedger(db), usage.DefaultLimits())
	engine := fingerprint.New(fingerprint.WithReadTimeout(cfg.FingerprintTimeout))
	registrySvc := registry.NewService(pg.NewContentStore(db), meter, engine, registry.DefaultLicenses(), ids.NewContentID)

	w := watch.New(registrySvc, watch.Config{
		Dir:     cfg.Watch.Dir,
		Settle:  cfg.Watch.SettleDelay,
		OwnerID: principal.UserID,
		Tier:    principal.Tier,
		License: os.Getenv("D2D_WATCH_LICENSE"),
	})

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		cancel()
	}()

	log.Printf("Watching %s for %s", cfg.Watch.Dir, principal.Email)
	if err := w.Run(ctx); err != nil {
		log.Fatalf("watch: %v", err)
	}
	log.Println("Stopped")
}
