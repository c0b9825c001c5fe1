package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"death2data.org/internal/auth"
	"death2data.org/internal/certificate"
	"death2data.org/internal/config"
	"death2data.org/internal/export"
	"death2data.org/internal/fingerprint"
	"death2data.org/internal/httpapi"
	"death2data.org/internal/ids"
	"death2data.org/internal/obs"
	"death2data.org/internal/registry"
	"death2data.org/internal/saved"
	"death2data.org/internal/store/pg"
	"death2data.org/internal/stream"
	"death2data.org/internal/usage"
)

var (
	version = "0.4.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx := context.Background()
	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.AuthSecret == "" {
		log.Fatal("D2D_AUTH_SECRET is required")
	}

	var (
		db          *sql.DB
		userStore   auth.Store
		recordStore registry.Store
		usageLedger usage.Ledger
		saveStore   saved.Store
	)
	if cfg.PGDSN != "" {
		db, err = pg.Open(cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		userStore = pg.NewUserStore(db)
		recordStore = pg.NewContentStore(db)
		usageLedger = pg.NewUsageLedger(db)
		saveStore = pg.NewSaveStore(db)
	} else {
		mem := auth.NewInMemory()
		userStore = mem
		recordStore = registry.NewInMemory(mem)
		usageLedger = usage.NewInMemory()
		saveStore = saved.NewInMemory()
		log.Print("no D2D_PG_DSN set, using in-memory stores")
	}

	authSvc := auth.NewService(userStore, []byte(cfg.AuthSecret))
	meter := usage.NewMeter(usageLedger, usage.DefaultLimits())
	engine := fingerprint.New(fingerprint.WithReadTimeout(cfg.FingerprintTimeout))
	registrySvc := registry.NewService(recordStore, meter, engine, registry.DefaultLicenses(), ids.NewContentID)
	savedSvc := saved.NewService(saveStore, meter)
	events := stream.New()

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, httpapi.Deps{
		Auth:     authSvc,
		Registry: registrySvc,
		Certs:    certificate.New(recordStore, cfg.PublicURL, version),
		Saves:    savedSvc,
		Exporter: export.New(registrySvc, savedSvc),
		Meter:    meter,
		Stream:   events,
	})

	handler := api.Handler()
	handler = httpapi.MaxBodyBytes(handler, 1<<20)
	handler = httpapi.RateLimit(handler, cfg.RateBurst, cfg.RatePerSec)
	handler = httpapi.CORS(handler)
	handler = httpapi.SecurityHeaders(handler)
	handler = httpapi.Logging(handler)
	handler = httpapi.RequestID(handler)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		// no WriteTimeout: /v1/events holds the connection open
		IdleTimeout: 60 * time.Second,
	}

	log.Printf("Starting d2d-registry %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
