package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aedile.org/internal/audit"
	"aedile.org/internal/authz"
	"aedile.org/internal/httpapi"
	"aedile.org/internal/obs"
	"aedile.org/internal/session"
	"aedile.org/internal/store/pg"
)

var version = "0.3.0"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("AEDILE_BUILD_COMMIT"))

	dsn := os.Getenv("AEDILE_PG_DSN")
	if dsn == "" {
		log.Fatal("AEDILE_PG_DSN is required")
	}
	secret := os.Getenv("AEDILE_AUTH_SECRET")
	if secret == "" {
		log.Fatal("AEDILE_AUTH_SECRET is required")
	}
	addr := os.Getenv("AEDILE_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	production := os.Getenv("AEDILE_ENV") == "production"

	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	roles, err := authz.NewService(store)
	if err != nil {
		log.Fatalf("role service: %v", err)
	}

	recorder := audit.NewRecorder(store)

	sessions, err := session.NewManager(store, store, roles, recorder, []byte(secret))
	if err != nil {
		log.Fatalf("session manager: %v", err)
	}

	api := httpapi.New(sessions, roles, recorder,
		httpapi.ReadyProbe{Check: store.Ping},
		httpapi.Config{Version: version, Secure: production},
	)

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting aedile-api %s on %s", version, srv.Addr)

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
