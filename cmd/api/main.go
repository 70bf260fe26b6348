package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"zoul.org/internal/auth"
	"zoul.org/internal/httpapi"
	"zoul.org/internal/obs"
)

var version = "0.3.1"

func main() {
	// Инициализация observability (регистрация метрик, JSON-логгер и т.п.)
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("ZOUL_COMMIT"))

	secret := strings.TrimSpace(os.Getenv("ZOUL_AUTH_SECRET"))
	if secret == "" {
		log.Fatal("ZOUL_AUTH_SECRET is required")
	}

	// Хранилище: Postgres, если задан DSN, иначе in-memory (dev-режим).
	var (
		store auth.Store
		probe httpapi.ReadyProbe
	)
	if dsn := os.Getenv("ZOUL_PG_DSN"); dsn != "" {
		pg, err := auth.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer pg.Close()
		store = pg
		probe = httpapi.ReadyProbe{DB: pg.DB()}
	} else {
		mem := auth.NewMemoryStore()
		seedDevRoles(mem)
		store = mem
		log.Print("ZOUL_PG_DSN not set, using in-memory store")
	}

	opts := []auth.ManagerOption{}
	if ttl := parseTTL(os.Getenv("ZOUL_ACCESS_TTL")); ttl > 0 {
		opts = append(opts, auth.WithAccessTTL(ttl))
	}
	if ttl := parseTTL(os.Getenv("ZOUL_REFRESH_TTL")); ttl > 0 {
		opts = append(opts, auth.WithRefreshTTL(ttl))
	}

	sessions, err := auth.NewManager(store, secret, opts...)
	if err != nil {
		log.Fatalf("session manager: %v", err)
	}
	svc, err := auth.NewService(store, sessions)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}
	eval, err := auth.NewEvaluator(store)
	if err != nil {
		log.Fatalf("evaluator: %v", err)
	}

	// Системные роли должны быть засеяны до старта.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := eval.EnsureSystemRoles(ctx); err != nil {
		cancel()
		log.Fatalf("system roles: %v", err)
	}
	cancel()

	api := httpapi.New(svc, eval, probe, version)

	srv := &http.Server{
		Addr:              ":8080",
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting zoul-auth %s on %s", version, srv.Addr)

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

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	log.Println("Stopped")
}

func parseTTL(raw string) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Fatalf("invalid duration %q: %v", raw, err)
	}
	return d
}

// seedDevRoles повторяет seeds/0001_system_roles.sql для in-memory режима.
func seedDevRoles(mem *auth.MemoryStore) {
	mem.SeedRole(auth.Role{
		ID: "role-blacklist", Order: 300, Name: "blacklist", DisplayName: "Blacklist",
		IsSystemRole: true, Bans: []string{auth.Wildcard},
	})
	mem.SeedRole(auth.Role{
		ID: "role-admin", Order: 255, Name: "admin", DisplayName: "Admin",
		IsSystemRole: true, Permissions: []string{auth.Wildcard},
	})
	mem.SeedRole(auth.Role{
		ID: "role-authenticated", Order: auth.RoleOrderAuthenticated, Name: "authenticated", DisplayName: "Authenticated",
		IsSystemRole: true,
		Permissions: []string{
			auth.PermAudioUpload, auth.PermAudioOwnManage, auth.PermProfileEdit,
			auth.PermAudioVote, auth.PermAudioFavorite,
		},
	})
	mem.SeedRole(auth.Role{
		ID: "role-guest", Order: auth.RoleOrderGuest, Name: "guest", DisplayName: "Guest",
		IsSystemRole: true,
		Permissions: []string{
			auth.PermSiteView, auth.PermAudioPublicView, auth.PermUserPublicView,
		},
	})
}
